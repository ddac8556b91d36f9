package widget

import (
	"strings"
	"testing"
)

func strp(s string) *string { return &s }

func TestResolveEmptyOptionsYieldsDefaults(t *testing.T) {
	cfg := Resolve(Options{})
	def := Defaults()

	if cfg.Endpoint.Route != "general" {
		t.Errorf("route = %q, want general", cfg.Endpoint.Route)
	}
	if cfg.Endpoint.URL != "" {
		t.Errorf("url = %q, want empty", cfg.Endpoint.URL)
	}
	if cfg.Branding != def.Branding {
		t.Errorf("branding = %+v, want %+v", cfg.Branding, def.Branding)
	}
	if cfg.Style != def.Style {
		t.Errorf("style = %+v, want %+v", cfg.Style, def.Style)
	}
	if cfg.RequireRegistration {
		t.Error("registration should not be required by default")
	}
	if strings.Join(cfg.RegistrationFields, ",") != "name,email" {
		t.Errorf("fields = %v", cfg.RegistrationFields)
	}
	if cfg.SuggestedQuestions == nil || len(cfg.SuggestedQuestions) != 0 {
		t.Errorf("suggested = %#v, want empty non-nil", cfg.SuggestedQuestions)
	}
}

func TestResolveMergesNestedKeys(t *testing.T) {
	cfg := Resolve(Options{
		Endpoint: &EndpointOptions{URL: strp("https://hooks.example.com/chat")},
		Branding: &BrandingOptions{Name: strp("Acme")},
		Style:    &StyleOptions{PrimaryColor: strp("#000000")},
	})

	if cfg.Endpoint.URL != "https://hooks.example.com/chat" {
		t.Errorf("url = %q", cfg.Endpoint.URL)
	}
	if cfg.Endpoint.Route != "general" {
		t.Errorf("route = %q, want general", cfg.Endpoint.Route)
	}
	if cfg.Branding.Name != "Acme" {
		t.Errorf("name = %q", cfg.Branding.Name)
	}
	if cfg.Branding.WelcomeText != Defaults().Branding.WelcomeText {
		t.Errorf("welcome text lost: %q", cfg.Branding.WelcomeText)
	}
	if cfg.Style.PrimaryColor != "#000000" || cfg.Style.SecondaryColor != "#818cf8" {
		t.Errorf("style = %+v", cfg.Style)
	}
}

func TestResolveEmptyRouteFallsBack(t *testing.T) {
	cfg := Resolve(Options{Endpoint: &EndpointOptions{Route: strp("")}})
	if cfg.Endpoint.Route != DefaultRoute {
		t.Errorf("route = %q, want %q", cfg.Endpoint.Route, DefaultRoute)
	}

	cfg = Resolve(Options{Endpoint: &EndpointOptions{Route: strp("billing")}})
	if cfg.Endpoint.Route != "billing" {
		t.Errorf("route = %q, want billing", cfg.Endpoint.Route)
	}
}

func TestResolveReplacesLists(t *testing.T) {
	yes := true
	fields := []string{"company"}
	cfg := Resolve(Options{RequireRegistration: &yes, RegistrationFields: fields})

	if !cfg.RequireRegistration {
		t.Error("registration should be required")
	}
	if len(cfg.RegistrationFields) != 1 || cfg.RegistrationFields[0] != "company" {
		t.Errorf("fields = %v", cfg.RegistrationFields)
	}

	fields[0] = "mutated"
	if cfg.RegistrationFields[0] != "company" {
		t.Error("resolved config shares the caller's slice")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name: "valid",
			opts: Options{Endpoint: &EndpointOptions{URL: strp("https://hooks.example.com/chat")}},
		},
		{
			name:    "missing url",
			opts:    Options{},
			wantErr: "endpoint.url is required",
		},
		{
			name:    "relative url",
			opts:    Options{Endpoint: &EndpointOptions{URL: strp("/chat")}},
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "bad scheme",
			opts:    Options{Endpoint: &EndpointOptions{URL: strp("ftp://example.com")}},
			wantErr: "absolute http(s) URL",
		},
		{
			name: "duplicate field",
			opts: Options{
				Endpoint:           &EndpointOptions{URL: strp("https://example.com")},
				RegistrationFields: []string{"name", "name"},
			},
			wantErr: `duplicates "name"`,
		},
		{
			name: "bad position",
			opts: Options{
				Endpoint: &EndpointOptions{URL: strp("https://example.com")},
				Style:    &StyleOptions{Position: strp("top")},
			},
			wantErr: "style.position",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Resolve(tt.opts).Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRequiresFieldsWhenGated(t *testing.T) {
	yes := true
	cfg := Resolve(Options{
		Endpoint:            &EndpointOptions{URL: strp("https://example.com")},
		RequireRegistration: &yes,
		RegistrationFields:  []string{},
	})
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "must not be empty") {
		t.Errorf("err = %v", err)
	}
}
