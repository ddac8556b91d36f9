package widget

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// DefaultRoute is used when the caller leaves endpoint.route empty.
const DefaultRoute = "general"

// Config is the resolved, read-only widget configuration.
type Config struct {
	Endpoint            EndpointConfig `json:"endpoint"`
	Branding            BrandingConfig `json:"branding"`
	Style               StyleConfig    `json:"style"`
	RequireRegistration bool           `json:"requireRegistration"`
	RegistrationFields  []string       `json:"registrationFields"`
	SuggestedQuestions  []string       `json:"suggestedQuestions"`
}

// EndpointConfig locates the messaging endpoint.
type EndpointConfig struct {
	URL   string `json:"url"`
	Route string `json:"route"`
}

// BrandingConfig holds the texts and logo shown in the panel.
type BrandingConfig struct {
	Name             string `json:"name"`
	WelcomeText      string `json:"welcomeText"`
	ResponseTimeText string `json:"responseTimeText"`
	LogoURL          string `json:"logoUrl,omitempty"`
}

// StyleConfig holds the theme values handed to surfaces.
type StyleConfig struct {
	PrimaryColor    string `json:"primaryColor"`
	SecondaryColor  string `json:"secondaryColor"`
	Position        string `json:"position"` // "left" or "right"
	BackgroundColor string `json:"backgroundColor"`
	FontColor       string `json:"fontColor"`
}

// Options is the caller-supplied partial configuration. Nil fields take
// the default.
type Options struct {
	Endpoint            *EndpointOptions `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Branding            *BrandingOptions `json:"branding,omitempty" yaml:"branding,omitempty"`
	Style               *StyleOptions    `json:"style,omitempty" yaml:"style,omitempty"`
	RequireRegistration *bool            `json:"requireRegistration,omitempty" yaml:"requireRegistration,omitempty"`
	RegistrationFields  []string         `json:"registrationFields,omitempty" yaml:"registrationFields,omitempty"`
	SuggestedQuestions  []string         `json:"suggestedQuestions,omitempty" yaml:"suggestedQuestions,omitempty"`
}

// EndpointOptions is the partial form of EndpointConfig.
type EndpointOptions struct {
	URL   *string `json:"url,omitempty" yaml:"url,omitempty"`
	Route *string `json:"route,omitempty" yaml:"route,omitempty"`
}

// BrandingOptions is the partial form of BrandingConfig.
type BrandingOptions struct {
	Name             *string `json:"name,omitempty" yaml:"name,omitempty"`
	WelcomeText      *string `json:"welcomeText,omitempty" yaml:"welcomeText,omitempty"`
	ResponseTimeText *string `json:"responseTimeText,omitempty" yaml:"responseTimeText,omitempty"`
	LogoURL          *string `json:"logoUrl,omitempty" yaml:"logoUrl,omitempty"`
}

// StyleOptions is the partial form of StyleConfig.
type StyleOptions struct {
	PrimaryColor    *string `json:"primaryColor,omitempty" yaml:"primaryColor,omitempty"`
	SecondaryColor  *string `json:"secondaryColor,omitempty" yaml:"secondaryColor,omitempty"`
	Position        *string `json:"position,omitempty" yaml:"position,omitempty"`
	BackgroundColor *string `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	FontColor       *string `json:"fontColor,omitempty" yaml:"fontColor,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Endpoint: EndpointConfig{Route: DefaultRoute},
		Branding: BrandingConfig{
			Name:             "Chat Widget",
			WelcomeText:      "Hello! How can I help you today?",
			ResponseTimeText: "We usually respond within a few minutes",
		},
		Style: StyleConfig{
			PrimaryColor:    "#4f46e5",
			SecondaryColor:  "#818cf8",
			Position:        "right",
			BackgroundColor: "#ffffff",
			FontColor:       "#333333",
		},
		RegistrationFields: []string{"name", "email"},
		SuggestedQuestions: []string{},
	}
}

// Resolve merges opts over Defaults. An absent nested object keeps the
// default object; a present one is merged key by key.
func Resolve(opts Options) Config {
	cfg := Defaults()

	if e := opts.Endpoint; e != nil {
		set(&cfg.Endpoint.URL, e.URL)
		set(&cfg.Endpoint.Route, e.Route)
	}
	if cfg.Endpoint.Route == "" {
		cfg.Endpoint.Route = DefaultRoute
	}

	if b := opts.Branding; b != nil {
		set(&cfg.Branding.Name, b.Name)
		set(&cfg.Branding.WelcomeText, b.WelcomeText)
		set(&cfg.Branding.ResponseTimeText, b.ResponseTimeText)
		set(&cfg.Branding.LogoURL, b.LogoURL)
	}

	if s := opts.Style; s != nil {
		set(&cfg.Style.PrimaryColor, s.PrimaryColor)
		set(&cfg.Style.SecondaryColor, s.SecondaryColor)
		set(&cfg.Style.Position, s.Position)
		set(&cfg.Style.BackgroundColor, s.BackgroundColor)
		set(&cfg.Style.FontColor, s.FontColor)
	}

	if opts.RequireRegistration != nil {
		cfg.RequireRegistration = *opts.RequireRegistration
	}
	if opts.RegistrationFields != nil {
		cfg.RegistrationFields = slices.Clone(opts.RegistrationFields)
	}
	if opts.SuggestedQuestions != nil {
		cfg.SuggestedQuestions = slices.Clone(opts.SuggestedQuestions)
	}
	return cfg
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks the values a host needs for a working deployment.
// Resolve never calls it.
func (c Config) Validate() error {
	var errs []string

	if c.Endpoint.URL == "" {
		errs = append(errs, "endpoint.url is required")
	} else if u, err := url.Parse(c.Endpoint.URL); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("endpoint.url %q must be an absolute http(s) URL", c.Endpoint.URL))
	}

	if c.RequireRegistration && len(c.RegistrationFields) == 0 {
		errs = append(errs, "registrationFields must not be empty when registration is required")
	}
	seen := make(map[string]bool, len(c.RegistrationFields))
	for i, f := range c.RegistrationFields {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, fmt.Sprintf("registrationFields[%d] is empty", i))
			continue
		}
		if seen[f] {
			errs = append(errs, fmt.Sprintf("registrationFields[%d] duplicates %q", i, f))
		}
		seen[f] = true
	}

	if c.Style.Position != "left" && c.Style.Position != "right" {
		errs = append(errs, fmt.Sprintf("style.position %q must be left or right", c.Style.Position))
	}

	if len(errs) > 0 {
		return fmt.Errorf("widget config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (c Config) Clone() Config {
	c.RegistrationFields = slices.Clone(c.RegistrationFields)
	c.SuggestedQuestions = slices.Clone(c.SuggestedQuestions)
	return c
}
