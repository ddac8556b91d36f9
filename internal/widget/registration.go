package widget

import (
	"fmt"
	"slices"
	"strings"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// InvalidFieldsError lists the registration fields that were missing or
// blank, in configured order.
type InvalidFieldsError struct {
	Fields []string
}

func (e *InvalidFieldsError) Error() string {
	return fmt.Sprintf("widget: invalid registration fields: %s", strings.Join(e.Fields, ", "))
}

// Gate validates the registration form.
type Gate struct {
	fields []string
}

// NewGate creates a gate for the configured field names.
func NewGate(fields []string) *Gate {
	return &Gate{fields: slices.Clone(fields)}
}

// Fields returns the configured field names.
func (g *Gate) Fields() []string { return slices.Clone(g.fields) }

// Validate checks every configured field and returns the trimmed values.
// Extra keys in values are ignored. Nothing is returned on failure.
func (g *Gate) Validate(values map[string]string) (map[string]string, error) {
	info := make(map[string]string, len(g.fields))
	var invalid []string
	for _, f := range g.fields {
		v := strings.TrimSpace(values[f])
		if v == "" {
			invalid = append(invalid, f)
			continue
		}
		info[f] = v
	}
	if len(invalid) > 0 {
		return nil, &InvalidFieldsError{Fields: invalid}
	}
	return info, nil
}

// Form returns the input descriptions for every configured field.
func (g *Gate) Form() []protocol.Field {
	out := make([]protocol.Field, len(g.fields))
	for i, f := range g.fields {
		out[i] = FieldSpec(f)
	}
	return out
}

// FieldSpec describes how the form input for a field is drawn.
func FieldSpec(name string) protocol.Field {
	switch name {
	case "email":
		return protocol.Field{Name: name, InputType: "email", Placeholder: "Your email"}
	case "name":
		return protocol.Field{Name: name, InputType: "text", Placeholder: "Your name"}
	default:
		return protocol.Field{Name: name, InputType: "text", Placeholder: "Your " + name}
	}
}
