// Package extract turns a conversation transcript into a structured case
// draft with one constrained generation call, then scrubs every value that
// the human never actually said.
package extract

import (
	"github.com/soyeahso/hotline/internal/domain"
)

// FieldType is the scalar type of a schema field.
type FieldType string

const (
	String  FieldType = "string"
	Integer FieldType = "integer"
)

// Field describes one case attribute.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Enum        []string
	// Derived fields are classifications the model infers from the
	// conversation, so they are not checked against the user's words.
	Derived  bool
	Required bool
}

// Schema is the field set collected for one domain.
type Schema struct {
	Name         string
	Domain       domain.Domain
	Subject      string
	Fields       []Field
	Confirmation string
}

// Required lists the names of required fields in declaration order.
func (s *Schema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// JSONSchema renders the strict response schema. Every property is listed
// as required and nullable, which is what strict structured output expects.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	names := make([]any, 0, len(s.Fields))
	for _, f := range s.Fields {
		p := map[string]any{
			"type":        []any{string(f.Type), "null"},
			"description": f.Description,
		}
		if len(f.Enum) > 0 {
			enum := make([]any, 0, len(f.Enum)+1)
			for _, e := range f.Enum {
				enum = append(enum, e)
			}
			p["enum"] = append(enum, nil)
		}
		props[f.Name] = p
		names = append(names, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             names,
		"additionalProperties": false,
	}
}
