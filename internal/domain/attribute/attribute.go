package attribute

import (
	"fmt"

	"github.com/assetgrid/searchsync/internal/domain"
)

// Type is the declared type of a user-defined attribute.
type Type string

// Attribute type constants.
const (
	Number  Type = "number"
	Boolean Type = "boolean"
	Text    Type = "text"
	Select  Type = "select"
	Tags    Type = "tags"
)

// Parse validates a raw attribute type string.
func Parse(s string) (Type, error) {
	switch t := Type(s); t {
	case Number, Boolean, Text, Select, Tags:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", domain.ErrInvalidAttribute, s)
	}
}

// Definition describes a user-defined attribute of the tenant's assets.
// Name is unique per tenant. Values is only set for Select and Tags.
type Definition struct {
	Name   string   `json:"name"`
	Type   Type     `json:"type"`
	Values []string `json:"values,omitempty"`
}

// Validate checks the definition for internal consistency.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidAttribute)
	}
	if _, err := Parse(string(d.Type)); err != nil {
		return err
	}
	if len(d.Values) > 0 && d.Type != Select && d.Type != Tags {
		return fmt.Errorf("%w: %q: value list only valid for select and tags", domain.ErrInvalidAttribute, d.Name)
	}
	return nil
}

// FieldType returns the search-engine field type for an attribute type.
// The mapping is a pure function of the declared type; changing the type of
// an already mapped attribute requires a reindex.
func FieldType(t Type) (string, error) {
	switch t {
	case Number:
		return "float", nil
	case Boolean:
		return "boolean", nil
	case Select, Tags:
		return "keyword", nil
	case Text:
		return "text", nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", domain.ErrInvalidAttribute, t)
	}
}

// ByName indexes definitions by attribute name.
func ByName(defs []Definition) map[string]Definition {
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return m
}
