package functions

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validator checks a decoded argument value against a parameter schema.
type Validator interface {
	Validate(schema map[string]any, value any) error
}

// SchemaChecker is implemented by validators that can reject a malformed
// schema when a function is registered.
type SchemaChecker interface {
	CheckSchema(schema map[string]any) error
}

// SchemaValidator validates arguments with JSON Schema. Resolved schemas are
// cached by their JSON encoding.
type SchemaValidator struct {
	resolved sync.Map // string -> *jsonschema.Resolved
}

// NewSchemaValidator creates a JSON Schema validator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// Validate implements Validator.
func (v *SchemaValidator) Validate(schema map[string]any, value any) error {
	resolved, err := v.resolve(schema)
	if err != nil {
		return err
	}
	return resolved.Validate(value)
}

// CheckSchema implements SchemaChecker.
func (v *SchemaValidator) CheckSchema(schema map[string]any) error {
	_, err := v.resolve(schema)
	return err
}

// draft202012 is the only dialect jsonschema-go validates against.
const draft202012 = "https://json-schema.org/draft/2020-12/schema"

// normalizeDialect drops a top-level $schema naming draft-04, 06 or 07 so the
// schema validates under 2020-12, whose keywords cover the ones tool schemas
// use. Any other dialect is rejected.
func normalizeDialect(schema map[string]any) (map[string]any, error) {
	raw, ok := schema["$schema"]
	if !ok {
		return schema, nil
	}
	dialect, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("$schema must be a string, got %T", raw)
	}
	switch trimmed := strings.TrimSuffix(dialect, "#"); {
	case dialect == draft202012:
		return schema, nil
	case trimmed == draft202012,
		strings.HasPrefix(trimmed, "http://json-schema.org/draft-0"),
		strings.HasPrefix(trimmed, "https://json-schema.org/draft-0"):
		out := maps.Clone(schema)
		delete(out, "$schema")
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported $schema %q", dialect)
	}
}

func (v *SchemaValidator) resolve(schema map[string]any) (*jsonschema.Resolved, error) {
	schema, err := normalizeDialect(schema)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	key := string(data)
	if cached, ok := v.resolved.Load(key); ok {
		return cached.(*jsonschema.Resolved), nil
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	v.resolved.Store(key, resolved)
	return resolved, nil
}

var (
	_ Validator     = (*SchemaValidator)(nil)
	_ SchemaChecker = (*SchemaValidator)(nil)
)
