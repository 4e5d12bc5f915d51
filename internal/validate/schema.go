// Package validate compiles and evaluates Draft-07 JSON schemas for
// default-config values.
package validate

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ctxconfig/cac/internal/apperr"
)

// CompileSchema compiles schema (a decoded JSON value, typically
// map[string]any) as a Draft-07 schema. It round-trips through JSON
// encoding because the jsonschema compiler reads from a resource loader,
// not a pre-decoded value.
func CompileSchema(schema any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, apperr.BadArgument("schema is not valid JSON: %v", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	const resourceName = "schema.json"
	if err := c.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, apperr.BadArgument("schema does not compile: %v", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, apperr.BadArgument("schema does not compile: %v", err)
	}
	return compiled, nil
}

// Validate compiles schema and validates value against it, returning a
// BadArgument error describing the first failure.
func Validate(schema any, value any) error {
	compiled, err := CompileSchema(schema)
	if err != nil {
		return err
	}
	return ValidateCompiled(compiled, value)
}

// ValidateCompiled validates value against an already-compiled schema.
// value is re-marshaled through JSON so that plain Go types (not just
// decoded any values) validate the same way a wire payload would.
func ValidateCompiled(schema *jsonschema.Schema, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apperr.BadArgument("value is not valid JSON: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return apperr.BadArgument("value is not valid JSON: %v", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return apperr.BadArgument("value does not satisfy schema: %v", err)
	}
	return nil
}
