// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package governor

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RedactFunc maps a schema-valid tool output to its downstream-visible
// subset. The governor verifies the returned map against the contract's
// allowlist, so a redact function can narrow but never widen exposure.
type RedactFunc func(output map[string]interface{}) (map[string]interface{}, error)

// ToolContract describes the validated surface of one tool: its name, input
// and output JSON Schemas, and the allowlist of output fields permitted to
// reach any downstream consumer.
type ToolContract struct {
	Name         string
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
	allowlist    map[string]bool
	redact       RedactFunc
}

// ContractOption configures a ToolContract
type ContractOption func(*ToolContract)

// WithRedactFunc installs a custom redact function. Its result is still
// checked against the allowlist.
func WithRedactFunc(fn RedactFunc) ContractOption {
	return func(c *ToolContract) { c.redact = fn }
}

// NewContract compiles a tool contract. Both schemas are JSON Schema draft
// 2020-12 documents; the allowlist must be non-empty.
func NewContract(name, inputSchema, outputSchema string, allowlist []string, opts ...ContractOption) (*ToolContract, error) {
	if name == "" {
		return nil, fmt.Errorf("tool contract name must not be empty")
	}
	if len(allowlist) == 0 {
		return nil, ErrEmptyAllowlist
	}

	in, err := compileSchema(name, "input", inputSchema)
	if err != nil {
		return nil, err
	}
	out, err := compileSchema(name, "output", outputSchema)
	if err != nil {
		return nil, err
	}

	c := &ToolContract{
		Name:         name,
		inputSchema:  in,
		outputSchema: out,
		allowlist:    make(map[string]bool, len(allowlist)),
	}
	for _, field := range allowlist {
		if field == "" {
			return nil, fmt.Errorf("tool %q: allowlist field must not be empty", name)
		}
		c.allowlist[field] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func compileSchema(tool, kind, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://toolgate.schemas.local/tools/%s/%s.schema.json", tool, kind)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("tool %q: %s schema load failed: %w", tool, kind, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %s schema compile failed: %w", tool, kind, err)
	}
	return compiled, nil
}

// ValidateInput checks args against the input schema.
func (c *ToolContract) ValidateInput(args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := c.inputSchema.Validate(toJSONValue(args)); err != nil {
		return fmt.Errorf("input validation failed for tool %q: %w", c.Name, err)
	}
	return nil
}

// ValidateOutput checks the raw implementation output against the output
// schema.
func (c *ToolContract) ValidateOutput(output map[string]interface{}) error {
	if output == nil {
		output = map[string]interface{}{}
	}
	if err := c.outputSchema.Validate(toJSONValue(output)); err != nil {
		return fmt.Errorf("output validation failed for tool %q: %w", c.Name, err)
	}
	return nil
}

// Allowlist returns the allowlisted output field names.
func (c *ToolContract) Allowlist() []string {
	fields := make([]string, 0, len(c.allowlist))
	for f := range c.allowlist {
		fields = append(fields, f)
	}
	return fields
}

// RedactOutput reduces a validated output to its allowlisted subset. Any
// failure is hard: an empty allowlist, a failing redact function, or a
// redact function exposing a non-allowlisted field all return an error, and
// raw output is never passed through.
func (c *ToolContract) RedactOutput(output map[string]interface{}) (redacted map[string]interface{}, err error) {
	if len(c.allowlist) == 0 {
		return nil, ErrEmptyAllowlist
	}

	if c.redact != nil {
		defer func() {
			if r := recover(); r != nil {
				redacted = nil
				err = fmt.Errorf("redact function for tool %q panicked: %v", c.Name, r)
			}
		}()
		out, rerr := c.redact(output)
		if rerr != nil {
			return nil, fmt.Errorf("redact function for tool %q failed: %w", c.Name, rerr)
		}
		for field := range out {
			if !c.allowlist[field] {
				return nil, fmt.Errorf("redact function for tool %q exposed non-allowlisted field %q", c.Name, field)
			}
		}
		return out, nil
	}

	// Default redaction projects the allowlisted fields
	out := make(map[string]interface{}, len(c.allowlist))
	for field := range c.allowlist {
		if v, ok := output[field]; ok {
			out[field] = v
		}
	}
	return out, nil
}

// toJSONValue normalizes Go values into the shapes the schema validator
// accepts (the result of encoding/json decoding). Tool implementations build
// outputs in Go code rather than decoding them from JSON, so ints and nested
// structs need the round-trip treatment.
func toJSONValue(v map[string]interface{}) interface{} {
	return normalize(v)
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = normalize(val)
		}
		return s
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
