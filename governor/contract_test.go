// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package governor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	echoInputSchema = `{
		"type": "object",
		"properties": {"value": {"type": "string"}},
		"required": ["value"],
		"additionalProperties": false
	}`
	echoOutputSchema = `{
		"type": "object",
		"properties": {
			"result": {"type": "string"},
			"debug":  {"type": "string"}
		},
		"required": ["result"]
	}`
)

func echoContract(t *testing.T, opts ...ContractOption) *ToolContract {
	t.Helper()
	c, err := NewContract("echo", echoInputSchema, echoOutputSchema, []string{"result"}, opts...)
	require.NoError(t, err)
	return c
}

func TestNewContract_Validation(t *testing.T) {
	t.Run("empty allowlist rejected", func(t *testing.T) {
		_, err := NewContract("echo", echoInputSchema, echoOutputSchema, nil)
		assert.ErrorIs(t, err, ErrEmptyAllowlist)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := NewContract("", echoInputSchema, echoOutputSchema, []string{"result"})
		assert.Error(t, err)
	})

	t.Run("malformed schema rejected", func(t *testing.T) {
		_, err := NewContract("echo", `{"type": "nope"}`, echoOutputSchema, []string{"result"})
		assert.Error(t, err)
	})
}

func TestContract_ValidateInput(t *testing.T) {
	c := echoContract(t)

	assert.NoError(t, c.ValidateInput(map[string]interface{}{"value": "hello"}))
	assert.Error(t, c.ValidateInput(map[string]interface{}{"value": 42}))
	assert.Error(t, c.ValidateInput(map[string]interface{}{}))
	assert.Error(t, c.ValidateInput(map[string]interface{}{"value": "hi", "extra": true}))
	assert.Error(t, c.ValidateInput(nil))
}

func TestContract_ValidateOutput(t *testing.T) {
	c := echoContract(t)

	assert.NoError(t, c.ValidateOutput(map[string]interface{}{"result": "ok"}))
	assert.NoError(t, c.ValidateOutput(map[string]interface{}{"result": "ok", "debug": "trace"}))
	assert.Error(t, c.ValidateOutput(map[string]interface{}{"debug": "no result"}))
}

func TestContract_RedactOutput_Default(t *testing.T) {
	c := echoContract(t)

	out, err := c.RedactOutput(map[string]interface{}{
		"result": "echoed",
		"debug":  "internal trace",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"result": "echoed"}, out)
}

func TestContract_RedactOutput_CustomFunc(t *testing.T) {
	t.Run("narrowing redact passes", func(t *testing.T) {
		c := echoContract(t, WithRedactFunc(func(out map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"result": out["result"]}, nil
		}))
		out, err := c.RedactOutput(map[string]interface{}{"result": "ok", "debug": "x"})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"result": "ok"}, out)
	})

	t.Run("widening redact is a hard failure", func(t *testing.T) {
		c := echoContract(t, WithRedactFunc(func(out map[string]interface{}) (map[string]interface{}, error) {
			return out, nil // passes debug through
		}))
		_, err := c.RedactOutput(map[string]interface{}{"result": "ok", "debug": "x"})
		assert.Error(t, err)
	})

	t.Run("failing redact is a hard failure", func(t *testing.T) {
		c := echoContract(t, WithRedactFunc(func(out map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("cannot redact")
		}))
		_, err := c.RedactOutput(map[string]interface{}{"result": "ok"})
		assert.Error(t, err)
	})

	t.Run("panicking redact is recovered into an error", func(t *testing.T) {
		c := echoContract(t, WithRedactFunc(func(out map[string]interface{}) (map[string]interface{}, error) {
			panic("redaction bug")
		}))
		_, err := c.RedactOutput(map[string]interface{}{"result": "ok"})
		assert.Error(t, err)
	})
}

func TestContract_NormalizesGoValues(t *testing.T) {
	c, err := NewContract("count",
		`{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`,
		`{"type":"object","properties":{"total":{"type":"number"}},"required":["total"]}`,
		[]string{"total"})
	require.NoError(t, err)

	// Go ints (as opposed to json-decoded float64s) must validate
	assert.NoError(t, c.ValidateInput(map[string]interface{}{"n": 3}))
	assert.NoError(t, c.ValidateOutput(map[string]interface{}{"total": int64(10)}))
}
