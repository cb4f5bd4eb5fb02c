// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"fmt"
	"time"

	"toolgate/platform/governor"
)

const echoInputSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"value": {"type": "string", "maxLength": 4096}
	},
	"required": ["value"],
	"additionalProperties": false
}`

const echoOutputSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"result": {"type": "string"}
	},
	"required": ["result"]
}`

// EchoContract builds the contract for the echo tool. Only the result field
// is allowlisted; the internal timing field the implementation attaches is
// stripped by redaction.
func EchoContract() (*governor.ToolContract, error) {
	return governor.NewContract("echo", echoInputSchema, echoOutputSchema, []string{"result"})
}

// EchoImplementation returns the echo tool body. It exists mainly as a smoke
// tool: a registered, schema-complete tool with no external dependencies.
func EchoImplementation() governor.Implementation {
	return governor.ImplementationFunc(func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		value, _ := args["value"].(string)
		return map[string]interface{}{
			"result": fmt.Sprintf("echoed: %s", value),
			// Internal diagnostics, never allowlisted
			"processed_at": time.Now().UTC().Format(time.RFC3339Nano),
		}, nil
	})
}
