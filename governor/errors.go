// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package governor

import "errors"

// ErrorCode classifies why a tool call failed.
type ErrorCode string

const (
	// CodeUnavailable: the tool is not registered
	CodeUnavailable ErrorCode = "unavailable"
	// CodePolicyDenied: the tool is not in the caller's allow-set
	CodePolicyDenied ErrorCode = "policy_denied"
	// CodeValidation: input or output failed schema validation
	CodeValidation ErrorCode = "validation"
	// CodeExecution: the tool implementation failed or panicked
	CodeExecution ErrorCode = "execution"
	// CodeRedactionFailed: the output allowlist is missing or redaction failed
	CodeRedactionFailed ErrorCode = "redaction_failed"
)

// ToolResult is the discriminated outcome of one tool invocation.
type ToolResult struct {
	OK        bool
	Value     map[string]interface{}
	ErrorCode ErrorCode
	Message   string
}

var (
	// ErrEmptyAllowlist is returned when a contract is built without any
	// allowlisted output fields
	ErrEmptyAllowlist = errors.New("tool contract allowlist must not be empty")

	// ErrToolExists is returned when registering a tool name twice
	ErrToolExists = errors.New("tool already registered")

	// ErrNilImplementation is returned when registering without an implementation
	ErrNilImplementation = errors.New("tool implementation must not be nil")
)
