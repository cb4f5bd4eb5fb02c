// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package governor

import "toolgate/platform/shared/types"

// Policy decides whether a tool may run for a given execution context.
// Implementations must be pure: no side effects, no errors, a plain yes/no.
type Policy interface {
	IsAllowed(rc types.RunContext, toolName string) bool
}

// AllowlistPolicy is the deny-by-default policy: a tool is permitted only if
// the context carries an explicit allow-set containing its name. A nil or
// empty allow-set denies everything.
type AllowlistPolicy struct{}

// NewAllowlistPolicy creates the default deny-by-default policy
func NewAllowlistPolicy() *AllowlistPolicy {
	return &AllowlistPolicy{}
}

// IsAllowed reports whether toolName is in the context's allow-set.
func (p *AllowlistPolicy) IsAllowed(rc types.RunContext, toolName string) bool {
	if toolName == "" {
		return false
	}
	return rc.HasAllowedTool(toolName)
}
