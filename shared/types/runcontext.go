// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package types

// RunContext is the minimal identity correlating all events and charges for
// one execution attempt. It is created once per attempt, threaded explicitly
// through Governor, Relay, and Ledger calls, and never mutated.
//
// Fields:
//   - RunID: canonical identifier for the run
//   - Attempt: retry ordinal, 0 for the first attempt
//   - IngressRequestID: delivery-layer correlation id, distinct from RunID
//   - BillingAccountID: account charged for usage produced by this attempt
//   - VirtualKeyID: API key identity within the billing account
//   - AllowedTools: explicit tool allow-set for this execution; a nil or
//     empty set denies every tool (deny-by-default)
type RunContext struct {
	RunID            string
	Attempt          int
	IngressRequestID string
	BillingAccountID string
	VirtualKeyID     string
	AllowedTools     []string
}

// HasAllowedTool reports whether name is present in the context's allow-set.
// A nil or empty allow-set always answers false.
func (rc RunContext) HasAllowedTool(name string) bool {
	for _, t := range rc.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}
