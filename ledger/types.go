// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"fmt"
	"time"
)

// UsageFact is a billing-relevant observation about one unit of work within
// a run. Facts are produced by the orchestrator/adapter layer and consumed
// once by the ledger. Delivery is at-least-once; the ledger deduplicates.
type UsageFact struct {
	RunID            string
	Attempt          int
	BillingAccountID string
	VirtualKeyID     string
	// Source identifies the origin system of the fact (e.g. "langgraph",
	// "openrouter"). It becomes the receipt's SourceSystem.
	Source string
	// UsageUnitID is the origin-assigned id of the billable unit. Facts
	// without one are non-authoritative hints and are never billed.
	UsageUnitID string
	Model       string
	// CostUSD is the provider cost. Nil means the source has not supplied
	// cost; whether that is a deferral or an invariant violation depends on
	// the source.
	CostUSD      *float64
	InputTokens  int
	OutputTokens int
	Provider     string
	GraphID      string
	LatencyMs    int64
	// ProviderCallID is the provider-side id of the underlying LLM call.
	ProviderCallID string
}

// SourceReference builds the idempotency reference for this fact:
// runID/attempt/usageUnitID. Combined with Source it uniquely identifies the
// billable unit across redeliveries.
func (f UsageFact) SourceReference() string {
	return fmt.Sprintf("%s/%d/%s", f.RunID, f.Attempt, f.UsageUnitID)
}

// ReceiptKind classifies what a charge receipt bills for.
type ReceiptKind string

const (
	ReceiptKindLLMCall ReceiptKind = "llm_call"
	ReceiptKindToolUse ReceiptKind = "tool_use"
)

// LLMCallDetail is the call-level sub-record persisted with a receipt.
type LLMCallDetail struct {
	ProviderCallID string `json:"provider_call_id,omitempty"`
	Model          string `json:"model,omitempty"`
	Provider       string `json:"provider,omitempty"`
	InputTokens    int    `json:"input_tokens"`
	OutputTokens   int    `json:"output_tokens"`
	LatencyMs      int64  `json:"latency_ms"`
	GraphID        string `json:"graph_id,omitempty"`
}

// ChargeReceipt is the persisted record of one billed unit of usage.
// (SourceSystem, SourceReference) is unique in storage; a colliding write is
// a no-op, not an error.
type ChargeReceipt struct {
	ID               int64
	BillingAccountID string
	VirtualKeyID     string
	RunID            string
	Attempt          int
	IngressRequestID string
	ChargedCredits   int64
	ResponseCostUSD  *float64
	ProviderCallID   string
	Provenance       string
	ChargeReason     string
	SourceSystem     string
	SourceReference  string
	ReceiptKind      ReceiptKind
	LLMCall          LLMCallDetail
	CreatedAt        time.Time
}

// Commit outcome classifications, recorded in logs and metrics.
const (
	OutcomeCommitted          = "committed"
	OutcomeDuplicate          = "duplicate"
	OutcomeSkippedNoUnit      = "skipped_no_unit"
	OutcomeDeferred           = "deferred"
	OutcomeInvariantViolation = "invariant_violation"
	OutcomeDBError            = "db_error"
	OutcomeUnknown            = "unknown"
)
