// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package events

import (
	"encoding/json"
	"fmt"

	"toolgate/platform/ledger"
)

// Kind is the event type discriminator used on the wire.
type Kind string

const (
	KindTextDelta      Kind = "text_delta"
	KindToolCallStart  Kind = "tool_call_start"
	KindToolCallResult Kind = "tool_call_result"
	KindUsageReport    Kind = "usage_report"
	KindError          Kind = "error"
	KindDone           Kind = "done"
)

// Run-level error codes carried by a terminal RunError.
const (
	RunErrTimeout  = "timeout"
	RunErrAborted  = "aborted"
	RunErrInternal = "internal"
)

// AiEvent is one step of a run. The union is sealed; switch on the concrete
// type and handle every variant.
type AiEvent interface {
	Kind() Kind
	// Terminal reports whether this event ends the run's stream.
	Terminal() bool
	sealed()
}

// TextDelta is a chunk of streamed model output.
type TextDelta struct {
	Delta string
}

// ToolCallStart marks the beginning of a validated tool invocation. Args is
// the schema-validated input, not the raw caller payload.
type ToolCallStart struct {
	ToolCallID string
	ToolName   string
	Args       map[string]interface{}
}

// ToolCallResult carries the redacted output of a tool call, or an error
// message when IsError is set. ToolCallID matches the corresponding start
// event, except for the unregistered-tool case which emits a result with no
// preceding start.
type ToolCallResult struct {
	ToolCallID string
	Result     map[string]interface{}
	IsError    bool
	Message    string
}

// UsageReport wraps a billing fact observed during the run. Never forwarded
// to UI consumers.
type UsageReport struct {
	Fact ledger.UsageFact
}

// RunError is the failed terminal outcome of a run.
type RunError struct {
	Code    string // timeout, aborted, internal
	Message string
}

// Done is the successful terminal outcome of a run.
type Done struct{}

func (TextDelta) Kind() Kind      { return KindTextDelta }
func (ToolCallStart) Kind() Kind  { return KindToolCallStart }
func (ToolCallResult) Kind() Kind { return KindToolCallResult }
func (UsageReport) Kind() Kind    { return KindUsageReport }
func (RunError) Kind() Kind       { return KindError }
func (Done) Kind() Kind           { return KindDone }

func (TextDelta) Terminal() bool      { return false }
func (ToolCallStart) Terminal() bool  { return false }
func (ToolCallResult) Terminal() bool { return false }
func (UsageReport) Terminal() bool    { return false }
func (RunError) Terminal() bool       { return true }
func (Done) Terminal() bool           { return true }

func (TextDelta) sealed()      {}
func (ToolCallStart) sealed()  {}
func (ToolCallResult) sealed() {}
func (UsageReport) sealed()    {}
func (RunError) sealed()       {}
func (Done) sealed()           {}

func (e RunError) Error() string {
	return fmt.Sprintf("run failed (%s): %s", e.Code, e.Message)
}

// envelope is the wire shape for UI-facing events.
type envelope struct {
	Type       Kind                   `json:"type"`
	Delta      string                 `json:"delta,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	ToolName   string                 `json:"tool_name,omitempty"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	IsError    bool                   `json:"is_error,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Code       string                 `json:"code,omitempty"`
}

// Marshal renders a UI-facing event as JSON. UsageReport is rejected: billing
// facts must not be serialized onto the UI wire.
func Marshal(ev AiEvent) ([]byte, error) {
	var env envelope
	switch e := ev.(type) {
	case TextDelta:
		env = envelope{Type: KindTextDelta, Delta: e.Delta}
	case ToolCallStart:
		env = envelope{Type: KindToolCallStart, ToolCallID: e.ToolCallID, ToolName: e.ToolName, Args: e.Args}
	case ToolCallResult:
		env = envelope{Type: KindToolCallResult, ToolCallID: e.ToolCallID, Result: e.Result, IsError: e.IsError, Message: e.Message}
	case RunError:
		env = envelope{Type: KindError, Code: e.Code, Message: e.Message}
	case Done:
		env = envelope{Type: KindDone}
	case UsageReport:
		return nil, fmt.Errorf("usage_report events are billing-internal and cannot be marshaled")
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind())
	}
	return json.Marshal(env)
}
