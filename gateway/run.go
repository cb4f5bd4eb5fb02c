// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"toolgate/platform/events"
	"toolgate/platform/governor"
	"toolgate/platform/ledger"
	"toolgate/platform/shared/types"
)

// usageSourceGateway is the source system stamped on usage facts that
// originate from the gateway's own model turns
const usageSourceGateway = "gateway"

// RunRequest is the body of POST /api/v1/runs. A run executes the requested
// tool calls in order under the caller's allowlist, then reports usage for
// the model turn that drove them.
type RunRequest struct {
	Prompt    string            `json:"prompt"`
	Provider  string            `json:"provider,omitempty"`
	Model     string            `json:"model,omitempty"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
}

// ToolCallRequest names one tool invocation within a run
type ToolCallRequest struct {
	ID   string                 `json:"id,omitempty"`
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// runSource generates the event stream for one run. It is a step generator:
// each Next call either drains buffered events or advances the run by one
// step (one tool call, then the closing text, usage fact, and done event).
// The governor's emit callback is synchronous, so no extra goroutine is
// needed between orchestration and the relay pump.
type runSource struct {
	gov     *governor.Governor
	pricing *ledger.PricingConfig
	rc      types.RunContext
	req     RunRequest

	pending []events.AiEvent
	step    int
	started time.Time
	closed  bool
}

func newRunSource(gov *governor.Governor, pricing *ledger.PricingConfig, rc types.RunContext, req RunRequest) *runSource {
	return &runSource{
		gov:     gov,
		pricing: pricing,
		rc:      rc,
		req:     req,
		started: time.Now(),
	}
}

// Next yields the run's events in order
func (s *runSource) Next(ctx context.Context) (events.AiEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.closed {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.advance(ctx)
	}
}

// advance runs one step of the orchestration, buffering its events
func (s *runSource) advance(ctx context.Context) {
	if s.step < len(s.req.ToolCalls) {
		call := s.req.ToolCalls[s.step]
		s.step++

		s.gov.Exec(ctx, s.rc, call.Tool, call.Args,
			&governor.ExecOptions{ToolCallID: call.ID},
			func(ev events.AiEvent) { s.pending = append(s.pending, ev) })
		return
	}

	// All tool calls done: close the run with the model turn's output and
	// its usage fact
	s.pending = append(s.pending,
		events.TextDelta{Delta: s.summaryText()},
		events.UsageReport{Fact: s.usageFact()},
		events.Done{},
	)
	s.closed = true
}

func (s *runSource) summaryText() string {
	executed := s.step
	if executed == 0 {
		return "run completed with no tool calls"
	}
	return fmt.Sprintf("run completed: %d tool call(s) executed", executed)
}

// usageFact builds the billable fact for the run's model turn. Token counts
// are estimated from payload sizes until a model backend reports real ones.
func (s *runSource) usageFact() ledger.UsageFact {
	provider := s.req.Provider
	if provider == "" {
		provider = "anthropic"
	}
	model := s.req.Model
	if model == "" {
		model = "*"
	}

	inputTokens := estimateTokens(s.req.Prompt)
	outputTokens := 64 + 16*len(s.req.ToolCalls)

	cost := s.pricing.CalculateCost(provider, model, inputTokens, outputTokens)

	return ledger.UsageFact{
		RunID:            s.rc.RunID,
		Attempt:          s.rc.Attempt,
		BillingAccountID: s.rc.BillingAccountID,
		VirtualKeyID:     s.rc.VirtualKeyID,
		Source:           usageSourceGateway,
		UsageUnitID:      uuid.New().String(),
		Provider:         provider,
		Model:            model,
		CostUSD:          &cost,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		LatencyMs:        time.Since(s.started).Milliseconds(),
	}
}

// estimateTokens approximates token count from text length
func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 1
	}
	return len(trimmed)/4 + 1
}
