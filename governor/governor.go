// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toolgate/platform/events"
	"toolgate/platform/shared/logger"
	"toolgate/platform/shared/types"
)

// Emitter receives the lifecycle events a tool call produces. The governor
// calls it synchronously, in order, from the invoking goroutine.
type Emitter func(ev events.AiEvent)

// Governor runs the full invocation pipeline for one tool call. It holds no
// per-call state; concurrent Exec calls are independent.
type Governor struct {
	registry *Registry
	policy   Policy
	log      *logger.Logger
}

// New creates a Governor over a registry. A nil policy falls back to the
// deny-by-default allowlist policy.
func New(registry *Registry, policy Policy) *Governor {
	if policy == nil {
		policy = NewAllowlistPolicy()
	}
	return &Governor{
		registry: registry,
		policy:   policy,
		log:      logger.New("governor"),
	}
}

// ExecOptions carries per-call options.
type ExecOptions struct {
	// ToolCallID is the caller-supplied tool call id. Empty means the
	// governor generates one.
	ToolCallID string
}

// Exec runs the pipeline for one tool call:
// resolve -> authorize -> validate input -> emit start -> execute ->
// validate output -> redact -> emit result.
//
// Event contract: an unregistered tool emits a single error result with no
// preceding start; a policy-denied call emits nothing (the denial is visible
// only in the return value, and the implementation is never invoked); every
// call that reaches the start event emits exactly one start and one result
// sharing the same tool call id.
func (g *Governor) Exec(ctx context.Context, rc types.RunContext, toolName string, rawArgs map[string]interface{}, opts *ExecOptions, emit Emitter) ToolResult {
	if emit == nil {
		emit = func(events.AiEvent) {}
	}

	callID := ""
	if opts != nil {
		callID = opts.ToolCallID
	}
	if callID == "" {
		callID = uuid.New().String()
	}

	// 1. Resolve
	reg, ok := g.registry.Lookup(toolName)
	if !ok {
		promToolCalls.WithLabelValues(toolName, string(CodeUnavailable)).Inc()
		g.log.Warn(rc.BillingAccountID, rc.RunID, "tool not registered",
			map[string]interface{}{"tool": toolName})
		emit(events.ToolCallResult{
			ToolCallID: callID,
			IsError:    true,
			Message:    fmt.Sprintf("tool %q is not available", toolName),
		})
		return ToolResult{ErrorCode: CodeUnavailable, Message: fmt.Sprintf("tool %q is not available", toolName)}
	}

	// 2. Authorize. Denied calls produce no events and no side effects.
	if !g.policy.IsAllowed(rc, toolName) {
		promToolCalls.WithLabelValues(toolName, string(CodePolicyDenied)).Inc()
		g.log.Warn(rc.BillingAccountID, rc.RunID, "tool call denied by policy",
			map[string]interface{}{"tool": toolName})
		return ToolResult{ErrorCode: CodePolicyDenied, Message: fmt.Sprintf("tool %q is not in the allow-set", toolName)}
	}

	// 3. Validate input
	if err := reg.Contract.ValidateInput(rawArgs); err != nil {
		promToolCalls.WithLabelValues(toolName, string(CodeValidation)).Inc()
		g.log.Warn(rc.BillingAccountID, rc.RunID, "tool input rejected",
			map[string]interface{}{"tool": toolName, "error": err.Error()})
		emit(events.ToolCallResult{
			ToolCallID: callID,
			IsError:    true,
			Message:    fmt.Sprintf("input for tool %q failed validation", toolName),
		})
		return ToolResult{ErrorCode: CodeValidation, Message: err.Error()}
	}

	// 4. Emit start. From here on, exactly one result event follows.
	emit(events.ToolCallStart{ToolCallID: callID, ToolName: toolName, Args: rawArgs})

	// 5. Execute
	started := time.Now()
	rawOutput, execErr := g.execute(ctx, reg.Impl, rawArgs)
	promToolDuration.WithLabelValues(toolName).Observe(float64(time.Since(started).Milliseconds()))
	if execErr != nil {
		promToolCalls.WithLabelValues(toolName, string(CodeExecution)).Inc()
		g.log.Error(rc.BillingAccountID, rc.RunID, "tool execution failed",
			map[string]interface{}{"tool": toolName, "error": execErr.Error()})
		emit(events.ToolCallResult{
			ToolCallID: callID,
			IsError:    true,
			Message:    fmt.Sprintf("tool %q execution failed", toolName),
		})
		return ToolResult{ErrorCode: CodeExecution, Message: execErr.Error()}
	}

	// 6. Validate output
	if err := reg.Contract.ValidateOutput(rawOutput); err != nil {
		promToolCalls.WithLabelValues(toolName, string(CodeValidation)).Inc()
		g.log.Error(rc.BillingAccountID, rc.RunID, "tool output rejected",
			map[string]interface{}{"tool": toolName, "error": err.Error()})
		emit(events.ToolCallResult{
			ToolCallID: callID,
			IsError:    true,
			Message:    fmt.Sprintf("output of tool %q failed validation", toolName),
		})
		return ToolResult{ErrorCode: CodeValidation, Message: err.Error()}
	}

	// 7. Redact. Hard-fail: raw output never leaves the governor, and the
	// emitted message carries no internal detail.
	redacted, err := reg.Contract.RedactOutput(rawOutput)
	if err != nil {
		promToolCalls.WithLabelValues(toolName, string(CodeRedactionFailed)).Inc()
		g.log.Error(rc.BillingAccountID, rc.RunID, "tool output redaction failed",
			map[string]interface{}{"tool": toolName, "error": err.Error()})
		emit(events.ToolCallResult{
			ToolCallID: callID,
			IsError:    true,
			Message:    "tool result could not be processed",
		})
		return ToolResult{ErrorCode: CodeRedactionFailed, Message: "tool result could not be processed"}
	}

	// 8. Emit result and return
	promToolCalls.WithLabelValues(toolName, outcomeOK).Inc()
	emit(events.ToolCallResult{ToolCallID: callID, Result: redacted})
	return ToolResult{OK: true, Value: redacted}
}

// execute invokes the implementation, converting a panic into an error so a
// misbehaving tool cannot take down the run.
func (g *Governor) execute(ctx context.Context, impl Implementation, args map[string]interface{}) (out map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("tool implementation panicked: %v", r)
		}
	}()
	return impl.Execute(ctx, args)
}
