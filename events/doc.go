// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

/*
Package events defines the tagged event stream produced by one agent run.

# Overview

An AiEvent describes one step of a run: streamed text, tool lifecycle,
a usage report, or the terminal outcome. The union is sealed: every variant
lives in this package, and consumers switch exhaustively on the concrete
type so a new variant fails to compile everywhere it matters.

Stream contract: an upstream producer emits zero or more non-terminal events
followed by exactly one terminal event (Done or RunError), which is always
last. Per tool call, ToolCallStart precedes ToolCallResult and both carry the
same ToolCallID.

UsageReport events are billing-internal. The relay consumes them and they
never reach a UI consumer.
*/
package events
