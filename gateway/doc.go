// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

// Package gateway is the HTTP surface of ToolGate. It authenticates callers,
// rate-limits per billing account, runs tool calls through the governor, and
// streams run events to the client over SSE while the relay commits usage
// facts to the ledger behind the stream.
package gateway
