// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

/*
Package governor executes tool calls under a deny-by-default policy.

# Overview

The governor is the single place a tool call can be allowed or denied. Every
invocation runs the same strictly ordered pipeline:

	resolve -> authorize -> validate input -> emit start ->
	execute -> validate output -> redact -> emit result

Each stage short-circuits to a typed ToolResult on failure. Denied calls
never reach the tool implementation, so denied tools never produce side
effects. Every call that reaches the emit-start stage produces exactly one
ToolCallStart and one ToolCallResult event sharing the same tool call id.

# Contracts

Tools register a ToolContract: JSON Schemas (draft 2020-12) for input and
output, plus a non-empty allowlist naming the output fields that may reach
any downstream consumer. Output that validates is then redacted to the
allowlisted subset; a missing or failing redaction is a hard failure, never
a silent pass-through of raw output.

# Concurrency

A Governor is safe for concurrent use. Parallel tool calls run as
independent invocations sharing no mutable state; correlation comes from the
explicitly passed RunContext.
*/
package governor
