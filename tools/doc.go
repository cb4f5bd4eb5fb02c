// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

// Package tools provides the built-in tool implementations shipped with the
// gateway: echo, http_fetch, and pg_query. Each tool exports a contract
// (input schema, output schema, output allowlist) plus an implementation
// suitable for registration with the governor.
//
// Tools never see the raw caller payload; the governor validates input
// against the contract first. Symmetrically, nothing a tool returns reaches
// a consumer until it has been schema-validated and redacted down to the
// contract's allowlist.
package tools
