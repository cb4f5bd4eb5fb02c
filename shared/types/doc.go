// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

/*
Package types provides shared type definitions used across ToolGate components.

# Overview

This package contains common types that are shared between the Governor,
Relay, Ledger, and Gateway components. It provides a single source of truth
for shared data structures.

# RunContext

Every execution attempt carries a RunContext that correlates all events and
charges produced on its behalf. The context is created once per attempt by
the component that accepted the request and is passed explicitly to every
call that needs correlation:

	rc := types.RunContext{
	    RunID:            "run-7f3a",
	    Attempt:          0,
	    IngressRequestID: "req-19c2",
	    BillingAccountID: "acct-demo",
	    VirtualKeyID:     "vk-demo",
	    AllowedTools:     []string{"echo", "http_fetch"},
	}

RunContext is a value type and is never mutated after construction. No
component reads it from ambient or global state.
*/
package types
