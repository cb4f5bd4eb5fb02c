// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

/*
Package relay decouples a run's authoritative event stream from its
best-effort UI stream.

# Overview

A Relay consumes one run's upstream events and fans them out to exactly two
sinks: usage facts go to the ledger, everything else to a UI-facing stream.
The pump runs to completion regardless of whether anyone reads the UI
stream, so a slow or vanished UI consumer can never affect billing
correctness.

# Pump

Start launches the pump exactly once. For each upstream event:

  - after the terminal event, further events are protocol violations:
    logged and dropped
  - a UsageReport is committed to the ledger and never forwarded
  - everything else is queued for the UI; Done or RunError marks the
    stream terminated

If the upstream source fails, the pump synthesizes a single terminal
RunError for the UI and records the failure, observable through Err once
Done is closed. The caller of the relay is never blocked or failed by pump
errors.

# UI stream

Events returns a single-consumer stream that ends immediately after
yielding a terminal event. Termination is protocol-driven rather than
pump-state-driven, so a Done queued before the pump finishes bookkeeping
still ends the stream cleanly. The queue is bounded: under sustained slow
consumption the oldest queued event is dropped and counted, keeping the
pump unblocked.
*/
package relay
