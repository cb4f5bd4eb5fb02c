// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for ToolGate components.

# Overview

The logger package outputs one JSON object per line to stdout, making logs
easily consumable by CloudWatch, ELK, or any other log aggregation system.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (governor, relay, ledger, gateway)
  - Instance ID and container name
  - Billing account ID and run ID for charge correlation
  - Optional structured fields

# Usage

Create a logger per component and attach the billing identity of the run
being processed:

	lg := logger.New("ledger")
	lg.Info("acct-123", "run-9ab", "receipt written", map[string]interface{}{
	    "source_reference": "run-9ab/0/u1",
	    "charged_credits":  42,
	})

Billing outcomes use the outcome-classified helpers so anomalies can be
queried from logs:

	lg.WarnWithOutcome("acct-123", "run-9ab", "usage fact has no cost",
	    "invariant_violation", nil)
*/
package logger
