// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

/*
Package ledger converts usage facts into billing charges exactly once.

# Overview

The ledger receives UsageFact observations from the event relay under
at-least-once delivery and writes one ChargeReceipt per billable unit. The
idempotency key (SourceSystem, SourceReference) is unique in storage, so a
redelivered fact collapses into a no-op instead of a double charge. No
additional locking is needed: the store's uniqueness constraint is the only
concurrency-control mechanism.

# Commit semantics

Commit never fails its caller in normal operation. Facts that cannot be
billed are classified and logged instead:

  - no usage unit id: non-authoritative hint, skipped
  - no cost from a deferring source: a later fact with cost is expected
  - no cost from any other source: invariant violation
  - store failure: db_error, swallowed

Tests enable strict mode (WithStrictErrors) to surface these outcomes as
returned errors.

# Pricing

The charge amount comes from an injected PricingFunc mapping the provider
cost in USD to charged credits and the user-visible cost. The default maps
through a configurable markup and credits-per-USD rate.
*/
package ledger
