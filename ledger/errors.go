// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package ledger

import "errors"

var (
	// ErrDuplicateReceipt is returned by a store when the idempotency key
	// already exists. The ledger treats it as success.
	ErrDuplicateReceipt = errors.New("charge receipt already exists")

	// ErrNoUsageUnit is surfaced in strict mode for facts without a usage
	// unit id
	ErrNoUsageUnit = errors.New("usage fact has no usage unit id")

	// ErrCostDeferred is surfaced in strict mode when cost is expected to
	// arrive in a later fact
	ErrCostDeferred = errors.New("usage fact cost deferred to a later delivery")

	// ErrMissingCost is surfaced in strict mode when a non-deferring source
	// omitted cost
	ErrMissingCost = errors.New("usage fact is permanently missing cost")

	// ErrStoreWrite is surfaced in strict mode when the receipt write failed
	ErrStoreWrite = errors.New("charge receipt write failed")
)
