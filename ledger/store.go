// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"sync"
)

// Store is the durable append-only sink for charge receipts. WriteReceipt
// must enforce uniqueness on (SourceSystem, SourceReference) and report a
// collision as ErrDuplicateReceipt rather than a generic failure.
type Store interface {
	WriteReceipt(ctx context.Context, receipt *ChargeReceipt) error
}

// MemoryStore is an in-memory Store for tests and single-node community
// deployments. It enforces the same idempotency-key uniqueness as the
// Postgres store.
type MemoryStore struct {
	mu       sync.Mutex
	receipts map[string]*ChargeReceipt
	order    []string
	nextID   int64
}

// NewMemoryStore creates an empty in-memory receipt store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{receipts: make(map[string]*ChargeReceipt)}
}

func (s *MemoryStore) key(receipt *ChargeReceipt) string {
	return receipt.SourceSystem + "\x00" + receipt.SourceReference
}

// WriteReceipt appends a receipt, or returns ErrDuplicateReceipt if the
// idempotency key is already present.
func (s *MemoryStore) WriteReceipt(ctx context.Context, receipt *ChargeReceipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.key(receipt)
	if _, exists := s.receipts[k]; exists {
		return ErrDuplicateReceipt
	}

	s.nextID++
	stored := *receipt
	stored.ID = s.nextID
	s.receipts[k] = &stored
	s.order = append(s.order, k)
	return nil
}

// Receipts returns all stored receipts in insertion order.
func (s *MemoryStore) Receipts() []ChargeReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChargeReceipt, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.receipts[k])
	}
	return out
}

// Count returns the number of stored receipts.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}
