// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresStore implements Store using PostgreSQL. The charge_receipts table
// carries a unique constraint on (source_system, source_reference); the
// insert relies on ON CONFLICT DO NOTHING so concurrent redeliveries race
// safely without advisory locks.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL receipt store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the reference DDL for the receipt table. Deployments manage
// migrations externally; this is what the store expects to exist.
const Schema = `
CREATE TABLE IF NOT EXISTS charge_receipts (
	id                 BIGSERIAL PRIMARY KEY,
	billing_account_id TEXT NOT NULL,
	virtual_key_id     TEXT NOT NULL,
	run_id             TEXT NOT NULL,
	attempt            INT NOT NULL,
	ingress_request_id TEXT,
	charged_credits    BIGINT NOT NULL,
	response_cost_usd  DOUBLE PRECISION,
	provider_call_id   TEXT,
	provenance         TEXT NOT NULL,
	charge_reason      TEXT NOT NULL,
	source_system      TEXT NOT NULL,
	source_reference   TEXT NOT NULL,
	receipt_kind       TEXT NOT NULL,
	llm_model          TEXT,
	llm_provider       TEXT,
	llm_input_tokens   INT NOT NULL DEFAULT 0,
	llm_output_tokens  INT NOT NULL DEFAULT 0,
	llm_latency_ms     BIGINT NOT NULL DEFAULT 0,
	llm_graph_id       TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_system, source_reference)
);
`

// WriteReceipt inserts a receipt. A collision on the idempotency key returns
// ErrDuplicateReceipt; the row already present is left untouched.
func (s *PostgresStore) WriteReceipt(ctx context.Context, receipt *ChargeReceipt) error {
	query := `
		INSERT INTO charge_receipts (
			billing_account_id, virtual_key_id, run_id, attempt,
			ingress_request_id, charged_credits, response_cost_usd,
			provider_call_id, provenance, charge_reason,
			source_system, source_reference, receipt_kind,
			llm_model, llm_provider, llm_input_tokens, llm_output_tokens,
			llm_latency_ms, llm_graph_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (source_system, source_reference) DO NOTHING
	`

	createdAt := receipt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, query,
		receipt.BillingAccountID, receipt.VirtualKeyID, receipt.RunID, receipt.Attempt,
		nullString(receipt.IngressRequestID), receipt.ChargedCredits, receipt.ResponseCostUSD,
		nullString(receipt.ProviderCallID), receipt.Provenance, receipt.ChargeReason,
		receipt.SourceSystem, receipt.SourceReference, string(receipt.ReceiptKind),
		nullString(receipt.LLMCall.Model), nullString(receipt.LLMCall.Provider),
		receipt.LLMCall.InputTokens, receipt.LLMCall.OutputTokens,
		receipt.LLMCall.LatencyMs, nullString(receipt.LLMCall.GraphID), createdAt,
	)
	if err != nil {
		// Older schemas without the conflict target surface the constraint
		// violation directly
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("failed to write charge receipt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateReceipt
	}
	return nil
}

// GetReceipt retrieves a receipt by idempotency key. Used by reconciliation
// tooling and tests; the commit path never reads.
func (s *PostgresStore) GetReceipt(ctx context.Context, sourceSystem, sourceReference string) (*ChargeReceipt, error) {
	query := `
		SELECT id, billing_account_id, virtual_key_id, run_id, attempt,
			   ingress_request_id, charged_credits, response_cost_usd,
			   provider_call_id, provenance, charge_reason,
			   source_system, source_reference, receipt_kind,
			   llm_model, llm_provider, llm_input_tokens, llm_output_tokens,
			   llm_latency_ms, llm_graph_id, created_at
		FROM charge_receipts
		WHERE source_system = $1 AND source_reference = $2
	`

	var r ChargeReceipt
	var kind string
	var ingressID, providerCallID, llmModel, llmProvider, llmGraphID sql.NullString
	var responseCost sql.NullFloat64

	err := s.db.QueryRowContext(ctx, query, sourceSystem, sourceReference).Scan(
		&r.ID, &r.BillingAccountID, &r.VirtualKeyID, &r.RunID, &r.Attempt,
		&ingressID, &r.ChargedCredits, &responseCost,
		&providerCallID, &r.Provenance, &r.ChargeReason,
		&r.SourceSystem, &r.SourceReference, &kind,
		&llmModel, &llmProvider, &r.LLMCall.InputTokens, &r.LLMCall.OutputTokens,
		&r.LLMCall.LatencyMs, &llmGraphID, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get charge receipt: %w", err)
	}

	r.IngressRequestID = ingressID.String
	r.ProviderCallID = providerCallID.String
	r.ReceiptKind = ReceiptKind(kind)
	r.LLMCall.Model = llmModel.String
	r.LLMCall.Provider = llmProvider.String
	r.LLMCall.GraphID = llmGraphID.String
	r.LLMCall.ProviderCallID = providerCallID.String
	if responseCost.Valid {
		cost := responseCost.Float64
		r.ResponseCostUSD = &cost
	}
	return &r, nil
}

// Ping verifies database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// nullString converts an empty string to NULL for database insertion
func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
