// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReceipt() *ChargeReceipt {
	cost := 0.0024
	return &ChargeReceipt{
		BillingAccountID: "acct-1",
		VirtualKeyID:     "vk-1",
		RunID:            "r1",
		Attempt:          0,
		IngressRequestID: "req-1",
		ChargedCredits:   3,
		ResponseCostUSD:  &cost,
		Provenance:       ProvenanceEventRelay,
		ChargeReason:     ChargeReasonModelUse,
		SourceSystem:     "langgraph",
		SourceReference:  "r1/0/u1",
		ReceiptKind:      ReceiptKindLLMCall,
		LLMCall: LLMCallDetail{
			Model:        "gpt-4o",
			Provider:     "openai",
			InputTokens:  120,
			OutputTokens: 40,
			LatencyMs:    830,
		},
	}
}

func TestPostgresStore_WriteReceipt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO charge_receipts").
		WithArgs(
			"acct-1", "vk-1", "r1", 0,
			sqlmock.AnyArg(), int64(3), sqlmock.AnyArg(),
			sqlmock.AnyArg(), ProvenanceEventRelay, ChargeReasonModelUse,
			"langgraph", "r1/0/u1", string(ReceiptKindLLMCall),
			sqlmock.AnyArg(), sqlmock.AnyArg(), 120, 40,
			int64(830), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPostgresStore(db)
	assert.NoError(t, store.WriteReceipt(context.Background(), testReceipt()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WriteReceipt_DuplicateKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// ON CONFLICT DO NOTHING reports zero rows affected for a collision
	mock.ExpectExec("INSERT INTO charge_receipts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresStore(db)
	err = store.WriteReceipt(context.Background(), testReceipt())
	assert.ErrorIs(t, err, ErrDuplicateReceipt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WriteReceipt_ConstraintError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO charge_receipts").
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "charge_receipts_source_system_source_reference_key"`))

	store := NewPostgresStore(db)
	err = store.WriteReceipt(context.Background(), testReceipt())
	assert.ErrorIs(t, err, ErrDuplicateReceipt)
}

func TestPostgresStore_WriteReceipt_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO charge_receipts").
		WillReturnError(errors.New("pq: connection refused"))

	store := NewPostgresStore(db)
	err = store.WriteReceipt(context.Background(), testReceipt())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateReceipt)
}

func TestPostgresStore_GetReceipt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM charge_receipts").
		WithArgs("langgraph", "r1/0/u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "billing_account_id", "virtual_key_id", "run_id", "attempt",
			"ingress_request_id", "charged_credits", "response_cost_usd",
			"provider_call_id", "provenance", "charge_reason",
			"source_system", "source_reference", "receipt_kind",
			"llm_model", "llm_provider", "llm_input_tokens", "llm_output_tokens",
			"llm_latency_ms", "llm_graph_id", "created_at",
		}).AddRow(
			1, "acct-1", "vk-1", "r1", 0,
			"req-1", 3, 0.0024,
			nil, ProvenanceEventRelay, ChargeReasonModelUse,
			"langgraph", "r1/0/u1", string(ReceiptKindLLMCall),
			"gpt-4o", "openai", 120, 40,
			830, nil, time.Now(),
		))

	store := NewPostgresStore(db)
	receipt, err := store.GetReceipt(context.Background(), "langgraph", "r1/0/u1")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, "r1/0/u1", receipt.SourceReference)
	assert.Equal(t, int64(3), receipt.ChargedCredits)
	assert.Equal(t, "gpt-4o", receipt.LLMCall.Model)
	require.NotNil(t, receipt.ResponseCostUSD)
}

func TestPostgresStore_GetReceipt_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM charge_receipts").
		WithArgs("langgraph", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPostgresStore(db)
	receipt, err := store.GetReceipt(context.Background(), "langgraph", "missing")
	require.NoError(t, err)
	assert.Nil(t, receipt)
}
