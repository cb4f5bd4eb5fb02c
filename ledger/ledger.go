// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"toolgate/platform/shared/logger"
	"toolgate/platform/shared/types"
)

// Provenance and charge-reason values stamped on receipts written by this
// ledger. There is exactly one commit site (the relay's usage sink), and the
// provenance records that.
const (
	ProvenanceEventRelay = "event_relay"
	ChargeReasonModelUse = "model_usage"
)

var promLedgerCommits = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolgate_ledger_commits_total",
		Help: "Usage ledger commit attempts by outcome classification",
	},
	[]string{"source", "outcome"},
)

func init() {
	prometheus.MustRegister(promLedgerCommits)
}

// Ledger converts usage facts into charge receipts with at-most-effectively-
// once semantics. It is safe for concurrent use; the store's uniqueness
// constraint is the only synchronization between concurrent commits.
type Ledger struct {
	store     Store
	pricing   PricingFunc
	log       *logger.Logger
	deferring map[string]bool
	strict    bool
}

// Option configures a Ledger
type Option func(*Ledger)

// WithStrictErrors makes Commit return classification errors instead of
// swallowing them. Test-only: production callers must never see a commit
// failure.
func WithStrictErrors(strict bool) Option {
	return func(l *Ledger) { l.strict = strict }
}

// WithDeferringSources names the source systems that supply cost
// asynchronously. A fact from one of these without cost is deferred rather
// than treated as an invariant violation; a later fact with the same
// idempotency key is expected to carry the cost.
func WithDeferringSources(sources ...string) Option {
	return func(l *Ledger) {
		for _, s := range sources {
			l.deferring[s] = true
		}
	}
}

// WithLogger overrides the default component logger
func WithLogger(lg *logger.Logger) Option {
	return func(l *Ledger) { l.log = lg }
}

// New creates a Ledger writing to store and pricing charges with pricing.
// A nil pricing function falls back to the default credits policy.
func New(store Store, pricing PricingFunc, opts ...Option) *Ledger {
	if pricing == nil {
		pricing = DefaultCreditsPricing.Func()
	}
	l := &Ledger{
		store:     store,
		pricing:   pricing,
		log:       logger.New("ledger"),
		deferring: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Commit turns a usage fact into a charge receipt. It never returns an error
// in normal operation: unbillable facts are classified, logged, and
// swallowed, and a duplicate idempotency key is success. Strict mode
// (tests) re-raises every non-committed outcome.
func (l *Ledger) Commit(ctx context.Context, fact UsageFact, rc types.RunContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.record(fact, OutcomeUnknown)
			l.log.ErrorWithOutcome(fact.BillingAccountID, fact.RunID,
				"ledger commit panicked", OutcomeUnknown,
				fmt.Errorf("%v", r), l.fields(fact, rc))
			err = nil
			if l.strict {
				err = fmt.Errorf("ledger commit panicked: %v", r)
			}
		}
	}()

	if fact.UsageUnitID == "" {
		// Non-authoritative hint from an external source; nothing to key a
		// receipt on.
		l.record(fact, OutcomeSkippedNoUnit)
		l.log.WarnWithOutcome(fact.BillingAccountID, fact.RunID,
			"usage fact has no usage unit id, skipping", OutcomeSkippedNoUnit,
			l.fields(fact, rc))
		if l.strict {
			return ErrNoUsageUnit
		}
		return nil
	}

	if fact.CostUSD == nil {
		if l.deferring[fact.Source] {
			l.record(fact, OutcomeDeferred)
			l.log.WarnWithOutcome(fact.BillingAccountID, fact.RunID,
				"usage fact has no cost yet, deferring to a later delivery",
				OutcomeDeferred, l.fields(fact, rc))
			if l.strict {
				return ErrCostDeferred
			}
			return nil
		}
		l.record(fact, OutcomeInvariantViolation)
		l.log.WarnWithOutcome(fact.BillingAccountID, fact.RunID,
			"usage fact is permanently missing cost", OutcomeInvariantViolation,
			l.fields(fact, rc))
		if l.strict {
			return ErrMissingCost
		}
		return nil
	}

	credits, userCost := l.pricing(*fact.CostUSD)

	receipt := &ChargeReceipt{
		BillingAccountID: fact.BillingAccountID,
		VirtualKeyID:     fact.VirtualKeyID,
		RunID:            fact.RunID,
		Attempt:          fact.Attempt,
		IngressRequestID: rc.IngressRequestID,
		ChargedCredits:   credits,
		ResponseCostUSD:  &userCost,
		ProviderCallID:   fact.ProviderCallID,
		Provenance:       ProvenanceEventRelay,
		ChargeReason:     ChargeReasonModelUse,
		SourceSystem:     fact.Source,
		SourceReference:  fact.SourceReference(),
		ReceiptKind:      ReceiptKindLLMCall,
		LLMCall: LLMCallDetail{
			ProviderCallID: fact.ProviderCallID,
			Model:          fact.Model,
			Provider:       fact.Provider,
			InputTokens:    fact.InputTokens,
			OutputTokens:   fact.OutputTokens,
			LatencyMs:      fact.LatencyMs,
			GraphID:        fact.GraphID,
		},
		CreatedAt: time.Now().UTC(),
	}

	werr := l.store.WriteReceipt(ctx, receipt)
	switch {
	case werr == nil:
		l.record(fact, OutcomeCommitted)
		l.log.Info(fact.BillingAccountID, fact.RunID, "charge receipt written",
			map[string]interface{}{
				"source_reference": receipt.SourceReference,
				"charged_credits":  receipt.ChargedCredits,
				"model":            fact.Model,
			})
		return nil
	case errors.Is(werr, ErrDuplicateReceipt):
		// Redelivery of an already-billed fact counts as success.
		l.record(fact, OutcomeDuplicate)
		l.log.Info(fact.BillingAccountID, fact.RunID,
			"charge receipt already written, duplicate delivery collapsed",
			map[string]interface{}{"source_reference": receipt.SourceReference})
		return nil
	default:
		l.record(fact, OutcomeDBError)
		l.log.ErrorWithOutcome(fact.BillingAccountID, fact.RunID,
			"charge receipt write failed", OutcomeDBError, werr, l.fields(fact, rc))
		if l.strict {
			return fmt.Errorf("%w: %v", ErrStoreWrite, werr)
		}
		return nil
	}
}

func (l *Ledger) record(fact UsageFact, outcome string) {
	promLedgerCommits.WithLabelValues(fact.Source, outcome).Inc()
}

func (l *Ledger) fields(fact UsageFact, rc types.RunContext) map[string]interface{} {
	return map[string]interface{}{
		"source":        fact.Source,
		"usage_unit_id": fact.UsageUnitID,
		"attempt":       fact.Attempt,
		"request_id":    rc.IngressRequestID,
	}
}
