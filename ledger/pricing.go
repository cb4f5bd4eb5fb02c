// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"math"
	"strings"
	"sync"
)

// PricingFunc maps a provider cost in USD to the credits charged to the
// account and the user-visible cost after markup. Implementations must be
// pure: the ledger may call them any number of times for the same input.
type PricingFunc func(costUSD float64) (chargedCredits int64, userCostUSD float64)

// CreditsPricing is the default pricing policy: a percentage markup on the
// provider cost, converted to credits at a fixed rate.
type CreditsPricing struct {
	MarkupPercent float64
	CreditsPerUSD float64
}

// DefaultCreditsPricing matches the managed-platform defaults.
var DefaultCreditsPricing = CreditsPricing{
	MarkupPercent: 20,
	CreditsPerUSD: 1000,
}

// Func returns the PricingFunc for this policy. Any positive cost charges at
// least one credit so fractional-cent calls are never free.
func (p CreditsPricing) Func() PricingFunc {
	return func(costUSD float64) (int64, float64) {
		if costUSD <= 0 {
			return 0, 0
		}
		userCost := costUSD * (1 + p.MarkupPercent/100)
		credits := int64(math.Ceil(userCost * p.CreditsPerUSD))
		if credits < 1 {
			credits = 1
		}
		return credits, userCost
	}
}

// ModelPricing contains pricing per 1K tokens for a model
type ModelPricing struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// PricingConfig holds token pricing for providers and models. The run
// adapter uses it to compute the provider cost attached to usage facts when
// the provider reports tokens but not dollars. It is never consulted on the
// commit path: a fact that reaches the ledger without cost is deferred or
// rejected, not re-priced.
type PricingConfig struct {
	Providers map[string]map[string]ModelPricing `json:"providers" yaml:"providers"`
	mu        sync.RWMutex
}

// defaultProviders covers the common hosted models; "*" is the per-provider
// fallback. Prices are USD per 1K tokens.
var defaultProviders = map[string]map[string]ModelPricing{
	"anthropic": {
		"claude-sonnet-4":  {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-5-haiku": {InputPer1K: 0.0008, OutputPer1K: 0.004},
		"*":                {InputPer1K: 0.003, OutputPer1K: 0.015},
	},
	"openai": {
		"gpt-4o":      {InputPer1K: 0.0025, OutputPer1K: 0.01},
		"gpt-4o-mini": {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"*":           {InputPer1K: 0.01, OutputPer1K: 0.03},
	},
	"google": {
		"gemini-2.0-flash": {InputPer1K: 0.0001, OutputPer1K: 0.0004},
		"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.005},
		"*":                {InputPer1K: 0.001, OutputPer1K: 0.004},
	},
	"local": {
		// Self-hosted models carry no provider cost
		"*": {InputPer1K: 0, OutputPer1K: 0},
	},
}

// NewPricingConfig creates a pricing configuration with default rates
func NewPricingConfig() *PricingConfig {
	providers := make(map[string]map[string]ModelPricing, len(defaultProviders))
	for provider, models := range defaultProviders {
		providers[provider] = make(map[string]ModelPricing, len(models))
		for model, pricing := range models {
			providers[provider][model] = pricing
		}
	}
	return &PricingConfig{Providers: providers}
}

// CalculateCost calculates the provider cost for a call from token counts.
// Unknown providers cost zero; unknown models fall back to the provider's
// wildcard entry.
func (p *PricingConfig) CalculateCost(provider, model string, tokensIn, tokensOut int) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	providerPricing, ok := p.Providers[strings.ToLower(provider)]
	if !ok {
		return 0
	}

	modelPricing, ok := providerPricing[model]
	if !ok {
		modelPricing, ok = providerPricing[strings.ToLower(model)]
		if !ok {
			modelPricing, ok = providerPricing["*"]
			if !ok {
				return 0
			}
		}
	}

	inputCost := float64(tokensIn) / 1000.0 * modelPricing.InputPer1K
	outputCost := float64(tokensOut) / 1000.0 * modelPricing.OutputPer1K
	return inputCost + outputCost
}

// SetModelPricing sets pricing for a specific model
func (p *PricingConfig) SetModelPricing(provider, model string, pricing ModelPricing) {
	p.mu.Lock()
	defer p.mu.Unlock()

	provider = strings.ToLower(provider)
	if p.Providers[provider] == nil {
		p.Providers[provider] = make(map[string]ModelPricing)
	}
	p.Providers[provider][model] = pricing
}
