// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cost

import (
	"fmt"
	"log/slog"
	"sync"
)

// =============================================================================
// Provider Selection
// =============================================================================

// ModelOption is one candidate provider/model pairing within a tier.
type ModelOption struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	CostPerToken float64 `json:"cost_per_token"`

	// Bias is an additive score bonus for operationally preferred
	// options (latency, data residency). Usually zero.
	Bias float64 `json:"bias,omitempty"`
}

// Policy maps request tiers to their candidate models. Policies are
// immutable configuration values: build a new one to change routing.
type Policy struct {
	Tiers    map[string][]ModelOption `json:"tiers"`
	Fallback ModelOption              `json:"fallback"`
}

// DefaultPolicy returns the stock routing table. The fallback is always
// available even for unknown tiers.
func DefaultPolicy() Policy {
	return Policy{
		Tiers: map[string][]ModelOption{
			"level1": {
				{Provider: "openai", Model: "gpt-3.5-turbo", CostPerToken: 0.0000015},
				{Provider: "anthropic", Model: "claude-3-haiku", CostPerToken: 0.00000125},
			},
			"level2": {
				{Provider: "openai", Model: "gpt-4o-mini", CostPerToken: 0.0000006},
				{Provider: "anthropic", Model: "claude-3-5-sonnet", CostPerToken: 0.000009},
			},
			"level3": {
				{Provider: "anthropic", Model: "claude-3-opus", CostPerToken: 0.000045},
				{Provider: "openai", Model: "gpt-4o", CostPerToken: 0.0000125},
			},
		},
		Fallback: ModelOption{Provider: "openai", Model: "gpt-3.5-turbo", CostPerToken: 0.0000015},
	}
}

// Selection is the routing decision for one request.
type Selection struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimated_cost"`
	Score         float64 `json:"score"`
	Reasoning     string  `json:"reasoning"`
}

// Selector scores tier candidates and picks the cheapest viable one.
//
// Thread Safety: safe for concurrent use. The policy is swapped
// atomically on reload; individual selections see a consistent policy.
type Selector struct {
	mu     sync.RWMutex
	policy Policy
	logger *slog.Logger
}

// NewSelector creates a Selector over the given policy.
func NewSelector(policy Policy, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Fallback.Provider == "" {
		policy.Fallback = DefaultPolicy().Fallback
	}
	return &Selector{policy: policy, logger: logger}
}

// SetPolicy replaces the routing policy. In-flight selections finish
// against the policy they started with.
func (s *Selector) SetPolicy(policy Policy) {
	if policy.Fallback.Provider == "" {
		policy.Fallback = DefaultPolicy().Fallback
	}
	s.mu.Lock()
	s.policy = policy
	s.mu.Unlock()
}

// Select picks a provider/model for a request.
//
// Description:
//
//	Each candidate in the tier is scored as
//
//	    100 - estimatedCost*1000 + bias
//
//	minus a 50 point penalty when the estimate exceeds the caller's
//	remaining budget (userBudget > 0). The highest score wins; ties go
//	to the earlier candidate in policy order. An unknown or empty tier
//	falls back to the stock model. Select never fails: a routing
//	decision always comes back.
//
// Inputs:
//
//	tier - Request tier name from the policy.
//	estimatedTokens - Expected token volume for the request.
//	userBudget - Caller's remaining spend; zero means unconstrained.
//
// Outputs:
//
//	Selection - The decision, with human-readable reasoning naming the
//	choice, its cost, and the margin over the runner-up.
func (s *Selector) Select(tier string, estimatedTokens int, userBudget float64) Selection {
	s.mu.RLock()
	policy := s.policy
	s.mu.RUnlock()

	options := policy.Tiers[tier]
	if len(options) == 0 {
		opt := policy.Fallback
		est := opt.CostPerToken * float64(estimatedTokens)
		s.logger.Warn("selector: unknown tier, using fallback", slog.String("tier", tier))
		return Selection{
			Provider:      opt.Provider,
			Model:         opt.Model,
			EstimatedCost: est,
			Score:         scoreOption(opt, est, userBudget),
			Reasoning: fmt.Sprintf("tier %q has no configured models; falling back to %s/%s at estimated $%.4f",
				tier, opt.Provider, opt.Model, est),
		}
	}

	estimates := make([]float64, len(options))
	scores := make([]float64, len(options))
	bestIdx := 0
	for i, opt := range options {
		estimates[i] = opt.CostPerToken * float64(estimatedTokens)
		scores[i] = scoreOption(opt, estimates[i], userBudget)
		// Strict comparison keeps ties on the earlier policy entry.
		if scores[i] > scores[bestIdx] {
			bestIdx = i
		}
	}
	runnerIdx := -1
	for i := range options {
		if i == bestIdx {
			continue
		}
		if runnerIdx == -1 || scores[i] > scores[runnerIdx] {
			runnerIdx = i
		}
	}

	chosen := options[bestIdx]
	bestEst := estimates[bestIdx]
	bestScore := scores[bestIdx]
	reasoning := fmt.Sprintf("selected %s/%s for tier %s at estimated $%.4f (score %.2f)",
		chosen.Provider, chosen.Model, tier, bestEst, bestScore)
	if runnerIdx >= 0 {
		runnerUp := options[runnerIdx]
		reasoning += fmt.Sprintf("; runner-up %s/%s would cost $%.4f more",
			runnerUp.Provider, runnerUp.Model, estimates[runnerIdx]-bestEst)
	}
	if userBudget > 0 && bestEst > userBudget {
		reasoning += fmt.Sprintf("; note: estimate exceeds remaining user budget $%.4f", userBudget)
	}

	s.logger.Debug("selector decision",
		slog.String("tier", tier),
		slog.String("provider", chosen.Provider),
		slog.String("model", chosen.Model),
		slog.Float64("estimated_cost", bestEst),
	)
	return Selection{
		Provider:      chosen.Provider,
		Model:         chosen.Model,
		EstimatedCost: bestEst,
		Score:         bestScore,
		Reasoning:     reasoning,
	}
}

// scoreOption computes the routing score for one candidate.
func scoreOption(opt ModelOption, estimatedCost, userBudget float64) float64 {
	score := 100 - estimatedCost*1000 + opt.Bias
	if userBudget > 0 && estimatedCost > userBudget {
		score -= 50
	}
	return score
}
