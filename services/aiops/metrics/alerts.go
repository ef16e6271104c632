// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// Alert Rules
// =============================================================================

// Op is a comparison operator in an alert condition.
//
// Conditions are typed values constructed at configuration time; nothing is
// parsed from strings at evaluation time.
type Op int

const (
	OpGreaterThan Op = iota
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
)

// String returns the operator's conventional token.
func (o Op) String() string {
	switch o {
	case OpGreaterThan:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessOrEqual:
		return "<="
	default:
		return "?"
	}
}

// ParseOp maps an operator token to its Op. Used by config decoding.
//
// Outputs:
//
//	Op - The operator.
//	bool - False for unknown tokens.
func ParseOp(token string) (Op, bool) {
	switch token {
	case ">":
		return OpGreaterThan, true
	case ">=":
		return OpGreaterOrEqual, true
	case "<":
		return OpLessThan, true
	case "<=":
		return OpLessOrEqual, true
	default:
		return 0, false
	}
}

// Condition is a typed "metric op threshold" alert condition.
type Condition struct {
	// Metric is the metric name the condition reads.
	Metric string `json:"metric"`

	// Fn is the reduction applied over Window before comparing.
	Fn AggregateFn `json:"fn"`

	// Window is the trailing aggregation window.
	Window time.Duration `json:"window"`

	// Op compares the aggregate against Threshold.
	Op Op `json:"op"`

	// Threshold is the comparison value.
	Threshold float64 `json:"threshold"`
}

// holds reports whether the condition is satisfied by value.
func (c Condition) holds(value float64) bool {
	switch c.Op {
	case OpGreaterThan:
		return value > c.Threshold
	case OpGreaterOrEqual:
		return value >= c.Threshold
	case OpLessThan:
		return value < c.Threshold
	case OpLessOrEqual:
		return value <= c.Threshold
	default:
		return false
	}
}

// AlertRule is a condition with its own cooldown and firing history.
type AlertRule struct {
	// ID uniquely identifies the rule.
	ID string `json:"id"`

	// Name is the operator-facing rule name.
	Name string `json:"name"`

	// Condition is evaluated on each pass.
	Condition Condition `json:"condition"`

	// Cooldown suppresses repeat fires inside this duration.
	Cooldown time.Duration `json:"cooldown"`

	lastFired time.Time
	history   []AlertEvent
}

// AlertEvent is one recorded firing of a rule.
type AlertEvent struct {
	RuleID    string    `json:"rule_id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
}

// maxRuleHistory bounds each rule's firing history.
const maxRuleHistory = 100

// AddAlertRule registers or replaces a rule by ID.
//
// Rule defaults: Fn avg, Window 5m, Cooldown 5m.
func (s *Store) AddAlertRule(rule AlertRule) {
	if rule.Condition.Fn == "" {
		rule.Condition.Fn = AggAvg
	}
	if rule.Condition.Window <= 0 {
		rule.Condition.Window = 5 * time.Minute
	}
	if rule.Cooldown <= 0 {
		rule.Cooldown = 5 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = &rule
}

// EvaluateAlertRules runs every rule once and returns the events fired on
// this pass.
//
// Description:
//
//	Intended to be called from a scheduled job on a fixed interval. A rule
//	inside its cooldown is skipped even if its condition holds. Each fire
//	is appended to the rule's own capped history.
func (s *Store) EvaluateAlertRules() []AlertEvent {
	s.mu.RLock()
	rules := make([]*AlertRule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	s.mu.RUnlock()

	now := s.clock.Now()
	var fired []AlertEvent

	for _, rule := range rules {
		value := s.Aggregate(rule.Condition.Metric, rule.Condition.Fn, rule.Condition.Window)
		if !rule.Condition.holds(value) {
			continue
		}

		s.mu.Lock()
		if !rule.lastFired.IsZero() && now.Sub(rule.lastFired) < rule.Cooldown {
			s.mu.Unlock()
			continue
		}
		event := AlertEvent{
			RuleID:    rule.ID,
			Timestamp: now,
			Message: fmt.Sprintf("%s: %s(%s) = %.4f %s %.4f",
				rule.Name, rule.Condition.Fn, rule.Condition.Metric,
				value, rule.Condition.Op, rule.Condition.Threshold),
			Value: value,
		}
		rule.lastFired = now
		rule.history = append(rule.history, event)
		if len(rule.history) > maxRuleHistory {
			rule.history = rule.history[len(rule.history)-maxRuleHistory:]
		}
		s.mu.Unlock()

		s.logger.Warn("metric alert fired",
			slog.String("rule", rule.Name),
			slog.Float64("value", value),
			slog.Float64("threshold", rule.Condition.Threshold),
		)
		fired = append(fired, event)
	}
	return fired
}

// RuleHistory returns a copy of a rule's firing history.
//
// Outputs:
//
//	[]AlertEvent - Oldest first; nil if the rule is unknown.
//	bool - False if no rule with that ID is registered.
func (s *Store) RuleHistory(id string) ([]AlertEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, false
	}
	out := make([]AlertEvent, len(rule.history))
	copy(out, rule.history)
	return out, true
}
