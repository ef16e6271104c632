// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aiops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verdanthealth/verdant-core/services/aiops/config"
	"github.com/verdanthealth/verdant-core/services/aiops/cost"
	"github.com/verdanthealth/verdant-core/services/aiops/security"
	badgerstore "github.com/verdanthealth/verdant-core/services/aiops/storage/badger"
)

func TestServiceCloseTwice(t *testing.T) {
	svc, err := NewService(ServiceConfig{Config: config.Default()})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if err := svc.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := svc.Close(); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("expected ErrServiceClosed on second Close, got %v", err)
	}
}

func TestServiceApplyConfig(t *testing.T) {
	svc, err := NewService(ServiceConfig{Config: config.Default()})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	next := config.Default()
	next.Routing.Tiers = map[string][]config.ModelOption{
		"level1": {{Provider: "anthropic", Model: "claude-haiku", CostPerToken: 0.00001}},
	}
	next.Cost.Budgets = []config.Budget{
		{Name: "reloaded", Period: "daily", Limit: 25},
	}
	svc.ApplyConfig(next)

	sel := svc.Selector.Select("level1", 1000, 0)
	if sel.Provider != "anthropic" || sel.Model != "claude-haiku" {
		t.Errorf("expected reloaded policy to win, got %s/%s", sel.Provider, sel.Model)
	}

	budgets := svc.Ledger.Budgets()
	if len(budgets) != 1 || budgets[0].Name != "reloaded" {
		t.Fatalf("expected the reloaded budget, got %+v", budgets)
	}
}

func TestServiceHydratesFromArchive(t *testing.T) {
	db, err := badgerstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	archive := badgerstore.NewArchive(db, nil)

	ctx := context.Background()
	if err := archive.SaveEvent(ctx, security.Event{
		ID:        "evt-1",
		Type:      security.TypeAuthFailure,
		Severity:  security.SeverityMedium,
		Timestamp: time.Now().Add(-time.Hour),
		IPAddress: "203.0.113.5",
		Status:    security.StatusOpen,
	}); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := archive.SaveUsage(ctx, cost.UsageRecord{
		ID:        "usage-1",
		Timestamp: time.Now().Add(-time.Minute),
		Provider:  "openai",
		Model:     "gpt-4o",
		Cost:      0.25,
	}); err != nil {
		t.Fatalf("SaveUsage failed: %v", err)
	}

	svc, err := NewService(ServiceConfig{Config: config.Default(), Archive: archive})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	if got := svc.Security.EventCount(); got != 1 {
		t.Errorf("expected 1 hydrated event, got %d", got)
	}
	if got := svc.Ledger.DailyTotals().Cost; got != 0.25 {
		t.Errorf("expected hydrated daily cost 0.25, got %f", got)
	}
}

func TestServiceRecordUsagePersists(t *testing.T) {
	db, err := badgerstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	archive := badgerstore.NewArchive(db, nil)

	svc, err := NewService(ServiceConfig{Config: config.Default(), Archive: archive})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	svc.RecordUsage(context.Background(), cost.UsageRecord{
		Provider: "openai", Model: "gpt-4o", Cost: 0.10,
	})

	records, err := archive.LoadUsage(context.Background())
	if err != nil {
		t.Fatalf("LoadUsage failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 archived record, got %d", len(records))
	}
	if records[0].Cost != 0.10 {
		t.Errorf("expected archived cost 0.10, got %f", records[0].Cost)
	}
}
