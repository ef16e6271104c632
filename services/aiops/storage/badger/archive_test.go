// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdanthealth/verdant-core/services/aiops/cost"
	"github.com/verdanthealth/verdant-core/services/aiops/security"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewArchive(db, nil)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestOpenPersistent(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestEventRoundTrip(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	first := security.Event{
		ID:          "evt-1",
		Type:        security.TypeAuthFailure,
		Severity:    security.SeverityLow,
		Timestamp:   base,
		IPAddress:   "10.0.0.1",
		Description: "failed login",
		Status:      security.StatusOpen,
	}
	second := security.Event{
		ID:          "evt-2",
		Type:        security.TypeBruteForce,
		Severity:    security.SeverityHigh,
		Timestamp:   base.Add(time.Minute),
		IPAddress:   "10.0.0.1",
		Description: "brute force from 10.0.0.1",
		Status:      security.StatusOpen,
	}

	// Write out of order; load comes back oldest first.
	require.NoError(t, archive.SaveEvent(ctx, second))
	require.NoError(t, archive.SaveEvent(ctx, first))

	events, err := archive.LoadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "evt-2", events[1].ID)
	assert.Equal(t, security.TypeBruteForce, events[1].Type)
	assert.True(t, events[0].Timestamp.Equal(base))
}

func TestUsageRoundTrip(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	rec := cost.UsageRecord{
		ID:          "use-1",
		Timestamp:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Provider:    "openai",
		Model:       "gpt-4o",
		TotalTokens: 350,
		Cost:        0.004,
		UserID:      "u1",
	}
	require.NoError(t, archive.SaveUsage(ctx, rec))

	records, err := archive.LoadUsage(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.Provider, records[0].Provider)
	assert.Equal(t, rec.Cost, records[0].Cost)
	assert.Equal(t, rec.TotalTokens, records[0].TotalTokens)
}

func TestPrefixesDoNotBleed(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, archive.SaveEvent(ctx, security.Event{ID: "evt", Timestamp: now}))
	require.NoError(t, archive.SaveUsage(ctx, cost.UsageRecord{ID: "use", Timestamp: now}))

	events, err := archive.LoadEvents(ctx)
	require.NoError(t, err)
	records, err := archive.LoadUsage(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, records, 1)
}

func TestPurgeEventsBefore(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, archive.SaveEvent(ctx, security.Event{
			ID:        "evt-" + string(rune('a'+i)),
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}

	deleted, err := archive.PurgeEventsBefore(ctx, base.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	events, err := archive.LoadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "evt-c", events[0].ID)
}

func TestCancelledContextRejected(t *testing.T) {
	archive := newTestArchive(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := archive.SaveEvent(ctx, security.Event{ID: "evt", Timestamp: time.Now()})
	require.Error(t, err)
}
