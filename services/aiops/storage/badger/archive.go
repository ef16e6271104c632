// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/verdanthealth/verdant-core/services/aiops/cost"
	"github.com/verdanthealth/verdant-core/services/aiops/security"
)

// Key layout. Timestamps are RFC3339Nano so lexical order is time
// order, which makes prefix scans and time-bounded purges cheap.
//
//	sec/<timestamp>/<id>   -> security.Event (JSON)
//	usage/<timestamp>/<id> -> cost.UsageRecord (JSON)
const (
	prefixEvent = "sec/"
	prefixUsage = "usage/"
)

// Archive persists security events and usage records in the embedded
// database.
//
// Thread Safety: safe for concurrent use.
type Archive struct {
	db     *DB
	logger *slog.Logger
}

// NewArchive creates an Archive over an opened database.
func NewArchive(db *DB, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{db: db, logger: logger}
}

func eventKey(ts time.Time, id string) []byte {
	return []byte(prefixEvent + ts.UTC().Format(time.RFC3339Nano) + "/" + id)
}

func usageKey(ts time.Time, id string) []byte {
	return []byte(prefixUsage + ts.UTC().Format(time.RFC3339Nano) + "/" + id)
}

// SaveEvent persists one security event.
func (a *Archive) SaveEvent(ctx context.Context, event security.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	return a.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(eventKey(event.Timestamp, event.ID), payload)
	})
}

// SaveUsage persists one usage record.
func (a *Archive) SaveUsage(ctx context.Context, rec cost.UsageRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal usage record %s: %w", rec.ID, err)
	}
	return a.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(usageKey(rec.Timestamp, rec.ID), payload)
	})
}

// LoadEvents returns all persisted security events, oldest first.
// Entries that fail to decode are skipped with a warning rather than
// aborting hydration.
func (a *Archive) LoadEvents(ctx context.Context) ([]security.Event, error) {
	events := make([]security.Event, 0)
	err := a.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return a.scan(txn, []byte(prefixEvent), func(key, value []byte) {
			var event security.Event
			if err := json.Unmarshal(value, &event); err != nil {
				a.logger.Warn("skipping undecodable event",
					slog.String("key", string(key)),
					slog.String("error", err.Error()),
				)
				return
			}
			events = append(events, event)
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// LoadUsage returns all persisted usage records, oldest first.
func (a *Archive) LoadUsage(ctx context.Context) ([]cost.UsageRecord, error) {
	records := make([]cost.UsageRecord, 0)
	err := a.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return a.scan(txn, []byte(prefixUsage), func(key, value []byte) {
			var rec cost.UsageRecord
			if err := json.Unmarshal(value, &rec); err != nil {
				a.logger.Warn("skipping undecodable usage record",
					slog.String("key", string(key)),
					slog.String("error", err.Error()),
				)
				return
			}
			records = append(records, rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// scan iterates a key prefix in order, invoking fn per entry.
func (a *Archive) scan(txn *badger.Txn, prefix []byte, fn func(key, value []byte)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read value for %s: %w", string(item.Key()), err)
		}
		fn(item.KeyCopy(nil), value)
	}
	return nil
}

// PurgeEventsBefore deletes persisted events older than the cutoff,
// mirroring the in-memory retention sweep.
//
// Outputs:
//
//	int - Number of events deleted.
//	error - Non-nil on transaction failure.
func (a *Archive) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	// Key order is time order, so everything below the cutoff key goes.
	boundary := []byte(prefixEvent + cutoff.UTC().Format(time.RFC3339Nano))

	var doomed [][]byte
	err := a.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return a.scan(txn, []byte(prefixEvent), func(key, _ []byte) {
			if bytes.Compare(key, boundary) < 0 {
				doomed = append(doomed, key)
			}
		})
	})
	if err != nil {
		return 0, err
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	err = a.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", string(key), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(doomed), nil
}
