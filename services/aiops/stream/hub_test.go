// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSubscriber collects payloads and can be made to fail.
type fakeSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	closed   bool
}

func (f *fakeSubscriber) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Stop()

	a := &fakeSubscriber{}
	b := &fakeSubscriber{}
	hub.Register(a)
	hub.Register(b)
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.Publish(TypeCostAlert, map[string]string{"budget": "monthly-ai"})
	waitFor(t, func() bool { return a.count() == 1 && b.count() == 1 })

	var env Envelope
	if err := json.Unmarshal(a.payloads[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != TypeCostAlert {
		t.Errorf("expected cost_alert envelope, got %s", env.Type)
	}
	if env.Timestamp.IsZero() {
		t.Error("expected a timestamp on the envelope")
	}
}

func TestFailingSubscriberDropped(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Stop()

	healthy := &fakeSubscriber{}
	broken := &fakeSubscriber{fail: true}
	hub.Register(healthy)
	hub.Register(broken)
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.Publish(TypeSecurityEvent, map[string]string{"type": "brute_force"})
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	broken.mu.Lock()
	closed := broken.closed
	broken.mu.Unlock()
	if !closed {
		t.Error("expected failing subscriber closed")
	}
	waitFor(t, func() bool { return healthy.count() == 1 })
}

func TestUnregister(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Stop()

	sub := &fakeSubscriber{}
	hub.Register(sub)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Unregister(sub)
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	hub.Publish(TypeCostAlert, "ignored")
	time.Sleep(50 * time.Millisecond)
	if sub.count() != 0 {
		t.Errorf("expected no payloads after unregister, got %d", sub.count())
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	hub := NewHub(nil)
	sub := &fakeSubscriber{}
	hub.Register(sub)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Stop()
	sub.mu.Lock()
	closed := sub.closed
	sub.mu.Unlock()
	if !closed {
		t.Error("expected subscriber closed on hub stop")
	}

	// Publishing after stop is a no-op, not a panic.
	hub.Publish(TypeCostAlert, "late")
}
