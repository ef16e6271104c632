// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream pushes security events and cost alerts to connected
// operator dashboards over WebSocket.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Envelope is the wire format for one pushed notification.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Notification types.
const (
	TypeSecurityEvent = "security_event"
	TypeCostAlert     = "cost_alert"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans notifications out to all connected subscribers.
//
// Thread Safety: safe for concurrent use. A subscriber whose Send fails
// is closed and dropped.
type Hub struct {
	logger *slog.Logger

	mu        sync.Mutex
	clients   map[Subscriber]struct{}
	register  chan Subscriber
	unreg     chan Subscriber
	broadcast chan []byte
	stop      chan struct{}
	done      chan struct{}
}

// NewHub creates a running Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:    logger,
		clients:   make(map[Subscriber]struct{}),
		register:  make(chan Subscriber),
		unreg:     make(chan Subscriber),
		broadcast: make(chan []byte, 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
			}
			h.clients = make(map[Subscriber]struct{})
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
		case client := <-h.unreg:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
		case payload := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if err := c.Send(payload); err != nil {
					c.Close()
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a subscriber to the stream.
func (h *Hub) Register(client Subscriber) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(client Subscriber) {
	select {
	case h.unreg <- client:
	case <-h.stop:
	}
}

// Publish serializes a notification and broadcasts it. Drops the
// message when the hub is saturated rather than blocking the caller:
// alert producers must never stall on slow dashboards.
func (h *Hub) Publish(notifType string, payload any) {
	data, err := json.Marshal(Envelope{
		Type:      notifType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("stream: failed to marshal notification",
			slog.String("type", notifType),
			slog.String("error", err.Error()),
		)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.stop:
	default:
		h.logger.Warn("stream: broadcast buffer full, dropping notification",
			slog.String("type", notifType),
		)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stop closes all subscribers and halts the hub.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}
