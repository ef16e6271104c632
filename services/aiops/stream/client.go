// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const writeDeadline = 10 * time.Second

// wsClient adapts a websocket connection to the Subscriber interface.
type wsClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (c *wsClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}

// Handler returns the gin handler that upgrades a connection and
// subscribes it to the alert stream until the peer disconnects.
func Handler(hub *Hub, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("failed to upgrade the websocket", slog.String("error", err.Error()))
			return
		}

		client := &wsClient{conn: conn}
		hub.Register(client)
		logger.Debug("stream subscriber connected", slog.String("remote", conn.RemoteAddr().String()))

		// Reads are discarded; the socket exists for pushes. The read
		// loop still runs to observe close frames.
		go func() {
			defer func() {
				hub.Unregister(client)
				client.Close()
				logger.Debug("stream subscriber disconnected")
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
