// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luxfi/aip/pkg/log"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 45 * time.Second
	feedSendBuffer = 32
)

// Feed is a websocket hub mirroring published envelopes to connected
// agents. Clients subscribe with ?pools=a,b; no filter means all pools.
// Slow consumers are dropped rather than allowed to stall publishes.
type Feed struct {
	lg       log.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn  *websocket.Conn
	pools map[string]struct{}
	send  chan []byte
}

func NewFeed(lg log.Logger) *Feed {
	return &Feed{
		lg: lg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// Publish broadcasts the envelope to clients watching the pool.
func (f *Feed) Publish(_ context.Context, pool string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for client := range f.clients {
		if !client.wants(pool) {
			continue
		}
		select {
		case client.send <- data:
		default:
			f.lg.Warn("feed client lagging, dropping envelope", "pool", pool)
		}
	}
	return nil
}

// Handle upgrades the request and serves the client until it leaves.
func (f *Feed) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.lg.Warn("feed upgrade failed", "err", err)
		return
	}

	pools := make(map[string]struct{})
	if raw := r.URL.Query().Get("pools"); raw != "" {
		for _, pool := range strings.Split(raw, ",") {
			if pool = strings.TrimSpace(pool); pool != "" {
				pools[pool] = struct{}{}
			}
		}
	}
	client := &feedClient{
		conn:  conn,
		pools: pools,
		send:  make(chan []byte, feedSendBuffer),
	}

	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()
	f.lg.Info("feed client connected", "remote", r.RemoteAddr, "pools", len(pools))

	go client.writeLoop()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	f.remove(client)
	f.lg.Info("feed client disconnected", "remote", r.RemoteAddr)
}

// ClientCount reports connected clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		close(client.send)
		delete(f.clients, client)
	}
	return nil
}

// remove detaches a client; the send channel closes under the write
// lock so no publish can race it.
func (f *Feed) remove(client *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[client]; ok {
		delete(f.clients, client)
		close(client.send)
	}
}

func (c *feedClient) wants(pool string) bool {
	if len(c.pools) == 0 {
		return true
	}
	_, ok := c.pools[pool]
	return ok
}

func (c *feedClient) writeLoop() {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
