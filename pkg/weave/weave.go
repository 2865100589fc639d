// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package weave serves cache-first ad recommendations. A poll either
// returns the cached outcome or atomically claims the (session,
// message) slot, schedules a background auction on the coordinator's
// worker pool and tells the caller to retry. Callers never block on
// auction work.
package weave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/aip/pkg/auction"
	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/metric"
	"github.com/luxfi/aip/pkg/storage"
)

// Recommendation statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// RetryAfterMs is the poll interval suggested while work is pending.
const RetryAfterMs = 150

const (
	defaultWindow     = 500 * time.Millisecond
	defaultWorkers    = 4
	defaultQueueSize  = 64
	defaultJobTimeout = 5 * time.Second
)

// Recommendation is the stored document for one (session, message).
type Recommendation struct {
	SessionID        string              `json:"session_id"`
	MessageID        string              `json:"message_id"`
	Query            string              `json:"query,omitempty"`
	Status           string              `json:"status"`
	WeaveContent     string              `json:"weave_content,omitempty"`
	ServeToken       string              `json:"serve_token,omitempty"`
	CreativeMetadata map[string]string   `json:"creative_metadata,omitempty"`
	AuctionResult    *core.AuctionResult `json:"auction_result,omitempty"`
	Error            string              `json:"error,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Response is the poll answer. Status selects which fields are set;
// WeaveContent is a pointer so a completed empty creative still
// serializes.
type Response struct {
	Status           string            `json:"status"`
	WeaveContent     *string           `json:"weave_content,omitempty"`
	ServeToken       string            `json:"serve_token,omitempty"`
	CreativeMetadata map[string]string `json:"creative_metadata,omitempty"`
	RetryAfterMs     int               `json:"retry_after_ms,omitempty"`
	Message          string            `json:"message,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Options tune the coordinator.
type Options struct {
	Window     time.Duration
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

type job struct {
	sessionID string
	messageID string
	query     string
}

// Coordinator owns the recommendation cache and its worker pool.
type Coordinator struct {
	opts   Options
	store  storage.Store
	runner *auction.Runner
	met    *metric.Metrics
	lg     log.Logger
	now    func() time.Time

	jobs      chan job
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
}

func NewCoordinator(opts Options, store storage.Store, runner *auction.Runner, met *metric.Metrics, lg log.Logger) *Coordinator {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	c := &Coordinator{
		opts:   opts,
		store:  store,
		runner: runner,
		met:    met,
		lg:     lg,
		now:    time.Now,
		jobs:   make(chan job, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Close drains the pool: no new jobs are accepted and queued jobs run
// to completion so every claimed record reaches a terminal status.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()
		close(c.jobs)
		c.wg.Wait()
	})
}

// GetOrCreate implements the non-blocking poll contract.
func (c *Coordinator) GetOrCreate(ctx context.Context, sessionID, messageID, query string) (*Response, error) {
	key := storage.RecommendationKey(sessionID, messageID)

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := c.store.Get(ctx, key)
		if err == nil {
			if c.met != nil {
				c.met.WeaveCacheHits.Inc()
			}
			return c.respond(raw)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
		}

		now := c.now().UTC()
		rec := Recommendation{
			SessionID: sessionID,
			MessageID: messageID,
			Query:     query,
			Status:    StatusInProgress,
			CreatedAt: now,
			UpdatedAt: now,
		}
		body, err := json.Marshal(&rec)
		if err != nil {
			return nil, fmt.Errorf("%w: encode recommendation: %v", core.ErrInternal, err)
		}
		err = c.store.Create(ctx, key, body)
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Lost the claim race; serve whatever the winner wrote.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
		}

		if c.met != nil {
			c.met.WeaveCacheMisses.Inc()
		}
		c.lg.Info("recommendation scheduled", "session_id", sessionID, "message_id", messageID)
		if !c.enqueue(job{sessionID: sessionID, messageID: messageID, query: query}) {
			c.markFailed(sessionID, messageID, "coordinator queue full")
			return &Response{Status: StatusFailed, Error: "coordinator queue full"}, nil
		}
		return inProgressResponse("Auction initiated, please retry"), nil
	}
	return nil, fmt.Errorf("%w: recommendation %s/%s unreadable after claim race", core.ErrInternal, sessionID, messageID)
}

func (c *Coordinator) respond(raw []byte) (*Response, error) {
	var rec Recommendation
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: recommendation record: %v", core.ErrInternal, err)
	}
	switch rec.Status {
	case StatusCompleted:
		content := rec.WeaveContent
		meta := rec.CreativeMetadata
		if meta == nil {
			meta = map[string]string{}
		}
		return &Response{
			Status:           StatusCompleted,
			WeaveContent:     &content,
			ServeToken:       rec.ServeToken,
			CreativeMetadata: meta,
		}, nil
	case StatusFailed:
		msg := rec.Error
		if msg == "" {
			msg = "auction failed"
		}
		return &Response{Status: StatusFailed, Error: msg}, nil
	default:
		return inProgressResponse("Auction in progress, please retry"), nil
	}
}

func inProgressResponse(msg string) *Response {
	return &Response{
		Status:       StatusInProgress,
		RetryAfterMs: RetryAfterMs,
		Message:      msg,
	}
}

func (c *Coordinator) enqueue(j job) bool {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.jobs <- j:
		return true
	default:
		return false
	}
}

func (c *Coordinator) worker() {
	defer c.wg.Done()
	for j := range c.jobs {
		c.runJob(j)
	}
}

func (c *Coordinator) runJob(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.JobTimeout)
	defer cancel()

	req := &core.ContextRequest{
		RequestID:  "weave_" + uuid.NewString(),
		SessionID:  j.sessionID,
		PlatformID: "weave",
		QueryText:  j.query,
		Surface:    "weave",
		Timestamp:  c.now().UTC().Format(time.RFC3339Nano),
		Ext:        map[string]any{"allowed_formats": []string{"weave"}, "message_id": j.messageID},
	}
	res, err := c.runner.RunWithWindow(ctx, req, c.opts.Window)
	if err != nil {
		c.lg.Error("background auction failed", "session_id", j.sessionID, "message_id", j.messageID, "err", err)
		if c.met != nil {
			c.met.WeaveFailures.Inc()
		}
		c.markFailed(j.sessionID, j.messageID, err.Error())
		return
	}

	content, meta := FormatContent(res.Winner)
	err = c.updateRecord(j.sessionID, j.messageID, func(rec *Recommendation) {
		rec.Status = StatusCompleted
		rec.WeaveContent = content
		rec.ServeToken = res.ServeToken
		rec.CreativeMetadata = meta
		rec.AuctionResult = res
	})
	if err != nil {
		c.lg.Error("recommendation update failed", "session_id", j.sessionID, "message_id", j.messageID, "err", err)
		if c.met != nil {
			c.met.WeaveFailures.Inc()
		}
		return
	}
	c.lg.Info("recommendation completed",
		"session_id", j.sessionID,
		"message_id", j.messageID,
		"serve_token", res.ServeToken,
		"no_bid", res.NoBid,
	)
}

func (c *Coordinator) markFailed(sessionID, messageID, msg string) {
	err := c.updateRecord(sessionID, messageID, func(rec *Recommendation) {
		rec.Status = StatusFailed
		rec.Error = msg
	})
	if err != nil {
		c.lg.Error("could not mark recommendation failed", "session_id", sessionID, "message_id", messageID, "err", err)
	}
}

func (c *Coordinator) updateRecord(sessionID, messageID string, mutate func(*Recommendation)) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.store.Update(ctx, storage.RecommendationKey(sessionID, messageID), func(current []byte) ([]byte, error) {
		var rec Recommendation
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, fmt.Errorf("%w: recommendation record: %v", core.ErrInternal, err)
		}
		mutate(&rec)
		rec.UpdatedAt = c.now().UTC()
		return json.Marshal(&rec)
	})
	return err
}
