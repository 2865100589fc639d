// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command aip-loadgen drives a running server with synthetic traffic to
// characterize auction latency under load. The context mode posts
// platform intents directly; the weave mode exercises the cache-first
// recommendation poll loop. Pair it with aip-bidder agents when the
// run should settle auctions with winners instead of no-bids.
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/aip/pkg/core"
	aipsdk "github.com/luxfi/aip/sdk/go"
)

var (
	// Load configuration flags
	targetURL = flag.String("target", "http://localhost:8080", "Target server base URL")
	mode      = flag.String("mode", "context", "Traffic mode: context or weave")
	duration  = flag.Duration("duration", 60*time.Second, "Run duration")
	workers   = flag.Int("workers", 16, "Number of concurrent workers")
	rps       = flag.Int("rps", 200, "Target requests per second")
	query     = flag.String("query", "running shoes for a marathon", "Query text for synthetic intents")

	// Statistics
	totalRequests int64
	wonCount      int64
	noBidCount    int64
	errorCount    int64
	latencySum    int64
	maxLatency    int64
)

func main() {
	flag.Parse()

	fmt.Printf("=== AIP Load Generator ===\n")
	fmt.Printf("Target: %s\n", *targetURL)
	fmt.Printf("Mode: %s\n", *mode)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("Target RPS: %d\n", *rps)
	fmt.Println()

	client := aipsdk.NewClient(*targetURL)
	if err := client.Ping(context.Background()); err != nil {
		fmt.Printf("Server not reachable: %v\n", err)
		return
	}

	switch *mode {
	case "context":
		runLoad(func(ctx context.Context) error { return runContextOnce(ctx, client) })
	case "weave":
		runLoad(func(ctx context.Context) error { return runWeaveOnce(ctx, client) })
	default:
		fmt.Printf("Unknown mode: %s\n", *mode)
		return
	}

	printStatistics()
}

// runLoad fans one request function out over the worker pool behind a
// shared rate limiter.
func runLoad(fn func(ctx context.Context) error) {
	var wg sync.WaitGroup
	rateLimiter := time.NewTicker(time.Second / time.Duration(*rps))
	defer rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-rateLimiter.C:
					start := time.Now()
					err := fn(ctx)
					record(time.Since(start), err)
				}
			}
		}()
	}

	wg.Wait()
}

func runContextOnce(ctx context.Context, client *aipsdk.Client) error {
	result, err := client.RunContext(ctx, &core.PlatformRequest{
		RequestID: uuid.NewString(),
		SessionID: "loadgen",
		QueryText: *query,
	})
	if err != nil {
		return err
	}
	if result.NoBid {
		atomic.AddInt64(&noBidCount, 1)
	} else {
		atomic.AddInt64(&wonCount, 1)
	}
	return nil
}

// runWeaveOnce polls one recommendation to a terminal status, mirroring
// how a platform surface consumes the API.
func runWeaveOnce(ctx context.Context, client *aipsdk.Client) error {
	sessionID := "loadgen-" + uuid.NewString()
	messageID := uuid.NewString()
	for {
		rec, err := client.Recommendations(ctx, sessionID, messageID, *query)
		if err != nil {
			return err
		}
		switch rec.Status {
		case "completed":
			atomic.AddInt64(&wonCount, 1)
			return nil
		case "failed":
			atomic.AddInt64(&noBidCount, 1)
			return nil
		}
		retry := time.Duration(rec.RetryAfterMs) * time.Millisecond
		if retry <= 0 {
			retry = 150 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func record(latency time.Duration, err error) {
	atomic.AddInt64(&totalRequests, 1)
	micros := latency.Microseconds()
	atomic.AddInt64(&latencySum, micros)
	for {
		current := atomic.LoadInt64(&maxLatency)
		if micros <= current || atomic.CompareAndSwapInt64(&maxLatency, current, micros) {
			break
		}
	}
	if err != nil && err != context.DeadlineExceeded {
		atomic.AddInt64(&errorCount, 1)
	}
}

func printStatistics() {
	total := atomic.LoadInt64(&totalRequests)
	fmt.Println("\n=== Results ===")
	fmt.Printf("Total requests: %d\n", total)
	fmt.Printf("Won: %d\n", atomic.LoadInt64(&wonCount))
	fmt.Printf("No bid: %d\n", atomic.LoadInt64(&noBidCount))
	fmt.Printf("Errors: %d\n", atomic.LoadInt64(&errorCount))
	if total > 0 {
		avg := time.Duration(atomic.LoadInt64(&latencySum)/total) * time.Microsecond
		fmt.Printf("Avg latency: %v\n", avg)
		fmt.Printf("Max latency: %v\n", time.Duration(atomic.LoadInt64(&maxLatency))*time.Microsecond)
		fmt.Printf("Achieved RPS: %.1f\n", float64(total)/duration.Seconds())
	}
}
