// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command aip-bidder is a reference bidding agent. It watches the
// server's auction feed and answers every open auction with a signed
// fixed-price bid, which makes it useful for demos, roster smoke tests
// and load generation.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/transport"
	aipsdk "github.com/luxfi/aip/sdk/go"
)

var (
	serverURL = flag.String("server", "http://localhost:8080", "AIP server base URL")
	name      = flag.String("name", "", "Bidder name from the server roster")
	keyPath   = flag.String("key", "", "Ed25519 signing key (PEM file)")
	pools     = flag.String("pools", "default", "Comma-separated pools to watch")
	price     = flag.Float64("price", 0.25, "Bid price")
	model     = flag.String("model", "cpc", "Pricing model: cpx, cpc or cpa")
	passRate  = flag.Float64("pass-rate", 0, "Fraction of auctions to decline")
	title     = flag.String("title", "", "Creative title (defaults to the bidder name)")
	landing   = flag.String("landing", "https://adxyz.example/offers", "Creative landing URL")
)

func main() {
	flag.Parse()

	if *name == "" {
		log.Fatal("Bidder name is required (--name)")
	}
	if *keyPath == "" {
		log.Fatal("Signing key is required (--key)")
	}
	pem, err := os.ReadFile(*keyPath)
	if err != nil {
		log.Fatalf("Failed to read key: %v", err)
	}
	priv, err := transport.ParsePrivateKeyPEM(pem)
	if err != nil {
		log.Fatalf("Failed to parse key: %v", err)
	}
	pricingModel, err := core.ParsePricingModel(*model)
	if err != nil {
		log.Fatalf("Bad pricing model: %v", err)
	}

	client := aipsdk.NewClient(*serverURL)
	signer := aipsdk.Signer{Name: *name, Key: priv}
	poolList := splitPools(*pools)

	log.Printf("Starting AIP bidder agent v%s", core.Version)
	log.Printf("Bidder: %s", *name)
	log.Printf("Server: %s", *serverURL)
	log.Printf("Pools: %s", strings.Join(poolList, ", "))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	for ctx.Err() == nil {
		if err := watch(ctx, client, signer, poolList, pricingModel); err != nil && ctx.Err() == nil {
			log.Printf("Feed error: %v (reconnecting)", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
	}
	log.Println("Bidder stopped")
}

// watch holds one feed connection and answers envelopes until the
// connection or the context dies.
func watch(ctx context.Context, client *aipsdk.Client, signer aipsdk.Signer, poolList []string, pricingModel core.PricingModel) error {
	conn, err := client.ConnectFeed(ctx, poolList)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Println("Connected to auction feed")
	for {
		env, err := conn.Next()
		if err != nil {
			return err
		}
		go respond(ctx, client, signer, pricingModel, env)
	}
}

// respond signs and submits one bid under the envelope's window budget.
func respond(ctx context.Context, client *aipsdk.Client, signer aipsdk.Signer, pricingModel core.PricingModel, env *aipsdk.FeedEnvelope) {
	budget := time.Until(env.WindowDeadline)
	if budget <= 0 {
		log.Printf("Window already closed for %s", env.AuctionID)
		return
	}

	bid := &core.BidResponse{
		AuctionID:    env.AuctionID,
		Price:        core.PriceFromFloat(*price),
		PricingModel: pricingModel,
	}
	if rand.Float64() < *passRate {
		bid.Pass = true
	} else {
		bid.Creative = map[string]any{
			"title":       creativeTitle(),
			"landing_url": *landing,
		}
	}

	bidCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	if err := client.SubmitBid(bidCtx, bid, signer); err != nil {
		log.Printf("Bid for %s rejected: %v", env.AuctionID, err)
		return
	}
	if bid.Pass {
		log.Printf("Passed on %s", env.AuctionID)
	} else {
		log.Printf("Bid %s %s on %s", bid.Price.Fixed4(), pricingModel, env.AuctionID)
	}
}

func creativeTitle() string {
	if *title != "" {
		return *title
	}
	return *name + " offer"
}

func splitPools(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"default"}
	}
	return out
}
