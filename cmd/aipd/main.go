// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luxfi/aip/pkg/admin"
	"github.com/luxfi/aip/pkg/auction"
	"github.com/luxfi/aip/pkg/bidders"
	"github.com/luxfi/aip/pkg/classify"
	"github.com/luxfi/aip/pkg/config"
	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/fanout"
	"github.com/luxfi/aip/pkg/ledger"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/metric"
	"github.com/luxfi/aip/pkg/registry"
	"github.com/luxfi/aip/pkg/server"
	"github.com/luxfi/aip/pkg/storage"
	"github.com/luxfi/aip/pkg/transport"
	"github.com/luxfi/aip/pkg/weave"
)

var (
	// Daemon configuration flags
	configPath  = flag.String("config", "", "Server configuration document (YAML)")
	biddersPath = flag.String("bidders", "", "Bidder roster document (YAML)")
	logLevel    = flag.String("log-level", "info", "Log level")

	// Version info
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Daemon owns the API and admin listeners and the components behind
// them.
type Daemon struct {
	cfg *config.Config
	log log.Logger

	store     storage.Store
	nonces    transport.NonceStore
	publisher fanout.Publisher
	weave     *weave.Coordinator

	apiServer   *http.Server
	adminServer *http.Server
}

func main() {
	flag.Parse()

	fmt.Printf("AIP Daemon (aipd) %s (commit: %s, built: %s)\n", core.Version, GitCommit, BuildTime)

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	daemon, err := NewDaemon(startCtx, logger)
	cancel()
	if err != nil {
		fmt.Printf("Failed to create daemon: %v\n", err)
		os.Exit(1)
	}

	daemon.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := daemon.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
	}

	fmt.Println("Daemon stopped")
}

// NewDaemon loads configuration and assembles the full component graph.
func NewDaemon(ctx context.Context, logger log.Logger) (*Daemon, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	reg, err := loadRoster(config.BiddersPath(*biddersPath))
	if err != nil {
		return nil, fmt.Errorf("load bidder roster: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger storage: %w", err)
	}

	met, err := metric.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	publisher, err := fanout.Open(ctx, fanout.Options{
		Backend:     cfg.Auction.Distribution.Backend,
		TopicPrefix: cfg.Auction.Distribution.TopicPrefix,
		ProjectID:   cfg.Auction.Distribution.ProjectID,
		RedisAddr:   cfg.Auction.Distribution.RedisAddr,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open distribution backend: %w", err)
	}

	var feed *fanout.Feed
	if cfg.FeedEnabled() {
		feed = fanout.NewFeed(logger)
		publisher = fanout.NewMulti(publisher, feed)
	}

	ledgerSvc := ledger.NewService(store, logger)
	classifier := classify.New(cfg.Classifier.Rules, cfg.Classifier.DefaultPool)

	runner := auction.NewRunner(auction.Options{
		Window:         cfg.Auction.Window(),
		PublishTimeout: cfg.Auction.PublishTimeout(),
	}, ledgerSvc, classifier, reg, publisher, met, logger)

	nonces := buildNonceStore(cfg)
	pushAuth := transport.NewAuthenticator(cfg.Transport.MaxClockSkew(), nonces)
	pusher := bidders.NewPusher(pushAuth, runner.SubmitBid, logger)
	runner.SetPush(func(ctx context.Context, targets []*registry.Bidder, env *fanout.Envelope) {
		for _, out := range pusher.Push(ctx, targets, env) {
			switch {
			case out.Submitted:
				met.BidderPushes.WithLabelValues("submitted").Inc()
			case out.TimedOut:
				met.BidderPushes.WithLabelValues("timeout").Inc()
			case out.Err != nil:
				met.BidderPushes.WithLabelValues("error").Inc()
			default:
				met.BidderPushes.WithLabelValues("no_bid").Inc()
			}
		}
	})

	weaveCoord := weave.NewCoordinator(weave.Options{
		Window:    cfg.Weave.Window(),
		Workers:   cfg.Weave.Workers,
		QueueSize: cfg.Weave.QueueSize,
	}, store, runner, met, logger)

	srv := server.New(cfg, reg, runner, ledgerSvc, weaveCoord, feed, nonces, met, logger)
	adm := admin.New(cfg, reg, ledgerSvc, met, logger)

	return &Daemon{
		cfg:       cfg,
		log:       logger,
		store:     store,
		nonces:    nonces,
		publisher: publisher,
		weave:     weaveCoord,
		apiServer: &http.Server{
			Addr:    cfg.Listen.API,
			Handler: srv.Router(),
		},
		adminServer: &http.Server{
			Addr:    cfg.Listen.Admin,
			Handler: adm.Router(),
		},
	}, nil
}

// Start launches both listeners.
func (d *Daemon) Start() {
	go func() {
		d.log.Info("api server listening", "addr", d.cfg.Listen.API)
		if err := d.apiServer.ListenAndServe(); err != http.ErrServerClosed {
			d.log.Error("api server error", "err", err)
		}
	}()

	go func() {
		d.log.Info("admin server listening", "addr", d.cfg.Listen.Admin)
		if err := d.adminServer.ListenAndServe(); err != http.ErrServerClosed {
			d.log.Error("admin server error", "err", err)
		}
	}()
}

// Shutdown stops intake first, then drains the recommendation pool so
// claimed records reach a terminal status before storage goes away.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.log.Info("shutting down")

	if err := d.apiServer.Shutdown(ctx); err != nil {
		d.log.Error("api server shutdown error", "err", err)
	}
	if err := d.adminServer.Shutdown(ctx); err != nil {
		d.log.Error("admin server shutdown error", "err", err)
	}

	d.weave.Close()

	if err := d.publisher.Close(); err != nil {
		d.log.Error("distribution shutdown error", "err", err)
	}
	if err := d.nonces.Close(); err != nil {
		d.log.Error("nonce store shutdown error", "err", err)
	}
	return d.store.Close()
}

// loadRoster reads the bidder document; no path means an empty roster,
// useful for platforms that only run direct context auctions.
func loadRoster(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.New(nil)
	}
	return registry.Load(path)
}

// buildNonceStore shares the ledger's redis deployment for replay
// protection when one is configured, so multiple server instances
// reject a reused nonce consistently.
func buildNonceStore(cfg *config.Config) transport.NonceStore {
	if cfg.Ledger.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Ledger.Redis.Addr,
			Password: cfg.Ledger.Redis.Password,
			DB:       cfg.Ledger.Redis.DB,
		})
		return transport.NewRedisNonceStore(client, cfg.Transport.NonceTTL())
	}
	return transport.NewMemoryNonceStore(cfg.Transport.NonceTTL())
}
