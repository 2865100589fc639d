// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package server exposes the public AIP surface over HTTP: the context
// endpoint that runs auctions, the bid-response inbox, billing event
// callbacks, the weave recommendation poll, and the websocket feed.
// Admin endpoints live in pkg/admin on a separate listener.
package server

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/luxfi/aip/pkg/auction"
	"github.com/luxfi/aip/pkg/config"
	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/fanout"
	"github.com/luxfi/aip/pkg/ledger"
	"github.com/luxfi/aip/pkg/log"
	"github.com/luxfi/aip/pkg/metric"
	"github.com/luxfi/aip/pkg/registry"
	"github.com/luxfi/aip/pkg/transport"
	"github.com/luxfi/aip/pkg/weave"
)

// Version is reported by the ping and metadata endpoints.
const Version = core.Version

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// Server glues the auction stack to the HTTP routes.
type Server struct {
	cfg    *config.Config
	reg    *registry.Registry
	runner *auction.Runner
	ledger *ledger.Service
	weave  *weave.Coordinator
	feed   *fanout.Feed

	// bidAuth reserves nonces; eventAuth does not, because billing
	// events are deduplicated durably by the ledger history and a
	// nonce-cache 401 would break idempotent retries after TTL expiry.
	bidAuth   *transport.Authenticator
	eventAuth *transport.Authenticator

	met     *metric.Metrics
	lg      log.Logger
	limiter *rate.Limiter
}

// New wires the public surface. feed and weaveCoord may be nil when the
// corresponding features are disabled.
func New(cfg *config.Config, reg *registry.Registry, runner *auction.Runner, ledgerSvc *ledger.Service, weaveCoord *weave.Coordinator, feed *fanout.Feed, nonces transport.NonceStore, met *metric.Metrics, lg log.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		reg:       reg,
		runner:    runner,
		ledger:    ledgerSvc,
		weave:     weaveCoord,
		feed:      feed,
		bidAuth:   transport.NewAuthenticator(cfg.Transport.MaxClockSkew(), nonces),
		eventAuth: transport.NewAuthenticator(cfg.Transport.MaxClockSkew(), nil),
		met:       met,
		lg:        lg,
	}
	if cfg.RateLimit.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}
	return s
}

// Router builds the gin engine with the public routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLog())
	router.Use(s.rateLimit())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsCfg))

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.GET("/aip/ping", s.handlePing)

	router.POST("/aip/context", s.handleContext)
	router.POST("/context", s.handleContext)
	router.POST("/aip/bid-response", s.handleBidResponse)

	router.POST("/events/:type", s.handleEvent)
	router.POST("/aip/events", s.handleEvent)

	if s.weave != nil {
		router.POST("/v1/weave/recommendations", s.handleWeave)
	}
	if s.feed != nil {
		router.GET("/aip/feed", func(c *gin.Context) {
			s.feed.Handle(c.Writer, c.Request)
		})
	}
	return router
}

// requestLog emits one structured line per request and feeds the
// request counter.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if s.met != nil {
			s.met.RequestsProcessed.WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()
		}
		s.lg.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// rateLimit applies the shared token bucket. A zero-RPS config leaves
// the limiter nil and the middleware a passthrough.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.renderError(c, core.Errf(core.KindRateLimited, "request rate exceeded"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// renderError maps any error to its wire kind and status.
func (s *Server) renderError(c *gin.Context, err error) {
	apiErr := core.AsAPIError(err)
	c.JSON(apiErr.Kind.HTTPStatus(), gin.H{"error": apiErr})
}
