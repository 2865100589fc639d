// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/ledger"
	"github.com/luxfi/aip/pkg/transport"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "aip-server",
		"version": Version,
		"transport": gin.H{
			"nonce_ttl_seconds": s.cfg.Transport.NonceTTLSeconds,
			"max_clock_skew_ms": s.cfg.Transport.MaxClockSkewMs,
		},
		"auction": gin.H{
			"window_ms":            s.cfg.Auction.WindowMs,
			"distribution_backend": s.cfg.Auction.Distribution.Backend,
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
}

// handleContext runs one auction for a platform intent. The platform
// signature is verified only when the platform has a configured key;
// unknown platforms are accepted and logged, matching rosters where key
// exchange has not happened yet.
func (s *Server) handleContext(c *gin.Context) {
	raw, err := s.readBody(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	var platformReq core.PlatformRequest
	if err := json.Unmarshal(raw, &platformReq); err != nil {
		s.renderError(c, core.Errf(core.KindSchemaInvalid, "malformed platform request: %v", err))
		return
	}
	req := core.BuildContextRequest(&platformReq)
	if err := req.Validate(); err != nil {
		s.renderError(c, err)
		return
	}

	if key, ok := s.cfg.PlatformKey(platformReq.PlatformID); ok {
		sp, err := transport.ExtractSignedAuth(raw)
		if err != nil {
			s.renderError(c, err)
			return
		}
		if err := s.bidAuth.Authenticate(c.Request.Context(), sp, key, platformReq.PlatformID); err != nil {
			s.renderError(c, err)
			return
		}
	} else if platformReq.Auth != nil {
		s.lg.Debug("context auth not verified, no key for platform", "platform_id", platformReq.PlatformID)
	}

	result, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleBidResponse accepts a signed bid over HTTP. The body is either
// the bid object itself or the original wrapped form {"bid": {...}}.
func (s *Server) handleBidResponse(c *gin.Context) {
	raw, err := s.readBody(c)
	if err != nil {
		s.renderError(c, err)
		return
	}
	raw = unwrapBid(raw)

	sp, err := transport.ExtractSigned(raw)
	if err != nil {
		s.renderError(c, err)
		return
	}

	var bid core.BidResponse
	if err := json.Unmarshal(raw, &bid); err != nil {
		s.renderError(c, core.Errf(core.KindSchemaInvalid, "malformed bid: %v", err))
		return
	}
	if err := bid.Validate(); err != nil {
		s.renderError(c, err)
		return
	}

	bidder, ok := s.reg.Get(bid.Bidder)
	if !ok || bidder.Key() == nil {
		s.renderError(c, core.Errf(core.KindSignatureInvalid, "no verification key for bidder %q", bid.Bidder))
		return
	}
	if err := s.bidAuth.Authenticate(c.Request.Context(), sp, bidder.Key(), bid.Bidder); err != nil {
		s.renderError(c, err)
		return
	}

	if err := s.runner.SubmitBid(c.Request.Context(), &bid); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "auction_id": bid.AuctionID})
}

// handleEvent ingests one billing callback. The event type comes from
// the URL on /events/:type and from the body on /aip/events. Replay
// protection is the ledger's (event_type, nonce) history, so a retried
// duplicate acks 200 with the settled state instead of failing.
func (s *Server) handleEvent(c *gin.Context) {
	raw, err := s.readBody(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	var payload core.EventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.renderError(c, core.Errf(core.KindSchemaInvalid, "malformed event: %v", err))
		return
	}
	typeName := c.Param("type")
	if typeName == "" {
		typeName = payload.EventType
	}
	event, err := ledger.ParseEvent(typeName)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if payload.AuctionID == "" {
		s.renderError(c, core.Errf(core.KindSchemaInvalid, "auction_id is required"))
		return
	}
	if payload.Nonce == "" {
		s.renderError(c, core.Errf(core.KindSchemaInvalid, "nonce is required"))
		return
	}

	key, err := s.issuerKey(payload.Issuer)
	if err != nil {
		s.renderError(c, err)
		return
	}
	sp, err := transport.ExtractSigned(raw)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if err := s.eventAuth.Authenticate(c.Request.Context(), sp, key, payload.Issuer); err != nil {
		s.renderError(c, err)
		return
	}

	rec, applied, err := s.ledger.ApplyEvent(c.Request.Context(), ledger.EventInput{
		AuctionID:  payload.AuctionID,
		ServeToken: payload.ServeToken,
		Event:      event,
		Issuer:     payload.Issuer,
		Nonce:      payload.Nonce,
		Timestamp:  payload.Timestamp,
		Payload:    raw,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	if s.met != nil {
		if applied {
			s.met.EventsApplied.WithLabelValues(string(event)).Inc()
		} else {
			s.met.EventsDuplicate.Inc()
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "accepted",
		"auction_id": rec.AuctionID,
		"event_type": string(event),
		"state":      string(rec.State),
	})
}

// handleWeave answers the cache-first recommendation poll.
func (s *Server) handleWeave(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		MessageID string `json:"message_id"`
		Query     string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, core.Errf(core.KindSchemaInvalid, "malformed request: %v", err))
		return
	}
	if req.SessionID == "" || req.MessageID == "" {
		s.renderError(c, core.Errf(core.KindSchemaInvalid, "session_id and message_id are required"))
		return
	}

	resp, err := s.weave.GetOrCreate(c.Request.Context(), req.SessionID, req.MessageID, req.Query)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// issuerKey resolves an event issuer's verification key from the bidder
// roster first, then from the configured platforms.
func (s *Server) issuerKey(issuer string) (ed25519.PublicKey, error) {
	if issuer == "" {
		return nil, core.Errf(core.KindSchemaInvalid, "issuer is required")
	}
	if key, ok := s.reg.PublicKey(issuer); ok {
		return key, nil
	}
	if key, ok := s.cfg.PlatformKey(issuer); ok {
		return key, nil
	}
	return nil, core.Errf(core.KindSignatureInvalid, "no verification key for issuer %q", issuer)
}

// readBody drains the request body under the size cap.
func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, core.Errf(core.KindSchemaInvalid, "could not read body: %v", err)
	}
	return raw, nil
}

// unwrapBid peels the original {"bid": {...}} envelope when present.
func unwrapBid(raw []byte) []byte {
	var wrapper struct {
		Bid json.RawMessage `json:"bid"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return raw
	}
	if len(wrapper.Bid) > 0 && wrapper.Bid[0] == '{' {
		return wrapper.Bid
	}
	return raw
}
