// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package aipsdk is the Go client for the AIP auction server: platform
// context submission, signed bids and billing events for agents, the
// weave recommendation poll, and the live auction feed.
package aipsdk

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/luxfi/aip/pkg/core"
	"github.com/luxfi/aip/pkg/transport"
)

// Client is the AIP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Signer is a principal identity used to sign bids and events.
type Signer struct {
	Name string
	Key  ed25519.PrivateKey
}

// Ping checks server liveness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/aip/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// RunContext submits a platform intent and blocks until the auction
// settles. The request_id doubles as the auction id.
func (c *Client) RunContext(ctx context.Context, req *core.PlatformRequest) (*core.AuctionResult, error) {
	var result core.AuctionResult
	if err := c.postJSON(ctx, "/aip/context", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitBid signs and submits a bid. Empty timestamp and nonce fields
// are filled; the bidder name is taken from the signer when unset.
func (c *Client) SubmitBid(ctx context.Context, bid *core.BidResponse, signer Signer) error {
	if bid.Bidder == "" {
		bid.Bidder = signer.Name
	}
	if bid.Timestamp == "" {
		bid.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if bid.Nonce == "" {
		bid.Nonce = uuid.NewString()
	}
	bid.Signature = ""
	sig, err := transport.Sign(bid, signer.Key)
	if err != nil {
		return fmt.Errorf("sign bid: %w", err)
	}
	bid.Signature = sig
	return c.postJSON(ctx, "/aip/bid-response", bid, nil)
}

// EventAck is the server's answer to a billing event.
type EventAck struct {
	Status    string `json:"status"`
	AuctionID string `json:"auction_id"`
	EventType string `json:"event_type"`
	State     string `json:"state"`
}

// SendEvent signs and posts a billing callback. eventType selects the
// endpoint path (cpx, cpc, cpa or one of their aliases).
func (c *Client) SendEvent(ctx context.Context, eventType string, ev *core.EventPayload, signer Signer) (*EventAck, error) {
	if ev.Issuer == "" {
		ev.Issuer = signer.Name
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Nonce == "" {
		ev.Nonce = uuid.NewString()
	}
	ev.Signature = ""
	sig, err := transport.Sign(ev, signer.Key)
	if err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	ev.Signature = sig

	var ack EventAck
	if err := c.postJSON(ctx, "/events/"+eventType, ev, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Recommendation is the weave poll answer.
type Recommendation struct {
	Status           string            `json:"status"`
	WeaveContent     *string           `json:"weave_content,omitempty"`
	ServeToken       string            `json:"serve_token,omitempty"`
	CreativeMetadata map[string]string `json:"creative_metadata,omitempty"`
	RetryAfterMs     int               `json:"retry_after_ms,omitempty"`
	Message          string            `json:"message,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Recommendations polls the cache-first weave endpoint. The first call
// schedules the auction and answers in_progress; callers poll again
// after RetryAfterMs.
func (c *Client) Recommendations(ctx context.Context, sessionID, messageID, query string) (*Recommendation, error) {
	payload := map[string]string{
		"session_id": sessionID,
		"message_id": messageID,
		"query":      query,
	}
	var rec Recommendation
	if err := c.postJSON(ctx, "/v1/weave/recommendations", payload, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FeedEnvelope is one fanned-out auction announcement.
type FeedEnvelope struct {
	AuctionID      string               `json:"auction_id"`
	Pool           string               `json:"pool"`
	ContextRequest *core.ContextRequest `json:"context_request"`
	WindowDeadline time.Time            `json:"window_deadline"`
}

// FeedConn is a live subscription to the auction feed.
type FeedConn struct {
	conn *websocket.Conn
}

// ConnectFeed opens the websocket feed filtered to the given pools; an
// empty list subscribes to every pool.
func (c *Client) ConnectFeed(ctx context.Context, pools []string) (*FeedConn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/aip/feed"
	if len(pools) > 0 {
		q := u.Query()
		q.Set("pools", strings.Join(pools, ","))
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("feed dial: %w", err)
	}
	return &FeedConn{conn: conn}, nil
}

// Next blocks until the next envelope arrives or the connection drops.
func (f *FeedConn) Next() (*FeedEnvelope, error) {
	_, data, err := f.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var env FeedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("feed envelope: %w", err)
	}
	return &env, nil
}

func (f *FeedConn) Close() error {
	return f.conn.Close()
}

// postJSON posts a body and decodes a 200 answer into out when non-nil.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError surfaces the server's error kind when the body carries
// one, falling back to the HTTP status line.
func decodeError(resp *http.Response) error {
	var body struct {
		Error *core.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != nil {
		return body.Error
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}
