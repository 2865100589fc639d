// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PlatformRequest is the external schema conversational platforms post to
// the context endpoint. It is a superset of ContextRequest; the extra
// platform metadata travels to bidders inside a vendor-namespaced ext
// bucket rather than as first-class fields.
type PlatformRequest struct {
	RequestID       string         `json:"request_id"`
	SessionID       string         `json:"session_id,omitempty"`
	PlatformID      string         `json:"platform_id,omitempty"`
	QueryText       string         `json:"query_text"`
	Locale          string         `json:"locale,omitempty"`
	Geo             string         `json:"geo,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
	Auth            *Auth          `json:"auth,omitempty"`
	PlatformSurface string         `json:"platform_surface,omitempty"`
	CPXFloor        *float64       `json:"cpx_floor,omitempty"`
	Model           string         `json:"model,omitempty"`
	Messages        []any          `json:"messages,omitempty"`
	Pools           []string       `json:"pools,omitempty"`
	Ext             map[string]any `json:"ext,omitempty"`
}

// BuildContextRequest maps the external platform schema onto the internal
// context used for bidder fanout.
func BuildContextRequest(p *PlatformRequest) *ContextRequest {
	ctx := &ContextRequest{
		RequestID:  p.RequestID,
		SessionID:  p.SessionID,
		PlatformID: p.PlatformID,
		QueryText:  p.QueryText,
		Locale:     p.Locale,
		Geo:        p.Geo,
		Surface:    p.PlatformSurface,
		Timestamp:  p.Timestamp,
		Pools:      p.Pools,
		Auth:       p.Auth,
	}
	if p.CPXFloor != nil {
		ctx.Pricing = &Pricing{CPXFloor: FormatCPXFloor(*p.CPXFloor)}
	}
	if ext := normalizeExtensions(p); len(ext) > 0 {
		ctx.Ext = ext
	}
	return ctx
}

// FormatCPXFloor renders a floor as a decimal string with exactly two
// fractional digits.
func FormatCPXFloor(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// normalizeExtensions preserves caller-supplied vendor extensions and
// tucks the platform metadata under ext.<vendor>.platform_request so
// downstream bidders see it in a stable place.
func normalizeExtensions(p *PlatformRequest) map[string]any {
	ext := make(map[string]any, len(p.Ext)+1)
	for k, v := range p.Ext {
		ext[k] = v
	}

	meta := make(map[string]any, 3)
	if p.Model != "" {
		meta["model"] = p.Model
	}
	if len(p.Messages) > 0 {
		meta["messages"] = p.Messages
	}
	if p.PlatformSurface != "" {
		meta["platform_surface"] = p.PlatformSurface
	}
	if len(meta) == 0 {
		return ext
	}

	vendor := VendorSlug(p.PlatformID)
	bucket, _ := ext[vendor].(map[string]any)
	if bucket == nil {
		bucket = make(map[string]any, 1)
	}
	existing, _ := bucket["platform_request"].(map[string]any)
	merged := make(map[string]any, len(existing)+len(meta))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	bucket["platform_request"] = merged
	ext[vendor] = bucket
	return ext
}

// VendorSlug derives the ext namespace from a platform id: lowercase,
// with each run of characters outside [a-z0-9_-] collapsed to a single
// '-'. Empty input falls back to "platform".
func VendorSlug(platformID string) string {
	if platformID == "" {
		return "platform"
	}
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(platformID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			if pending {
				b.WriteByte('-')
				pending = false
			}
			b.WriteRune(r)
		default:
			pending = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "platform"
	}
	return slug
}
