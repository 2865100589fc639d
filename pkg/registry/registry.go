// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry loads the bidder roster from YAML and answers the
// lookups the auction path needs: by name, by pool subscription, and
// public key resolution. The registry is immutable after load.
package registry

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luxfi/aip/pkg/transport"
)

const (
	// DefaultTimeoutMs is the advisory per-bidder response budget.
	DefaultTimeoutMs = 200
	// DefaultPool subscribes bidders that declare no pools.
	DefaultPool = "default"

	// ProtocolAIP bidders answer pushes with signed AIP bid responses.
	ProtocolAIP = "aip"
	// ProtocolOpenRTB bidders speak OpenRTB 2.x through the bridge.
	ProtocolOpenRTB = "openrtb"
)

// Bidder is one immutable roster entry.
type Bidder struct {
	Name      string   `yaml:"name" json:"name"`
	Endpoint  string   `yaml:"endpoint" json:"endpoint"`
	PublicKey string   `yaml:"public_key" json:"public_key"`
	TimeoutMs int      `yaml:"timeout_ms" json:"timeout_ms"`
	Pools     []string `yaml:"pools" json:"pools"`
	Protocol  string   `yaml:"protocol" json:"protocol"`

	key ed25519.PublicKey
}

// Key returns the parsed Ed25519 key, or nil when none is configured.
func (b *Bidder) Key() ed25519.PublicKey {
	return b.key
}

// Timeout converts the advisory budget to a duration.
func (b *Bidder) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// SubscribedTo reports whether the bidder listens on any of pools.
func (b *Bidder) SubscribedTo(pools []string) bool {
	for _, want := range pools {
		for _, have := range b.Pools {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Registry indexes the roster by name.
type Registry struct {
	bidders map[string]*Bidder
}

type rosterFile struct {
	Bidders []Bidder `yaml:"bidders"`
}

// Load reads and validates a YAML roster. Unknown fields are errors so
// config typos fail at startup instead of silently dropping bidders.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var file rosterFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return New(file.Bidders)
}

// New builds a registry from parsed entries, applying defaults and
// parsing keys up front so bad material fails fast.
func New(bidders []Bidder) (*Registry, error) {
	reg := &Registry{bidders: make(map[string]*Bidder, len(bidders))}
	for i := range bidders {
		b := bidders[i]
		if b.Name == "" {
			return nil, fmt.Errorf("bidder %d: name is required", i)
		}
		if _, exists := reg.bidders[b.Name]; exists {
			return nil, fmt.Errorf("bidder %q declared twice", b.Name)
		}
		if b.TimeoutMs <= 0 {
			b.TimeoutMs = DefaultTimeoutMs
		}
		if len(b.Pools) == 0 {
			b.Pools = []string{DefaultPool}
		}
		switch b.Protocol {
		case "":
			b.Protocol = ProtocolAIP
		case ProtocolAIP, ProtocolOpenRTB:
		default:
			return nil, fmt.Errorf("bidder %q: unknown protocol %q", b.Name, b.Protocol)
		}
		if b.PublicKey != "" {
			key, err := transport.ParsePublicKeyPEM([]byte(b.PublicKey))
			if err != nil {
				return nil, fmt.Errorf("bidder %q: %w", b.Name, err)
			}
			b.key = key
		}
		reg.bidders[b.Name] = &b
	}
	return reg, nil
}

// All returns the roster sorted by name.
func (r *Registry) All() []*Bidder {
	out := make([]*Bidder, 0, len(r.bidders))
	for _, b := range r.bidders {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get looks a bidder up by name.
func (r *Registry) Get(name string) (*Bidder, bool) {
	b, ok := r.bidders[name]
	return b, ok
}

// PublicKey resolves a bidder's verification key.
func (r *Registry) PublicKey(name string) (ed25519.PublicKey, bool) {
	b, ok := r.bidders[name]
	if !ok || b.key == nil {
		return nil, false
	}
	return b.key, true
}

// ByPools returns the bidders subscribed to at least one of pools,
// sorted by name.
func (r *Registry) ByPools(pools []string) []*Bidder {
	var out []*Bidder
	for _, b := range r.bidders {
		if b.SubscribedTo(pools) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PoolMap inverts the roster: pool name to sorted bidder names.
func (r *Registry) PoolMap() map[string][]string {
	pools := make(map[string][]string)
	for _, b := range r.bidders {
		for _, pool := range b.Pools {
			pools[pool] = append(pools[pool], b.Name)
		}
	}
	for pool := range pools {
		sort.Strings(pools[pool])
	}
	return pools
}

// Len reports the roster size.
func (r *Registry) Len() int {
	return len(r.bidders)
}
