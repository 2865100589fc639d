// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package classify resolves a context request to its category pools. The
// classifier is pure: configured keyword rules run against the query
// text, caller-supplied pools pass through, and the default pool backs
// everything else so the result is never empty.
package classify

import (
	"sort"
	"strings"

	"github.com/luxfi/aip/pkg/core"
)

// Rule routes queries containing any of its keywords to a pool.
// Matching is case-insensitive substring.
type Rule struct {
	Pool     string   `yaml:"pool" json:"pool"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Classifier holds compiled rules.
type Classifier struct {
	rules       []rule
	defaultPool string
}

type rule struct {
	pool     string
	keywords []string
}

// New compiles rules; keywords are lowercased once. An empty defaultPool
// falls back to "default".
func New(rules []Rule, defaultPool string) *Classifier {
	if defaultPool == "" {
		defaultPool = "default"
	}
	c := &Classifier{defaultPool: defaultPool}
	for _, r := range rules {
		if r.Pool == "" || len(r.Keywords) == 0 {
			continue
		}
		compiled := rule{pool: r.Pool, keywords: make([]string, 0, len(r.Keywords))}
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				compiled.keywords = append(compiled.keywords, kw)
			}
		}
		if len(compiled.keywords) > 0 {
			c.rules = append(c.rules, compiled)
		}
	}
	return c
}

// Pools returns the sorted, de-duplicated pool set for a request: rule
// matches plus caller-supplied pools, or the default pool when nothing
// matched.
func (c *Classifier) Pools(req *core.ContextRequest) []string {
	seen := make(map[string]struct{})
	for _, pool := range req.Pools {
		if pool != "" {
			seen[pool] = struct{}{}
		}
	}

	query := strings.ToLower(req.QueryText)
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(query, kw) {
				seen[r.pool] = struct{}{}
				break
			}
		}
	}

	if len(seen) == 0 {
		return []string{c.defaultPool}
	}
	out := make([]string, 0, len(seen))
	for pool := range seen {
		out = append(out, pool)
	}
	sort.Strings(out)
	return out
}

// DefaultPool exposes the fallback pool name.
func (c *Classifier) DefaultPool() string {
	return c.defaultPool
}
