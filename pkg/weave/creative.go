// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package weave

import (
	"fmt"
	"strings"

	"github.com/luxfi/aip/pkg/core"
)

// FormatContent renders the winning creative as weave lines, one per
// resource url:
//
//	[Ad] {product_name} - {description} Learn more: {url}
//
// Descriptions pair with urls by index and the first one backfills any
// extras. No winner yields empty content and empty metadata.
func FormatContent(winner *core.Winner) (string, map[string]string) {
	if winner == nil {
		return "", map[string]string{}
	}
	ci := creativeInput(winner.Creative)
	brand := stringField(ci, "brand_name")
	product := stringField(ci, "product_name")
	descs := stringList(ci["descriptions"])
	if len(descs) == 0 {
		if d := stringField(ci, "description"); d != "" {
			descs = []string{d}
		}
	}
	urls := stringList(ci["resource_urls"])
	if len(urls) == 0 {
		if u := stringField(ci, "url"); u != "" {
			urls = []string{u}
		}
	}
	if len(urls) == 0 {
		urls = []string{"#"}
	}

	lines := make([]string, 0, len(urls))
	for i, url := range urls {
		desc := ""
		switch {
		case i < len(descs):
			desc = descs[i]
		case len(descs) > 0:
			desc = descs[0]
		}
		lines = append(lines, fmt.Sprintf("%s %s - %s Learn more: %s", core.RenderLabel, product, desc, url))
	}

	meta := map[string]string{
		"brand_name":   brand,
		"product_name": product,
		"url":          urls[0],
	}
	if len(descs) > 0 {
		meta["description"] = descs[0]
	} else {
		meta["description"] = ""
	}
	return strings.Join(lines, "\n"), meta
}

// creativeInput locates the creative fields, whether the bidder nested
// them under creative_input (directly or inside an offer) or sent them
// flat.
func creativeInput(creative map[string]any) map[string]any {
	if creative == nil {
		return map[string]any{}
	}
	if nested, ok := creative["creative_input"].(map[string]any); ok {
		return nested
	}
	if offer, ok := creative["offer"].(map[string]any); ok {
		if nested, ok := offer["creative_input"].(map[string]any); ok {
			return nested
		}
	}
	return creative
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringList(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
