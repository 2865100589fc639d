// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package classify

import (
	"reflect"
	"testing"

	"github.com/luxfi/aip/pkg/core"
)

func TestPools(t *testing.T) {
	c := New([]Rule{
		{Pool: "footwear", Keywords: []string{"shoes", "sneaker", "boots"}},
		{Pool: "travel", Keywords: []string{"flight", "hotel"}},
		{Pool: "sports", Keywords: []string{"running", "trail"}},
	}, "default")

	cases := []struct {
		name string
		req  core.ContextRequest
		want []string
	}{
		{"single match", core.ContextRequest{QueryText: "best trail SHOES"}, []string{"footwear", "sports"}},
		{"case insensitive", core.ContextRequest{QueryText: "Cheap FLIGHT to lisbon"}, []string{"travel"}},
		{"no match falls back", core.ContextRequest{QueryText: "weather tomorrow"}, []string{"default"}},
		{"caller pools pass through", core.ContextRequest{QueryText: "weather", Pools: []string{"weather-ads"}}, []string{"weather-ads"}},
		{"caller pools union rules", core.ContextRequest{QueryText: "boots", Pools: []string{"luxury"}}, []string{"footwear", "luxury"}},
		{"duplicates collapse", core.ContextRequest{QueryText: "boots", Pools: []string{"footwear"}}, []string{"footwear"}},
	}
	for _, tc := range cases {
		got := c.Pools(&tc.req)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: Pools() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewSkipsEmptyRules(t *testing.T) {
	c := New([]Rule{
		{Pool: "", Keywords: []string{"x"}},
		{Pool: "y", Keywords: nil},
		{Pool: "z", Keywords: []string{"  "}},
	}, "")
	if got := c.Pools(&core.ContextRequest{QueryText: "x y z"}); !reflect.DeepEqual(got, []string{"default"}) {
		t.Errorf("degenerate rules should not match, got %v", got)
	}
	if c.DefaultPool() != "default" {
		t.Errorf("default pool = %q", c.DefaultPool())
	}
}
