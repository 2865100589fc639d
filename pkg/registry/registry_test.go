// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/luxfi/aip/pkg/transport"
)

func testPEM(t *testing.T) string {
	t.Helper()
	pub, _, err := transport.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	pem, err := transport.EncodePublicKeyPEM(pub)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem)
}

func TestNewAppliesDefaults(t *testing.T) {
	reg, err := New([]Bidder{{Name: "acme", Endpoint: "http://acme.test/bid"}})
	if err != nil {
		t.Fatal(err)
	}
	b, ok := reg.Get("acme")
	if !ok {
		t.Fatal("acme not found")
	}
	if b.TimeoutMs != DefaultTimeoutMs {
		t.Errorf("timeout_ms = %d, want %d", b.TimeoutMs, DefaultTimeoutMs)
	}
	if len(b.Pools) != 1 || b.Pools[0] != DefaultPool {
		t.Errorf("pools = %v, want [%s]", b.Pools, DefaultPool)
	}
	if b.Protocol != ProtocolAIP {
		t.Errorf("protocol = %q, want %q", b.Protocol, ProtocolAIP)
	}
	if b.Key() != nil {
		t.Errorf("key should be nil without public_key")
	}
}

func TestNewRejectsBadEntries(t *testing.T) {
	if _, err := New([]Bidder{{Endpoint: "http://x"}}); err == nil {
		t.Errorf("missing name accepted")
	}
	if _, err := New([]Bidder{{Name: "a"}, {Name: "a"}}); err == nil {
		t.Errorf("duplicate name accepted")
	}
	if _, err := New([]Bidder{{Name: "a", Protocol: "soap"}}); err == nil {
		t.Errorf("unknown protocol accepted")
	}
	if _, err := New([]Bidder{{Name: "a", PublicKey: "not pem"}}); err == nil {
		t.Errorf("bad key accepted")
	}
}

func TestByPools(t *testing.T) {
	reg, err := New([]Bidder{
		{Name: "shoes-a", Pools: []string{"footwear"}},
		{Name: "shoes-b", Pools: []string{"footwear", "sports"}},
		{Name: "travel", Pools: []string{"travel"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := reg.ByPools([]string{"footwear"})
	if len(got) != 2 || got[0].Name != "shoes-a" || got[1].Name != "shoes-b" {
		t.Errorf("footwear bidders = %v", names(got))
	}
	if got := reg.ByPools([]string{"sports", "travel"}); len(got) != 2 {
		t.Errorf("union lookup = %v", names(got))
	}
	if got := reg.ByPools([]string{"autos"}); len(got) != 0 {
		t.Errorf("autos should be empty, got %v", names(got))
	}
}

func TestPoolMap(t *testing.T) {
	reg, err := New([]Bidder{
		{Name: "b", Pools: []string{"p1"}},
		{Name: "a", Pools: []string{"p1", "p2"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	pools := reg.PoolMap()
	if len(pools["p1"]) != 2 || pools["p1"][0] != "a" {
		t.Errorf("p1 = %v, want sorted [a b]", pools["p1"])
	}
	if len(pools["p2"]) != 1 {
		t.Errorf("p2 = %v", pools["p2"])
	}
}

func TestLoadRoster(t *testing.T) {
	pem := testPEM(t)
	doc := `bidders:
  - name: acme
    endpoint: http://acme.test/bid
    timeout_ms: 150
    pools: [footwear]
    public_key: |
` + indent(pem, "      ") + `
  - name: rtb-house
    endpoint: http://rtb.test/openrtb
    protocol: openrtb
`
	path := filepath.Join(t.TempDir(), "bidders.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 2 {
		t.Fatalf("len = %d, want 2", reg.Len())
	}
	if _, ok := reg.PublicKey("acme"); !ok {
		t.Errorf("acme key missing")
	}
	if _, ok := reg.PublicKey("rtb-house"); ok {
		t.Errorf("rtb-house should have no key")
	}
	b, _ := reg.Get("rtb-house")
	if b.Protocol != ProtocolOpenRTB {
		t.Errorf("protocol = %q", b.Protocol)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	doc := `bidders:
  - name: acme
    endpont: http://typo.test
`
	path := filepath.Join(t.TempDir(), "bidders.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("unknown field accepted")
	}
}

func names(bidders []*Bidder) []string {
	out := make([]string, len(bidders))
	for i, b := range bidders {
		out[i] = b.Name
	}
	return out
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
