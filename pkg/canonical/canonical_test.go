// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package canonical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	out, err := Canonicalize([]byte(`{"b":1,"a":2,"c":{"z":true,"y":false}}`))
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1,"c":{"y":false,"z":true}}`, string(out))
}

func TestCanonicalizeWhitespaceInvariant(t *testing.T) {
	compact, err := Canonicalize([]byte(`{"a":1,"b":[1,2,3]}`))
	require.NoError(t, err)

	spaced, err := Canonicalize([]byte("{\n  \"b\": [1, 2, 3],\n  \"a\": 1\n}"))
	require.NoError(t, err)
	require.Equal(t, string(compact), string(spaced))
}

func TestCanonicalizeNumbers(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`1`, `1`},
		{`1.5`, `1.5`},
		{`1.50`, `1.5`},
		{`1.500000`, `1.5`},
		{`1e2`, `100`},
		{`1E2`, `100`},
		{`2.5e-1`, `0.25`},
		{`-0`, `0`},
		{`0.0`, `0`},
		{`3.1400`, `3.14`},
		{`9007199254740993`, `9007199254740993`}, // beyond float53, kept exact
	}
	for _, tc := range cases {
		out, err := Canonicalize([]byte(tc.in))
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, string(out), "input %q", tc.in)
	}
}

func TestCanonicalizeEquivalentNumbersHashEqual(t *testing.T) {
	a, err := HashBytes([]byte(`{"price":1.50}`))
	require.NoError(t, err)
	b, err := HashBytes([]byte(`{"price":1.5}`))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestCanonicalizeStringEscaping(t *testing.T) {
	out, err := Canonicalize([]byte(`{"s":"line\nquote\"tab\tback\\slash"}`))
	require.NoError(t, err)
	require.Equal(t, `{"s":"line\nquote\"tab\tback\\slash"}`, string(out))

	// Control bytes that lack a shorthand use \u00xx.
	out, err = Canonicalize([]byte(`{"s":"\u0001"}`))
	require.NoError(t, err)
	require.Equal(t, `{"s":"\u0001"}`, string(out))

	// Non-ASCII passes through unescaped.
	out, err = Canonicalize([]byte(`{"s":"héllo é"}`))
	require.NoError(t, err)
	require.Equal(t, `{"s":"héllo é"}`, string(out))
}

func TestCanonicalizeDoesNotNormalizeUnicode(t *testing.T) {
	// U+00E9 (precomposed) and U+0065 U+0301 (combining) render alike but
	// are distinct byte sequences and must stay distinct.
	nfc, err := HashBytes([]byte("\"é\""))
	require.NoError(t, err)
	nfd, err := HashBytes([]byte("\"é\""))
	require.NoError(t, err)
	require.NotEqual(t, nfc, nfd)
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		`{"b":1.50,"a":[1e2,{"y":null,"x":"A"}]}`,
		`[true,false,null,0.0,"x"]`,
		`9223372036854775808`, // int64 overflow falls to the float path
	}
	for _, in := range inputs {
		once, err := Canonicalize([]byte(in))
		require.NoError(t, err)
		twice, err := Canonicalize(once)
		require.NoError(t, err)
		require.Equal(t, string(once), string(twice), "input %q", in)
	}
}

func TestCanonicalizeRejectsTrailingData(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestMarshalStruct(t *testing.T) {
	type payload struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		Extra any     `json:"extra,omitempty"`
	}
	out, err := Marshal(payload{Name: "bid", Price: 2.5})
	require.NoError(t, err)
	require.Equal(t, `{"name":"bid","price":2.5}`, string(out))
}

func TestHashDiffersForDifferentValues(t *testing.T) {
	a, err := Hash(map[string]any{"a": 1})
	require.NoError(t, err)
	b, err := Hash(map[string]any{"a": 2})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 64)
}
