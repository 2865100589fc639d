// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/luxfi/aip/pkg/canonical"
	"github.com/luxfi/aip/pkg/core"
)

// SignedPayload is the material extracted from a signed request body:
// the canonical bytes the signature covers plus the fields the timestamp
// and nonce gates need.
type SignedPayload struct {
	Bytes     []byte
	Signature string
	Timestamp string
	Nonce     string
}

// Sign computes the base64 Ed25519 signature over the canonical bytes of
// v with any "signature" field removed. v must marshal to a JSON object.
func Sign(v any, priv ed25519.PrivateKey) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	payload, err := stripField(raw, "signature")
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, payload)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature over payload bytes.
func Verify(payload []byte, signatureB64 string, pub ed25519.PublicKey) bool {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}

// ExtractSigned pulls the signature, timestamp and nonce out of a raw
// JSON object and returns the canonical bytes with the signature field
// removed. The caller decides which key verifies it.
func ExtractSigned(raw []byte) (SignedPayload, error) {
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return SignedPayload{}, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
	}
	sig, _ := obj["signature"].(string)
	delete(obj, "signature")

	payload, err := canonical.Marshal(obj)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
	}
	sp := SignedPayload{Bytes: payload, Signature: sig}
	sp.Timestamp, _ = obj["timestamp"].(string)
	sp.Nonce, _ = obj["nonce"].(string)
	return sp, nil
}

// ExtractSignedAuth handles the context-request shape where the nonce and
// signature ride inside an "auth" object. The signature covers the full
// request with auth.signature removed.
func ExtractSignedAuth(raw []byte) (SignedPayload, error) {
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return SignedPayload{}, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
	}
	sp := SignedPayload{}
	sp.Timestamp, _ = obj["timestamp"].(string)
	if auth, ok := obj["auth"].(map[string]any); ok {
		sp.Signature, _ = auth["signature"].(string)
		sp.Nonce, _ = auth["nonce"].(string)
		delete(auth, "signature")
	}
	payload, err := canonical.Marshal(obj)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("%w: %v", core.ErrSchemaInvalid, err)
	}
	sp.Bytes = payload
	return sp, nil
}

// SignAuth computes the signature for a context request: canonical bytes
// of the full object with auth.signature removed.
func SignAuth(v any, priv ed25519.PrivateKey) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return "", err
	}
	if auth, ok := obj["auth"].(map[string]any); ok {
		delete(auth, "signature")
	}
	payload, err := canonical.Marshal(obj)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, payload)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// stripField re-encodes raw canonically with one top-level field removed.
func stripField(raw []byte, field string) ([]byte, error) {
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	delete(obj, field)
	return canonical.Marshal(obj)
}
