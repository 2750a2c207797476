// Package signature signs webhook bodies so subscribers can authenticate them.
//
// The signature header value has the form "sha256=<hex>", where <hex> is the
// HMAC-SHA256 of the raw request body keyed with the subscription secret.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Scheme is the prefix of every signature produced by Sign.
const Scheme = "sha256="

// ErrEmptySecret is returned when signing without a key.
var ErrEmptySecret = errors.New("signature: secret is empty")

// Canonicalize serializes v deterministically: object keys sorted, no
// insignificant whitespace, HTML characters left unescaped. Numbers keep
// their original textual form.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encoding canonical payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Sign returns the scheme-tagged HMAC-SHA256 of payload.
func Sign(payload, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return Scheme + hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature of payload and compares it to header in
// constant time.
func Verify(payload, secret []byte, header string) bool {
	if !strings.HasPrefix(header, Scheme) {
		return false
	}
	expected, err := Sign(payload, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(header))
}
