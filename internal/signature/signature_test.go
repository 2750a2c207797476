package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/hookline/internal/signature"
)

func TestSign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		secret  string
	}{
		{name: "basic payload", payload: []byte(`{"event":"user.created","data":{"id":"123"}}`), secret: "my-secret-key"},
		{name: "empty object", payload: []byte(`{}`), secret: "secret"},
		{name: "unicode payload", payload: []byte(`{"name":"café","price":"€10"}`), secret: "unicode-key-日本語"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sig, err := signature.Sign(tt.payload, []byte(tt.secret))
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(sig, signature.Scheme))

			decoded, err := hex.DecodeString(strings.TrimPrefix(sig, signature.Scheme))
			require.NoError(t, err)
			assert.Len(t, decoded, sha256.Size)

			mac := hmac.New(sha256.New, []byte(tt.secret))
			mac.Write(tt.payload)
			assert.Equal(t, signature.Scheme+hex.EncodeToString(mac.Sum(nil)), sig)
		})
	}
}

func TestSign_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := signature.Sign([]byte(`{"a":1}`), nil)
	assert.ErrorIs(t, err, signature.ErrEmptySecret)
}

func TestSign_DeterministicAndKeyed(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"event":"test"}`)

	a, _ := signature.Sign(payload, []byte("secret-1"))
	b, _ := signature.Sign(payload, []byte("secret-1"))
	c, _ := signature.Sign(payload, []byte("secret-2"))
	d, _ := signature.Sign([]byte(`{"event":"other"}`), []byte("secret-1"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_1"}`)
	secret := []byte("whsec_test")
	sig, err := signature.Sign(payload, secret)
	require.NoError(t, err)

	assert.True(t, signature.Verify(payload, secret, sig))
	assert.False(t, signature.Verify(payload, []byte("wrong"), sig))
	assert.False(t, signature.Verify([]byte(`{"id":"evt_2"}`), secret, sig))
	assert.False(t, signature.Verify(payload, secret, strings.TrimPrefix(sig, signature.Scheme)))
	assert.False(t, signature.Verify(payload, nil, sig))
}

func TestCanonicalize_StableKeyOrder(t *testing.T) {
	t.Parallel()

	a, err := signature.Canonicalize(json.RawMessage(`{"b": 2, "a": {"z": true, "y": null}}`))
	require.NoError(t, err)
	b, err := signature.Canonicalize(map[string]any{"a": map[string]any{"y": nil, "z": true}, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, `{"a":{"y":null,"z":true},"b":2}`, string(a))
	assert.Equal(t, string(a), string(b))
}

func TestCanonicalize_PreservesNumbersAndHTML(t *testing.T) {
	t.Parallel()

	out, err := signature.Canonicalize(json.RawMessage(`{"amount": 50.10, "big": 12345678901234567890, "note": "<b>&</b>"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"amount":50.10,"big":12345678901234567890,"note":"<b>&</b>"}`, string(out))
}

func TestCanonicalize_InvalidInput(t *testing.T) {
	t.Parallel()

	_, err := signature.Canonicalize(func() {})
	assert.Error(t, err)
}
