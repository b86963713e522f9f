package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskguard/internal/domain/fraud"
)

const secret = "whsec_test_secret"

var payload = []byte(`{"data":{"id":"evt_123","attributes":{"amount":100000}}}`)

func TestVerify_Encodings(t *testing.T) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	raw := mac.Sum(nil)
	hexSig := Sign(payload, secret, SHA256)

	tests := []struct {
		name   string
		header string
		algo   Algorithm
		want   bool
	}{
		{"hex", hexSig, SHA256, true},
		{"hex with prefix", "sha256=" + hexSig, SHA256, true},
		{"uppercase prefix", "SHA256=" + hexSig, SHA256, true},
		{"base64", base64.StdEncoding.EncodeToString(raw), SHA256, true},
		{"default algorithm", hexSig, "", true},
		{"prefix names another algorithm", "sha1=" + hexSig, SHA256, false},
		{"wrong algorithm", hexSig, SHA512, false},
		{"other secret", Sign(payload, "other", SHA256), SHA256, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Verify(payload, tt.header, secret, tt.algo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVerify_SHA512AndSHA1(t *testing.T) {
	for _, algo := range []Algorithm{SHA512, SHA1} {
		ok, err := Verify(payload, Sign(payload, secret, algo), secret, algo)
		require.NoError(t, err)
		assert.True(t, ok, string(algo))
	}
}

func TestVerify_AnySingleByteFlipFails(t *testing.T) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	raw := mac.Sum(nil)

	encodings := map[string]string{
		"hex":    hex.EncodeToString(raw),
		"base64": base64.StdEncoding.EncodeToString(raw),
	}
	for name, valid := range encodings {
		t.Run(name, func(t *testing.T) {
			ok, err := Verify(payload, valid, secret, SHA256)
			require.NoError(t, err)
			require.True(t, ok)

			for i := 0; i < len(valid); i++ {
				for b := 0; b < 256; b++ {
					if byte(b) == valid[i] {
						continue
					}
					flipped := []byte(valid)
					flipped[i] = byte(b)
					ok, err := Verify(payload, string(flipped), secret, SHA256)
					if err == nil && ok {
						t.Errorf("byte %d set to %q still verifies", i, b)
					}
				}
			}
		})
	}
}

func TestVerify_AlternateSpellingsFail(t *testing.T) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	raw := mac.Sum(nil)

	hexSig := hex.EncodeToString(raw)
	b64 := base64.StdEncoding.EncodeToString(raw)

	// the last data character of a 32-byte padded encoding carries two
	// padding bits; toggling the lowest one keeps the decoded bytes
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	last := len(b64) - 2
	paddingBits := []byte(b64)
	paddingBits[last] = alphabet[strings.IndexByte(alphabet, b64[last])^1]

	tests := map[string]string{
		"uppercase hex":         strings.ToUpper(hexSig),
		"unpadded base64":       base64.RawStdEncoding.EncodeToString(raw),
		"non-zero padding bits": string(paddingBits),
	}
	for name, sig := range tests {
		t.Run(name, func(t *testing.T) {
			require.NotEqual(t, hexSig, sig)
			require.NotEqual(t, b64, sig)
			ok, err := Verify(payload, sig, secret, SHA256)
			assert.False(t, err == nil && ok)
		})
	}
}

func TestVerify_PayloadTamperFails(t *testing.T) {
	sig := Sign(payload, secret, SHA256)
	tampered := []byte(`{"data":{"id":"evt_123","attributes":{"amount":100001}}}`)

	ok, err := Verify(tampered, sig, secret, SHA256)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_MalformedEncodingIsValidationError(t *testing.T) {
	_, err := Verify(payload, "!!!not-a-signature!!!", secret, SHA256)
	require.Error(t, err)
	assert.Equal(t, fraud.KindValidation, fraud.KindOf(err))
	assert.Equal(t, fraud.CodeWebhookSignatureEncoding, fraud.CodeOf(err))
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, a)

	a, err = ParseAlgorithm("SHA512")
	require.NoError(t, err)
	assert.Equal(t, SHA512, a)

	_, err = ParseAlgorithm("md5")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestCanonicalJSON(t *testing.T) {
	out, err := CanonicalJSON([]byte(`{ "b": 1.50, "a": {"z": true, "y": "<x>"} }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":"<x>","z":true},"b":1.50}`, string(out))

	_, err = CanonicalJSON([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	_, err = CanonicalJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestExtractTransactionID(t *testing.T) {
	tests := map[string]string{
		`{"transaction_id":"tx-1","id":"evt"}`:      "tx-1",
		`{"data":{"id":"evt_123"}}`:                 "evt_123",
		`{"id":"inv-9","external_id":"order-1"}`:    "inv-9",
		`{"external_id":"order-1"}`:                 "order-1",
		`{"transactionId":12345}`:                   "12345",
		`{"data":{"attributes":{"status":"paid"}}}`: "",
		`[1,2,3]`:                                   "",
	}
	for body, want := range tests {
		assert.Equal(t, want, ExtractTransactionID([]byte(body)), body)
	}
}
