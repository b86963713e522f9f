// Package webhook guards inbound payment-provider callbacks: HMAC
// signature verification followed by an idempotency ledger.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"net/http"
	"strings"

	"riskguard/internal/domain/fraud"
)

// Algorithm is the HMAC hash function
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	SHA1   Algorithm = "sha1"
)

// ErrUnknownAlgorithm is returned for an unsupported hash name
var ErrUnknownAlgorithm = errors.New("unknown signature algorithm")

// ParseAlgorithm parses a configured algorithm name. Empty means SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return SHA256, nil
	case SHA256, SHA512, SHA1:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

func (a Algorithm) hash() func() hash.Hash {
	switch a {
	case SHA512:
		return sha512.New
	case SHA1:
		return sha1.New
	default:
		return sha256.New
	}
}

func (a Algorithm) size() int {
	return a.hash()().Size()
}

// Sign returns the hex HMAC of payload under secret
func Sign(payload []byte, secret string, algo Algorithm) string {
	mac := hmac.New(algo.hash(), []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against the HMAC of payload. The header may carry
// an "<algo>=" prefix and may be lowercase hex or padded standard base64. A prefix naming a
// different algorithm than the configured one never verifies. Undecodable
// signatures are a validation error.
func Verify(payload []byte, header, secret string, algo Algorithm) (bool, error) {
	if algo == "" {
		algo = SHA256
	}
	sig := strings.TrimSpace(header)
	if prefix, rest, ok := strings.Cut(sig, "="); ok && isAlgorithmName(prefix) {
		if Algorithm(strings.ToLower(prefix)) != algo {
			return false, nil
		}
		sig = rest
	}

	got, err := decodeSignature(sig, algo.size())
	if err != nil {
		return false, fraud.ValidationError(fraud.CodeWebhookSignatureEncoding, http.StatusUnauthorized,
			"signature is not valid hex or base64", err)
	}

	mac := hmac.New(algo.hash(), []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil)), nil
}

func isAlgorithmName(s string) bool {
	switch Algorithm(strings.ToLower(s)) {
	case SHA256, SHA512, SHA1:
		return true
	}
	return false
}

// decodeSignature accepts lowercase hex or padded standard base64. Each
// signature has exactly one accepted spelling: the decoded bytes must
// encode back to sig.
// A well-formed signature of the wrong length decodes but will not match.
func decodeSignature(sig string, size int) ([]byte, error) {
	if sig == "" {
		return nil, errors.New("empty signature")
	}
	if len(sig) == hex.EncodedLen(size) {
		if b, err := hex.DecodeString(sig); err == nil && hex.EncodeToString(b) == sig {
			return b, nil
		}
	}
	enc := base64.StdEncoding.Strict()
	if b, err := enc.DecodeString(sig); err == nil && enc.EncodeToString(b) == sig {
		return b, nil
	}
	if b, err := hex.DecodeString(sig); err == nil && hex.EncodeToString(b) == sig {
		return b, nil
	}
	return nil, errors.New("undecodable signature")
}
