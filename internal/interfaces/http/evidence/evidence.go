// Package evidence derives request facts used for risk scoring: the client
// IP, a device fingerprint and the user agent.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"riskguard/internal/domain/fraud"
)

// FallbackIP is returned when no client address can be resolved
const FallbackIP = "0.0.0.0"

// FingerprintHeader carries a client-computed device fingerprint
const FingerprintHeader = "X-Device-Fingerprint"

// fingerprintLen is the number of hex chars kept from the derived hash
const fingerprintLen = 32

// Device hints that take part in the derived fingerprint
var hintKeys = []string{"screen", "timezone", "memory"}

// ClientIP resolves the caller address: first X-Forwarded-For value, then
// X-Real-IP, then the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return FallbackIP
}

// DeviceFingerprint returns the client-supplied fingerprint when present,
// otherwise a stable hash of browser headers and device hints.
func DeviceFingerprint(r *http.Request, supplied string, hints map[string]any) string {
	if fp := strings.TrimSpace(r.Header.Get(FingerprintHeader)); fp != "" {
		return fp
	}
	if fp := strings.TrimSpace(supplied); fp != "" {
		return fp
	}

	parts := []string{
		r.UserAgent(),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		r.Header.Get("Sec-CH-UA-Platform"),
	}
	for _, k := range hintKeys {
		if v, ok := hints[k]; ok && v != nil {
			parts = append(parts, fmt.Sprint(v))
		} else {
			parts = append(parts, "")
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// RequestContext collects the request-derived part of risk evidence
func RequestContext(r *http.Request, userID, suppliedFingerprint string, hints map[string]any, now time.Time) fraud.RequestContext {
	return fraud.RequestContext{
		UserID:            userID,
		IP:                ClientIP(r),
		UserAgent:         r.UserAgent(),
		DeviceFingerprint: DeviceFingerprint(r, suppliedFingerprint, hints),
		DeviceInfo:        hints,
		At:                now,
	}
}
