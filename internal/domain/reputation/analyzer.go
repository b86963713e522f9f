// Package reputation scores client IPs and user agents from static tables.
// Everything here is pure: no state, no I/O.
package reputation

import (
	"net/netip"
	"strings"

	"riskguard/internal/domain/signal"
)

type prefixRule struct {
	prefixes []netip.Prefix
	points   int
	flag     string
}

type patternRule struct {
	patterns []string
	points   int
	flag     string
}

// Analyzer evaluates IP and user-agent reputation
type Analyzer struct {
	ipRules         []prefixRule
	uaRules         []patternRule
	privatePoints   int
	unrecognized    int
	missingPoints   int
	minUserAgentLen int
}

// NewAnalyzer creates an analyzer over the given tables
func NewAnalyzer(t Tables, w Weights) *Analyzer {
	return &Analyzer{
		ipRules: []prefixRule{
			{prefixes: t.Datacenter, points: w.Datacenter, flag: FlagIPDatacenter},
			{prefixes: t.LocalISP, points: w.LocalISP, flag: FlagIPLocalISP},
		},
		// evaluated in escalation order, first match wins
		uaRules: []patternRule{
			{patterns: t.Headless, points: w.Headless, flag: FlagUAHeadless},
			{patterns: t.Bot, points: w.Bot, flag: FlagUABot},
			{patterns: t.Legacy, points: w.Legacy, flag: FlagUALegacy},
		},
		privatePoints:   w.Private,
		unrecognized:    w.Unrecognized,
		missingPoints:   w.Missing,
		minUserAgentLen: t.MinUserAgentLen,
	}
}

// AnalyzeIP scores a client IP. Malformed or non-IPv4 input is penalised
// for uncertainty but never rejected.
func (a *Analyzer) AnalyzeIP(ip string) signal.Assessment {
	var res signal.Assessment

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		res.Add(a.unrecognized, FlagIPUnrecognized)
		return res
	}
	addr = addr.Unmap()

	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		res.Add(a.privatePoints, FlagIPPrivate)
		return res
	}
	if !addr.Is4() || addr.IsUnspecified() {
		res.Add(a.unrecognized, FlagIPUnrecognized)
		return res
	}

	for _, rule := range a.ipRules {
		if containsAddr(rule.prefixes, addr) {
			res.Add(rule.points, rule.flag)
			return res
		}
	}
	return res
}

// AnalyzeUserAgent scores a user-agent string. Only the most severe
// matching category applies.
func (a *Analyzer) AnalyzeUserAgent(ua string) signal.Assessment {
	var res signal.Assessment

	ua = strings.TrimSpace(ua)
	if len(ua) < a.minUserAgentLen || ua == "" {
		res.Add(a.missingPoints, FlagUAMissing)
		return res
	}

	lowered := strings.ToLower(ua)
	for _, rule := range a.uaRules {
		if containsAny(lowered, rule.patterns) {
			res.Add(rule.points, rule.flag)
			return res
		}
	}
	return res
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
