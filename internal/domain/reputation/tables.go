package reputation

import (
	"fmt"
	"net/netip"
	"strings"
)

// Flags raised by the analyzer
const (
	FlagIPPrivate      = "ip_private"
	FlagIPDatacenter   = "ip_datacenter"
	FlagIPLocalISP     = "ip_local_isp"
	FlagIPUnrecognized = "ip_unrecognized"

	FlagUAHeadless = "ua_headless"
	FlagUABot      = "ua_bot"
	FlagUALegacy   = "ua_legacy"
	FlagUAMissing  = "ua_missing"
)

// Weights are the points each verdict contributes. Credits are negative.
type Weights struct {
	Private      int
	Datacenter   int
	LocalISP     int
	Unrecognized int

	Headless int
	Bot      int
	Legacy   int
	Missing  int
}

// DefaultWeights returns the stock weights
func DefaultWeights() Weights {
	return Weights{
		Private:      -10,
		Datacenter:   20,
		LocalISP:     -5,
		Unrecognized: 10,
		Headless:     25,
		Bot:          20,
		Legacy:       15,
		Missing:      10,
	}
}

// Tables are the prefix and pattern lists the analyzer matches against.
// Patterns are matched case-insensitively as substrings.
type Tables struct {
	Datacenter      []netip.Prefix
	LocalISP        []netip.Prefix
	Headless        []string
	Bot             []string
	Legacy          []string
	MinUserAgentLen int
}

// ParseTables builds Tables from configuration strings
func ParseTables(datacenter, localISP, headless, bot, legacy []string, minUALen int) (Tables, error) {
	dc, err := parsePrefixes(datacenter)
	if err != nil {
		return Tables{}, fmt.Errorf("datacenter prefixes: %w", err)
	}
	isp, err := parsePrefixes(localISP)
	if err != nil {
		return Tables{}, fmt.Errorf("local isp prefixes: %w", err)
	}
	return Tables{
		Datacenter:      dc,
		LocalISP:        isp,
		Headless:        lower(headless),
		Bot:             lower(bot),
		Legacy:          lower(legacy),
		MinUserAgentLen: minUALen,
	}, nil
}

func parsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
