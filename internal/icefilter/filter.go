package icefilter

import (
	"log/slog"
	"net/netip"
	"strings"

	"github.com/adaptcast/webrtc-multicast/internal/metrics"
)

// Mode selects the negotiation topology of a session. It is fixed when the
// session is created and never changes afterwards.
type Mode int

const (
	// ModeLAN negotiates without STUN/TURN and forwards only host candidates
	// with private addresses.
	ModeLAN Mode = iota
	// ModeInternet negotiates with the configured ICE servers and forwards
	// every gathered candidate.
	ModeInternet
)

func (m Mode) String() string {
	if m == ModeInternet {
		return "internet"
	}
	return "lan"
}

// CandidateType is the `typ` attribute of an ICE candidate line.
type CandidateType string

const (
	TypeHost    = CandidateType("host")
	TypeSrflx   = CandidateType("srflx")
	TypeRelay   = CandidateType("relay")
	TypeUnknown = CandidateType("unknown")
)

// Scope classifies the candidate's connection address.
type Scope int

const (
	ScopePublic Scope = iota
	ScopePrivate
)

var rfc1918Prefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// Classify extracts the candidate type and address scope from a raw SDP
// candidate attribute, e.g.
//
//	candidate:842163049 1 udp 1677729535 192.168.1.5 53705 typ host ...
//
// An address that cannot be parsed as IPv4 (including mDNS obfuscated
// hostnames and IPv6 literals) classifies as public, so LAN mode drops it.
func Classify(candidate string) (CandidateType, Scope) {
	fields := strings.Fields(candidate)

	typ := TypeUnknown
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "typ" {
			switch fields[i+1] {
			case "host":
				typ = TypeHost
			case "srflx":
				typ = TypeSrflx
			case "relay":
				typ = TypeRelay
			}
			break
		}
	}

	scope := ScopePublic
	if len(fields) >= 5 {
		if addr, err := netip.ParseAddr(fields[4]); err == nil {
			if addr.Is4In6() {
				addr = addr.Unmap()
			}
			if addr.Is4() {
				for _, p := range rfc1918Prefixes {
					if p.Contains(addr) {
						scope = ScopePrivate
						break
					}
				}
			}
		}
	}

	return typ, scope
}

// ShouldForward decides whether a locally gathered candidate may be sent to
// the viewer. The empty candidate marks end of gathering and is never
// forwarded. Withheld candidates are logged and counted; the decision itself
// has no side effects on the session.
func ShouldForward(mode Mode, candidate string) bool {
	if candidate == "" {
		return false
	}

	typ, scope := Classify(candidate)

	forward := mode == ModeInternet || (typ == TypeHost && scope == ScopePrivate)
	if forward {
		metrics.CandidatesForwardedTotal.WithLabelValues(string(typ)).Inc()
		return true
	}

	metrics.CandidatesDroppedTotal.WithLabelValues(string(typ)).Inc()
	slog.Debug("withholding ICE candidate",
		"mode", mode.String(), "type", string(typ), "candidate", candidate)
	return false
}
