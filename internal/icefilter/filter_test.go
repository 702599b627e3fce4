package icefilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		wantType  CandidateType
		wantScope Scope
	}{
		{
			name:      "private host",
			candidate: "candidate:842163049 1 udp 1677729535 192.168.1.5 53705 typ host generation 0",
			wantType:  TypeHost,
			wantScope: ScopePrivate,
		},
		{
			name:      "ten-net host",
			candidate: "candidate:1 1 udp 2122260223 10.4.12.9 40124 typ host",
			wantType:  TypeHost,
			wantScope: ScopePrivate,
		},
		{
			name:      "rfc1918 172.16/12 upper bound",
			candidate: "candidate:1 1 udp 2122260223 172.31.255.1 40124 typ host",
			wantType:  TypeHost,
			wantScope: ScopePrivate,
		},
		{
			name:      "172.32 is public",
			candidate: "candidate:1 1 udp 2122260223 172.32.0.1 40124 typ host",
			wantType:  TypeHost,
			wantScope: ScopePublic,
		},
		{
			name:      "server reflexive public",
			candidate: "candidate:2 1 udp 1694498815 203.0.113.9 40000 typ srflx raddr 0.0.0.0 rport 0",
			wantType:  TypeSrflx,
			wantScope: ScopePublic,
		},
		{
			name:      "relay",
			candidate: "candidate:3 1 udp 41885439 198.51.100.20 3478 typ relay raddr 0.0.0.0 rport 0",
			wantType:  TypeRelay,
			wantScope: ScopePublic,
		},
		{
			name:      "ipv6 host treated as public scope",
			candidate: "candidate:4 1 udp 2122260223 2001:db8::1 40124 typ host",
			wantType:  TypeHost,
			wantScope: ScopePublic,
		},
		{
			name:      "mdns hostname treated as public scope",
			candidate: "candidate:5 1 udp 2122260223 9b36eaac-bb2e-49bb-8845-5df05991b04f.local 40124 typ host",
			wantType:  TypeHost,
			wantScope: ScopePublic,
		},
		{
			name:      "missing typ token",
			candidate: "candidate:6 1 udp 2122260223 192.168.0.7 40124",
			wantType:  TypeUnknown,
			wantScope: ScopePrivate,
		},
		{
			name:      "garbage",
			candidate: "not a candidate",
			wantType:  TypeUnknown,
			wantScope: ScopePublic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, scope := Classify(tt.candidate)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantScope, scope)
		})
	}
}

func TestShouldForward(t *testing.T) {
	privateHost := "candidate:842163049 1 udp 1677729535 192.168.1.5 53705 typ host generation 0"
	publicSrflx := "candidate:2 1 udp 1694498815 203.0.113.9 40000 typ srflx raddr 0.0.0.0 rport 0"
	relay := "candidate:3 1 udp 41885439 198.51.100.20 3478 typ relay raddr 0.0.0.0 rport 0"

	tests := []struct {
		name      string
		mode      Mode
		candidate string
		want      bool
	}{
		{"lan forwards private host", ModeLAN, privateHost, true},
		{"lan drops srflx", ModeLAN, publicSrflx, false},
		{"lan drops relay", ModeLAN, relay, false},
		{"internet forwards private host", ModeInternet, privateHost, true},
		{"internet forwards srflx", ModeInternet, publicSrflx, true},
		{"internet forwards relay", ModeInternet, relay, true},
		{"end-of-gathering marker never forwarded in lan", ModeLAN, "", false},
		{"end-of-gathering marker never forwarded in internet", ModeInternet, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldForward(tt.mode, tt.candidate))
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "lan", ModeLAN.String())
	assert.Equal(t, "internet", ModeInternet.String())
}
