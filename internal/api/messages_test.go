package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInbound(t *testing.T) {
	tests := []struct {
		name    string
		message Message
		wantErr bool
	}{
		{
			name:    "request-offer without fields",
			message: Message{Type: MessageTypeRequestOffer},
		},
		{
			name:    "request-offer with internet mode",
			message: Message{Type: MessageTypeRequestOffer, InternetMode: true},
		},
		{
			name:    "answer with sdp",
			message: Message{Type: MessageTypeAnswer, SDP: "v=0..."},
		},
		{
			name:    "answer missing sdp",
			message: Message{Type: MessageTypeAnswer},
			wantErr: true,
		},
		{
			name: "ice candidate with payload",
			message: Message{
				Type:      MessageTypeIceCandidate,
				Candidate: &IceCandidate{Candidate: "candidate:1 1 udp ...", SDPMLineIndex: 0},
			},
		},
		{
			name:    "ice candidate missing payload",
			message: Message{Type: MessageTypeIceCandidate},
			wantErr: true,
		},
		{
			name:    "peer-left",
			message: Message{Type: MessageTypePeerLeft},
		},
		{
			name:    "unknown type",
			message: Message{Type: MessageType("bogus")},
			wantErr: true,
		},
		{
			name:    "server-only type from viewer",
			message: Message{Type: MessageTypeOffer, SDP: "v=0..."},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.message.ValidateInbound()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	msg := Candidate("srv1", 1, "candidate:2 1 udp 1694498815 203.0.113.9 40000 typ srflx")

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, MessageTypeIceCandidate, decoded.Type)
	assert.Equal(t, "srv1", decoded.From)
	require.NotNil(t, decoded.Candidate)
	assert.Equal(t, uint16(1), decoded.Candidate.SDPMLineIndex)
}
