package api

import "errors"

// MessageType tags every signaling message exchanged with a viewer. The set
// is closed: the dispatcher matches it exhaustively and drops anything else.
type MessageType string

const (
	// MessageTypeRegistered is sent once by the server right after a viewer
	// connects, carrying the identity assigned to that viewer.
	MessageTypeRegistered = MessageType("registered")

	// MessageTypeRequestOffer is sent by a viewer to start (or restart) a
	// negotiation. InternetMode selects full STUN/TURN negotiation; without
	// it the session stays LAN-only.
	MessageTypeRequestOffer = MessageType("request-offer")

	// MessageTypeOffer carries the server's SDP offer to a viewer.
	MessageTypeOffer = MessageType("offer")

	// MessageTypeAnswer carries the viewer's SDP answer back.
	MessageTypeAnswer = MessageType("answer")

	// MessageTypeIceCandidate carries one trickled ICE candidate in either
	// direction.
	MessageTypeIceCandidate = MessageType("ice-candidate")

	// MessageTypePeerLeft announces that a viewer is gone. It is either sent
	// explicitly by a departing viewer or synthesized when its transport
	// closes.
	MessageTypePeerLeft = MessageType("peer-left")
)

// ErrMalformedMessage marks an inbound message that fails structural
// validation. Such messages are dropped without touching any session.
var ErrMalformedMessage = errors.New("malformed signaling message")

// IceCandidate is the candidate payload of an ice-candidate message.
type IceCandidate struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// Message is the single wire envelope for all viewer signaling. Exactly one
// persistent channel exists per viewer, so the viewer identity is implicit;
// From identifies the sender on server-originated messages.
type Message struct {
	Type         MessageType   `json:"type"`
	ID           string        `json:"id,omitempty"`
	From         string        `json:"from,omitempty"`
	SDP          string        `json:"sdp,omitempty"`
	InternetMode bool          `json:"internetMode,omitempty"`
	Candidate    *IceCandidate `json:"candidate,omitempty"`
}

// ValidateInbound checks the structural requirements of a viewer-originated
// message before it reaches the dispatcher.
func (m *Message) ValidateInbound() error {
	switch m.Type {
	case MessageTypeRequestOffer, MessageTypePeerLeft:
		return nil
	case MessageTypeAnswer:
		if m.SDP == "" {
			return ErrMalformedMessage
		}
		return nil
	case MessageTypeIceCandidate:
		if m.Candidate == nil {
			return ErrMalformedMessage
		}
		return nil
	default:
		return ErrMalformedMessage
	}
}

// Registered builds the greeting sent to a freshly connected viewer.
func Registered(id string) Message {
	return Message{Type: MessageTypeRegistered, ID: id}
}

// Offer builds an offer message originating from the given sender identity.
func Offer(from, sdp string) Message {
	return Message{Type: MessageTypeOffer, From: from, SDP: sdp}
}

// Candidate builds an outbound ice-candidate message.
func Candidate(from string, mlineIndex uint16, candidate string) Message {
	return Message{
		Type: MessageTypeIceCandidate,
		From: from,
		Candidate: &IceCandidate{
			Candidate:     candidate,
			SDPMLineIndex: mlineIndex,
		},
	}
}
