package media

import (
	"errors"

	"github.com/adaptcast/webrtc-multicast/internal/icefilter"
)

var (
	// ErrDetached is returned by handle operations after Detach.
	ErrDetached = errors.New("media handle is detached")
)

// ConnState mirrors the peer connection state as seen by the session layer.
type ConnState string

const (
	StateNew          = ConnState("new")
	StateConnecting   = ConnState("connecting")
	StateConnected    = ConnState("connected")
	StateDisconnected = ConnState("disconnected")
	StateFailed       = ConnState("failed")
	StateClosed       = ConnState("closed")
)

// Events are the engine callbacks a session subscribes to on Attach. They
// fire on engine-owned goroutines; subscribers must not block and must not
// call back into blocking handle teardown from the callback frame.
//
// OnICECandidate reports locally gathered candidates; the empty candidate
// string signals end of gathering.
type Events struct {
	OnICECandidate          func(mlineIndex uint16, candidate string)
	OnConnectionStateChange func(state ConnState)
	OnNegotiationNeeded     func()
}

// Handle is one viewer's attachment to the broadcast. Exactly one Detach is
// expected per Attach; Detach is idempotent and every other operation fails
// with ErrDetached afterwards.
type Handle interface {
	// CreateOffer produces an SDP offer without touching the local
	// description.
	CreateOffer() (string, error)

	// SetLocalDescription installs a previously created offer and starts
	// ICE gathering.
	SetLocalDescription(sdp string) error

	// SetRemoteDescription installs the viewer's answer.
	SetRemoteDescription(sdp string) error

	// AddICECandidate applies one remote candidate. The remote description
	// must already be set; ordering is the caller's responsibility.
	AddICECandidate(mlineIndex uint16, candidate string) error

	// Unsubscribe silences all Events callbacks. Events already in flight
	// may still be delivered; callers guard with their own liveness check.
	Unsubscribe()

	// Quiesce stops outbound media on this attachment while leaving the
	// transport up, so teardown can proceed without racing the fan-out.
	Quiesce()

	// Detach closes the attachment and releases its transport.
	Detach() error
}

// Engine is the media side of the broadcast: it owns the shared outbound
// tracks and hands out per-viewer attachments.
type Engine interface {
	Attach(mode icefilter.Mode, events Events) (Handle, error)
	Close()
}
