package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/adaptcast/webrtc-multicast/internal/api"
	"github.com/adaptcast/webrtc-multicast/internal/icefilter"
	"github.com/adaptcast/webrtc-multicast/internal/media"
	"github.com/adaptcast/webrtc-multicast/internal/metrics"
)

// Sender delivers one outbound signaling message to the session's viewer.
// It must not block; the signalling layer buffers behind it.
type Sender func(msg api.Message)

// Session is one viewer's negotiation state machine. All fields below mu are
// guarded by it. cleaningUp is monotonic: once set, every handler no-ops and
// the session only moves toward Closed.
//
// Engine callbacks capture the generation current at attach time and compare
// it before acting, so a callback that was already in flight when teardown
// started cannot dereference released state.
type Session struct {
	id            string
	mode          icefilter.Mode
	engine        media.Engine
	registry      *Registry
	send          Sender
	answerTimeout time.Duration

	mu                   sync.Mutex
	state                State
	handle               media.Handle
	pending              CandidateQueue
	remoteDescriptionSet bool
	offerInProgress      bool
	cleaningUp           bool
	gen                  uint64
	answerTimer          *time.Timer

	closed chan struct{}
}

func New(id string, mode icefilter.Mode, engine media.Engine, registry *Registry,
	send Sender, answerTimeout time.Duration) *Session {
	return &Session{
		id:            id,
		mode:          mode,
		engine:        engine,
		registry:      registry,
		send:          send,
		answerTimeout: answerTimeout,
		state:         StateIdle,
		closed:        make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Mode() icefilter.Mode { return s.mode }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed is closed exactly once, after teardown has fully completed and the
// session is out of the registry. Replacement waits on it.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Start drives Idle through AwaitingAnswer: attach a media branch in the
// session's mode, create and install the offer, send it, and arm the answer
// timer. Any failure tears the session down; the viewer may simply request
// again.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.cleaningUp || s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = StateAttaching
	gen := s.gen
	s.mu.Unlock()

	handle, err := s.engine.Attach(s.mode, media.Events{
		OnICECandidate: func(mlineIndex uint16, candidate string) {
			s.onLocalCandidate(gen, mlineIndex, candidate)
		},
		OnConnectionStateChange: func(state media.ConnState) {
			s.onConnectionStateChange(gen, state)
		},
		OnNegotiationNeeded: func() {
			s.onNegotiationNeeded(gen)
		},
	})
	if err != nil {
		slog.Error("failed to attach media branch", "id", s.id, "error", err)
		s.Teardown(ReasonEngineFailure)
		return err
	}

	s.mu.Lock()
	if s.cleaningUp {
		s.mu.Unlock()
		// Teardown won the race before the handle was recorded; release it
		// here so the attach still pairs with exactly one detach.
		handle.Unsubscribe()
		_ = handle.Detach()
		return nil
	}
	s.handle = handle
	s.state = StateNegotiating
	s.offerInProgress = true
	s.mu.Unlock()

	offer, err := handle.CreateOffer()
	if err != nil {
		slog.Error("failed to create offer", "id", s.id, "error", err)
		s.Teardown(ReasonEngineFailure)
		return err
	}
	if err := handle.SetLocalDescription(offer); err != nil {
		slog.Error("failed to set local description", "id", s.id, "error", err)
		s.Teardown(ReasonEngineFailure)
		return err
	}

	s.mu.Lock()
	if s.cleaningUp {
		s.mu.Unlock()
		return nil
	}
	s.state = StateAwaitingAnswer
	s.answerTimer = time.AfterFunc(s.answerTimeout, func() {
		s.onAnswerTimeout(gen)
	})
	s.mu.Unlock()

	s.send(api.Offer(s.id, offer))
	metrics.SessionsStartedTotal.WithLabelValues(s.mode.String()).Inc()
	slog.Info("offer sent", "id", s.id, "mode", s.mode.String())
	return nil
}

// HandleAnswer installs the viewer's answer and drains the pending candidate
// queue. The flag flip and the drain happen in one critical section, so a
// candidate arriving concurrently is either queued before the drain or
// applied directly after it, never both and never neither.
func (s *Session) HandleAnswer(sdp string) {
	s.mu.Lock()
	if s.cleaningUp || s.state != StateAwaitingAnswer {
		state := s.state
		s.mu.Unlock()
		slog.Warn("ignoring answer", "id", s.id, "state", state.String())
		return
	}
	if s.answerTimer != nil {
		s.answerTimer.Stop()
		s.answerTimer = nil
	}

	if err := s.handle.SetRemoteDescription(sdp); err != nil {
		s.mu.Unlock()
		slog.Error("failed to set remote description", "id", s.id, "error", err)
		s.Teardown(ReasonEngineFailure)
		return
	}

	s.remoteDescriptionSet = true
	s.offerInProgress = false
	drained := s.pending.Drain()
	for _, c := range drained {
		if err := s.handle.AddICECandidate(c.MLineIndex, c.Candidate); err != nil {
			slog.Error("failed to apply queued candidate", "id", s.id, "error", err)
		}
	}
	s.state = StateConnected
	s.mu.Unlock()

	slog.Info("answer processed", "id", s.id, "queuedCandidates", len(drained))
}

// HandleRemoteCandidate applies one viewer candidate, or queues it while the
// remote description is not yet set.
func (s *Session) HandleRemoteCandidate(mlineIndex uint16, candidate string) {
	if candidate == "" {
		slog.Debug("viewer finished gathering", "id", s.id)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleaningUp {
		slog.Debug("dropping candidate for closing session", "id", s.id)
		return
	}
	if !s.remoteDescriptionSet {
		s.pending.Push(mlineIndex, candidate)
		metrics.CandidatesQueuedTotal.Inc()
		slog.Debug("queued remote candidate", "id", s.id, "pending", s.pending.Len())
		return
	}
	if err := s.handle.AddICECandidate(mlineIndex, candidate); err != nil {
		slog.Error("failed to add remote candidate", "id", s.id, "error", err)
	}
}

// Teardown moves the session to Closing and schedules the release sequence
// on its own goroutine, so it is safe to call from an engine callback frame.
// It is idempotent; the first caller wins.
func (s *Session) Teardown(reason string) {
	s.mu.Lock()
	if s.cleaningUp {
		s.mu.Unlock()
		return
	}
	s.cleaningUp = true
	s.state = StateClosing
	if s.answerTimer != nil {
		s.answerTimer.Stop()
		s.answerTimer = nil
	}
	s.mu.Unlock()

	go s.finishTeardown(reason)
}

func (s *Session) finishTeardown(reason string) {
	slog.Info("tearing down session", "id", s.id, "reason", reason)

	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.gen++
	s.mu.Unlock()

	// Each step tolerates a partially initialized session.
	if handle != nil {
		handle.Unsubscribe()
		handle.Quiesce()
		if err := handle.Detach(); err != nil {
			slog.Error("failed to detach media branch", "id", s.id, "error", err)
		}
	}

	s.registry.removeSession(s.id, s)

	s.mu.Lock()
	discarded := s.pending.Discard()
	s.state = StateClosed
	s.mu.Unlock()

	if discarded > 0 {
		slog.Debug("discarded pending candidates", "id", s.id, "count", discarded)
	}

	metrics.SessionTeardownsTotal.WithLabelValues(reason).Inc()
	close(s.closed)
}

// alive reports whether a callback carrying gen may still act on the session.
func (s *Session) alive(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cleaningUp && s.gen == gen
}

func (s *Session) onLocalCandidate(gen uint64, mlineIndex uint16, candidate string) {
	if !s.alive(gen) {
		return
	}
	if candidate == "" {
		slog.Debug("local gathering complete", "id", s.id)
		return
	}
	if !icefilter.ShouldForward(s.mode, candidate) {
		return
	}
	s.send(api.Candidate(s.id, mlineIndex, candidate))
}

func (s *Session) onConnectionStateChange(gen uint64, state media.ConnState) {
	if !s.alive(gen) {
		return
	}
	slog.Debug("connection state changed", "id", s.id, "state", string(state))

	switch state {
	case media.StateFailed, media.StateDisconnected, media.StateClosed:
		s.Teardown(ReasonConnectionFailed)
	}
}

func (s *Session) onNegotiationNeeded(gen uint64) {
	if !s.alive(gen) {
		return
	}
	// The offer for a fresh session is driven by Start; a renegotiation
	// signal mid-session is only observed.
	slog.Debug("negotiation needed", "id", s.id)
}

func (s *Session) onAnswerTimeout(gen uint64) {
	s.mu.Lock()
	expired := !s.cleaningUp && s.gen == gen && s.state == StateAwaitingAnswer
	s.mu.Unlock()
	if !expired {
		return
	}

	metrics.AnswerTimeoutsTotal.Inc()
	slog.Warn("no answer within timeout", "id", s.id, "timeout", s.answerTimeout)
	s.Teardown(ReasonAnswerTimeout)
}
