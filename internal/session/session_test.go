package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptcast/webrtc-multicast/internal/api"
	"github.com/adaptcast/webrtc-multicast/internal/icefilter"
	"github.com/adaptcast/webrtc-multicast/internal/media"
)

type fakeEngine struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (e *fakeEngine) Attach(mode icefilter.Mode, events media.Events) (media.Handle, error) {
	h := &fakeHandle{events: events}
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
	return h, nil
}

func (e *fakeEngine) Close() {}

func (e *fakeEngine) handle(i int) *fakeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles[i]
}

func (e *fakeEngine) attachCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

type fakeHandle struct {
	mu           sync.Mutex
	events       media.Events
	remoteSDP    string
	applied      []PendingCandidate
	unsubscribed bool
	quiesced     bool
	detaches     int
}

func (h *fakeHandle) CreateOffer() (string, error) { return "v=0 fake-offer", nil }

func (h *fakeHandle) SetLocalDescription(string) error { return nil }

func (h *fakeHandle) SetRemoteDescription(sdp string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remoteSDP = sdp
	return nil
}

func (h *fakeHandle) AddICECandidate(mlineIndex uint16, candidate string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, PendingCandidate{MLineIndex: mlineIndex, Candidate: candidate})
	return nil
}

func (h *fakeHandle) Unsubscribe() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribed = true
}

func (h *fakeHandle) Quiesce() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.quiesced = true
}

func (h *fakeHandle) Detach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detaches++
	return nil
}

func (h *fakeHandle) appliedCandidates() []PendingCandidate {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PendingCandidate, len(h.applied))
	copy(out, h.applied)
	return out
}

func (h *fakeHandle) detachCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detaches
}

type sentLog struct {
	mu       sync.Mutex
	messages []api.Message
}

func (l *sentLog) send(msg api.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *sentLog) all() []api.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]api.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func startSession(t *testing.T, reg *Registry, engine *fakeEngine, log *sentLog,
	id string, mode icefilter.Mode, timeout time.Duration) *Session {
	t.Helper()
	s := reg.Upsert(id, func() *Session {
		return New(id, mode, engine, reg, log.send, timeout)
	})
	require.NoError(t, s.Start())
	return s
}

func waitClosed(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not reach Closed in time")
	}
}

func TestSessionLifecycle(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	s := startSession(t, reg, engine, log, "abc123", icefilter.ModeLAN, time.Minute)
	assert.Equal(t, StateAwaitingAnswer, s.State())

	messages := log.all()
	require.Len(t, messages, 1)
	assert.Equal(t, api.MessageTypeOffer, messages[0].Type)
	assert.Equal(t, "v=0 fake-offer", messages[0].SDP)

	// Candidates ahead of the answer are buffered, not applied.
	s.HandleRemoteCandidate(0, "candidate:a 1 udp 1 192.168.0.2 1000 typ host")
	s.HandleRemoteCandidate(0, "candidate:b 1 udp 1 192.168.0.3 1001 typ host")
	s.HandleRemoteCandidate(1, "candidate:c 1 udp 1 192.168.0.4 1002 typ host")
	h := engine.handle(0)
	assert.Empty(t, h.appliedCandidates())

	s.HandleAnswer("v=0 fake-answer")
	assert.Equal(t, StateConnected, s.State())

	applied := h.appliedCandidates()
	require.Len(t, applied, 3)
	assert.Equal(t, "candidate:a 1 udp 1 192.168.0.2 1000 typ host", applied[0].Candidate)
	assert.Equal(t, "candidate:b 1 udp 1 192.168.0.3 1001 typ host", applied[1].Candidate)
	assert.Equal(t, "candidate:c 1 udp 1 192.168.0.4 1002 typ host", applied[2].Candidate)

	// After the answer, candidates go straight through.
	s.HandleRemoteCandidate(1, "candidate:d 1 udp 1 192.168.0.5 1003 typ host")
	require.Len(t, h.appliedCandidates(), 4)

	s.Teardown(ReasonPeerLeft)
	waitClosed(t, s)

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, h.detachCount())
	assert.True(t, h.unsubscribed)
	assert.True(t, h.quiesced)
	assert.Equal(t, 0, reg.Count())
}

func TestAnswerTimeout(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	s := startSession(t, reg, engine, log, "slow", icefilter.ModeLAN, 20*time.Millisecond)

	waitClosed(t, s)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, engine.handle(0).detachCount())
	assert.Equal(t, 0, reg.Count())
}

func TestDuplicateAnswerIgnored(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	s := startSession(t, reg, engine, log, "dup", icefilter.ModeLAN, time.Minute)
	s.HandleAnswer("v=0 first")
	s.HandleAnswer("v=0 second")

	h := engine.handle(0)
	h.mu.Lock()
	remote := h.remoteSDP
	h.mu.Unlock()
	assert.Equal(t, "v=0 first", remote)
	assert.Equal(t, StateConnected, s.State())
}

func TestTeardownIsIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	s := startSession(t, reg, engine, log, "twice", icefilter.ModeLAN, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Teardown(ReasonPeerLeft)
		}()
	}
	wg.Wait()
	waitClosed(t, s)

	assert.Equal(t, 1, engine.handle(0).detachCount())
}

func TestLateCallbacksAreNoOps(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	s := startSession(t, reg, engine, log, "late", icefilter.ModeLAN, time.Minute)
	h := engine.handle(0)

	s.Teardown(ReasonTransportClosed)
	waitClosed(t, s)
	sentBefore := len(log.all())

	// Events that were already in flight when teardown started.
	h.events.OnICECandidate(0, "candidate:z 1 udp 1 192.168.0.9 1009 typ host")
	h.events.OnConnectionStateChange(media.StateFailed)
	h.events.OnNegotiationNeeded()

	assert.Len(t, log.all(), sentBefore)
	assert.Equal(t, 1, h.detachCount())

	// Signaling after teardown is equally inert.
	s.HandleAnswer("v=0 too-late")
	s.HandleRemoteCandidate(0, "candidate:y 1 udp 1 192.168.0.8 1008 typ host")
	assert.Empty(t, h.appliedCandidates())
}

func TestConnectionFailureTearsDown(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	s := startSession(t, reg, engine, log, "failing", icefilter.ModeLAN, time.Minute)
	s.HandleAnswer("v=0 fake-answer")

	engine.handle(0).events.OnConnectionStateChange(media.StateFailed)

	waitClosed(t, s)
	assert.Equal(t, 1, engine.handle(0).detachCount())
	assert.Equal(t, 0, reg.Count())
}

func TestLocalCandidateFiltering(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	s := startSession(t, reg, engine, log, "lan-viewer", icefilter.ModeLAN, time.Minute)
	h := engine.handle(0)

	h.events.OnICECandidate(0, "candidate:1 1 udp 2122260223 192.168.1.5 40124 typ host")
	h.events.OnICECandidate(0, "candidate:2 1 udp 1694498815 203.0.113.9 40000 typ srflx raddr 0.0.0.0 rport 0")
	h.events.OnICECandidate(0, "") // end of gathering

	var forwarded []string
	for _, msg := range log.all() {
		if msg.Type == api.MessageTypeIceCandidate {
			forwarded = append(forwarded, msg.Candidate.Candidate)
		}
	}
	require.Len(t, forwarded, 1)
	assert.Contains(t, forwarded[0], "192.168.1.5")

	s.Teardown(ReasonPeerLeft)
	waitClosed(t, s)
}

func TestUpsertWaitsForPredecessorTeardown(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	first := startSession(t, reg, engine, log, "re-join", icefilter.ModeInternet, time.Minute)

	second := reg.Upsert("re-join", func() *Session {
		return New("re-join", icefilter.ModeInternet, engine, reg, log.send, time.Minute)
	})
	require.NotSame(t, first, second)

	// By the time Upsert returns, the predecessor is fully closed and its
	// branch released; the new session has not attached yet.
	assert.Equal(t, StateClosed, first.State())
	assert.Equal(t, 1, engine.handle(0).detachCount())
	assert.Equal(t, 1, engine.attachCount())

	require.NoError(t, second.Start())
	assert.Equal(t, 2, engine.attachCount())

	got, ok := reg.Get("re-join")
	require.True(t, ok)
	assert.Same(t, second, got)

	second.Teardown(ReasonPeerLeft)
	waitClosed(t, second)
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	reg.Remove("ghost")
	reg.Remove("ghost")
	assert.Equal(t, 0, reg.Count())
}

func TestRegistryShutdown(t *testing.T) {
	engine := &fakeEngine{}
	reg := NewRegistry()
	log := &sentLog{}

	a := startSession(t, reg, engine, log, "a", icefilter.ModeLAN, time.Minute)
	b := startSession(t, reg, engine, log, "b", icefilter.ModeInternet, time.Minute)

	reg.Shutdown()

	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, 1, engine.handle(0).detachCount())
	assert.Equal(t, 1, engine.handle(1).detachCount())
}
