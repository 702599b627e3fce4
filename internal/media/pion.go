package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/adaptcast/webrtc-multicast/internal/config"
	"github.com/adaptcast/webrtc-multicast/internal/icefilter"
	"github.com/adaptcast/webrtc-multicast/internal/metrics"
)

// PionEngine is the pion/webrtc implementation of Engine. One webrtc.API and
// one set of ingest broadcasters serve every attachment; each Attach binds
// the shared tracks to a fresh send-only peer connection.
type PionEngine struct {
	api            *webrtc.API
	lanConfig      webrtc.Configuration
	internetConfig webrtc.Configuration
	broadcasters   []*Broadcaster

	mu      sync.Mutex
	handles map[*pionHandle]struct{}
	closed  bool
}

func NewPionEngine(webrtcCfg config.WebRTCConfig, ingestCfg config.IngestConfig) (*PionEngine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	for _, tc := range ingestCfg.Tracks {
		if err := mediaEngine.RegisterCodec(codecFor(tc), kindFor(tc)); err != nil {
			return nil, fmt.Errorf("failed to register codec %s: %w", tc.MimeType, err)
		}
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if webrtcCfg.PortMin > 0 && webrtcCfg.PortMax > 0 {
		if err := se.SetEphemeralUDPPortRange(webrtcCfg.PortMin, webrtcCfg.PortMax); err != nil {
			return nil, fmt.Errorf("failed to set WebRTC port range: %w", err)
		}
	}

	webrtcApi := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	var broadcasters []*Broadcaster
	for _, tc := range ingestCfg.Tracks {
		b, err := NewBroadcaster(tc)
		if err != nil {
			for _, started := range broadcasters {
				started.Stop()
			}
			return nil, err
		}
		broadcasters = append(broadcasters, b)
	}

	iceServers := make([]webrtc.ICEServer, 0, len(webrtcCfg.ICEServers))
	for _, s := range webrtcCfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return &PionEngine{
		api: webrtcApi,
		// LAN attachments gather host candidates only.
		lanConfig:      webrtc.Configuration{},
		internetConfig: webrtc.Configuration{ICEServers: iceServers},
		broadcasters:   broadcasters,
		handles:        make(map[*pionHandle]struct{}),
	}, nil
}

func codecFor(tc config.TrackConfig) webrtc.RTPCodecParameters {
	if tc.Kind == "audio" {
		return webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:  tc.MimeType,
				ClockRate: tc.ClockRate,
				Channels:  tc.Channels,
			},
			PayloadType: 111,
		}
	}
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  tc.MimeType,
			ClockRate: tc.ClockRate,
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
			},
		},
		PayloadType: 96,
	}
}

func kindFor(tc config.TrackConfig) webrtc.RTPCodecType {
	if tc.Kind == "audio" {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

func (e *PionEngine) Attach(mode icefilter.Mode, events Events) (Handle, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("media engine is closed")
	}
	e.mu.Unlock()

	cfg := e.lanConfig
	if mode == icefilter.ModeInternet {
		cfg = e.internetConfig
	}

	pc, err := e.api.NewPeerConnection(cfg)
	if err != nil {
		metrics.PeerConnectionFailuresTotal.WithLabelValues("creation_failed").Inc()
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &pionHandle{
		engine:     e,
		pc:         pc,
		rtcpCancel: cancel,
		attachedAt: time.Now(),
	}
	h.subscribed.Store(true)

	for _, b := range e.broadcasters {
		sender, err := pc.AddTrack(b.LocalTrack())
		if err != nil {
			cancel()
			_ = pc.Close()
			return nil, fmt.Errorf("failed to add track: %w", err)
		}
		go drainRTCP(ctx, sender)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if !h.subscribed.Load() || events.OnICECandidate == nil {
			return
		}
		if candidate == nil {
			events.OnICECandidate(0, "")
			return
		}
		init := candidate.ToJSON()
		var mline uint16
		if init.SDPMLineIndex != nil {
			mline = *init.SDPMLineIndex
		}
		events.OnICECandidate(mline, init.Candidate)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if !h.subscribed.Load() || events.OnConnectionStateChange == nil {
			return
		}
		events.OnConnectionStateChange(ConnState(state.String()))
	})

	pc.OnNegotiationNeeded(func() {
		if !h.subscribed.Load() || events.OnNegotiationNeeded == nil {
			return
		}
		events.OnNegotiationNeeded()
	})

	e.mu.Lock()
	e.handles[h] = struct{}{}
	e.mu.Unlock()

	return h, nil
}

// Close detaches every live handle and stops the ingest loops.
func (e *PionEngine) Close() {
	e.mu.Lock()
	e.closed = true
	handles := make([]*pionHandle, 0, len(e.handles))
	for h := range e.handles {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	for _, h := range handles {
		_ = h.Detach()
	}

	for _, b := range e.broadcasters {
		b.Stop()
	}
}

func (e *PionEngine) dropHandle(h *pionHandle) {
	e.mu.Lock()
	delete(e.handles, h)
	e.mu.Unlock()
}

// drainRTCP consumes viewer feedback on one RTP sender. With no upstream
// producer to relay PLI to, feedback is only counted.
func drainRTCP(ctx context.Context, sender *webrtc.RTPSender) {
	rtcpBuf := make([]byte, rtpBufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := sender.Read(rtcpBuf)
		if err != nil {
			return
		}

		packets, err := rtcp.Unmarshal(rtcpBuf[:n])
		if err != nil {
			continue
		}

		for _, pkt := range packets {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				metrics.PLIRequestsTotal.Inc()
			case *rtcp.TransportLayerNack:
				metrics.NACKRequestsTotal.Inc()
			}
		}
	}
}

type pionHandle struct {
	engine     *PionEngine
	pc         *webrtc.PeerConnection
	rtcpCancel context.CancelFunc
	attachedAt time.Time

	subscribed atomic.Bool
	detached   atomic.Bool
}

func (h *pionHandle) CreateOffer() (string, error) {
	if h.detached.Load() {
		return "", ErrDetached
	}
	offer, err := h.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	return offer.SDP, nil
}

func (h *pionHandle) SetLocalDescription(sdp string) error {
	if h.detached.Load() {
		return ErrDetached
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := h.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	return nil
}

func (h *pionHandle) SetRemoteDescription(sdp string) error {
	if h.detached.Load() {
		return ErrDetached
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := h.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (h *pionHandle) AddICECandidate(mlineIndex uint16, candidate string) error {
	if h.detached.Load() {
		return ErrDetached
	}
	init := webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMLineIndex: &mlineIndex,
	}
	if err := h.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (h *pionHandle) Unsubscribe() {
	h.subscribed.Store(false)
}

func (h *pionHandle) Quiesce() {
	h.rtcpCancel()
	for _, sender := range h.pc.GetSenders() {
		if err := sender.ReplaceTrack(nil); err != nil {
			slog.Debug("failed to quiesce sender", "error", err)
		}
	}
}

func (h *pionHandle) Detach() error {
	if !h.detached.CompareAndSwap(false, true) {
		return nil
	}
	h.subscribed.Store(false)
	h.rtcpCancel()
	h.engine.dropHandle(h)
	metrics.ConnectionDuration.Observe(time.Since(h.attachedAt).Seconds())
	if err := h.pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}
