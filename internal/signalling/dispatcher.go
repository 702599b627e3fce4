package signalling

import (
	"log/slog"
	"time"

	"github.com/adaptcast/webrtc-multicast/internal/api"
	"github.com/adaptcast/webrtc-multicast/internal/icefilter"
	"github.com/adaptcast/webrtc-multicast/internal/metrics"
	"github.com/adaptcast/webrtc-multicast/internal/session"
)

// dispatch validates one inbound message and routes it to the viewer's
// session. The type switch is exhaustive over the inbound half of the schema;
// ValidateInbound has already rejected everything else.
func (s *Server) dispatch(viewerID string, loop *ViewerConnectionLoop, msg api.Message) {
	if err := msg.ValidateInbound(); err != nil {
		metrics.MalformedMessagesTotal.Inc()
		slog.Warn("dropping malformed message", "viewerID", viewerID, "type", string(msg.Type))
		return
	}
	metrics.SignallingMessagesTotal.WithLabelValues(string(msg.Type), "in").Inc()

	switch msg.Type {
	case api.MessageTypeRequestOffer:
		s.handleRequestOffer(viewerID, loop, msg.InternetMode)

	case api.MessageTypeAnswer:
		sess, ok := s.registry.Get(viewerID)
		if !ok {
			slog.Warn("answer for unknown session", "viewerID", viewerID)
			return
		}
		sess.HandleAnswer(msg.SDP)

	case api.MessageTypeIceCandidate:
		sess, ok := s.registry.Get(viewerID)
		if !ok {
			slog.Warn("candidate for unknown session", "viewerID", viewerID)
			return
		}
		sess.HandleRemoteCandidate(msg.Candidate.SDPMLineIndex, msg.Candidate.Candidate)

	case api.MessageTypePeerLeft:
		if sess, ok := s.registry.Get(viewerID); ok {
			sess.Teardown(session.ReasonPeerLeft)
		}
	}
}

// handleRequestOffer starts a fresh negotiation for the viewer. A live
// predecessor session is fully torn down inside Upsert before the new
// session exists, so the viewer can re-request at any time.
func (s *Server) handleRequestOffer(viewerID string, loop *ViewerConnectionLoop, internetMode bool) {
	mode := icefilter.ModeLAN
	if internetMode {
		mode = icefilter.ModeInternet
	}

	answerTimeout := time.Duration(s.cfgManager.Get().Session.AnswerTimeout) * time.Millisecond

	sess := s.registry.Upsert(viewerID, func() *session.Session {
		return session.New(viewerID, mode, s.engine, s.registry, loop.SendMessage, answerTimeout)
	})

	if err := sess.Start(); err != nil {
		slog.Error("failed to start session", "viewerID", viewerID, "error", err)
	}
}
