package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webrtc_multicast_active_websocket_connections",
		Help: "Number of active viewer WebSocket connections",
	})

	WebSocketConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_multicast_websocket_connections_total",
		Help: "Total number of viewer WebSocket connections",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webrtc_multicast_active_sessions",
		Help: "Number of live peer sessions in the registry",
	})

	SessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_multicast_sessions_started_total",
		Help: "Total peer sessions started",
	}, []string{"mode"}) // "lan" | "internet"

	SessionTeardownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_multicast_session_teardowns_total",
		Help: "Total peer session teardowns",
	}, []string{"reason"})

	AnswerTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_multicast_answer_timeouts_total",
		Help: "Sessions torn down because no answer arrived in time",
	})

	CandidatesForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_multicast_ice_candidates_forwarded_total",
		Help: "Local ICE candidates forwarded to viewers",
	}, []string{"type"}) // "host" | "srflx" | "relay" | "unknown"

	CandidatesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_multicast_ice_candidates_dropped_total",
		Help: "Local ICE candidates withheld by the topology filter",
	}, []string{"type"})

	CandidatesQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_multicast_ice_candidates_queued_total",
		Help: "Remote ICE candidates queued before the remote description",
	})

	SignallingMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_multicast_signalling_messages_total",
		Help: "Total signalling messages",
	}, []string{"type", "direction"}) // direction: "in" | "out"

	MalformedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_multicast_malformed_messages_total",
		Help: "Inbound signalling messages dropped by validation",
	})

	PeerConnectionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_multicast_peer_connection_failures_total",
		Help: "Total WebRTC peer connection failures",
	}, []string{"reason"})

	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webrtc_multicast_connection_duration_seconds",
		Help:    "Duration of viewer WebRTC connections",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
	})

	RTPPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_multicast_rtp_packets_total",
		Help: "Total RTP packets processed",
	}, []string{"direction"}) // "received" | "forwarded"

	RTPBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_multicast_rtp_bytes_total",
		Help: "Total RTP bytes processed",
	}, []string{"direction"})

	NACKRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_multicast_nack_requests_total",
		Help: "Total NACK requests from viewers (indicates packet loss)",
	})

	PLIRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_multicast_pli_requests_total",
		Help: "Total PLI requests from viewers",
	})

	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_multicast_config_reloads_total",
		Help: "Number of configuration reloads",
	})

	StartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webrtc_multicast_start_time_seconds",
		Help: "Server start time in Unix seconds",
	})
)
