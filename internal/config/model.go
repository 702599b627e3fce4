package config

type AppConfig struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Security SecurityConfig `json:"security" yaml:"security"`
	WebRTC   WebRTCConfig   `json:"webrtc" yaml:"webrtc"`
	Session  SessionConfig  `json:"session" yaml:"session"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest"`
}

type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
	// StaticRoot is served at / for the bundled viewer page; empty disables it.
	StaticRoot string `json:"staticRoot" yaml:"staticRoot"`
	// StatusLogInterval is the period of the active-session status line, in
	// milliseconds.
	StatusLogInterval int `json:"statusLogInterval" yaml:"statusLogInterval"`
}

type SecurityConfig struct {
	AdminCredential *string `json:"adminCredential" yaml:"adminCredential"`
	TLSCrtFile      *string `json:"tlsCrtFile" yaml:"tlsCrtFile"`
	TLSKeyFile      *string `json:"tlsKeyFile" yaml:"tlsKeyFile"`
}

type WebRTCConfig struct {
	PortMin uint16 `json:"portMin" yaml:"portMin"`
	PortMax uint16 `json:"portMax" yaml:"portMax"`
	// ICEServers are only handed to sessions negotiated in internet mode;
	// LAN sessions always run with an empty server list.
	ICEServers []ICEServer `json:"iceServers" yaml:"iceServers"`
}

type ICEServer struct {
	URLs       []string `json:"urls" yaml:"urls"`
	Username   string   `json:"username" yaml:"username"`
	Credential string   `json:"credential" yaml:"credential"`
}

type SessionConfig struct {
	// AnswerTimeout bounds the wait between sending an offer and receiving
	// the viewer's answer, in milliseconds.
	AnswerTimeout int `json:"answerTimeout" yaml:"answerTimeout"`
}

type IngestConfig struct {
	Tracks []TrackConfig `json:"tracks" yaml:"tracks"`
}

type TrackConfig struct {
	// Kind is "video" or "audio".
	Kind       string `json:"kind" yaml:"kind"`
	ListenAddr string `json:"listenAddr" yaml:"listenAddr"`
	MimeType   string `json:"mimeType" yaml:"mimeType"`
	ClockRate  uint32 `json:"clockRate" yaml:"clockRate"`
	Channels   uint16 `json:"channels" yaml:"channels"`
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:              13478,
			StaticRoot:        "",
			StatusLogInterval: 10000,
		},
		Security: SecurityConfig{
			AdminCredential: nil,
			TLSCrtFile:      nil,
			TLSKeyFile:      nil,
		},
		WebRTC: WebRTCConfig{
			PortMin:    10000,
			PortMax:    20000,
			ICEServers: DefaultICEServers(),
		},
		Session: SessionConfig{
			AnswerTimeout: 15000,
		},
		Ingest: IngestConfig{
			Tracks: DefaultTracks(),
		},
	}
}

func DefaultICEServers() []ICEServer {
	return []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
}

func DefaultTracks() []TrackConfig {
	return []TrackConfig{
		{
			Kind:       "video",
			ListenAddr: "127.0.0.1:5004",
			MimeType:   "video/VP8",
			ClockRate:  90000,
		},
		{
			Kind:       "audio",
			ListenAddr: "127.0.0.1:5006",
			MimeType:   "audio/opus",
			ClockRate:  48000,
			Channels:   2,
		},
	}
}
