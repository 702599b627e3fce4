package signalling

import (
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adaptcast/webrtc-multicast/internal/api"
	"github.com/adaptcast/webrtc-multicast/internal/config"
	"github.com/adaptcast/webrtc-multicast/internal/media"
	"github.com/adaptcast/webrtc-multicast/internal/metrics"
	"github.com/adaptcast/webrtc-multicast/internal/session"
	"github.com/adaptcast/webrtc-multicast/internal/sockets"
	"github.com/adaptcast/webrtc-multicast/internal/utils"
)

// Server owns the viewer-facing WebSocket endpoint and the admin API. It
// routes inbound signaling into the session registry and hands each session a
// buffered sender for the reverse direction.
type Server struct {
	app         *fiber.App
	cfgManager  *config.Manager
	engine      media.Engine
	registry    *session.Registry
	viewers     *sockets.SocketPool
	statusTimer utils.IntervalTimer
}

func NewServer(cfgManager *config.Manager, engine media.Engine, app *fiber.App) *Server {
	server := &Server{
		app:        app,
		cfgManager: cfgManager,
		engine:     engine,
		registry:   session.NewRegistry(),
		viewers:    sockets.NewSocketPool(),
	}

	interval := time.Duration(cfgManager.Get().Server.StatusLogInterval) * time.Millisecond
	server.statusTimer = utils.SetIntervalTimer(interval, func() {
		slog.Info("status", "sessions", server.registry.Count(), "viewers", server.viewers.Count())
	})

	return server
}

// Close stops the status timer, drops all viewer sockets and tears down every
// live session, waiting for each teardown to finish.
func (s *Server) Close() {
	s.statusTimer.Stop()
	s.viewers.Close()
	s.registry.Shutdown()
}

func (s *Server) Registry() *session.Registry {
	return s.registry
}

// SetupRoutes mounts the viewer WebSocket endpoint, the metrics handler and
// the admin API on the fiber app.
func (s *Server) SetupRoutes() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic in /ws handler", "panic", err)
			}
		}()

		s.listenViewerSocket(c)
	}))

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.setupAdminApi()
}

// listenViewerSocket runs one viewer's read loop: mint an identity, send the
// registration greeting and dispatch every validated message. A closed
// transport tears the viewer's session down as if it had sent peer-left.
func (s *Server) listenViewerSocket(c *websocket.Conn) {
	viewerID := uuid.NewString()
	socketID := sockets.SocketID(viewerID)

	soc := s.viewers.AddSocket(socketID, c)
	metrics.ActiveWebSocketConnections.Inc()
	metrics.WebSocketConnectionsTotal.Inc()
	slog.Info("viewer connected", "viewerID", viewerID, "remote", c.NetConn().RemoteAddr().String())

	loop := NewViewerConnectionLoop(soc, viewerID)
	loop.Start()

	defer func() {
		if sess, ok := s.registry.Get(viewerID); ok {
			sess.Teardown(session.ReasonTransportClosed)
		}
		loop.Stop()
		s.viewers.RemoveSocket(socketID)
		metrics.ActiveWebSocketConnections.Dec()
		slog.Info("viewer disconnected", "viewerID", viewerID)
	}()

	loop.SendMessage(api.Registered(viewerID))

	var message api.Message
	for {
		if err := c.ReadJSON(&message); err != nil {
			slog.Debug("viewer read loop ended", "viewerID", viewerID, "error", err)
			return
		}
		s.dispatch(viewerID, loop, message)
	}
}

func (s *Server) setupAdminApi() {
	s.app.Route("/api/admin", func(router fiber.Router) {
		router.Use(basicauth.New(basicauth.Config{
			Realm: "Forbidden",
			Authorizer: func(user, pass string) bool {
				credential := s.cfgManager.Get().Security.AdminCredential
				return credential == nil || user == "admin" && pass == *credential
			},
		}))

		router.Get("/sessions", func(c *fiber.Ctx) error {
			return c.JSON(s.registry.Snapshot())
		})
	})
}
