package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lmittmann/tint"

	"github.com/adaptcast/webrtc-multicast/internal/config"
	"github.com/adaptcast/webrtc-multicast/internal/media"
	"github.com/adaptcast/webrtc-multicast/internal/metrics"
	"github.com/adaptcast/webrtc-multicast/internal/signalling"
)

const configDir = "conf"

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
	})))

	cfgManager, err := config.NewManager(configDir)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	engine, err := media.NewPionEngine(cfg.WebRTC, cfg.Ingest)
	if err != nil {
		slog.Error("failed to start media engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	server := signalling.NewServer(cfgManager, engine, app)
	defer server.Close()
	server.SetupRoutes()

	if cfg.Server.StaticRoot != "" {
		app.Static("/", cfg.Server.StaticRoot)
	}

	metrics.StartTime.SetToCurrentTime()

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	if cfg.Security.TLSCrtFile != nil && cfg.Security.TLSKeyFile != nil {
		slog.Info("running TLS server", "addr", addr)
		if err := app.ListenTLS(addr, *cfg.Security.TLSCrtFile, *cfg.Security.TLSKeyFile); err != nil {
			slog.Error("server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("running server", "addr", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
