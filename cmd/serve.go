package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/adapters"
	"github.com/amirulhamizan12/agent-ui/adapters/browseruse"
	"github.com/amirulhamizan12/agent-ui/adapters/mongo"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
	"github.com/amirulhamizan12/agent-ui/internal/api"
	"github.com/amirulhamizan12/agent-ui/internal/audio"
	"github.com/amirulhamizan12/agent-ui/internal/config"
	"github.com/amirulhamizan12/agent-ui/internal/live"
	"github.com/amirulhamizan12/agent-ui/internal/logging"
	"github.com/amirulhamizan12/agent-ui/internal/metrics"
	"github.com/amirulhamizan12/agent-ui/internal/websocket"
	"github.com/amirulhamizan12/agent-ui/usecase"
)

const shutdownTimeout = 10 * time.Second

func serve(parent context.Context, cfg config.Config, f flags) error {
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Sockets
	textCfg := live.NewTextConfig(cfg.Gemini.APIKey)
	applyGemini(&textCfg, cfg.Gemini)
	managerCfg := usecase.ManagerConfig{Text: &textCfg, TextDebounce: cfg.TextDebounce}
	if cfg.EnableSpeech {
		speechCfg := live.NewSpeechConfig(cfg.Gemini.APIKey, live.SpeechConfig{
			Voice:        cfg.Gemini.Voice,
			SpeakingRate: cfg.Gemini.SpeakingRate,
			Pitch:        cfg.Gemini.Pitch,
			VolumeGainDB: cfg.Gemini.VolumeGainDB,
		})
		applyGemini(&speechCfg, cfg.Gemini)
		managerCfg.Speech = &speechCfg
	}
	manager, err := usecase.NewConnectionManager(managerCfg, logger, m)
	if err != nil {
		return err
	}

	// Storage
	var repo repositories.ConversationRepository = adapters.NewMemoryConversationRepository()
	if cfg.Mongo.URI != "" {
		client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database}, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			client.Close(closeCtx)
		}()
		repo = mongo.NewConversationRepository(client.Database, logger)
	} else {
		logger.Info("MONGODB_URI not set, keeping transcripts in memory")
	}

	// Automation
	var automation repositories.Automation
	if cfg.AutomationEnabled() {
		client, err := browseruse.NewClient(browseruse.Config{
			APIKey:  cfg.BrowserUse.APIKey,
			BaseURL: cfg.BrowserUse.BaseURL,
		}, logger)
		if err != nil {
			return err
		}
		automation = client
	} else {
		logger.Warn("BROWSER_USE_API_KEY not set, browser actions are disabled")
	}
	actions := usecase.NewActionService(automation, logger, m)

	// Audio
	var backend *audio.MalgoBackend
	if cfg.EnableAudioDevices {
		if backend, err = audio.NewMalgoBackend(logger); err != nil {
			logger.Warn("Audio devices unavailable", zap.Error(err))
		}
	}

	var outputDevice audio.OutputDevice
	if backend != nil {
		outputDevice = backend.Output()
	}
	player := audio.NewStreamPlayer(outputDevice, audio.PlaybackSampleRate, logger, m)
	logger.Info("Playback mode selected", zap.Stringer("mode", player.Start()))
	manager.OnCleanup(func() {
		if err := player.Close(); err != nil {
			logger.Warn("Failed to close playback device", zap.Error(err))
		}
	})

	hub := websocket.NewHub(logger)
	deps := usecase.ConversationDeps{
		Manager:    manager,
		Actions:    actions,
		Repository: repo,
		Player:     player,
		Notifier:   hub,
	}

	var svc *usecase.ConversationService
	if cfg.EnableAudioDevices {
		clips := audio.NewOneShotPlayer(audio.NewOtoOutput(logger), logger)
		deps.Clips = clips
		manager.OnCleanup(clips.Stop)
	}
	if backend != nil {
		encoder := audio.NewEncoder(backend.Capture(), audio.DefaultCaptureConfig(), func(c audio.Chunk) {
			svc.HandleMicChunk(c)
		}, logger, m)
		deps.Microphone = encoder
		manager.OnCleanup(encoder.Stop)
	}

	svc, err = usecase.NewConversationService(deps, logger)
	if err != nil {
		return err
	}
	hub.SetController(svc)

	if backend != nil {
		// Registered last so it runs after every device is stopped.
		manager.OnCleanup(func() {
			if err := backend.Close(); err != nil {
				logger.Warn("Failed to release audio backend", zap.Error(err))
			}
		})
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	cleanup := websocket.NewConversationCleanupService(repo, logger)
	cleanup.Start()
	defer cleanup.Stop()

	initCtx, cancelInit := context.WithTimeout(ctx, time.Duration(f.initTimeout)*time.Second)
	err = manager.Initialize(initCtx)
	cancelInit()
	if err != nil {
		svc.Close()
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Conversation: svc,
		Actions:      actions,
		Hub:          hub,
		Gatherer:     registry,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.Bool("speech", cfg.EnableSpeech),
		zap.Bool("audioDevices", backend != nil),
		zap.Bool("automation", actions.Enabled()))

	select {
	case <-ctx.Done():
		logger.Info("Server is shutting down...")
	case err := <-serverErr:
		logger.Error("Server failed", zap.Error(err))
		svc.Close()
		manager.Cleanup()
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stopHub()
	svc.Close()
	manager.Cleanup()

	if s := actions.CurrentSession(); s != nil {
		if err := actions.EndSession(shutdownCtx, s.ID); err != nil {
			logger.Warn("Failed to end automation session", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return nil
}

func applyGemini(c *live.Config, g config.GeminiConfig) {
	c.URL = g.URL
	c.Model = g.Model
	c.ReconnectBaseDelay = g.ReconnectBaseDelay
	c.MaxReconnectAttempts = g.MaxReconnectAttempts
}
