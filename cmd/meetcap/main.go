package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/meetcap/meetcap/internal/app"
	"github.com/meetcap/meetcap/internal/capture"
	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/deliver"
	"github.com/meetcap/meetcap/internal/hotkey"
	"github.com/meetcap/meetcap/internal/logging"
	"github.com/meetcap/meetcap/internal/mix"
	"github.com/meetcap/meetcap/internal/permissions"
	"github.com/meetcap/meetcap/internal/session"
	"github.com/meetcap/meetcap/internal/store"
	"github.com/meetcap/meetcap/internal/stream"
	"github.com/meetcap/meetcap/internal/tray"
	"github.com/meetcap/meetcap/internal/upload"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Optional .env next to the binary; real env always wins
	godotenv.Load()

	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	// macOS requires explicit microphone + accessibility approval before capture or hotkeys work
	if err := permissions.EnsurePermissions(); err != nil {
		log.Fatal().Err(err).Msg("Required permissions not granted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture
	acquirer, err := capture.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer acquirer.Close()

	sessionCfg, err := buildSessionConfig(cfg, acquirer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	controller := session.New(sessionCfg)

	// Initialize hotkey manager
	hkManager, err := hotkey.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize hotkeys")
	}
	defer hkManager.Close()

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, cfg, Version, Commit) // App reference set below

	// Create app with tray as status updater
	application := app.New(app.Config{
		Controller:    controller,
		Acquirer:      acquirer,
		Deliverer:     deliver.NewClipboard(),
		Paster:        deliver.NewPaster(),
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
	})

	// Set app reference in tray
	trayUI.SetApp(application)

	// Register global hotkey
	if err := hkManager.Register(cfg.PlatformHotkey(), application.OnHotkey); err != nil {
		log.Fatal().Err(err).Msg("Failed to register hotkey")
	}

	log.Info().Str("mode", cfg.Mode).Msg("meetcap starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := application.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}

// buildSessionConfig translates the file config into the controller's
// wiring: parsed mode and policies, the store/upload collaborators, and a
// dialer for the streaming endpoint.
func buildSessionConfig(cfg *config.Config, acquirer capture.Acquirer, log zerolog.Logger) (session.Config, error) {
	mode, err := session.ParseMode(cfg.Mode)
	if err != nil {
		return session.Config{}, err
	}

	padPolicy, err := mix.ParsePadPolicy(cfg.Mixer.PadPolicy)
	if err != nil {
		return session.Config{}, err
	}

	sources := make([]capture.Kind, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		switch s {
		case "tab":
			sources = append(sources, capture.KindTab)
		case "mic":
			sources = append(sources, capture.KindMic)
		default:
			return session.Config{}, fmt.Errorf("unknown source kind %q", s)
		}
	}

	sessionCfg := session.Config{
		Acquirer:         acquirer,
		Saver:            store.New(cfg.Output.Dir),
		Logger:           log,
		Sources:          sources,
		Mode:             mode,
		SampleRate:       cfg.Audio.SampleRate,
		MicDeviceID:      cfg.Audio.MicDeviceID,
		LoopbackDeviceID: cfg.Audio.LoopbackDeviceID,
		MicGain:          cfg.Mixer.MicGain,
		TabGain:          cfg.Mixer.TabGain,
		PadPolicy:        padPolicy,
		ChunkMs:          cfg.Stream.ChunkMs,
		Codec:            cfg.Stream.Codec,
		OpusBitrate:      cfg.Stream.OpusBitrate,
		AcquireTimeout:   time.Duration(cfg.Audio.AcquireTimeoutMs) * time.Millisecond,
	}

	if mode == session.ModeStream || mode == session.ModeBoth {
		if cfg.Stream.URL == "" {
			return session.Config{}, fmt.Errorf("mode %q needs stream.url", cfg.Mode)
		}
		url := cfg.Stream.URL
		sessionCfg.Dial = func(ctx context.Context) (stream.Transport, error) {
			return stream.Dial(ctx, url, log)
		}
	}

	if cfg.Output.UploadURL != "" {
		sessionCfg.Uploader = upload.New(cfg.Output.UploadURL)
	}

	return sessionCfg, nil
}
