package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetcap/meetcap/internal/capture"
	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/deliver"
	"github.com/meetcap/meetcap/internal/session"
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetFinalizing()
	SetError()
}

type Config struct {
	Controller    *session.Controller
	Acquirer      capture.Acquirer
	Deliverer     deliver.Deliverer
	Paster        deliver.Deliverer // Optional - pastes transcripts into the focused app
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// App connects the UI surfaces (tray, hotkey) to the session controller.
type App struct {
	ctl      *session.Controller
	acquirer capture.Acquirer
	deliver  deliver.Deliverer
	paster   deliver.Deliverer
	cfg      *config.Config
	log      zerolog.Logger
	status   StatusUpdater

	mu sync.Mutex
}

func New(cfg Config) *App {
	return &App{
		ctl:      cfg.Controller,
		acquirer: cfg.Acquirer,
		deliver:  cfg.Deliverer,
		paster:   cfg.Paster,
		cfg:      cfg.Config,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
	}
}

// OnHotkey toggles recording on key press.
func (a *App) OnHotkey(pressed bool) {
	if !pressed {
		return
	}
	a.Toggle()
}

// Toggle starts a recording if idle, stops it if recording.
func (a *App) Toggle() {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.ctl.State() {
	case session.StateRecording:
		a.stopLocked()
	case session.StateIdle:
		a.startLocked()
	default:
		a.log.Warn().Str("state", a.ctl.State().String()).Msg("Toggle ignored")
	}
}

func (a *App) startLocked() {
	a.log.Info().Msg("Starting recording")

	if err := a.ctl.Start(context.Background(), ""); err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
		if a.status != nil {
			a.status.SetError()
		}
		return
	}

	if a.status != nil {
		a.status.SetRecording()
	}
}

func (a *App) stopLocked() {
	a.log.Info().Msg("Stopping recording")

	if a.status != nil {
		a.status.SetFinalizing()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := a.ctl.Stop(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to stop recording")
		if a.status != nil {
			a.status.SetError()
		}
		return
	}

	a.deliverResult(result)

	if a.status != nil {
		a.status.SetIdle()
	}
}

// deliverResult puts the most useful artifact reference on the clipboard:
// the saved path, or the transcript when there is no file leg. When
// configured, the transcript is also pasted into the focused app.
func (a *App) deliverResult(result *session.Result) {
	if a.paster != nil && a.cfg.PasteTranscript && result.Transcript != "" {
		if err := a.paster.Text(result.Transcript); err != nil {
			a.log.Warn().Err(err).Msg("Paste delivery failed")
		}
	}

	if a.deliver == nil || !a.cfg.CopyPathToClipboard {
		return
	}

	text := result.Path
	if text == "" {
		text = result.Transcript
	}
	if text == "" {
		return
	}

	if err := a.deliver.Text(text); err != nil {
		a.log.Warn().Err(err).Msg("Clipboard delivery failed")
	}
}

// CopyLastResult re-delivers the last finished session (tray action).
func (a *App) CopyLastResult() error {
	result := a.ctl.LastResult()
	if result == nil {
		return fmt.Errorf("no finished recording yet")
	}
	text := result.Path
	if text == "" {
		text = result.Transcript
	}
	if text == "" {
		return fmt.Errorf("last recording produced no artifact")
	}
	return a.deliver.Text(text)
}

func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ctl.State() == session.StateRecording {
		a.stopLocked()
	}
	a.ctl.Dispose()

	return nil
}

// Tray actions

func (a *App) IsRecording() bool {
	return a.ctl.State() == session.StateRecording
}

func (a *App) SetMicDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ctl.State() != session.StateIdle {
		return fmt.Errorf("cannot change devices while recording")
	}

	a.cfg.Audio.MicDeviceID = id
	return a.cfg.Save()
}

func (a *App) SetLoopbackDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ctl.State() != session.StateIdle {
		return fmt.Errorf("cannot change devices while recording")
	}

	a.cfg.Audio.LoopbackDeviceID = id
	return a.cfg.Save()
}

func (a *App) ListDevices() ([]capture.Device, error) {
	return a.acquirer.ListDevices()
}
