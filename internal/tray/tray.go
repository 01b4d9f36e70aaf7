package tray

import (
	"context"
	"fmt"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/meetcap/meetcap/internal/app"
	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/logging"
)

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mStartStop *systray.MenuItem
	mCopyLast  *systray.MenuItem
	mMics      *systray.MenuItem
	mLoopbacks *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Start Recording")
	}
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Stop Recording")
	}
}

func (u *UI) SetFinalizing() {
	u.updateStatus("finalizing")
}

func (u *UI) SetError() {
	u.updateStatus("error")
	if u.mStartStop != nil {
		u.mStartStop.SetTitle("Start Recording")
	}
}

func New(application *app.App, cfg *config.Config, version, commit string) *UI {
	log := logging.New()
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("Meeting capture")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Recording", "Capture meeting and mic audio")
	u.mCopyLast = systray.AddMenuItem("Copy Last Output", "Copy the last recording's path")
	systray.AddSeparator()

	u.mMics = systray.AddMenuItem("Microphone", "Select microphone device")
	u.mLoopbacks = systray.AddMenuItem("System Audio", "Select loopback device")
	u.buildDeviceMenus()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About meetcap")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.app.Toggle()
		case <-u.mCopyLast.ClickedCh:
			if err := u.app.CopyLastResult(); err != nil {
				u.log.Warn().Err(err).Msg("Nothing to copy")
			}
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenus() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	micItems := make(map[string]*systray.MenuItem)
	loopItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		if dev.Loopback {
			item := u.mLoopbacks.AddSubMenuItem(dev.Name, "")
			if dev.ID == u.cfg.Audio.LoopbackDeviceID {
				item.Check()
			}
			loopItems[dev.ID] = item

			go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
				for {
					<-menuItem.ClickedCh
					for id, itm := range loopItems {
						if id != deviceID {
							itm.Uncheck()
						}
					}
					menuItem.Check()
					if err := u.app.SetLoopbackDevice(deviceID); err != nil {
						u.log.Warn().Err(err).Msg("Device change refused")
						continue
					}
					u.log.Info().Str("device", deviceName).Msg("Changed loopback device")
				}
			}(dev.ID, dev.Name, item)
			continue
		}

		item := u.mMics.AddSubMenuItem(dev.Name, "")
		if dev.ID == u.cfg.Audio.MicDeviceID || (u.cfg.Audio.MicDeviceID == "" && dev.Default) {
			item.Check()
		}
		micItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				for id, itm := range micItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				if err := u.app.SetMicDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Msg("Device change refused")
					continue
				}
				u.log.Info().Str("device", deviceName).Msg("Changed microphone device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) openLogs() {
	// TODO: Open log file with default app
	fmt.Println("Open logs...")
}

func (u *UI) showAbout() {
	// TODO: Show about dialog with native UI
	fmt.Printf("meetcap %s (%s)\nMeeting capture to WAV and stream\n", u.version, u.commit)
}

func (u *UI) onExit() {
	// Cleanup
}

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(status string) {
	emoji := emojiForStatus(status)
	systray.SetTitle(fmt.Sprintf("🎙️ %s", emoji))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "finalizing":
		return "🟡" // Yellow - encoding and saving
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}
