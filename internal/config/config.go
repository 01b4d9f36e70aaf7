package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

type Config struct {
	Sources             []string     `json:"sources"` // "tab", "mic"
	Mode                string       `json:"mode"`    // "file", "stream" or "both"
	Audio               AudioConfig  `json:"audio"`
	Mixer               MixerConfig  `json:"mixer"`
	Stream              StreamConfig `json:"stream"`
	Output              OutputConfig `json:"output"`
	Hotkey              string       `json:"hotkey"`
	HotkeyDarwin        string       `json:"hotkey_darwin"`
	CopyPathToClipboard bool         `json:"copy_path_to_clipboard"`
	PasteTranscript     bool         `json:"paste_transcript"` // paste transcript into focused app on finish
	LogLevel            string       `json:"log_level"`
}

type AudioConfig struct {
	MicDeviceID      string `json:"mic_device_id"`      // empty = default input
	LoopbackDeviceID string `json:"loopback_device_id"` // empty = auto-detect
	SampleRate       int    `json:"sample_rate"`
	AcquireTimeoutMs int    `json:"acquire_timeout_ms"` // 0 = no timeout
}

type MixerConfig struct {
	TabGain   float64 `json:"tab_gain"`
	MicGain   float64 `json:"mic_gain"`
	PadPolicy string  `json:"pad_policy"` // "pad" or "truncate"
}

type StreamConfig struct {
	URL         string `json:"url"`
	Codec       string `json:"codec"` // "pcm16" or "opus"
	ChunkMs     int    `json:"chunk_ms"`
	OpusBitrate int    `json:"opus_bitrate"`
}

type OutputConfig struct {
	Dir       string `json:"dir"`
	UploadURL string `json:"upload_url"` // empty = upload disabled
}

// Load reads the config from disk or returns defaults. MEETCAP_* environment
// variables override the file values.
func Load() (*Config, error) {
	path := configPath()

	// Default config
	cfg := &Config{
		Sources: []string{"tab", "mic"},
		Mode:    "file",
		Audio: AudioConfig{
			MicDeviceID:      "",
			LoopbackDeviceID: "",
			SampleRate:       48000,
			AcquireTimeoutMs: 10000,
		},
		Mixer: MixerConfig{
			TabGain:   1.0,
			MicGain:   3.0,
			PadPolicy: "pad",
		},
		Stream: StreamConfig{
			URL:         "",
			Codec:       "pcm16",
			ChunkMs:     1000,
			OpusBitrate: 32000,
		},
		Output: OutputConfig{
			Dir:       defaultOutputDir(),
			UploadURL: "",
		},
		Hotkey:              "Ctrl+Alt+R",
		HotkeyDarwin:        "Ctrl+Alt+R",
		CopyPathToClipboard: true,
		PasteTranscript:     false,
		LogLevel:            "info",
	}

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// applyEnvOverrides lets deploy-time settings win over the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEETCAP_STREAM_URL"); v != "" {
		cfg.Stream.URL = v
	}
	if v := os.Getenv("MEETCAP_UPLOAD_URL"); v != "" {
		cfg.Output.UploadURL = v
	}
	if v := os.Getenv("MEETCAP_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("MEETCAP_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("MEETCAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MEETCAP_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			cfg.Audio.SampleRate = rate
		}
	}
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "meetcap", "config.json")
}

// defaultOutputDir returns the platform-specific recordings directory path
func defaultOutputDir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, "meetcap", "recordings")
}
