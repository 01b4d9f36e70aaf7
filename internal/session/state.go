package session

import (
	"errors"
	"fmt"
)

// State is the controller's lifecycle position. Transitions:
// Idle → Acquiring → Recording → Stopping → Finalizing → Idle, with Error
// reachable from any non-terminal state.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateStopping
	StateFinalizing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateFinalizing:
		return "finalizing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyRecording is returned by Start when the controller is not
// idle. The existing session is left untouched.
var ErrAlreadyRecording = errors.New("a recording is already active")

// ErrNoActiveRecording is returned by Stop when nothing is recording.
var ErrNoActiveRecording = errors.New("no active recording")

// Mode selects which output legs a session runs.
type Mode int

const (
	// ModeFile accumulates samples and finalizes a WAV on stop.
	ModeFile Mode = iota
	// ModeStream forwards encoded chunks over the transport as they are
	// produced; nothing is written locally.
	ModeStream
	// ModeBoth runs both legs. A transport failure never aborts the file
	// leg.
	ModeBoth
)

// ParseMode maps a config value to a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "file":
		return ModeFile, nil
	case "stream":
		return ModeStream, nil
	case "both":
		return ModeBoth, nil
	default:
		return ModeFile, fmt.Errorf("unknown mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeStream:
		return "stream"
	case ModeBoth:
		return "both"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) wantsFile() bool   { return m == ModeFile || m == ModeBoth }
func (m Mode) wantsStream() bool { return m == ModeStream || m == ModeBoth }
