package hotkey

import (
	"fmt"
	"strings"
)

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// Accel is a parsed accelerator: a modifier set plus one key.
type Accel struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Super bool
	Key   string // lowercase letter/digit, or "space"
}

// ParseAccel parses strings like "Ctrl+Alt+R" or "Alt+Space". The last
// token is the key; everything before it must be a modifier.
func ParseAccel(s string) (Accel, error) {
	var a Accel

	parts := strings.Split(s, "+")
	if len(parts) == 0 || strings.TrimSpace(s) == "" {
		return a, fmt.Errorf("empty accelerator")
	}

	for i, part := range parts {
		token := strings.ToLower(strings.TrimSpace(part))
		last := i == len(parts)-1

		switch token {
		case "ctrl", "control":
			a.Ctrl = true
		case "alt", "option", "opt":
			a.Alt = true
		case "shift":
			a.Shift = true
		case "super", "cmd", "command", "win", "meta":
			a.Super = true
		default:
			if !last {
				return a, fmt.Errorf("unknown modifier %q in %q", part, s)
			}
			if len(token) == 1 || token == "space" {
				a.Key = token
				return a, nil
			}
			return a, fmt.Errorf("unsupported key %q in %q", part, s)
		}

		if last {
			return a, fmt.Errorf("accelerator %q has no key", s)
		}
	}

	return a, fmt.Errorf("accelerator %q has no key", s)
}
