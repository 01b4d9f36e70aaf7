package capture

import (
	"context"
	"errors"
)

// Kind identifies what a source captures.
type Kind string

const (
	// KindTab is the system/loopback output: everything the machine is
	// playing (the meeting audio).
	KindTab Kind = "tab"
	// KindMic is the local microphone.
	KindMic Kind = "mic"
)

// ErrPermissionDenied indicates microphone access was refused.
var ErrPermissionDenied = errors.New("microphone permission denied")

// ErrCaptureUnavailable indicates no usable capture device for the
// requested kind (e.g. no loopback/monitor device on this system).
var ErrCaptureUnavailable = errors.New("capture unavailable")

// Options configures one acquisition.
type Options struct {
	DeviceID   string // empty = default device for the kind
	SampleRate int
	Gain       float64
}

// Source is one live capture stream. It delivers fixed-size interleaved
// float32 blocks on Blocks() until closed. Owned by the session that
// acquired it; Close is idempotent and releases the underlying stream.
type Source interface {
	Kind() Kind
	SampleRate() int
	Channels() int
	Gain() float64
	Blocks() <-chan []float32
	Close() error
}

// Acquirer obtains live audio sources.
type Acquirer interface {
	Acquire(ctx context.Context, kind Kind, opts Options) (Source, error)
	ListDevices() ([]Device, error)
	Close() error
}

// Device represents an audio input device
type Device struct {
	ID       string
	Name     string
	Default  bool
	Loopback bool
}
