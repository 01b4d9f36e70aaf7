package capture

import (
	"errors"
	"testing"
)

func TestIsLoopbackName(t *testing.T) {
	loopbacks := []string{
		"Monitor of Built-in Audio Analog Stereo",
		"alsa_output.pci-0000_00_1f.3.analog-stereo.monitor",
		"Stereo Mix (Realtek Audio)",
		"BlackHole 2ch",
		"Soundflower (2ch)",
		"VB-Audio Virtual Cable",
	}
	for _, name := range loopbacks {
		if !IsLoopbackName(name) {
			t.Errorf("expected %q to be detected as loopback", name)
		}
	}

	inputs := []string{
		"Built-in Microphone",
		"USB Audio Device",
		"MacBook Pro Microphone",
	}
	for _, name := range inputs {
		if IsLoopbackName(name) {
			t.Errorf("expected %q to be a plain input", name)
		}
	}
}

func TestKindErr(t *testing.T) {
	if !errors.Is(kindErr(KindMic), ErrPermissionDenied) {
		t.Error("expected mic failures to map to ErrPermissionDenied")
	}
	if !errors.Is(kindErr(KindTab), ErrCaptureUnavailable) {
		t.Error("expected tab failures to map to ErrCaptureUnavailable")
	}
}
