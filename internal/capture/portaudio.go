package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const blockFrames = 512

type paAcquirer struct {
	mu     sync.Mutex
	closed bool
}

var _ Acquirer = (*paAcquirer)(nil)

// New creates a PortAudio-backed acquirer.
func New() (Acquirer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &paAcquirer{}, nil
}

// Acquire opens a live stream for the requested kind. The open happens in a
// goroutine so a stalled device or permission prompt can be abandoned via
// ctx; an abandoned stream is closed as soon as the open returns.
func (a *paAcquirer) Acquire(ctx context.Context, kind Kind, opts Options) (Source, error) {
	type result struct {
		src *paSource
		err error
	}
	resCh := make(chan result, 1)

	go func() {
		src, err := a.open(kind, opts)
		select {
		case resCh <- result{src, err}:
		default:
			// Caller gave up; don't leak the stream.
			if src != nil {
				src.Close()
			}
		}
	}()

	select {
	case res := <-resCh:
		return res.src, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: acquisition timed out: %v", kindErr(kind), ctx.Err())
	}
}

func (a *paAcquirer) open(kind Kind, opts Options) (*paSource, error) {
	device, channels, err := a.findDevice(kind, opts.DeviceID)
	if err != nil {
		return nil, err
	}

	// Open stream: fixed block size, float32
	buffer := make([]float32, blockFrames*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(opts.SampleRate),
		FramesPerBuffer: blockFrames,
	}, buffer)

	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s stream on %q: %v", kindErr(kind), kind, device.Name, err)
	}

	src := &paSource{
		kind:     kind,
		rate:     opts.SampleRate,
		channels: channels,
		gain:     opts.Gain,
		stream:   stream,
		buffer:   buffer,
		blocks:   make(chan []float32, 8),
		done:     make(chan struct{}),
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: failed to start %s stream: %v", kindErr(kind), kind, err)
	}

	src.wg.Add(1)
	go src.readLoop()

	return src, nil
}

// findDevice resolves the device for a kind. Mic uses the default input
// unless a device is named; tab wants a loopback/monitor device.
func (a *paAcquirer) findDevice(kind Kind, deviceID string) (*portaudio.DeviceInfo, int, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to enumerate devices: %v", kindErr(kind), err)
	}

	var device *portaudio.DeviceInfo

	switch {
	case deviceID != "":
		for _, d := range devices {
			if d.Name == deviceID && d.MaxInputChannels > 0 {
				device = d
				break
			}
		}
	case kind == KindMic:
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: no default input device: %v", ErrPermissionDenied, err)
		}
	default: // tab: auto-detect a loopback device
		for _, d := range devices {
			if d.MaxInputChannels > 0 && IsLoopbackName(d.Name) {
				device = d
				break
			}
		}
	}

	if device == nil {
		return nil, 0, fmt.Errorf("%w: no %s device found (requested %q)", kindErr(kind), kind, deviceID)
	}

	channels := 1
	if kind == KindTab && device.MaxInputChannels >= 2 {
		channels = 2
	}

	return device, channels, nil
}

func (a *paAcquirer) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:       d.Name,
				Name:     d.Name,
				Default:  d == defaultDevice,
				Loopback: IsLoopbackName(d.Name),
			})
		}
	}

	return result, nil
}

func (a *paAcquirer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	portaudio.Terminate()
	return nil
}

// kindErr maps a kind to its characteristic acquisition failure.
func kindErr(kind Kind) error {
	if kind == KindMic {
		return ErrPermissionDenied
	}
	return ErrCaptureUnavailable
}

// loopbackNames marks devices that re-capture system output. Covers
// PulseAudio monitors, Windows "Stereo Mix" style devices and the common
// macOS virtual drivers.
var loopbackNames = []string{
	".monitor",
	"monitor of",
	"loopback",
	"stereo mix",
	"what u hear",
	"blackhole",
	"soundflower",
	"vb-audio",
	"virtual cable",
}

// IsLoopbackName reports whether a device name looks like a system
// output capture.
func IsLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range loopbackNames {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

type paSource struct {
	kind     Kind
	rate     int
	channels int
	gain     float64
	stream   *portaudio.Stream
	buffer   []float32
	blocks   chan []float32
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

var _ Source = (*paSource)(nil)

func (s *paSource) Kind() Kind               { return s.kind }
func (s *paSource) SampleRate() int          { return s.rate }
func (s *paSource) Channels() int            { return s.channels }
func (s *paSource) Gain() float64            { return s.gain }
func (s *paSource) Blocks() <-chan []float32 { return s.blocks }

// readLoop pushes copies of the stream buffer downstream. Delivery never
// blocks: if the consumer lags the block is dropped.
func (s *paSource) readLoop() {
	defer s.wg.Done()
	defer close(s.blocks)

	for {
		select {
		case <-s.done:
			return
		default:
			if err := s.stream.Read(); err != nil {
				return
			}
			samples := make([]float32, len(s.buffer))
			copy(samples, s.buffer)

			select {
			case s.blocks <- samples:
			case <-s.done:
				return
			default:
				// Drop if channel full (backpressure)
			}
		}
	}
}

// Close stops and releases the stream. Safe to call more than once.
func (s *paSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.stream.Abort()
		s.wg.Wait()
		s.stream.Close()
	})
	return nil
}
