package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetcap/meetcap/internal/capture"
	"github.com/meetcap/meetcap/internal/stream"
)

// Mock implementations for testing

type mockSource struct {
	kind     capture.Kind
	channels int
	gain     float64
	blocks   chan []float32

	mu     sync.Mutex
	closed int
}

func newMockSource(kind capture.Kind, channels int, gain float64) *mockSource {
	return &mockSource{
		kind:     kind,
		channels: channels,
		gain:     gain,
		blocks:   make(chan []float32, 16),
	}
}

func (m *mockSource) Kind() capture.Kind       { return m.kind }
func (m *mockSource) SampleRate() int          { return 16000 }
func (m *mockSource) Channels() int            { return m.channels }
func (m *mockSource) Gain() float64            { return m.gain }
func (m *mockSource) Blocks() <-chan []float32 { return m.blocks }

func (m *mockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed == 0 {
		close(m.blocks)
	}
	m.closed++
	return nil
}

func (m *mockSource) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockAcquirer struct {
	mu       sync.Mutex
	acquired []*mockSource
	failKind capture.Kind
	failErr  error
}

func newMockAcquirer() *mockAcquirer {
	return &mockAcquirer{}
}

func (m *mockAcquirer) Acquire(ctx context.Context, kind capture.Kind, opts capture.Options) (capture.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil && kind == m.failKind {
		return nil, m.failErr
	}
	src := newMockSource(kind, 1, opts.Gain)
	m.acquired = append(m.acquired, src)
	return src, nil
}

func (m *mockAcquirer) ListDevices() ([]capture.Device, error) {
	return []capture.Device{{ID: "default", Name: "Default", Default: true}}, nil
}

func (m *mockAcquirer) Close() error { return nil }

func (m *mockAcquirer) source(i int) *mockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired[i]
}

func (m *mockAcquirer) acquiredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acquired)
}

type mockSaver struct {
	mu    sync.Mutex
	label string
	data  []byte
	err   error
}

func (m *mockSaver) SaveWAV(label string, startedAt time.Time, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.label = label
	m.data = data
	return "/recordings/" + label + ".wav", nil
}

type mockUploader struct {
	mu         sync.Mutex
	sessionID  string
	filename   string
	size       int
	transcript string
	err        error
}

func (m *mockUploader) Upload(ctx context.Context, sessionID, filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = sessionID
	m.filename = filename
	m.size = len(data)
	return m.transcript, m.err
}

type mockTransport struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
	closed int

	updates     chan string
	dead        chan struct{}
	deadOnce    sync.Once
	updatesOnce sync.Once
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		updates: make(chan string, 16),
		dead:    make(chan struct{}),
	}
}

func (m *mockTransport) Send(chunk []byte) error {
	select {
	case <-m.dead:
		return stream.ErrTransportClosed
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunk)
	return nil
}

func (m *mockTransport) Updates() <-chan string { return m.updates }
func (m *mockTransport) Done() <-chan struct{}  { return m.dead }

func (m *mockTransport) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockTransport) Close() error {
	m.updatesOnce.Do(func() { close(m.updates) })
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	return nil
}

// fail simulates the connection dying underneath the client.
func (m *mockTransport) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.deadOnce.Do(func() { close(m.dead) })
	m.updatesOnce.Do(func() { close(m.updates) })
}

func (m *mockTransport) sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.chunks))
	copy(out, m.chunks)
	return out
}

func (m *mockTransport) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached within a second")
}

func fileConfig(acq *mockAcquirer, saver *mockSaver) Config {
	return Config{
		Acquirer:   acq,
		Saver:      saver,
		Logger:     zerolog.Nop(),
		Sources:    []capture.Kind{capture.KindTab, capture.KindMic},
		Mode:       ModeFile,
		SampleRate: 16000,
		TabGain:    1.0,
		MicGain:    1.0,
	}
}

func TestStartStopProducesWAV(t *testing.T) {
	acq := newMockAcquirer()
	saver := &mockSaver{}
	ctl := New(fileConfig(acq, saver))

	if err := ctl.Start(context.Background(), "standup"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if ctl.State() != StateRecording {
		t.Fatalf("expected recording state, got %s", ctl.State())
	}

	// One mixer round: a block from each source
	acq.source(0).blocks <- []float32{0.1, 0.2}
	acq.source(1).blocks <- []float32{0.3, 0.4}

	result, err := ctl.Stop(context.Background())
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if ctl.State() != StateIdle {
		t.Errorf("expected idle state after stop, got %s", ctl.State())
	}
	if result.ID == "" {
		t.Error("expected a session ID")
	}
	if result.Label != "standup" {
		t.Errorf("expected label standup, got %q", result.Label)
	}
	if result.Path != "/recordings/standup.wav" {
		t.Errorf("unexpected path %q", result.Path)
	}
	// 2 frames at 16 kHz
	if result.Duration != 2*time.Second/16000 {
		t.Errorf("expected duration of 2 frames, got %v", result.Duration)
	}

	// Two mono sources union into a stereo container:
	// 44-byte header + 2 frames * 2 channels * 2 bytes
	if len(saver.data) != 44+8 {
		t.Errorf("expected 52-byte WAV, got %d bytes", len(saver.data))
	}
	if string(saver.data[0:4]) != "RIFF" {
		t.Errorf("expected a RIFF container, got %q", saver.data[0:4])
	}

	// Every source released exactly once
	if n := acq.source(0).closeCount(); n != 1 {
		t.Errorf("expected tab source closed once, got %d", n)
	}
	if n := acq.source(1).closeCount(); n != 1 {
		t.Errorf("expected mic source closed once, got %d", n)
	}

	if last := ctl.LastResult(); last == nil || last.ID != result.ID {
		t.Error("expected LastResult to return the finished session")
	}
}

func TestStartWhileRecordingFails(t *testing.T) {
	acq := newMockAcquirer()
	ctl := New(fileConfig(acq, &mockSaver{}))

	if err := ctl.Start(context.Background(), "first"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	err := ctl.Start(context.Background(), "second")
	if !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	// The live session is untouched
	if ctl.State() != StateRecording {
		t.Errorf("expected recording state, got %s", ctl.State())
	}
	if n := acq.source(0).closeCount(); n != 0 {
		t.Errorf("expected live sources untouched, got %d closes", n)
	}
	if acq.acquiredCount() != 2 {
		t.Errorf("expected no extra acquisitions, got %d", acq.acquiredCount())
	}

	if _, err := ctl.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
}

func TestStopWithoutRecording(t *testing.T) {
	ctl := New(fileConfig(newMockAcquirer(), &mockSaver{}))

	if _, err := ctl.Stop(context.Background()); !errors.Is(err, ErrNoActiveRecording) {
		t.Fatalf("expected ErrNoActiveRecording, got %v", err)
	}
}

func TestAcquisitionFailureReleasesAcquiredSources(t *testing.T) {
	acq := newMockAcquirer()
	acq.failKind = capture.KindMic
	acq.failErr = capture.ErrPermissionDenied
	ctl := New(fileConfig(acq, &mockSaver{}))

	err := ctl.Start(context.Background(), "")
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	// Tab was acquired before mic failed; it must be put back, once
	if acq.acquiredCount() != 1 {
		t.Fatalf("expected 1 acquisition before the failure, got %d", acq.acquiredCount())
	}
	if n := acq.source(0).closeCount(); n != 1 {
		t.Errorf("expected the acquired source released exactly once, got %d closes", n)
	}
	if ctl.State() != StateIdle {
		t.Errorf("expected idle state after failed start, got %s", ctl.State())
	}

	// The controller is reusable after the failure
	acq.failErr = nil
	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("expected restart to work: %v", err)
	}
	ctl.Dispose()
}

func TestDisposeReleasesEverything(t *testing.T) {
	acq := newMockAcquirer()
	ctl := New(fileConfig(acq, &mockSaver{}))

	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	ctl.Dispose()

	if ctl.State() != StateIdle {
		t.Errorf("expected idle state after dispose, got %s", ctl.State())
	}
	if n := acq.source(0).closeCount(); n != 1 {
		t.Errorf("expected source closed once, got %d", n)
	}

	// Dispose is idempotent
	ctl.Dispose()
	if n := acq.source(0).closeCount(); n != 1 {
		t.Errorf("expected no extra closes, got %d", n)
	}

	// And the controller is reusable
	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("expected restart to work: %v", err)
	}
	ctl.Dispose()
}

func TestStreamModeSendsChunksAndFlushes(t *testing.T) {
	acq := newMockAcquirer()
	transport := newMockTransport()

	ctl := New(Config{
		Acquirer:   acq,
		Dial:       func(ctx context.Context) (stream.Transport, error) { return transport, nil },
		Logger:     zerolog.Nop(),
		Sources:    []capture.Kind{capture.KindMic},
		Mode:       ModeStream,
		SampleRate: 1000,
		MicGain:    1.0,
		ChunkMs:    10, // 10-sample windows at 1 kHz mono
	})

	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// 25 samples: two full windows, 5 left for the flush
	acq.source(0).blocks <- make([]float32, 25)

	// Chunks flow while the session is live, not only at stop
	waitFor(t, func() bool { return len(transport.sent()) >= 2 })

	transport.updates <- "partial line"
	transport.updates <- "we agreed on the rollout plan"

	result, err := ctl.Stop(context.Background())
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	sent := transport.sent()
	if len(sent) != 3 {
		t.Fatalf("expected 2 windows + 1 flushed chunk, got %d", len(sent))
	}
	if len(sent[0]) != 20 || len(sent[1]) != 20 {
		t.Errorf("expected 20-byte windows, got %d and %d", len(sent[0]), len(sent[1]))
	}
	if len(sent[2]) != 10 {
		t.Errorf("expected 10-byte flushed chunk, got %d", len(sent[2]))
	}

	if result.Path != "" {
		t.Errorf("expected no file in stream mode, got %q", result.Path)
	}
	if result.Transcript != "we agreed on the rollout plan" {
		t.Errorf("expected the last transcript line, got %q", result.Transcript)
	}
	if transport.closeCount() == 0 {
		t.Error("expected the transport to be closed")
	}
	if n := acq.source(0).closeCount(); n != 1 {
		t.Errorf("expected source closed once, got %d", n)
	}
}

func TestStreamModeTransportLossFailsSession(t *testing.T) {
	acq := newMockAcquirer()
	transport := newMockTransport()

	ctl := New(Config{
		Acquirer:   acq,
		Dial:       func(ctx context.Context) (stream.Transport, error) { return transport, nil },
		Logger:     zerolog.Nop(),
		Sources:    []capture.Kind{capture.KindMic},
		Mode:       ModeStream,
		SampleRate: 1000,
		MicGain:    1.0,
	})

	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	transport.fail(stream.ErrTransportClosed)

	waitFor(t, func() bool { return ctl.State() == StateError })

	if n := acq.source(0).closeCount(); n != 1 {
		t.Errorf("expected source released on failure, got %d closes", n)
	}

	// Error state holds until the session is disposed
	if err := ctl.Start(context.Background(), ""); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("expected ErrAlreadyRecording in error state, got %v", err)
	}
	if _, err := ctl.Stop(context.Background()); !errors.Is(err, ErrNoActiveRecording) {
		t.Errorf("expected ErrNoActiveRecording in error state, got %v", err)
	}

	ctl.Dispose()
	if ctl.State() != StateIdle {
		t.Errorf("expected idle after dispose, got %s", ctl.State())
	}
	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("expected restart after dispose: %v", err)
	}
	ctl.Dispose()
}

func TestBothModeTransportLossKeepsFileLeg(t *testing.T) {
	acq := newMockAcquirer()
	saver := &mockSaver{}
	transport := newMockTransport()

	ctl := New(Config{
		Acquirer:   acq,
		Dial:       func(ctx context.Context) (stream.Transport, error) { return transport, nil },
		Saver:      saver,
		Logger:     zerolog.Nop(),
		Sources:    []capture.Kind{capture.KindMic},
		Mode:       ModeBoth,
		SampleRate: 1000,
		MicGain:    1.0,
	})

	if err := ctl.Start(context.Background(), "retro"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	transport.fail(stream.ErrTransportClosed)

	// The session keeps recording on the file leg
	acq.source(0).blocks <- []float32{0.1, 0.2}

	// Give the watcher a moment; the state must stay Recording
	time.Sleep(50 * time.Millisecond)
	if ctl.State() != StateRecording {
		t.Fatalf("expected recording to survive transport loss, got %s", ctl.State())
	}

	result, err := ctl.Stop(context.Background())
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if result.Path == "" {
		t.Error("expected the file leg to produce a recording")
	}
}

func TestBothModeDialFailureDegradesToFile(t *testing.T) {
	acq := newMockAcquirer()
	saver := &mockSaver{}

	ctl := New(Config{
		Acquirer:   acq,
		Dial:       func(ctx context.Context) (stream.Transport, error) { return nil, fmt.Errorf("connection refused") },
		Saver:      saver,
		Logger:     zerolog.Nop(),
		Sources:    []capture.Kind{capture.KindMic},
		Mode:       ModeBoth,
		SampleRate: 1000,
		MicGain:    1.0,
	})

	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("expected a degraded start, got %v", err)
	}
	if ctl.State() != StateRecording {
		t.Fatalf("expected recording state, got %s", ctl.State())
	}

	acq.source(0).blocks <- []float32{0.5}

	result, err := ctl.Stop(context.Background())
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if result.Path == "" {
		t.Error("expected the file leg to produce a recording")
	}
}

func TestStreamModeDialFailureAbortsStart(t *testing.T) {
	acq := newMockAcquirer()

	ctl := New(Config{
		Acquirer:   acq,
		Dial:       func(ctx context.Context) (stream.Transport, error) { return nil, fmt.Errorf("connection refused") },
		Logger:     zerolog.Nop(),
		Sources:    []capture.Kind{capture.KindMic},
		Mode:       ModeStream,
		SampleRate: 1000,
		MicGain:    1.0,
	})

	if err := ctl.Start(context.Background(), ""); err == nil {
		t.Fatal("expected start to fail without a transport")
	}
	if ctl.State() != StateIdle {
		t.Errorf("expected idle state after failed start, got %s", ctl.State())
	}
	if n := acq.source(0).closeCount(); n != 1 {
		t.Errorf("expected the source released, got %d closes", n)
	}
}

func TestUploadResultFlowsIntoResult(t *testing.T) {
	acq := newMockAcquirer()
	saver := &mockSaver{}
	uploader := &mockUploader{transcript: "decisions were made"}

	cfg := fileConfig(acq, saver)
	cfg.Uploader = uploader
	ctl := New(cfg)

	if err := ctl.Start(context.Background(), "planning"); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	acq.source(0).blocks <- []float32{0.1}
	acq.source(1).blocks <- []float32{0.2}

	result, err := ctl.Stop(context.Background())
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if result.Transcript != "decisions were made" {
		t.Errorf("expected the upload transcript, got %q", result.Transcript)
	}
	if uploader.sessionID != result.ID {
		t.Errorf("expected upload correlated to session %s, got %s", result.ID, uploader.sessionID)
	}
	if uploader.filename != result.Path {
		t.Errorf("expected upload of %q, got %q", result.Path, uploader.filename)
	}
}

func TestUploadFailureDoesNotFailStop(t *testing.T) {
	acq := newMockAcquirer()
	saver := &mockSaver{}
	uploader := &mockUploader{err: fmt.Errorf("endpoint down")}

	cfg := fileConfig(acq, saver)
	cfg.Uploader = uploader
	ctl := New(cfg)

	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	acq.source(0).blocks <- []float32{0.1}
	acq.source(1).blocks <- []float32{0.2}

	result, err := ctl.Stop(context.Background())
	if err != nil {
		t.Fatalf("expected stop to succeed despite the upload failure: %v", err)
	}
	if result.Path == "" {
		t.Error("expected the local recording to survive")
	}
	if ctl.State() != StateIdle {
		t.Errorf("expected idle state, got %s", ctl.State())
	}
}

func TestEmptySessionLabelFallsBackToID(t *testing.T) {
	acq := newMockAcquirer()
	saver := &mockSaver{}
	ctl := New(fileConfig(acq, saver))

	if err := ctl.Start(context.Background(), ""); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	result, err := ctl.Stop(context.Background())
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if saver.label != result.ID {
		t.Errorf("expected the session ID as label, got %q (id %s)", saver.label, result.ID)
	}
}

func TestAcquireTimeout(t *testing.T) {
	acq := &slowAcquirer{}

	ctl := New(Config{
		Acquirer:       acq,
		Saver:          &mockSaver{},
		Logger:         zerolog.Nop(),
		Sources:        []capture.Kind{capture.KindMic},
		Mode:           ModeFile,
		SampleRate:     16000,
		AcquireTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	err := ctl.Start(context.Background(), "")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("start did not respect the acquire timeout (%v)", elapsed)
	}
	if ctl.State() != StateIdle {
		t.Errorf("expected idle state after timeout, got %s", ctl.State())
	}
}

// slowAcquirer blocks until the acquisition context expires.
type slowAcquirer struct{}

func (s *slowAcquirer) Acquire(ctx context.Context, kind capture.Kind, opts capture.Options) (capture.Source, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: acquisition timed out: %v", capture.ErrPermissionDenied, ctx.Err())
}

func (s *slowAcquirer) ListDevices() ([]capture.Device, error) { return nil, nil }
func (s *slowAcquirer) Close() error                           { return nil }

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", ModeFile, true},
		{"file", ModeFile, true},
		{"stream", ModeStream, true},
		{"both", ModeBoth, true},
		{"tape", ModeFile, false},
	}

	for _, c := range cases {
		got, err := ParseMode(c.in)
		if c.ok && err != nil {
			t.Errorf("ParseMode(%q): unexpected error %v", c.in, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseMode(%q): expected an error", c.in)
		}
		if c.ok && got != c.want {
			t.Errorf("ParseMode(%q): expected %v, got %v", c.in, c.want, got)
		}
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateIdle:       "idle",
		StateAcquiring:  "acquiring",
		StateRecording:  "recording",
		StateStopping:   "stopping",
		StateFinalizing: "finalizing",
		StateError:      "error",
	}
	for state, want := range states {
		if state.String() != want {
			t.Errorf("expected %q, got %q", want, state.String())
		}
	}
}
