package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meetcap/meetcap/internal/capture"
	"github.com/meetcap/meetcap/internal/encode"
	"github.com/meetcap/meetcap/internal/mix"
	"github.com/meetcap/meetcap/internal/stream"
	"github.com/meetcap/meetcap/internal/wav"
)

// frameQueueDepth bounds the mixer → consumer channel.
const frameQueueDepth = 8

// DialFunc opens the streaming transport. Wired to stream.Dial in main;
// swapped for a fake in tests.
type DialFunc func(ctx context.Context) (stream.Transport, error)

// Saver persists a finished WAV and returns its path.
type Saver interface {
	SaveWAV(label string, startedAt time.Time, data []byte) (string, error)
}

// Uploader posts a finished WAV downstream and returns any transcript.
type Uploader interface {
	Upload(ctx context.Context, sessionID, filename string, data []byte) (string, error)
}

// Config wires the controller's collaborators and session defaults.
type Config struct {
	Acquirer capture.Acquirer
	Dial     DialFunc // required for stream/both modes
	Saver    Saver    // required for file/both modes
	Uploader Uploader // optional; file/both modes only
	Logger   zerolog.Logger

	Sources          []capture.Kind
	Mode             Mode
	SampleRate       int
	MicDeviceID      string
	LoopbackDeviceID string
	MicGain          float64
	TabGain          float64
	PadPolicy        mix.PadPolicy
	ChunkMs          int
	Codec            string
	OpusBitrate      int
	AcquireTimeout   time.Duration // 0 = no timeout
}

// Result describes a finished session.
type Result struct {
	ID         string
	Label      string
	Path       string // empty in stream-only mode
	Duration   time.Duration
	Transcript string // last transcript line, if any came back
}

// Controller owns the one live recording and its lifecycle. At most one
// session exists at a time; every acquired source and open connection is
// released exactly once on every exit path.
type Controller struct {
	cfg Config
	log zerolog.Logger

	mu         sync.Mutex
	state      State
	rec        *recording
	lastResult *Result
}

// recording is the live session entity: everything Start acquired and
// Stop/Dispose must release.
type recording struct {
	id        string
	label     string
	startedAt time.Time

	sources   []capture.Source
	transport stream.Transport
	chunker   *encode.Chunker
	mixer     *mix.Mixer

	frames chan []float32
	done   chan struct{}
	wg     sync.WaitGroup

	releaseOnce sync.Once

	mu          sync.Mutex
	updatesDone chan struct{} // set when the updates watcher starts
	buf         []float32     // accumulated interleaved samples (file leg)
	framesMixed int64
	transcript  string
}

// New creates an idle controller.
func New(cfg Config) *Controller {
	return &Controller{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "session").Logger(),
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastResult returns the most recently finalized session, if any.
func (c *Controller) LastResult() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// Start acquires the configured sources, wires the pipeline, and moves to
// Recording. It fails with ErrAlreadyRecording unless the controller is
// idle. On any acquisition failure every source already acquired is
// released and the controller returns to idle, never left half-acquired.
func (c *Controller) Start(ctx context.Context, label string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyRecording, state)
	}
	if len(c.cfg.Sources) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("no sources configured")
	}

	rec := &recording{
		id:        uuid.NewString(),
		label:     label,
		startedAt: time.Now(),
		frames:    make(chan []float32, frameQueueDepth),
		done:      make(chan struct{}),
	}
	c.state = StateAcquiring
	c.rec = rec
	c.mu.Unlock()

	log := c.log.With().Str("session_id", rec.id).Logger()
	log.Info().Str("mode", c.cfg.Mode.String()).Msg("Starting recording")

	if err := c.acquire(ctx, rec); err != nil {
		c.abortStart(rec)
		log.Error().Err(err).Msg("Acquisition failed")
		return err
	}

	if err := c.wirePipeline(ctx, rec, log); err != nil {
		c.abortStart(rec)
		log.Error().Err(err).Msg("Pipeline setup failed")
		return err
	}

	rec.wg.Add(2)
	go func() {
		defer rec.wg.Done()
		rec.mixer.Run(rec.done, rec.frames)
	}()
	go c.consume(rec, log)

	if rec.transport != nil {
		rec.mu.Lock()
		rec.updatesDone = make(chan struct{})
		rec.mu.Unlock()
		go c.watchTransport(rec, log)
		go c.watchUpdates(rec)
	}

	c.mu.Lock()
	if c.rec != rec {
		// Disposed while we were wiring up.
		c.mu.Unlock()
		rec.release(false)
		return fmt.Errorf("session disposed during start")
	}
	c.state = StateRecording
	c.mu.Unlock()

	log.Info().
		Int("sources", len(rec.sources)).
		Int("channels", rec.mixer.Channels()).
		Int("sample_rate", c.cfg.SampleRate).
		Msg("Recording")
	return nil
}

// acquire obtains every requested source, unwinding on the first failure.
func (c *Controller) acquire(ctx context.Context, rec *recording) error {
	for _, kind := range c.cfg.Sources {
		acquireCtx := ctx
		var cancel context.CancelFunc = func() {}
		if c.cfg.AcquireTimeout > 0 {
			acquireCtx, cancel = context.WithTimeout(ctx, c.cfg.AcquireTimeout)
		}

		src, err := c.cfg.Acquirer.Acquire(acquireCtx, kind, c.optionsFor(kind))
		cancel()
		if err != nil {
			return fmt.Errorf("acquire %s: %w", kind, err)
		}

		rec.mu.Lock()
		rec.sources = append(rec.sources, src)
		rec.mu.Unlock()

		// A Dispose racing this loop has already snapshotted the source
		// list; anything acquired after that is ours to put back.
		select {
		case <-rec.done:
			src.Close()
			return fmt.Errorf("session disposed during acquisition")
		default:
		}
	}
	return nil
}

func (c *Controller) optionsFor(kind capture.Kind) capture.Options {
	opts := capture.Options{SampleRate: c.cfg.SampleRate}
	if kind == capture.KindMic {
		opts.DeviceID = c.cfg.MicDeviceID
		opts.Gain = c.cfg.MicGain
	} else {
		opts.DeviceID = c.cfg.LoopbackDeviceID
		opts.Gain = c.cfg.TabGain
	}
	if opts.Gain == 0 {
		opts.Gain = 1.0
	}
	return opts
}

// wirePipeline connects sources → mixer and, for streaming modes, dials
// the transport and builds the chunker. In both mode a dial failure
// degrades to file-only; in stream-only mode it aborts the start.
func (c *Controller) wirePipeline(ctx context.Context, rec *recording, log zerolog.Logger) error {
	inputs := make([]mix.Input, 0, len(rec.sources))
	for _, src := range rec.sources {
		inputs = append(inputs, mix.Input{
			Blocks:   src.Blocks(),
			Channels: src.Channels(),
			Gain:     src.Gain(),
		})
	}

	mixer, err := mix.NewMixer(inputs, c.cfg.PadPolicy)
	if err != nil {
		return fmt.Errorf("wire mixer: %w", err)
	}
	rec.mixer = mixer

	if !c.cfg.Mode.wantsStream() {
		return nil
	}

	transport, err := c.cfg.Dial(ctx)
	if err != nil {
		if c.cfg.Mode == ModeBoth {
			log.Warn().Err(err).Msg("Streaming leg unavailable, recording to file only")
			return nil
		}
		return fmt.Errorf("connect transport: %w", err)
	}
	rec.mu.Lock()
	rec.transport = transport
	rec.mu.Unlock()

	chunker, err := encode.NewChunker(c.cfg.SampleRate, mixer.Channels(), c.cfg.ChunkMs, c.cfg.Codec, c.cfg.OpusBitrate)
	if err != nil {
		return fmt.Errorf("wire chunker: %w", err)
	}
	rec.chunker = chunker
	return nil
}

// consume drains the combined stream in arrival order: the file leg
// accumulates samples, the stream leg cuts chunks and forwards them. On a
// graceful stop it sees the channel close, flushes the final partial
// chunk, and exits.
func (c *Controller) consume(rec *recording, log zerolog.Logger) {
	defer rec.wg.Done()

	wantFile := c.cfg.Mode.wantsFile()

	for block := range rec.frames {
		rec.mu.Lock()
		rec.framesMixed += int64(len(block) / rec.mixer.Channels())
		if wantFile {
			rec.buf = append(rec.buf, block...)
		}
		rec.mu.Unlock()

		if rec.chunker == nil {
			continue
		}
		chunks, err := rec.chunker.Write(block)
		if err != nil {
			log.Error().Err(err).Msg("Chunk encoding failed")
			continue
		}
		c.sendChunks(rec, chunks, log)
	}

	if rec.chunker != nil {
		chunks, err := rec.chunker.Flush()
		if err != nil {
			log.Error().Err(err).Msg("Final chunk encoding failed")
			return
		}
		c.sendChunks(rec, chunks, log)
	}
}

func (c *Controller) sendChunks(rec *recording, chunks [][]byte, log zerolog.Logger) {
	for _, chunk := range chunks {
		if err := rec.transport.Send(chunk); err != nil {
			// Dropped chunk. The file leg is unaffected; the transport
			// watcher handles a dead connection in stream-only mode.
			log.Debug().Err(err).Int("size", len(chunk)).Msg("Chunk dropped")
		}
	}
}

// watchTransport turns a dead connection into a fatal error when streaming
// is the only output leg. With a file leg the loss is logged and the
// session keeps recording.
func (c *Controller) watchTransport(rec *recording, log zerolog.Logger) {
	select {
	case <-rec.done:
		return
	case <-rec.transport.Done():
	}

	err := rec.transport.Err()
	if c.cfg.Mode == ModeStream {
		log.Error().Err(err).Msg("Transport lost in streaming mode, aborting session")
		c.fail(rec)
		return
	}
	log.Warn().Err(err).Msg("Transport lost, file leg continues")
}

// watchUpdates keeps the latest transcript line the consumer sent back. It
// runs until the transport's update channel closes, so release can wait for
// the final line to land before the session finalizes.
func (c *Controller) watchUpdates(rec *recording) {
	defer close(rec.updatesDone)
	for line := range rec.transport.Updates() {
		rec.mu.Lock()
		rec.transcript = line
		rec.mu.Unlock()
	}
}

// Stop ends the live session: the pump drains, every source is released,
// the transport flushes and closes, and (in file modes) the WAV is
// finalized, saved, and optionally uploaded. Fails with
// ErrNoActiveRecording unless a recording is active.
func (c *Controller) Stop(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrNoActiveRecording, state)
	}
	c.state = StateStopping
	rec := c.rec
	c.mu.Unlock()

	log := c.log.With().Str("session_id", rec.id).Logger()
	log.Info().Msg("Stopping recording")

	rec.release(true)

	c.mu.Lock()
	c.state = StateFinalizing
	c.mu.Unlock()

	result, err := c.finalize(ctx, rec, log)

	c.mu.Lock()
	c.state = StateIdle
	c.rec = nil
	if result != nil {
		c.lastResult = result
	}
	c.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Finalization failed")
		return nil, err
	}

	log.Info().
		Str("path", result.Path).
		Dur("duration", result.Duration).
		Msg("Recording finished")
	return result, nil
}

// finalize assembles the artifact once all resources are released.
func (c *Controller) finalize(ctx context.Context, rec *recording, log zerolog.Logger) (*Result, error) {
	rec.mu.Lock()
	buf := rec.buf
	framesMixed := rec.framesMixed
	transcript := rec.transcript
	rec.mu.Unlock()

	result := &Result{
		ID:         rec.id,
		Label:      rec.label,
		Duration:   framesDuration(framesMixed, c.cfg.SampleRate),
		Transcript: transcript,
	}

	if !c.cfg.Mode.wantsFile() {
		return result, nil
	}

	data, err := wav.EncodeInterleaved(buf, rec.mixer.Channels(), c.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("encode recording: %w", err)
	}

	label := rec.label
	if label == "" {
		label = rec.id
	}
	path, err := c.cfg.Saver.SaveWAV(label, rec.startedAt, data)
	if err != nil {
		return nil, fmt.Errorf("save recording: %w", err)
	}
	result.Path = path

	if c.cfg.Uploader != nil {
		transcript, err := c.cfg.Uploader.Upload(ctx, rec.id, path, data)
		if err != nil {
			// The artifact exists locally; a failed upload is reported,
			// not fatal.
			log.Warn().Err(err).Msg("Upload failed")
		} else if transcript != "" {
			result.Transcript = transcript
		}
	}

	return result, nil
}

// Dispose force-releases everything the controller holds and resets it to
// idle. Callable from any state; repeated calls are no-ops.
func (c *Controller) Dispose() {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	prev := c.state
	c.state = StateIdle
	c.mu.Unlock()

	if rec != nil {
		rec.release(false)
		c.log.Info().
			Str("session_id", rec.id).
			Str("state", prev.String()).
			Msg("Session disposed")
	}
}

// fail moves the controller to Error and releases everything. Only the
// session that failed may take the controller down; a stale watcher
// firing after a new Start is ignored.
func (c *Controller) fail(rec *recording) {
	c.mu.Lock()
	if c.rec != rec {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.mu.Unlock()

	rec.release(false)
}

// release tears the session down exactly once. With drain=true (graceful
// stop) the sources close first and the pumps run dry before the transport
// flushes and closes; with drain=false (error paths, dispose) the pipeline
// is signalled to abort immediately.
func (r *recording) release(drain bool) {
	r.releaseOnce.Do(func() {
		if drain {
			r.closeSources()
			r.wg.Wait()
			close(r.done)
		} else {
			close(r.done)
			r.closeSources()
			r.wg.Wait()
		}

		r.mu.Lock()
		transport := r.transport
		updatesDone := r.updatesDone
		r.mu.Unlock()

		if transport != nil {
			transport.Close()
		}
		if updatesDone != nil {
			// Closing the transport ends its update stream; wait for the
			// watcher to record the last line before finalization reads it.
			<-updatesDone
		}
	})
}

func (r *recording) closeSources() {
	r.mu.Lock()
	sources := append([]capture.Source(nil), r.sources...)
	r.mu.Unlock()
	for _, src := range sources {
		src.Close()
	}
}

// abortStart unwinds a failed Start: release whatever was acquired, back
// to idle.
func (c *Controller) abortStart(rec *recording) {
	rec.release(false)

	c.mu.Lock()
	if c.rec == rec {
		c.rec = nil
		c.state = StateIdle
	}
	c.mu.Unlock()
}

func framesDuration(frames int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
