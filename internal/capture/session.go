// Package capture drives a single recording session: device acquisition,
// the encoder state machine and chunk accumulation. Platform specifics live
// behind the Acquirer and Encoder interfaces.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
)

const (
	defaultTickInterval = time.Second
	defaultStopTimeout  = 10 * time.Second
	eventBufferSize     = 32
)

// ErrSessionStarted is returned by Start on a session that already left idle.
var ErrSessionStarted = errors.NewStd("capture session already started")

type command int

const (
	cmdStop command = iota
	cmdCancel
)

type acquireResult struct {
	handle MediaStreamHandle
	err    error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock overrides time.Now, used for filenames and start times.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTickInterval changes the elapsed counter cadence.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithStopTimeout bounds how long the session waits for the encoder to
// confirm a stop before failing with DeviceUnavailable.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// Session is one single-use recording. All state changes happen on one
// goroutine that consumes acquisition results, encoder chunks, timer ticks
// and user commands, so teardown is a single path.
type Session struct {
	id           string
	acquirer     Acquirer
	encoder      Encoder
	log          logger.Logger
	now          func() time.Time
	tickInterval time.Duration
	stopTimeout  time.Duration

	cmds     chan command
	acquired chan acquireResult
	events   chan Event
	done     chan struct{}

	startMu sync.Mutex
	started bool

	mu     sync.RWMutex
	cfg    Config
	snap   Snapshot
	stream MediaStreamHandle
	result *Descriptor
	fail   *Failure
}

// NewSession creates an idle session.
func NewSession(acquirer Acquirer, encoder Encoder, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		acquirer:     acquirer,
		encoder:      encoder,
		now:          time.Now,
		tickInterval: defaultTickInterval,
		stopTimeout:  defaultStopTimeout,
		cmds:         make(chan command, 4),
		acquired:     make(chan acquireResult),
		events:       make(chan Event, eventBufferSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("capture")
	}
	s.log = s.log.With(logger.String("session_id", s.id))
	s.snap = Snapshot{SessionID: s.id, Status: StatusIdle}
	return s
}

// ID is the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Start moves the session from idle to requesting and acquires the device
// in the background. It never blocks on the platform.
func (s *Session) Start(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return ErrSessionStarted
	}
	s.started = true

	s.mu.Lock()
	s.cfg = cfg
	s.snap.MediaType = cfg.MediaType
	s.snap.Container = cfg.Container
	s.snap.Tier = cfg.Tier
	s.snap.Bitrate = cfg.Tier.Bitrate()
	s.mu.Unlock()

	s.setStatus(StatusRequesting)
	s.log.Info("capture session requesting device",
		logger.String("media_type", string(cfg.MediaType)),
		logger.String("container", cfg.Container),
		logger.String("quality", string(cfg.Tier)))

	go s.run(cfg)
	return nil
}

// Stop asks a recording session to flush and finish. Stopping a session
// that is still requesting cancels it.
func (s *Session) Stop() { s.send(cmdStop) }

// Cancel tears the session down from any state. It releases the device and
// ends in failed(Cancelled) unless the session already finished.
func (s *Session) Cancel() {
	s.startMu.Lock()
	if !s.started {
		s.started = true
		s.startMu.Unlock()
		s.finish(nil, NewFailure(KindCancelled, "", nil))
		return
	}
	s.startMu.Unlock()
	s.send(cmdCancel)
}

// Close cancels the session and waits for it to settle.
func (s *Session) Close() {
	s.Cancel()
	<-s.done
}

func (s *Session) send(c command) {
	select {
	case s.cmds <- c:
	case <-s.done:
	}
}

// Done is closed once the session reached completed or failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Events delivers state changes, chunk appends and ticks. Intermediate
// events are dropped when the consumer lags; the terminal event is always
// delivered and the channel is closed after it.
func (s *Session) Events() <-chan Event { return s.events }

// Result returns the descriptor or the failure. Valid after Done.
func (s *Session) Result() (*Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return s.result, nil
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Stream returns the live stream while recording, for borrowing by a level
// meter. Callers must not release it.
func (s *Session) Stream() MediaStreamHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

func (s *Session) run(cfg Config) {
	acqCtx, cancelAcquire := context.WithCancel(context.Background())
	defer cancelAcquire()

	go s.acquire(acqCtx, Constraints{
		Audio:      true,
		Video:      cfg.MediaType == MediaVideo,
		FacingMode: cfg.FacingMode,
	})

	var (
		stream    MediaStreamHandle
		rec       Recorder
		chunkCh   <-chan []byte
		chunks    [][]byte
		ticker    *time.Ticker
		tickC     <-chan time.Time
		stopTimer *time.Timer
		stopC     <-chan time.Time
		status    = StatusRequesting
	)

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer stopTicker()
	defer func() {
		if stopTimer != nil {
			stopTimer.Stop()
		}
	}()

	// teardown releases the device and lets a still-running recorder drain.
	teardown := func() {
		stopTicker()
		if rec != nil {
			rec.Stop()
			if chunkCh != nil {
				go drain(chunkCh)
				chunkCh = nil
			}
		}
		if stream != nil {
			stream.Release()
			s.mu.Lock()
			s.stream = nil
			s.mu.Unlock()
		}
	}

	for {
		select {
		case res := <-s.acquired:
			if res.err != nil {
				s.log.Warn("device acquisition failed", logger.Error(res.err))
				s.finish(nil, NewFailure(classifyAcquireError(res.err), "", res.err))
				return
			}
			stream = res.handle

			var err error
			rec, err = s.encoder.Open(stream, EncoderOptions{
				Container: cfg.Container,
				Bitrate:   cfg.Tier.Bitrate(),
				MediaType: cfg.MediaType,
			})
			if err != nil {
				s.log.Error("encoder open failed", logger.Error(err))
				rec = nil
				teardown()
				s.finish(nil, NewFailure(KindDeviceUnavailable, "", err))
				return
			}
			chunkCh = rec.Chunks()
			ticker = time.NewTicker(s.tickInterval)
			tickC = ticker.C

			s.mu.Lock()
			s.stream = stream
			s.snap.StartedAt = s.now()
			s.mu.Unlock()
			status = StatusRecording
			s.setStatus(status)
			s.log.Info("capture session recording", logger.String("stream_id", stream.ID()))

		case c := <-s.cmds:
			switch {
			case status == StatusRequesting:
				// A late acquisition result is released by acquire().
				s.finish(nil, NewFailure(KindCancelled, "", nil))
				return
			case c == cmdStop && status == StatusRecording:
				status = StatusStopping
				stopTicker()
				s.setStatus(status)
				rec.Stop()
				stopTimer = time.NewTimer(s.stopTimeout)
				stopC = stopTimer.C
			case c == cmdCancel:
				teardown()
				s.finish(nil, NewFailure(KindCancelled, "", nil))
				return
			}

		case chunk, ok := <-chunkCh:
			if !ok {
				chunkCh = nil
				if err := rec.Err(); err != nil {
					s.log.Error("encoder failed", logger.String("status", status.String()), logger.Error(err))
					teardown()
					s.finish(nil, NewFailure(KindDeviceUnavailable, "", err))
					return
				}
				if status == StatusRecording {
					s.log.Info("stream ended, finalizing")
				}
				teardown()
				s.finalize(chunks)
				return
			}
			if len(chunk) == 0 {
				continue
			}
			chunks = append(chunks, chunk)
			s.mu.Lock()
			s.snap.Chunks++
			s.snap.Bytes += int64(len(chunk))
			s.mu.Unlock()
			s.emit(EventChunk)

		case <-tickC:
			s.mu.Lock()
			s.snap.Elapsed++
			s.mu.Unlock()
			s.emit(EventTick)

		case <-stopC:
			s.log.Error("encoder did not confirm stop", logger.Duration("timeout", s.stopTimeout))
			teardown()
			s.finish(nil, NewFailure(KindDeviceUnavailable, "encoder did not confirm stop", nil))
			return
		}
	}
}

// acquire runs the platform request off the state loop. A handle that
// arrives after the session ended is released immediately.
func (s *Session) acquire(ctx context.Context, c Constraints) {
	h, err := s.acquirer.Acquire(ctx, c)
	if err == nil && h == nil {
		err = errors.Newf("acquirer returned no stream").
			Component("capture").
			Category(errors.CategoryAudioSource).
			Build()
	}
	select {
	case s.acquired <- acquireResult{handle: h, err: err}:
	case <-s.done:
		if h != nil {
			s.log.Debug("releasing stream acquired after session ended")
			h.Release()
		}
	}
}

func (s *Session) finalize(chunks [][]byte) {
	s.setStatus(StatusFinalizing)

	if len(chunks) == 0 {
		s.finish(nil, NewFailure(KindEmptyCapture, "", nil))
		return
	}

	s.mu.RLock()
	snap := s.snap
	cfg := s.cfg
	s.mu.RUnlock()

	meta := cfg.Metadata.clone()
	if meta.Type == "" {
		meta.Type = cfg.Type
	}
	if meta.Format == "" {
		meta.Format = cfg.Container
	}

	d := &Descriptor{
		payload:   assemble(chunks),
		filename:  Filename(cfg.Type, cfg.Container, snap.StartedAt),
		mimeType:  MIMEType(snap.MediaType, snap.Container),
		meta:      meta,
		sessionID: s.id,
		duration:  time.Duration(snap.Elapsed) * s.tickInterval,
		createdAt: s.now(),
	}
	s.finish(d, nil)
}

// finish records the terminal state, publishes it and closes the channels.
func (s *Session) finish(d *Descriptor, f *Failure) {
	s.mu.Lock()
	s.result = d
	s.fail = f
	s.stream = nil
	s.snap.Failure = f
	if f != nil {
		s.snap.Status = StatusFailed
	} else {
		s.snap.Status = StatusCompleted
	}
	snap := s.snap
	s.mu.Unlock()

	if f != nil {
		s.log.Info("capture session failed", logger.String("kind", f.Kind.String()))
		f.Report("capture", map[string]any{"session_id": s.id})
	} else {
		s.log.Info("capture session completed",
			logger.Int("bytes", d.Size()),
			logger.Int("chunks", snap.Chunks),
			logger.String("filename", d.filename))
	}

	s.deliverFinal(Event{Kind: EventState, Snapshot: snap})
	close(s.events)
	close(s.done)
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.snap.Status = st
	s.mu.Unlock()
	s.emit(EventState)
}

func (s *Session) emit(kind EventKind) {
	ev := Event{Kind: kind, Snapshot: s.Snapshot()}
	select {
	case s.events <- ev:
	default:
		s.log.Trace("event dropped, consumer lagging")
	}
}

// deliverFinal makes room for the terminal event by evicting the oldest.
func (s *Session) deliverFinal(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}

func drain(ch <-chan []byte) {
	for range ch { //nolint:revive // discard
	}
}
