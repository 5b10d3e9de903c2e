// Package capturetest provides in-memory Acquirer, Encoder and stream
// implementations for exercising capture sessions without hardware.
package capturetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/radiorec/radiorec/internal/capture"
)

// DefaultFormat is the PCM format of fake audio streams.
var DefaultFormat = capture.AudioFormat{SampleRate: 48000, Channels: 1}

var streamSeq atomic.Int64

// TestCamera is the ffmpeg test pattern attached to fake video streams.
var TestCamera = capture.VideoInput{Format: "lavfi", Device: "testsrc=size=320x240:rate=15"}

// NewStream returns a capture.Stream with an audio track and, when video is
// set, a test pattern camera.
func NewStream(video bool) *capture.Stream {
	s := capture.NewStream(fmt.Sprintf("fake-%d", streamSeq.Add(1)), DefaultFormat, nil,
		capture.NewTrack(capture.MediaAudio, "fake microphone"))
	if video {
		s.AttachCamera(TestCamera)
	}
	return s
}

// Acquirer grants or denies fake streams.
type Acquirer struct {
	// Err is returned instead of a stream when set.
	Err error
	// Gate, when non-nil, holds Acquire until it is closed.
	Gate chan struct{}
	// IgnoreCancel keeps Acquire waiting on Gate even after ctx is cancelled,
	// like a platform prompt that cannot be withdrawn.
	IgnoreCancel bool

	mu      sync.Mutex
	calls   []capture.Constraints
	streams []*capture.Stream
}

func (a *Acquirer) Acquire(ctx context.Context, c capture.Constraints) (capture.MediaStreamHandle, error) {
	a.mu.Lock()
	a.calls = append(a.calls, c)
	a.mu.Unlock()

	if a.Gate != nil {
		if a.IgnoreCancel {
			<-a.Gate
		} else {
			select {
			case <-a.Gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if a.Err != nil {
		return nil, a.Err
	}

	s := NewStream(c.Video)
	a.mu.Lock()
	a.streams = append(a.streams, s)
	a.mu.Unlock()
	return s, nil
}

// Calls returns the constraints of every Acquire call.
func (a *Acquirer) Calls() []capture.Constraints {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]capture.Constraints(nil), a.calls...)
}

// Streams returns every stream handed out.
func (a *Acquirer) Streams() []*capture.Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*capture.Stream(nil), a.streams...)
}

// Encoder opens fake recorders and announces them on Opened.
type Encoder struct {
	OpenErr error
	// FinalChunk is emitted by each recorder when it is stopped.
	FinalChunk []byte
	// StopErr is reported by Err once a recorder was stopped, like an
	// encoder that fails while writing the trailer.
	StopErr error

	opened chan *Recorder
	once   sync.Once
}

func (e *Encoder) init() {
	e.once.Do(func() { e.opened = make(chan *Recorder, 8) })
}

// Opened delivers each recorder as it is opened.
func (e *Encoder) Opened() <-chan *Recorder {
	e.init()
	return e.opened
}

func (e *Encoder) Open(stream capture.MediaStreamHandle, opts capture.EncoderOptions) (capture.Recorder, error) {
	e.init()
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	r := &Recorder{
		Options:    opts,
		Stream:     stream,
		finalChunk: e.FinalChunk,
		stopErr:    e.StopErr,
		chunks:     make(chan []byte, 64),
	}
	e.opened <- r
	return r, nil
}

// Recorder is driven by the test through Emit and End.
type Recorder struct {
	Options capture.EncoderOptions
	Stream  capture.MediaStreamHandle

	finalChunk []byte
	stopErr    error
	chunks     chan []byte

	mu        sync.Mutex
	closed    bool
	err       error
	stopCalls int
}

func (r *Recorder) Chunks() <-chan []byte { return r.chunks }

func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Emit delivers a chunk; it is dropped once the recorder closed.
func (r *Recorder) Emit(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.chunks <- b
	}
}

// Stop flushes FinalChunk and confirms the stop, failing with StopErr if set.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCalls++
	if r.closed {
		return
	}
	if len(r.finalChunk) > 0 {
		r.chunks <- r.finalChunk
	}
	r.err = r.stopErr
	r.closed = true
	close(r.chunks)
}

// End closes the recorder on its own, as when the track ends or the encoder crashes.
func (r *Recorder) End(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.err = err
	r.closed = true
	close(r.chunks)
}

// StopCalls counts Stop invocations.
func (r *Recorder) StopCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCalls
}

// HangingEncoder opens recorders that ignore the first Stop, so the
// session's stop timeout fires. The teardown's second Stop closes them.
type HangingEncoder struct{}

func (HangingEncoder) Open(capture.MediaStreamHandle, capture.EncoderOptions) (capture.Recorder, error) {
	return &hangingRecorder{chunks: make(chan []byte)}, nil
}

type hangingRecorder struct {
	chunks chan []byte
	stops  atomic.Int32
}

func (h *hangingRecorder) Chunks() <-chan []byte { return h.chunks }
func (h *hangingRecorder) Err() error             { return nil }

func (h *hangingRecorder) Stop() {
	if h.stops.Add(1) == 2 {
		close(h.chunks)
	}
}
