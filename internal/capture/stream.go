package capture

import (
	"context"
	"sync"
	"sync/atomic"
)

// AudioFormat describes the interleaved signed 16-bit little-endian PCM
// delivered to sinks.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// PCMSink receives raw PCM from the device. It runs on the device callback
// goroutine, must not block and must copy the slice if it keeps it.
type PCMSink func(pcm []byte)

// Track is one live hardware track of a stream.
type Track interface {
	Kind() MediaType
	Label() string
	Stopped() bool
}

// MediaStreamHandle is exclusive ownership of live hardware tracks. Only the
// owning session calls Release; other components borrow it through AddSink.
type MediaStreamHandle interface {
	ID() string
	Tracks() []Track
	// AudioFormat reports the PCM format, false when there is no audio track.
	AudioFormat() (AudioFormat, bool)
	// AddSink taps the audio PCM. The returned func removes the sink and is idempotent.
	AddSink(sink PCMSink) (remove func())
	// Ended is closed when the stream stops delivering, by release or device loss.
	Ended() <-chan struct{}
	// Release stops every track. It is idempotent.
	Release()
}

// VideoInput names the camera an encoder reads frames from. Frames never
// pass through sinks; the encoder opens the device itself.
type VideoInput struct {
	Format     string // ffmpeg demuxer: v4l2, avfoundation, dshow or lavfi
	Device     string // demuxer input, e.g. /dev/video0
	FacingMode string
}

// VideoSource is implemented by streams that carry a camera track.
type VideoSource interface {
	VideoInput() (VideoInput, bool)
}

// Acquirer grants access to capture devices.
type Acquirer interface {
	Acquire(ctx context.Context, c Constraints) (MediaStreamHandle, error)
}

// EncoderOptions configures one recorder.
type EncoderOptions struct {
	Container string
	Bitrate   int
	MediaType MediaType
}

// Recorder emits encoded chunks for one stream.
type Recorder interface {
	// Chunks delivers fragments in order and is closed after the last one,
	// which confirms that no more data will arrive.
	Chunks() <-chan []byte
	// Err is valid once Chunks is closed; nil means a clean stop.
	Err() error
	// Stop asks the recorder to flush and close Chunks.
	Stop()
}

// Encoder opens recorders on a stream.
type Encoder interface {
	Open(stream MediaStreamHandle, opts EncoderOptions) (Recorder, error)
}

// BasicTrack is a Track whose stopped flag is set by its Stream.
type BasicTrack struct {
	kind    MediaType
	label   string
	stopped atomic.Bool
}

// NewTrack returns a live track.
func NewTrack(kind MediaType, label string) *BasicTrack {
	return &BasicTrack{kind: kind, label: label}
}

func (t *BasicTrack) Kind() MediaType { return t.kind }
func (t *BasicTrack) Label() string   { return t.label }
func (t *BasicTrack) Stopped() bool   { return t.stopped.Load() }

// Stream is a reusable MediaStreamHandle that fans device PCM out to sinks.
// Platform implementations embed it and call Publish from their callback.
type Stream struct {
	id        string
	format    AudioFormat
	hasAudio  bool
	tracks    []*BasicTrack
	video     *VideoInput
	onRelease func()

	mu     sync.RWMutex
	sinks  map[uint64]PCMSink
	nextID uint64

	ended       chan struct{}
	endOnce     sync.Once
	releaseOnce sync.Once
}

// NewStream builds a stream over tracks. onRelease runs once, after every
// track is marked stopped, and should free the device.
func NewStream(id string, format AudioFormat, onRelease func(), tracks ...*BasicTrack) *Stream {
	s := &Stream{
		id:        id,
		format:    format,
		tracks:    tracks,
		onRelease: onRelease,
		sinks:     make(map[uint64]PCMSink),
		ended:     make(chan struct{}),
	}
	for _, t := range tracks {
		if t.kind == MediaAudio {
			s.hasAudio = true
		}
	}
	return s
}

func (s *Stream) ID() string { return s.id }

// AttachCamera adds a video track backed by in. It must be called before
// the stream is handed to a session.
func (s *Stream) AttachCamera(in VideoInput) {
	s.tracks = append(s.tracks, NewTrack(MediaVideo, in.Device))
	s.video = &in
}

// VideoInput reports the attached camera.
func (s *Stream) VideoInput() (VideoInput, bool) {
	if s.video == nil {
		return VideoInput{}, false
	}
	return *s.video, true
}

func (s *Stream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *Stream) AudioFormat() (AudioFormat, bool) {
	return s.format, s.hasAudio
}

func (s *Stream) AddSink(sink PCMSink) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.sinks[id] = sink
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.sinks, id)
			s.mu.Unlock()
		})
	}
}

// SinkCount is the number of attached sinks.
func (s *Stream) SinkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sinks)
}

// Publish delivers pcm to every sink. It is a no-op once the stream ended.
func (s *Stream) Publish(pcm []byte) {
	select {
	case <-s.ended:
		return
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sink := range s.sinks {
		sink(pcm)
	}
}

func (s *Stream) Ended() <-chan struct{} { return s.ended }

// End marks the stream as no longer delivering without releasing it,
// e.g. when the device disappears.
func (s *Stream) End() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Release marks every track stopped, ends the stream and runs onRelease once.
func (s *Stream) Release() {
	s.releaseOnce.Do(func() {
		for _, t := range s.tracks {
			t.stopped.Store(true)
		}
		s.End()

		s.mu.Lock()
		clear(s.sinks)
		s.mu.Unlock()

		if s.onRelease != nil {
			s.onRelease()
		}
	})
}

// AllTracksStopped reports whether every track of h is stopped.
func AllTracksStopped(h MediaStreamHandle) bool {
	for _, t := range h.Tracks() {
		if !t.Stopped() {
			return false
		}
	}
	return true
}
