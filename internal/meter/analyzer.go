// Package meter derives a normalized loudness level from a live stream.
package meter

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/logger"
)

// Options configures an Analyzer.
type Options struct {
	Interval  time.Duration // sampling cadence, default 50ms
	FFTSize   int           // power of two, default 256
	Smoothing float64       // per-bin smoothing constant, default 0.8
	Log       logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 50 * time.Millisecond
	}
	if o.FFTSize <= 0 {
		o.FFTSize = 256
	}
	if o.Smoothing < 0 || o.Smoothing >= 1 {
		o.Smoothing = 0.8
	}
	if o.Log == nil {
		o.Log = logger.Global().Module("meter")
	}
	return o
}

// Analyzer meters one stream at a time.
type Analyzer struct {
	opts Options

	mu      sync.Mutex
	current *Subscription
}

// New returns an analyzer.
func New(opts Options) *Analyzer {
	return &Analyzer{opts: opts.withDefaults()}
}

// Attach starts metering stream and returns its subscription. A previous
// subscription is detached first. A nil stream or one without audio yields
// an inert subscription.
func (a *Analyzer) Attach(stream capture.MediaStreamHandle) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		a.current.Detach()
		a.current = nil
	}

	if stream == nil {
		return inertSubscription()
	}
	format, ok := stream.AudioFormat()
	if !ok || format.Channels <= 0 || format.SampleRate <= 0 {
		return inertSubscription()
	}

	sub := newSubscription(stream, format, a.opts)
	a.current = sub
	return sub
}

// Detach stops the current subscription. It is idempotent.
func (a *Analyzer) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		a.current.Detach()
		a.current = nil
	}
}

// Subscription delivers level samples in [0,1]. The channel holds only the
// newest sample and is closed on Detach or when the stream ends.
type Subscription struct {
	levels chan float64
	latest atomic.Uint64

	stop       chan struct{}
	done       chan struct{}
	detachOnce sync.Once
	removeSink func()

	ringMu sync.Mutex
	ring   *ringbuffer.RingBuffer
}

func inertSubscription() *Subscription {
	s := &Subscription{
		levels: make(chan float64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	close(s.levels)
	close(s.done)
	s.detachOnce.Do(func() { close(s.stop) })
	return s
}

func newSubscription(stream capture.MediaStreamHandle, format capture.AudioFormat, opts Options) *Subscription {
	frameBytes := 2 * format.Channels
	perTick := int(float64(format.SampleRate)*opts.Interval.Seconds()) * frameBytes
	capacity := max(2*perTick, opts.FFTSize*frameBytes)

	s := &Subscription{
		levels: make(chan float64, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		ring:   ringbuffer.New(capacity),
	}
	s.removeSink = stream.AddSink(s.write)

	go s.run(stream.Ended(), format, opts)
	return s
}

// write runs on the device callback; when full the oldest PCM is discarded.
func (s *Subscription) write(pcm []byte) {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()

	capacity := s.ring.Capacity()
	if len(pcm) > capacity {
		pcm = pcm[len(pcm)-capacity:]
	}
	if need := len(pcm) - s.ring.Free(); need > 0 {
		discard := make([]byte, need)
		_, _ = s.ring.Read(discard)
	}
	_, _ = s.ring.Write(pcm)
}

func (s *Subscription) drain(buf []byte) []byte {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	n := s.ring.Length()
	if n == 0 {
		return buf[:0]
	}
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	read, _ := s.ring.Read(buf)
	return buf[:read]
}

func (s *Subscription) run(ended <-chan struct{}, format capture.AudioFormat, opts Options) {
	defer close(s.done)
	defer close(s.levels)

	spec := newSpectrum(opts.FFTSize, opts.Smoothing)
	window := make([]float64, opts.FFTSize)
	frameBytes := 2 * format.Channels
	var raw []byte
	var carry []byte

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ended:
			opts.Log.Debug("stream ended, meter stopping")
			s.removeSink()
			return
		case <-ticker.C:
			raw = s.drain(raw)
			data := raw
			if len(carry) > 0 {
				data = append(carry, raw...)
				carry = nil
			}
			frames := len(data) / frameBytes
			if rem := len(data) % frameBytes; rem > 0 {
				carry = append([]byte(nil), data[len(data)-rem:]...)
			}
			pushFrames(window, data[:frames*frameBytes], format.Channels)
			s.publish(spec.level(window))
		}
	}
}

// pushFrames shifts mono-downmixed frames into the tail of window.
func pushFrames(window []float64, pcm []byte, channels int) {
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	if frames == 0 {
		return
	}
	if frames > len(window) {
		pcm = pcm[(frames-len(window))*frameBytes:]
		frames = len(window)
	}
	copy(window, window[frames:])
	base := len(window) - frames
	for f := range frames {
		var sum float64
		for c := range channels {
			off := f*frameBytes + 2*c
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		window[base+f] = sum / float64(channels) / 32768
	}
}

func (s *Subscription) publish(level float64) {
	s.latest.Store(math.Float64bits(level))
	select {
	case s.levels <- level:
		return
	default:
	}
	// Replace the unread sample rather than queueing behind it.
	select {
	case <-s.levels:
	default:
	}
	select {
	case s.levels <- level:
	default:
	}
}

// Levels returns the sample channel.
func (s *Subscription) Levels() <-chan float64 { return s.levels }

// Latest returns the most recent sample, 0 before the first.
func (s *Subscription) Latest() float64 { return math.Float64frombits(s.latest.Load()) }

// Done is closed once the sampling loop has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Detach stops sampling and removes the stream tap. It is idempotent and
// waits for the loop to exit.
func (s *Subscription) Detach() {
	s.detachOnce.Do(func() {
		close(s.stop)
		if s.removeSink != nil {
			s.removeSink()
		}
	})
	<-s.done
}
