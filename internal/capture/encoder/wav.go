package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/logger"
)

const wavBitDepth = 16

// wavRecorder buffers PCM and emits the complete WAV file as one chunk when
// stopped, since the RIFF header needs the final length.
type wavRecorder struct {
	format     capture.AudioFormat
	chunks     chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
	removeSink func()
	log        logger.Logger

	mu  sync.Mutex
	pcm bytes.Buffer
	err error
}

func newWAVRecorder(stream capture.MediaStreamHandle, format capture.AudioFormat, log logger.Logger) *wavRecorder {
	r := &wavRecorder{
		format: format,
		chunks: make(chan []byte, 1),
		stop:   make(chan struct{}),
		log:    log,
	}
	r.removeSink = stream.AddSink(func(pcm []byte) {
		r.mu.Lock()
		r.pcm.Write(pcm)
		r.mu.Unlock()
	})
	go r.wait(stream.Ended())
	return r
}

func (r *wavRecorder) Chunks() <-chan []byte { return r.chunks }

func (r *wavRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *wavRecorder) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *wavRecorder) wait(ended <-chan struct{}) {
	defer close(r.chunks)

	select {
	case <-r.stop:
	case <-ended:
	}
	r.removeSink()

	r.mu.Lock()
	pcm := r.pcm.Bytes()
	r.mu.Unlock()

	if len(pcm) == 0 {
		return
	}
	data, err := EncodeWAV(pcm, r.format)
	if err != nil {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		return
	}
	r.log.Debug("wav encoded", logger.Int("bytes", len(data)))
	r.chunks <- data
}

// EncodeWAV wraps interleaved s16le PCM in a WAV container.
func EncodeWAV(pcm []byte, format capture.AudioFormat) ([]byte, error) {
	out := &seekableBuffer{}
	enc := wav.NewEncoder(out, format.SampleRate, wavBitDepth, format.Channels, 1)

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return out.buf, nil
}

// seekableBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch the header sizes.
type seekableBuffer struct {
	buf []byte
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		s.buf = append(s.buf, make([]byte, end-int64(len(s.buf)))...)
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	s.pos = abs
	return abs, nil
}
