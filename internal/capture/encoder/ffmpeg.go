package encoder

import (
	"bytes"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
)

// ffmpegRecorder feeds PCM to ffmpeg's stdin and turns every stdout read
// into a chunk.
type ffmpegRecorder struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     io.ReadCloser
	stderr     bytes.Buffer
	pcm        chan []byte
	chunks     chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
	removeSink func()
	ended      <-chan struct{}
	dropped    atomic.Int64
	log        logger.Logger

	mu  sync.Mutex
	err error
}

func startFFmpeg(path string, args []string, stream capture.MediaStreamHandle, log logger.Logger) (*ffmpegRecorder, error) {
	cmd := exec.Command(path, args...) //nolint:gosec // path is validated, args are built locally
	r := &ffmpegRecorder{
		cmd:    cmd,
		pcm:    make(chan []byte, pcmQueueSize),
		chunks: make(chan []byte, 16),
		stop:   make(chan struct{}),
		ended:  stream.Ended(),
		log:    log,
	}
	cmd.Stderr = &r.stderr

	var err error
	if r.stdin, err = cmd.StdinPipe(); err != nil {
		return nil, err
	}
	if r.stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.New(err).
			Component("capture.encoder").
			Category(errors.CategoryEncoder).
			Context("operation", "start-ffmpeg").
			Build()
	}
	log.Debug("ffmpeg started", logger.Int("pid", cmd.Process.Pid))

	r.removeSink = stream.AddSink(func(pcm []byte) {
		buf := make([]byte, len(pcm))
		copy(buf, pcm)
		select {
		case r.pcm <- buf:
		default:
			r.dropped.Add(1)
		}
	})

	go r.writeLoop()
	go r.readLoop()
	return r, nil
}

func (r *ffmpegRecorder) Chunks() <-chan []byte { return r.chunks }

func (r *ffmpegRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop detaches from the stream and closes stdin so ffmpeg flushes.
func (r *ffmpegRecorder) Stop() {
	r.stopOnce.Do(func() {
		r.removeSink()
		close(r.stop)
	})
}

func (r *ffmpegRecorder) writeLoop() {
	defer func() { _ = r.stdin.Close() }()
	for {
		select {
		case buf := <-r.pcm:
			if _, err := r.stdin.Write(buf); err != nil {
				r.log.Warn("ffmpeg stdin write failed", logger.Error(err))
				r.removeSink()
				return
			}
		case <-r.stop:
			r.flushPending()
			return
		case <-r.ended:
			// Device gone: finish what was captured.
			r.removeSink()
			r.flushPending()
			return
		}
	}
}

func (r *ffmpegRecorder) flushPending() {
	for {
		select {
		case buf := <-r.pcm:
			if _, err := r.stdin.Write(buf); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (r *ffmpegRecorder) readLoop() {
	defer close(r.chunks)

	buf := make([]byte, chunkSize)
	for {
		n, err := r.stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.chunks <- chunk
		}
		if err != nil {
			break
		}
	}

	waitErr := r.cmd.Wait()
	if dropped := r.dropped.Load(); dropped > 0 {
		r.log.Warn("PCM buffers dropped, ffmpeg could not keep up", logger.Int64("dropped", dropped))
	}
	if waitErr != nil {
		r.mu.Lock()
		r.err = errors.New(waitErr).
			Component("capture.encoder").
			Category(errors.CategoryEncoder).
			Context("stderr", r.stderr.String()).
			Build()
		r.mu.Unlock()
	}
}
