// Package encoder turns a live PCM stream into encoded chunks, either by
// piping it through ffmpeg or by writing WAV natively.
package encoder

import (
	"fmt"
	"sync"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
)

const (
	// chunkSize bounds a single stdout read from ffmpeg.
	chunkSize = 32 * 1024
	// pcmQueueSize is the number of device callbacks buffered ahead of ffmpeg.
	pcmQueueSize = 256
	// videoBitrate matches what browsers pick for a 720p MediaRecorder.
	videoBitrate = "2500k"
)

// Encoder implements capture.Encoder.
type Encoder struct {
	ffmpegPath string
	log        logger.Logger

	resolveOnce sync.Once
	resolved    string
	resolveErr  error
}

// New returns an encoder. An empty ffmpegPath is resolved from PATH on
// first use; WAV recording works without ffmpeg.
func New(ffmpegPath string, log logger.Logger) *Encoder {
	if log == nil {
		log = logger.Global().Module("capture.encoder")
	}
	return &Encoder{ffmpegPath: ffmpegPath, log: log}
}

func (e *Encoder) ffmpeg() (string, error) {
	e.resolveOnce.Do(func() {
		e.resolved, e.resolveErr = conf.ValidateToolPath(e.ffmpegPath, conf.GetFfmpegBinaryName())
	})
	return e.resolved, e.resolveErr
}

// Open starts a recorder for stream.
func (e *Encoder) Open(stream capture.MediaStreamHandle, opts capture.EncoderOptions) (capture.Recorder, error) {
	format, ok := stream.AudioFormat()
	if !ok {
		return nil, errors.Newf("stream %s has no audio track", stream.ID()).
			Component("capture.encoder").
			Category(errors.CategoryEncoder).
			Build()
	}

	var args []string
	switch {
	case opts.MediaType == capture.MediaVideo:
		camera, ok := cameraOf(stream)
		if !ok {
			return nil, errors.Newf("stream %s has no camera track", stream.ID()).
				Component("capture.encoder").
				Category(errors.CategoryEncoder).
				Build()
		}
		var err error
		if args, err = videoArgs(format, camera, opts); err != nil {
			return nil, err
		}
	case opts.Container == "wav":
		return newWAVRecorder(stream, format, e.log), nil
	default:
		var err error
		if args, err = ffmpegArgs(format, opts); err != nil {
			return nil, err
		}
	}
	path, err := e.ffmpeg()
	if err != nil {
		return nil, errors.New(err).
			Component("capture.encoder").
			Category(errors.CategoryEncoder).
			Context("container", opts.Container).
			Build()
	}
	return startFFmpeg(path, args, stream, e.log)
}

func cameraOf(stream capture.MediaStreamHandle) (capture.VideoInput, bool) {
	vs, ok := stream.(capture.VideoSource)
	if !ok {
		return capture.VideoInput{}, false
	}
	return vs.VideoInput()
}

// codecFor returns the ffmpeg codec and muxer for a container.
func codecFor(container string) (codec, muxer string, err error) {
	switch container {
	case "webm":
		return "libopus", "webm", nil
	case "ogg":
		return "libopus", "ogg", nil
	case "mp3":
		return "libmp3lame", "mp3", nil
	case "flac":
		return "flac", "flac", nil
	default:
		return "", "", fmt.Errorf("unsupported container %q", container)
	}
}

// ffmpegArgs reads s16le PCM from stdin and writes the container to stdout.
func ffmpegArgs(format capture.AudioFormat, opts capture.EncoderOptions) ([]string, error) {
	codec, muxer, err := codecFor(opts.Container)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprint(format.SampleRate),
		"-ac", fmt.Sprint(format.Channels),
		"-i", "pipe:0",
		"-c:a", codec,
	}
	// FLAC is lossless, the tier does not apply.
	if codec != "flac" && opts.Bitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", opts.Bitrate/1000))
	}
	if muxer == "webm" {
		args = append(args, "-cluster_time_limit", "1000")
	}
	return append(args, "-f", muxer, "pipe:1"), nil
}

// videoArgs muxes stdin PCM with the camera into VP8/Opus WebM. -shortest
// ends the output once stdin is closed on stop.
func videoArgs(format capture.AudioFormat, camera capture.VideoInput, opts capture.EncoderOptions) ([]string, error) {
	if opts.Container != "webm" {
		return nil, fmt.Errorf("video requires the webm container, got %q", opts.Container)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-thread_queue_size", "512",
		"-f", "s16le",
		"-ar", fmt.Sprint(format.SampleRate),
		"-ac", fmt.Sprint(format.Channels),
		"-i", "pipe:0",
		"-thread_queue_size", "512",
	}
	if camera.Format == "avfoundation" {
		args = append(args, "-framerate", "30")
	}
	args = append(args,
		"-f", camera.Format,
		"-i", camera.Device,
		"-map", "1:v:0", "-map", "0:a:0",
		"-c:v", "libvpx", "-deadline", "realtime", "-cpu-used", "8",
		"-pix_fmt", "yuv420p", "-b:v", videoBitrate,
		"-c:a", "libopus",
	)
	if opts.Bitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", opts.Bitrate/1000))
	}
	return append(args, "-shortest", "-cluster_time_limit", "1000", "-f", "webm", "pipe:1"), nil
}
