package encoder

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/capture/capturetest"
	"github.com/radiorec/radiorec/internal/logger"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func pcmRamp(samples int) []byte {
	out := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(i*10))) //nolint:gosec // test ramp
	}
	return out
}

func TestFFmpegArgs(t *testing.T) {
	format := capture.AudioFormat{SampleRate: 48000, Channels: 2}

	args, err := ffmpegArgs(format, capture.EncoderOptions{Container: "webm", Bitrate: 64000})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", "48000", "-ac", "2", "-i", "pipe:0",
		"-c:a", "libopus", "-b:a", "64k", "-cluster_time_limit", "1000",
		"-f", "webm", "pipe:1",
	}, args)

	args, err = ffmpegArgs(format, capture.EncoderOptions{Container: "flac", Bitrate: 128000})
	require.NoError(t, err)
	assert.NotContains(t, args, "-b:a")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	args, err = ffmpegArgs(format, capture.EncoderOptions{Container: "mp3", Bitrate: 32000})
	require.NoError(t, err)
	assert.Contains(t, args, "libmp3lame")
	assert.Contains(t, args, "32k")

	_, err = ffmpegArgs(format, capture.EncoderOptions{Container: "aiff"})
	require.Error(t, err)
}

func TestEncodeWAVProducesReadableFile(t *testing.T) {
	format := capture.AudioFormat{SampleRate: 16000, Channels: 1}
	data, err := EncodeWAV(pcmRamp(1600), format)
	require.NoError(t, err)

	dec := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 16000, int(dec.SampleRate))
	assert.Equal(t, 1, int(dec.NumChans))
	assert.Len(t, buf.Data, 1600)
	assert.Equal(t, 90, buf.Data[9])
}

func TestWAVRecorderEmitsSingleChunkOnStop(t *testing.T) {
	enc := New("", quietLogger())
	stream := capturetest.NewStream(false)
	defer stream.Release()

	rec, err := enc.Open(stream, capture.EncoderOptions{Container: "wav", MediaType: capture.MediaAudio})
	require.NoError(t, err)

	stream.Publish(pcmRamp(100))
	stream.Publish(pcmRamp(100))
	rec.Stop()
	rec.Stop()

	var chunks [][]byte
	for c := range rec.Chunks() {
		chunks = append(chunks, c)
	}
	require.NoError(t, rec.Err())
	require.Len(t, chunks, 1)
	assert.Equal(t, "RIFF", string(chunks[0][:4]))
	assert.Equal(t, 44+400, len(chunks[0]))
	assert.Equal(t, 0, stream.SinkCount())
}

func TestWAVRecorderFinishesWhenStreamEnds(t *testing.T) {
	enc := New("", quietLogger())
	stream := capturetest.NewStream(false)

	rec, err := enc.Open(stream, capture.EncoderOptions{Container: "wav"})
	require.NoError(t, err)
	stream.Publish(pcmRamp(10))
	stream.Release()

	var total int
	for c := range rec.Chunks() {
		total += len(c)
	}
	assert.Equal(t, 44+20, total)
}

func TestWAVRecorderWithoutDataEmitsNothing(t *testing.T) {
	enc := New("", quietLogger())
	stream := capturetest.NewStream(false)
	defer stream.Release()

	rec, err := enc.Open(stream, capture.EncoderOptions{Container: "wav"})
	require.NoError(t, err)
	rec.Stop()

	_, ok := <-rec.Chunks()
	assert.False(t, ok)
}

func TestVideoArgs(t *testing.T) {
	format := capture.AudioFormat{SampleRate: 48000, Channels: 1}
	camera := capture.VideoInput{Format: "v4l2", Device: "/dev/video0", FacingMode: "user"}

	args, err := videoArgs(format, camera, capture.EncoderOptions{Container: "webm", Bitrate: 64000, MediaType: capture.MediaVideo})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-thread_queue_size", "512",
		"-f", "s16le", "-ar", "48000", "-ac", "1", "-i", "pipe:0",
		"-thread_queue_size", "512",
		"-f", "v4l2", "-i", "/dev/video0",
		"-map", "1:v:0", "-map", "0:a:0",
		"-c:v", "libvpx", "-deadline", "realtime", "-cpu-used", "8",
		"-pix_fmt", "yuv420p", "-b:v", "2500k",
		"-c:a", "libopus", "-b:a", "64k",
		"-shortest", "-cluster_time_limit", "1000", "-f", "webm", "pipe:1",
	}, args)

	args, err = videoArgs(format, capture.VideoInput{Format: "avfoundation", Device: "0"}, capture.EncoderOptions{Container: "webm"})
	require.NoError(t, err)
	assert.Subset(t, args, []string{"-framerate", "30", "avfoundation"})
	assert.NotContains(t, args, "-b:a")

	_, err = videoArgs(format, camera, capture.EncoderOptions{Container: "mp3"})
	require.Error(t, err)
}

func TestOpenVideoNeedsCamera(t *testing.T) {
	enc := New("/nonexistent/ffmpeg-radiorec", quietLogger())

	audioOnly := capturetest.NewStream(false)
	defer audioOnly.Release()
	_, err := enc.Open(audioOnly, capture.EncoderOptions{Container: "webm", MediaType: capture.MediaVideo})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no camera track")

	camera, ok := capturetest.NewStream(true).VideoInput()
	require.True(t, ok)
	assert.Equal(t, capturetest.TestCamera, camera)
}

func TestOpenMissingFFmpeg(t *testing.T) {
	stream := capturetest.NewStream(true)
	defer stream.Release()

	t.Setenv("PATH", t.TempDir())
	enc := New("/nonexistent/ffmpeg-radiorec", quietLogger())
	_, err := enc.Open(stream, capture.EncoderOptions{Container: "webm", MediaType: capture.MediaVideo})
	require.Error(t, err)
	_, err = enc.Open(stream, capture.EncoderOptions{Container: "webm", MediaType: capture.MediaAudio})
	require.Error(t, err)
}
