package capture_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/capture/capturetest"
)

func TestRenderName(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 5, 7, 8, 9, 0, time.UTC)
	tests := []struct {
		template string
		want     string
	}{
		{"Enregistrement {type} - {jour}/{mois}/{annee} {heure}:{minutes}:{secondes}", "Enregistrement emission - 05/01/2026 07:08:09"},
		{"{type}_{date}_{time}", "emission_2026-01-05_07-08-09"},
		{"{timestamp}", fmt.Sprint(at.Unix())},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, capture.RenderName(tt.template, "emission", at), tt.template)
	}
}

func TestMIMETypes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio/webm", capture.MIMEType(capture.MediaAudio, "webm"))
	assert.Equal(t, "audio/ogg", capture.MIMEType(capture.MediaAudio, "ogg"))
	assert.Equal(t, "audio/mpeg", capture.MIMEType(capture.MediaAudio, "mp3"))
	assert.Equal(t, "video/webm", capture.MIMEType(capture.MediaVideo, "webm"))

	mime, format, ok := capture.MIMETypeForFile("/tmp/Interview.M4A")
	require.True(t, ok)
	assert.Equal(t, "audio/mp4", mime)
	assert.Equal(t, "m4a", format)

	_, _, ok = capture.MIMETypeForFile("notes.txt")
	assert.False(t, ok)
}

func TestBitrateTiers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 128000, capture.TierHigh.Bitrate())
	assert.Equal(t, 64000, capture.TierMedium.Bitrate())
	assert.Equal(t, 32000, capture.TierLow.Bitrate())
	assert.Zero(t, capture.BitrateTier("ultra").Bitrate())
}

func TestRetainedUntil(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	assert.Nil(t, capture.RetainedUntil(now, 0))
	got := capture.RetainedUntil(now, 30)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), *got)
}

func TestDescriptorWithMetadataDoesNotMutate(t *testing.T) {
	t.Parallel()

	retain := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	d := capture.NewDescriptor([]byte("abc"), "a.webm", "audio/webm",
		capture.Metadata{Title: "one", Type: "antenne", RetainedUntil: &retain})

	d2 := d.WithMetadata(capture.Metadata{Title: "two", Type: "reunion"})
	assert.Equal(t, "one", d.Metadata().Title)
	assert.Equal(t, "two", d2.Metadata().Title)
	assert.Equal(t, d.Payload(), d2.Payload())

	m := d.Metadata()
	*m.RetainedUntil = time.Time{}
	assert.Equal(t, retain, *d.Metadata().RetainedUntil)
}

func TestFailure(t *testing.T) {
	t.Parallel()

	f := capture.NewFailure(capture.KindUploadTransportFailure, "file too large", nil)
	assert.ErrorIs(t, f, capture.KindUploadTransportFailure)
	assert.NotErrorIs(t, f, capture.KindCancelled)
	assert.Equal(t, "UploadTransportFailure: file too large", f.Error())
	assert.Contains(t, f.Message(), "file too large")

	wrapped := fmt.Errorf("send: %w", f)
	got, ok := capture.AsFailure(wrapped)
	require.True(t, ok)
	assert.Same(t, f, got)
}

func TestStreamFanOutAndRelease(t *testing.T) {
	t.Parallel()

	s := capturetest.NewStream(true)
	var a, b int
	removeA := s.AddSink(func(pcm []byte) { a += len(pcm) })
	s.AddSink(func(pcm []byte) { b += len(pcm) })

	s.Publish([]byte{1, 2})
	removeA()
	removeA()
	s.Publish([]byte{3, 4, 5})

	assert.Equal(t, 2, a)
	assert.Equal(t, 5, b)
	assert.Len(t, s.Tracks(), 2)
	assert.False(t, capture.AllTracksStopped(s))

	s.Release()
	s.Release()
	assert.True(t, capture.AllTracksStopped(s))
	assert.Zero(t, s.SinkCount())
	select {
	case <-s.Ended():
	default:
		t.Fatal("released stream must be ended")
	}
	s.Publish([]byte{6})
	assert.Equal(t, 5, b)
}
