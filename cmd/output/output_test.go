package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/upload"
)

func TestUploadText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := NewFormatter(&buf, false)

	require.NoError(t, f.Upload(upload.Outcome{ID: 12}))
	require.NoError(t, f.Upload(upload.Outcome{
		Failure: capture.NewFailure(capture.KindUploadTransportFailure, "file too large", nil),
	}))

	out := buf.String()
	assert.Contains(t, out, "Uploaded recording 12")
	assert.Contains(t, out, "file too large")
}

func TestUploadJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := NewFormatter(&buf, true)
	require.NoError(t, f.Upload(upload.Outcome{
		Failure: capture.NewFailure(capture.KindUploadTransportFailure, "file too large", nil),
	}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, false, got["ok"])
	assert.Contains(t, got["error"], "file too large")
}

func TestRecordingsTable(t *testing.T) {
	t.Parallel()

	dur := 95.0
	page := &backend.Page[backend.Recording]{
		Count: 2,
		Next:  "http://backend/api/recordings/?page=2",
		Results: []backend.Recording{
			{ID: 1, Title: "Matinale", Type: "emission", Format: "mp3", DurationSeconds: &dur, CreatedAt: time.Now(), Flagged: true},
			{ID: 2, Title: "Antenne", Type: "antenne", Format: "webm", IsExpired: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, false).Recordings(page))

	out := buf.String()
	assert.Contains(t, out, "Matinale")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "flagged")
	assert.Contains(t, out, "expired")
	assert.Contains(t, out, "more pages available")
}

func TestStats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := &backend.Stats{Total: 5, Flagged: 1, ByType: map[string]int{"antenne": 3, "reunion": 2}, TotalDurationSeconds: 3600}
	require.NoError(t, NewFormatter(&buf, false).Stats(s))

	out := buf.String()
	assert.Contains(t, out, "Total:")
	assert.Contains(t, out, "emission:")
	assert.Contains(t, out, "1h0m0s")
}

func TestSpinner(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewSpinner(&buf, "Uploading")
	for range len(s.frames) + 1 {
		s.Update()
	}
	assert.Equal(t, 1, s.index)
	assert.Contains(t, buf.String(), "⣀⣀ Uploading")

	s.Cleanup()
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\033[?25h")))
}
