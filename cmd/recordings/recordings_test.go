package recordings

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/buildinfo"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/errors"
)

func testContext(url string) *app.Context {
	ctx := app.NewContext(&buildinfo.Context{Version: "test"})
	ctx.Settings = &conf.Settings{
		Backend: conf.BackendSettings{URL: url, Timeout: 5 * time.Second},
		Upload:  conf.UploadSettings{Timeout: 5 * time.Second},
	}
	return ctx
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseID(t *testing.T) {
	t.Parallel()

	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := parseID(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}
}

func TestTrimRejectsInvalidWindowWithoutRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	_, err := execute(t, TrimCommand(testContext(srv.URL)), "7", "30", "10")
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.KindValidationFailure)
	assert.Zero(t, hits.Load())

	_, err = execute(t, TrimCommand(testContext(srv.URL)), "7", "start", "10")
	require.Error(t, err)
	assert.Zero(t, hits.Load())
}

func TestTrimChecksDuration(t *testing.T) {
	t.Parallel()

	var trims atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/recordings/7/":
			_, _ = w.Write([]byte(`{"id":7,"title":"t","duration_seconds":60}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/recordings/7/trim/":
			trims.Add(1)
			var body map[string]float64
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": "ok", "recording_id": 7, "start_time": body["start_time"], "end_time": body["end_time"],
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	_, err := execute(t, TrimCommand(testContext(srv.URL)), "7", "10", "90")
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.KindValidationFailure)
	assert.Zero(t, trims.Load())

	out, err := execute(t, TrimCommand(testContext(srv.URL)), "7", "10", "50")
	require.NoError(t, err)
	assert.Equal(t, int32(1), trims.Load())
	assert.Contains(t, out, "10.00s-50.00s")
}

func TestDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/recordings/5/download/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Disposition", `attachment; filename="matinale.mp3"`)
		_, _ = w.Write([]byte("mp3 bytes"))
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "copy.mp3")
	out, err := execute(t, Command(testContext(srv.URL)), "download", "5", "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "9 bytes")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "mp3 bytes", string(data))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dest), ".radiorec-download-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStatsJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total":4,"flagged":0,"by_type":{"antenne":4},"total_duration_seconds":120}`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, StatsCommand(testContext(srv.URL)), "--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.EqualValues(t, 4, got["total"])
}
