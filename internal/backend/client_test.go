package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/httpclient"
)

const testBase = "http://backend.test"

func newMockClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	hc := httpclient.New(&httpclient.Config{Transport: mock})
	c, err := NewClient(Config{BaseURL: testBase + "/", Token: "tok"}, hc)
	require.NoError(t, err)
	return c, mock
}

func TestNewClientRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, nil)
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "not a url"}, nil)
	require.Error(t, err)
}

func TestURL(t *testing.T) {
	t.Parallel()

	c, _ := newMockClient(t)
	assert.Equal(t, testBase+"/api/recordings/12/", c.URL("recordings/12/"))
	assert.Equal(t, testBase+"/api/recordings/?page=2", c.URL("recordings/?page=2"))
}

func TestGetRecordingSendsBearer(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodGet, testBase+"/api/recordings/7/",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusOK,
				`{"id":7,"title":"Matinale","type":"emission","format":"webm","duration_seconds":12.5,"created_at":"2026-01-02T10:00:00Z","flagged":true}`), nil
		})

	rec, err := c.GetRecording(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, "emission", rec.Type)
	assert.True(t, rec.Flagged)

	d, ok := rec.Duration()
	require.True(t, ok)
	assert.InDelta(t, 12.5, d.Seconds(), 1e-9)
}

func TestListRecordingsPaginatedAndBare(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodGet, testBase+"/api/recordings/",
		httpmock.NewStringResponder(http.StatusOK, `{"count":3,"next":"x","results":[{"id":1},{"id":2}]}`))

	page, err := c.ListRecordings(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	require.Len(t, page.Results, 2)
	assert.Equal(t, int64(2), page.Results[1].ID)

	c2, mock2 := newMockClient(t)
	mock2.RegisterResponderWithQuery(http.MethodGet, testBase+"/api/recordings/", "page=2",
		httpmock.NewStringResponder(http.StatusOK, `[{"id":9}]`))

	page, err = c2.ListRecordings(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, int64(9), page.Results[0].ID)
}

func TestTrimErrorCarriesDetail(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/api/recordings/3/trim/",
		func(req *http.Request) (*http.Response, error) {
			var body map[string]float64
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.InDelta(t, 1.0, body["start_time"], 1e-9)
			assert.InDelta(t, 99.0, body["end_time"], 1e-9)
			return httpmock.NewStringResponse(http.StatusBadRequest,
				`{"error":"end_time dépasse la durée de l'enregistrement"}`), nil
		})

	_, err := c.Trim(context.Background(), 3, 1, 99)
	require.Error(t, err)
	assert.Equal(t, "end_time dépasse la durée de l'enregistrement", DetailOf(err))
	assert.False(t, IsNotFound(err))
}

func TestTrimSuccess(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/api/recordings/3/trim/",
		httpmock.NewStringResponder(http.StatusOK, `{"message":"ok","recording_id":3,"start_time":1,"end_time":2}`))

	res, err := c.Trim(context.Background(), 3, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RecordingID)
	assert.InDelta(t, 2.0, res.EndTime, 1e-9)
}

func TestProcessAndDelete(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/api/recordings/4/process/",
		httpmock.NewStringResponder(http.StatusOK, `{"message":"queued","recording_id":4}`))
	mock.RegisterResponder(http.MethodDelete, testBase+"/api/recordings/4/",
		httpmock.NewStringResponder(http.StatusNoContent, ""))
	mock.RegisterResponder(http.MethodDelete, testBase+"/api/recordings/5/",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"Not found."}`))

	res, err := c.Process(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "queued", res.Message)

	require.NoError(t, c.DeleteRecording(context.Background(), 4))

	err = c.DeleteRecording(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Not found.", DetailOf(err))
}

func TestDownload(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodGet, testBase+"/api/recordings/8/download/",
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewBytesResponse(http.StatusOK, []byte("RIFFdata"))
			resp.Header.Set("Content-Disposition", `attachment; filename="antenne-1.wav"`)
			return resp, nil
		})

	var buf bytes.Buffer
	name, n, err := c.Download(context.Background(), 8, &buf)
	require.NoError(t, err)
	assert.Equal(t, "antenne-1.wav", name)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "RIFFdata", buf.String())
}

func TestStatsCached(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodGet, testBase+"/api/recordings/stats/",
		httpmock.NewStringResponder(http.StatusOK,
			`{"total":5,"flagged":1,"by_type":{"antenne":3,"emission":2,"reunion":0},"total_duration_seconds":600}`))

	for range 3 {
		s, err := c.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, s.Total)
		assert.Equal(t, 3, s.ByType[TypeAntenne])
	}
	assert.Equal(t, 1, mock.GetTotalCallCount())

	c.InvalidateCache()
	_, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, mock.GetTotalCallCount())
}

func TestGetSettingsShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		wantID int64
		format string
	}{
		{"object", `{"id":2,"default_format":"wav","vad_sensitivity":1}`, 2, "wav"},
		{"list", `[{"id":3,"default_format":"ogg"}]`, 3, "ogg"},
		{"paginated", `{"count":1,"results":[{"id":4,"default_format":"flac"}]}`, 4, "flac"},
		{"empty list", `[]`, 0, "mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, mock := newMockClient(t)
			mock.RegisterResponder(http.MethodGet, testBase+"/api/settings/",
				httpmock.NewStringResponder(http.StatusOK, tt.body))

			s, err := c.GetSettings(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, s.ID)
			assert.Equal(t, tt.format, s.DefaultFormat)
		})
	}
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodGet, testBase+"/api/settings/",
		httpmock.NewStringResponder(http.StatusOK, `{"id":2,"default_format":"mp3"}`))
	mock.RegisterResponder(http.MethodPut, testBase+"/api/settings/2/",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			assert.Contains(t, string(body), `"default_format":"flac"`)
			return httpmock.NewStringResponse(http.StatusOK, `{"id":2,"default_format":"flac"}`), nil
		})

	s, err := c.GetSettings(context.Background())
	require.NoError(t, err)

	s.DefaultFormat = "flac"
	updated, err := c.UpdateSettings(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "flac", updated.DefaultFormat)

	// served from the refreshed cache
	again, err := c.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flac", again.DefaultFormat)
	assert.Equal(t, 1, mock.GetCallCountInfo()["GET "+testBase+"/api/settings/"])
}

func TestUpdateSettingsCreatesWhenNoID(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/api/settings/",
		httpmock.NewStringResponder(http.StatusCreated, `{"id":11,"default_format":"mp3"}`))

	s := DefaultSettings()
	out, err := c.UpdateSettings(context.Background(), &s)
	require.NoError(t, err)
	assert.Equal(t, int64(11), out.ID)
}

func TestUpdateSettingsValidatesLocally(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)

	s := DefaultSettings()
	s.ID = 2
	s.VADSensitivity = 7
	_, err := c.UpdateSettings(context.Background(), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vad_sensitivity")
	assert.Zero(t, mock.GetTotalCallCount())
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	require.NoError(t, s.Validate())

	bad := s
	bad.DefaultFormat = "aac"
	bad.DefaultChannels = 3
	bad.EmailAlertsEnabled = true
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"default_format", "default_channels", "email_host"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseErrorDetail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"file too large"}`, "file too large"},
		{"error", `{"error":"Fichier introuvable"}`, "Fichier introuvable"},
		{"fields", `{"title":["required"],"file":["Format non autorisé"]}`, "file: Format non autorisé; title: required"},
		{"non field", `{"non_field_errors":["start_time doit être inférieur à end_time"]}`, "start_time doit être inférieur à end_time"},
		{"list", `["a","b"]`, "a, b"},
		{"plain text", "file too large\n", "file too large"},
		{"html", "<html>502</html>", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseErrorDetail([]byte(tt.body)))
		})
	}
}
