package controller

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/capture/capturetest"
	"github.com/radiorec/radiorec/internal/httpclient"
	"github.com/radiorec/radiorec/internal/meter"
	"github.com/radiorec/radiorec/internal/testutil"
	"github.com/radiorec/radiorec/internal/upload"
)

const testBase = "http://backend.test"

var fixedNow = time.Date(2026, 10, 17, 9, 5, 3, 0, time.UTC)

func clock() time.Time { return fixedNow }

// fakeUploader records descriptors and answers from a script.
type fakeUploader struct {
	mu      sync.Mutex
	sent    []*capture.Descriptor
	results []upload.Outcome
	block   chan struct{}
	entered chan struct{}
}

func (u *fakeUploader) Send(_ context.Context, d *capture.Descriptor) (upload.Outcome, error) {
	u.mu.Lock()
	u.sent = append(u.sent, d)
	var out upload.Outcome
	if len(u.results) > 0 {
		out = u.results[0]
		u.results = u.results[1:]
	} else {
		out = upload.Outcome{ID: int64(len(u.sent))}
	}
	block, entered := u.block, u.entered
	u.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return out, nil
}

func (u *fakeUploader) Sent() []*capture.Descriptor {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*capture.Descriptor(nil), u.sent...)
}

type fakeTrimmer struct {
	calls atomic.Int32
	err   error
}

func (t *fakeTrimmer) Trim(_ context.Context, id int64, start, end float64) (*backend.TrimResult, error) {
	t.calls.Add(1)
	if t.err != nil {
		return nil, t.err
	}
	return &backend.TrimResult{RecordingID: id, StartTime: start, EndTime: end}, nil
}

type levelRecorder struct {
	mu     sync.Mutex
	levels []float64
}

func (r *levelRecorder) SetLevel(l float64) {
	r.mu.Lock()
	r.levels = append(r.levels, l)
	r.mu.Unlock()
}

func (r *levelRecorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.levels...)
}

type fixture struct {
	acq  *capturetest.Acquirer
	enc  *capturetest.Encoder
	up   *fakeUploader
	trim *fakeTrimmer
	view *levelRecorder
	ctl  *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		acq:  &capturetest.Acquirer{},
		enc:  &capturetest.Encoder{},
		up:   &fakeUploader{},
		trim: &fakeTrimmer{},
		view: &levelRecorder{},
	}
	base := []Option{
		WithClock(clock),
		WithSessionOptions(capture.WithClock(clock)),
		WithMeterView(f.view),
	}
	f.ctl = New(Deps{
		Acquirer: f.acq,
		Encoder:  f.enc,
		Uploader: f.up,
		Trimmer:  f.trim,
		Analyzer: meter.New(meter.Options{Interval: 10 * time.Millisecond}),
	}, DefaultSelections(), append(base, opts...)...)
	t.Cleanup(f.ctl.Close)
	return f
}

func (f *fixture) recorder(t *testing.T) *capturetest.Recorder {
	t.Helper()
	return testutil.Receive(t, f.enc.Opened(), testutil.DefaultTestTimeout, "encoder was not opened")
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, f.ctl.Wait(ctx))
}

func sinePCM(samples int) []byte {
	out := make([]byte, samples*2)
	for i := range samples {
		v := int16(math.Sin(2*math.Pi*1000*float64(i)/48000) * 20000)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func TestRecordStopUploads(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sel := DefaultSelections()
	sel.Type = backend.TypeEmission
	sel.CustomName = "matinale"
	sel.RetentionDays = 30
	require.NoError(t, f.ctl.SetSelections(sel))

	id, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec := f.recorder(t)
	assert.Equal(t, 128000, rec.Options.Bitrate)
	rec.Emit([]byte("ab"))
	rec.Emit([]byte("cde"))

	require.NoError(t, f.ctl.Stop())
	f.wait(t)

	sent := f.up.Sent()
	require.Len(t, sent, 1)
	d := sent[0]
	assert.Equal(t, []byte("abcde"), d.Payload())
	assert.Equal(t, "audio/webm", d.MIMEType())

	meta := d.Metadata()
	assert.Equal(t, "Enregistrement emission - 17/10/2026 09:05:03", meta.Title)
	assert.Equal(t, backend.TypeEmission, meta.Type)
	assert.Equal(t, "webm", meta.Format)
	assert.Equal(t, "matinale", meta.CustomName)
	require.NotNil(t, meta.RetainedUntil)
	assert.Equal(t, fixedNow.AddDate(0, 0, 30), *meta.RetainedUntil)

	st := f.ctl.State()
	assert.Equal(t, capture.StatusIdle, st.Status)
	assert.Equal(t, capture.StatusCompleted, st.Session.Status)
	assert.Empty(t, st.Message)
	require.NotNil(t, st.LastUpload)
	assert.Equal(t, int64(1), *st.LastUpload)

	for _, s := range f.acq.Streams() {
		assert.True(t, capture.AllTracksStopped(s))
	}
}

func TestUploadWithoutRecordingIDClearsLastUpload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.up.results = []upload.Outcome{{ID: 7}, {}}

	for range 2 {
		_, err := f.ctl.Start(context.Background())
		require.NoError(t, err)
		rec := f.recorder(t)
		rec.Emit([]byte("abc"))
		require.NoError(t, f.ctl.Stop())
		f.wait(t)
	}

	require.Len(t, f.up.Sent(), 2)
	st := f.ctl.State()
	assert.Nil(t, st.LastUpload, "an accepted upload without an id must not report id 0")
	assert.Empty(t, st.Message)
}

func TestMeterFollowsRecording(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	rec := f.recorder(t)

	streams := f.acq.Streams()
	require.Len(t, streams, 1)
	stream := streams[0]

	require.Eventually(t, func() bool { return stream.SinkCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	pcm := sinePCM(4800)
	require.Eventually(t, func() bool {
		stream.Publish(pcm)
		for _, l := range f.view.snapshot() {
			if l > 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	rec.Emit([]byte("x"))
	require.NoError(t, f.ctl.Stop())
	f.wait(t)

	assert.Zero(t, stream.SinkCount())
	levels := f.view.snapshot()
	require.NotEmpty(t, levels)
	assert.Zero(t, levels[len(levels)-1], "meter reset when recording ends")
}

func TestStartRefusedWhileActive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	f.recorder(t)

	_, err = f.ctl.Start(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	require.NoError(t, f.ctl.Cancel())
	f.wait(t)

	assert.Empty(t, f.up.Sent())
	assert.Equal(t, capture.KindCancelled.Message(), f.ctl.Message())
	assert.Len(t, f.acq.Calls(), 1)
}

func TestStopWithoutSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.ErrorIs(t, f.ctl.Stop(), ErrNotRecording)
	require.ErrorIs(t, f.ctl.Cancel(), ErrNotRecording)
}

func TestPermissionDeniedSetsMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.acq.Err = capture.ErrPermissionDenied
	sel := DefaultSelections()
	sel.MediaType = capture.MediaVideo
	sel.Format = "mp3" // ignored for video
	require.NoError(t, f.ctl.SetSelections(sel))

	_, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	f.wait(t)

	calls := f.acq.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Video)

	st := f.ctl.State()
	assert.Equal(t, capture.StatusIdle, st.Status)
	assert.Equal(t, capture.StatusFailed, st.Session.Status)
	assert.Zero(t, st.Session.Chunks)
	assert.Equal(t, capture.KindPermissionDenied.Message(), st.Message)
	assert.Empty(t, f.up.Sent())
}

func TestEmptyCaptureSkipsUpload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	f.recorder(t)
	require.NoError(t, f.ctl.Stop())
	f.wait(t)

	assert.Equal(t, capture.KindEmptyCapture.Message(), f.ctl.Message())
	assert.Empty(t, f.up.Sent())
	assert.False(t, f.ctl.State().CanRetry)
}

func TestFailedUploadRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.up.results = []upload.Outcome{
		{Failure: capture.NewFailure(capture.KindUploadTransportFailure, "file too large", nil)},
		{ID: 77},
	}

	_, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	rec := f.recorder(t)
	rec.Emit([]byte("payload"))
	require.NoError(t, f.ctl.Stop())
	f.wait(t)

	st := f.ctl.State()
	assert.True(t, st.CanRetry)
	assert.Contains(t, st.Message, "file too large")

	out, err := f.ctl.RetryUpload(context.Background())
	require.NoError(t, err)
	assert.True(t, out.OK())

	sent := f.up.Sent()
	require.Len(t, sent, 2)
	assert.Same(t, sent[0], sent[1])

	st = f.ctl.State()
	assert.False(t, st.CanRetry)
	assert.Empty(t, st.Message)
	require.NotNil(t, st.LastUpload)
	assert.Equal(t, int64(77), *st.LastUpload)

	_, err = f.ctl.RetryUpload(context.Background())
	require.ErrorIs(t, err, ErrNothingToRetry)
}

func TestStartRefusedWhileUploading(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.up.block = make(chan struct{})
	f.up.entered = make(chan struct{}, 1)

	_, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	rec := f.recorder(t)
	rec.Emit([]byte("x"))
	require.NoError(t, f.ctl.Stop())

	<-f.up.entered
	assert.True(t, f.ctl.State().Uploading)
	_, err = f.ctl.Start(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	close(f.up.block)
	f.wait(t)
	assert.False(t, f.ctl.State().Uploading)
}

func TestTrimValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  TrimRequest
		ok   bool
	}{
		{"valid", TrimRequest{RecordingID: 1, Start: 1, End: 5, Duration: 10}, true},
		{"unknown duration", TrimRequest{RecordingID: 1, Start: 0, End: 500}, true},
		{"start equals end", TrimRequest{RecordingID: 1, Start: 5, End: 5}, false},
		{"start after end", TrimRequest{RecordingID: 1, Start: 6, End: 5}, false},
		{"negative start", TrimRequest{RecordingID: 1, Start: -1, End: 5}, false},
		{"past duration", TrimRequest{RecordingID: 1, Start: 1, End: 11, Duration: 10}, false},
		{"NaN start", TrimRequest{RecordingID: 1, Start: math.NaN(), End: 5}, false},
		{"NaN end", TrimRequest{RecordingID: 1, Start: 1, End: math.NaN()}, false},
		{"infinite end", TrimRequest{RecordingID: 1, Start: 1, End: math.Inf(1)}, false},
		{"infinite duration", TrimRequest{RecordingID: 1, Start: 1, End: 5, Duration: math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			res, err := f.ctl.Trim(context.Background(), tt.req)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.req.End, res.EndTime)
				assert.Equal(t, int32(1), f.trim.calls.Load())
				return
			}
			require.ErrorIs(t, err, capture.KindValidationFailure)
			assert.Zero(t, f.trim.calls.Load(), "no network call on invalid trim")
			assert.NotEmpty(t, f.ctl.Message())
		})
	}
}

func TestSelectionsValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	bad := DefaultSelections()
	bad.Type = "podcast"
	require.ErrorIs(t, f.ctl.SetSelections(bad), capture.KindValidationFailure)

	bad = DefaultSelections()
	bad.Quality = "ultra"
	require.Error(t, f.ctl.SetSelections(bad))

	video := DefaultSelections()
	video.MediaType = capture.MediaVideo
	video.Format = "flac"
	cfg, err := video.Config()
	require.NoError(t, err)
	assert.Equal(t, "webm", cfg.Container)
}

func TestHooksObserveLifecycle(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var statuses []capture.Status
	var uploads int
	f := newFixture(t, WithHooks(Hooks{
		OnEvent: func(ev capture.Event) {
			if ev.Kind != capture.EventState {
				return
			}
			mu.Lock()
			statuses = append(statuses, ev.Snapshot.Status)
			mu.Unlock()
		},
		OnUpload: func(*capture.Descriptor, upload.Outcome) {
			mu.Lock()
			uploads++
			mu.Unlock()
		},
	}))

	_, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	rec := f.recorder(t)
	rec.Emit([]byte("x"))
	require.NoError(t, f.ctl.Stop())
	f.wait(t)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.Equal(t, capture.StatusCompleted, statuses[len(statuses)-1])
	assert.Contains(t, statuses, capture.StatusRecording)
	assert.Equal(t, 1, uploads)
}

func TestCloseCancelsActiveSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.ctl.Start(context.Background())
	require.NoError(t, err)
	f.recorder(t)

	f.ctl.Close()
	for _, s := range f.acq.Streams() {
		assert.True(t, capture.AllTracksStopped(s))
	}
	_, err = f.ctl.Start(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

// End to end through the real upload coordinator and a mocked backend.
func TestAutoUploadMultipart(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	hc := httpclient.New(&httpclient.Config{Transport: mock})
	b, err := backend.NewClient(backend.Config{BaseURL: testBase, Token: "t"}, hc)
	require.NoError(t, err)

	fields := map[string]string{}
	var fileType string
	mock.RegisterResponder(http.MethodPost, testBase+"/api/recordings/", func(req *http.Request) (*http.Response, error) {
		_, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
		require.NoError(t, err)
		mr := multipart.NewReader(req.Body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, _ := io.ReadAll(p)
			if p.FormName() == "file" {
				fileType = p.Header.Get("Content-Type")
				continue
			}
			fields[p.FormName()] = string(data)
		}
		return httpmock.NewStringResponse(http.StatusCreated, `{"id":12,"type":"reunion"}`), nil
	})

	acq := &capturetest.Acquirer{}
	enc := &capturetest.Encoder{FinalChunk: []byte("tail")}
	sel := DefaultSelections()
	sel.Type = backend.TypeReunion
	sel.Format = "ogg"
	sel.Quality = capture.TierLow

	ctl := New(Deps{
		Acquirer: acq,
		Encoder:  enc,
		Uploader: upload.NewCoordinator(b),
		Trimmer:  b,
	}, sel, WithClock(clock), WithSessionOptions(capture.WithClock(clock)), WithNameTemplate("{type}-{date}"))
	t.Cleanup(ctl.Close)

	_, err = ctl.Start(context.Background())
	require.NoError(t, err)
	rec := <-enc.Opened()
	assert.Equal(t, 32000, rec.Options.Bitrate)
	rec.Emit([]byte("head"))
	require.NoError(t, ctl.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, ctl.Wait(ctx))

	assert.Equal(t, 1, mock.GetTotalCallCount())
	assert.Equal(t, "audio/ogg", fileType)
	assert.Equal(t, "reunion", fields["type"])
	assert.Equal(t, "ogg", fields["format"])
	assert.Equal(t, "reunion-2026-10-17", fields["custom_name"])
	assert.Equal(t, "Enregistrement reunion - 17/10/2026 09:05:03", fields["title"])

	st := ctl.State()
	require.NotNil(t, st.LastUpload)
	assert.Equal(t, int64(12), *st.LastUpload)
}
