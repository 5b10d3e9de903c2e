package notification

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/testutil"
	"github.com/radiorec/radiorec/internal/upload"
)

type fakeProvider struct {
	name     string
	types    map[Type]bool
	validErr error
	sendErr  error

	mu   sync.Mutex
	sent []Notification
}

func (f *fakeProvider) Name() string          { return f.name }
func (f *fakeProvider) ValidateConfig() error { return f.validErr }

func (f *fakeProvider) SupportsType(t Type) bool {
	return f.types == nil || f.types[t]
}

func (f *fakeProvider) Send(_ context.Context, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *n)
	return f.sendErr
}

func (f *fakeProvider) notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.sent...)
}

type countingRecorder struct {
	mu     sync.Mutex
	ops    map[string]int
	errors map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: map[string]int{}, errors: map[string]int{}}
}

func (r *countingRecorder) RecordOperation(op, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op+"/"+status]++
}

func (r *countingRecorder) RecordDuration(string, float64) {}

func (r *countingRecorder) RecordError(op, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[op+"/"+errorType]++
}

func newTestService(t *testing.T, providers []Provider, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithRateLimit(1000, 100)}, opts...)
	s, err := NewService(providers, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestServiceRequiresUsableProvider(t *testing.T) {
	t.Parallel()

	_, err := NewService([]Provider{&fakeProvider{name: "bad", validErr: errors.New("no url")}})
	require.Error(t, err)

	_, err = NewService(nil)
	require.Error(t, err)
}

func TestServiceSkipsInvalidProviders(t *testing.T) {
	t.Parallel()

	good := &fakeProvider{name: "good"}
	bad := &fakeProvider{name: "bad", validErr: errors.New("no url")}
	s := newTestService(t, []Provider{bad, good})

	require.True(t, s.Notify(&Notification{Type: TypeInfo, Title: "hello"}))
	s.Close()

	assert.Len(t, good.notifications(), 1)
	assert.Empty(t, bad.notifications())
}

func TestServiceFiltersByType(t *testing.T) {
	t.Parallel()

	errorsOnly := &fakeProvider{name: "errors", types: map[Type]bool{TypeError: true}}
	s := newTestService(t, []Provider{errorsOnly}, WithInstance("studio-a"))

	s.Notify(&Notification{Type: TypeUpload, Title: "uploaded"})
	s.Notify(&Notification{Type: TypeError, Title: "failed"})
	s.Close()

	got := errorsOnly.notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "[studio-a] failed", got[0].Title)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestServiceHooks(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "p"}
	s := newTestService(t, []Provider{p})
	hooks := s.Hooks()

	hooks.OnEvent(capture.Event{Kind: capture.EventTick})
	hooks.OnEvent(capture.Event{Kind: capture.EventState, Snapshot: capture.Snapshot{Status: capture.StatusRecording}})
	hooks.OnEvent(capture.Event{Kind: capture.EventState, Snapshot: capture.Snapshot{
		Status:  capture.StatusFailed,
		Failure: capture.NewFailure(capture.KindCancelled, "", nil),
	}})
	hooks.OnEvent(capture.Event{Kind: capture.EventState, Snapshot: capture.Snapshot{
		Status:  capture.StatusFailed,
		Failure: capture.NewFailure(capture.KindPermissionDenied, "", nil),
	}})

	d := capture.NewDescriptor([]byte("x"), "antenne.webm", "audio/webm", capture.Metadata{Title: "Night news"})
	hooks.OnUpload(d, upload.Outcome{ID: 7})
	hooks.OnUpload(d, upload.Outcome{Failure: capture.NewFailure(capture.KindUploadTransportFailure, "file too large", nil)})
	s.Close()

	got := p.notifications()
	require.Len(t, got, 3)

	assert.Equal(t, TypeError, got[0].Type)
	assert.Equal(t, "Recording failed", got[0].Title)
	assert.Equal(t, capture.KindPermissionDenied.Message(), got[0].Message)

	assert.Equal(t, TypeUpload, got[1].Type)
	assert.Equal(t, "Night news (id 7)", got[1].Message)

	assert.Equal(t, "Upload failed", got[2].Title)
	assert.Contains(t, got[2].Message, "file too large")
}

func TestServiceRecordsOutcomes(t *testing.T) {
	t.Parallel()

	rec := newCountingRecorder()
	p := &fakeProvider{name: "flaky", sendErr: errors.New("boom")}
	s := newTestService(t, []Provider{p}, WithRecorder(rec))

	s.Notify(&Notification{Type: TypeError, Title: "a"})
	s.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.ops["notify/error"])
	assert.Equal(t, 1, rec.errors["notify/flaky"])
}

func TestServiceNotifyAfterClose(t *testing.T) {
	t.Parallel()

	s := newTestService(t, []Provider{&fakeProvider{name: "p"}})
	s.Close()
	assert.False(t, s.Notify(&Notification{Type: TypeInfo}))
}

func TestNewFromSettingsDisabled(t *testing.T) {
	t.Parallel()

	_, err := NewFromSettings(&conf.NotifySettings{Enabled: false})
	require.Error(t, err)
	_, err = NewFromSettings(nil)
	require.Error(t, err)
}

func TestShoutrrrProviderValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, NewShoutrrrProvider("", nil, nil, time.Second).ValidateConfig())
	require.Error(t, NewShoutrrrProvider("", []string{"nosuchservice://x"}, nil, time.Second).ValidateConfig())

	p := NewShoutrrrProvider(" ", []string{"generic://127.0.0.1:1/hook?disabletls=yes"}, []Type{TypeError}, time.Second)
	require.NoError(t, p.ValidateConfig())
	assert.Equal(t, "shoutrrr", p.Name())
	assert.True(t, p.SupportsType(TypeError))
	assert.False(t, p.SupportsType(TypeUpload))
}

func TestShoutrrrProviderSendsToWebhook(t *testing.T) {
	t.Parallel()

	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	p := NewShoutrrrProvider("webhook", []string{"generic://" + host + "/hook?disabletls=yes"}, nil, 2*time.Second)
	require.NoError(t, p.ValidateConfig())

	err := p.Send(t.Context(), &Notification{Type: TypeError, Title: "Upload failed", Message: "file too large"})
	require.NoError(t, err)

	body := testutil.Receive(t, bodies, testutil.DefaultTestTimeout, "webhook not called")
	assert.Contains(t, body, "file too large")
}

func TestShoutrrrProviderUninitialized(t *testing.T) {
	t.Parallel()

	p := NewShoutrrrProvider("x", []string{"generic://example.com"}, nil, time.Second)
	require.Error(t, p.Send(t.Context(), &Notification{Message: "m"}))
}
