// Package controller orchestrates one recording screen: it turns the user's
// selections into capture sessions, feeds the level meter while recording,
// uploads finished recordings and validates trim requests.
package controller

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
	"github.com/radiorec/radiorec/internal/meter"
	"github.com/radiorec/radiorec/internal/upload"
)

var (
	// ErrBusy is returned by Start while a session is active or an upload runs.
	ErrBusy = errors.NewStd("a recording or upload is already in progress")
	// ErrNotRecording is returned by Stop and Cancel when no session is active.
	ErrNotRecording = errors.NewStd("no recording in progress")
	// ErrNothingToRetry is returned by RetryUpload when no upload has failed.
	ErrNothingToRetry = errors.NewStd("no failed upload to retry")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.NewStd("controller closed")
)

// Uploader sends a finished recording.
type Uploader interface {
	Send(ctx context.Context, d *capture.Descriptor) (upload.Outcome, error)
}

// Trimmer forwards a validated trim request.
type Trimmer interface {
	Trim(ctx context.Context, id int64, start, end float64) (*backend.TrimResult, error)
}

// MeterView displays the live input level. Levels are in [0,1]; zero is
// sent when metering stops.
type MeterView interface {
	SetLevel(level float64)
}

// MeterViewFunc adapts a function to MeterView.
type MeterViewFunc func(float64)

func (f MeterViewFunc) SetLevel(level float64) { f(level) }

// Hooks observe the controller. They run on the controller's goroutines and
// must not block.
type Hooks struct {
	OnEvent  func(capture.Event)
	OnUpload func(*capture.Descriptor, upload.Outcome)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Acquirer capture.Acquirer
	Encoder  capture.Encoder
	Uploader Uploader
	Trimmer  Trimmer
	Analyzer *meter.Analyzer
}

// Option configures a Controller.
type Option func(*Controller)

// WithMeterView adds a level display.
func WithMeterView(v MeterView) Option {
	return func(c *Controller) { c.views = append(c.views, v) }
}

// WithHooks installs observers.
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = append(c.hooks, h) }
}

// WithTitleTemplate sets the naming template for generated titles.
func WithTitleTemplate(t string) Option {
	return func(c *Controller) {
		if t != "" {
			c.titleTemplate = t
		}
	}
}

// WithNameTemplate fills custom_name from a template when the selections
// leave it empty.
func WithNameTemplate(t string) Option {
	return func(c *Controller) { c.nameTemplate = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSessionOptions passes options to every capture session.
func WithSessionOptions(opts ...capture.Option) Option {
	return func(c *Controller) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// State is what the screen shows.
type State struct {
	Status     capture.Status   `json:"status"`
	Session    capture.Snapshot `json:"session"`
	Uploading  bool             `json:"uploading"`
	CanRetry   bool             `json:"can_retry"`
	Message    string           `json:"message,omitempty"`
	LastUpload *int64           `json:"last_recording_id,omitempty"`
	Selections Selections       `json:"selections"`
}

// Controller is safe for concurrent use.
type Controller struct {
	deps          Deps
	views         []MeterView
	hooks         []Hooks
	titleTemplate string
	nameTemplate  string
	now           func() time.Time
	sessionOpts   []capture.Option
	log           logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	uploading atomic.Bool

	mu          sync.Mutex
	closed      bool
	sel         Selections
	session     *capture.Session
	last        capture.Snapshot
	message     string
	lastFailed  *capture.Descriptor
	lastID      *int64
	completedCh chan struct{}
}

// New creates an idle controller.
func New(deps Deps, sel Selections, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		deps:          deps,
		titleTemplate: conf.DefaultTitleTemplate,
		now:           time.Now,
		log:           GetLogger(),
		ctx:           ctx,
		cancel:        cancel,
		sel:           sel,
		last:          capture.Snapshot{Status: capture.StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deps.Analyzer == nil {
		c.deps.Analyzer = meter.New(meter.Options{})
	}
	return c
}

// Selections returns the current selections.
func (c *Controller) Selections() Selections {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel
}

// SetSelections replaces the selections used by the next Start.
func (c *Controller) SetSelections(sel Selections) error {
	if _, err := sel.Config(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sel = sel
	return nil
}

// Start begins a new recording with the current selections. It returns once
// the session is requesting the device.
func (c *Controller) Start(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if c.session != nil || c.uploading.Load() {
		return "", ErrBusy
	}

	cfg, err := c.sel.Config()
	if err != nil {
		c.message = failureMessage(err)
		return "", err
	}

	s := capture.NewSession(c.deps.Acquirer, c.deps.Encoder, c.sessionOpts...)
	if err := s.Start(cfg); err != nil {
		c.message = failureMessage(err)
		return "", err
	}

	c.session = s
	c.message = ""
	c.completedCh = make(chan struct{})
	c.log.Info("recording started",
		logger.String("session_id", s.ID()),
		logger.String("type", cfg.Type),
		logger.String("media", string(cfg.MediaType)),
		logger.String("container", cfg.Container))

	c.wg.Add(1)
	go c.watch(s, c.sel, c.completedCh)
	return s.ID(), nil
}

// Stop asks the active session to finish. The upload follows automatically.
func (c *Controller) Stop() error {
	s := c.active()
	if s == nil {
		return ErrNotRecording
	}
	s.Stop()
	return nil
}

// Cancel discards the active session.
func (c *Controller) Cancel() error {
	s := c.active()
	if s == nil {
		return ErrNotRecording
	}
	s.Cancel()
	return nil
}

// Wait blocks until the current session and its upload have settled.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	ch := c.completedCh
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) active() *capture.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State returns a snapshot for display.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Uploading:  c.uploading.Load(),
		CanRetry:   c.lastFailed != nil,
		Message:    c.message,
		LastUpload: c.lastID,
		Selections: c.sel,
	}
	if c.session != nil {
		st.Session = c.session.Snapshot()
		st.Status = st.Session.Status
	} else {
		st.Session = c.last
		st.Status = capture.StatusIdle
	}
	return st
}

// watch consumes one session's events until it ends, keeps the meter
// attached exactly while recording and hands the result to the uploader.
func (c *Controller) watch(s *capture.Session, sel Selections, completed chan struct{}) {
	defer c.wg.Done()
	defer close(completed)

	var levels sync.WaitGroup
	attached := false
	detach := func() {
		if !attached {
			return
		}
		c.deps.Analyzer.Detach()
		levels.Wait()
		c.publishLevel(0)
		attached = false
	}
	defer detach()

	for ev := range s.Events() {
		if ev.Snapshot.Status == capture.StatusRecording && !attached {
			if stream := s.Stream(); stream != nil {
				sub := c.deps.Analyzer.Attach(stream)
				attached = true
				levels.Go(func() {
					for level := range sub.Levels() {
						c.publishLevel(level)
					}
				})
			}
		} else if ev.Snapshot.Status != capture.StatusRecording {
			detach()
		}
		c.fireEvent(ev)
	}
	detach()

	d, err := s.Result()
	snap := s.Snapshot()

	if d != nil {
		d = d.WithMetadata(c.metadataFor(sel, d))
	}

	// The gate is claimed before the session slot is freed so a new Start
	// cannot slip in between.
	c.mu.Lock()
	c.session = nil
	c.last = snap
	claimed := false
	switch {
	case err != nil:
		c.message = failureMessage(err)
	case c.uploading.CompareAndSwap(false, true):
		claimed = true
	default:
		c.lastFailed = d
		c.message = capture.KindUploadTransportFailure.Message() + " Another upload is in progress."
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Info("recording ended without result",
			logger.String("session_id", s.ID()),
			logger.Error(err))
		return
	}
	if claimed {
		if _, err := c.send(c.ctx, d); err != nil {
			c.log.Warn("automatic upload failed", logger.Error(err))
		}
	}
}

func (c *Controller) metadataFor(sel Selections, d *capture.Descriptor) capture.Metadata {
	meta := d.Metadata()
	at := d.CreatedAt()
	if at.IsZero() {
		at = c.now()
	}
	meta.Title = capture.RenderName(c.titleTemplate, sel.Type, at)
	meta.Type = sel.Type
	meta.Format = sel.targetFormat()
	meta.CustomName = sel.CustomName
	if meta.CustomName == "" && c.nameTemplate != "" {
		meta.CustomName = capture.RenderName(c.nameTemplate, sel.Type, at)
	}
	meta.RetainedUntil = capture.RetainedUntil(c.now(), sel.RetentionDays)
	return meta
}

// RetryUpload re-sends the last failed recording. It is refused while a
// session is active.
func (c *Controller) RetryUpload(ctx context.Context) (upload.Outcome, error) {
	c.mu.Lock()
	d := c.lastFailed
	switch {
	case c.closed:
		c.mu.Unlock()
		return upload.Outcome{}, ErrClosed
	case d == nil:
		c.mu.Unlock()
		return upload.Outcome{}, ErrNothingToRetry
	case c.session != nil:
		c.mu.Unlock()
		return upload.Outcome{}, ErrBusy
	case !c.uploading.CompareAndSwap(false, true):
		c.mu.Unlock()
		return upload.Outcome{}, upload.ErrUploadInFlight
	}
	c.mu.Unlock()

	return c.send(ctx, d)
}

// send uploads d; the caller must hold the upload gate, which send releases.
func (c *Controller) send(ctx context.Context, d *capture.Descriptor) (upload.Outcome, error) {
	defer c.uploading.Store(false)

	out, err := c.deps.Uploader.Send(ctx, d)
	if err != nil {
		c.mu.Lock()
		c.lastFailed = d
		c.message = failureMessage(err)
		c.mu.Unlock()
		return out, err
	}

	c.mu.Lock()
	if out.OK() {
		c.lastFailed = nil
		c.lastID = nil
		if out.HasID() {
			id := out.ID
			c.lastID = &id
		}
		c.message = ""
	} else {
		c.lastFailed = d
		c.message = out.Failure.Message()
	}
	c.mu.Unlock()

	for _, h := range c.hooks {
		if h.OnUpload != nil {
			h.OnUpload(d, out)
		}
	}
	return out, nil
}

// TrimRequest selects the part of a stored recording to keep.
type TrimRequest struct {
	RecordingID int64
	Start       float64 // seconds
	End         float64 // seconds
	// Duration of the recording in seconds, zero when unknown.
	Duration float64
}

// Validate checks the window without touching the network.
func (r TrimRequest) Validate() error {
	switch {
	case !finite(r.Start) || !finite(r.End) || math.IsNaN(r.Duration) || math.IsInf(r.Duration, 0):
		return capture.NewFailure(capture.KindValidationFailure, "start and end must be finite numbers", nil)
	case r.Start < 0:
		return capture.NewFailure(capture.KindValidationFailure, "start must not be negative", nil)
	case !(r.Start < r.End):
		return capture.NewFailure(capture.KindValidationFailure, "start must be before end", nil)
	case r.Duration > 0 && r.End > r.Duration:
		return capture.NewFailure(capture.KindValidationFailure,
			fmt.Sprintf("end %.2fs is past the recording duration %.2fs", r.End, r.Duration), nil)
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Trim validates req locally and forwards it to the backend.
func (c *Controller) Trim(ctx context.Context, req TrimRequest) (*backend.TrimResult, error) {
	if err := req.Validate(); err != nil {
		c.setMessage(failureMessage(err))
		return nil, err
	}
	if c.deps.Trimmer == nil {
		return nil, errors.Newf("trim is not available").Component("controller").Category(errors.CategoryConfiguration).Build()
	}

	res, err := c.deps.Trimmer.Trim(ctx, req.RecordingID, req.Start, req.End)
	if err != nil {
		msg := "Trim failed."
		if detail := backend.DetailOf(err); detail != "" {
			msg += " " + detail
		}
		c.setMessage(msg)
		return nil, err
	}
	c.setMessage("")
	return res, nil
}

// Message is the current user-facing error text, empty when none.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Controller) setMessage(m string) {
	c.mu.Lock()
	c.message = m
	c.mu.Unlock()
}

func (c *Controller) publishLevel(level float64) {
	for _, v := range c.views {
		v.SetLevel(level)
	}
}

func (c *Controller) fireEvent(ev capture.Event) {
	for _, h := range c.hooks {
		if h.OnEvent != nil {
			h.OnEvent(ev)
		}
	}
}

// Close cancels any active session and background upload and waits for
// the controller's goroutines to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	s := c.session
	c.mu.Unlock()

	if s != nil {
		s.Cancel()
	}
	c.cancel()
	c.wg.Wait()
	c.deps.Analyzer.Detach()
}

func failureMessage(err error) string {
	if f, ok := capture.AsFailure(err); ok {
		return f.Message()
	}
	return capture.FailureKind(0).Message()
}
