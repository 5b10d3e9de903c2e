package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/controller"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
	"github.com/radiorec/radiorec/internal/observability/metrics"
	"github.com/radiorec/radiorec/internal/upload"
)

const (
	defaultQueueSize   = 32
	defaultSendTimeout = 30 * time.Second
)

type registeredProvider struct {
	provider Provider
	breaker  *CircuitBreaker
}

// Service queues notifications and delivers them from a single worker,
// rate limited and guarded by a circuit breaker per provider.
type Service struct {
	providers []registeredProvider
	limiter   *rate.Limiter
	recorder  metrics.Recorder
	instance  string
	timeout   time.Duration
	breakerCf CircuitBreakerConfig
	now       func() time.Time
	log       logger.Logger

	queue     chan *Notification
	done      chan struct{}
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder records delivery outcomes.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithRateLimit caps deliveries per second with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Service) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithInstance prefixes titles with the instance name.
func WithInstance(name string) Option {
	return func(s *Service) { s.instance = name }
}

// WithSendTimeout bounds each delivery including the rate limit wait.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithCircuitBreaker overrides the per-provider breaker configuration.
func WithCircuitBreaker(cfg CircuitBreakerConfig) Option {
	return func(s *Service) { s.breakerCf = cfg }
}

// NewService validates the providers and starts the delivery worker.
// Providers that fail validation are skipped; at least one must remain.
func NewService(providers []Provider, opts ...Option) (*Service, error) {
	s := &Service{
		limiter:   rate.NewLimiter(rate.Every(time.Second), 10),
		recorder:  metrics.NoOpRecorder{},
		timeout:   defaultSendTimeout,
		breakerCf: DefaultCircuitBreakerConfig(),
		now:       time.Now,
		log:       getLogger(),
		queue:     make(chan *Notification, defaultQueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range providers {
		if err := p.ValidateConfig(); err != nil {
			s.log.Warn("skipping notification provider",
				logger.String("provider", p.Name()),
				logger.Error(err))
			continue
		}
		s.providers = append(s.providers, registeredProvider{
			provider: p,
			breaker:  NewCircuitBreaker(s.breakerCf, p.Name()),
		})
	}
	if len(s.providers) == 0 {
		return nil, errors.Newf("no usable notification provider").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	go s.run()
	return s, nil
}

// NewFromSettings builds a service with a single shoutrrr provider for all URLs.
func NewFromSettings(settings *conf.NotifySettings, opts ...Option) (*Service, error) {
	if settings == nil || !settings.Enabled {
		return nil, errors.Newf("notifications are disabled").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	p := NewShoutrrrProvider("shoutrrr", settings.URLs, nil, defaultSendTimeout)
	return NewService([]Provider{p}, opts...)
}

// Notify queues n. It returns false when the queue is full or the service is closed.
func (s *Service) Notify(n *Notification) bool {
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now()
	}
	if s.instance != "" {
		n.Title = fmt.Sprintf("[%s] %s", s.instance, n.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- n:
		return true
	default:
		s.log.Warn("notification queue full, dropping", logger.String("title", n.Title))
		s.recorder.RecordError(metrics.OpNotify, "queue_full")
		return false
	}
}

// Hooks returns controller hooks that notify on capture failures and upload outcomes.
func (s *Service) Hooks() controller.Hooks {
	return controller.Hooks{
		OnEvent:  s.onEvent,
		OnUpload: s.onUpload,
	}
}

func (s *Service) onEvent(ev capture.Event) {
	if ev.Kind != capture.EventState || ev.Snapshot.Status != capture.StatusFailed {
		return
	}
	f := ev.Snapshot.Failure
	if f == nil || f.Kind == capture.KindCancelled {
		return
	}
	s.Notify(&Notification{
		Type:      TypeError,
		Title:     "Recording failed",
		Message:   f.Message(),
		Component: "capture",
	})
}

func (s *Service) onUpload(d *capture.Descriptor, o upload.Outcome) {
	var title string
	if d != nil {
		title = d.Metadata().Title
	}
	if !o.OK() {
		s.Notify(&Notification{
			Type:      TypeError,
			Title:     "Upload failed",
			Message:   fmt.Sprintf("%s: %s", title, o.Failure.Message()),
			Component: "upload",
		})
		return
	}
	s.Notify(&Notification{
		Type:      TypeUpload,
		Title:     "Recording uploaded",
		Message:   fmt.Sprintf("%s (id %d)", title, o.ID),
		Component: "upload",
	})
}

func (s *Service) run() {
	defer close(s.done)
	for n := range s.queue {
		s.deliver(n)
	}
}

func (s *Service) deliver(n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		s.log.Warn("notification rate limited", logger.String("title", n.Title), logger.Error(err))
		s.recorder.RecordError(metrics.OpNotify, "rate_limited")
		return
	}

	for _, rp := range s.providers {
		if !rp.provider.SupportsType(n.Type) {
			continue
		}
		start := time.Now()
		err := rp.breaker.Call(ctx, func(ctx context.Context) error {
			return rp.provider.Send(ctx, n)
		})
		s.recorder.RecordDuration(metrics.OpNotify, time.Since(start).Seconds())
		if err != nil {
			s.recorder.RecordOperation(metrics.OpNotify, metrics.StatusError)
			s.recorder.RecordError(metrics.OpNotify, rp.provider.Name())
			s.log.Warn("notification delivery failed",
				logger.String("provider", rp.provider.Name()),
				logger.String("type", string(n.Type)),
				logger.Error(err))
			continue
		}
		s.recorder.RecordOperation(metrics.OpNotify, metrics.StatusSuccess)
		s.log.Debug("notification sent",
			logger.String("provider", rp.provider.Name()),
			logger.String("type", string(n.Type)))
	}
}

// Close delivers what is queued and stops the worker.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	<-s.done
}
