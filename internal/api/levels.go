package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/radiorec/radiorec/internal/logger"
)

// Level stream configuration.
const (
	levelStreamEndpoint   = "/api/v1/levels"
	levelMaxDuration      = 30 * time.Minute
	levelHeartbeat        = 10 * time.Second
	levelSendInterval     = 50 * time.Millisecond
	levelSubscriberBuffer = 16

	// 30 connection attempts per minute per client.
	levelConnectRate   = 30.0 / 60.0
	levelConnectWindow = time.Minute
)

// LevelEvent is the payload of one SSE message.
type LevelEvent struct {
	Type  string  `json:"type"`
	Level float64 `json:"level"`
}

// LevelHub fans the controller's meter out to SSE subscribers. It
// implements controller.MeterView.
type LevelHub struct {
	mu   sync.RWMutex
	subs map[chan float64]struct{}
	last atomic.Uint64
}

// NewLevelHub creates an empty hub.
func NewLevelHub() *LevelHub {
	return &LevelHub{subs: make(map[chan float64]struct{})}
}

// SetLevel publishes level to every subscriber. Slow subscribers miss updates.
func (h *LevelHub) SetLevel(level float64) {
	h.last.Store(math.Float64bits(level))

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- level:
		default:
		}
	}
}

// Level returns the most recent level.
func (h *LevelHub) Level() float64 {
	return math.Float64frombits(h.last.Load())
}

func (h *LevelHub) subscribe() (<-chan float64, func()) {
	ch := make(chan float64, levelSubscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *LevelHub) subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func levelRateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(levelConnectRate),
				Burst:     5,
				ExpiresIn: levelConnectWindow,
			},
		),
		IdentifierExtractor: middleware.DefaultRateLimiterConfig.IdentifierExtractor,
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, NewErrorResponse(err, "Unable to identify client", http.StatusForbidden))
		},
		DenyHandler: func(c echo.Context, _ string, err error) error {
			return c.JSON(http.StatusTooManyRequests,
				NewErrorResponse(err, "Too many level stream connection attempts", http.StatusTooManyRequests))
		},
	})
}

// streamLevels handles GET /api/v1/levels.
func (s *Server) streamLevels(c echo.Context) error {
	if s.levels == nil {
		return s.handleError(c, nil, "Level stream is not available", http.StatusServiceUnavailable)
	}

	sub, unsubscribe := s.levels.subscribe()
	defer unsubscribe()

	if s.metrics != nil {
		started := time.Now()
		s.metrics.HTTP.SSEConnectionStarted(levelStreamEndpoint)
		defer func() {
			reason := "client_disconnect"
			if s.ctx.Err() != nil {
				reason = "shutdown"
			}
			s.metrics.HTTP.SSEConnectionClosed(levelStreamEndpoint, time.Since(started).Seconds(), reason)
		}()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), levelMaxDuration)
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	if err := s.sendLevel(c, s.levels.Level()); err != nil {
		return nil
	}

	limiter := rate.NewLimiter(rate.Every(levelSendInterval), 1)
	flush := time.NewTicker(levelSendInterval)
	defer flush.Stop()
	heartbeat := time.NewTicker(levelHeartbeat)
	defer heartbeat.Stop()

	var pending float64
	dirty := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ctx.Done():
			return nil
		case level := <-sub:
			pending, dirty = level, true
			if !limiter.Allow() {
				continue
			}
		case <-flush.C:
			if !dirty {
				continue
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(res, ": heartbeat %d\n\n", time.Now().Unix()); err != nil {
				return nil
			}
			res.Flush()
			continue
		}

		if err := s.sendLevel(c, pending); err != nil {
			s.log.Debug("level stream write failed", logger.Error(err))
			return nil
		}
		dirty = false
	}
}

func (s *Server) sendLevel(c echo.Context, level float64) error {
	payload, err := json.Marshal(LevelEvent{Type: "audio-level", Level: level})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", payload); err != nil {
		return err
	}
	c.Response().Flush()
	if s.metrics != nil {
		s.metrics.HTTP.RecordSSEMessageSent(levelStreamEndpoint, "audio-level")
	}
	return nil
}
