package api

import (
	"crypto/rand"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/radiorec/radiorec/internal/backend"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/controller"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
	"github.com/radiorec/radiorec/internal/upload"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse builds an ErrorResponse with a fresh correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("API error", fields...)
	} else {
		s.log.Debug("API error", fields...)
	}
	return c.JSON(code, resp)
}

// statusFor maps controller, capture and backend errors to HTTP codes and
// the message shown to the user.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, controller.ErrBusy), errors.Is(err, upload.ErrUploadInFlight):
		return http.StatusConflict, "A recording or upload is already in progress"
	case errors.Is(err, controller.ErrNotRecording):
		return http.StatusConflict, "No recording in progress"
	case errors.Is(err, controller.ErrNothingToRetry):
		return http.StatusConflict, "No failed upload to retry"
	case errors.Is(err, controller.ErrClosed):
		return http.StatusServiceUnavailable, "Recorder is shutting down"
	}

	if f, ok := capture.AsFailure(err); ok {
		switch f.Kind {
		case capture.KindValidationFailure:
			return http.StatusBadRequest, f.Message()
		case capture.KindPermissionDenied:
			return http.StatusForbidden, f.Message()
		case capture.KindDeviceUnavailable:
			return http.StatusServiceUnavailable, f.Message()
		default:
			return http.StatusInternalServerError, f.Message()
		}
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		msg := "Backend request failed"
		if apiErr.Detail != "" {
			msg = apiErr.Detail
		}
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode, msg
		}
		return http.StatusBadGateway, msg
	}

	var ee *errors.EnhancedError
	if errors.As(err, &ee) && ee.Category == errors.CategoryValidation {
		return http.StatusBadRequest, ee.Error()
	}
	if errors.As(err, &ee) && ee.Category == errors.CategoryNetwork {
		return http.StatusBadGateway, "Backend is unreachable"
	}
	return http.StatusInternalServerError, "Unexpected error"
}

func (s *Server) fail(c echo.Context, err error) error {
	code, msg := statusFor(err)
	return s.handleError(c, err, msg, code)
}

// StartResponse acknowledges a new session.
type StartResponse struct {
	SessionID string           `json:"session_id"`
	State     controller.State `json:"state"`
}

// startRecording handles POST /api/v1/recording/start. An optional JSON body
// overrides fields of the current selections.
func (s *Server) startRecording(c echo.Context) error {
	if c.Request().ContentLength != 0 {
		sel := s.recorder.Selections()
		if err := c.Bind(&sel); err != nil {
			return s.handleError(c, err, "Invalid selections", http.StatusBadRequest)
		}
		if err := s.recorder.SetSelections(sel); err != nil {
			return s.fail(c, err)
		}
	}

	id, err := s.recorder.Start(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, StartResponse{SessionID: id, State: s.recorder.State()})
}

// stopRecording handles POST /api/v1/recording/stop. The upload runs after
// the response; poll the status for its outcome.
func (s *Server) stopRecording(c echo.Context) error {
	if err := s.recorder.Stop(); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, s.recorder.State())
}

func (s *Server) cancelRecording(c echo.Context) error {
	if err := s.recorder.Cancel(); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, s.recorder.State())
}

func (s *Server) recordingStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.recorder.State())
}

// RetryResponse reports a successful re-upload.
type RetryResponse struct {
	RecordingID int64              `json:"recording_id,omitempty"`
	Recording   *backend.Recording `json:"recording,omitempty"`
}

// retryUpload handles POST /api/v1/recording/retry.
func (s *Server) retryUpload(c echo.Context) error {
	out, err := s.recorder.RetryUpload(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	if !out.OK() {
		return s.handleError(c, out.Failure, out.Failure.Message(), http.StatusBadGateway)
	}
	return c.JSON(http.StatusOK, RetryResponse{RecordingID: out.ID, Recording: out.Recording})
}

func (s *Server) getSelections(c echo.Context) error {
	return c.JSON(http.StatusOK, s.recorder.Selections())
}

func (s *Server) putSelections(c echo.Context) error {
	var sel controller.Selections
	if err := c.Bind(&sel); err != nil {
		return s.handleError(c, err, "Invalid selections", http.StatusBadRequest)
	}
	if err := s.recorder.SetSelections(sel); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.recorder.Selections())
}

// TrimBody is the JSON body of a trim request.
type TrimBody struct {
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
	// Duration of the recording in seconds, optional.
	Duration float64 `json:"duration,omitempty"`
}

// trimRecording handles POST /api/v1/recordings/:id/trim.
func (s *Server) trimRecording(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return s.handleError(c, err, "Invalid recording id", http.StatusBadRequest)
	}
	var body TrimBody
	if err := c.Bind(&body); err != nil {
		return s.handleError(c, err, "Invalid trim request", http.StatusBadRequest)
	}
	if body.StartTime == nil || body.EndTime == nil {
		return s.handleError(c, nil, "start_time and end_time are required", http.StatusBadRequest)
	}

	res, err := s.recorder.Trim(c.Request().Context(), controller.TrimRequest{
		RecordingID: id,
		Start:       *body.StartTime,
		End:         *body.EndTime,
		Duration:    body.Duration,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// getStats handles GET /api/v1/stats.
func (s *Server) getStats(c echo.Context) error {
	if s.stats == nil {
		return s.handleError(c, nil, "Statistics are not available", http.StatusServiceUnavailable)
	}
	st, err := s.stats.Stats(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
