package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/radiorec/radiorec/internal/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	// Detail is the server-supplied message, if one could be extracted.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// NotFound reports whether the backend answered 404.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsNotFound reports whether err wraps a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// DetailOf returns the server message carried by err, or "" if none.
func DetailOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// readAPIError consumes an error response and builds an enhanced error around an APIError.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Detail:     ParseErrorDetail(body),
	}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.Path = resp.Request.URL.Path
	}

	category := errors.CategoryHTTP
	switch {
	case resp.StatusCode == http.StatusNotFound:
		category = errors.CategoryNotFound
	case resp.StatusCode == http.StatusBadRequest:
		category = errors.CategoryValidation
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		category = errors.CategoryPermission
	}

	return errors.New(apiErr).
		Component("backend").
		Category(category).
		Context("status_code", resp.StatusCode).
		Context("path", apiErr.Path).
		Build()
}

// ParseErrorDetail extracts a human-readable message from a REST framework
// error body. It understands {"detail": ...}, {"error": ...}, field error
// maps such as {"file": ["too large"]} and bare lists of messages. Plain
// text bodies are returned trimmed.
func ParseErrorDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		if strings.HasPrefix(trimmed, "<") {
			return ""
		}
		return trimmed
	}

	switch v := decoded.(type) {
	case map[string]any:
		for _, key := range []string{"detail", "error", "message"} {
			if msg := flattenMessage(v[key]); msg != "" {
				return msg
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			msg := flattenMessage(v[k])
			if msg == "" {
				continue
			}
			if k == "non_field_errors" {
				parts = append(parts, msg)
				continue
			}
			parts = append(parts, k+": "+msg)
		}
		return strings.Join(parts, "; ")
	default:
		return flattenMessage(v)
	}
}

func flattenMessage(v any) string {
	switch m := v.(type) {
	case nil:
		return ""
	case string:
		return m
	case []any:
		parts := make([]string, 0, len(m))
		for _, item := range m {
			if s := flattenMessage(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		if d, ok := m["detail"]; ok {
			return flattenMessage(d)
		}
		return ""
	default:
		return fmt.Sprint(m)
	}
}
