package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter receives every error built while it is installed.
type Reporter interface {
	Report(ee *EnhancedError)
}

// ErrorHook observes built errors; tests and metrics use it.
type ErrorHook func(ee *EnhancedError)

var (
	reportMu sync.RWMutex
	reporter Reporter
	hooks    []ErrorHook
)

// SetReporter installs r, or removes the current one when r is nil.
func SetReporter(r Reporter) {
	reportMu.Lock()
	reporter = r
	reportMu.Unlock()
}

// AddErrorHook registers h for every subsequent Build.
func AddErrorHook(h ErrorHook) {
	reportMu.Lock()
	hooks = append(hooks, h)
	reportMu.Unlock()
}

// ClearErrorHooks removes all hooks.
func ClearErrorHooks() {
	reportMu.Lock()
	hooks = nil
	reportMu.Unlock()
}

func dispatch(ee *EnhancedError) {
	reportMu.RLock()
	r, hs := reporter, hooks
	reportMu.RUnlock()

	for _, h := range hs {
		h(ee)
	}
	if r != nil {
		r.Report(ee)
	}
}

// InitSentry starts the Sentry SDK and installs it as the reporter. Events
// carry no host name or user, and messages are scrubbed first.
func InitSentry(dsn, release string) error {
	if dsn == "" {
		return fmt.Errorf("sentry dsn is empty")
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.ServerName = ""
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	SetReporter(sentryReporter{})
	return nil
}

// FlushSentry blocks until queued events are sent or timeout passes.
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

type sentryReporter struct{}

func (sentryReporter) Report(ee *EnhancedError) {
	if !ee.MarkReported() {
		return
	}
	msg := ScrubMessage(ee.Err.Error())
	title := issueTitle(ee)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(map[string]string{
			"component":  ee.GetComponent(),
			"category":   string(ee.Category),
			"error_type": fmt.Sprintf("%T", ee.Err),
		})
		for k, v := range ee.GetContext() {
			if s, ok := v.(string); ok {
				v = ScrubMessage(s)
			}
			scope.SetContext(k, sentry.Context{"value": v})
		}
		scope.SetFingerprint([]string{ee.GetComponent(), string(ee.Category), title})

		event := sentry.NewEvent()
		event.Level = sentryLevel(ee.Category)
		event.Message = msg
		event.Exception = []sentry.Exception{{Type: title, Value: msg}}
		sentry.CaptureEvent(event)
	})
}

// issueTitle groups events in Sentry, e.g. "backend: http-request".
func issueTitle(ee *EnhancedError) string {
	component := ee.GetComponent()
	if component == "" || component == ComponentUnknown {
		return fmt.Sprintf("%T", ee.Err)
	}
	title := component + ": " + string(ee.Category)
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		title += " (" + op + ")"
	}
	return title
}

func sentryLevel(c ErrorCategory) sentry.Level {
	switch {
	case c.userCaused():
		return sentry.LevelInfo
	case c.transient(), c == CategoryAudioSource, c == CategoryEncoder, c == CategoryFileIO:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var scrubbers = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(\w+://[^?\s]+)\?\S*`), "$1?[REDACTED]"},
	{regexp.MustCompile(`(\w+://)[^/@\s]+@`), "$1[REDACTED]@"},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(?i)(token|api[_-]?key|password|secret)([=:]\s*)\S+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`), "[REDACTED]"},
}

// ScrubMessage strips query strings, URL credentials, bearer tokens and
// key=value secrets so message can be logged or sent to third parties.
func ScrubMessage(message string) string {
	for _, s := range scrubbers {
		message = s.re.ReplaceAllString(message, s.with)
	}
	return strings.TrimSpace(message)
}
