// Package errors wraps errors with a category, the component that raised them
// and a little context, and forwards them to Sentry when reporting is on.
//
//	return errors.New(err).
//	    Component("upload").
//	    Category(errors.CategoryUpload).
//	    Context("recording_type", "antenne").
//	    Build()
//
// The standard library helpers (Is, As, Join...) are re-exported so callers
// need a single import.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// EnhancedError is an error with reporting metadata attached.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time

	component string
	reported  atomic.Bool
	ctxMu     sync.RWMutex
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, otherwise defers to the
// wrapped chain.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return Is(ee.Err, target)
}

// GetComponent names the package the error was raised in.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetContext returns a copy of the attached context.
func (ee *EnhancedError) GetContext() map[string]any {
	ee.ctxMu.RLock()
	defer ee.ctxMu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported records that a reporter has seen this error; it returns false
// if another reporter got there first.
func (ee *EnhancedError) MarkReported() bool {
	return ee.reported.CompareAndSwap(false, true)
}

// IsReported reports whether MarkReported has been called.
func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder around err.
func New(err error) *ErrorBuilder { return &ErrorBuilder{err: err} }

// Newf starts a builder around a formatted error. %w is honoured.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the raising package. When unset, Build looks it up from
// the call stack.
func (b *ErrorBuilder) Component(name string) *ErrorBuilder {
	b.component = name
	return b
}

// Category sets the category. When unset, Build infers one.
func (b *ErrorBuilder) Category(c ErrorCategory) *ErrorBuilder {
	b.category = c
	return b
}

// Context attaches one key/value pair.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any, 4)
	}
	b.context[key] = value
	return b
}

// FileContext records what kind of file failed without leaking its path:
// the extension and a coarse size bucket.
func (b *ErrorBuilder) FileContext(path string, size int64) *ErrorBuilder {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext != "" {
		b.Context("file_extension", ext)
	}
	if size > 0 {
		b.Context("file_size", sizeBucket(size))
	}
	return b
}

// Timing records the operation that failed and how long it ran. The
// operation also names the Sentry issue.
func (b *ErrorBuilder) Timing(operation string, d time.Duration) *ErrorBuilder {
	b.Context("operation", operation)
	b.Context("duration_ms", d.Milliseconds())
	return b
}

// Build finalises the error and hands it to the active reporter, if any.
func (b *ErrorBuilder) Build() *EnhancedError {
	if b.component == "" {
		b.component = callerComponent()
	}
	if b.category == "" {
		b.category = inferCategory(b.err, b.component)
	}
	ee := &EnhancedError{
		Err:       b.err,
		Category:  b.category,
		Context:   b.context,
		Timestamp: time.Now(),
		component: b.component,
	}
	dispatch(ee)
	return ee
}

func sizeBucket(n int64) string {
	const mib = 1 << 20
	switch {
	case n < 1<<10:
		return "<1KiB"
	case n < mib:
		return "<1MiB"
	case n < 10*mib:
		return "<10MiB"
	case n < 100*mib:
		return "<100MiB"
	default:
		return ">=100MiB"
	}
}

// IsCategory reports whether err's chain holds an EnhancedError of category c.
func IsCategory(err error, c ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == c
}

// IsNotFound is IsCategory(err, CategoryNotFound).
func IsNotFound(err error) bool { return IsCategory(err, CategoryNotFound) }

// NewStd returns a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }

func Join(errs ...error) error { return stderrors.Join(errs...) }
