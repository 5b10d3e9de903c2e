package capture

import (
	"fmt"

	"github.com/radiorec/radiorec/internal/errors"
)

// FailureKind classifies why a session or upload did not succeed.
// A FailureKind is itself an error so it can be used as an errors.Is target.
type FailureKind int

const (
	KindPermissionDenied FailureKind = iota + 1
	KindDeviceUnavailable
	KindEmptyCapture
	KindCancelled
	KindUploadTransportFailure
	KindValidationFailure
)

// Platform implementations wrap these so the session can classify acquisition errors.
var (
	ErrPermissionDenied  error = KindPermissionDenied
	ErrDeviceUnavailable error = KindDeviceUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindDeviceUnavailable:
		return "DeviceUnavailable"
	case KindEmptyCapture:
		return "EmptyCapture"
	case KindCancelled:
		return "Cancelled"
	case KindUploadTransportFailure:
		return "UploadTransportFailure"
	case KindValidationFailure:
		return "ValidationFailure"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

func (k FailureKind) Error() string {
	return k.String()
}

// Message is the short text shown to the user for this kind.
func (k FailureKind) Message() string {
	switch k {
	case KindPermissionDenied:
		return "Access to the microphone or camera was denied."
	case KindDeviceUnavailable:
		return "No usable capture device is available."
	case KindEmptyCapture:
		return "The recording is empty, nothing was captured."
	case KindCancelled:
		return "The recording was cancelled."
	case KindUploadTransportFailure:
		return "The recording could not be uploaded."
	case KindValidationFailure:
		return "The request is invalid."
	default:
		return "Unexpected error."
	}
}

func (k FailureKind) category() errors.ErrorCategory {
	switch k {
	case KindPermissionDenied:
		return errors.CategoryPermission
	case KindDeviceUnavailable:
		return errors.CategoryAudioSource
	case KindEmptyCapture:
		return errors.CategoryAudio
	case KindCancelled:
		return errors.CategoryCancellation
	case KindUploadTransportFailure:
		return errors.CategoryUpload
	case KindValidationFailure:
		return errors.CategoryValidation
	default:
		return errors.CategoryGeneric
	}
}

// Failure is the terminal error of a session, upload or trim request.
type Failure struct {
	Kind   FailureKind
	Detail string // server or platform supplied text, may be empty
	Err    error  // underlying cause, may be nil
}

// NewFailure builds a Failure.
func NewFailure(kind FailureKind, detail string, cause error) *Failure {
	return &Failure{Kind: kind, Detail: detail, Err: cause}
}

func (f *Failure) Error() string {
	switch {
	case f.Detail != "":
		return f.Kind.String() + ": " + f.Detail
	case f.Err != nil:
		return f.Kind.String() + ": " + f.Err.Error()
	default:
		return f.Kind.String()
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches the failure's kind.
func (f *Failure) Is(target error) bool {
	k, ok := target.(FailureKind)
	return ok && k == f.Kind
}

// Message returns the user-facing text, including the detail when present.
func (f *Failure) Message() string {
	if f.Detail != "" {
		return f.Kind.Message() + " " + f.Detail
	}
	return f.Kind.Message()
}

// Report sends the failure through the enhanced error pipeline so it is
// logged by hooks and forwarded to telemetry. Cancellations are not reported.
func (f *Failure) Report(component string, ctx map[string]any) {
	if f == nil || f.Kind == KindCancelled {
		return
	}
	b := errors.New(f).Component(component).Category(f.Kind.category())
	for k, v := range ctx {
		b = b.Context(k, v)
	}
	_ = b.Build()
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// classifyAcquireError maps a platform acquisition error to a failure kind.
// Unknown errors are treated as DeviceUnavailable.
func classifyAcquireError(err error) FailureKind {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	default:
		return KindDeviceUnavailable
	}
}
