package metrics

// Recorder is the minimal surface components need to record outcomes
// without depending on a concrete collector.
type Recorder interface {
	// RecordOperation counts an operation ("upload", "notify") with its status ("success", "error").
	RecordOperation(operation, status string)

	// RecordDuration observes how long an operation took, in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError counts an error of errorType for operation.
	RecordError(operation, errorType string)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordOperation(string, string) {}
func (NoOpRecorder) RecordDuration(string, float64) {}
func (NoOpRecorder) RecordError(string, string) {}
