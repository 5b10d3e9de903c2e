package metrics

import "time"

// Namespace prefixes every metric name.
const Namespace = "radiorec"

// Operation label values.
const (
	OpCapture = "capture"
	OpUpload  = "upload"
	OpNotify  = "notify"
	OpPublish = "publish"
	OpTrim    = "trim"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration.
const (
	BucketStart1ms = 0.001
	BucketStart1s  = 1.0
	BucketStart64B = 64.0
	BucketStart1KB = 1024.0
	BucketFactor2  = 2
	BucketFactor4  = 4
	BucketCount10  = 10
	BucketCount12  = 12
)

// ShutdownTimeout bounds graceful shutdown of metric consumers.
const ShutdownTimeout = 5 * time.Second
