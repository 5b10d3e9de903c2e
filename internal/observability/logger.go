package observability

import "github.com/radiorec/radiorec/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("observability")
