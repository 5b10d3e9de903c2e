// Package metrics provides the Prometheus collectors of radiorec.
package metrics

import "github.com/radiorec/radiorec/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("metrics")
