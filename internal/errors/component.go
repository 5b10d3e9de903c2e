package errors

import (
	"runtime"
	"strings"
)

const (
	modulePath       = "github.com/radiorec/radiorec/"
	errorsPackage    = modulePath + "internal/errors."
	ComponentUnknown = "unknown"
)

// components maps package paths below the module to component names. The
// longest matching prefix wins so subpackages resolve before their parents.
var components = map[string]string{
	"internal/capture/device":  "capture.device",
	"internal/capture/encoder": "capture.encoder",
	"internal/capture":         "capture",
	"internal/meter":           "meter",
	"internal/upload":          "upload",
	"internal/backend":         "backend",
	"internal/controller":      "controller",
	"internal/conf":            "configuration",
	"internal/mqtt":            "mqtt",
	"internal/notification":    "notification",
	"internal/api":             "api",
	"internal/app":             "app",
	"cmd":                      "cli",
}

// callerComponent walks the stack to the first frame outside this package
// that belongs to the module.
func callerComponent() string {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fn := frame.Function
		if strings.HasPrefix(fn, modulePath) && !strings.HasPrefix(fn, errorsPackage) {
			return componentFor(fn)
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// componentFor resolves a fully qualified function name.
func componentFor(fn string) string {
	rel := strings.TrimPrefix(fn, modulePath)
	best, bestLen := ComponentUnknown, 0
	for prefix, name := range components {
		if len(prefix) <= bestLen || !strings.HasPrefix(rel, prefix) {
			continue
		}
		// require a package boundary: "internal/capture" must not match
		// "internal/capturetest"
		if rest := rel[len(prefix):]; rest != "" && rest[0] != '.' && rest[0] != '/' {
			continue
		}
		best, bestLen = name, len(prefix)
	}
	return best
}
