package backend

import "github.com/radiorec/radiorec/internal/logger"

// GetLogger returns the backend module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("backend")
}
