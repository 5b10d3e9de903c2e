package upload

import "github.com/radiorec/radiorec/internal/logger"

// GetLogger returns the upload module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("upload")
}
