package controller

import "github.com/radiorec/radiorec/internal/logger"

// GetLogger returns the controller module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("controller")
}
