// Package conf provides configuration management for radiorec.
package conf

import "github.com/radiorec/radiorec/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time so it follows the
// central logger once the CLI has installed it.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
