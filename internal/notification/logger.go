package notification

import "github.com/radiorec/radiorec/internal/logger"

func getLogger() logger.Logger {
	return logger.Global().Module("notification")
}
