// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultTitleTemplate renders as "Enregistrement antenne - 17/10/2026 14:05:09".
const DefaultTitleTemplate = "Enregistrement {type} - {jour}/{mois}/{annee} {heure}:{minutes}:{secondes}"

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("main.name", "radiorec")
	v.SetDefault("main.debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.timezone", "Local")

	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.useragent", "radiorec")

	v.SetDefault("capture.device", "")
	v.SetDefault("capture.samplerate", 48000)
	v.SetDefault("capture.channels", 1)
	v.SetDefault("capture.format", "webm")
	v.SetDefault("capture.quality", "high")
	v.SetDefault("capture.type", "antenne")
	v.SetDefault("capture.mediatype", "audio")
	v.SetDefault("capture.facingmode", "")
	v.SetDefault("capture.cameradevice", "")
	v.SetDefault("capture.ffmpegpath", "")
	v.SetDefault("capture.titletemplate", DefaultTitleTemplate)
	v.SetDefault("capture.filenametemplate", "")
	v.SetDefault("capture.retentiondays", 0)

	v.SetDefault("meter.interval", 50*time.Millisecond)
	v.SetDefault("meter.fftsize", 256)
	v.SetDefault("meter.smoothing", 0.8)

	v.SetDefault("upload.timeout", 5*time.Minute)

	v.SetDefault("webserver.enabled", false)
	v.SetDefault("webserver.listen", "127.0.0.1:8090")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "radiorec")
	v.SetDefault("mqtt.clientid", "radiorec")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.urls", []string{})

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("metrics.enabled", true)
}
