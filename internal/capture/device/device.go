// Package device acquires microphone streams through miniaudio (malgo) and
// resolves the camera that ffmpeg reads for video sessions.
package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
)

// Info describes one capture device.
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// Acquirer opens capture devices with malgo. The zero value records mono
// 48 kHz from the default device.
type Acquirer struct {
	DeviceName string // substring of the device name or its decoded ID, empty for the default
	// CameraDevice is the ffmpeg camera input for video sessions, e.g.
	// /dev/video2 on Linux or the DirectShow name on Windows.
	CameraDevice string
	SampleRate int
	Channels   int
	Log        logger.Logger
}

func (a *Acquirer) logger() logger.Logger {
	if a.Log != nil {
		return a.Log
	}
	return logger.Global().Module("capture.device")
}

// preferredBackends picks the native backend for the platform, nil lets
// miniaudio choose.
func preferredBackends() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

func initContext(log logger.Logger) (*malgo.AllocatedContext, error) {
	mctx, err := malgo.InitContext(preferredBackends(), malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: audio context init failed: %w", capture.ErrDeviceUnavailable, err)
	}
	return mctx, nil
}

func freeContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}

// decodeID renders a device ID the way ALSA and WASAPI name it.
func decodeID(info *malgo.DeviceInfo) string {
	raw, err := hex.DecodeString(info.ID.String())
	if err != nil {
		return info.ID.String()
	}
	return strings.TrimRight(string(raw), "\x00")
}

// List returns the available capture devices.
func List() ([]Info, error) {
	log := logger.Global().Module("capture.device")
	mctx, err := initContext(log)
	if err != nil {
		return nil, err
	}
	defer freeContext(mctx)

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("operation", "list-devices").
			Build()
	}

	out := make([]Info, 0, len(infos))
	for i := range infos {
		out = append(out, Info{
			ID:        decodeID(&infos[i]),
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault != 0,
		})
	}
	return out, nil
}

// Acquire opens the configured microphone and starts delivering PCM. For
// video it also resolves the camera and attaches it to the stream; the
// encoder opens the camera itself.
func (a *Acquirer) Acquire(ctx context.Context, c capture.Constraints) (capture.MediaStreamHandle, error) {
	if !c.Audio {
		return nil, fmt.Errorf("%w: no track requested", capture.ErrDeviceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var camera capture.VideoInput
	if c.Video {
		var err error
		camera, err = ResolveCamera(os.DirFS("/"), runtime.GOOS, a.CameraDevice, c.FacingMode)
		if err != nil {
			return nil, err
		}
		if err := checkCamera(camera); err != nil {
			return nil, err
		}
	}

	log := a.logger()
	format := capture.AudioFormat{SampleRate: a.SampleRate, Channels: a.Channels}
	if format.SampleRate == 0 {
		format.SampleRate = 48000
	}
	if format.Channels == 0 {
		format.Channels = 1
	}

	mctx, err := initContext(log)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)   //nolint:gosec // validated 1 or 2
	cfg.SampleRate = uint32(format.SampleRate)        //nolint:gosec // validated range
	cfg.Alsa.NoMMap = 1

	label := "default"
	if a.DeviceName != "" {
		info, err := a.selectDevice(mctx)
		if err != nil {
			freeContext(mctx)
			return nil, err
		}
		cfg.Capture.DeviceID = info.ID.Pointer()
		label = info.Name()
	}

	var dev *malgo.Device
	track := capture.NewTrack(capture.MediaAudio, label)
	stream := capture.NewStream(fmt.Sprintf("malgo-%s", label), format, func() {
		if dev != nil {
			_ = dev.Stop()
			dev.Uninit()
		}
		freeContext(mctx)
	}, track)
	if c.Video {
		stream.AttachCamera(camera)
	}

	dev, err = malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			stream.Publish(input)
		},
		Stop: func() {
			stream.End()
		},
	})
	if err != nil {
		dev = nil
		stream.Release()
		return nil, classifyDeviceError(err)
	}

	if err := dev.Start(); err != nil {
		stream.Release()
		return nil, classifyDeviceError(err)
	}

	// The platform call may have outlived the request.
	if err := ctx.Err(); err != nil {
		stream.Release()
		return nil, err
	}

	log.Info("capture device started",
		logger.String("device", label),
		logger.String("camera", camera.Device),
		logger.Int("sample_rate", format.SampleRate),
		logger.Int("channels", format.Channels))
	return stream, nil
}

func (a *Acquirer) selectDevice(mctx *malgo.AllocatedContext) (*malgo.DeviceInfo, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
	}
	want := strings.ToLower(a.DeviceName)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), want) ||
			strings.Contains(strings.ToLower(decodeID(&infos[i])), want) {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no capture device matches %q", capture.ErrDeviceUnavailable, a.DeviceName)
}

// classifyDeviceError maps miniaudio failures onto capture sentinels.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %w", capture.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
}
