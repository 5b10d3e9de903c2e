package device

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/capture"
)

// laptopFS has a built-in webcam (video0, metadata video1) and a USB camera
// (video10, metadata video11).
func laptopFS() fstest.MapFS {
	index := func(v string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(v + "\n")} }
	return fstest.MapFS{
		"dev/video0":                          {},
		"dev/video1":                          {},
		"dev/video10":                         {},
		"dev/video11":                         {},
		"sys/class/video4linux/video0/index":  index("0"),
		"sys/class/video4linux/video1/index":  index("1"),
		"sys/class/video4linux/video10/index": index("0"),
		"sys/class/video4linux/video11/index": index("1"),
	}
}

func TestListV4L2SkipsMetadataNodes(t *testing.T) {
	assert.Equal(t, []string{"/dev/video0", "/dev/video10"}, listV4L2(laptopFS()))

	// Without sysfs every node is a candidate.
	assert.Equal(t, []string{"/dev/video2", "/dev/video3"}, listV4L2(fstest.MapFS{
		"dev/video3":                          {},
		"dev/video2":                          {},
	}))
}

func TestResolveCamera(t *testing.T) {
	tests := []struct {
		name   string
		fsys   fstest.MapFS
		goos   string
		device string
		facing string
		want   capture.VideoInput
	}{
		{"linux user", laptopFS(), "linux", "", FacingUser,
			capture.VideoInput{Format: "v4l2", Device: "/dev/video0", FacingMode: FacingUser}},
		{"linux no hint", laptopFS(), "linux", "", "",
			capture.VideoInput{Format: "v4l2", Device: "/dev/video0"}},
		{"linux environment", laptopFS(), "linux", "", FacingEnvironment,
			capture.VideoInput{Format: "v4l2", Device: "/dev/video10", FacingMode: FacingEnvironment}},
		{"linux configured", laptopFS(), "linux", "/dev/video4", FacingEnvironment,
			capture.VideoInput{Format: "v4l2", Device: "/dev/video4", FacingMode: FacingEnvironment}},
		{"darwin default", nil, "darwin", "", "",
			capture.VideoInput{Format: "avfoundation", Device: "0"}},
		{"darwin environment", nil, "darwin", "", FacingEnvironment,
			capture.VideoInput{Format: "avfoundation", Device: "1", FacingMode: FacingEnvironment}},
		{"windows configured", nil, "windows", "Integrated Camera", FacingUser,
			capture.VideoInput{Format: "dshow", Device: "video=Integrated Camera", FacingMode: FacingUser}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCamera(tt.fsys, tt.goos, tt.device, tt.facing)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCameraUnavailable(t *testing.T) {
	_, err := ResolveCamera(fstest.MapFS{}, "linux", "", FacingUser)
	require.ErrorIs(t, err, capture.ErrDeviceUnavailable)

	_, err = ResolveCamera(nil, "windows", "", "")
	require.ErrorIs(t, err, capture.ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "capture.cameradevice")

	_, err = ResolveCamera(nil, "plan9", "", "")
	require.ErrorIs(t, err, capture.ErrDeviceUnavailable)
}

func TestCheckCamera(t *testing.T) {
	missing := capture.VideoInput{Format: "v4l2", Device: filepath.Join(t.TempDir(), "video0")}
	require.ErrorIs(t, checkCamera(missing), capture.ErrDeviceUnavailable)

	present := filepath.Join(t.TempDir(), "video0")
	require.NoError(t, os.WriteFile(present, nil, 0o600))
	require.NoError(t, checkCamera(capture.VideoInput{Format: "v4l2", Device: present}))

	assert.NoError(t, checkCamera(capture.VideoInput{Format: "dshow", Device: "video=missing"}))
}
