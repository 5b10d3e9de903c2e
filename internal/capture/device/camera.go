package device

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/radiorec/radiorec/internal/capture"
)

// Facing modes understood by ResolveCamera.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// ResolveCamera picks the ffmpeg input for a video session on goos. A
// configured device always wins. Otherwise on Linux the V4L2 capture nodes
// under fsys are listed and "environment" takes the last one, anything else
// the first. fsys is rooted at "/".
func ResolveCamera(fsys fs.FS, goos, device, facing string) (capture.VideoInput, error) {
	in := capture.VideoInput{FacingMode: facing}
	switch goos {
	case "linux":
		in.Format = "v4l2"
		if device != "" {
			in.Device = device
			return in, nil
		}
		nodes := listV4L2(fsys)
		if len(nodes) == 0 {
			return in, fmt.Errorf("%w: no camera found under /dev", capture.ErrDeviceUnavailable)
		}
		in.Device = nodes[0]
		if facing == FacingEnvironment {
			in.Device = nodes[len(nodes)-1]
		}
		return in, nil
	case "darwin":
		in.Format = "avfoundation"
		in.Device = device
		if in.Device == "" {
			in.Device = "0"
			if facing == FacingEnvironment {
				in.Device = "1"
			}
		}
		return in, nil
	case "windows":
		if device == "" {
			return in, fmt.Errorf("%w: set capture.cameradevice to the DirectShow camera name", capture.ErrDeviceUnavailable)
		}
		in.Format = "dshow"
		in.Device = "video=" + device
		return in, nil
	default:
		return in, fmt.Errorf("%w: camera capture is not available on %s", capture.ErrDeviceUnavailable, goos)
	}
}

// listV4L2 returns /dev/videoN nodes in numeric order, skipping the metadata
// nodes that UVC drivers register next to each camera (sysfs index != 0).
func listV4L2(fsys fs.FS) []string {
	matches, err := fs.Glob(fsys, "dev/video*")
	if err != nil {
		return nil
	}
	type node struct {
		name string
		num  int
	}
	var nodes []node
	for _, m := range matches {
		name := path.Base(m)
		num, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}
		idx, err := fs.ReadFile(fsys, "sys/class/video4linux/"+name+"/index")
		if err == nil && strings.TrimSpace(string(idx)) != "0" {
			continue
		}
		nodes = append(nodes, node{name: name, num: num})
	}
	slices.SortFunc(nodes, func(a, b node) int { return a.num - b.num })

	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = "/dev/" + n.name
	}
	return out
}

// checkCamera opens a V4L2 node once so a missing video group membership is
// reported as a permission failure instead of an encoder crash.
func checkCamera(in capture.VideoInput) error {
	if in.Format != "v4l2" {
		return nil
	}
	f, err := os.Open(in.Device)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %w", capture.ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
	}
	_ = f.Close()
	return nil
}
