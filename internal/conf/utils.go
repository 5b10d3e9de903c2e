package conf

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/radiorec/radiorec/internal/logger"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the config search paths in priority order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == osWindows {
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "radiorec"))
		} else {
			paths = append(paths, filepath.Join(homeDir, ".config", "radiorec"))
		}
	}

	if runtime.GOOS != osWindows {
		paths = append(paths, "/etc/radiorec")
	}
	return paths
}

// UserConfigFile is where `radiorec config init` writes by default.
func UserConfigFile() string {
	paths := GetDefaultConfigPaths()
	if len(paths) > 1 {
		return filepath.Join(paths[1], "config.yaml")
	}
	return "config.yaml"
}

// GetFfmpegBinaryName returns the binary name for ffmpeg based on the current OS.
func GetFfmpegBinaryName() string {
	if runtime.GOOS == osWindows {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// ValidateToolPath returns configuredPath when it points at a file, otherwise
// looks toolName up in PATH.
func ValidateToolPath(configuredPath, toolName string) (string, error) {
	if configuredPath != "" {
		if info, err := os.Stat(configuredPath); err == nil && !info.IsDir() {
			return configuredPath, nil
		}
		GetLogger().Warn("configured tool path invalid or not found, checking system PATH",
			logger.String("configured_path", configuredPath),
			logger.String("tool", toolName))
	}

	if p, err := exec.LookPath(toolName); err == nil {
		return p, nil
	}

	if configuredPath != "" {
		return "", fmt.Errorf("tool '%s' not found at configured path '%s' or in system PATH", toolName, configuredPath)
	}
	return "", fmt.Errorf("tool '%s' not found in system PATH and no path configured", toolName)
}

// moveFile moves a file from src to dst, working across devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	srcFile, err := os.Open(src) //nolint:gosec // temp file we created
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst) //nolint:gosec // config path
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("error copying file contents: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("error closing destination file: %w", err)
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("error removing source file after copy: %w", err)
	}
	return nil
}
