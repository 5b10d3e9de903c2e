// Package buildinfo contains build-time metadata separate from user configuration.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context holds values injected with -ldflags at build time.
type Context struct {
	// Version holds the Git version tag from build
	Version string
	// BuildDate is the time when the binary was built
	BuildDate string
	// Commit is the short Git revision
	Commit string
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetCommit returns the revision or UnknownValue.
func (c *Context) GetCommit() string {
	if c == nil || c.Commit == "" {
		return UnknownValue
	}
	return c.Commit
}

// Release is the release name reported to telemetry.
func (c *Context) Release() string {
	return "radiorec@" + c.GetVersion()
}

// UserAgent is sent on backend requests when none is configured.
func (c *Context) UserAgent() string {
	return "radiorec/" + c.GetVersion()
}

func (c *Context) String() string {
	return fmt.Sprintf("radiorec %s (commit %s, built %s)", c.GetVersion(), c.GetCommit(), c.GetBuildDate())
}
