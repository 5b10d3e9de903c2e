package app

import (
	"sync"

	"github.com/radiorec/radiorec/internal/buildinfo"
	"github.com/radiorec/radiorec/internal/conf"
)

// Context carries what every command needs: build metadata known at start
// and settings loaded once the flags are parsed.
type Context struct {
	Build    *buildinfo.Context
	Settings *conf.Settings

	mu       sync.Mutex
	shutdown []func()
}

// NewContext returns a Context without settings.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// OnShutdown registers fn to run when Shutdown is called, newest first.
func (c *Context) OnShutdown(fn func()) {
	c.mu.Lock()
	c.shutdown = append(c.shutdown, fn)
	c.mu.Unlock()
}

// Shutdown runs the registered functions once.
func (c *Context) Shutdown() {
	c.mu.Lock()
	fns := c.shutdown
	c.shutdown = nil
	c.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
