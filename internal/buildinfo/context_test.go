package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{"nil context", nil, UnknownValue},
		{"empty context", &Context{}, UnknownValue},
		{"set", &Context{Version: "1.2.0"}, "1.2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ctx.GetVersion())
		})
	}
}

func TestContextStrings(t *testing.T) {
	t.Parallel()

	c := &Context{Version: "1.2.0", BuildDate: "2026-10-17", Commit: "abc123"}
	assert.Equal(t, "radiorec@1.2.0", c.Release())
	assert.Equal(t, "radiorec/1.2.0", c.UserAgent())
	assert.Equal(t, "radiorec 1.2.0 (commit abc123, built 2026-10-17)", c.String())

	var empty *Context
	assert.Equal(t, UnknownValue, empty.GetBuildDate())
	assert.Equal(t, UnknownValue, empty.GetCommit())
}
