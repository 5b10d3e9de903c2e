package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/buildinfo"
)

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := RootCommand(app.NewContext(&buildinfo.Context{Version: "1.0.0"}))

	for _, path := range [][]string{
		{"record"}, {"serve"}, {"upload"}, {"trim"}, {"process"}, {"stats"},
		{"settings", "get"}, {"settings", "set"},
		{"recordings", "list"}, {"recordings", "get"}, {"recordings", "delete"}, {"recordings", "download"},
		{"devices"}, {"config", "init"}, {"version"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestSkipSetupCommands(t *testing.T) {
	t.Parallel()

	root := RootCommand(app.NewContext(&buildinfo.Context{}))

	initCmd, _, err := root.Find([]string{"config", "init"})
	require.NoError(t, err)
	assert.True(t, skipped(initCmd))

	statsCmd, _, err := root.Find([]string{"stats"})
	require.NoError(t, err)
	assert.False(t, skipped(statsCmd))
}

func TestVersionAndConfigInitRunWithoutSettings(t *testing.T) {
	t.Parallel()

	ctx := app.NewContext(&buildinfo.Context{Version: "1.4.2", Commit: "abc"})

	var out bytes.Buffer
	root := RootCommand(ctx)
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "radiorec 1.4.2 (commit abc")

	path := filepath.Join(t.TempDir(), "config.yaml")
	root = RootCommand(ctx)
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", path})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend:")
	assert.Nil(t, ctx.Settings)

	// existing files are kept without --force
	root = RootCommand(ctx)
	root.SetArgs([]string{"config", "init", path})
	require.Error(t, root.Execute())
}
