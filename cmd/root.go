package cmd

import (
	"github.com/spf13/cobra"

	"github.com/radiorec/radiorec/cmd/config"
	"github.com/radiorec/radiorec/cmd/devices"
	"github.com/radiorec/radiorec/cmd/record"
	"github.com/radiorec/radiorec/cmd/recordings"
	"github.com/radiorec/radiorec/cmd/serve"
	"github.com/radiorec/radiorec/cmd/settings"
	"github.com/radiorec/radiorec/cmd/upload"
	"github.com/radiorec/radiorec/cmd/version"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/conf"
	"github.com/radiorec/radiorec/internal/logger"
)

// skipSetup marks commands that run without loading the configuration.
const skipSetup = "radiorec/skip-setup"

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	var (
		configFile string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:           "radiorec",
		Short:         "Record, meter and upload broadcast audio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml (default: search ./, ~/.config/radiorec, /etc/radiorec)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	configCmd := config.Command()
	versionCmd := version.Command(ctx)
	markSkipSetup(configCmd)
	markSkipSetup(versionCmd)

	subcommands := []*cobra.Command{
		record.Command(ctx),
		serve.Command(ctx),
		upload.Command(ctx),
		recordings.Command(ctx),
		recordings.TrimCommand(ctx),
		recordings.ProcessCommand(ctx),
		recordings.StatsCommand(ctx),
		settings.Command(ctx),
		devices.Command(ctx),
		configCmd,
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if skipped(cmd) {
			return nil
		}
		return initialize(ctx, configFile, debug)
	}

	return rootCmd
}

// initialize loads settings and installs logging and telemetry before any
// subcommand runs.
func initialize(ctx *app.Context, configFile string, debug bool) error {
	s, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	if debug {
		s.Main.Debug = true
		s.Log.Level = "debug"
	}
	ctx.Settings = s

	closeLog, err := app.SetupLogging(s)
	if err != nil {
		return err
	}
	ctx.OnShutdown(closeLog)
	ctx.OnShutdown(app.SetupSentry(s, ctx.Build))

	if s.ConfigFile != "" {
		app.GetLogger().Debug("configuration loaded", logger.String("file", s.ConfigFile))
	}
	return nil
}

func markSkipSetup(cmd *cobra.Command) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[skipSetup] = "true"
}

// skipped reports whether cmd or one of its parents skips setup.
func skipped(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipSetup] == "true" {
			return true
		}
	}
	return false
}
