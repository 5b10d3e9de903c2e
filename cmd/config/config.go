package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/radiorec/radiorec/internal/conf"
)

// Command groups configuration file helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(initCommand(), pathsCommand())
	return cmd
}

func initCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Long:  "Write the commented default configuration to path, or to the user config directory when no path is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := conf.UserConfigFile()
			if len(args) == 1 {
				path = args[0]
			}
			if err := conf.WriteDefaultConfig(path, force); err != nil {
				return err
			}
			abs, _ := filepath.Abs(path)
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", abs)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func pathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "List the directories searched for config.yaml",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range conf.GetDefaultConfigPaths() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
		},
	}
}
