package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radiorec/radiorec/internal/app"
)

// Command prints build metadata.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), ctx.Build.String())
		},
	}
}
