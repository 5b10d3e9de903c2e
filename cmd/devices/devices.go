package devices

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/radiorec/radiorec/cmd/output"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/capture/device"
)

// Command lists the capture devices.
func Command(ctx *app.Context) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := device.List()
			if err != nil {
				return err
			}

			f := output.NewFormatter(cmd.OutOrStdout(), asJSON)
			if f.JSON() {
				return f.Encode(infos)
			}
			if len(infos) == 0 {
				f.Warning("No capture devices found")
				return nil
			}

			selected := ctx.Settings.Capture.Device
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tNAME\tID")
			for _, d := range infos {
				mark := ""
				if d.IsDefault {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, d.Name, d.ID)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if selected != "" {
				f.Info(fmt.Sprintf("\nConfigured device: %s", selected))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
