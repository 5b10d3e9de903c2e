package upload

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/radiorec/radiorec/cmd/output"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/capture"
)

// Command uploads existing audio files.
func Command(ctx *app.Context) *cobra.Command {
	var (
		f      app.FileUpload
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an existing audio file",
		Long:  "Upload an audio file (" + strings.Join(capture.UploadFormats, ", ") + ") as a new recording.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(ctx.Settings, ctx.Build)
			if err != nil {
				return err
			}
			defer a.Close()

			f.Path = args[0]
			if !cmd.Flags().Changed("retention") {
				f.RetentionDays = ctx.Settings.Capture.RetentionDays
			}
			out, err := a.UploadFile(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := output.NewFormatter(cmd.OutOrStdout(), asJSON).Upload(out); err != nil {
				return err
			}
			return out.Err()
		},
	}

	cmd.Flags().StringVarP(&f.Title, "title", "t", "", "Title (default: file name without extension)")
	cmd.Flags().StringVar(&f.Type, "type", "", "Recording type: antenne, emission or reunion")
	cmd.Flags().StringVarP(&f.CustomName, "name", "n", "", "Custom name")
	cmd.Flags().IntVar(&f.RetentionDays, "retention", 0, "Days to keep the recording, 0 keeps it forever")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
