package recordings

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radiorec/radiorec/cmd/output"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/controller"
)

// TrimCommand keeps only part of a stored recording.
func TrimCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "trim <id> <start> <end>",
		Short: "Keep only the part between start and end seconds",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			start, err := parseSeconds("start", args[1])
			if err != nil {
				return err
			}
			end, err := parseSeconds("end", args[2])
			if err != nil {
				return err
			}

			req := controller.TrimRequest{RecordingID: id, Start: start, End: end}
			if err := req.Validate(); err != nil {
				return err
			}

			return withApp(ctx, func(a *app.App) error {
				if r, err := a.Backend.GetRecording(cmd.Context(), id); err == nil {
					if d, ok := r.Duration(); ok {
						req.Duration = d.Seconds()
						if err := req.Validate(); err != nil {
							return err
						}
					}
				}
				res, err := a.Backend.Trim(cmd.Context(), req.RecordingID, req.Start, req.End)
				if err != nil {
					return err
				}
				msg := fmt.Sprintf("Trim of recording %d to %.2fs-%.2fs accepted", res.RecordingID, res.StartTime, res.EndTime)
				output.NewFormatter(cmd.OutOrStdout(), false).Success(msg)
				return nil
			})
		},
	}
}

// ProcessCommand queues server-side analysis.
func ProcessCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "process <id>",
		Short: "Queue server-side analysis of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(ctx, func(a *app.App) error {
				res, err := a.Backend.Process(cmd.Context(), id)
				if err != nil {
					return err
				}
				msg := res.Message
				if msg == "" {
					msg = fmt.Sprintf("Processing of recording %d queued", id)
				}
				output.NewFormatter(cmd.OutOrStdout(), false).Success(msg)
				return nil
			})
		},
	}
}

// StatsCommand prints aggregate statistics.
func StatsCommand(ctx *app.Context) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recording statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(a *app.App) error {
				s, err := a.Backend.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return output.NewFormatter(cmd.OutOrStdout(), asJSON).Stats(s)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
