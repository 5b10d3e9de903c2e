package record

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/radiorec/radiorec/cmd/output"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/capture"
	"github.com/radiorec/radiorec/internal/controller"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/upload"
)

const (
	redrawInterval = 100 * time.Millisecond
	// settleGrace is added to the upload timeout while waiting for the
	// encoder to flush after stop.
	settleGrace = 30 * time.Second
)

type recordFlags struct {
	recordingType string
	format        string
	quality       string
	name          string
	retention     int
	video         bool
	facingMode    string
	duration      time.Duration
}

// Command records from the capture device until interrupted, then uploads.
func Command(ctx *app.Context) *cobra.Command {
	var flags recordFlags

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the capture device and upload the result",
		Long: `Record from the configured capture device with a live level meter.
Press Ctrl-C to stop; the recording is uploaded as soon as it is finalized.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.recordingType, "type", "t", "", "Recording type: antenne, emission or reunion")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Container: webm, ogg, mp3, flac or wav")
	cmd.Flags().StringVarP(&flags.quality, "quality", "q", "", "Bitrate tier: high, medium or low")
	cmd.Flags().StringVarP(&flags.name, "name", "n", "", "Custom name")
	cmd.Flags().IntVar(&flags.retention, "retention", 0, "Days to keep the recording, 0 keeps it forever")
	cmd.Flags().BoolVar(&flags.video, "video", false, "Record video (always webm)")
	cmd.Flags().StringVar(&flags.facingMode, "facing-mode", "", "Camera hint for video: user or environment")
	cmd.Flags().DurationVar(&flags.duration, "duration", 0, "Stop automatically after this long")
	return cmd
}

// applyFlags overrides the configured selections with the flags that were set.
func applyFlags(cmd *cobra.Command, f recordFlags, sel controller.Selections) controller.Selections {
	changed := cmd.Flags().Changed
	if changed("type") {
		sel.Type = f.recordingType
	}
	if changed("format") {
		sel.Format = f.format
	}
	if changed("quality") {
		sel.Quality = capture.BitrateTier(f.quality)
	}
	if changed("name") {
		sel.CustomName = f.name
	}
	if changed("retention") {
		sel.RetentionDays = f.retention
	}
	if changed("video") {
		sel.MediaType = capture.MediaAudio
		if f.video {
			sel.MediaType = capture.MediaVideo
		}
	}
	if changed("facing-mode") {
		sel.FacingMode = f.facingMode
	}
	return sel
}

func run(cmd *cobra.Command, ctx *app.Context, flags recordFlags) error {
	a, err := app.New(ctx.Settings, ctx.Build)
	if err != nil {
		return err
	}
	defer a.Close()

	out := output.NewFormatter(cmd.OutOrStdout(), false)
	meter := newTerminalMeter(cmd.OutOrStdout())
	uploads := make(chan upload.Outcome, 1)

	c, err := a.NewController(cmd.Context(),
		controller.WithMeterView(meter),
		controller.WithHooks(controller.Hooks{
			OnUpload: func(_ *capture.Descriptor, o upload.Outcome) {
				select {
				case uploads <- o:
				default:
				}
			},
		}),
	)
	if err != nil {
		return err
	}

	if err := c.SetSelections(applyFlags(cmd, flags, c.Selections())); err != nil {
		return err
	}

	id, err := c.Start(cmd.Context())
	if err != nil {
		return err
	}
	out.Info(fmt.Sprintf("Recording %s, press Ctrl-C to stop", id))

	finished := make(chan struct{})
	go func() {
		_ = c.Wait(context.Background())
		close(finished)
	}()

	var limit <-chan time.Time
	if flags.duration > 0 {
		timer := time.NewTimer(flags.duration)
		defer timer.Stop()
		limit = timer.C
	}

	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()

	stopped := false
	for !stopped {
		select {
		case <-cmd.Context().Done():
			stopped = true
		case <-limit:
			stopped = true
		case <-finished:
			// the session ended on its own, e.g. the device went away
			meter.Clear()
			return report(out, c, uploads)
		case <-ticker.C:
			snap := c.State().Session
			meter.Draw(time.Duration(snap.Elapsed)*time.Second, snap.Bytes)
		}
	}

	meter.Clear()
	if err := c.Stop(); err != nil && !errors.Is(err, controller.ErrNotRecording) {
		return err
	}
	if !meter.tty {
		out.Info("Stopping, finalizing and uploading...")
	}
	if err := waitFinished(meter, finished, ctx.Settings.Upload.Timeout+settleGrace); err != nil {
		return err
	}
	return report(out, c, uploads)
}

// waitFinished blocks until the controller settled, animating a spinner on
// terminals.
func waitFinished(meter *terminalMeter, finished <-chan struct{}, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var frames <-chan time.Time
	var spin *output.Spinner
	if meter.tty {
		spin = output.NewSpinner(meter.out, "Finalizing and uploading")
		ticker := time.NewTicker(redrawInterval)
		defer ticker.Stop()
		frames = ticker.C
		defer spin.Cleanup()
	}

	for {
		select {
		case <-finished:
			return nil
		case <-deadline.C:
			return errors.Newf("timed out waiting for the recording to finish").
				Component("cli").
				Category(errors.CategoryTimeout).
				Build()
		case <-frames:
			spin.Update()
		}
	}
}

// report prints the upload outcome or the controller's failure message.
func report(out *output.Formatter, c *controller.Controller, uploads <-chan upload.Outcome) error {
	select {
	case o := <-uploads:
		if err := out.Upload(o); err != nil {
			return err
		}
		if !o.OK() {
			return o.Err()
		}
		return nil
	default:
	}

	st := c.State()
	if st.Session.Failure != nil {
		return st.Session.Failure
	}
	if msg := c.Message(); msg != "" {
		return errors.Newf("%s", msg).Component("cli").Category(errors.CategoryAudio).Build()
	}
	return nil
}
