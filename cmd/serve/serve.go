package serve

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/radiorec/radiorec/internal/api"
	"github.com/radiorec/radiorec/internal/app"
	"github.com/radiorec/radiorec/internal/controller"
	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/logger"
)

// drainGrace is added to the upload timeout when a recording is still
// running at shutdown.
const drainGrace = 30 * time.Second

// Command runs the control API with a long-lived recording controller.
func Command(ctx *app.Context) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API",
		Long: `Run the HTTP control API. Recordings are started and stopped over HTTP,
levels are streamed as server-sent events and finished recordings are
uploaded automatically. On shutdown an active recording is stopped and
uploaded before the process exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				ctx.Settings.WebServer.Listen = listen
			}
			return Run(cmd.Context(), ctx)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides webserver.listen)")
	return cmd
}

// Run blocks until parent is cancelled or the server fails.
func Run(parent context.Context, ctx *app.Context) error {
	log := logger.Global().Module("serve")

	if !ctx.Settings.WebServer.Enabled {
		log.Warn("webserver.enabled is false, starting the control API anyway because serve was requested")
	}

	a, err := app.New(ctx.Settings, ctx.Build)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := api.NewLevelHub()
	c, err := a.NewController(parent, controller.WithMeterView(hub))
	if err != nil {
		return err
	}

	opts := []api.Option{api.WithStats(a.Backend), api.WithLevelHub(hub)}
	if a.Metrics != nil {
		opts = append(opts, api.WithMetrics(a.Metrics))
	}
	server, err := api.New(api.ConfigFromSettings(ctx.Settings), c, opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(parent)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return drain(c, ctx.Settings.Upload.Timeout+drainGrace, log)
	})

	log.Info("radiorec serving",
		logger.String("version", ctx.Build.GetVersion()),
		logger.String("listen", ctx.Settings.WebServer.Listen))
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// drain stops an active recording and waits for its upload, or for an
// upload that is already running.
func drain(c *controller.Controller, timeout time.Duration, log logger.Logger) error {
	switch err := c.Stop(); {
	case err == nil:
		log.Info("stopping active recording before shutdown")
	case !errors.Is(err, controller.ErrNotRecording):
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		log.Warn("recording did not finish before shutdown", logger.Error(err))
		return err
	}
	return nil
}
