package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"clinicaltrials-downloader/internal/download"
	"clinicaltrials-downloader/internal/registry"
	"clinicaltrials-downloader/internal/status"
)

type serveOptions struct {
	*options

	schedule   string
	statusAddr string
	slim       bool
}

// NewServeCommand runs the refresh daemon: download now, then again on a
// cron schedule, with the status dashboard up throughout.
func NewServeCommand(ctx context.Context) *cobra.Command {
	o := &serveOptions{options: newOptions()}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the local dump fresh on a schedule and serve the status dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}
			return o.run(ctx)
		},
	}

	o.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&o.schedule, "schedule", "0 3 * * *", "cron expression for refresh runs")
	cmd.Flags().StringVar(&o.statusAddr, "status-addr", "localhost:8799", "address for the status dashboard")
	cmd.Flags().BoolVar(&o.slim, "slim", false, "download the slim field list instead of full records")

	return cmd
}

func (o *serveOptions) run(ctx context.Context) error {
	tracker := status.NewTracker()
	srv := status.NewServer(tracker, o.log.WithName("status"))
	if err := srv.Start(o.statusAddr); err != nil {
		return errors.Wrap(err, "start status listener")
	}

	runner := o.newRunner()
	runner.Observe(tracker)

	opts := download.RunOptions{PageSize: o.config.PageSize, Fields: o.config.Fields}
	if o.slim {
		opts.Fields = registry.SlimFields
	}

	refresh := func(force bool) {
		runOpts := opts
		runOpts.Force = force
		if _, err := runner.Run(ctx, runOpts); err != nil && ctx.Err() == nil {
			o.log.Error(err, "refresh failed")
		}
	}

	// First run fills an empty cache but does not force a refresh, so a
	// restart right after a scheduled run stays cheap.
	refresh(false)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(o.schedule, func() { refresh(true) }); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", o.schedule)
	}
	scheduler.Start()
	o.log.Info("refresh scheduled", "schedule", o.schedule)

	<-ctx.Done()

	cronCtx := scheduler.Stop()
	<-cronCtx.Done() // let an in-flight scheduled run finish its teardown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
