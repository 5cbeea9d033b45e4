package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"clinicaltrials-downloader/internal/download"
	"clinicaltrials-downloader/internal/registry"
	"clinicaltrials-downloader/internal/status"
)

type downloadOptions struct {
	*options

	force      bool
	slim       bool
	fields     []string
	pageSize   int
	statusAddr string
	noProgress bool
}

// NewDownloadCommand downloads the full registry into the local cache.
func NewDownloadCommand(ctx context.Context) *cobra.Command {
	o := &downloadOptions{options: newOptions()}

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the full ClinicalTrials.gov dump into the local cache",
		Long: `Download pages through the ClinicalTrials.gov v2 API and write the
results to a gzip-compressed JSON dump in the data home, along with a small
sample file and a provenance manifest.

The registry adds records daily and result order is not guaranteed, so there
is no incremental mode: re-run with --force to refresh the cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}
			return o.run(ctx, cmd)
		},
	}

	o.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&o.force, "force", false, "re-download even when a cached dump exists")
	cmd.Flags().BoolVar(&o.slim, "slim", false, "download the slim field list instead of full records")
	cmd.Flags().StringSliceVar(&o.fields, "fields", nil, "download only the given fields")
	cmd.Flags().IntVar(&o.pageSize, "page-size", 0, fmt.Sprintf("page size, up to %d (the default)", registry.MaxPageSize))
	cmd.Flags().StringVar(&o.statusAddr, "status-addr", "", "serve a progress dashboard on this address (e.g. localhost:8799)")
	cmd.Flags().BoolVar(&o.noProgress, "no-progress", false, "disable the terminal progress bar")

	return cmd
}

func (o *downloadOptions) runOptions() (download.RunOptions, error) {
	opts := download.RunOptions{
		Force:    o.force,
		PageSize: o.pageSize,
		Fields:   o.fields,
	}
	if opts.PageSize == 0 {
		opts.PageSize = o.config.PageSize
	}
	if len(opts.Fields) == 0 {
		opts.Fields = o.config.Fields
	}
	if o.slim {
		if len(opts.Fields) > 0 {
			return opts, errors.New("--slim and --fields are mutually exclusive")
		}
		opts.Fields = registry.SlimFields
	}
	return opts, nil
}

func (o *downloadOptions) run(ctx context.Context, cmd *cobra.Command) error {
	opts, err := o.runOptions()
	if err != nil {
		return err
	}

	runner := o.newRunner()

	if !o.noProgress {
		runner.Observe(newProgressBar())
	}
	if o.statusAddr != "" {
		tracker := status.NewTracker()
		runner.Observe(tracker)
		srv := status.NewServer(tracker, o.log.WithName("status"))
		if err := srv.Start(o.statusAddr); err != nil {
			return errors.Wrap(err, "start status listener")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	report, err := runner.Run(ctx, opts)
	if err != nil {
		return err
	}

	if report.FromCache {
		fmt.Fprintf(cmd.OutOrStdout(), "cached dump at %s (%d studies); use --force to refresh\n",
			report.Path, report.StudyCount)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d studies to %s in %s\n",
		report.StudyCount, report.Path, report.Duration.Round(time.Second))
	return nil
}
