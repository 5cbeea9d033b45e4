package app

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"clinicaltrials-downloader/internal/download"
)

// NewSampleCommand prints the sample file, downloading the dump first when
// nothing is cached yet.
func NewSampleCommand(ctx context.Context) *cobra.Command {
	o := newOptions()

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a small sample of studies from the cached dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}

			if !o.cache.Exists() {
				runner := o.newRunner()
				runner.Observe(newProgressBar())
				if _, err := runner.Run(ctx, download.RunOptions{PageSize: o.config.PageSize, Fields: o.config.Fields}); err != nil {
					return err
				}
			}

			data, err := o.cache.ReadSample()
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					// Dump produced by other tooling; derive the sample now.
					studies, err := o.cache.LoadAll()
					if err != nil {
						return err
					}
					if err := o.cache.WriteSample(studies); err != nil {
						return err
					}
					data, err = o.cache.ReadSample()
					if err != nil {
						return err
					}
				} else {
					return err
				}
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	o.AddFlags(cmd.Flags())
	return cmd
}
