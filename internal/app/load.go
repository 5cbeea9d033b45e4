package app

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"clinicaltrials-downloader/internal/db"
	"clinicaltrials-downloader/internal/download"
	"clinicaltrials-downloader/internal/store"
)

type loadOptions struct {
	*options

	dsn string
}

// NewLoadCommand bulk-loads the cached dump into Postgres.
func NewLoadCommand(ctx context.Context) *cobra.Command {
	o := &loadOptions{options: newOptions()}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the cached dump into a Postgres studies table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}
			return o.run(ctx, cmd)
		},
	}

	o.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&o.dsn, "dsn", "", "Postgres connection string (or set "+loadDSNEnvHint+")")

	return cmd
}

const loadDSNEnvHint = "CTGOV_DSN"

func (o *loadOptions) run(ctx context.Context, cmd *cobra.Command) error {
	dsn := o.dsn
	if dsn == "" {
		dsn = o.config.Postgres.DSN
	}
	if dsn == "" {
		return errors.New("no Postgres DSN given (use --dsn or " + loadDSNEnvHint + ")")
	}

	if !o.cache.Exists() {
		runner := o.newRunner()
		runner.Observe(newProgressBar())
		if _, err := runner.Run(ctx, download.RunOptions{PageSize: o.config.PageSize, Fields: o.config.Fields}); err != nil {
			return err
		}
	}

	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	pg := store.NewPostgresStore(conn, o.log.WithName("store"))
	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}

	loaded, skipped, err := pg.LoadStudies(ctx, o.cache.Load)
	if err != nil {
		return err
	}

	total, err := pg.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d studies (%d skipped); table now holds %d rows\n",
		loaded, skipped, total)
	return nil
}
