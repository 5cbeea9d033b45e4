package app

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"clinicaltrials-downloader/internal/zenodo"
)

type publishOptions struct {
	*options

	sandbox bool
	token   string
}

// NewPublishCommand publishes a fresh dump to Zenodo.
func NewPublishCommand(ctx context.Context) *cobra.Command {
	o := &publishOptions{options: newOptions()}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Re-download the registry and publish the dump as a Zenodo record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}
			return o.run(ctx, cmd)
		},
	}

	o.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&o.sandbox, "sandbox", false, "publish to the Zenodo sandbox instead of production")
	cmd.Flags().StringVar(&o.token, "token", "", "Zenodo access token (or set ZENODO_TOKEN)")

	return cmd
}

func (o *publishOptions) run(ctx context.Context, cmd *cobra.Command) error {
	token := o.token
	if token == "" {
		token = o.config.Zenodo.Token
	}
	if token == "" {
		return errors.New("no Zenodo token given (use --token or ZENODO_TOKEN)")
	}

	baseURL := ""
	if o.sandbox || o.config.Zenodo.Sandbox {
		baseURL = zenodo.SandboxBaseURL
	}

	client, err := zenodo.NewClient(zenodo.ClientConfig{
		BaseURL: baseURL,
		Token:   token,
		Log:     o.log.WithName("zenodo"),
	})
	if err != nil {
		return err
	}

	runner := o.newRunner()
	runner.Observe(newProgressBar())

	publisher := zenodo.NewPublisher(client, runner, o.cache, o.log.WithName("publish"))
	dep, err := publisher.Publish(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published deposition %d (doi %s): %s\n", dep.ID, dep.DOI, dep.Links.HTML)
	return nil
}
