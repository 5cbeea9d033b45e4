// Package app assembles the ctgov command tree.
package app

import (
	"context"

	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "0.1.0-dev"

// NewRootCommand builds the ctgov CLI.
func NewRootCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ctgov",
		Short:         "Download ClinicalTrials.gov and package it for redistribution",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		NewDownloadCommand(ctx),
		NewSampleCommand(ctx),
		NewServeCommand(ctx),
		NewLoadCommand(ctx),
		NewPublishCommand(ctx),
		NewVersionCommand(),
	)
	return cmd
}
