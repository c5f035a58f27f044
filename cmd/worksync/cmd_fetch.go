package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Update the local tree from the durable copy and refresh remote refs",
		RunE:  runFetch,
	}
}

func runFetch(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error {
		res, err := eng.Fetch(ctx, h)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Fetched %s: %d ahead, %d behind.\n",
			h.ID(), res.CommitsAhead, res.CommitsBehind)
		return nil
	})
}
