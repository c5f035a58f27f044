package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func newAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort",
		Short: "Abandon a conflicted merge and restore the pre-pull tree",
		RunE:  runAbort,
	}
}

func runAbort(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error {
		if err := eng.AbortMerge(ctx, h); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Merge aborted.")
		return nil
	})
}
