package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [path]",
		Short: "Show uncommitted changes against HEAD",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDiff,
	}
}

func runDiff(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	}

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error {
		out, err := eng.Diff(ctx, h, path)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	})
}
