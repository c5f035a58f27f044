package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func newDiscardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discard [paths...]",
		Short: "Throw away uncommitted changes and update the durable copy",
		RunE:  runDiscard,
	}
	cmd.Flags().Bool("all", false, "Discard every uncommitted change")
	return cmd
}

func runDiscard(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if len(args) == 0 && !all {
		return fmt.Errorf("pass paths to discard, or --all for everything")
	}
	if len(args) > 0 && all {
		return fmt.Errorf("--all cannot be combined with explicit paths")
	}

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error {
		if err := eng.Discard(ctx, h, args...); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Changes discarded.")
		return nil
	})
}
