package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func newCommitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Regenerate the manifest and commit all changes",
		RunE:  runCommit,
	}
	cmd.Flags().StringP("message", "m", "", "Commit message (required)")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func runCommit(cmd *cobra.Command, _ []string) error {
	message, _ := cmd.Flags().GetString("message")

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error {
		res, err := eng.Commit(ctx, h, message)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Committed %s.\n", shortSHA(res.CommitID))
		return nil
	})
}
