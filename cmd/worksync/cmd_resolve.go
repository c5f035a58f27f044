package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fbkclanna/worksync/internal/conflict"
	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve merge conflicts and create the merge commit",
		RunE:  runResolve,
	}
	cmd.Flags().StringSlice("ours", nil, "Paths resolved with the local version")
	cmd.Flags().StringSlice("theirs", nil, "Paths resolved with the incoming version")
	cmd.Flags().Bool("interactive", false, "Pick a side per conflict interactively")
	cmd.Flags().StringP("message", "m", "", "Merge commit message")
	return cmd
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ours, _ := cmd.Flags().GetStringSlice("ours")
	theirs, _ := cmd.Flags().GetStringSlice("theirs")
	interactive, _ := cmd.Flags().GetBool("interactive")
	message, _ := cmd.Flags().GetString("message")

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error {
		var resolutions []conflict.Resolution

		if interactive {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("--interactive requires a terminal")
			}
			entries, err := eng.Conflicts(ctx, h)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no conflicts to resolve")
			}
			resolutions, err = pickResolutions(entries)
			if err != nil {
				return err
			}
			if message == "" {
				message, err = promptInput("Merge commit message", "Merge remote changes", nil)
				if err != nil {
					return err
				}
			}
		} else {
			for _, p := range ours {
				resolutions = append(resolutions, conflict.Resolution{Path: p, Choice: conflict.ChoiceOurs})
			}
			for _, p := range theirs {
				resolutions = append(resolutions, conflict.Resolution{Path: p, Choice: conflict.ChoiceTheirs})
			}
		}

		res, err := eng.Resolve(ctx, h, resolutions, message)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Conflicts resolved, merge commit %s.\n", shortSHA(res.CommitID))
		return nil
	})
}
