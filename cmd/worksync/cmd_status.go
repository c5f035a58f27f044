package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/ui"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the working tree status",
		RunE:  runStatus,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error {
		res, err := eng.Status(ctx, h)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		if !res.Initialized {
			_, _ = fmt.Fprintf(out, "%s is not initialized. Run 'worksync fetch' first.\n", h.ID())
			return nil
		}

		merge := "no"
		if res.MergeInProgress {
			merge = "yes"
		}
		tbl := ui.NewTable(out, "BRANCH", "HEAD", "AHEAD", "BEHIND", "MERGE")
		tbl.Row(res.Branch, shortSHA(res.Head), res.CommitsAhead, res.CommitsBehind, merge)
		if err := tbl.Flush(); err != nil {
			return err
		}

		printPaths(out, "Staged", res.Staged)
		printPaths(out, "Modified", res.Modified)
		printPaths(out, "Untracked", res.Untracked)
		return nil
	})
}

func printPaths(out io.Writer, label string, paths []string) {
	if len(paths) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%s:\n", label)
	for _, p := range paths {
		_, _ = fmt.Fprintf(out, "  %s\n", p)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
