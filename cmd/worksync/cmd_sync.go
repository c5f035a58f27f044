package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/worksync/internal/conflict"
	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/ui"
	"github.com/fbkclanna/worksync/internal/workspace"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull, merge and push; import entities after a successful push",
		RunE:  runSync,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error {
		res, err := eng.Sync(ctx, h)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		if res.Conflicted() {
			printConflicts(out, res.Conflicts)
			_, _ = fmt.Fprintln(out, "\nSync stopped on merge conflicts. Run 'worksync resolve' or 'worksync abort'.")
			return nil
		}

		_, _ = fmt.Fprintf(out, "Sync complete: pulled %d commit(s), pushed=%v, imported %d entit(ies).\n",
			res.PulledCommits, res.Pushed, res.EntitiesImported)
		return nil
	})
}

func printConflicts(out io.Writer, conflicts []conflict.Entry) {
	tbl := ui.NewTable(out, "PATH", "KIND", "OURS", "THEIRS")
	for _, c := range conflicts {
		tbl.Row(c.Path, string(c.Kind), sideLabel(c.HasOurs), sideLabel(c.HasTheirs))
	}
	_ = tbl.Flush()
}

func sideLabel(present bool) string {
	if present {
		return "present"
	}
	return "deleted"
}
