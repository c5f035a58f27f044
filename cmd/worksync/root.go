package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "worksync",
		Short:   "Keep git working trees in sync through a shared blob store",
		Version: version,
	}

	cmd.PersistentFlags().String("root", defaultRoot(), "Directory holding local working trees")
	cmd.PersistentFlags().String("tenant", "", "Tenant the repository belongs to")
	cmd.PersistentFlags().String("repo", "", "Repository name")
	cmd.PersistentFlags().String("origin", "", "Git origin URL, used on first contact")
	cmd.PersistentFlags().String("branch", "", "Tracked branch (default main)")
	cmd.PersistentFlags().String("bucket", "", "S3 bucket holding the durable copies")
	cmd.PersistentFlags().String("region", "", "S3 region")
	cmd.PersistentFlags().String("endpoint", "", "Custom S3 endpoint (e.g. minio)")
	cmd.PersistentFlags().Bool("path-style", false, "Use path-style S3 addressing")
	cmd.PersistentFlags().String("store-dir", "", "Directory-backed store instead of a bucket (development)")
	cmd.PersistentFlags().String("db", "", "SQLite entity database; empty disables entity import")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	cmd.AddCommand(
		newFetchCmd(),
		newStatusCmd(),
		newCommitCmd(),
		newSyncCmd(),
		newResolveCmd(),
		newAbortCmd(),
		newDiffCmd(),
		newDiscardCmd(),
	)

	return cmd
}
