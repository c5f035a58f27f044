package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"github.com/fbkclanna/worksync/internal/blobstore"
	"github.com/fbkclanna/worksync/internal/engine"
	"github.com/fbkclanna/worksync/internal/importer"
	"github.com/fbkclanna/worksync/internal/lease"
	"github.com/fbkclanna/worksync/internal/retry"
	"github.com/fbkclanna/worksync/internal/workspace"
	"github.com/fbkclanna/worksync/internal/worktree"
)

// options carries the resolved persistent flags.
type options struct {
	root      string
	tenant    string
	repo      string
	origin    string
	branch    string
	bucket    string
	region    string
	endpoint  string
	pathStyle bool
	storeDir  string
	dbPath    string
	verbose   bool
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".worksync"
	}
	return filepath.Join(home, ".worksync")
}

func optionsFromFlags(cmd *cobra.Command) options {
	var o options
	o.root, _ = cmd.Flags().GetString("root")
	o.tenant, _ = cmd.Flags().GetString("tenant")
	o.repo, _ = cmd.Flags().GetString("repo")
	o.origin, _ = cmd.Flags().GetString("origin")
	o.branch, _ = cmd.Flags().GetString("branch")
	o.bucket, _ = cmd.Flags().GetString("bucket")
	o.region, _ = cmd.Flags().GetString("region")
	o.endpoint, _ = cmd.Flags().GetString("endpoint")
	o.pathStyle, _ = cmd.Flags().GetBool("path-style")
	o.storeDir, _ = cmd.Flags().GetString("store-dir")
	o.dbPath, _ = cmd.Flags().GetString("db")
	o.verbose, _ = cmd.Flags().GetBool("verbose")
	return o
}

func (o options) handle() workspace.Handle {
	return workspace.Handle{Tenant: o.tenant, Repo: o.repo, Origin: o.origin, Branch: o.branch}
}

// appResources holds the assembled engine plus the resources it owns.
type appResources struct {
	Engine   *engine.Engine
	Importer *importer.SQLiteImporter
}

func newLogger(o options) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if o.verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return logrus.NewEntry(l)
}

func newStore(ctx context.Context, o options) (blobstore.Store, error) {
	switch {
	case o.bucket != "":
		var opts []blobstore.S3Option
		if o.region != "" {
			opts = append(opts, blobstore.WithRegion(o.region))
		}
		if o.endpoint != "" {
			opts = append(opts, blobstore.WithEndpoint(o.endpoint))
		}
		if o.pathStyle {
			opts = append(opts, blobstore.WithPathStyle())
		}
		return blobstore.NewS3Store(ctx, o.bucket, opts...)
	case o.storeDir != "":
		return blobstore.NewFSStore(o.storeDir)
	default:
		return nil, fmt.Errorf("either --bucket or --store-dir is required")
	}
}

func newImporterPipeline(o options) (*importer.SQLiteImporter, error) {
	if o.dbPath == "" {
		return nil, nil
	}
	return importer.Open(o.dbPath)
}

func leaseHolder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d", host, os.Getpid())
}

// buildResources wires the engine and its collaborators through a dig
// container.
func buildResources(ctx context.Context, o options) (*appResources, error) {
	c := dig.New()
	ctors := []any{
		func() context.Context { return ctx },
		func() options { return o },
		newLogger,
		newStore,
		newImporterPipeline,
		func(store blobstore.Store) *lease.Manager {
			return lease.NewManager(store, leaseHolder())
		},
		func(store blobstore.Store, o options, log *logrus.Entry) *worktree.Manager {
			return worktree.NewManager(store, retry.DefaultPolicy(), o.root, log)
		},
		func(leases *lease.Manager, trees *worktree.Manager, imp *importer.SQLiteImporter, log *logrus.Entry) *engine.Engine {
			var pipeline importer.Pipeline
			if imp != nil {
				pipeline = imp
			}
			return engine.New(leases, trees, pipeline, log)
		},
	}
	for _, ctor := range ctors {
		if err := c.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var res appResources
	if err := c.Invoke(func(eng *engine.Engine, imp *importer.SQLiteImporter) {
		res.Engine = eng
		res.Importer = imp
	}); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *appResources) Close() {
	if r.Importer != nil {
		_ = r.Importer.Close()
	}
}

// withEngine resolves flags, assembles the engine and runs fn against it.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine, h workspace.Handle) error) error {
	o := optionsFromFlags(cmd)
	h := o.handle()
	if err := h.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()
	res, err := buildResources(ctx, o)
	if err != nil {
		return err
	}
	defer res.Close()
	return fn(ctx, res.Engine, h)
}
