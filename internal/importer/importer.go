// Package importer reconciles domain records derived from repository
// content. The orchestrator invokes it exactly once after every successful
// push; conflict handling is keyed on each entity's natural key so that two
// independently created entities merging into one natural key update a
// single row instead of inserting a duplicate.
package importer

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fbkclanna/worksync/internal/manifest"
)

// Pipeline is the entity-import collaborator consumed by the orchestrator.
type Pipeline interface {
	// ImportFromManifest reads the generated manifest in workDir and
	// reconciles its entities, returning how many were imported.
	ImportFromManifest(ctx context.Context, workDir string) (int, error)
}

// SQLiteImporter is the reference Pipeline backed by a sqlite database.
type SQLiteImporter struct {
	db *sql.DB
}

// Open opens the entity database at path with sensible sqlite defaults and
// ensures the schema exists.
func Open(path string) (*SQLiteImporter, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	imp := &SQLiteImporter{db: db}
	if err := imp.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return imp, nil
}

// NewWithDB wraps an existing database handle, ensuring the schema exists.
func NewWithDB(db *sql.DB) (*SQLiteImporter, error) {
	imp := &SQLiteImporter{db: db}
	if err := imp.migrate(); err != nil {
		return nil, err
	}
	return imp, nil
}

// Close releases the database handle.
func (s *SQLiteImporter) Close() error { return s.db.Close() }

func (s *SQLiteImporter) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS entities (
	 id         TEXT NOT NULL,
	 kind       TEXT NOT NULL,
	 name       TEXT NOT NULL,
	 path       TEXT NOT NULL,
	 checksum   TEXT NOT NULL,
	 updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	 UNIQUE(kind, name)
	);`)
	if err != nil {
		return fmt.Errorf("creating entities table: %w", err)
	}
	return nil
}

// ImportFromManifest upserts every manifest entry. The upsert conflicts on
// the natural key (kind, name); when the manifest's identifier differs from
// the stored row's, the manifest identifier wins.
func (s *SQLiteImporter) ImportFromManifest(ctx context.Context, workDir string) (int, error) {
	m, err := manifest.Load(workDir)
	if err != nil {
		return 0, fmt.Errorf("loading manifest: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range m.Entries {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO entities(id, kind, name, path, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(kind, name) DO UPDATE SET
		 id=excluded.id,
		 path=excluded.path,
		 checksum=excluded.checksum,
		 updated_at=datetime('now');
		`, e.ID, e.Kind, e.Name, e.Path, e.Checksum)
		if err != nil {
			return 0, fmt.Errorf("upserting %s: %w", e.NaturalKey(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(m.Entries), nil
}
