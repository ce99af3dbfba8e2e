package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dbFile = "teamboard.db"

// Config locates the workspace holding the database file.
type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .teamboard directory under the workspace
// and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, ".teamboard")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".teamboard", dbFile)
}

// Open opens the workspace database. WAL keeps readers live while a
// write transaction is open, the busy timeout covers the writers that
// still collide, and foreign keys are enforced from the start.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := "file:" + Path(cfg.Workspace) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	return sql.Open("sqlite", dsn)
}
