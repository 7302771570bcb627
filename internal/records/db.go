// internal/records/db.go
//
// SQLite plumbing for the results database.
// Responsibilities:
//   - Opening SQLite with safe defaults (busy timeout, WAL for file databases).
//   - Applying the embedded assets/sql/*.sql migrations (idempotent, recorded
//     in _migrations, one transaction per file).
//
// The default DSN is a shared-cache in-memory database: results live for the
// lifetime of the process only.

package records

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/scramble/apps/go-server/assets"
)

// openDB opens (and creates if missing) a SQLite database.
//
//   - In-memory DSNs are pinned to one connection; the database vanishes
//     when its last connection closes.
//   - File DSNs get their parent directory created and WAL journaling.
func openDB(dsn string) (*sql.DB, error) {
	memory := strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, ":memory:")

	if !memory {
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	full := dsn + sep + "_busy_timeout=5000"
	if !memory {
		full += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", full)
	if err != nil {
		return nil, err
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

// migrate applies the embedded migrations in lexical order, each in its own
// transaction together with its _migrations row.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	files, err := assets.Migrations()
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	for _, f := range files {
		var done int
		err := db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, f.Name).Scan(&done)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("query _migrations: %w", err)
		}
		if err := apply(db, f); err != nil {
			return err
		}
		log.Info().Str("migration", f.Name).Msg("applied")
	}
	return nil
}

func apply(db *sql.DB, f assets.Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(f.SQL); err != nil {
		return fmt.Errorf("apply %s: %w", f.Name, err)
	}
	if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f.Name); err != nil {
		return fmt.Errorf("record %s: %w", f.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", f.Name, err)
	}
	return nil
}
