package db

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var ErrUnsupportedDSN = errors.New("unsupported database dsn")

// Connect opens the play history database named by dsn and runs migrations.
// postgres:// and postgresql:// use lib/pq, sqlite://<path> uses go-sqlite3.
func Connect(dsn string) (*sqlx.DB, error) {
	driver, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(driver, source)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Printf("database connected driver=%s", driver)
	return db, nil
}

func parseDSN(dsn string) (driver, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDSN)
		}
		return "sqlite3", path, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}

func runMigrations(db *sqlx.DB) error {
	id := "id SERIAL PRIMARY KEY"
	startedAt := "started_at TIMESTAMPTZ NOT NULL"
	if db.DriverName() == "sqlite3" {
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
		startedAt = "started_at TIMESTAMP NOT NULL"
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS play_history (
            ` + id + `,
            group_id TEXT NOT NULL,
            queue_item_id TEXT NOT NULL,
            song TEXT NOT NULL,
            added_by TEXT NOT NULL DEFAULT '',
            reason TEXT NOT NULL,
            ` + startedAt + `
        );`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_group ON play_history (group_id, started_at);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
