package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	embedsql "github.com/avelar/taskhub/embed/sql"
	_ "modernc.org/sqlite"
)

// DB is the sqlite-backed authoritative store. It implements TaskStore.
type DB struct {
	*sql.DB

	onChangeMu sync.RWMutex
	onChange   func(ctx context.Context)
}

// SetOnChange registers a hook invoked after every successful write. The
// server uses it to nudge connected clients into refreshing.
func (db *DB) SetOnChange(fn func(ctx context.Context)) {
	db.onChangeMu.Lock()
	defer db.onChangeMu.Unlock()
	db.onChange = fn
}

func (db *DB) triggerChange(ctx context.Context) {
	db.onChangeMu.RLock()
	fn := db.onChange
	db.onChangeMu.RUnlock()

	if fn != nil {
		fn(ctx)
	}
}

// Open opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	return &DB{DB: db}, nil
}

// Init applies the embedded schema.
func (db *DB) Init(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, embedsql.Schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
