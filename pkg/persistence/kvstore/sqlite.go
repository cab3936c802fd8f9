package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore keeps values in a single kv table.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite kv store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite kv store: open")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("sqlite kv store: db is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return "", false, errors.Wrap(err, "sqlite kv store")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var value string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "sqlite kv store: get")
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite kv store: db is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return errors.Wrap(err, "sqlite kv store")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at_ms = excluded.updated_at_ms
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite kv store: set")
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite kv store: db is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return errors.Wrap(err, "sqlite kv store")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, "sqlite kv store: delete")
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite kv store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
		  key TEXT PRIMARY KEY,
		  value TEXT NOT NULL,
		  updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite kv store: migrate")
		}
	}
	return nil
}

// SQLiteDSNForFile builds a DSN for path and creates its parent directory.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite kv store: empty path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "sqlite kv store: create %s", dir)
		}
	}
	// WAL so the CLI and the bridge can share one file. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
