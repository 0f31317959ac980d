package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS objects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	data       BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Client, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("sqlite ready", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Name() string { return "sqlite" }

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) FindByName(ctx context.Context, name string) (*ObjectRef, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var (
		ref ObjectRef
		ts  string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, updated_at FROM objects WHERE name = ?`, name).
		Scan(&ref.ID, &ref.Name, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	return &ref, nil
}

func (s *sqliteStore) Create(ctx context.Context, name string, data []byte) (ObjectRef, error) {
	if s == nil || s.db == nil {
		return ObjectRef{}, ErrDisabled
	}
	ref := ObjectRef{ID: uuid.NewString(), Name: name, UpdatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects(id, name, data, updated_at) VALUES(?,?,?,?)`,
		ref.ID, ref.Name, data, ref.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ObjectRef{}, err
	}
	return ref, nil
}

func (s *sqliteStore) Update(ctx context.Context, id string, data []byte) (ObjectRef, error) {
	if s == nil || s.db == nil {
		return ObjectRef{}, ErrDisabled
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET data = ?, updated_at = ? WHERE id = ?`,
		data, now.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return ObjectRef{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ObjectRef{}, ErrNotFound
	}
	var name string
	if err := s.db.QueryRowContext(ctx, `SELECT name FROM objects WHERE id = ?`, id).Scan(&name); err != nil {
		return ObjectRef{}, err
	}
	return ObjectRef{ID: id, Name: name, UpdatedAt: now}, nil
}

func (s *sqliteStore) Read(ctx context.Context, id string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}
