package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "remindbot/pkg/logx"
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Client, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initObjectSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Debug("postgres ready")
	return &postgresStore{pool: pool, log: log}, nil
}

func initObjectSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS remindbot_objects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init object schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *postgresStore) Name() string { return "postgres" }

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) FindByName(ctx context.Context, name string) (*ObjectRef, error) {
	var ref ObjectRef
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, updated_at FROM remindbot_objects WHERE name=$1`, name,
	).Scan(&ref.ID, &ref.Name, &ref.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find object: %w", err)
	}
	return &ref, nil
}

func (s *postgresStore) Create(ctx context.Context, name string, data []byte) (ObjectRef, error) {
	ref := ObjectRef{ID: uuid.NewString(), Name: name, UpdatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO remindbot_objects (id, name, data, updated_at) VALUES ($1,$2,$3,$4)`,
		ref.ID, ref.Name, data, ref.UpdatedAt,
	)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("create object: %w", err)
	}
	return ref, nil
}

func (s *postgresStore) Update(ctx context.Context, id string, data []byte) (ObjectRef, error) {
	ref := ObjectRef{ID: id, UpdatedAt: time.Now().UTC()}
	err := s.pool.QueryRow(ctx,
		`UPDATE remindbot_objects SET data=$2, updated_at=$3 WHERE id=$1 RETURNING name`,
		id, data, ref.UpdatedAt,
	).Scan(&ref.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return ObjectRef{}, ErrNotFound
	}
	if err != nil {
		return ObjectRef{}, fmt.Errorf("update object: %w", err)
	}
	return ref, nil
}

func (s *postgresStore) Read(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM remindbot_objects WHERE id=$1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}
