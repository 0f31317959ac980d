package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("object not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": directory backend (Path is the directory)
//   - "sqlite": SQLite database file (Path is the database file)
//   - "postgres": PostgreSQL (DSN is the connection string)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ObjectRef identifies a stored object.
type ObjectRef struct {
	ID        string
	Name      string
	UpdatedAt time.Time
}

// Client is the object API used by the persistence gateway.
type Client interface {
	// Name returns the driver name ("file", "sqlite", "postgres").
	Name() string
	// FindByName returns (nil, nil) when no object has the name.
	FindByName(ctx context.Context, name string) (*ObjectRef, error)
	Create(ctx context.Context, name string, data []byte) (ObjectRef, error)
	// Update replaces the content of an existing object; ErrNotFound if id is unknown.
	Update(ctx context.Context, id string, data []byte) (ObjectRef, error)
	Read(ctx context.Context, id string) ([]byte, error)
	Close() error
}
