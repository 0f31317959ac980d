package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "remindbot/pkg/logx"
)

// fileStore keeps objects in a directory.
//
// Files:
//   - <dir>/index.json          (name -> ref)
//   - <dir>/objects/<id>.json   (object content)
//
// Every write goes to a temp file first and is renamed into place.
type fileStore struct {
	log logx.Logger

	mu        sync.Mutex
	dir       string
	indexPath string
	index     map[string]indexEntry // by name
	closed    bool
}

type indexEntry struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func openFile(cfg Config, log logx.Logger) (Client, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:       log,
		dir:       dir,
		indexPath: filepath.Join(dir, "index.json"),
		index:     map[string]indexEntry{},
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Name() string { return "file" }

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) FindByName(ctx context.Context, name string) (*ObjectRef, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrDisabled
	}
	e, ok := s.index[name]
	if !ok {
		return nil, nil
	}
	return &ObjectRef{ID: e.ID, Name: name, UpdatedAt: e.UpdatedAt}, nil
}

func (s *fileStore) Create(ctx context.Context, name string, data []byte) (ObjectRef, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ObjectRef{}, ErrDisabled
	}

	id := uuid.NewString()
	if err := writeAtomic(s.objectPath(id), data); err != nil {
		return ObjectRef{}, err
	}
	now := time.Now().UTC()
	s.index[name] = indexEntry{ID: id, UpdatedAt: now}
	if err := s.saveIndexLocked(); err != nil {
		delete(s.index, name)
		_ = os.Remove(s.objectPath(id))
		return ObjectRef{}, err
	}
	s.log.Debug("object created", logx.String("name", name), logx.String("id", id))
	return ObjectRef{ID: id, Name: name, UpdatedAt: now}, nil
}

func (s *fileStore) Update(ctx context.Context, id string, data []byte) (ObjectRef, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ObjectRef{}, ErrDisabled
	}

	name, ok := s.nameOfLocked(id)
	if !ok {
		return ObjectRef{}, ErrNotFound
	}
	if err := writeAtomic(s.objectPath(id), data); err != nil {
		return ObjectRef{}, err
	}
	now := time.Now().UTC()
	s.index[name] = indexEntry{ID: id, UpdatedAt: now}
	if err := s.saveIndexLocked(); err != nil {
		// content is already replaced; only the timestamp is stale
		s.log.Warn("index write failed", logx.Err(err))
	}
	return ObjectRef{ID: id, Name: name, UpdatedAt: now}, nil
}

func (s *fileStore) Read(ctx context.Context, id string) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrDisabled
	}
	if _, ok := s.nameOfLocked(id); !ok {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(s.objectPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *fileStore) nameOfLocked(id string) (string, bool) {
	for name, e := range s.index {
		if e.ID == id {
			return name, true
		}
	}
	return "", false
}

func (s *fileStore) objectPath(id string) string {
	// ids are generated here, but never let one escape the directory
	return filepath.Join(s.dir, "objects", filepath.Base(id)+".json")
}

func (s *fileStore) loadIndex() error {
	b, err := os.ReadFile(s.indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	return json.Unmarshal(b, &s.index)
}

func (s *fileStore) saveIndexLocked() error {
	b, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.indexPath, b)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
