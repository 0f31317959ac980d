// Package persistence backs the in-memory task store with one durable object
// in the configured storage backend.
//
// Saves are whole-snapshot writes addressed by object name: find by name,
// update if present, create otherwise. Asynchronous saves go through a single
// writer goroutine; requests that arrive while a write is pending coalesce
// into one write of the latest state.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// ErrPersistence wraps every save/load failure.
var ErrPersistence = errors.New("persistence failure")

var errStopped = errors.New("gateway stopped")

const DefaultObjectName = "remindbot_tasks.json"

// Source is the store side of the gateway.
type Source interface {
	Snapshot() reminder.Snapshot
	Replace(reminder.Snapshot)
}

type Config struct {
	ObjectName string
	// BackupCron schedules periodic async saves; empty disables.
	BackupCron string
	// Timeout bounds each backend round trip; 0 means 30s.
	Timeout  time.Duration
	Location *time.Location
}

// Status is the diagnostics view of the gateway.
type Status struct {
	Enabled    bool      `json:"enabled"`
	Backend    string    `json:"backend"`
	ObjectName string    `json:"object_name"`
	BackupCron string    `json:"backup_cron,omitempty"`
	NextBackup time.Time `json:"next_backup,omitempty"`

	Saves        uint64    `json:"saves"`
	SaveFailures uint64    `json:"save_failures"`
	LastSaveAt   time.Time `json:"last_save_at,omitempty"`
	LastSaveErr  string    `json:"last_save_err,omitempty"`
	LastBytes    int       `json:"last_bytes"`
	Pending      int       `json:"pending"`

	LastLoadAt  time.Time `json:"last_load_at,omitempty"`
	LastLoadErr string    `json:"last_load_err,omitempty"`
	LoadFound   bool      `json:"load_found"`
	Restored    int       `json:"restored"`
}

type Gateway struct {
	cfg    Config
	client storage.Client
	src    Source
	log    logx.Logger
	bus    eventbus.Bus

	// writeMu serialises remote writes; the async writer and synchronous
	// Save never overlap.
	writeMu sync.Mutex

	mu      sync.Mutex
	st      Status
	waiters []chan error
	kick    chan struct{}
	started bool
	stopped bool
	sup     *rtsup.Supervisor
	cron    *cron.Cron
	cronID  cron.EntryID
}

// New builds a gateway. A nil client yields a no-op gateway.
func New(cfg Config, client storage.Client, src Source, log logx.Logger, bus eventbus.Bus) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	if strings.TrimSpace(cfg.ObjectName) == "" {
		cfg.ObjectName = DefaultObjectName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = reminder.Zone(reminder.DefaultUTCOffsetHours)
	}
	g := &Gateway{
		cfg:    cfg,
		client: client,
		src:    src,
		log:    log.With(logx.String("comp", "persistence")),
		bus:    bus,
		kick:   make(chan struct{}, 1),
	}
	g.st.Enabled = client != nil
	g.st.ObjectName = cfg.ObjectName
	g.st.BackupCron = cfg.BackupCron
	if client != nil {
		g.st.Backend = client.Name()
	} else {
		g.st.Backend = "none"
	}
	return g
}

func (g *Gateway) Enabled() bool { return g.client != nil }

// ValidateCron reports whether spec is usable as Config.BackupCron.
func ValidateCron(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	_, err := cronParser.Parse(spec)
	return err
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Start launches the async writer and the backup schedule. It is a no-op
// for a disabled gateway.
func (g *Gateway) Start(ctx context.Context) error {
	if g.client == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started || g.stopped {
		return nil
	}

	var c *cron.Cron
	if spec := strings.TrimSpace(g.cfg.BackupCron); spec != "" {
		c = cron.New(cron.WithParser(cronParser), cron.WithLocation(g.cfg.Location))
		id, err := c.AddFunc(spec, func() {
			g.log.Debug("scheduled backup")
			g.SaveAsync()
		})
		if err != nil {
			return fmt.Errorf("persistence.backup_cron %q: %w", spec, err)
		}
		g.cronID = id
	}

	g.sup = rtsup.New(ctx, rtsup.WithLogger(g.log))
	g.sup.GoRestart("persistence.writer", g.writerLoop)
	if c != nil {
		c.Start()
		g.cron = c
	}
	g.started = true
	g.log.Info("persistence started",
		logx.String("backend", g.st.Backend),
		logx.String("object", g.cfg.ObjectName),
		logx.String("backup_cron", g.cfg.BackupCron),
	)
	return nil
}

// Stop halts the schedule and the writer, then flushes any pending async
// saves before returning.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	sup, c := g.sup, g.cron
	g.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if sup != nil {
		if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			g.log.Warn("writer stop", logx.Err(err))
		}
	}
	g.flush(ctx)
	return nil
}

// SaveAsync queues a save and returns a channel that receives its outcome.
// The channel is buffered; callers may ignore it.
func (g *Gateway) SaveAsync() <-chan error {
	ch := make(chan error, 1)
	if g.client == nil {
		ch <- nil
		return ch
	}
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		ch <- fmt.Errorf("%w: %w", ErrPersistence, errStopped)
		return ch
	}
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case g.kick <- struct{}{}:
	default:
		// a kick is already pending; the writer will pick this waiter up
	}
	return ch
}

func (g *Gateway) writerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.kick:
			// the write itself must finish even if shutdown begins
			g.flush(context.WithoutCancel(ctx))
		}
	}
}

// flush performs one write for every waiter queued so far.
func (g *Gateway) flush(ctx context.Context) {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()
	if len(waiters) == 0 {
		return
	}

	err := g.Save(ctx)
	if err != nil {
		g.log.Warn("async save failed", logx.Int("coalesced", len(waiters)), logx.Err(err))
	} else if len(waiters) > 1 {
		g.log.Debug("async save coalesced", logx.Int("coalesced", len(waiters)))
	}
	for _, w := range waiters {
		w <- err
	}
}

// Save writes the current store snapshot synchronously.
func (g *Gateway) Save(ctx context.Context) (err error) {
	if g.client == nil {
		return nil
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	start := time.Now()
	size := 0
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during save: %v", ErrPersistence, r)
		}
		g.noteSave(start, size, err)
	}()

	b, err := reminder.EncodeSnapshot(g.src.Snapshot(), g.cfg.Location)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}
	size = len(b)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	ref, err := g.client.FindByName(ctx, g.cfg.ObjectName)
	if err != nil {
		return fmt.Errorf("%w: find %s: %w", ErrPersistence, g.cfg.ObjectName, err)
	}
	if ref != nil {
		_, err = g.client.Update(ctx, ref.ID, b)
		if errors.Is(err, storage.ErrNotFound) {
			ref = nil
		} else if err != nil {
			return fmt.Errorf("%w: update %s: %w", ErrPersistence, g.cfg.ObjectName, err)
		}
	}
	if ref == nil {
		if _, err = g.client.Create(ctx, g.cfg.ObjectName, b); err != nil {
			return fmt.Errorf("%w: create %s: %w", ErrPersistence, g.cfg.ObjectName, err)
		}
	}
	return nil
}

func (g *Gateway) noteSave(start time.Time, size int, err error) {
	took := time.Since(start)
	ev := eventbus.Save{Backend: g.st.Backend, Object: g.cfg.ObjectName, Bytes: size, Took: took}

	g.mu.Lock()
	g.st.LastSaveAt = time.Now()
	g.st.LastBytes = size
	if err != nil {
		g.st.SaveFailures++
		g.st.LastSaveErr = err.Error()
	} else {
		g.st.Saves++
		g.st.LastSaveErr = ""
	}
	g.mu.Unlock()

	if err != nil {
		ev.Error = err.Error()
		g.bus.Publish(eventbus.Event{Type: eventbus.SaveFailed, Data: ev})
		return
	}
	g.log.Debug("saved", logx.Int("bytes", size), logx.Duration("took", took))
	g.bus.Publish(eventbus.Event{Type: eventbus.SaveCompleted, Data: ev})
}

// Load restores the store from the backend. A missing object leaves the
// store untouched and is not an error.
func (g *Gateway) Load(ctx context.Context) (err error) {
	if g.client == nil {
		return nil
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	found, restored := false, 0
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during load: %v", ErrPersistence, r)
		}
		g.mu.Lock()
		g.st.LastLoadAt = time.Now()
		g.st.LoadFound = found
		g.st.Restored = restored
		g.st.LastLoadErr = ""
		if err != nil {
			g.st.LastLoadErr = err.Error()
		}
		g.mu.Unlock()
		if err == nil {
			g.bus.Publish(eventbus.Event{Type: eventbus.LoadCompleted, Data: eventbus.Save{Backend: g.st.Backend, Object: g.cfg.ObjectName}})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	ref, err := g.client.FindByName(ctx, g.cfg.ObjectName)
	if err != nil {
		return fmt.Errorf("%w: find %s: %w", ErrPersistence, g.cfg.ObjectName, err)
	}
	if ref == nil {
		g.log.Info("no backup found; starting empty", logx.String("object", g.cfg.ObjectName))
		return nil
	}
	found = true

	b, err := g.client.Read(ctx, ref.ID)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrPersistence, g.cfg.ObjectName, err)
	}
	snap, err := reminder.DecodeSnapshot(b, g.cfg.Location)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	g.src.Replace(snap)
	for _, q := range snap {
		restored += len(q)
	}
	g.log.Info("backup restored",
		logx.Int("conversations", len(snap)),
		logx.Int("tasks", restored),
		logx.Time("updated_at", ref.UpdatedAt),
	)
	return nil
}

func (g *Gateway) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.st
	st.Pending = len(g.waiters)
	if g.cron != nil {
		st.NextBackup = g.cron.Entry(g.cronID).Next
	}
	return st
}

// Close releases the backend client.
func (g *Gateway) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
