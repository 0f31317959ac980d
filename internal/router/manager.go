// Package router turns inbound chat messages into reminder operations.
//
// CommandManager owns the bounded worker pool; Handler holds the per-intent
// behaviour. Every message is handled to completion on its own, with no
// conversational state carried between messages.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	busyText = "⏳ ระบบกำลังทำงานหนัก กรุณาลองใหม่อีกครั้งครับ"

	// drainTimeout bounds how long a stopping dispatcher waits for queued jobs.
	drainTimeout = 3 * time.Second
)

// Request is one inbound message plus its parsed intent.
type Request struct {
	Message *transport.Message
	Intent  reminder.Intent
	ReqID   string
	Logger  logx.Logger
}

// BusyReplier tells a user their message was dropped.
type BusyReplier interface {
	Reply(ctx context.Context, m *transport.Message, text string) error
}

type ManagerOptions struct {
	Workers   int
	QueueSize int
	// Timeout bounds one message; 0 means 30s.
	Timeout time.Duration
}

type CommandManager struct {
	log     logx.Logger
	parser  *reminder.Parser
	handle  HandlerFunc
	busy    BusyReplier
	opts    ManagerOptions
	jobs    chan func()
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func NewCommandManager(log logx.Logger, parser *reminder.Parser, handle HandlerFunc, busy BusyReplier, opts ManagerOptions) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
		if opts.Workers < 2 {
			opts.Workers = 2
		}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if parser == nil {
		parser = reminder.NewParser(nil)
	}
	return &CommandManager{
		log:    log.With(logx.String("comp", "router")),
		parser: parser,
		handle: handle,
		busy:   busy,
		opts:   opts,
		jobs:   make(chan func(), opts.QueueSize),
	}
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is panic-safe against the jobs channel being closed.
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop reads updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log))
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", m.opts.Workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.opts.Workers; i++ {
		idx := i
		// workers exit when jobs is closed so accepted messages are drained
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(context.Context) error {
			for job := range m.jobs {
				func() {
					defer func() {
						if r := recover(); r != nil {
							m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
						}
					}()
					job()
				}()
			}
			return nil
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		m.setSupervisor(sup, false)
		close(m.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *CommandManager) route(ctx context.Context, up transport.Update) {
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	intent := m.parser.Parse(msg.Text)
	if intent.Kind == reminder.IntentIgnore {
		return
	}

	rid := msg.ID
	if rid == "" {
		rid = uuid.NewString()
	}
	req := &Request{
		Message: msg,
		Intent:  intent,
		ReqID:   rid,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.String("conv", msg.ConversationID),
			logx.String("scope", string(msg.Scope)),
			logx.String("user", msg.UserID),
		),
	}

	final := Chain(
		m.handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(m.opts.Timeout),
	)
	// queued jobs outlive the dispatch loop; MWTimeout still bounds each one
	jctx := context.WithoutCancel(ctx)
	if !m.tryEnqueue(func() { _ = final(jctx, req) }) {
		req.Logger.Warn("job queue full; message dropped")
		if m.busy != nil {
			_ = m.busy.Reply(ctx, msg, busyText)
		}
	}
}
