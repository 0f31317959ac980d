package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/persistence"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// SaveMode selects how user-initiated changes are persisted.
type SaveMode string

const (
	SaveSync  SaveMode = "sync"
	SaveAsync SaveMode = "async"
)

const (
	unknownCreator = "Unknown"
	testTaskTitle  = "System test"
	testTaskLead   = time.Minute
)

// Persister is the persistence gateway as seen by the handler.
type Persister interface {
	Save(ctx context.Context) error
	SaveAsync() <-chan error
	Status() persistence.Status
}

type SchedulerPort interface {
	ForceDeliver(ctx context.Context, conv string) []scheduler.Outcome
	Status() scheduler.Status
}

type Replier interface {
	Reply(ctx context.Context, m *transport.Message, text string) error
}

type NameResolver interface {
	DisplayName(ctx context.Context, conversationID, userID string) (string, error)
}

// Handler executes one parsed intent. It is safe for concurrent use.
type Handler struct {
	Store     *reminder.Store
	Persist   Persister
	Scheduler SchedulerPort
	Replier   Replier
	Names     NameResolver
	Bus       eventbus.Bus

	Location  *time.Location
	Platform  string
	SaveMode  SaveMode
	StartedAt time.Time
	Now       func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) loc() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return reminder.Zone(reminder.DefaultUTCOffsetHours)
}

func (h *Handler) publish(typ string, data any) {
	if h.Bus != nil {
		h.Bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// Handle is the HandlerFunc wired into the CommandManager.
func (h *Handler) Handle(ctx context.Context, req *Request) error {
	text := h.respond(ctx, req)
	if text == "" {
		return nil
	}
	// reply failures are logged by the dispatcher and never fail the request
	_ = h.Replier.Reply(ctx, req.Message, text)
	return nil
}

func (h *Handler) respond(ctx context.Context, req *Request) string {
	msg := req.Message
	conv := msg.ConversationID
	now := h.now()

	switch in := req.Intent; in.Kind {
	case reminder.IntentIgnore:
		return ""
	case reminder.IntentPing:
		return pingText()
	case reminder.IntentShowTime:
		return timeText(now, h.loc())
	case reminder.IntentShowHelp:
		return helpText()
	case reminder.IntentListTasks:
		return listText(h.Store.List(conv), now, h.loc())
	case reminder.IntentScheduleTask:
		return h.schedule(ctx, req, in.Schedule.Title, in.Schedule.Description, in.Schedule.At, now)
	case reminder.IntentTestTask:
		return h.schedule(ctx, req, testTaskTitle, "ทดสอบระบบแจ้งเตือน", now.Add(testTaskLead), now)
	case reminder.IntentCancelByIndex:
		return h.cancel(ctx, req, in.Index)
	case reminder.IntentInvalidCancelIndex:
		return invalidCancelText()
	case reminder.IntentCancelAll:
		return h.cancelAll(ctx, req)
	case reminder.IntentDiagnostics:
		return h.diagnostics(conv, now)
	case reminder.IntentForceDeliver:
		return h.forceDeliver(ctx, conv)
	case reminder.IntentForceBackup:
		return h.forceBackup(ctx, req)
	case reminder.IntentInvalidDate:
		return invalidDateText()
	default:
		return usageText()
	}
}

func (h *Handler) schedule(ctx context.Context, req *Request, title, desc string, at, now time.Time) string {
	msg := req.Message
	creator := h.creatorName(ctx, req)
	t, err := reminder.NewTask(title, desc, creator, at, now)
	if errors.Is(err, reminder.ErrPastDate) {
		req.Logger.Info("past date rejected", logx.Time("at", at))
		return pastDateText(at, now, h.loc())
	}
	ordinal := h.Store.Add(msg.ConversationID, t)
	h.publish(eventbus.TaskCreated, eventbus.TaskChange{ConversationID: msg.ConversationID, Title: t.Title, Count: 1})
	req.Logger.Info("task scheduled",
		logx.String("title", t.Title),
		logx.Time("at", t.ScheduledAt),
		logx.Int("ordinal", ordinal),
	)
	return confirmText(t, ordinal, h.loc()) + h.persistNote(ctx, req)
}

func (h *Handler) creatorName(ctx context.Context, req *Request) string {
	if h.Names == nil || req.Message.UserID == "" {
		return unknownCreator
	}
	name, err := h.Names.DisplayName(ctx, req.Message.ConversationID, req.Message.UserID)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			req.Logger.Debug("display name lookup failed", logx.Err(err))
		}
		return unknownCreator
	}
	return name
}

func (h *Handler) cancel(ctx context.Context, req *Request, index int) string {
	conv := req.Message.ConversationID
	t, err := h.Store.RemoveAt(conv, index)
	if errors.Is(err, reminder.ErrIndexOutOfRange) {
		return notFoundText(index)
	}
	h.publish(eventbus.TaskCancelled, eventbus.TaskChange{ConversationID: conv, Title: t.Title, Count: 1})
	req.Logger.Info("task cancelled", logx.Int("ordinal", index), logx.String("title", t.Title))
	return cancelledText(index, t) + h.persistNote(ctx, req)
}

func (h *Handler) cancelAll(ctx context.Context, req *Request) string {
	conv := req.Message.ConversationID
	n := h.Store.Clear(conv)
	if n == 0 {
		return nothingToCancelText()
	}
	h.publish(eventbus.TaskCancelled, eventbus.TaskChange{ConversationID: conv, Count: n})
	req.Logger.Info("all tasks cancelled", logx.Int("count", n))
	return cancelledAllText(n) + h.persistNote(ctx, req)
}

// persistNote saves per the configured policy and returns a suffix for the
// reply when a synchronous save failed.
func (h *Handler) persistNote(ctx context.Context, req *Request) string {
	if h.Persist == nil {
		return ""
	}
	if h.SaveMode == SaveAsync {
		h.Persist.SaveAsync()
		return ""
	}
	if err := h.Persist.Save(ctx); err != nil {
		req.Logger.Warn("save failed; change kept in memory only", logx.Err(err))
		return "\n" + memoryOnlyText()
	}
	return ""
}

func (h *Handler) diagnostics(conv string, now time.Time) string {
	d := diagnostics{
		Platform:  h.Platform,
		Uptime:    now.Sub(h.StartedAt),
		Store:     h.Store.Stats(),
		Mine:      len(h.Store.List(conv)),
		Now:       now,
		StartedAt: h.StartedAt,
	}
	if h.Persist != nil {
		d.Persist = h.Persist.Status()
	}
	if h.Scheduler != nil {
		d.Sched = h.Scheduler.Status()
	}
	return diagnosticsText(d, h.loc())
}

func (h *Handler) forceDeliver(ctx context.Context, conv string) string {
	if h.Scheduler == nil {
		return schedulerMissingText()
	}
	return forceDeliverText(h.Scheduler.ForceDeliver(ctx, conv))
}

func (h *Handler) forceBackup(ctx context.Context, req *Request) string {
	if h.Persist == nil {
		return backupText(persistence.Status{}, nil)
	}
	err := h.Persist.Save(ctx)
	if err != nil {
		req.Logger.Warn("forced backup failed", logx.Err(err))
	}
	return backupText(h.Persist.Status(), err)
}
