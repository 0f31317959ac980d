// Package scheduler runs the delivery loop: every interval it removes due
// tasks from the store, pushes a notification for each and schedules an
// async backup.
//
// Delivery is at-most-once. A task is removed before it is delivered and is
// never re-queued, so a transport failure loses that one notification.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

const DefaultInterval = 20 * time.Second

// Deliverer pushes one due task into its conversation.
type Deliverer interface {
	DeliverDue(ctx context.Context, conv string, due reminder.DueTask) error
}

// Saver schedules a fire-and-forget backup.
type Saver interface {
	SaveAsync() <-chan error
}

type Config struct {
	Enabled  bool
	Interval time.Duration
}

// Outcome is the result of delivering one task.
type Outcome struct {
	ConversationID string
	Ordinal        int
	Title          string
	ScheduledAt    time.Time
	Err            error
}

type TickReport struct {
	At        time.Time
	Due       int
	Delivered int
	Failed    int
	Took      time.Duration
	Outcomes  []Outcome
	// Err is set when the tick itself failed (recovered panic).
	Err error
}

type Status struct {
	Enabled      bool          `json:"enabled"`
	Running      bool          `json:"running"`
	Interval     time.Duration `json:"interval"`
	Ticks        uint64        `json:"ticks"`
	LastTickAt   time.Time     `json:"last_tick_at,omitempty"`
	LastTickTook time.Duration `json:"last_tick_took"`
	Delivered    uint64        `json:"delivered"`
	Failed       uint64        `json:"failed"`
	TickFailures uint64        `json:"tick_failures"`
	LastTickErr  string        `json:"last_tick_err,omitempty"`
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	cfg   Config
	store *reminder.Store
	out   Deliverer
	saver Saver
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	// tickMu keeps ticks from overlapping with each other.
	tickMu sync.Mutex

	mu  sync.Mutex
	st  Status
	sup *rtsup.Supervisor
}

func New(cfg Config, store *reminder.Store, out Deliverer, saver Saver, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		cfg:   cfg,
		store: store,
		out:   out,
		saver: saver,
		log:   log.With(logx.String("comp", "scheduler")),
		bus:   bus,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.st.Enabled = cfg.Enabled
	s.st.Interval = cfg.Interval
	return s
}

// Start launches the loop. The first tick runs immediately; each following
// tick starts Interval after the previous one finished.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("scheduler.loop", s.loop)
	s.st.Running = true
	s.log.Info("scheduler started", logx.Duration("interval", s.cfg.Interval))
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.st.Running = false
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (s *Service) loop(ctx context.Context) error {
	for {
		s.Tick(ctx)
		t := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Tick runs one scan-and-deliver pass. It never panics.
func (s *Service) Tick(ctx context.Context) (rep TickReport) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	rep.At = s.now()
	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("scheduler tick panicked: %v", r)
		}
		rep.Took = time.Since(start)
		s.noteTick(rep)
	}()

	batches := s.store.RemoveDue(rep.At)
	if len(batches) == 0 {
		return rep
	}
	// removed tasks must still be attempted even if shutdown starts mid-tick
	dctx := context.WithoutCancel(ctx)
	for _, b := range batches {
		for _, due := range b.Tasks {
			rep.Due++
			o := s.deliver(dctx, b.ConversationID, due, false)
			rep.Outcomes = append(rep.Outcomes, o)
			if o.Err != nil {
				rep.Failed++
			} else {
				rep.Delivered++
			}
		}
	}
	if rep.Delivered > 0 && s.saver != nil {
		s.saver.SaveAsync()
	}
	return rep
}

// ForceDeliver delivers every pending task of conv now, regardless of due time.
func (s *Service) ForceDeliver(ctx context.Context, conv string) []Outcome {
	b := s.store.TakeAll(conv)
	if len(b.Tasks) == 0 {
		return nil
	}
	out := make([]Outcome, 0, len(b.Tasks))
	for _, due := range b.Tasks {
		out = append(out, s.deliver(ctx, conv, due, true))
	}
	if s.saver != nil {
		s.saver.SaveAsync()
	}
	return out
}

func (s *Service) deliver(ctx context.Context, conv string, due reminder.DueTask, forced bool) (o Outcome) {
	o = Outcome{ConversationID: conv, Ordinal: due.Ordinal, Title: due.Title, ScheduledAt: due.ScheduledAt}
	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("delivery panicked: %v", r)
		}
		s.noteDelivery(o, forced)
	}()
	if s.out == nil {
		o.Err = errors.New("no deliverer")
		return o
	}
	o.Err = s.out.DeliverDue(ctx, conv, due)
	return o
}

func (s *Service) noteDelivery(o Outcome, forced bool) {
	ev := eventbus.Delivery{
		ConversationID: o.ConversationID,
		Ordinal:        o.Ordinal,
		Title:          o.Title,
		ScheduledAt:    o.ScheduledAt,
		Forced:         forced,
	}
	s.mu.Lock()
	if o.Err != nil {
		s.st.Failed++
	} else {
		s.st.Delivered++
	}
	s.mu.Unlock()

	if o.Err != nil {
		ev.Error = o.Err.Error()
		s.log.Warn("delivery failed; task dropped",
			logx.String("conv", o.ConversationID),
			logx.Int("ordinal", o.Ordinal),
			logx.String("title", o.Title),
			logx.Err(o.Err),
		)
		s.bus.Publish(eventbus.Event{Type: eventbus.DeliveryFailed, Data: ev})
		return
	}
	s.log.Info("delivered",
		logx.String("conv", o.ConversationID),
		logx.Int("ordinal", o.Ordinal),
		logx.String("title", o.Title),
		logx.Bool("forced", forced),
	)
	s.bus.Publish(eventbus.Event{Type: eventbus.Delivered, Data: ev})
}

func (s *Service) noteTick(rep TickReport) {
	s.mu.Lock()
	s.st.Ticks++
	s.st.LastTickAt = rep.At
	s.st.LastTickTook = rep.Took
	if rep.Err != nil {
		s.st.TickFailures++
		s.st.LastTickErr = rep.Err.Error()
	}
	s.mu.Unlock()

	ev := eventbus.Tick{Due: rep.Due, Delivered: rep.Delivered, Failed: rep.Failed, Took: rep.Took}
	if rep.Err != nil {
		ev.Error = rep.Err.Error()
		s.log.Error("tick failed", logx.Err(rep.Err))
		s.bus.Publish(eventbus.Event{Type: eventbus.TickFailed, Data: ev})
		return
	}
	if rep.Due > 0 {
		s.log.Debug("tick", logx.Int("due", rep.Due), logx.Int("delivered", rep.Delivered), logx.Int("failed", rep.Failed))
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TickCompleted, Data: ev})
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}
