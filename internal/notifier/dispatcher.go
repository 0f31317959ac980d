package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

var ErrNoMessenger = errors.New("notifier: no messenger")

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	msg transport.Messenger
	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, msg transport.Messenger, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	d := &Dispatcher{
		msg: msg,
		log: log.With(logx.String("comp", "notifier")),
		bus: bus,
	}
	d.Apply(cfg)
	return d
}

// Apply swaps pacing config; in-flight calls keep the old limiter.
func (d *Dispatcher) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = reminder.Zone(reminder.DefaultUTCOffsetHours)
	}
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	d.mu.Unlock()
}

func (d *Dispatcher) snapshot() (Config, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.limiter
}

func (d *Dispatcher) Location() *time.Location {
	cfg, _ := d.snapshot()
	return cfg.Location
}

// DeliverDue pushes the rendered notification for one due task.
func (d *Dispatcher) DeliverDue(ctx context.Context, conv string, due reminder.DueTask) error {
	cfg, _ := d.snapshot()
	return d.Push(ctx, conv, Render(due.Task, due.Ordinal, cfg.Location))
}

// Push sends text into a conversation, subject to the shared rate limit.
func (d *Dispatcher) Push(ctx context.Context, conv, text string) error {
	err := d.push(ctx, conv, text)
	d.publish(conv, ModePush, err)
	return err
}

func (d *Dispatcher) push(ctx context.Context, conv, text string) error {
	if d.msg == nil {
		return ErrNoMessenger
	}
	cfg, lim := d.snapshot()
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	return d.msg.Push(callCtx, conv, text)
}

// Reply answers an inbound message. An expired reply token falls back to a
// push into the same conversation.
func (d *Dispatcher) Reply(ctx context.Context, m *transport.Message, text string) error {
	if d.msg == nil {
		return ErrNoMessenger
	}
	if m == nil {
		return errors.New("notifier: nil message")
	}
	cfg, _ := d.snapshot()

	if m.ReplyToken != "" {
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := d.msg.Reply(callCtx, m.ReplyToken, text)
		cancel()
		if err == nil {
			d.publish(m.ConversationID, ModeReply, nil)
			return nil
		}
		if !errors.Is(err, transport.ErrExpiredToken) || m.ConversationID == "" {
			d.log.Warn("reply failed", logx.String("conv", m.ConversationID), logx.Err(err))
			d.publish(m.ConversationID, ModeReply, err)
			return err
		}
		d.log.Debug("reply token expired; pushing instead", logx.String("conv", m.ConversationID))
	}

	err := d.push(ctx, m.ConversationID, text)
	d.publish(m.ConversationID, ModeReplyFallback, err)
	if err != nil {
		d.log.Warn("push fallback failed", logx.String("conv", m.ConversationID), logx.Err(err))
	}
	return err
}

func (d *Dispatcher) publish(conv, mode string, err error) {
	ev := eventbus.Notify{ConversationID: conv, Mode: mode}
	typ := eventbus.NotifySent
	if err != nil {
		typ = eventbus.NotifyFailed
		ev.Error = err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
