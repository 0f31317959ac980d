package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeMessenger struct {
	mu       sync.Mutex
	replies  []string
	pushes   map[string][]string
	replyErr error
	pushErr  error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{pushes: map[string][]string{}}
}

func (f *fakeMessenger) Reply(ctx context.Context, token, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, token+"|"+text)
	return nil
}

func (f *fakeMessenger) Push(ctx context.Context, conv, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes[conv] = append(f.pushes[conv], text)
	return nil
}

func (f *fakeMessenger) DisplayName(ctx context.Context, conv, user string) (string, error) {
	return "name-" + user, nil
}

func TestEmojiFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		desc string
		want string
	}{
		{"Send the report", "📤"},
		{"email the contract", "📤"},
		{"ส่งเอกสารให้ลูกค้า", "📤"},
		{"Room 1 MEETING", "📅"},
		{"นัดหมอ", "📅"},
		{"call mom", "📞"},
		{"โทรหาแม่", "📞"},
		{"pay rent", "💰"},
		{"โอนเงิน", "💰"},
		{"bring cake", "⏰"},
		{"", "⏰"},
		// first match wins
		{"send money", "📤"},
		{"meeting call", "📅"},
	}
	for _, tt := range tests {
		if got := EmojiFor(tt.desc); got != tt.want {
			t.Fatalf("EmojiFor(%q) = %s, want %s", tt.desc, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	loc := reminder.Zone(reminder.DefaultUTCOffsetHours)
	task := reminder.Task{
		Title:       "Meeting",
		Description: "Room 1 meeting",
		CreatedBy:   "Somchai",
		ScheduledAt: time.Date(2026, time.January, 5, 3, 0, 0, 0, time.UTC),
	}
	got := Render(task, 2, loc)
	for _, want := range []string{"📅", "Reminder #2", "Meeting", "5/1/2026 10:00", "Room 1 meeting", "Somchai"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Render missing %q:\n%s", want, got)
		}
	}

	task.Description = ""
	if strings.Contains(Render(task, 1, loc), "รายละเอียด") {
		t.Fatalf("empty description should be omitted")
	}
}

func TestDeliverDuePushes(t *testing.T) {
	m := newFakeMessenger()
	d := New(Config{RatePerSec: 100}, m, logx.Nop(), nil)
	due := reminder.DueTask{Task: reminder.Task{Title: "x", CreatedBy: "u"}, Ordinal: 3}
	if err := d.DeliverDue(context.Background(), "C1", due); err != nil {
		t.Fatalf("DeliverDue: %v", err)
	}
	if len(m.pushes["C1"]) != 1 || !strings.Contains(m.pushes["C1"][0], "#3") {
		t.Fatalf("pushes = %v", m.pushes)
	}

	m.pushErr = errors.New("blocked by user")
	if err := d.DeliverDue(context.Background(), "C1", due); err == nil {
		t.Fatalf("expected push error")
	}
}

func TestReplyUsesToken(t *testing.T) {
	m := newFakeMessenger()
	d := New(Config{}, m, logx.Nop(), nil)
	msg := &transport.Message{ConversationID: "C1", ReplyToken: "tok"}
	if err := d.Reply(context.Background(), msg, "hi"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(m.replies) != 1 || m.replies[0] != "tok|hi" {
		t.Fatalf("replies = %v", m.replies)
	}
	if len(m.pushes) != 0 {
		t.Fatalf("unexpected push: %v", m.pushes)
	}
}

func TestReplyFallsBackToPushOnExpiredToken(t *testing.T) {
	m := newFakeMessenger()
	m.replyErr = transport.ErrExpiredToken
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, "notifier.")
	defer unsub()
	d := New(Config{}, m, logx.Nop(), bus)

	msg := &transport.Message{ConversationID: "G1", ReplyToken: "stale"}
	if err := d.Reply(context.Background(), msg, "hello"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got := m.pushes["G1"]; len(got) != 1 || got[0] != "hello" {
		t.Fatalf("pushes = %v", m.pushes)
	}
	e := <-events
	if n, ok := e.Data.(eventbus.Notify); !ok || n.Mode != ModeReplyFallback || e.Type != eventbus.NotifySent {
		t.Fatalf("event = %+v", e)
	}
}

func TestReplyOtherErrorsNoFallback(t *testing.T) {
	m := newFakeMessenger()
	m.replyErr = errors.New("500 internal")
	d := New(Config{}, m, logx.Nop(), nil)

	msg := &transport.Message{ConversationID: "C1", ReplyToken: "tok"}
	if err := d.Reply(context.Background(), msg, "x"); err == nil {
		t.Fatalf("expected error")
	}
	if len(m.pushes) != 0 {
		t.Fatalf("must not push on non-expiry errors")
	}

	// expired token without a conversation id cannot fall back
	m.replyErr = transport.ErrExpiredToken
	if err := d.Reply(context.Background(), &transport.Message{ReplyToken: "tok"}, "x"); !errors.Is(err, transport.ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
}

func TestReplyWithoutTokenPushes(t *testing.T) {
	m := newFakeMessenger()
	d := New(Config{}, m, logx.Nop(), nil)
	if err := d.Reply(context.Background(), &transport.Message{ConversationID: "C1"}, "x"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(m.pushes["C1"]) != 1 {
		t.Fatalf("pushes = %v", m.pushes)
	}
}

func TestPushHonoursCancellation(t *testing.T) {
	m := newFakeMessenger()
	d := New(Config{RatePerSec: 1}, m, logx.Nop(), nil)
	ctx := context.Background()
	// burst of one
	if err := d.Push(ctx, "C1", "a"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := d.Push(cctx, "C1", "b"); err == nil {
		t.Fatalf("expected cancelled push to fail")
	}
}
