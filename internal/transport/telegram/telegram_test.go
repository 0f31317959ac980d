package telegram

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestReplyTokenRoundTrip(t *testing.T) {
	tok := replyToken(-100123, 42)
	if tok != "-100123:42" {
		t.Fatalf("token = %q", tok)
	}
	chat, msg, err := parseReplyToken(tok)
	if err != nil || chat != -100123 || msg != 42 {
		t.Fatalf("parse = %d %d %v", chat, msg, err)
	}
	for _, bad := range []string{"", "abc", "1:", ":2", "1:x", "1:0"} {
		if _, _, err := parseReplyToken(bad); err == nil {
			t.Fatalf("parseReplyToken(%q) accepted", bad)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err     error
		expired bool
	}{
		{errors.New("telegram: Bad Request: message to be replied not found (400)"), true},
		{errors.New("telegram: Bad Request: replied message not found (400)"), true},
		{errors.New("telegram: Forbidden: bot was blocked by the user (403)"), false},
	}
	for _, tt := range tests {
		got := classify(tt.err)
		if errors.Is(got, transport.ErrExpiredToken) != tt.expired {
			t.Fatalf("classify(%v) = %v", tt.err, got)
		}
	}
	if classify(nil) != nil {
		t.Fatalf("classify(nil) != nil")
	}
}

func TestScopeOf(t *testing.T) {
	tests := map[tele.ChatType]transport.Scope{
		tele.ChatPrivate:    transport.ScopeUser,
		tele.ChatGroup:      transport.ScopeGroup,
		tele.ChatSuperGroup: transport.ScopeGroup,
		tele.ChatChannel:    transport.ScopeRoom,
	}
	for in, want := range tests {
		if got := scopeOf(in); got != want {
			t.Fatalf("scopeOf(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestSplitText(t *testing.T) {
	short := "hello"
	if got := splitText(short, 10); len(got) != 1 || got[0] != short {
		t.Fatalf("split short = %v", got)
	}
	long := strings.Repeat("ก", 25)
	got := splitText(long, 10)
	if len(got) != 3 || got[0] != strings.Repeat("ก", 10) || got[2] != strings.Repeat("ก", 5) {
		t.Fatalf("split long = %v", got)
	}
	lines := "aaaa\nbbbb\ncccc"
	got = splitText(lines, 10)
	if len(got) != 2 || got[0] != "aaaa\nbbbb" || got[1] != "cccc" {
		t.Fatalf("split lines = %q", got)
	}
}

func newOffline(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestInboundMessageMapping(t *testing.T) {
	a := newOffline(t)
	out := make(chan transport.Update, 1)
	a.out.Store((chan<- transport.Update)(out))

	a.handleMessage(&tele.Message{
		ID:     7,
		Text:   "//list",
		Chat:   &tele.Chat{ID: -55, Type: tele.ChatSuperGroup},
		Sender: &tele.User{ID: 9, FirstName: "Somchai", LastName: "J"},
	})
	up := <-out
	m := up.Message
	if m.ConversationID != "-55" || m.Scope != transport.ScopeGroup || m.UserID != "9" || m.ReplyToken != "-55:7" || m.Text != "//list" {
		t.Fatalf("message = %+v", m)
	}
	if name, ok := a.cachedName("-55", "9"); !ok || name != "Somchai J" {
		t.Fatalf("cached name = %q %v", name, ok)
	}

	// full channel drops instead of blocking the poller
	a.handleMessage(&tele.Message{ID: 8, Chat: &tele.Chat{ID: -55}})
	a.handleMessage(&tele.Message{ID: 9, Chat: &tele.Chat{ID: -55}})
	if a.droppedUpdates.Load() != 1 {
		t.Fatalf("dropped = %d, want 1", a.droppedUpdates.Load())
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestReplyRejectsMalformedToken(t *testing.T) {
	a := newOffline(t)
	err := a.Reply(t.Context(), "not-a-token", "hi")
	if !errors.Is(err, transport.ErrExpiredToken) {
		t.Fatalf("Reply err = %v", err)
	}
}
