// Package telegram is the Telegram platform adapter: long-poll inbound
// updates plus reply, push and display-name lookups through telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const Name = "telegram"

const textLimit = 4000

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Offline skips the getMe call in New. Used by tests.
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- transport.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	droppedUpdates atomic.Uint64

	// names caches sender display names seen on inbound messages,
	// keyed by "chat|user".
	namesMu sync.RWMutex
	names   map[string]string
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:   cfg,
		log:   log.With(logx.String("comp", "telegram")),
		bot:   b,
		names: make(map[string]string),
	}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if m := c.Message(); m != nil {
			a.handleMessage(m)
		}
		return nil
	})
	return a, nil
}

func (a *Adapter) Name() string { return Name }

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) handleMessage(m *tele.Message) {
	if m.Chat == nil {
		return
	}
	conv := strconv.FormatInt(m.Chat.ID, 10)
	msg := &transport.Message{
		ID:             conv + ":" + strconv.Itoa(m.ID),
		ConversationID: conv,
		Scope:          scopeOf(m.Chat.Type),
		Text:           m.Text,
		ReplyToken:     replyToken(m.Chat.ID, m.ID),
		ReceivedAt:     time.Now(),
	}
	if m.Sender != nil {
		msg.UserID = strconv.FormatInt(m.Sender.ID, 10)
		a.rememberName(conv, msg.UserID, displayName(m.Sender))
	}
	a.sendUpdate(transport.Update{Kind: transport.UpdateMessage, Message: msg})
}

func (a *Adapter) sendUpdate(up transport.Update) {
	out, _ := a.out.Load().(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// a broken poll loop must not take the whole app down
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; restart it if it returns early.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("telebot poller exited")
		}
		return nil
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))

	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.droppedUpdates.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.droppedUpdates.Load()))
	sup.Cancel()
	go a.bot.Stop()

	// getUpdates may still be waiting on its long poll; never block shutdown on it.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// Reply answers the message identified by token ("chatID:messageID").
func (a *Adapter) Reply(ctx context.Context, token, text string) error {
	chatID, msgID, err := parseReplyToken(token)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrExpiredToken, err)
	}
	err = a.send(ctx, chatID, text, &tele.SendOptions{ReplyTo: &tele.Message{ID: msgID}})
	return classify(err)
}

func (a *Adapter) Push(ctx context.Context, conversationID, text string) error {
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", conversationID)
	}
	return a.send(ctx, chatID, text, &tele.SendOptions{})
}

func (a *Adapter) send(ctx context.Context, chatID int64, text string, opt *tele.SendOptions) error {
	chat := &tele.Chat{ID: chatID}
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := *opt
		if i > 0 {
			o.ReplyTo = nil
		}
		if _, err := a.bot.Send(chat, chunk, &o); err != nil {
			return err
		}
	}
	return nil
}

// DisplayName prefers the name seen on the user's last message and falls
// back to a getChatMember lookup.
func (a *Adapter) DisplayName(ctx context.Context, conversationID, userID string) (string, error) {
	if name, ok := a.cachedName(conversationID, userID); ok {
		return name, nil
	}
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: invalid chat id %q", conversationID)
	}
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: invalid user id %q", userID)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	member, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: uid})
	if err != nil {
		return "", err
	}
	if member == nil || member.User == nil {
		return "", errors.New("telegram: empty chat member")
	}
	name := displayName(member.User)
	a.rememberName(conversationID, userID, name)
	return name, nil
}

func (a *Adapter) rememberName(conv, user, name string) {
	if name == "" {
		return
	}
	a.namesMu.Lock()
	a.names[conv+"|"+user] = name
	a.namesMu.Unlock()
}

func (a *Adapter) cachedName(conv, user string) (string, bool) {
	a.namesMu.RLock()
	defer a.namesMu.RUnlock()
	name, ok := a.names[conv+"|"+user]
	return name, ok
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}

func scopeOf(t tele.ChatType) transport.Scope {
	switch t {
	case tele.ChatPrivate:
		return transport.ScopeUser
	case tele.ChatGroup, tele.ChatSuperGroup:
		return transport.ScopeGroup
	default:
		return transport.ScopeRoom
	}
}

func replyToken(chatID int64, msgID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(msgID)
}

func parseReplyToken(token string) (int64, int, error) {
	chat, msg, ok := strings.Cut(token, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed reply token %q", token)
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed reply token %q", token)
	}
	msgID, err := strconv.Atoi(msg)
	if err != nil || msgID <= 0 {
		return 0, 0, fmt.Errorf("malformed reply token %q", token)
	}
	return chatID, msgID, nil
}

// classify maps "the message to reply to is gone" onto ErrExpiredToken.
func classify(err error) error {
	if err == nil {
		return nil
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "message not found") || strings.Contains(s, "message to be replied not found") {
		return fmt.Errorf("%w: %v", transport.ErrExpiredToken, err)
	}
	return err
}

// splitText splits long messages on rune boundaries, preferring newlines.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// avoid tiny chunks
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
