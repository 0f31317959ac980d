// Package line is the LINE Messaging API platform adapter.
//
// Inbound events arrive through Webhook (mounted by the HTTP server at
// POST /callback); outbound calls go to the reply, push and profile
// endpoints.
package line

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	Name           = "line"
	DefaultAPIBase = "https://api.line.me"

	textLimit       = 5000
	maxMessagesCall = 5
	maxErrorBody    = 64 << 10
)

type Config struct {
	ChannelAccessToken string
	ChannelSecret      string
	// APIBase overrides DefaultAPIBase.
	APIBase     string
	HTTPTimeout time.Duration
}

// APIError is a non-2xx answer from the Messaging API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("line api: http %d", e.Status)
	}
	return fmt.Sprintf("line api: http %d: %s", e.Status, e.Message)
}

type Adapter struct {
	cfg  Config
	log  logx.Logger
	http *http.Client

	runMu   sync.Mutex
	running bool
	out     atomic.Value // chan<- transport.Update

	droppedUpdates atomic.Uint64
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.ChannelAccessToken) == "" {
		return nil, errors.New("line channel access token is empty")
	}
	if strings.TrimSpace(cfg.ChannelSecret) == "" {
		return nil, errors.New("line channel secret is empty")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:  cfg,
		log:  log.With(logx.String("comp", "line")),
		http: &http.Client{Timeout: cfg.HTTPTimeout},
	}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	return a, nil
}

func (a *Adapter) Name() string { return Name }

// Start only attaches the output channel; events are pushed by the webhook.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.running = true
	a.out.Store(out)
	a.log.Info("webhook receiver attached", logx.Int("chan_cap", cap(out)))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	if n := a.droppedUpdates.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
	}
	return nil
}

func (a *Adapter) sendUpdate(up transport.Update) bool {
	out, _ := a.out.Load().(chan<- transport.Update)
	if out == nil {
		return false
	}
	select {
	case out <- up:
		return true
	default:
		a.droppedUpdates.Add(1)
		return false
	}
}

// Reply answers with a reply token. An invalid or expired token is
// reported as transport.ErrExpiredToken.
func (a *Adapter) Reply(ctx context.Context, token, text string) error {
	body, err := messagesPayload("replyToken", token, text)
	if err != nil {
		return err
	}
	_, err = a.do(ctx, http.MethodPost, "/v2/bot/message/reply", body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "invalid reply token") {
		return fmt.Errorf("%w: %v", transport.ErrExpiredToken, err)
	}
	return err
}

func (a *Adapter) Push(ctx context.Context, conversationID, text string) error {
	body, err := messagesPayload("to", conversationID, text)
	if err != nil {
		return err
	}
	_, err = a.do(ctx, http.MethodPost, "/v2/bot/message/push", body)
	return err
}

// DisplayName resolves a user's profile name. Group and room members are
// looked up through the member endpoints, which work without friendship.
func (a *Adapter) DisplayName(ctx context.Context, conversationID, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("line: empty user id")
	}
	path := "/v2/bot/profile/" + url.PathEscape(userID)
	switch {
	case strings.HasPrefix(conversationID, "C"):
		path = "/v2/bot/group/" + url.PathEscape(conversationID) + "/member/" + url.PathEscape(userID)
	case strings.HasPrefix(conversationID, "R"):
		path = "/v2/bot/room/" + url.PathEscape(conversationID) + "/member/" + url.PathEscape(userID)
	}
	resp, err := a.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	name := gjson.GetBytes(resp, "displayName").String()
	if name == "" {
		return "", errors.New("line: profile without displayName")
	}
	return name, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.APIBase+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.ChannelAccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, &APIError{Status: resp.StatusCode, Message: gjson.GetBytes(respBody, "message").String()}
	}
	return respBody, nil
}

// messagesPayload builds {"<key>": value, "messages": [{"type":"text",...}]}.
// Text longer than one message is split; at most five messages are sent.
func messagesPayload(key, value, text string) ([]byte, error) {
	b, err := sjson.SetBytes([]byte(`{"messages":[]}`), key, value)
	if err != nil {
		return nil, err
	}
	for _, chunk := range splitMessages(text) {
		b, err = sjson.SetBytes(b, "messages.-1", map[string]string{"type": "text", "text": chunk})
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func splitMessages(s string) []string {
	rs := []rune(s)
	if len(rs) <= textLimit {
		return []string{s}
	}
	var out []string
	for len(rs) > 0 && len(out) < maxMessagesCall {
		n := min(textLimit, len(rs))
		out = append(out, string(rs[:n]))
		rs = rs[n:]
	}
	return out
}
