package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	SignatureHeader = "X-Line-Signature"
	maxWebhookBody  = 1 << 20
)

// Sign returns the X-Line-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
func VerifySignature(secret string, body []byte, signature string) bool {
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Webhook returns the handler for LINE webhook deliveries.
func (a *Adapter) Webhook() http.Handler {
	return http.HandlerFunc(a.serveWebhook)
}

func (a *Adapter) serveWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if !VerifySignature(a.cfg.ChannelSecret, body, r.Header.Get(SignatureHeader)) {
		a.log.Warn("webhook signature mismatch", logx.String("remote", r.RemoteAddr))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	if !gjson.ValidBytes(body) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	msgs := ParseEvents(body)
	accepted := 0
	for _, m := range msgs {
		if a.sendUpdate(transport.Update{Kind: transport.UpdateMessage, Message: m}) {
			accepted++
		}
	}
	if dropped := len(msgs) - accepted; dropped > 0 {
		// LINE does not redeliver after a 200, so these messages are gone
		a.log.Warn("webhook updates dropped", logx.Int("dropped", dropped), logx.Int("accepted", accepted))
	} else {
		a.log.Debug("webhook handled", logx.Int("accepted", accepted))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ParseEvents extracts text message events from a webhook body. Other event
// and message types are skipped.
func ParseEvents(body []byte) []*transport.Message {
	var out []*transport.Message
	gjson.GetBytes(body, "events").ForEach(func(_, ev gjson.Result) bool {
		if ev.Get("type").String() != "message" || ev.Get("message.type").String() != "text" {
			return true
		}
		src := ev.Get("source")
		m := &transport.Message{
			ID:         ev.Get("webhookEventId").String(),
			UserID:     src.Get("userId").String(),
			Text:       ev.Get("message.text").String(),
			ReplyToken: ev.Get("replyToken").String(),
			ReceivedAt: time.Now(),
		}
		if ts := ev.Get("timestamp").Int(); ts > 0 {
			m.ReceivedAt = time.UnixMilli(ts)
		}
		switch src.Get("type").String() {
		case "group":
			m.Scope = transport.ScopeGroup
			m.ConversationID = src.Get("groupId").String()
		case "room":
			m.Scope = transport.ScopeRoom
			m.ConversationID = src.Get("roomId").String()
		default:
			m.Scope = transport.ScopeUser
			m.ConversationID = m.UserID
		}
		if m.ConversationID == "" {
			return true
		}
		out = append(out, m)
		return true
	})
	return out
}
