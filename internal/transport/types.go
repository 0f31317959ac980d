package transport

import (
	"context"
	"errors"
	"time"
)

// ErrExpiredToken is returned by Messenger.Reply when the reply token is no
// longer usable (expired, already consumed, or pointing at a deleted message).
// Callers may fall back to Push.
var ErrExpiredToken = errors.New("reply token expired or invalid")

// Scope is the kind of conversation a message originated from.
type Scope string

const (
	ScopeUser  Scope = "user"
	ScopeGroup Scope = "group"
	ScopeRoom  Scope = "room"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is an inbound, already authenticated text message.
type Message struct {
	// ID is a transport-independent request id used for log correlation.
	ID string

	ConversationID string
	Scope          Scope
	UserID         string
	Text           string

	// ReplyToken is short-lived and tied to this message. Empty if the
	// platform does not support replies.
	ReplyToken string
	ReceivedAt time.Time
}

// Messenger is the outbound half of a chat platform.
type Messenger interface {
	Reply(ctx context.Context, token, text string) error
	Push(ctx context.Context, conversationID, text string) error
	DisplayName(ctx context.Context, conversationID, userID string) (string, error)
}

// Adapter is a chat platform: inbound updates plus the Messenger API.
type Adapter interface {
	Messenger

	Name() string
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
