package eventbus

import "time"

// Event types.
const (
	TaskCreated   = "reminder.created"
	TaskCancelled = "reminder.cancelled"

	Delivered      = "reminder.delivered"
	DeliveryFailed = "reminder.delivery_failed"

	TickCompleted = "scheduler.tick"
	TickFailed    = "scheduler.tick_failed"

	NotifySent   = "notifier.sent"
	NotifyFailed = "notifier.failed"

	SaveCompleted = "persistence.saved"
	SaveFailed    = "persistence.save_failed"
	LoadCompleted = "persistence.loaded"
)

// TaskChange is the payload of TaskCreated and TaskCancelled.
type TaskChange struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title,omitempty"`
	Count          int    `json:"count"`
}

// Delivery is the payload of Delivered and DeliveryFailed.
type Delivery struct {
	ConversationID string    `json:"conversation_id"`
	Ordinal        int       `json:"ordinal"`
	Title          string    `json:"title"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Forced         bool      `json:"forced,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Tick is the payload of TickCompleted and TickFailed.
type Tick struct {
	Due       int           `json:"due"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Took      time.Duration `json:"took"`
	Error     string        `json:"error,omitempty"`
}

// Notify is the payload of NotifySent and NotifyFailed.
type Notify struct {
	ConversationID string `json:"conversation_id"`
	// Mode is "reply", "push" or "reply_fallback".
	Mode  string `json:"mode"`
	Error string `json:"error,omitempty"`
}

// Save is the payload of the persistence events.
type Save struct {
	Backend string        `json:"backend"`
	Object  string        `json:"object"`
	Bytes   int           `json:"bytes"`
	Took    time.Duration `json:"took"`
	Error   string        `json:"error,omitempty"`
}
