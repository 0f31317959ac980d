// Package reminder holds the reminder domain: the task model, the command
// parser that turns chat text into intents, and the in-memory task store.
package reminder

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrIndexOutOfRange is returned when a cancel target does not exist.
	ErrIndexOutOfRange = errors.New("task index out of range")
	// ErrPastDate is returned when a task is scheduled at or before now.
	ErrPastDate = errors.New("scheduled time is not in the future")
	// ErrInvalidDate is returned when the parsed date/time does not exist on the calendar.
	ErrInvalidDate = errors.New("invalid calendar date or time")
)

// DefaultUTCOffsetHours is the fixed civil offset of the system zone (UTC+7).
const DefaultUTCOffsetHours = 7

// Zone returns a fixed-offset location; it never observes DST.
func Zone(offsetHours int) *time.Location {
	if offsetHours == DefaultUTCOffsetHours {
		return defaultZone
	}
	return time.FixedZone(zoneName(offsetHours), offsetHours*3600)
}

var defaultZone = time.FixedZone(zoneName(DefaultUTCOffsetHours), DefaultUTCOffsetHours*3600)

func zoneName(h int) string {
	switch {
	case h == 0:
		return "UTC"
	case h > 0:
		return "UTC+" + strconv.Itoa(h)
	default:
		return "UTC" + strconv.Itoa(h)
	}
}

// Task is a single scheduled reminder. A task has no id; its position in
// the conversation queue is its user-facing ordinal.
type Task struct {
	Title       string
	Description string
	CreatedBy   string
	ScheduledAt time.Time
}

// Due reports whether the task is due at now (scheduled at or before now).
func (t Task) Due(now time.Time) bool {
	return !t.ScheduledAt.After(now)
}

// NewTask validates the future-only invariant and builds a Task.
func NewTask(title, description, createdBy string, at, now time.Time) (Task, error) {
	if !at.After(now) {
		return Task{}, ErrPastDate
	}
	return Task{
		Title:       title,
		Description: description,
		CreatedBy:   createdBy,
		ScheduledAt: at,
	}, nil
}

// DueTask is a task removed from the store together with the ordinal it had
// when it was discovered.
type DueTask struct {
	Task
	Ordinal int
}

// Batch groups due tasks of one conversation, in original queue order.
type Batch struct {
	ConversationID string
	Tasks          []DueTask
}
