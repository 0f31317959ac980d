package notifier

import "time"

// Config controls delivery pacing.
type Config struct {
	// RatePerSec bounds push calls; burst equals the rate. 0 means 5.
	RatePerSec int
	// SendTimeout bounds each platform call; 0 means 10s.
	SendTimeout time.Duration
	// Location renders scheduled times; nil means the system zone.
	Location *time.Location
}

const (
	ModeReply         = "reply"
	ModePush          = "push"
	ModeReplyFallback = "reply_fallback"
)
