// Package notifier renders reminder messages and delivers them through the
// active messaging platform.
//
// # Delivery modes
//
// Due reminders are pushed to the conversation (no reply token exists for a
// scheduled message). Command replies use the inbound reply token; when the
// platform reports that token as expired the dispatcher falls back to a push
// into the same conversation.
//
// # Throttling
//
// Pushes share one token-bucket limiter so a large batch of due tasks does
// not trip platform rate limits.
package notifier
