package reminder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// taskRecord is the on-disk shape of one task in a backup.
type taskRecord struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	ScheduledAt string `json:"scheduled_at"`
}

// naive ISO-8601 layouts (no offset) written by older backups.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// EncodeSnapshot serialises snap as UTF-8 JSON keyed by conversation id.
// Timestamps are RFC 3339 in loc.
func EncodeSnapshot(snap Snapshot, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = Zone(DefaultUTCOffsetHours)
	}
	out := make(map[string][]taskRecord, len(snap))
	for conv, q := range snap {
		recs := make([]taskRecord, 0, len(q))
		for _, t := range q {
			recs = append(recs, taskRecord{
				Title:       t.Title,
				Description: t.Description,
				CreatedBy:   t.CreatedBy,
				ScheduledAt: t.ScheduledAt.In(loc).Format(time.RFC3339Nano),
			})
		}
		out[conv] = recs
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot parses a backup. Offset-less timestamps are read in loc.
func DecodeSnapshot(b []byte, loc *time.Location) (Snapshot, error) {
	if loc == nil {
		loc = Zone(DefaultUTCOffsetHours)
	}
	var in map[string][]taskRecord
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snap := make(Snapshot, len(in))
	for conv, recs := range in {
		q := make([]Task, 0, len(recs))
		for i, r := range recs {
			at, err := parseTimestamp(r.ScheduledAt, loc)
			if err != nil {
				return nil, fmt.Errorf("decode snapshot: %s[%d]: %w", conv, i, err)
			}
			q = append(q, Task{
				Title:       r.Title,
				Description: r.Description,
				CreatedBy:   r.CreatedBy,
				ScheduledAt: at,
			})
		}
		snap[conv] = q
	}
	return snap, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid scheduled_at %q", s)
}
