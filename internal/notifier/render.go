package notifier

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
)

const DefaultEmoji = "⏰"

// emojiTable is ordered; the first matching keyword set wins.
var emojiTable = []struct {
	emoji    string
	keywords []string
}{
	{"📤", []string{"send", "document", "mail", "ส่ง", "เอกสาร", "เมล"}},
	{"📅", []string{"meeting", "meet", "ประชุม", "นัด"}},
	{"📞", []string{"phone", "call", "โทร"}},
	{"💰", []string{"money", "transfer", "payment", "pay", "เงิน", "โอน", "จ่าย"}},
}

// EmojiFor picks the icon for a task description.
func EmojiFor(description string) string {
	d := strings.ToLower(description)
	for _, row := range emojiTable {
		for _, kw := range row.keywords {
			if strings.Contains(d, kw) {
				return row.emoji
			}
		}
	}
	return DefaultEmoji
}

// FormatWhen renders an instant as D/M/YYYY HH:MM in loc.
func FormatWhen(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%d/%d/%d %02d:%02d", t.Day(), int(t.Month()), t.Year(), t.Hour(), t.Minute())
}

// Render builds the text of a due-task notification.
func Render(t reminder.Task, ordinal int, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s แจ้งเตือนงาน (Reminder #%d)\n", EmojiFor(t.Description), ordinal)
	fmt.Fprintf(&b, "งาน: %s\n", t.Title)
	fmt.Fprintf(&b, "เวลา: %s\n", FormatWhen(t.ScheduledAt, loc))
	if d := strings.TrimSpace(t.Description); d != "" {
		fmt.Fprintf(&b, "รายละเอียด: %s\n", d)
	}
	fmt.Fprintf(&b, "สร้างโดย: %s", t.CreatedBy)
	return b.String()
}
