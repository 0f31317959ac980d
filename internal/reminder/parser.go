package reminder

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Sigil prefixes every command.
const Sigil = "//"

// buddhistEraOffset converts a Buddhist-calendar year to a civil year.
const buddhistEraOffset = 543

var scheduleRe = regexp.MustCompile(`(?s)^//\s*(.*?)\s*@\s*(\d{1,2})/(\d{1,2})/(\d{2})\s*@@\s*(\d{1,2})[.:](\d{2})(.*)$`)

var keywords = map[string]IntentKind{
	"":               IntentPing,
	"time":           IntentShowTime,
	"เวลา":           IntentShowTime,
	"help":           IntentShowHelp,
	"ช่วยเหลือ":      IntentShowHelp,
	"วิธีใช้":        IntentShowHelp,
	"list":           IntentListTasks,
	"รายการ":         IntentListTasks,
	"งาน":            IntentListTasks,
	"cancel-all":     IntentCancelAll,
	"ยกเลิกทั้งหมด":  IntentCancelAll,
	"check-system":   IntentDiagnostics,
	"check-storage":  IntentDiagnostics,
	"เช็คระบบ":       IntentDiagnostics,
	"เช็คที่เก็บ":    IntentDiagnostics,
	"test-notify":    IntentTestTask,
	"ทดสอบแจ้งเตือน": IntentTestTask,
	"force-notify":   IntentForceDeliver,
	"บังคับแจ้งเตือน": IntentForceDeliver,
	"force-backup":   IntentForceBackup,
	"บังคับสำรอง":    IntentForceBackup,
}

var cancelPrefixes = []string{"cancel-", "ยกเลิก-"}

// Parser classifies chat text into intents. It has no side effects; the
// only state is the zone used to build scheduled instants.
type Parser struct {
	loc *time.Location
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = Zone(DefaultUTCOffsetHours)
	}
	return &Parser{loc: loc}
}

func (p *Parser) Location() *time.Location { return p.loc }

func (p *Parser) Parse(text string) Intent {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, Sigil) {
		return Intent{Kind: IntentIgnore}
	}

	body := strings.ToLower(strings.TrimSpace(text[len(Sigil):]))
	if k, ok := keywords[body]; ok {
		return Intent{Kind: k}
	}
	for _, prefix := range cancelPrefixes {
		if suffix, ok := strings.CutPrefix(body, prefix); ok {
			return parseCancelIndex(strings.TrimSpace(suffix))
		}
	}
	return p.parseSchedule(text)
}

func parseCancelIndex(s string) Intent {
	if s == "" {
		return Intent{Kind: IntentInvalidCancelIndex}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Intent{Kind: IntentInvalidCancelIndex}
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// all digits but too large: no queue is that long
		n = 0
	}
	return Intent{Kind: IntentCancelByIndex, Index: n}
}

func (p *Parser) parseSchedule(text string) Intent {
	m := scheduleRe.FindStringSubmatch(text)
	if m == nil {
		return Intent{Kind: IntentUnrecognized}
	}

	day, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	yy, _ := strconv.Atoi(m[4])
	hour, _ := strconv.Atoi(m[5])
	minute, _ := strconv.Atoi(m[6])

	spec := ScheduleSpec{
		Title:       strings.TrimSpace(m[1]),
		Description: strings.TrimSpace(m[7]),
		Day:         day,
		Month:       month,
		Year:        CivilYear(yy),
		Hour:        hour,
		Minute:      minute,
	}

	at, err := civilTime(spec.Year, spec.Month, spec.Day, spec.Hour, spec.Minute, p.loc)
	if err != nil {
		return Intent{Kind: IntentInvalidDate, Schedule: spec}
	}
	spec.At = at
	return Intent{Kind: IntentScheduleTask, Schedule: spec}
}

// CivilYear converts a two-digit Buddhist-era year (e.g. 69 for 2569) to the civil year.
func CivilYear(yy int) int {
	return 2500 + yy - buddhistEraOffset
}

// civilTime builds a wall-clock instant and rejects values time.Date would
// silently normalise (Feb 30, month 13, hour 24, ...).
func civilTime(year, month, day, hour, minute int, loc *time.Location) (time.Time, error) {
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day || t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}
