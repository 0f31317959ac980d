package reminder

import "time"

type IntentKind int

const (
	IntentIgnore IntentKind = iota
	IntentPing
	IntentShowTime
	IntentShowHelp
	IntentListTasks
	IntentCancelAll
	IntentDiagnostics
	IntentTestTask
	IntentForceDeliver
	IntentForceBackup
	IntentCancelByIndex
	IntentInvalidCancelIndex
	IntentScheduleTask
	IntentInvalidDate
	IntentUnrecognized
)

var intentNames = [...]string{
	IntentIgnore:             "ignore",
	IntentPing:               "ping",
	IntentShowTime:           "show_time",
	IntentShowHelp:           "show_help",
	IntentListTasks:          "list_tasks",
	IntentCancelAll:          "cancel_all",
	IntentDiagnostics:        "diagnostics",
	IntentTestTask:           "test_task",
	IntentForceDeliver:       "force_deliver",
	IntentForceBackup:        "force_backup",
	IntentCancelByIndex:      "cancel_by_index",
	IntentInvalidCancelIndex: "invalid_cancel_index",
	IntentScheduleTask:       "schedule_task",
	IntentInvalidDate:        "invalid_date",
	IntentUnrecognized:       "unrecognized",
}

func (k IntentKind) String() string {
	if k >= 0 && int(k) < len(intentNames) {
		return intentNames[k]
	}
	return "unknown"
}

// Intent is the parsed form of one inbound message.
type Intent struct {
	Kind IntentKind

	// Index is the 1-based ordinal for IntentCancelByIndex.
	Index int

	// Schedule is set for IntentScheduleTask and IntentInvalidDate.
	Schedule ScheduleSpec
}

// ScheduleSpec is the literal content of a schedule command.
// Year is the civil (Gregorian) year.
type ScheduleSpec struct {
	Title       string
	Description string

	Day, Month, Year int
	Hour, Minute     int

	// At is the scheduled instant in the parser's zone. Zero for IntentInvalidDate.
	At time.Time
}
