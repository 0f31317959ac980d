package reminder

import (
	"reflect"
	"testing"
	"time"
)

func TestParseKeywords(t *testing.T) {
	t.Parallel()
	p := NewParser(nil)
	tests := []struct {
		in   string
		kind IntentKind
	}{
		{in: "hello there", kind: IntentIgnore},
		{in: "/list", kind: IntentIgnore},
		{in: "//", kind: IntentPing},
		{in: "  //  ", kind: IntentPing},
		{in: "//time", kind: IntentShowTime},
		{in: "//เวลา", kind: IntentShowTime},
		{in: "//HELP", kind: IntentShowHelp},
		{in: "// list", kind: IntentListTasks},
		{in: "//รายการ", kind: IntentListTasks},
		{in: "//cancel-all", kind: IntentCancelAll},
		{in: "//Cancel-All", kind: IntentCancelAll},
		{in: "//check-system", kind: IntentDiagnostics},
		{in: "//check-storage", kind: IntentDiagnostics},
		{in: "//test-notify", kind: IntentTestTask},
		{in: "//force-notify", kind: IntentForceDeliver},
		{in: "//force-backup", kind: IntentForceBackup},
		{in: "//what is this", kind: IntentUnrecognized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got := p.Parse(tt.in)
			if got.Kind != tt.kind {
				t.Fatalf("Parse(%q).Kind = %v, want %v", tt.in, got.Kind, tt.kind)
			}
		})
	}
}

func TestParseCancelIndex(t *testing.T) {
	t.Parallel()
	p := NewParser(nil)
	tests := []struct {
		in    string
		kind  IntentKind
		index int
	}{
		{in: "//cancel-2", kind: IntentCancelByIndex, index: 2},
		{in: "//cancel-10", kind: IntentCancelByIndex, index: 10},
		{in: "//ยกเลิก-1", kind: IntentCancelByIndex, index: 1},
		{in: "//cancel-abc", kind: IntentInvalidCancelIndex},
		{in: "//cancel-2x", kind: IntentInvalidCancelIndex},
		{in: "//cancel-", kind: IntentInvalidCancelIndex},
		{in: "//cancel-99999999999999999999999", kind: IntentCancelByIndex, index: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got := p.Parse(tt.in)
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Index != tt.index {
				t.Fatalf("Index = %d, want %d", got.Index, tt.index)
			}
		})
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	loc := Zone(DefaultUTCOffsetHours)
	p := NewParser(loc)

	got := p.Parse("//Meeting @5/1/69 @@10.00 Room 1")
	if got.Kind != IntentScheduleTask {
		t.Fatalf("Kind = %v, want schedule_task", got.Kind)
	}
	s := got.Schedule
	if s.Title != "Meeting" || s.Description != "Room 1" {
		t.Fatalf("unexpected title/description: %q / %q", s.Title, s.Description)
	}
	if s.Day != 5 || s.Month != 1 || s.Year != 2026 || s.Hour != 10 || s.Minute != 0 {
		t.Fatalf("unexpected date parts: %+v", s)
	}
	want := time.Date(2026, time.January, 5, 10, 0, 0, 0, loc)
	if !s.At.Equal(want) {
		t.Fatalf("At = %v, want %v", s.At, want)
	}
	if _, off := s.At.Zone(); off != 7*3600 {
		t.Fatalf("zone offset = %d, want UTC+7", off)
	}
}

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	p := NewParser(nil)
	tests := []struct {
		name  string
		in    string
		title string
		desc  string
		year  int
		hour  int
		min   int
	}{
		{name: "colon separator", in: "//Pay rent @1/2/67 @@9:30 transfer to landlord", title: "Pay rent", desc: "transfer to landlord", year: 2024, hour: 9, min: 30},
		{name: "no spaces", in: "//Call mom@7/1/69@@19.00bring cake", title: "Call mom", desc: "bring cake", year: 2026, hour: 19, min: 0},
		{name: "extra spaces", in: "//  Stand-up   @ 12/12/70  @@  08.15   daily sync  ", title: "Stand-up", desc: "daily sync", year: 2027, hour: 8, min: 15},
		{name: "empty description", in: "//Ping server @3/3/69 @@23.59", title: "Ping server", desc: "", year: 2026, hour: 23, min: 59},
		{name: "thai text", in: "//ตามงาน @7/1/69 @@19.00 เตรียมของ", title: "ตามงาน", desc: "เตรียมของ", year: 2026, hour: 19, min: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.in)
			if got.Kind != IntentScheduleTask {
				t.Fatalf("Kind = %v, want schedule_task", got.Kind)
			}
			s := got.Schedule
			if s.Title != tt.title || s.Description != tt.desc {
				t.Fatalf("title/desc = %q/%q, want %q/%q", s.Title, s.Description, tt.title, tt.desc)
			}
			if s.Year != tt.year || s.Hour != tt.hour || s.Minute != tt.min {
				t.Fatalf("year/hour/min = %d/%d/%d, want %d/%d/%d", s.Year, s.Hour, s.Minute, tt.year, tt.hour, tt.min)
			}
		})
	}
}

func TestParseScheduleInvalidDate(t *testing.T) {
	t.Parallel()
	p := NewParser(nil)
	for _, in := range []string{
		"//x @31/4/69 @@10.00 y",
		"//x @29/2/69 @@10.00 y",
		"//x @1/13/69 @@10.00 y",
		"//x @0/1/69 @@10.00 y",
		"//x @1/1/69 @@24.00 y",
		"//x @1/1/69 @@10.60 y",
	} {
		if got := p.Parse(in); got.Kind != IntentInvalidDate {
			t.Fatalf("Parse(%q).Kind = %v, want invalid_date", in, got.Kind)
		}
	}
	// 2024 is a leap year
	if got := p.Parse("//x @29/2/67 @@10.00 y"); got.Kind != IntentScheduleTask {
		t.Fatalf("29/2/67 should be valid, got %v", got.Kind)
	}
}

func TestParseScheduleMalformed(t *testing.T) {
	t.Parallel()
	p := NewParser(nil)
	for _, in := range []string{
		"//Meeting 5/1/69 10.00 Room",
		"//Meeting @5/1/2569 @@10.00 Room",
		"//Meeting @5/1/69 @@10.0 Room",
		"//Meeting @5/1/69 Room",
	} {
		if got := p.Parse(in); got.Kind != IntentUnrecognized {
			t.Fatalf("Parse(%q).Kind = %v, want unrecognized", in, got.Kind)
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	t.Parallel()
	p := NewParser(nil)
	in := "//Send docs @9/9/69 @@14:05 email the contract"
	a, b := p.Parse(in), p.Parse(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("parse is not deterministic: %+v vs %+v", a, b)
	}
}

func TestCivilYear(t *testing.T) {
	t.Parallel()
	if got := CivilYear(69); got != 2026 {
		t.Fatalf("CivilYear(69) = %d, want 2026", got)
	}
	if got := CivilYear(67); got != 2024 {
		t.Fatalf("CivilYear(67) = %d, want 2024", got)
	}
}
