package router

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"remindbot/internal/notifier"
	"remindbot/internal/persistence"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
)

const usageExample = "//ตามงาน @7/1/69 @@19.00 เตรียมของ"

func pingText() string {
	return "🟢 ระบบออนไลน์อยู่ครับ\nพิมพ์ //help เพื่อดูวิธีใช้"
}

func timeText(now time.Time, loc *time.Location) string {
	return fmt.Sprintf("🕒 เวลาปัจจุบัน: %s (%s)", notifier.FormatWhen(now, loc), loc.String())
}

func helpText() string {
	var b strings.Builder
	b.WriteString("📖 วิธีใช้งาน\n")
	b.WriteString("ตั้งเตือน: //ชื่องาน @วัน/เดือน/ปี(พ.ศ. 2 หลัก) @@ชั่วโมง.นาที รายละเอียด\n")
	b.WriteString("ตัวอย่าง: " + usageExample + "\n")
	b.WriteString("ตัวอย่าง: //Meeting @5/1/69 @@10.00 Room 1\n\n")
	b.WriteString("//list ดูงานที่รอแจ้งเตือน\n")
	b.WriteString("//cancel-1 ยกเลิกงานลำดับที่ 1\n")
	b.WriteString("//cancel-all ยกเลิกทั้งหมด\n")
	b.WriteString("//time ดูเวลาปัจจุบัน\n")
	b.WriteString("//check-system ตรวจสอบสถานะระบบ\n")
	b.WriteString("//test-notify ทดสอบแจ้งเตือนใน 1 นาที\n")
	b.WriteString("//force-notify ส่งแจ้งเตือนทั้งหมดทันที\n")
	b.WriteString("//force-backup สำรองข้อมูลทันที")
	return b.String()
}

func usageText() string {
	return "รูปแบบคำสั่งไม่ถูกต้องครับ\nตัวอย่าง: " + usageExample + "\nพิมพ์ //help เพื่อดูวิธีใช้"
}

func invalidDateText() string {
	return "❌ วันที่หรือเวลาไม่ถูกต้องครับ\nตัวอย่าง: " + usageExample
}

func invalidCancelText() string {
	return "รูปแบบการยกเลิกไม่ถูกต้องครับ\nตัวอย่าง: //cancel-1 (ดูลำดับด้วย //list)"
}

func listText(q []reminder.Task, now time.Time, loc *time.Location) string {
	if len(q) == 0 {
		return "📭 ยังไม่มีงานที่รอแจ้งเตือนครับ"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 งานที่รอแจ้งเตือน (%d)", len(q))
	for i, t := range q {
		fmt.Fprintf(&b, "\n%d. %s %s | %s (%s)",
			i+1, notifier.EmojiFor(t.Description), t.Title,
			notifier.FormatWhen(t.ScheduledAt, loc), remaining(t.ScheduledAt, now))
	}
	return b.String()
}

var (
	relFutureTH = relTimeTH("อีก %s")
	relPastTH   = relTimeTH("%sที่แล้ว")
)

// relTimeTH mirrors humanize's default magnitudes with Thai units.
func relTimeTH(pattern string) []humanize.RelTimeMagnitude {
	units := []struct {
		d, div time.Duration
		unit   string
	}{
		{time.Minute, time.Second, "ไม่ถึง 1 นาที"},
		{time.Hour, time.Minute, "%d นาที"},
		{humanize.Day, time.Hour, "%d ชั่วโมง"},
		{humanize.Week, humanize.Day, "%d วัน"},
		{humanize.Month, humanize.Week, "%d สัปดาห์"},
		{humanize.Year, humanize.Month, "%d เดือน"},
		{math.MaxInt64, humanize.Year, "%d ปี"},
	}
	out := make([]humanize.RelTimeMagnitude, 0, len(units))
	for _, u := range units {
		out = append(out, humanize.RelTimeMagnitude{D: u.d, Format: fmt.Sprintf(pattern, u.unit), DivBy: u.div})
	}
	return out
}

func relTH(t, now time.Time) string {
	if t.After(now) {
		return humanize.CustomRelTime(t, now, "", "", relFutureTH)
	}
	return humanize.CustomRelTime(t, now, "", "", relPastTH)
}

func remaining(at, now time.Time) string {
	if !at.After(now) {
		return "ถึงเวลาแล้ว"
	}
	return relTH(at, now)
}

func confirmText(t reminder.Task, ordinal int, loc *time.Location) string {
	at := t.ScheduledAt.In(loc)
	var b strings.Builder
	b.WriteString("รับทราบครับ!\n")
	fmt.Fprintf(&b, "งาน: %s\n", t.Title)
	fmt.Fprintf(&b, "วันที่: %d/%d/%d\n", at.Day(), int(at.Month()), at.Year())
	fmt.Fprintf(&b, "เวลา: %02d:%02d\n", at.Hour(), at.Minute())
	fmt.Fprintf(&b, "รายละเอียด: %s\n", t.Description)
	fmt.Fprintf(&b, "ลำดับที่: #%d", ordinal)
	return b.String()
}

func pastDateText(at, now time.Time, loc *time.Location) string {
	return fmt.Sprintf("⚠️ ไม่สามารถตั้งเตือนย้อนหลังได้ครับ\nเวลาที่ระบุ: %s\nเวลาปัจจุบัน: %s",
		notifier.FormatWhen(at, loc), notifier.FormatWhen(now, loc))
}

func memoryOnlyText() string {
	return "⚠️ บันทึกไว้ในหน่วยความจำเท่านั้น (saved in memory only)"
}

func notFoundText(index int) string {
	return fmt.Sprintf("❌ ไม่พบงานลำดับที่ %d ครับ (ดูรายการด้วย //list)", index)
}

func cancelledText(index int, t reminder.Task) string {
	return fmt.Sprintf("🗑️ ยกเลิกงาน #%d: %s แล้วครับ", index, t.Title)
}

func nothingToCancelText() string {
	return "📭 ไม่มีงานให้ยกเลิกครับ"
}

func cancelledAllText(n int) string {
	return fmt.Sprintf("🗑️ ยกเลิกงานทั้งหมด %d รายการแล้วครับ", n)
}

func schedulerMissingText() string {
	return "⚠️ ระบบแจ้งเตือนยังไม่พร้อมครับ"
}

func forceDeliverText(out []scheduler.Outcome) string {
	if len(out) == 0 {
		return "📭 ไม่มีงานค้างให้ส่งครับ"
	}
	ok := 0
	var b strings.Builder
	for _, o := range out {
		if o.Err != nil {
			fmt.Fprintf(&b, "\n❌ #%d %s: %v", o.Ordinal, o.Title, o.Err)
			continue
		}
		ok++
		fmt.Fprintf(&b, "\n✅ #%d %s", o.Ordinal, o.Title)
	}
	return fmt.Sprintf("📤 ส่งแจ้งเตือนทันที %d/%d รายการ", ok, len(out)) + b.String()
}

func backupText(st persistence.Status, err error) string {
	if !st.Enabled {
		return "⚠️ ไม่ได้ตั้งค่าที่เก็บข้อมูล ข้อมูลอยู่ในหน่วยความจำเท่านั้น"
	}
	if err != nil {
		return "❌ สำรองข้อมูลไม่สำเร็จ: " + err.Error()
	}
	return fmt.Sprintf("💾 สำรองข้อมูลสำเร็จ (%s, %s, %s)", st.Backend, st.ObjectName, humanize.Bytes(uint64(st.LastBytes)))
}

type diagnostics struct {
	Platform  string
	Uptime    time.Duration
	StartedAt time.Time
	Now       time.Time
	Store     reminder.Stats
	Mine      int
	Persist   persistence.Status
	Sched     scheduler.Status
}

func diagnosticsText(d diagnostics, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("🩺 สถานะระบบ\n")
	fmt.Fprintf(&b, "แพลตฟอร์ม: %s\n", d.Platform)
	fmt.Fprintf(&b, "เริ่มทำงาน: %s (%s)\n", notifier.FormatWhen(d.StartedAt, loc), relTH(d.StartedAt, d.Now))
	fmt.Fprintf(&b, "งานในห้องนี้: %d\n", d.Mine)
	fmt.Fprintf(&b, "งานทั้งหมด: %d (%d ห้อง)\n", d.Store.Pending, d.Store.Conversations)
	if !d.Store.NextDue.IsZero() {
		fmt.Fprintf(&b, "งานถัดไป: %s\n", notifier.FormatWhen(d.Store.NextDue, loc))
	}

	b.WriteString("\n⏱️ ตัวตั้งเวลา\n")
	if d.Sched.Running {
		fmt.Fprintf(&b, "ทำงานทุก %s, รอบล่าสุด %s\n", d.Sched.Interval, lastAt(d.Sched.LastTickAt, d.Now))
	} else {
		b.WriteString("ไม่ได้ทำงาน\n")
	}
	fmt.Fprintf(&b, "ส่งสำเร็จ %d, ล้มเหลว %d, รอบผิดพลาด %d\n", d.Sched.Delivered, d.Sched.Failed, d.Sched.TickFailures)

	b.WriteString("\n💾 ที่เก็บข้อมูล\n")
	if !d.Persist.Enabled {
		b.WriteString("ไม่ได้ตั้งค่า (หน่วยความจำเท่านั้น)")
		return b.String()
	}
	fmt.Fprintf(&b, "%s / %s\n", d.Persist.Backend, d.Persist.ObjectName)
	fmt.Fprintf(&b, "บันทึกล่าสุด %s, สำเร็จ %d, ล้มเหลว %d", lastAt(d.Persist.LastSaveAt, d.Now), d.Persist.Saves, d.Persist.SaveFailures)
	if d.Persist.LastSaveErr != "" {
		fmt.Fprintf(&b, "\nข้อผิดพลาดล่าสุด: %s", d.Persist.LastSaveErr)
	}
	if d.Persist.LastLoadErr != "" {
		fmt.Fprintf(&b, "\nโหลดข้อมูลล้มเหลว: %s", d.Persist.LastLoadErr)
	}
	return b.String()
}

func lastAt(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return relTH(t, now)
}
