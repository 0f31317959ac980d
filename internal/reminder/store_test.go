package reminder

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, time.January, 1, 12, 0, 0, 0, Zone(DefaultUTCOffsetHours))

func mustTask(t *testing.T, title string, in time.Duration) Task {
	t.Helper()
	task, err := NewTask(title, "", "tester", testNow.Add(in), testNow)
	if err != nil {
		t.Fatalf("NewTask(%q): %v", title, err)
	}
	return task
}

func titles(q []Task) []string {
	out := make([]string, 0, len(q))
	for _, t := range q {
		out = append(out, t.Title)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewTaskRejectsPast(t *testing.T) {
	t.Parallel()
	if _, err := NewTask("x", "", "u", testNow, testNow); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate for now, got %v", err)
	}
	if _, err := NewTask("x", "", "u", testNow.Add(-time.Minute), testNow); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate for past, got %v", err)
	}
	if _, err := NewTask("x", "", "u", testNow.Add(time.Second), testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStoreAddList(t *testing.T) {
	t.Parallel()
	s := NewStore()
	if got := s.Add("c1", mustTask(t, "a", time.Hour)); got != 1 {
		t.Fatalf("first ordinal = %d, want 1", got)
	}
	if got := s.Add("c1", mustTask(t, "b", time.Minute)); got != 2 {
		t.Fatalf("second ordinal = %d, want 2", got)
	}
	s.Add("c2", mustTask(t, "other", time.Hour))

	// insertion order, not due order
	if got := titles(s.List("c1")); !equalStrings(got, []string{"a", "b"}) {
		t.Fatalf("List(c1) = %v", got)
	}
	if got := s.List("missing"); len(got) != 0 {
		t.Fatalf("List(missing) = %v, want empty", got)
	}

	// List returns a copy
	l := s.List("c1")
	l[0].Title = "mutated"
	if s.List("c1")[0].Title != "a" {
		t.Fatalf("List leaked internal slice")
	}
}

func TestStoreRemoveAt(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Add("c", mustTask(t, "a", time.Hour))
	s.Add("c", mustTask(t, "b", time.Hour))
	s.Add("c", mustTask(t, "c", time.Hour))

	removed, err := s.RemoveAt("c", 2)
	if err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	if removed.Title != "b" {
		t.Fatalf("removed %q, want b", removed.Title)
	}
	if got := titles(s.List("c")); !equalStrings(got, []string{"a", "c"}) {
		t.Fatalf("after remove = %v", got)
	}

	for _, idx := range []int{0, -1, 3, 100} {
		if _, err := s.RemoveAt("c", idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("RemoveAt(%d) err = %v, want ErrIndexOutOfRange", idx, err)
		}
	}
	if _, err := s.RemoveAt("nobody", 1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("RemoveAt on unknown conversation err = %v", err)
	}
}

func TestStoreClear(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Add("c", mustTask(t, "a", time.Hour))
	s.Add("c", mustTask(t, "b", time.Hour))
	s.Add("d", mustTask(t, "keep", time.Hour))

	if n := s.Clear("c"); n != 2 {
		t.Fatalf("Clear = %d, want 2", n)
	}
	if len(s.List("c")) != 0 {
		t.Fatalf("queue not empty after Clear")
	}
	if n := s.Clear("c"); n != 0 {
		t.Fatalf("second Clear = %d, want 0", n)
	}
	if len(s.List("d")) != 1 {
		t.Fatalf("Clear touched another conversation")
	}
}

func TestStoreRemoveDue(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Add("b", mustTask(t, "b1", time.Minute))
	s.Add("a", mustTask(t, "a1", time.Hour))
	s.Add("a", mustTask(t, "a2", time.Minute))
	s.Add("a", mustTask(t, "a3", 2*time.Minute))
	s.Add("c", mustTask(t, "c1", time.Hour))

	if got := s.RemoveDue(testNow); len(got) != 0 {
		t.Fatalf("nothing should be due yet, got %v", got)
	}

	batches := s.RemoveDue(testNow.Add(2 * time.Minute))
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if batches[0].ConversationID != "a" || batches[1].ConversationID != "b" {
		t.Fatalf("batches not sorted by conversation: %s, %s", batches[0].ConversationID, batches[1].ConversationID)
	}
	a := batches[0].Tasks
	if len(a) != 2 || a[0].Title != "a2" || a[0].Ordinal != 2 || a[1].Title != "a3" || a[1].Ordinal != 3 {
		t.Fatalf("unexpected due tasks for a: %+v", a)
	}
	if got := titles(s.List("a")); !equalStrings(got, []string{"a1"}) {
		t.Fatalf("remaining a = %v", got)
	}
	if len(s.List("b")) != 0 {
		t.Fatalf("b should be drained")
	}
	if len(s.List("c")) != 1 {
		t.Fatalf("c should be untouched")
	}

	// removed tasks are never returned twice
	if got := s.RemoveDue(testNow.Add(2 * time.Minute)); len(got) != 0 {
		t.Fatalf("second RemoveDue returned %v", got)
	}
}

func TestStoreTakeAll(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Add("c", mustTask(t, "a", time.Hour))
	s.Add("c", mustTask(t, "b", 24*time.Hour))

	b := s.TakeAll("c")
	if b.ConversationID != "c" || len(b.Tasks) != 2 {
		t.Fatalf("TakeAll = %+v", b)
	}
	if b.Tasks[1].Ordinal != 2 {
		t.Fatalf("ordinal = %d, want 2", b.Tasks[1].Ordinal)
	}
	if len(s.List("c")) != 0 {
		t.Fatalf("queue not empty after TakeAll")
	}
	if got := s.TakeAll("c"); len(got.Tasks) != 0 {
		t.Fatalf("second TakeAll = %+v", got)
	}
}

func TestStoreSnapshotReplace(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Add("c", mustTask(t, "a", time.Hour))
	s.Add("empty", mustTask(t, "x", time.Hour))
	s.Clear("empty")

	snap := s.Snapshot()
	if _, ok := snap["empty"]; ok {
		t.Fatalf("snapshot should omit empty queues")
	}
	snap["c"][0].Title = "mutated"
	if s.List("c")[0].Title != "a" {
		t.Fatalf("snapshot is not a copy")
	}

	other := NewStore()
	other.Add("z", mustTask(t, "old", time.Hour))
	other.Replace(s.Snapshot())
	if len(other.List("z")) != 0 {
		t.Fatalf("Replace kept old content")
	}
	if got := titles(other.List("c")); !equalStrings(got, []string{"a"}) {
		t.Fatalf("Replace content = %v", got)
	}
}

func TestStoreStats(t *testing.T) {
	t.Parallel()
	s := NewStore()
	if st := s.Stats(); st.Pending != 0 || !st.NextDue.IsZero() {
		t.Fatalf("empty stats = %+v", st)
	}
	s.Add("a", mustTask(t, "a1", time.Hour))
	s.Add("a", mustTask(t, "a2", 10*time.Minute))
	s.Add("b", mustTask(t, "b1", 30*time.Minute))

	st := s.Stats()
	if st.Conversations != 2 || st.Pending != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if !st.NextDue.Equal(testNow.Add(10 * time.Minute)) {
		t.Fatalf("NextDue = %v", st.NextDue)
	}
}

func TestStoreConcurrent(t *testing.T) {
	t.Parallel()
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Add("c", Task{Title: "t", ScheduledAt: testNow.Add(time.Duration(j) * time.Second)})
				_ = s.List("c")
				_ = s.Snapshot()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			s.RemoveDue(testNow.Add(time.Minute))
		}
	}()
	wg.Wait()

	s.RemoveDue(testNow.Add(time.Hour))
	if st := s.Stats(); st.Pending != 0 {
		t.Fatalf("pending after drain = %d", st.Pending)
	}
}
