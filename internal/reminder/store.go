package reminder

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is a deep copy of the whole store, keyed by conversation id.
type Snapshot map[string][]Task

// Stats is a cheap summary for diagnostics.
type Stats struct {
	Conversations int       `json:"conversations"`
	Pending       int       `json:"pending"`
	NextDue       time.Time `json:"next_due,omitempty"`
}

// Store is the in-memory task store. All queue access is serialised by one
// mutex; callers own persistence.
type Store struct {
	mu     sync.Mutex
	queues map[string][]Task
}

func NewStore() *Store {
	return &Store{queues: map[string][]Task{}}
}

// Add appends t to the conversation's queue and returns its ordinal.
func (s *Store) Add(conv string, t Task) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[conv] = append(s.queues[conv], t)
	return len(s.queues[conv])
}

// List returns a copy of the conversation's queue in insertion order.
func (s *Store) List(conv string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.queues[conv]...)
}

// RemoveAt removes the task at the 1-based index.
func (s *Store) RemoveAt(conv string, index int) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[conv]
	if !ok || index < 1 || index > len(q) {
		return Task{}, ErrIndexOutOfRange
	}
	t := q[index-1]
	s.queues[conv] = append(q[:index-1:index-1], q[index:]...)
	return t, nil
}

// Clear empties the conversation's queue and returns how many tasks it held.
func (s *Store) Clear(conv string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queues[conv])
	if _, ok := s.queues[conv]; ok {
		s.queues[conv] = nil
	}
	return n
}

// RemoveDue removes every task with ScheduledAt <= now and returns them
// grouped per conversation (sorted by conversation id), each carrying the
// ordinal it had before removal.
func (s *Store) RemoveDue(now time.Time) []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Batch
	for conv, q := range s.queues {
		var due []DueTask
		keep := q[:0:0]
		for i, t := range q {
			if t.Due(now) {
				due = append(due, DueTask{Task: t, Ordinal: i + 1})
				continue
			}
			keep = append(keep, t)
		}
		if len(due) == 0 {
			continue
		}
		s.queues[conv] = keep
		out = append(out, Batch{ConversationID: conv, Tasks: due})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out
}

// TakeAll removes every pending task of one conversation regardless of due time.
func (s *Store) TakeAll(conv string) Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := Batch{ConversationID: conv}
	for i, t := range s.queues[conv] {
		b.Tasks = append(b.Tasks, DueTask{Task: t, Ordinal: i + 1})
	}
	if _, ok := s.queues[conv]; ok {
		s.queues[conv] = nil
	}
	return b
}

// Snapshot returns a deep copy of the store. Empty queues are omitted.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Snapshot, len(s.queues))
	for conv, q := range s.queues {
		if len(q) == 0 {
			continue
		}
		out[conv] = append([]Task(nil), q...)
	}
	return out
}

// Replace swaps the whole store content for snap.
func (s *Store) Replace(snap Snapshot) {
	queues := make(map[string][]Task, len(snap))
	for conv, q := range snap {
		queues[conv] = append([]Task(nil), q...)
	}
	s.mu.Lock()
	s.queues = queues
	s.mu.Unlock()
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, q := range s.queues {
		if len(q) == 0 {
			continue
		}
		st.Conversations++
		st.Pending += len(q)
		for _, t := range q {
			if st.NextDue.IsZero() || t.ScheduledAt.Before(st.NextDue) {
				st.NextDue = t.ScheduledAt
			}
		}
	}
	return st
}
