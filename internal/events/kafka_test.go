package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

type fakeProducer struct {
	mu   sync.Mutex
	recs []*kgo.Record
	err  error
}

func (f *fakeProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.recs = append(f.recs, r)
		}
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

func TestRecordEncoding(t *testing.T) {
	s := NewSink(&fakeProducer{}, Config{Topic: "reminders"}, logx.Nop())
	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	rec, err := s.Record(eventbus.Event{
		Type: eventbus.Delivered,
		Time: at,
		Data: eventbus.Delivery{ConversationID: "C1", Ordinal: 2, Title: "Meeting", ScheduledAt: at},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Topic != "reminders" || string(rec.Key) != "C1" {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Headers) != 1 || rec.Headers[0].Key != KindHeader || string(rec.Headers[0].Value) != eventbus.Delivered {
		t.Fatalf("headers = %+v", rec.Headers)
	}
	var env struct {
		Type string `json:"type"`
		Data struct {
			ConversationID string `json:"conversation_id"`
			Ordinal        int    `json:"ordinal"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Value, &env); err != nil {
		t.Fatalf("value: %v", err)
	}
	if env.Type != eventbus.Delivered || env.Data.ConversationID != "C1" || env.Data.Ordinal != 2 {
		t.Fatalf("envelope = %+v", env)
	}

	// events without a conversation get an empty key
	rec, _ = s.Record(eventbus.Event{Type: eventbus.SaveCompleted, Data: eventbus.Save{Backend: "file"}})
	if len(rec.Key) != 0 {
		t.Fatalf("key = %q", rec.Key)
	}
}

func TestPublishError(t *testing.T) {
	p := &fakeProducer{err: errors.New("broker down")}
	s := NewSink(p, Config{Topic: "t"}, logx.Nop())
	if err := s.Publish(context.Background(), eventbus.Event{Type: eventbus.SaveFailed}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunFiltersAndShips(t *testing.T) {
	p := &fakeProducer{}
	s := NewSink(p, Config{Topic: "t"}, logx.Nop())
	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, bus) }()

	deadline := time.Now().Add(5 * time.Second)
	for p.count() == 0 {
		bus.Publish(eventbus.Event{Type: eventbus.TickCompleted})
		bus.Publish(eventbus.Event{Type: eventbus.TaskCreated, Data: eventbus.TaskChange{ConversationID: "C1", Count: 1}})
		if time.Now().After(deadline) {
			t.Fatalf("nothing shipped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.recs {
		if string(r.Headers[0].Value) == eventbus.TickCompleted {
			t.Fatalf("scheduler events must not be shipped")
		}
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(Config{Topic: "t"}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewClient(Config{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected error without topic")
	}
}
