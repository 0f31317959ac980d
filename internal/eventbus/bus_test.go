package eventbus

import "testing"

func TestPublishPrefixFilter(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	rem, unsubRem := b.Subscribe(4, "reminder.")
	defer unsubRem()

	b.Publish(Event{Type: Delivered, Data: Delivery{Ordinal: 1}})
	b.Publish(Event{Type: SaveCompleted})

	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
	if len(rem) != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", len(rem))
	}
	e := <-rem
	if e.Type != Delivered || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TickCompleted})
	b.Publish(Event{Type: TickCompleted})
	b.Publish(Event{Type: TickCompleted})

	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped = %d, want 2", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	// publishing after unsubscribe must not panic
	b.Publish(Event{Type: TickFailed})
}
