package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TaskStarted, Data: "expiry"})

	for i, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TaskStarted {
				t.Fatalf("sub %d: type = %q", i, e.Type)
			}
			if e.Time.IsZero() {
				t.Fatalf("sub %d: time not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no event", i)
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: TaskStarted})
	b.Publish(Event{Type: TaskFinished}) // must not block
	if got := len(ch); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
	unsub()
	unsub()
	b.Publish(Event{Type: TaskFailed}) // no panic after unsubscribe
}

func TestUnsubscribeKeepsOthers(t *testing.T) {
	b := New()
	_, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubC()
	unsubA()

	b.Publish(Event{Type: ConfigReloaded})
	select {
	case e := <-c:
		if e.Type != ConfigReloaded {
			t.Fatalf("type = %q", e.Type)
		}
	default:
		t.Fatal("remaining subscriber missed the event")
	}
}
