package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessagesChanged, Key: "c1", Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessagesChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindMessagesChanged)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged})
	b.Publish(Event{Kind: KindDataChanged})

	select {
	case evt := <-ch:
		if evt.Kind != KindDataChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindDataChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestKeyFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeKey(KindMessagesChanged, "c1", 10)
	defer unsub()

	b.Notify(KindMessagesChanged, "c2")
	b.Notify(KindMessagesChanged, "c1")

	select {
	case evt := <-ch:
		if evt.Key != "c1" {
			t.Errorf("got key %q, want c1", evt.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for keyed event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event for other key: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	unsub()
	unsub()

	b.Publish(Event{Kind: KindChatsChanged})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestSignalCoalesces(t *testing.T) {
	b := New()
	sig, cancel := b.Signal(KindMessagesChanged, "c1")
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Notify(KindMessagesChanged, "c1")
	}

	select {
	case <-sig:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}

	// Give the forwarder time to drain the remaining events into the single slot.
	time.Sleep(50 * time.Millisecond)
	drained := 0
	for {
		select {
		case <-sig:
			drained++
			continue
		default:
		}
		break
	}
	if drained > 1 {
		t.Errorf("drained %d extra signals, want at most 1", drained)
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: "x"})
}
