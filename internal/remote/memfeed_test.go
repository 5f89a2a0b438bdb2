package remote

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func waitBatch(t *testing.T, ch <-chan []Change) []Change {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for batch")
		return nil
	}
}

func TestPushIsIdempotentByID(t *testing.T) {
	f := NewMemFeed()
	ctx := context.Background()
	var clock int64 = 1000
	f.SetClock(func() int64 { clock += 10; return clock })

	if err := f.PushMessage(ctx, Message{ID: "m1", ChatID: "c1", SenderID: "u1", Text: strPtr("first")}); err != nil {
		t.Fatal(err)
	}
	first, _ := f.Message("m1")
	if err := f.PushMessage(ctx, Message{ID: "m1", ChatID: "c1", SenderID: "u1", Text: strPtr("second")}); err != nil {
		t.Fatal(err)
	}

	if n := f.Count("c1"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	got, _ := f.Message("m1")
	if *got.Text != "second" {
		t.Errorf("text = %q, want second", *got.Text)
	}
	if *got.ServerTimestamp != *first.ServerTimestamp {
		t.Errorf("server timestamp moved from %d to %d", *first.ServerTimestamp, *got.ServerTimestamp)
	}
	if got.Status != "sent" {
		t.Errorf("status = %q, want sent", got.Status)
	}
}

func TestPageMessagesStrictlyOlder(t *testing.T) {
	f := NewMemFeed()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		ts := int64(100 * (i + 1))
		if err := f.PushMessage(ctx, Message{ID: id, ChatID: "c1", SenderID: "u1", ServerTimestamp: &ts}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := f.PageMessages(ctx, "c1", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "d" || page[1].ID != "c" {
		t.Fatalf("first page = %v", page)
	}

	bound := *page[1].ServerTimestamp
	page, err = f.PageMessages(ctx, "c1", 2, &bound)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "b" || page[1].ID != "a" {
		t.Fatalf("second page = %v", page)
	}

	bound = *page[1].ServerTimestamp
	page, _ = f.PageMessages(ctx, "c1", 2, &bound)
	if len(page) != 0 {
		t.Errorf("third page = %v, want empty", page)
	}
}

func TestOfflineReturnsUnavailable(t *testing.T) {
	f := NewMemFeed()
	f.SetOnline(false)
	ctx := context.Background()

	if err := f.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ping err = %v", err)
	}
	if err := f.PushMessage(ctx, Message{ID: "m1", ChatID: "c1"}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("push err = %v", err)
	}
	if _, err := f.PageMessages(ctx, "c1", 10, nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("page err = %v", err)
	}

	f.SetOnline(true)
	if err := f.Ping(ctx); err != nil {
		t.Errorf("ping after online: %v", err)
	}
}

func TestSubscriptionSnapshotThenChanges(t *testing.T) {
	f := NewMemFeed()
	ctx := context.Background()
	if err := f.PushMessage(ctx, Message{ID: "m1", ChatID: "c1", SenderID: "u1"}); err != nil {
		t.Fatal(err)
	}

	batches := make(chan []Change, 10)
	sub, err := f.SubscribeMessages(ctx, "c1", func(b []Change) { batches <- b })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	snap := waitBatch(t, batches)
	if len(snap) != 1 || snap[0].Type != Added || snap[0].Message.ID != "m1" {
		t.Fatalf("snapshot = %+v", snap)
	}

	if err := f.MarkDelivered(ctx, "c1", "m1", "u2"); err != nil {
		t.Fatal(err)
	}
	mod := waitBatch(t, batches)
	if mod[0].Type != Modified || mod[0].Message.Status != "delivered" {
		t.Fatalf("change = %+v, want modified/delivered", mod[0])
	}

	// A second mark is a no-op.
	if err := f.MarkDelivered(ctx, "c1", "m1", "u2"); err != nil {
		t.Fatal(err)
	}
	f.DeleteMessage("m1")
	rm := waitBatch(t, batches)
	if rm[0].Type != Removed {
		t.Errorf("change = %v, want removed", rm[0].Type)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	f := NewMemFeed()
	ctx := context.Background()

	var calls atomic.Int32
	sub, err := f.SubscribeMessages(ctx, "c1", func([]Change) { calls.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	// Let the snapshot land.
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sub.Cancel()
	sub.Cancel()

	before := calls.Load()
	if err := f.PushMessage(ctx, Message{ID: "m1", ChatID: "c1", SenderID: "u1"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != before {
		t.Errorf("callback ran after Cancel")
	}
}

func TestSubscribeChatsFiltersByParticipant(t *testing.T) {
	f := NewMemFeed()
	ctx := context.Background()
	f.PutChat(Chat{ID: "u1_u2", Type: "direct", Participants: []string{"u1", "u2"}})
	f.PutChat(Chat{ID: "u3_u4", Type: "direct", Participants: []string{"u3", "u4"}})

	got := make(chan []Chat, 10)
	sub, err := f.SubscribeChats(ctx, "u1", func(c []Chat) { got <- c })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	select {
	case chats := <-got:
		if len(chats) != 1 || chats[0].ID != "u1_u2" {
			t.Fatalf("snapshot = %+v", chats)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chats")
	}

	if err := f.PushMessage(ctx, Message{ID: "m1", ChatID: "u1_u2", SenderID: "u2", Text: strPtr("hi")}); err != nil {
		t.Fatal(err)
	}
	select {
	case chats := <-got:
		if chats[0].LastMessage == nil || *chats[0].LastMessage.Text != "hi" {
			t.Errorf("last message = %+v", chats[0].LastMessage)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chat update")
	}
}
