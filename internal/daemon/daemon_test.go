package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/messageai/tacsync/internal/apiv1"
	"github.com/messageai/tacsync/internal/bus"
	"github.com/messageai/tacsync/internal/config"
	"github.com/messageai/tacsync/internal/lock"
	"github.com/messageai/tacsync/internal/logging"
	"github.com/messageai/tacsync/internal/profile"
	"github.com/messageai/tacsync/internal/remote"
	"github.com/messageai/tacsync/internal/status"
)

func testParams(t *testing.T) Params {
	t.Helper()
	// Use a short path to avoid the 104-char Unix socket limit on macOS.
	root, err := os.MkdirTemp("/tmp", "tacsync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(root) })

	cfg := config.DefaultProfile()
	cfg.UserID = "u1"
	cfg.Sync.ProbeInterval = config.Duration{Duration: 20 * time.Millisecond}
	cfg.Outbox.InitialBackoff = config.Duration{Duration: 10 * time.Millisecond}
	cfg.Outbox.MaxBackoff = config.Duration{Duration: 50 * time.Millisecond}

	return Params{
		Profile:    "test",
		Layout:     profile.Layout{Root: root},
		Config:     cfg,
		Dev:        true,
		SocketPath: filepath.Join(root, "d.sock"),
		Log:        logging.Options{Quiet: true},
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	p := testParams(t)
	var r *Remote
	app := fxtest.New(t, Module(p), fx.Populate(&r))
	app.RequireStart()

	info, err := os.Stat(p.SocketPath)
	if err != nil {
		t.Fatalf("socket not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}

	c, err := apiv1.Dial(p.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	eventually(t, "online", func() bool {
		st, err := c.Sync.GetStatus(ctx)
		return err == nil && st.State == string(status.Online)
	})

	st, err := c.Sync.GetStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Profile != "test" || st.UserID != "u1" {
		t.Errorf("status = %+v", st)
	}

	sent, err := c.Message.SendText(ctx, &apiv1.SendTextRequest{ChatID: "u1_u2", Text: "over"})
	if err != nil {
		t.Fatal(err)
	}
	if !sent.Accepted || sent.Message.Status != "sending" {
		t.Fatalf("send = %+v", sent)
	}

	eventually(t, "delivery to the feed", func() bool {
		_, ok := r.Mem.Message(sent.Message.ID)
		return ok
	})
	eventually(t, "empty send queue", func() bool {
		pending, err := c.Message.ListPending(ctx)
		return err == nil && len(pending.Entries) == 0
	})

	page, err := c.Message.ListMessages(ctx, &apiv1.ListMessagesRequest{ChatID: "u1_u2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 1 || !page.Messages[0].Synced {
		t.Errorf("page = %+v", page.Messages)
	}

	app.RequireStop()
	if _, err := os.Stat(p.SocketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after stop: %v", err)
	}
	if _, err := os.Stat(p.Layout.LockPath(p.Profile)); !os.IsNotExist(err) {
		t.Errorf("lock still present after stop: %v", err)
	}
}

func TestWatchStreamsOverSocket(t *testing.T) {
	p := testParams(t)
	app := fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()

	c, err := apiv1.Dial(p.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := c.Chat.WatchChats(ctx, &apiv1.WatchRequest{})
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan *apiv1.EventEnvelope, 1)
	go func() {
		env, err := stream.Recv()
		if err == nil {
			got <- env
		}
	}()

	// The stream subscribes asynchronously; keep writing until a notice lands.
	deadline := time.After(3 * time.Second)
	for {
		if _, err := c.Message.SendText(ctx, &apiv1.SendTextRequest{ChatID: "u1_u3", Text: "ping"}); err != nil {
			t.Fatal(err)
		}
		select {
		case env := <-got:
			if env.Kind == "" || env.Profile != "test" {
				t.Errorf("envelope = %+v", env)
			}
			cancel()
			return
		case <-deadline:
			t.Fatal("no chat notice streamed")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestChatOpenedOfflineGoesLiveAfterReconnect(t *testing.T) {
	p := testParams(t)
	var r *Remote
	app := fxtest.New(t, Module(p), fx.Populate(&r))
	app.RequireStart()
	defer app.RequireStop()

	c, err := apiv1.Dial(p.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state := func(want status.State) func() bool {
		return func() bool {
			st, err := c.Sync.GetStatus(ctx)
			return err == nil && st.State == string(want)
		}
	}
	eventually(t, "online", state(status.Online))
	r.Mem.SetOnline(false)
	eventually(t, "offline", state(status.Offline))

	open, err := c.Sync.OpenChat(ctx, &apiv1.OpenChatRequest{ChatID: "u1_u2"})
	if err != nil {
		t.Fatal(err)
	}
	if open.Live {
		t.Fatalf("open while offline = %+v, want not live", open)
	}
	st, err := c.Sync.GetStatus(ctx)
	if err != nil || st.OpenChat != "u1_u2" {
		t.Fatalf("status = %+v, %v; want open chat u1_u2", st, err)
	}

	stream, err := c.Message.WatchMessages(ctx, &apiv1.WatchRequest{ChatID: "u1_u2"})
	if err != nil {
		t.Fatal(err)
	}
	hint := make(chan struct{}, 1)
	go func() {
		for {
			env, err := stream.Recv()
			if err != nil {
				return
			}
			if env.Kind == bus.KindDataChanged {
				hint <- struct{}{}
				return
			}
		}
	}()

	r.Mem.SetOnline(true)
	eventually(t, "online again", state(status.Online))
	text := "while you were away"
	ts := time.Now().UnixMilli()
	if err := r.Mem.PushMessage(ctx, remote.Message{
		ID: "r1", ChatID: "u1_u2", SenderID: "u2", Text: &text, ServerTimestamp: &ts,
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-hint:
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not attach after reconnect")
	}
}

func TestSecondDaemonFailsOnLock(t *testing.T) {
	p := testParams(t)
	app := fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()

	second := p
	second.SocketPath = filepath.Join(p.Layout.Root, "d2.sock")
	err := fx.New(Module(second), fx.NopLogger).Err()
	var held *lock.HeldError
	if !errors.As(err, &held) {
		t.Fatalf("second daemon error = %v, want HeldError", err)
	}
}
