package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/messageai/tacsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Connecting},
		{Booting, Offline},
		{Booting, Error},
		{Connecting, Online},
		{Connecting, Offline},
		{Online, Offline},
		{Offline, Connecting},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Online); err == nil {
		t.Error("Transition(BOOTING -> ONLINE) should fail")
	}
	if m.Current() != Booting {
		t.Errorf("state = %s after rejected transition, want BOOTING", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Offline); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		sc, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if sc.From != Booting || sc.To != Offline {
			t.Errorf("change = %+v, want BOOTING->OFFLINE", sc)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}

func TestWaitFor(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Offline)

	done := make(chan error, 1)
	go func() { done <- m.WaitFor(context.Background(), Online) }()

	select {
	case err := <-done:
		t.Fatalf("WaitFor returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	walkTo(t, m, Online)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitFor err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return after reaching ONLINE")
	}
}

func TestWaitForCanceled(t *testing.T) {
	m := NewMachine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.WaitFor(ctx, Online); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWatchClosesOnChange(t *testing.T) {
	m := NewMachine(nil)
	w := m.Watch()
	if err := m.Transition(Offline); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w:
	default:
		t.Error("watch channel not closed after transition")
	}
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (f *fakePinger) set(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakePinger) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func TestProbeDrivesConnectivity(t *testing.T) {
	ctx := context.Background()
	p := &fakePinger{err: errors.New("down")}
	m := NewMachine(nil)
	probe := NewProbe(p, m, time.Second, nil)

	probe.Check(ctx)
	if m.Current() != Offline {
		t.Fatalf("state = %s, want OFFLINE", m.Current())
	}

	p.set(nil)
	probe.Check(ctx)
	if m.Current() != Online {
		t.Fatalf("state = %s, want ONLINE", m.Current())
	}

	p.set(errors.New("down again"))
	probe.Check(ctx)
	if m.Current() != Offline {
		t.Errorf("state = %s, want OFFLINE", m.Current())
	}
}

// walkTo transitions m from Booting to target via valid transitions.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:    {},
		Connecting: {Connecting},
		Online:     {Connecting, Online},
		Offline:    {Offline},
		Error:      {Error},
	}
	cur := m.Current()
	path := paths[target]
	if cur == Offline && target == Online {
		path = []State{Connecting, Online}
	}
	for _, s := range path {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
