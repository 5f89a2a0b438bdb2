package remote

import "sync"

// Dispatcher serializes callback delivery for one subscription and makes
// Cancel wait for an in-flight callback. Feed implementations share it.
type Dispatcher[T any] struct {
	mu       sync.Mutex // held while a callback runs
	stateMu  sync.Mutex
	canceled bool
	fn       func(T)
	onCancel func()
}

// NewDispatcher wraps fn. onCancel, if set, runs once after Cancel has
// stopped delivery.
func NewDispatcher[T any](fn func(T), onCancel func()) *Dispatcher[T] {
	return &Dispatcher[T]{fn: fn, onCancel: onCancel}
}

// Deliver runs the callback unless the subscription was canceled.
// It reports whether the callback ran.
func (d *Dispatcher[T]) Deliver(v T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Canceled() {
		return false
	}
	d.fn(v)
	return true
}

// Canceled reports whether Cancel has been called.
func (d *Dispatcher[T]) Canceled() bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.canceled
}

// Cancel implements Subscription.
func (d *Dispatcher[T]) Cancel() {
	d.stateMu.Lock()
	if d.canceled {
		d.stateMu.Unlock()
		return
	}
	d.canceled = true
	d.stateMu.Unlock()

	// Wait out a running callback. Cancel must not be called from inside fn.
	d.mu.Lock()
	d.mu.Unlock()

	if d.onCancel != nil {
		d.onCancel()
	}
}

// Queue is an unbounded FIFO drained by one goroutine into a Dispatcher, so
// producers never block on a slow subscriber and delivery stays ordered.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewQueue starts a drain goroutine delivering into d.
func NewQueue[T any](d *Dispatcher[T]) *Queue[T] {
	q := &Queue[T]{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go q.run(d)
	return q
}

// Push appends v for delivery.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops the drain goroutine. Undelivered items are dropped.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}

func (q *Queue[T]) run(d *Dispatcher[T]) {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
		for {
			q.mu.Lock()
			if len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			v := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			if !d.Deliver(v) {
				return
			}
		}
	}
}
