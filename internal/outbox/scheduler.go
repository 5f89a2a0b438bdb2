package outbox

import (
	"context"
	gosync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/status"
)

// Policy controls retry timing.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts bounds failed runs per scheduling; 0 retries forever.
	MaxAttempts int
}

// DefaultPolicy doubles from 2s and caps the delay at 5h, with no attempt limit.
var DefaultPolicy = Policy{
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     5 * time.Hour,
}

// Backoff returns the delay before retry number attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	if d <= 0 {
		d = DefaultPolicy.InitialBackoff
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = DefaultPolicy.MaxBackoff
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}

// Scheduler runs unique work per message id. Scheduling an id that already
// has work replaces it; the new work starts only after the old one exited,
// so at most one run per id is ever in flight. Runs only happen while the
// machine is Online, and going offline cancels a run in progress.
type Scheduler struct {
	runner  Runner
	machine *status.Machine
	policy  Policy
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu   gosync.Mutex
	jobs map[string]*job
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. A nil machine means no network
// constraint.
func NewScheduler(r Runner, m *status.Machine, p Policy, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:  r,
		machine: m,
		policy:  p,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
	}
}

// Schedule enqueues work for messageID, replacing existing work for it.
// After Stop it does nothing.
func (s *Scheduler) Schedule(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	var prev chan struct{}
	if old, ok := s.jobs[messageID]; ok {
		old.cancel()
		prev = old.done
	}
	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{cancel: cancel, done: make(chan struct{})}
	s.jobs[messageID] = j

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(j.done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		s.run(ctx, messageID)
		s.mu.Lock()
		if s.jobs[messageID] == j {
			delete(s.jobs, messageID)
		}
		s.mu.Unlock()
	}()
}

// Pending returns the number of ids with scheduled work.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels all work and waits for running attempts to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, messageID string) {
	attempt := 0
	for {
		if s.machine != nil {
			if err := s.machine.WaitFor(ctx, status.Online); err != nil {
				return
			}
		}

		runCtx, lost := s.constrained(ctx)
		res := s.runner.Run(runCtx, messageID)
		constraintLost := lost()
		if res == Success {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if constraintLost {
			s.logger.Debug("connectivity lost during send", zap.String("message_id", messageID))
			continue
		}

		attempt++
		if s.policy.MaxAttempts > 0 && attempt >= s.policy.MaxAttempts {
			s.logger.Warn("send attempts exhausted, leaving message queued",
				zap.String("message_id", messageID),
				zap.Int("attempts", attempt))
			return
		}
		delay := s.policy.Backoff(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// constrained derives a context canceled when the machine leaves Online.
// The returned func releases the watcher and reports whether that happened.
func (s *Scheduler) constrained(ctx context.Context) (context.Context, func() bool) {
	runCtx, cancel := context.WithCancel(ctx)
	if s.machine == nil {
		return runCtx, func() bool { cancel(); return false }
	}

	var lost atomic.Bool
	stopped := make(chan struct{})
	go func() {
		for {
			changed := s.machine.Watch()
			if s.machine.Current() != status.Online {
				lost.Store(true)
				cancel()
				return
			}
			select {
			case <-changed:
			case <-runCtx.Done():
				return
			case <-stopped:
				return
			}
		}
	}()
	return runCtx, func() bool {
		close(stopped)
		cancel()
		return lost.Load()
	}
}
