package status

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/remote"
)

// Probe pings the remote feed on an interval and drives the machine
// between Offline, Connecting and Online.
type Probe struct {
	pinger   remote.Pinger
	machine  *Machine
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewProbe creates a probe. A non-positive interval defaults to 5s.
func NewProbe(p remote.Pinger, m *Machine, interval time.Duration, logger *zap.Logger) *Probe {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		pinger:   p,
		machine:  m,
		interval: interval,
		timeout:  interval,
		logger:   logger,
	}
}

// Run checks once immediately, then on every tick until ctx is canceled.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check pings once and applies the resulting transition.
func (p *Probe) Check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.pinger.Ping(pingCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}

	cur := p.machine.Current()
	if err != nil {
		if cur == Booting || cur == Connecting || cur == Online {
			p.logger.Info("remote unreachable", zap.String("from", string(cur)), zap.Error(err))
			p.transition(Offline)
		}
		return
	}

	switch cur {
	case Booting, Offline:
		p.transition(Connecting)
		p.transition(Online)
		p.logger.Info("remote reachable")
	case Connecting:
		p.transition(Online)
	}
}

func (p *Probe) transition(to State) {
	if err := p.machine.Transition(to); err != nil {
		p.logger.Debug("status transition rejected", zap.Error(err))
	}
}
