package flow

import (
	"context"
	"log/slog"
	"time"
)

// Reaper defaults
const (
	DefaultSweepInterval = 60 * time.Second
	DefaultSessionIdle   = time.Hour
)

// Sweeper removes idle sessions.
type Sweeper interface {
	Sweep(now time.Time, maxIdle time.Duration) int
}

// Reaper periodically expires idle wizard sessions.
type Reaper struct {
	sessions Sweeper
	interval time.Duration
	maxIdle  time.Duration
	now      func() time.Time
}

// NewReaper creates a Reaper. Non-positive durations take the defaults.
func NewReaper(sessions Sweeper, interval, maxIdle time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if maxIdle <= 0 {
		maxIdle = DefaultSessionIdle
	}
	return &Reaper{sessions: sessions, interval: interval, maxIdle: maxIdle, now: time.Now}
}

// Run sweeps on every tick. It blocks until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	slog.Info("Reaper.Run: starting session reaper", "interval", r.interval, "maxIdle", r.maxIdle)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Reaper.Run: stopping")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	if n := r.sessions.Sweep(r.now(), r.maxIdle); n > 0 {
		slog.Info("Reaper.sweep: expired idle sessions", "count", n)
	}
}
