package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/RobotChat/internal/models"
)

type countingSweeper struct {
	mu      sync.Mutex
	calls   int
	maxIdle time.Duration
}

func (c *countingSweeper) Sweep(now time.Time, maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.maxIdle = maxIdle
	return 1
}

func (c *countingSweeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestNewReaper_Defaults(t *testing.T) {
	r := NewReaper(&countingSweeper{}, 0, 0)
	if r.interval != DefaultSweepInterval || r.maxIdle != DefaultSessionIdle {
		t.Errorf("unexpected defaults interval=%v maxIdle=%v", r.interval, r.maxIdle)
	}
}

func TestReaper_RunSweepsUntilCancelled(t *testing.T) {
	sw := &countingSweeper{}
	r := NewReaper(sw, 5*time.Millisecond, 42*time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sw.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("reaper did not sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.maxIdle != 42*time.Minute {
		t.Errorf("expected configured idle limit, got %v", sw.maxIdle)
	}
}

func TestReaper_ExpiresIdleSessionsInStore(t *testing.T) {
	s := NewMemorySessionStore()
	now := time.Now()
	s.Transact(context.Background(), "old", func(*models.WizardSession) (*models.WizardSession, error) {
		return models.NewWizardSession("old", "", now.Add(-2*time.Hour)), nil
	})
	r := NewReaper(s, time.Minute, time.Hour)
	r.now = func() time.Time { return now }
	r.sweep()
	if s.Len() != 0 {
		t.Errorf("expected idle session to be reaped, %d left", s.Len())
	}
}
