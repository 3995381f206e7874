// Package monitor runs the periodic auction status sweep.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"lotauction/internal/domain"
	applog "lotauction/internal/log"
	"lotauction/internal/services"
)

// Sweeper advances time-triggered auction transitions. *services.AuctionService satisfies it.
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepResult, error)
}

// Locker guards a run across processes. Obtain returns ok=false when another
// instance holds the lock; the returned release func is nil in that case.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// RedisLocker adapts redislock to Locker.
type RedisLocker struct{ client *redislock.Client }

func NewRedisLocker(c *redislock.Client) *RedisLocker { return &RedisLocker{client: c} }

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return lock.Release, true, nil
}

const lockKey = "lotauction:lock:status-sweep"

type Stats struct {
	Runs      int       `json:"runs"`
	Skipped   int       `json:"skipped"`
	Failures  int       `json:"failures"`
	Activated int       `json:"activated"`
	Ended     int       `json:"ended"`
	LastRun   time.Time `json:"lastRun"`
}

type Monitor struct {
	sweeper  Sweeper
	locker   Locker // nil means single instance
	clock    domain.Clock
	interval time.Duration

	mu    sync.Mutex
	stats Stats
}

func New(s Sweeper, l Locker, clock domain.Clock, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Monitor{sweeper: s, locker: l, clock: clock, interval: interval}
}

// Start sweeps once immediately and then on every tick until ctx is done.
// A failed run is logged and the next tick tries again.
func (m *Monitor) Start(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	applog.Event("monitor.start", map[string]any{"interval": m.interval.String()})
	for {
		_ = m.RunOnce(ctx)
		select {
		case <-ctx.Done():
			applog.Event("monitor.stop", nil)
			return
		case <-t.C:
		}
	}
}

// RunOnce performs a single sweep, skipping it when another instance holds the lock.
func (m *Monitor) RunOnce(ctx context.Context) error {
	if m.locker != nil {
		release, ok, err := m.locker.Obtain(ctx, lockKey, m.interval)
		if err != nil {
			// lock backend down: sweep anyway, the status predicates keep it safe
			applog.Warn("monitor.lock", map[string]any{"err": err.Error()})
		} else if !ok {
			m.record(func(s *Stats) { s.Skipped++ })
			return nil
		} else {
			defer func() {
				if err := release(context.Background()); err != nil {
					applog.Warn("monitor.unlock", map[string]any{"err": err.Error()})
				}
			}()
		}
	}

	res, err := m.sweeper.Sweep(ctx)
	ranAt := m.clock.Now()
	if err != nil {
		m.record(func(s *Stats) { s.Runs++; s.Failures++ })
		applog.Fail("monitor.sweep", err, nil)
		return err
	}
	m.record(func(s *Stats) {
		s.Runs++
		s.Activated += len(res.Activated)
		s.Ended += len(res.Ended)
		s.LastRun = ranAt
	})
	if len(res.Activated)+len(res.Ended) > 0 {
		applog.Event("monitor.sweep", map[string]any{"activated": res.Activated, "ended": res.Ended})
	}
	return nil
}

func (m *Monitor) record(fn func(*Stats)) {
	m.mu.Lock()
	fn(&m.stats)
	m.mu.Unlock()
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
