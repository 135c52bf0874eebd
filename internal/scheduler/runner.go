// Package scheduler runs the hourly tracking sync under a lease so runs never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pickupmtaani/internal/lease"
	"pickupmtaani/internal/metrics"
	"pickupmtaani/internal/tracking"
)

const (
	// LockName is the lease every scheduled run takes.
	LockName = "pickupmtaani_cron_lock"

	DefaultInterval      = time.Hour
	DefaultLockTTL       = 50 * time.Minute
	DefaultFirstRunDelay = time.Minute
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Report describes one RunOnce call.
type Report struct {
	Outcome      Outcome          `json:"outcome"`
	StartedAt    time.Time        `json:"startedAt"`
	Duration     time.Duration    `json:"duration"`
	Destinations int              `json:"destinations"`
	Sync         tracking.Summary `json:"sync"`
	Error        string           `json:"error,omitempty"`
}

type DestinationRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

type BatchSyncer interface {
	SyncAll(ctx context.Context) (tracking.Summary, error)
}

type Runner struct {
	Locker        lease.Locker
	Destinations  DestinationRefresher
	Syncer        BatchSyncer
	Interval      time.Duration
	LockTTL       time.Duration
	FirstRunDelay time.Duration
	// RunTimeout bounds one run. Zero, or anything past the lease TTL, means
	// the TTL, so a run never outlives its lease.
	RunTimeout time.Duration
	Log        *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewRunner(l lease.Locker, d DestinationRefresher, s BatchSyncer, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		Locker:        l,
		Destinations:  d,
		Syncer:        s,
		Interval:      DefaultInterval,
		LockTTL:       DefaultLockTTL,
		FirstRunDelay: DefaultFirstRunDelay,
		Log:           log.Named("cron"),
	}
}

// RunOnce is one scheduled tick. While another run holds the lease it returns
// OutcomeSkipped without touching the carrier or the store; skipped ticks are
// not queued.
func (r *Runner) RunOnce(ctx context.Context) Report {
	rep := Report{StartedAt: time.Now()}
	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	err := lease.With(ctx, r.Locker, LockName, ttl, func(ctx context.Context) error {
		r.Log.Info("Cron started.")
		return r.run(ctx, ttl, &rep)
	})
	rep.Duration = time.Since(rep.StartedAt)

	switch {
	case errors.Is(err, lease.ErrHeld):
		rep.Outcome = OutcomeSkipped
		r.Log.Info("Skipped, already running.")
	case err != nil:
		rep.Outcome = OutcomeFailed
		rep.Error = err.Error()
		r.Log.Error("Cron fatal", zap.Error(err))
	default:
		rep.Outcome = OutcomeCompleted
		r.Log.Info("Cron finished.", zap.Duration("took", rep.Duration), zap.Int("destinations", rep.Destinations), zap.Int("updated", rep.Sync.Updated))
	}
	metrics.SyncRuns.WithLabelValues(string(rep.Outcome)).Inc()
	if rep.Outcome != OutcomeSkipped {
		metrics.SyncDuration.Observe(rep.Duration.Seconds())
	}
	return rep
}

// run does the work under the lease. Panics become errors here so the lease
// is released by the normal path.
func (r *Runner) run(ctx context.Context, ttl time.Duration, rep *Report) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	timeout := r.RunTimeout
	if timeout <= 0 || timeout > ttl {
		timeout = ttl
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if r.Destinations != nil {
		n, derr := r.Destinations.Refresh(ctx)
		if derr != nil {
			r.Log.Warn("destinations refresh failed", zap.Error(derr))
		}
		rep.Destinations = n
	}
	sum, err := r.Syncer.SyncAll(ctx)
	rep.Sync = sum
	return err
}

// Enable starts the recurring timer. The first run fires after FirstRunDelay,
// then every Interval. Calling Enable again while enabled does nothing.
func (r *Runner) Enable(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(ctx, r.stop, r.done)
	r.Log.Info("sync scheduled", zap.Duration("interval", r.interval()), zap.Duration("first_run_in", r.FirstRunDelay))
}

// Disable cancels the timer, waits for an in-flight tick to return and clears
// any held lease.
func (r *Runner) Disable(ctx context.Context) error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop != nil {
		close(stop)
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return r.Locker.Clear(context.WithoutCancel(ctx), LockName)
}

// Enabled reports whether the timer is running.
func (r *Runner) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

func (r *Runner) interval() time.Duration {
	if r.Interval <= 0 {
		return DefaultInterval
	}
	return r.Interval
}

func (r *Runner) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	first := time.NewTimer(r.FirstRunDelay)
	defer first.Stop()
	select {
	case <-stop:
		return
	case <-ctx.Done():
		return
	case <-first.C:
		r.RunOnce(ctx)
	}
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}
