// Package lease provides time-boxed named locks for single-flight jobs.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrHeld is returned by Acquire while another holder's lease is unexpired.
var ErrHeld = errors.New("lease held")

// Locker hands out leases by resource name.
type Locker interface {
	// Acquire takes name for ttl or returns ErrHeld.
	Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error)
	// Clear drops name regardless of holder.
	Clear(ctx context.Context, name string) error
}

// Lease is one held acquisition. Release is safe to call more than once and
// never removes a lease that has since been taken by someone else.
type Lease struct {
	Name      string
	Token     string
	ExpiresAt time.Time

	release func(ctx context.Context) error
	done    bool
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.done {
		return nil
	}
	l.done = true
	if l.release == nil {
		return nil
	}
	return l.release(ctx)
}

// With runs fn while holding name. The lease is released on every exit path,
// panics included; a panic is re-raised after release.
func With(ctx context.Context, l Locker, name string, ttl time.Duration, fn func(ctx context.Context) error) (err error) {
	held, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// release with a fresh context so a cancelled run still frees the lease
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := held.Release(rctx); rerr != nil && err == nil {
			err = fmt.Errorf("release %s: %w", name, rerr)
		}
	}()
	return fn(ctx)
}
