package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAcquireRelease(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	l, err := m.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, l.Token)
	assert.True(t, m.Held("job"))

	_, err = m.Acquire(ctx, "job", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	// other names are independent
	other, err := m.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, l.Release(ctx))
	require.NoError(t, l.Release(ctx))
	assert.False(t, m.Held("job"))
}

func TestMemoryLeaseExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.SetClock(func() time.Time { return now })

	stale, err := m.Acquire(ctx, "job", 50*time.Minute)
	require.NoError(t, err)

	now = now.Add(49 * time.Minute)
	_, err = m.Acquire(ctx, "job", 50*time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	now = now.Add(2 * time.Minute)
	fresh, err := m.Acquire(ctx, "job", 50*time.Minute)
	require.NoError(t, err)

	// the crashed holder's late release must not free the new lease
	require.NoError(t, stale.Release(ctx))
	assert.True(t, m.Held("job"))
	require.NoError(t, fresh.Release(ctx))
	assert.False(t, m.Held("job"))
}

func TestMemoryClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Acquire(ctx, "job", time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx, "job"))
	assert.False(t, m.Held("job"))
}

func TestWithReleasesOnErrorAndPanic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	err := With(ctx, m, "job", time.Minute, func(ctx context.Context) error {
		assert.True(t, m.Held("job"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.Held("job"))

	assert.Panics(t, func() {
		_ = With(ctx, m, "job", time.Minute, func(ctx context.Context) error { panic("fault") })
	})
	assert.False(t, m.Held("job"))
}

func TestWithSkipsWhenHeld(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	ran := false
	err = With(ctx, m, "job", time.Minute, func(ctx context.Context) error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrHeld)
	assert.False(t, ran)
}
