package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a process-local Locker.
type Memory struct {
	mu     sync.Mutex
	leases map[string]memLease
	now    func() time.Time
}

type memLease struct {
	token     string
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{leases: map[string]memLease{}, now: time.Now}
}

// SetClock replaces the time source, for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if cur, ok := m.leases[name]; ok && now.Before(cur.expiresAt) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	exp := now.Add(ttl)
	m.leases[name] = memLease{token: token, expiresAt: exp}
	return &Lease{Name: name, Token: token, ExpiresAt: exp, release: func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, ok := m.leases[name]; ok && cur.token == token {
			delete(m.leases, name)
		}
		return nil
	}}, nil
}

func (m *Memory) Clear(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, name)
	return nil
}

// Held reports whether name has an unexpired lease.
func (m *Memory) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leases[name]
	return ok && m.now().Before(cur.expiresAt)
}
