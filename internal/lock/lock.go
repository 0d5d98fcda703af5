// Package lock provides per-host leases so two deployments never touch the
// same install directory at once.
//
// A lease is keyed by the resolved host address and taken before the SSH
// session is opened. The in-process backend covers a single CLI or server
// process; the Redis backend covers several processes sharing one Redis.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
)

// Defaults for Config.
const (
	DefaultTTL    = 10 * time.Minute
	DefaultPrefix = "agentdeploy:lease:"
)

// Manager hands out leases by key.
type Manager interface {
	// Acquire takes the lease for key, waiting according to the manager's
	// configuration. Contention that outlasts the wait returns an error
	// wrapping ErrLocked with code ErrLock.
	Acquire(ctx context.Context, key string, info *LockInfo) (*Lease, error)
}

// Config tunes a Manager.
type Config struct {
	// Wait is how long Acquire waits for a held lease. Zero fails immediately.
	Wait time.Duration
	// TTL bounds how long a lease can be held. A lease older than TTL is
	// treated as abandoned and can be taken over.
	TTL time.Duration
	// Prefix namespaces Redis keys.
	Prefix string
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	return c
}

// pollInterval is how often a waiting Acquire retries.
const pollInterval = 100 * time.Millisecond

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	Key  string
	Info *LockInfo

	once    sync.Once
	release func() error
	err     error
}

// NewLease wraps a release function as a Lease. Managers outside this
// package (test doubles) use it.
func NewLease(key string, info *LockInfo, release func() error) *Lease {
	return &Lease{Key: key, Info: info, release: release}
}

// Release gives the lease back. Only the first call does anything.
func (l *Lease) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		if l.release != nil {
			l.err = l.release()
		}
	})
	return l.err
}

// Local is an in-process Manager.
type Local struct {
	cfg Config

	mu   sync.Mutex
	held map[string]*localEntry
}

type localEntry struct {
	info *LockInfo
	done chan struct{}
}

// NewLocal creates an in-process lease manager.
func NewLocal(cfg Config) *Local {
	return &Local{cfg: cfg.withDefaults(), held: make(map[string]*localEntry)}
}

// Acquire implements Manager.
func (m *Local) Acquire(ctx context.Context, key string, info *LockInfo) (*Lease, error) {
	info = prepareInfo(info)
	deadline := time.Now().Add(m.cfg.Wait)

	for {
		m.mu.Lock()
		entry, busy := m.held[key]
		if busy && entry.info.Age() > m.cfg.TTL {
			// Abandoned: wake any waiters and take it over.
			close(entry.done)
			delete(m.held, key)
			busy = false
		}
		if !busy {
			mine := &localEntry{info: info, done: make(chan struct{})}
			m.held[key] = mine
			m.mu.Unlock()
			return &Lease{Key: key, Info: info, release: func() error {
				m.release(key, mine)
				return nil
			}}, nil
		}
		holder := entry.info
		done := entry.done
		m.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, lockedError(key, holder)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			return nil, lockedError(key, holder)
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.WrapWithCode(ctx.Err(), errors.ErrLock,
				"Gave up waiting for the deployment lease on "+key, "")
		}
	}
}

// Holder returns who holds key, or nil when it's free.
func (m *Local) Holder(key string) *LockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.held[key]; ok {
		return entry.info
	}
	return nil
}

func (m *Local) release(key string, mine *localEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A lease that was taken over as abandoned must not free the new holder.
	if entry, ok := m.held[key]; ok && entry == mine {
		close(entry.done)
		delete(m.held, key)
	}
}

// prepareInfo fills in defaults and a fresh token so every lease is distinguishable.
func prepareInfo(info *LockInfo) *LockInfo {
	if info == nil {
		info = NewLockInfo("")
	}
	cp := *info
	if cp.Started.IsZero() {
		cp.Started = time.Now()
	}
	cp.Token = uuid.NewString()
	return &cp
}
