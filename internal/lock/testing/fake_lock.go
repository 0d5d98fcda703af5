// Package testing provides test doubles for the lock package.
package testing

import (
	"context"
	"sync"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/lock"
)

var _ lock.Manager = (*FakeManager)(nil)

// AcquireCall records a call to Acquire.
type AcquireCall struct {
	Key     string
	Info    *lock.LockInfo
	Success bool
}

// FakeManager simulates lease acquisition for testing. It succeeds by
// default and records every call.
type FakeManager struct {
	mu sync.Mutex

	// Configuration
	FailError error          // returned by Acquire when set
	HeldBy    *lock.LockInfo // if set, every key appears held by this holder

	// Call tracking
	AcquireCalls []AcquireCall
	ReleaseCalls []string // keys that were released
}

// NewFakeManager creates a new fake lease manager that succeeds by default.
func NewFakeManager() *FakeManager {
	return &FakeManager{}
}

// Acquire implements lock.Manager.
func (m *FakeManager) Acquire(ctx context.Context, key string, info *lock.LockInfo) (*lock.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := AcquireCall{Key: key, Info: info}

	if m.FailError != nil {
		m.AcquireCalls = append(m.AcquireCalls, call)
		return nil, m.FailError
	}

	if m.HeldBy != nil {
		m.AcquireCalls = append(m.AcquireCalls, call)
		return nil, errors.WrapWithCode(lock.ErrLocked, errors.ErrLock,
			"Another deployment to "+key+" is in progress",
			"Held by "+m.HeldBy.String())
	}

	call.Success = true
	m.AcquireCalls = append(m.AcquireCalls, call)

	return lock.NewLease(key, info, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.ReleaseCalls = append(m.ReleaseCalls, key)
		return nil
	}), nil
}

// SetFail configures the manager to fail lease acquisition with err.
func (m *FakeManager) SetFail(err error) *FakeManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailError = err
	return m
}

// SetContention makes every key appear held by holder.
func (m *FakeManager) SetContention(holder *lock.LockInfo) *FakeManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeldBy = holder
	return m
}

// SuccessfulAcquires returns the number of successful acquisitions.
func (m *FakeManager) SuccessfulAcquires() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.AcquireCalls {
		if call.Success {
			count++
		}
	}
	return count
}

// Released returns the keys released so far, in order.
func (m *FakeManager) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ReleaseCalls...)
}

// Reset clears all state.
func (m *FakeManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AcquireCalls = nil
	m.ReleaseCalls = nil
	m.FailError = nil
	m.HeldBy = nil
}
