// Package testing provides helpers for tests that need a real store.
package testing

import (
	"testing"

	"github.com/rileyhilliard/agentdeploy/internal/store"
)

// OpenStore opens an in-memory store with all migrations applied. The
// database is closed when the test finishes.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
