// Package clock abstracts the time operations the deployer waits on so
// tests can run settle and polling phases without real delays.
package clock

import (
	"context"
	"time"
)

// Clock is injected wherever production code would call time.Now or
// time.Sleep directly. Production code uses Real(); tests use Fake().
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses for d or until ctx is done, whichever comes first.
	// Returns ctx.Err() if the context ended the wait.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
