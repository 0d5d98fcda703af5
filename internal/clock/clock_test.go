package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_SleepAdvancesAndRecords(t *testing.T) {
	c := Fake(epoch)

	require.NoError(t, c.Sleep(context.Background(), 2*time.Second))
	require.NoError(t, c.Sleep(context.Background(), 500*time.Millisecond))

	assert.Equal(t, epoch.Add(2500*time.Millisecond), c.Now())
	assert.Equal(t, []time.Duration{2 * time.Second, 500 * time.Millisecond}, c.Sleeps())
	assert.Equal(t, 2500*time.Millisecond, c.Slept())
}

func TestFake_SleepCancelledContext(t *testing.T) {
	c := Fake(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Sleep(ctx, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.Sleeps())
	assert.Equal(t, epoch, c.Now())
}

func TestFake_Advance(t *testing.T) {
	c := Fake(epoch)
	c.Advance(time.Minute)

	assert.Equal(t, epoch.Add(time.Minute), c.Now())
	assert.Zero(t, c.Slept())
}

func TestReal_SleepZero(t *testing.T) {
	assert.NoError(t, Real().Sleep(context.Background(), 0))
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Real().Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReal_Sleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, Real().Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
