package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCompactor struct {
	calls atomic.Int64
	n     int64
	err   error
}

func (f *fakeCompactor) Compact(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.n, f.err
}

func TestNewCompactionTrigger_Defaults(t *testing.T) {
	c := NewCompactionTrigger(CompactionConfig{}, &fakeCompactor{}, zap.NewNop())

	assert.Equal(t, DefaultCompactionConfig().Interval, c.config.Interval)
	assert.Equal(t, DefaultCompactionConfig().Timeout, c.config.Timeout)
}

func TestCompactionTrigger_RunOnce(t *testing.T) {
	f := &fakeCompactor{n: 7}
	c := NewCompactionTrigger(DefaultCompactionConfig(), f, zap.NewNop())

	n, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	f.err = errors.New("redis: connection refused")
	_, err = c.RunOnce(context.Background())
	assert.Error(t, err)

	runs, dropped := c.Stats()
	assert.EqualValues(t, 2, runs)
	assert.EqualValues(t, 7, dropped)
}

func TestCompactionTrigger_StartStop(t *testing.T) {
	f := &fakeCompactor{n: 1}
	c := NewCompactionTrigger(CompactionConfig{Interval: 5 * time.Millisecond}, f, zap.NewNop())

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()), "second start is a no-op")

	require.Eventually(t, func() bool { return f.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx), "stopping twice is a no-op")

	calls := f.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, f.calls.Load())
}
