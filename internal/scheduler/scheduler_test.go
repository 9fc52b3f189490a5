package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/scheduler"
	"github.com/atlas-desktop/aurum-control-plane/internal/workers"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool() *workers.Pool {
	cfg := workers.DefaultPoolConfig("scheduler-test")
	cfg.NumWorkers = 2
	cfg.QueueSize = 16
	return workers.NewPool(zap.NewNop(), cfg)
}

func TestAddJobRunsOnSchedule(t *testing.T) {
	pool := newTestPool()
	s := scheduler.New(zap.NewNop(), pool)
	s.Start()
	defer s.Stop()

	var runs atomic.Int32
	job := scheduler.NewJobFunc("tick", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	require.NoError(t, s.AddJob("@every 1s", job))
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestAddJobCoalescesOverlappingRuns(t *testing.T) {
	pool := newTestPool()
	s := scheduler.New(zap.NewNop(), pool)
	s.Start()
	defer s.Stop()

	var running atomic.Int32
	var maxConcurrent atomic.Int32
	release := make(chan struct{})

	job := scheduler.NewJobFunc("slow", func(ctx context.Context) error {
		n := running.Add(1)
		for {
			cur := maxConcurrent.Load()
			if n <= cur || maxConcurrent.CompareAndSwap(cur, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	})

	require.NoError(t, s.AddJob("@every 1s", job))
	time.Sleep(2500 * time.Millisecond)
	close(release)

	require.LessOrEqual(t, int(maxConcurrent.Load()), 1)
}

func TestRunNowExecutesImmediately(t *testing.T) {
	pool := newTestPool()
	pool.Start()
	defer pool.Stop()
	s := scheduler.New(zap.NewNop(), pool)

	var ran bool
	job := scheduler.NewJobFunc("once", func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, s.RunNow(context.Background(), job))
	require.True(t, ran)
}
