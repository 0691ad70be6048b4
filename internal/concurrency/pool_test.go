package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolForEach_VisitsEveryIndex(t *testing.T) {
	pool := NewPool(4)

	const n = 1000
	seen := make([]int32, n)

	err := pool.ForEach(context.Background(), n, func(_ context.Context, _, index int) error {
		atomic.AddInt32(&seen[index], 1)
		return nil
	})
	require.NoError(t, err)

	for i, count := range seen {
		assert.Equal(t, int32(1), count, "index %d visited %d times", i, count)
	}
}

func TestPoolForEach_EmptyInput(t *testing.T) {
	pool := NewPool(2)
	err := pool.ForEach(context.Background(), 0, func(_ context.Context, _, _ int) error {
		t.Fatal("should not be called")
		return nil
	})
	assert.NoError(t, err)
}

func TestPoolForEach_WorkerSlotsInRange(t *testing.T) {
	pool := NewPool(3)

	err := pool.ForEach(context.Background(), 100, func(_ context.Context, worker, _ int) error {
		if worker < 0 || worker >= pool.Workers() {
			return fmt.Errorf("worker slot out of range: %d", worker)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestPoolForEach_StopsOnError(t *testing.T) {
	pool := NewPool(2)

	var calls int32
	err := pool.ForEach(context.Background(), 10_000, func(_ context.Context, _, index int) error {
		atomic.AddInt32(&calls, 1)
		if index == 5 {
			return fmt.Errorf("boom at %d", index)
		}
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Less(t, atomic.LoadInt32(&calls), int32(10_000), "error should stop scheduling")
}

func TestPoolForEach_HonorsCancellation(t *testing.T) {
	pool := NewPool(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.ForEach(ctx, 100, func(_ context.Context, _, _ int) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPool_Defaults(t *testing.T) {
	assert.Equal(t, OptimalWorkerCount(), NewPool(0).Workers())
	assert.Equal(t, OptimalWorkerCount(), NewPool(-1).Workers())
	assert.Equal(t, 7, NewPool(7).Workers())
}
