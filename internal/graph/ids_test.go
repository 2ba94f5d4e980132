package graph

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_StartsAtOneAndIncreases(t *testing.T) {
	t.Parallel()
	a := NewAllocator()

	assert.Equal(t, ID(0), a.Peek())
	assert.Equal(t, ID(1), a.Next())
	assert.Equal(t, ID(2), a.Next())
	assert.Equal(t, ID(3), a.Next())
	assert.Equal(t, ID(3), a.Peek())
}

func TestAllocator_Reset(t *testing.T) {
	t.Parallel()
	a := NewAllocator()
	for range 10 {
		a.Next()
	}
	a.Reset()
	assert.Equal(t, InitialID, a.Next())
}

func TestAllocator_AdvanceNeverMovesBackwards(t *testing.T) {
	t.Parallel()
	a := NewAllocator()
	a.Advance(41)
	assert.Equal(t, ID(42), a.Next())

	a.Advance(5)
	assert.Equal(t, ID(43), a.Next())
}

func TestAllocator_ConcurrentNextUnique(t *testing.T) {
	t.Parallel()
	a := NewAllocator()

	const workers, perWorker = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[ID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]ID, 0, perWorker)
			for range perWorker {
				local = append(local, a.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
	assert.Equal(t, ID(workers*perWorker), a.Peek())
}

func TestAllocator_OverflowPanics(t *testing.T) {
	t.Parallel()
	a := NewAllocator()
	a.Advance(math.MaxInt64 - 1)
	assert.Equal(t, ID(math.MaxInt64), a.Next())

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrAllocatorOverflow)
	}()
	a.Next()
}
