package internal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsTasksInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := NewLoop(8, nil)
	loop.Start(ctx)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, loop.Post(func() { order = append(order, i) }))
	}
	var got []int
	require.True(t, loop.Do(func() { got = append(got, order...) }))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_RecoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := NewLoop(1, nil)
	loop.Start(ctx)

	assert.True(t, loop.Do(func() { panic("boom") }))
	var ran atomic.Bool
	assert.True(t, loop.Do(func() { ran.Store(true) }))
	assert.True(t, ran.Load())
}

func TestLoop_PostAfterStopFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(1, nil)
	loop.Start(ctx)
	cancel()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.False(t, loop.Post(func() {}))
	assert.False(t, loop.Do(func() {}))
}
