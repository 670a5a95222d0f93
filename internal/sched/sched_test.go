package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	var got []string

	f.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	f.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	f.AfterFunc(100*time.Millisecond, func() { got = append(got, "b") })

	f.Advance(99 * time.Millisecond)
	assert.Empty(t, got)

	f.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, start.Add(1099*time.Millisecond), f.Now())
}

func TestFakeStop(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fired := false
	tm := f.AfterFunc(time.Second, func() { fired = true })

	assert.Equal(t, 1, f.Pending())
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop(), "second stop reports nothing to stop")
	assert.Equal(t, 0, f.Pending())

	f.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeTimerScheduledDuringAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	var at []time.Duration

	var tick func()
	tick = func() {
		at = append(at, f.Now().Sub(start))
		if len(at) < 3 {
			f.AfterFunc(time.Second, tick)
		}
	}
	f.AfterFunc(time.Second, tick)

	f.Advance(10 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, at)
}

func TestFakeGoRunsInline(t *testing.T) {
	f := NewFake(time.Now())
	var order []string
	f.Go(func() { order = append(order, "work") }, func() { order = append(order, "done") })
	assert.Equal(t, []string{"work", "done"}, order)
}

func TestLoopSerializesCallbacks(t *testing.T) {
	l := NewLoop(4)
	go l.Run()
	defer l.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 20; i++ {
		i := i
		require.True(t, l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.True(t, l.Do(func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopTimerAndWorkRunOnLoop(t *testing.T) {
	l := NewLoop(4)
	go l.Run()
	defer l.Stop()

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer callback never ran")
	}

	done := make(chan string, 1)
	var result string
	l.Go(func() { result = "io" }, func() { done <- result })
	select {
	case v := <-done:
		assert.Equal(t, "io", v)
	case <-time.After(2 * time.Second):
		t.Fatal("work completion never posted")
	}
}

func TestLoopStopRejectsPosts(t *testing.T) {
	l := NewLoop(1)
	go l.Run()
	l.Stop()

	assert.False(t, l.Post(func() {}))
	assert.False(t, l.Do(func() {}))
	l.Stop()
}

func TestContextImplementations(t *testing.T) {
	var _ Context = NewLoop(1)
	var c Context = NewFake(time.Now())

	ran := 0
	assert.True(t, c.Post(func() { ran++ }))
	assert.True(t, c.Do(func() { ran++ }))
	assert.Equal(t, 2, ran)
}
