package ringbuf

import (
	"sync"
	"testing"
	"time"

	"candleview/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New[model.IndicatorPoint](4)

	require.True(t, r.Push(model.IndicatorPoint{Time: "A", Value: 100}))
	require.True(t, r.Push(model.IndicatorPoint{Time: "B", Value: 200}))
	assert.Equal(t, 2, r.Len())

	got, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, "A", got.Time)

	got, ok = r.Pop()
	require.True(t, ok)
	assert.Equal(t, "B", got.Time)

	_, ok = r.Pop()
	assert.False(t, ok, "pop from empty should return false")
}

func TestRing_Overflow(t *testing.T) {
	r := New[int](2)

	r.Push(1)
	r.Push(2)

	assert.False(t, r.Push(3), "push to full buffer should return false")
	assert.Equal(t, uint64(1), r.Overflow())
	assert.Equal(t, 2, r.Cap())
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)

	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			require.True(t, r.Push(round*10+i), "round %d push %d", round, i)
		}
		for i := 0; i < 4; i++ {
			v, ok := r.Pop()
			require.True(t, ok, "round %d pop %d", round, i)
			require.Equal(t, round*10+i, v)
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New[int](1024)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(i) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	received := make([]int, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			if v, ok := r.Pop(); ok {
				received = append(received, v)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	for i, v := range received {
		if v != i {
			t.Fatalf("at index %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nextPow2(tc.in), "nextPow2(%d)", tc.in)
	}
}
