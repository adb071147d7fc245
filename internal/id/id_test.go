package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Monotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		assert.Len(t, next, 26)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts := Time(New())
	assert.True(t, ts.After(before))
	assert.True(t, Time("not-a-ulid").IsZero())
}
