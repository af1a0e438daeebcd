package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiresInDeadlineOrder(t *testing.T) {
	tm := New()
	tm.ScheduleIn(30*time.Millisecond, "second")
	tm.ScheduleIn(5*time.Millisecond, "first")

	<-tm.C()
	tok, ok := tm.Pop()
	require.True(t, ok)
	assert.Equal(t, "first", tok)

	<-tm.C()
	tok, ok = tm.Pop()
	require.True(t, ok)
	assert.Equal(t, "second", tok)
}

func TestCIsNilWhenEmpty(t *testing.T) {
	tm := New()
	assert.Nil(t, tm.C())
}

func TestPopOnEmptyIsSafe(t *testing.T) {
	tm := New()
	_, ok := tm.Pop()
	assert.False(t, ok)
}
