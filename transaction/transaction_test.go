package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMIDGeneratorSharesActionID(t *testing.T) {
	aid := NewAIDGenerator()
	mid := aid.Generate()

	t1 := mid.Generate()
	t2 := mid.Generate()

	assert.Equal(t, mid.ActionID(), t1.Action())
	assert.Equal(t, mid.ActionID(), t2.Action())
	assert.NotEqual(t, t1.Sequence(), t2.Sequence())
}

func TestDistinctProceduresGetDistinctActionIDs(t *testing.T) {
	aid := NewAIDGenerator()
	m1 := aid.Generate()
	m2 := aid.Generate()
	assert.NotEqual(t, m1.ActionID(), m2.ActionID())
}

func TestDecodeRoundTrip(t *testing.T) {
	aid := NewAIDGenerator()
	mid := aid.Generate()
	want := mid.Generate()

	got, err := Decode(want.Bytes())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeRejectsBadLength(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSeenSetDedup(t *testing.T) {
	s := NewSeenSet(4)
	aid := NewAIDGenerator()
	mid := aid.Generate()
	tid := mid.Generate()

	assert.False(t, s.MarkSeen(tid))
	assert.True(t, s.MarkSeen(tid))
}
