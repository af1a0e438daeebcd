package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHexRoundTrip(t *testing.T) {
	h := "d1c5676ae7ac98e8b19f63565905105e3c4c37a2"
	got, err := FromHex(h)
	require.NoError(t, err)
	assert.Equal(t, h, got.String())
}

func TestFromBytesWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDistanceSelfIsZero(t *testing.T) {
	a := Random()
	assert.Equal(t, Zero, a.Distance(a))
}

func idFromRaw(t *testing.T, s string) ID {
	t.Helper()
	require.Len(t, s, Len)
	var out ID
	copy(out[:], s)
	return out
}

func TestCommonPrefixLen(t *testing.T) {
	a := idFromRaw(t, "01abcdefghij01234567")
	same := idFromRaw(t, "01abcdefghij01234567")
	assert.Equal(t, 160, CommonPrefixLen(a, same))

	b := idFromRaw(t, "01abcdefghij01234566")
	assert.Equal(t, 159, CommonPrefixLen(a, b))
}

func TestFlipBit(t *testing.T) {
	var zero ID
	assert.Equal(t, byte(0x80), zero.FlipBit(0)[0])
	assert.Equal(t, byte(0x01), zero.FlipBit(7)[0])
}

func TestCloserToTieBreak(t *testing.T) {
	pivot := Zero
	a := idFromRaw(t, "01abcdefghij01234567")
	b := a
	assert.False(t, CloserTo(pivot, a, b))
}
