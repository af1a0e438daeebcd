package storage

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dummyAddrs(t *testing.T, n int) []*net.UDPAddr {
	t.Helper()
	out := make([]*net.UDPAddr, n)
	for i := 0; i < n; i++ {
		out[i] = &net.UDPAddr{IP: net.IPv4(10, byte(i>>16), byte(i>>8), byte(i)), Port: 1 + i%60000}
	}
	return out
}

func TestAddAndRetrieveContact(t *testing.T) {
	s := New()
	var ih InfoHash
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6881}

	require.True(t, s.AddItem(ih, addr))
	items := s.FindItems(ih)
	require.Len(t, items, 1)
	assert.Equal(t, addr.String(), items[0].String())
}

func TestFillToCap(t *testing.T) {
	s := NewWithLimits(500, ExpirationTime)
	var ih InfoHash
	addrs := dummyAddrs(t, 500)
	for _, a := range addrs {
		require.True(t, s.AddItem(ih, a))
	}

	var ih2 InfoHash
	ih2[0] = 1
	assert.False(t, s.AddItem(ih2, addrs[0]))
	assert.Empty(t, s.FindItems(ih2))
	assert.Equal(t, 500, s.Count())
}

func TestExpireThenAccept(t *testing.T) {
	s := NewWithLimits(500, ExpirationTime)
	var ih InfoHash
	addrs := dummyAddrs(t, 501)
	base := time.Now()
	for i, a := range addrs[:500] {
		require.True(t, s.AddItemAt(ih, a, base.Add(time.Duration(i)*time.Millisecond)))
	}

	var ih2 InfoHash
	ih2[0] = 1
	assert.False(t, s.AddItemAt(ih2, addrs[500], base.Add(500*time.Millisecond)))

	later := base.Add(ExpirationTime + time.Second)
	require.True(t, s.AddItemAt(ih2, addrs[500], later))
	items := s.FindItemsAt(ih2, later)
	require.Len(t, items, 1)
	assert.Equal(t, addrs[500].String(), items[0].String())
}

func TestRenewIsIdempotentUnderCap(t *testing.T) {
	s := NewWithLimits(500, ExpirationTime)
	var ih InfoHash
	addrs := dummyAddrs(t, 500)
	for _, a := range addrs {
		require.True(t, s.AddItem(ih, a))
	}
	for _, a := range addrs {
		require.True(t, s.AddItem(ih, a))
	}
	assert.Equal(t, 500, s.Count())
}

func TestRenewMovesExpirationToTail(t *testing.T) {
	s := NewWithLimits(2, ExpirationTime)
	var ih InfoHash
	addrs := dummyAddrs(t, 2)
	base := time.Now()
	require.True(t, s.AddItemAt(ih, addrs[0], base))
	require.True(t, s.AddItemAt(ih, addrs[1], base.Add(time.Minute)))

	// Renew addrs[0] so it is no longer the earliest to expire.
	require.True(t, s.AddItemAt(ih, addrs[0], base.Add(2*time.Minute)))

	// At base+ExpirationTime+90s, addrs[1] (never renewed) is expired
	// but addrs[0] (renewed at +2m) is not.
	at := base.Add(ExpirationTime).Add(90 * time.Second)
	items := s.FindItemsAt(ih, at)
	require.Len(t, items, 1)
	assert.Equal(t, addrs[0].String(), items[0].String())
}

func TestAnnounceCapNeverExceeded(t *testing.T) {
	s := NewWithLimits(10, time.Hour)
	for i := 0; i < 50; i++ {
		var ih InfoHash
		ih[0] = byte(i)
		addr := &net.UDPAddr{IP: net.IPv4(1, 2, 3, byte(i)), Port: 6000 + i}
		s.AddItem(ih, addr)
		require.LessOrEqual(t, s.Count(), 10, fmt.Sprintf("iteration %d", i))
	}
}
