package krpc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mldht/id"
	"mldht/logger"
)

func TestEncodeDecodeNodes4RoundTrip(t *testing.T) {
	nodes := []CompactNode{
		{ID: id.Random(), Addr: &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 6881}},
		{ID: id.Random(), Addr: &net.UDPAddr{IP: net.IPv4(5, 6, 7, 8), Port: 6882}},
	}
	raw := EncodeNodes4(nodes)
	assert.Len(t, raw, len(nodes)*V4ContactLen)

	got, err := DecodeNodes4(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, nodes[0].ID, got[0].ID)
	assert.Equal(t, nodes[0].Addr.Port, got[0].Addr.Port)
}

func TestDecodeNodes4RejectsBadLength(t *testing.T) {
	_, err := DecodeNodes4("short")
	assert.Error(t, err)
}

func TestEncodeDecodePeerRoundTrip(t *testing.T) {
	addrs := []*net.UDPAddr{{IP: net.IPv4(9, 9, 9, 9), Port: 51413}}
	raw := EncodePeers(addrs, &logger.NullLogger{})
	require.Len(t, raw, 1)

	got, err := DecodePeer(raw[0])
	require.NoError(t, err)
	assert.Equal(t, addrs[0].Port, got.Port)
	assert.True(t, addrs[0].IP.Equal(got.IP))
}

func TestEncodePeersDropsAndLogsNonIPv4(t *testing.T) {
	addrs := []*net.UDPAddr{
		{IP: net.IPv4(9, 9, 9, 9), Port: 51413},
		{IP: net.ParseIP("2001:db8::1"), Port: 6881},
	}
	raw := EncodePeers(addrs, &logger.NullLogger{})
	assert.Len(t, raw, 1)
}

func TestParseWant(t *testing.T) {
	assert.Equal(t, WantNone, ParseWant(nil))
	assert.Equal(t, WantV4, ParseWant([]string{"n4"}))
	assert.Equal(t, WantV6, ParseWant([]string{"n6"}))
	assert.Equal(t, WantBoth, ParseWant([]string{"n4", "n6"}))
}

func TestNewError(t *testing.T) {
	e := NewError("abcd", ErrProtocol, "received an invalid token")
	assert.Equal(t, Error, e.Y)
	assert.Equal(t, []interface{}{ErrProtocol, "received an invalid token"}, e.E)
}
