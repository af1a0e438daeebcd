package token

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckinRoundTrip(t *testing.T) {
	s := New()
	ip := net.ParseIP("203.0.113.5")
	tok := s.Checkout(ip)
	assert.True(t, s.Checkin(ip, tok))
}

func TestCheckinRejectsWrongIP(t *testing.T) {
	s := New()
	ip1 := net.ParseIP("203.0.113.5")
	ip2 := net.ParseIP("203.0.113.6")
	tok := s.Checkout(ip1)
	assert.False(t, s.Checkin(ip2, tok))
}

func TestPreviousSecretStillValidAfterOneRotation(t *testing.T) {
	s := New()
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }

	ip := net.ParseIP("203.0.113.5")
	tok := s.Checkout(ip)

	fakeNow = fakeNow.Add(RotationInterval + time.Second)
	assert.True(t, s.Checkin(ip, tok))
}

func TestSecretExpiresAfterTwoRotations(t *testing.T) {
	s := New()
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }

	ip := net.ParseIP("203.0.113.5")
	tok := s.Checkout(ip)

	fakeNow = fakeNow.Add(RotationInterval + time.Second)
	s.Checkout(ip) // first rotation: tok's secret becomes "previous"

	fakeNow = fakeNow.Add(RotationInterval + time.Second)
	s.Checkout(ip) // second rotation: tok's secret is retired entirely

	assert.False(t, s.Checkin(ip, tok))
}
