// Package token implements TokenStore, the short-lived opaque
// announce-authorization capability of spec.md §3, §4.3.
//
// Grounded on dht.go's newTokenSecret/hostToken/checkToken (SHA1 of
// the remote address plus a rotating secret, checked against the
// current and previous secret) — kept almost verbatim, generalized
// from "whole address string" to "remote IP" and from the teacher's
// ticker-driven rotation to the spec's lazy rotation triggered on
// call.
package token

import (
	"crypto/rand"
	"crypto/sha1"
	"net"
	"sync"
	"time"
)

// RotationInterval is how often the current secret is replaced, per
// spec.md §3.
const RotationInterval = 5 * time.Minute

// Token is the opaque value handed to a remote peer on get_peers and
// presented back on announce_peer.
type Token [sha1.Size]byte

// Store produces and validates Tokens bound to a remote IP and a
// rolling secret, per spec.md §4.3. Secrets rotate lazily: any call
// made after RotationInterval has elapsed since the current secret
// was minted rotates it first, demoting it to "previous".
type Store struct {
	mu        sync.Mutex
	current   []byte
	previous  []byte
	mintedAt  time.Time
	newSecret func() []byte
	now       func() time.Time
}

// New returns a Store with two freshly minted secrets (current and
// previous are independent random values, matching the teacher's
// construction-time seeding of two secrets in dht.go's New()).
func New() *Store {
	s := &Store{
		newSecret: randomSecret,
		now:       time.Now,
	}
	s.current = s.newSecret()
	s.previous = s.newSecret()
	s.mintedAt = s.now()
	return s
}

func randomSecret() []byte {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		panic("token: failed to read random bytes: " + err.Error())
	}
	return b
}

func (s *Store) maybeRotate() {
	if s.now().Sub(s.mintedAt) < RotationInterval {
		return
	}
	s.previous = s.current
	s.current = s.newSecret()
	s.mintedAt = s.now()
}

func hostToken(ip net.IP, secret []byte) Token {
	h := sha1.New()
	h.Write([]byte(ip.String()))
	h.Write(secret)
	var out Token
	copy(out[:], h.Sum(nil))
	return out
}

// Checkout produces a token for ip under the current secret.
func (s *Store) Checkout(ip net.IP) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeRotate()
	return hostToken(ip, s.current)
}

// Checkin reports whether t matches what Checkout(ip) would currently
// produce under either the current or the immediately previous
// secret.
func (s *Store) Checkin(ip net.IP, t Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeRotate()
	return t == hostToken(ip, s.current) || t == hostToken(ip, s.previous)
}
