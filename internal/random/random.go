// Package random provides the small amount of randomness the networking
// core needs: channel nonces (spec.md section 3, loop detection) and ping
// nonces (spec.md section 4.8.2).
package random

import (
	"crypto/rand"
	"encoding/binary"
)

// Uint64 returns a cryptographically random 64-bit value, used to draw a
// channel's local nonce and a ping's round-trip nonce. Both need only be
// unpredictable enough to make an accidental collision vanishingly
// unlikely, not cryptographically secure against an adversary; crypto/rand
// is used anyway since it has no meaningful cost here and avoids seeding
// a math/rand source per caller.
func Uint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("random: failed to read entropy: " + err.Error())
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// Bytes returns n cryptographically random bytes.
func Bytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("random: failed to read entropy: " + err.Error())
	}
	return b
}
