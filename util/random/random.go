package random

import (
	crypto_rand "crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Uint64 returns a cryptographically random 64-bit value.
func Uint64() (uint64, error) {
	var b [8]byte
	if _, err := crypto_rand.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "Unable to read random bytes")
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Bytes16 returns 16 cryptographically random bytes, the size of a hand nonce.
func Bytes16() ([16]byte, error) {
	var b [16]byte
	if _, err := crypto_rand.Read(b[:]); err != nil {
		return b, errors.Wrap(err, "Unable to read random bytes")
	}
	return b, nil
}
