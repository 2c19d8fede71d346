// Package tokenhash hashes access tokens at rest with Argon2id so the
// plaintext bootstrap token is never persisted, only a salted hash.
package tokenhash

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/nanogridbot/nanogridbot/internal/rterr"
	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
	keyLen  = 32
	time_   = 1
	memory  = 64 * 1024
	threads = 4
)

// Hash derives a fresh random salt and an Argon2id digest of token.
func Hash(token string) (hash, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, rterr.New(rterr.Other, "generate salt", err)
	}
	hash = argon2.IDKey([]byte(token), salt, time_, memory, threads, keyLen)
	return hash, salt, nil
}

// Verify reports whether token matches the stored hash for the given salt,
// comparing in constant time.
func Verify(token string, hash, salt []byte) bool {
	candidate := argon2.IDKey([]byte(token), salt, time_, memory, threads, keyLen)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}
