package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a key of the specified length using HKDF-SHA256.
// salt can be nil (uses zero salt), info provides context binding.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	hk := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Label concatenates a context label with the byte strings that bind it, for use
// as HKDF info.
func Label(label string, parts ...[]byte) []byte {
	n := len(label)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, label...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// RandomKey returns 32 bytes from crypto/rand.
func RandomKey() ([KeySize]byte, error) {
	var k [KeySize]byte
	if _, err := io.ReadFull(randReader, k[:]); err != nil {
		return k, err
	}
	return k, nil
}
