package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519KeyPair is an ECDH keypair. Long-term identity keys and per-announcement
// ephemeral keys share this type.
type X25519KeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

var (
	ErrInvalidPublicKey = errors.New("crypto: invalid X25519 public key")
)

var randReader io.Reader = rand.Reader

// GenerateX25519 generates a new X25519 keypair.
func GenerateX25519() (X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := io.ReadFull(randReader, kp.PrivateKey[:]); err != nil {
		return X25519KeyPair{}, err
	}
	return X25519FromPrivate(kp.PrivateKey), nil
}

// X25519FromPrivate rebuilds a keypair from a stored private scalar.
func X25519FromPrivate(priv [32]byte) X25519KeyPair {
	kp := X25519KeyPair{PrivateKey: priv}
	// Clamp private key per RFC 7748
	kp.PrivateKey[0] &= 248
	kp.PrivateKey[31] &= 127
	kp.PrivateKey[31] |= 64
	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return kp
}

// ECDH computes the shared secret using X25519.
// Returns 32 bytes of raw shared secret (should be passed to HKDF).
func ECDH(privateKey, peerPublicKey [32]byte) ([]byte, error) {
	var zero [32]byte
	if peerPublicKey == zero {
		return nil, ErrInvalidPublicKey
	}
	// curve25519.X25519 rejects low-order points (all-zero output).
	shared, err := curve25519.X25519(privateKey[:], peerPublicKey[:])
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return shared, nil
}
