package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/TheusHen/parley/parley/crypto"
)

const (
	// PublicKeysSize is the encoded size of PublicKeys: X25519 || Ed25519.
	PublicKeysSize = 32 + ed25519.PublicKeySize
	// SecretSize is the encoded size of UserKeys: X25519 private || Ed25519 seed.
	SecretSize = 32 + ed25519.SeedSize
)

var (
	ErrInvalidPublicKeys = errors.New("identity: invalid public keys encoding")
	ErrInvalidSecret     = errors.New("identity: invalid secret key encoding")
)

// PublicKeys is the long-term public identity of a user: an X25519 key that
// announcements are encrypted to, and an Ed25519 key that signs them.
type PublicKeys struct {
	DH   [32]byte
	Sign ed25519.PublicKey
}

// UserKeys holds the long-term private keys of the local user.
type UserKeys struct {
	DH   crypto.X25519KeyPair
	Sign ed25519.PrivateKey
}

func GenerateUserKeys() (UserKeys, error) {
	dh, err := crypto.GenerateX25519()
	if err != nil {
		return UserKeys{}, err
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return UserKeys{}, err
	}
	return UserKeys{DH: dh, Sign: priv}, nil
}

// ParseUserKeys decodes the output of UserKeys.Bytes.
func ParseUserKeys(b []byte) (UserKeys, error) {
	if len(b) != SecretSize {
		return UserKeys{}, ErrInvalidSecret
	}
	var dh [32]byte
	copy(dh[:], b[:32])
	return UserKeys{
		DH:   crypto.X25519FromPrivate(dh),
		Sign: ed25519.NewKeyFromSeed(b[32:]),
	}, nil
}

// Bytes encodes the private keys. WARNING: this is secret material.
func (k UserKeys) Bytes() []byte {
	out := make([]byte, 0, SecretSize)
	out = append(out, k.DH.PrivateKey[:]...)
	return append(out, k.Sign.Seed()...)
}

// Valid reports whether both keys are present.
func (k UserKeys) Valid() bool {
	return len(k.Sign) == ed25519.PrivateKeySize && k.DH.PublicKey != [32]byte{}
}

func (k UserKeys) Public() PublicKeys {
	return PublicKeys{
		DH:   k.DH.PublicKey,
		Sign: k.Sign.Public().(ed25519.PublicKey),
	}
}

func (k UserKeys) ID() UserID { return k.Public().ID() }

func (k UserKeys) SignMessage(message []byte) []byte {
	return ed25519.Sign(k.Sign, message)
}

func Verify(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// ParsePublicKeys decodes the output of PublicKeys.Bytes.
func ParsePublicKeys(b []byte) (PublicKeys, error) {
	if len(b) != PublicKeysSize {
		return PublicKeys{}, ErrInvalidPublicKeys
	}
	var pk PublicKeys
	copy(pk.DH[:], b[:32])
	pk.Sign = append(ed25519.PublicKey(nil), b[32:]...)
	return pk, nil
}

func (pk PublicKeys) Bytes() []byte {
	out := make([]byte, 0, PublicKeysSize)
	out = append(out, pk.DH[:]...)
	return append(out, pk.Sign...)
}

func (pk PublicKeys) ID() UserID { return UserIDFromPublicKeys(pk) }

func (pk PublicKeys) Equal(other PublicKeys) bool {
	return pk.DH == other.DH && pk.Sign.Equal(other.Sign)
}
