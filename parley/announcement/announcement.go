// Package announcement implements the broadcast handshake that opens a session.
//
// An announcement is encrypted to one recipient's long-term X25519 key and posted
// to a public bulletin. Every client tries to open every announcement; only the
// intended recipient succeeds, everyone else gets (nil, nil).
//
// Wire format:
//
//	[version:1][ephemeral public key:32][nonce:12 || ciphertext || tag:16]
//
// Plaintext (integers big endian):
//
//	[announcer DH:32][announcer signing key:32][recipient id:32][timestamp ms:8]
//	[seed:32][key index:1][user data len:4][user data][ed25519 signature:64]
package announcement

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TheusHen/parley/parley/crypto"
	"github.com/TheusHen/parley/parley/identity"
)

const (
	Version = 0x01

	// MaxUserDataSize bounds the optional payload carried by an announcement.
	MaxUserDataSize = 4096

	SeedSize = 32

	headerSize = 1 + 32
	fixedSize  = identity.PublicKeysSize + 32 + 8 + SeedSize + 1 + 4
)

var (
	ErrUserDataTooLarge  = errors.New("announcement: user data too large")
	ErrMalformed         = errors.New("announcement: malformed plaintext")
	ErrBadSignature      = errors.New("announcement: invalid signature")
	ErrRecipientMismatch = errors.New("announcement: recipient does not match")
)

// Announcement carries everything a recipient needs to open the announcer's
// sending chain.
type Announcement struct {
	Announcer identity.PublicKeys
	Recipient identity.UserID
	Timestamp time.Time
	Seed      [SeedSize]byte
	KeyIndex  byte
	UserData  []byte
	Signature []byte
}

// New builds and signs an announcement with a fresh random seed.
func New(from identity.UserKeys, to identity.PublicKeys, keyIndex byte, userData []byte, now time.Time) (*Announcement, error) {
	if len(userData) > MaxUserDataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrUserDataTooLarge, len(userData))
	}
	a := &Announcement{
		Announcer: from.Public(),
		Recipient: to.ID(),
		Timestamp: time.UnixMilli(now.UnixMilli()),
		KeyIndex:  keyIndex,
		UserData:  append([]byte(nil), userData...),
	}
	if _, err := io.ReadFull(rand.Reader, a.Seed[:]); err != nil {
		return nil, err
	}
	a.Signature = from.SignMessage(a.SigningBytes())
	return a, nil
}

// SigningBytes is the plaintext prefix covered by the signature.
func (a *Announcement) SigningBytes() []byte {
	b := make([]byte, 0, fixedSize+len(a.UserData))
	b = append(b, a.Announcer.Bytes()...)
	b = append(b, a.Recipient[:]...)
	b = binary.BigEndian.AppendUint64(b, uint64(a.Timestamp.UnixMilli()))
	b = append(b, a.Seed[:]...)
	b = append(b, a.KeyIndex)
	b = binary.BigEndian.AppendUint32(b, uint32(len(a.UserData)))
	return append(b, a.UserData...)
}

func (a *Announcement) Verify() error {
	if !identity.Verify(a.Announcer.Sign, a.SigningBytes(), a.Signature) {
		return ErrBadSignature
	}
	return nil
}

// Seal encrypts a to its recipient.
func Seal(a *Announcement, to identity.PublicKeys) ([]byte, error) {
	if to.ID() != a.Recipient {
		return nil, ErrRecipientMismatch
	}
	eph, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(eph.PrivateKey[:])
	key, err := announcementKey(eph.PrivateKey, to.DH, eph.PublicKey, to.DH)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	header := make([]byte, 0, headerSize)
	header = append(header, Version)
	header = append(header, eph.PublicKey[:]...)

	plain := append(a.SigningBytes(), a.Signature...)
	ct, err := crypto.Seal(key, plain, header)
	if err != nil {
		return nil, err
	}
	return append(header, ct...), nil
}

// Open tries to decrypt data with our keys. It returns (nil, nil) when the
// announcement is not addressed to us. Errors are reserved for announcements
// that decrypt under our key but fail validation.
func Open(keys identity.UserKeys, data []byte) (*Announcement, error) {
	if len(data) < headerSize+crypto.Overhead() || data[0] != Version {
		return nil, nil
	}
	var ephPub [32]byte
	copy(ephPub[:], data[1:headerSize])
	key, err := announcementKey(keys.DH.PrivateKey, ephPub, ephPub, keys.DH.PublicKey)
	if err != nil {
		return nil, nil
	}
	defer crypto.Wipe(key)

	plain, err := crypto.Open(key, data[headerSize:], data[:headerSize])
	if err != nil {
		return nil, nil
	}
	a, err := parse(plain)
	if err != nil {
		return nil, err
	}
	if a.Recipient != keys.ID() {
		return nil, ErrRecipientMismatch
	}
	if err := a.Verify(); err != nil {
		return nil, err
	}
	return a, nil
}

func announcementKey(priv, peerPub, ephPub, recipientPub [32]byte) ([]byte, error) {
	shared, err := crypto.ECDH(priv, peerPub)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(shared)
	return crypto.DeriveKey(shared, ephPub[:], crypto.Label("parley-announcement", recipientPub[:]), crypto.KeySize)
}

func parse(b []byte) (*Announcement, error) {
	if len(b) < fixedSize+ed25519.SignatureSize {
		return nil, ErrMalformed
	}
	pk, err := identity.ParsePublicKeys(b[:identity.PublicKeysSize])
	if err != nil {
		return nil, ErrMalformed
	}
	a := &Announcement{Announcer: pk}
	off := identity.PublicKeysSize
	copy(a.Recipient[:], b[off:off+32])
	off += 32
	a.Timestamp = time.UnixMilli(int64(binary.BigEndian.Uint64(b[off:])))
	off += 8
	copy(a.Seed[:], b[off:off+SeedSize])
	off += SeedSize
	a.KeyIndex = b[off]
	off++
	n := binary.BigEndian.Uint32(b[off:])
	off += 4
	if n > MaxUserDataSize || len(b)-off != int(n)+ed25519.SignatureSize {
		return nil, ErrMalformed
	}
	if n > 0 {
		a.UserData = append([]byte(nil), b[off:off+int(n)]...)
	}
	off += int(n)
	a.Signature = append([]byte(nil), b[off:]...)
	return a, nil
}
