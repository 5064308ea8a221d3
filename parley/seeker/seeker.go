// Package seeker defines the 34-byte lookup keys that address message slots on
// the message board.
//
// Layout: [hash length (always 32)][32-byte hash][key index]
package seeker

import (
	"bytes"
	"encoding/hex"
	"errors"
)

const (
	// Size is the encoded size of every seeker.
	Size = 34
	// HashSize is the length of the embedded hash, stored in the first byte.
	HashSize = 32
)

var ErrInvalidStructure = errors.New("seeker: invalid seeker structure")

// Seeker addresses one message slot. Only the holder of the ratchet secret it was
// derived from can predict it.
type Seeker [Size]byte

// New builds a seeker from a hash and the key index of the session generation.
func New(hash [HashSize]byte, keyIndex byte) Seeker {
	var s Seeker
	s[0] = HashSize
	copy(s[1:1+HashSize], hash[:])
	s[Size-1] = keyIndex
	return s
}

// Parse validates b and copies it into a Seeker.
func Parse(b []byte) (Seeker, error) {
	var s Seeker
	if len(b) != Size || b[0] != HashSize {
		return s, ErrInvalidStructure
	}
	copy(s[:], b)
	return s, nil
}

// ParseHex decodes the String form.
func ParseHex(str string) (Seeker, error) {
	b, err := hex.DecodeString(str)
	if err != nil {
		return Seeker{}, ErrInvalidStructure
	}
	return Parse(b)
}

func (s Seeker) Valid() bool { return s[0] == HashSize }

func (s Seeker) Hash() (h [HashSize]byte) {
	copy(h[:], s[1:1+HashSize])
	return h
}

func (s Seeker) KeyIndex() byte { return s[Size-1] }

func (s Seeker) Bytes() []byte { return append([]byte(nil), s[:]...) }

func (s Seeker) String() string { return hex.EncodeToString(s[:]) }

func (s Seeker) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Seeker) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Compare orders seekers bytewise.
func Compare(a, b Seeker) int { return bytes.Compare(a[:], b[:]) }
