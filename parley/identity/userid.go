package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrInvalidUserID = errors.New("identity: invalid user id")

// UserID is the stable identifier for a user.
// It is defined as: UserID = SHA-256(PublicKeys.Bytes()).
type UserID [32]byte

func UserIDFromPublicKeys(pk PublicKeys) UserID {
	return UserID(sha256.Sum256(pk.Bytes()))
}

func ParseUserIDHex(s string) (UserID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return UserID{}, err
	}
	if len(b) != 32 {
		return UserID{}, ErrInvalidUserID
	}
	var id UserID
	copy(id[:], b)
	return id, nil
}

func (id UserID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, for logs and listings.
func (id UserID) Short() string { return id.String()[:8] }

func (id UserID) IsZero() bool { return id == UserID{} }
