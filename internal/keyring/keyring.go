// Package keyring stores the local identity and the session blob key in a
// passphrase-protected file.
package keyring

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"

	"github.com/TheusHen/parley/parley/crypto"
	"github.com/TheusHen/parley/parley/identity"
	"github.com/TheusHen/parley/parley/session"
)

var (
	ErrWrongPassphrase = errors.New("keyring: wrong passphrase or corrupt keyring")
	ErrExists          = errors.New("keyring: already initialized")
	ErrNoPassphrase    = errors.New("keyring: passphrase required")
)

const (
	FileName  = "keyring.json"
	saltBytes = 16
	version   = 1

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Keyring is the decrypted content.
type Keyring struct {
	Keys    identity.UserKeys
	BlobKey session.BlobKey
}

type file struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Sealed  []byte `json:"sealed"`
}

func deriveKEK(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, crypto.KeySize)
}

// Create generates a new identity and blob key and writes them under dir.
func Create(dir, passphrase string) (*Keyring, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil, ErrExists
	}
	keys, err := identity.GenerateUserKeys()
	if err != nil {
		return nil, err
	}
	bk, err := session.NewBlobKey()
	if err != nil {
		return nil, err
	}
	kr := &Keyring{Keys: keys, BlobKey: bk}
	if err := kr.Save(dir, passphrase); err != nil {
		return nil, err
	}
	return kr, nil
}

// Save encrypts the keyring with a key derived from passphrase.
func (k *Keyring) Save(dir, passphrase string) error {
	if passphrase == "" {
		return ErrNoPassphrase
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	kek := deriveKEK(passphrase, salt)
	defer crypto.Wipe(kek)

	secret := append(k.Keys.Bytes(), k.BlobKey[:]...)
	defer crypto.Wipe(secret)
	sealed, err := crypto.SealX(kek, secret, salt)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(file{Version: version, Salt: salt, Sealed: sealed}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0o600)
}

// Load decrypts the keyring under dir.
func Load(dir, passphrase string) (*Keyring, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil || f.Version != version {
		return nil, ErrWrongPassphrase
	}
	kek := deriveKEK(passphrase, f.Salt)
	defer crypto.Wipe(kek)
	secret, err := crypto.OpenX(kek, f.Sealed, f.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	defer crypto.Wipe(secret)

	const keysLen = 64
	if len(secret) != keysLen+len(session.BlobKey{}) {
		return nil, ErrWrongPassphrase
	}
	keys, err := identity.ParseUserKeys(secret[:keysLen])
	if err != nil {
		return nil, err
	}
	kr := &Keyring{Keys: keys}
	copy(kr.BlobKey[:], secret[keysLen:])
	return kr, nil
}
