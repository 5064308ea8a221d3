package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrDecryptionFailed   = errors.New("crypto: decryption failed")
	ErrInvalidKeySize     = errors.New("crypto: invalid key size")
)

// KeySize is the key size shared by both AEAD constructions.
const KeySize = chacha20poly1305.KeySize

// Seal encrypts plaintext under key with ChaCha20-Poly1305 and a random nonce.
// Output: nonce (12 bytes) || ciphertext || tag (16 bytes)
//
// Keys passed to Seal are expected to be single-use or low-volume; use SealX for
// keys that encrypt an unbounded number of payloads.
func Seal(key, plaintext, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return seal(aead.NonceSize(), aead.Seal, plaintext, additionalData)
}

// Open reverses Seal.
func Open(key, ciphertext, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return open(aead.NonceSize(), aead.Overhead(), aead.Open, ciphertext, additionalData)
}

// SealX encrypts with XChaCha20-Poly1305. The 24-byte random nonce makes it safe
// to reuse the key indefinitely.
// Output: nonce (24 bytes) || ciphertext || tag (16 bytes)
func SealX(key, plaintext, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return seal(aead.NonceSize(), aead.Seal, plaintext, additionalData)
}

// OpenX reverses SealX.
func OpenX(key, ciphertext, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return open(aead.NonceSize(), aead.Overhead(), aead.Open, ciphertext, additionalData)
}

// Overhead returns the bytes Seal adds to a plaintext.
func Overhead() int { return chacha20poly1305.NonceSize + chacha20poly1305.Overhead }

type sealFunc func(dst, nonce, plaintext, additionalData []byte) []byte

type openFunc func(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)

func seal(nonceSize int, fn sealFunc, plaintext, additionalData []byte) ([]byte, error) {
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, err
	}
	return fn(out, out[:nonceSize], plaintext, additionalData), nil
}

func open(nonceSize, overhead int, fn openFunc, ciphertext, additionalData []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize+overhead {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := fn(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
