package identity

import (
	"bytes"
	"testing"
)

func TestUserIDDerivationStable(t *testing.T) {
	keys, err := GenerateUserKeys()
	if err != nil {
		t.Fatalf("GenerateUserKeys: %v", err)
	}

	id1 := keys.ID()
	id2 := UserIDFromPublicKeys(keys.Public())
	if id1 != id2 {
		t.Fatalf("UserID mismatch")
	}

	parsed, err := ParseUserIDHex(id1.String())
	if err != nil {
		t.Fatalf("ParseUserIDHex: %v", err)
	}
	if parsed != id1 {
		t.Fatalf("ParseUserIDHex mismatch")
	}
	if _, err := ParseUserIDHex("abcd"); err != ErrInvalidUserID {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestPublicKeysEncoding(t *testing.T) {
	keys, _ := GenerateUserKeys()
	pk := keys.Public()
	b := pk.Bytes()
	if len(b) != PublicKeysSize {
		t.Fatalf("encoded size %d", len(b))
	}
	got, err := ParsePublicKeys(b)
	if err != nil {
		t.Fatalf("ParsePublicKeys: %v", err)
	}
	if !got.Equal(pk) || got.ID() != pk.ID() {
		t.Fatalf("public keys round trip mismatch")
	}
	if _, err := ParsePublicKeys(b[:10]); err != ErrInvalidPublicKeys {
		t.Fatalf("expected ErrInvalidPublicKeys, got %v", err)
	}
}

func TestUserKeysEncoding(t *testing.T) {
	keys, _ := GenerateUserKeys()
	got, err := ParseUserKeys(keys.Bytes())
	if err != nil {
		t.Fatalf("ParseUserKeys: %v", err)
	}
	if got.ID() != keys.ID() {
		t.Fatalf("secret round trip changed identity")
	}
	if !got.Valid() {
		t.Fatalf("expected valid keys")
	}
	if (UserKeys{}).Valid() {
		t.Fatalf("zero keys must be invalid")
	}
}

func TestSignVerify(t *testing.T) {
	keys, _ := GenerateUserKeys()
	msg := []byte("hello")
	sig := keys.SignMessage(msg)
	if !Verify(keys.Public().Sign, msg, sig) {
		t.Fatalf("signature verification failed")
	}
	if Verify(keys.Public().Sign, []byte("tampered"), sig) {
		t.Fatalf("expected verification to fail for tampered message")
	}
	other, _ := GenerateUserKeys()
	if Verify(other.Public().Sign, msg, sig) {
		t.Fatalf("expected verification to fail with different public key")
	}
	if Verify(nil, msg, sig) {
		t.Fatalf("expected verification to fail with missing key")
	}
	if bytes.Equal(sig, make([]byte, len(sig))) {
		t.Fatalf("unexpected zeroed signature")
	}
}
