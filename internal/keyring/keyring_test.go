package keyring

import (
	"errors"
	"testing"
)

func TestCreateLoad(t *testing.T) {
	dir := t.TempDir()
	kr, err := Create(dir, "correct horse")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := Load(dir, "correct horse")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Keys.ID() != kr.Keys.ID() || got.BlobKey != kr.BlobKey {
		t.Fatalf("keyring changed across save/load")
	}
	if _, err := Load(dir, "wrong"); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("wrong passphrase: %v", err)
	}
	if _, err := Create(dir, "again"); !errors.Is(err, ErrExists) {
		t.Fatalf("second Create: %v", err)
	}
	if _, err := Load(dir, ""); !errors.Is(err, ErrNoPassphrase) {
		t.Fatalf("empty passphrase: %v", err)
	}
}
