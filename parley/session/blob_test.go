package session

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/TheusHen/parley/parley/message"
)

func TestPersistenceRoundTrip(t *testing.T) {
	c := newClock()
	cfg := testConfig(c)
	alice, bob, carol, dave := newParty(t, cfg), newParty(t, cfg), newParty(t, cfg), newParty(t, cfg)
	activate(t, alice, bob)
	activate(t, carol, alice)

	// In-flight state: an unacknowledged send, a skipped receive and a pending request.
	send(t, alice, bob, "unacked")
	skipped := send(t, carol, alice, "skipped")
	deliver(t, alice, send(t, carol, alice, "seen"))
	ann, _ := dave.m.EstablishOutgoingSession(alice.pub(), []byte("hey"))
	alice.m.FeedIncomingAnnouncement(ann)

	key, err := NewBlobKey()
	if err != nil {
		t.Fatalf("NewBlobKey: %v", err)
	}
	blob, err := alice.m.ToEncryptedBlob(key)
	if err != nil {
		t.Fatalf("ToEncryptedBlob: %v", err)
	}
	if !bytes.HasPrefix(blob, []byte("PRLY\x01")) {
		t.Fatalf("missing blob header")
	}
	restored, err := FromEncryptedBlob(alice.keys, blob, key, cfg)
	if err != nil {
		t.Fatalf("FromEncryptedBlob: %v", err)
	}

	if diff := cmp.Diff(alice.m.Peers(), restored.Peers()); diff != "" {
		t.Fatalf("peer snapshots differ (-orig +restored):\n%s", diff)
	}
	if diff := cmp.Diff(alice.m.MessageBoardReadKeys(), restored.MessageBoardReadKeys()); diff != "" {
		t.Fatalf("read keys differ:\n%s", diff)
	}

	// Same next seekers on both copies.
	for _, peer := range []party{bob, carol} {
		a, err := alice.m.SendMessage(peer.id(), message.Regular("next"))
		if err != nil {
			t.Fatalf("original send: %v", err)
		}
		b, err := restored.SendMessage(peer.id(), message.Regular("next"))
		if err != nil {
			t.Fatalf("restored send: %v", err)
		}
		if a.Seeker != b.Seeker || a.Sequence != b.Sequence {
			t.Fatalf("restored manager diverged for %s", peer.id().Short())
		}
	}

	// The restored copy can still read the skipped message and accept dave.
	res, err := restored.FeedIncomingMessageBoardRead(skipped.Seeker, skipped.Ciphertext)
	if err != nil || res == nil || res.Message.Content != "skipped" {
		t.Fatalf("skipped message after restore: %v %v", res, err)
	}
	if got := restored.PeerSessionStatus(dave.id()); got != StatusPeerRequested {
		t.Fatalf("dave status = %s", got)
	}
	if _, err := restored.EstablishOutgoingSession(dave.pub(), nil); err != nil {
		t.Fatalf("accept dave: %v", err)
	}
	if got := restored.PeerSessionStatus(dave.id()); got != StatusActive {
		t.Fatalf("dave status after accept = %s", got)
	}
}

func TestBlobErrors(t *testing.T) {
	c := newClock()
	cfg := testConfig(c)
	alice, bob := newParty(t, cfg), newParty(t, cfg)
	activate(t, alice, bob)

	key, _ := NewBlobKey()
	blob, err := alice.m.ToEncryptedBlob(key)
	if err != nil {
		t.Fatalf("ToEncryptedBlob: %v", err)
	}

	other, _ := NewBlobKey()
	if _, err := FromEncryptedBlob(alice.keys, blob, other, cfg); !errors.Is(err, ErrCorruptBlob) {
		t.Fatalf("wrong key: %v", err)
	}
	if _, err := FromEncryptedBlob(bob.keys, blob, key, cfg); !errors.Is(err, ErrBlobIdentity) {
		t.Fatalf("wrong identity: %v", err)
	}
	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)/2] ^= 1
	if _, err := FromEncryptedBlob(alice.keys, tampered, key, cfg); !errors.Is(err, ErrCorruptBlob) {
		t.Fatalf("tampered blob: %v", err)
	}
	if _, err := FromEncryptedBlob(alice.keys, []byte("junk"), key, cfg); !errors.Is(err, ErrCorruptBlob) {
		t.Fatalf("junk blob: %v", err)
	}
	if _, err := alice.m.ToEncryptedBlob(BlobKey{}); err != ErrInvalidBlobKey {
		t.Fatalf("zero key: %v", err)
	}
}

func TestEmptyManagerRoundTrip(t *testing.T) {
	alice := newParty(t, DefaultConfig())
	key, _ := NewBlobKey()
	blob, err := alice.m.ToEncryptedBlob(key)
	if err != nil {
		t.Fatalf("ToEncryptedBlob: %v", err)
	}
	m, err := FromEncryptedBlob(alice.keys, blob, key, DefaultConfig())
	if err != nil {
		t.Fatalf("FromEncryptedBlob: %v", err)
	}
	if len(m.PeerList()) != 0 {
		t.Fatalf("expected no peers")
	}
}
