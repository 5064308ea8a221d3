package ratchet

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/TheusHen/parley/parley/crypto"
	"github.com/TheusHen/parley/parley/seeker"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func seal(t *testing.T, c *Chain, msg string) (seeker.Seeker, []byte) {
	t.Helper()
	st, err := c.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	ct, err := crypto.Seal(st.MessageKey[:], []byte(msg), st.Seeker[:])
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return st.Seeker, ct
}

func TestChainRoundTrip(t *testing.T) {
	sender, err := NewChain(testKey(), 3, 0)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	receiver, err := NewReceiver(testKey(), 3, 0, 4, 16)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	messages := []string{"message 0", "message 1", "message 2"}
	for i, m := range messages {
		s, ct := seal(t, sender, m)
		if s[0] != seeker.HashSize || s.KeyIndex() != 3 {
			t.Fatalf("bad seeker structure %x", s)
		}
		gen, pt, err := receiver.Open(s, ct, s[:])
		if err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
		if gen != uint64(i) || string(pt) != m {
			t.Fatalf("message %d mismatch: gen=%d pt=%q", i, gen, pt)
		}
	}
}

func TestPeekMatchesNext(t *testing.T) {
	c, _ := NewChain(testKey(), 0, 0)
	peek, err := c.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	st, _ := c.Next()
	if peek != st.Seeker {
		t.Fatalf("Peek did not predict Next")
	}
	if c.Generation() != 1 {
		t.Fatalf("Generation = %d", c.Generation())
	}
}

func TestReceiverWindow(t *testing.T) {
	sender, _ := NewChain(testKey(), 0, 0)
	receiver, _ := NewReceiver(testKey(), 0, 0, 4, 16)

	seekers := receiver.Seekers()
	if len(seekers) != 4 {
		t.Fatalf("window = %d, want 4", len(seekers))
	}
	for i := 0; i < 4; i++ {
		p, _ := sender.Peek()
		if seekers[i] != p {
			t.Fatalf("window seeker %d does not match sender", i)
		}
		sender.Next()
	}
}

func TestReceiverOutOfOrderAndAck(t *testing.T) {
	sender, _ := NewChain(testKey(), 0, 0)
	receiver, _ := NewReceiver(testKey(), 0, 0, 4, 16)

	s0, c0 := seal(t, sender, "m0")
	s1, c1 := seal(t, sender, "m1")
	s2, c2 := seal(t, sender, "m2")

	if _, pt, err := receiver.Open(s2, c2, s2[:]); err != nil || string(pt) != "m2" {
		t.Fatalf("Open s2: %v %q", err, pt)
	}
	below, ranges := receiver.Ack()
	if diff := cmp.Diff([]AckRange{{From: 2, To: 3}}, ranges); below != 0 || diff != "" {
		t.Fatalf("Ack after m2: below %d, ranges:\n%s", below, diff)
	}
	if !receiver.Has(s0) || !receiver.Has(s1) {
		t.Fatalf("skipped seekers must stay in the window")
	}

	if _, pt, err := receiver.Open(s0, c0, s0[:]); err != nil || string(pt) != "m0" {
		t.Fatalf("Open s0: %v %q", err, pt)
	}
	if _, pt, err := receiver.Open(s1, c1, s1[:]); err != nil || string(pt) != "m1" {
		t.Fatalf("Open s1: %v %q", err, pt)
	}
	below, ranges = receiver.Ack()
	if below != 3 || len(ranges) != 0 {
		t.Fatalf("Ack after all = %d %v", below, ranges)
	}
}

func TestReceiverNoReplay(t *testing.T) {
	sender, _ := NewChain(testKey(), 0, 0)
	receiver, _ := NewReceiver(testKey(), 0, 0, 4, 16)
	s, ct := seal(t, sender, "once")
	if _, _, err := receiver.Open(s, ct, s[:]); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := receiver.Open(s, ct, s[:]); err != ErrUnknownSeeker {
		t.Fatalf("expected ErrUnknownSeeker on replay, got %v", err)
	}
}

func TestReceiverTamperedNotConsumed(t *testing.T) {
	sender, _ := NewChain(testKey(), 0, 0)
	receiver, _ := NewReceiver(testKey(), 0, 0, 4, 16)
	s, ct := seal(t, sender, "payload")
	bad := append([]byte(nil), ct...)
	bad[len(bad)-1] ^= 1
	if _, _, err := receiver.Open(s, bad, s[:]); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
	if !receiver.Has(s) {
		t.Fatalf("failed open must not consume the seeker")
	}
}

func TestReceiverAbandonsOldSkipped(t *testing.T) {
	sender, _ := NewChain(testKey(), 0, 0)
	receiver, _ := NewReceiver(testKey(), 0, 0, 4, 2)

	lost, _ := seal(t, sender, "lost")
	for i := 0; i < 4; i++ {
		s, ct := seal(t, sender, "m")
		if _, _, err := receiver.Open(s, ct, s[:]); err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
	}
	if receiver.Has(lost) {
		t.Fatalf("expected generation 0 to be abandoned")
	}
	below, ranges := receiver.Ack()
	if diff := cmp.Diff([]AckRange{{From: 1, To: 5}}, ranges); below != 0 || diff != "" {
		t.Fatalf("abandoned generation acknowledged: below %d, ranges:\n%s", below, diff)
	}
}

func TestReceiverAckRanges(t *testing.T) {
	receiver, _ := NewReceiver(testKey(), 0, 0, 16, 16)
	for _, g := range []uint64{3, 5, 4, 9, 0, 7, 1} {
		receiver.markReceived(g)
	}
	below, ranges := receiver.Ack()
	want := []AckRange{{From: 3, To: 6}, {From: 7, To: 8}, {From: 9, To: 10}}
	if diff := cmp.Diff(want, ranges); below != 2 || diff != "" {
		t.Fatalf("below %d, ranges:\n%s", below, diff)
	}
	receiver.markReceived(2)
	receiver.markReceived(8)
	below, ranges = receiver.Ack()
	if diff := cmp.Diff([]AckRange{{From: 7, To: 10}}, ranges); below != 6 || diff != "" {
		t.Fatalf("below %d, ranges:\n%s", below, diff)
	}
}

func TestReceiverAckRangesBounded(t *testing.T) {
	receiver, _ := NewReceiver(testKey(), 0, 0, 16, 16)
	for i := 0; i <= MaxAckRanges; i++ {
		receiver.markReceived(uint64(2*i + 1))
	}
	below, ranges := receiver.Ack()
	if below != 0 || len(ranges) != MaxAckRanges {
		t.Fatalf("below %d with %d ranges", below, len(ranges))
	}
	if ranges[0].From != 3 {
		t.Fatalf("oldest run kept: %+v", ranges[0])
	}
}

func TestRestoreReceiverDefaultsMaxSkip(t *testing.T) {
	sender, _ := NewChain(testKey(), 0, 0)
	receiver, _ := NewReceiver(testKey(), 0, 0, 4, 16)
	st := receiver.Export()
	st.MaxSkip = 0
	restored := RestoreReceiver(st)

	late, lateCT := seal(t, sender, "late")
	s, ct := seal(t, sender, "early")
	if _, _, err := restored.Open(s, ct, s[:]); err != nil {
		t.Fatalf("Open early: %v", err)
	}
	if _, pt, err := restored.Open(late, lateCT, late[:]); err != nil || string(pt) != "late" {
		t.Fatalf("Open late: %v %q", err, pt)
	}
}

func TestExhaustion(t *testing.T) {
	sender, _ := NewChain(testKey(), 0, 2)
	receiver, _ := NewReceiver(testKey(), 0, 2, 8, 16)
	if got := len(receiver.Seekers()); got != 2 {
		t.Fatalf("window capped by limit: got %d", got)
	}
	for i := 0; i < 2; i++ {
		s, ct := seal(t, sender, "m")
		if _, _, err := receiver.Open(s, ct, s[:]); err != nil {
			t.Fatalf("Open: %v", err)
		}
	}
	if !sender.Exhausted() {
		t.Fatalf("sender should be exhausted")
	}
	if _, err := sender.Next(); err != ErrRatchetExhausted {
		t.Fatalf("expected ErrRatchetExhausted, got %v", err)
	}
	if !receiver.Exhausted() {
		t.Fatalf("receiver should be exhausted")
	}
}

func TestExportRestore(t *testing.T) {
	sender, _ := NewChain(testKey(), 5, 0)
	receiver, _ := NewReceiver(testKey(), 5, 0, 4, 16)
	seal(t, sender, "skipped")
	s, ct := seal(t, sender, "seen")
	receiver.Open(s, ct, s[:])

	sender2 := RestoreChain(sender.Export())
	receiver2 := RestoreReceiver(receiver.Export())

	a, _ := sender.Next()
	b, _ := sender2.Next()
	if a.Seeker != b.Seeker || !bytes.Equal(a.MessageKey[:], b.MessageKey[:]) {
		t.Fatalf("restored chain diverged")
	}
	got, want := receiver2.Seekers(), receiver.Seekers()
	if len(got) != len(want) {
		t.Fatalf("restored window length %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("restored window differs at %d", i)
		}
	}
	b1, r1 := receiver.Ack()
	b2, r2 := receiver2.Ack()
	if diff := cmp.Diff(r1, r2); b1 != b2 || diff != "" {
		t.Fatalf("restored ack differs: %d vs %d\n%s", b1, b2, diff)
	}
}

func TestInitialKeyBinding(t *testing.T) {
	seed := []byte("seed")
	k1, err := InitialKey(seed, []byte("a"), []byte("b"))
	if err != nil {
		t.Fatalf("InitialKey: %v", err)
	}
	k2, _ := InitialKey(seed, []byte("b"), []byte("a"))
	if k1 == k2 {
		t.Fatalf("direction must change the chain key")
	}
}

func BenchmarkChainNext(b *testing.B) {
	chain, _ := NewChain(make([]byte, 32), 0, 0)
	for i := 0; i < b.N; i++ {
		_, _ = chain.Next()
	}
}
