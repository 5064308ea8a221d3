package session

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/TheusHen/parley/parley/crypto/ratchet"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	in := envelope{
		Timestamp: time.UnixMilli(1_700_000_000_001),
		AckBelow:  7,
		AckRanges: []ratchet.AckRange{{From: 9, To: 10}, {From: 12, To: 20}},
		Frame:     []byte{0x00, 'h', 'i'},
	}
	out, err := decodeEnvelope(in.encode())
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("envelope mismatch:\n%s", diff)
	}
}

func TestEnvelopeRejects(t *testing.T) {
	good := envelope{Timestamp: time.UnixMilli(1), AckRanges: []ratchet.AckRange{{From: 1, To: 3}}, Frame: []byte{0x03}}.encode()
	empty := append([]byte(nil), good...)
	copy(empty[envelopeHeader+8:], empty[envelopeHeader:envelopeHeader+8])
	for name, b := range map[string][]byte{
		"empty":       nil,
		"bad version": append([]byte{0x02}, good[1:]...),
		"short range": good[:envelopeHeader+12],
		"empty range": empty,
	} {
		if _, err := decodeEnvelope(b); err != ErrMalformedEnvelope {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}

func TestEnvelopeCarriesEveryAckRange(t *testing.T) {
	ranges := make([]ratchet.AckRange, ratchet.MaxAckRanges)
	for i := range ranges {
		ranges[i] = ratchet.AckRange{From: uint64(2 * i), To: uint64(2*i + 1)}
	}
	out, err := decodeEnvelope(envelope{Timestamp: time.UnixMilli(1), AckRanges: ranges}.encode())
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if diff := cmp.Diff(ranges, out.AckRanges); diff != "" {
		t.Fatalf("ack ranges lost:\n%s", diff)
	}
}

func TestStatusString(t *testing.T) {
	if StatusActive.String() != "ACTIVE" || Status(99).String() != "UNKNOWN" {
		t.Fatalf("unexpected status names")
	}
	if !StatusKilled.Broken() || StatusActive.Broken() {
		t.Fatalf("Broken misreports")
	}
}
