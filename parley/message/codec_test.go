package message

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/TheusHen/parley/parley/seeker"
)

func testSeeker() seeker.Seeker {
	var h [seeker.HashSize]byte
	for i := range h {
		h[i] = byte(0xa0 + i)
	}
	return seeker.New(h, 4)
}

func TestRoundTrip(t *testing.T) {
	s := testSeeker()
	big := strings.Repeat("x", MaxContentSize)
	cases := map[string]Message{
		"keepalive":       KeepAlive(),
		"regular 1":       Regular("a"),
		"regular utf8":    Regular("héllo ✓"),
		"regular max":     Regular(big),
		"reply":           Reply("original", s, "answer"),
		"reply empty ref": Reply("", s, "answer"),
		"reply max":       Reply(big, s, big),
		"forward":         Forward("forwarded text", s, "look at this"),
	}
	for name, m := range cases {
		b, err := Encode(m)
		if err != nil {
			t.Fatalf("%s: Encode: %v", name, err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("%s: Decode: %v", name, err)
		}
		if diff := cmp.Diff(m, got); diff != "" {
			t.Fatalf("%s: round trip mismatch (-want +got):\n%s", name, diff[:min(len(diff), 400)])
		}
	}
}

func TestExactLayout(t *testing.T) {
	s := testSeeker()
	b, err := Encode(Reply("ab", s, "c"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if b[0] != 0x01 {
		t.Fatalf("tag = %x", b[0])
	}
	if b[1] != 2 || b[2] != 0 || b[3] != 0 || b[4] != 0 {
		t.Fatalf("length prefix not little endian: %x", b[1:5])
	}
	if string(b[5:7]) != "ab" {
		t.Fatalf("original content misplaced")
	}
	if seeker.Seeker(b[7:41]) != s {
		t.Fatalf("seeker misplaced")
	}
	if string(b[41:]) != "c" || len(b) != 42 {
		t.Fatalf("new content misplaced")
	}

	ka, _ := Encode(KeepAlive())
	if len(ka) != 1 || ka[0] != 0x03 {
		t.Fatalf("keepalive frame = %x", ka)
	}
	reg, _ := Encode(Regular("hi"))
	if string(reg) != "\x00hi" {
		t.Fatalf("regular frame = %x", reg)
	}
}

func TestEncodeRejects(t *testing.T) {
	s := testSeeker()
	cases := []struct {
		name string
		msg  Message
		want error
	}{
		{"empty regular", Regular(""), ErrEmptyContent},
		{"empty reply", Reply("orig", s, ""), ErrEmptyContent},
		{"empty forward", Forward("", s, "note"), ErrEmptyContent},
		{"forward without note", Forward("forwarded text", s, ""), ErrEmptyContent},
		{"missing ref", Message{Type: TypeReply, Content: "x"}, ErrMissingReference},
		{"bad seeker", Reply("o", seeker.Seeker{}, "x"), ErrInvalidSeekerStructure},
		{"too large", Regular(strings.Repeat("x", MaxContentSize+1)), ErrContentTooLarge},
		{"bad utf8", Regular("\xff"), ErrInvalidUTF8},
		{"unknown type", Message{Type: 9, Content: "x"}, ErrUnknownMessageType},
	}
	for _, tc := range cases {
		if _, err := Encode(tc.msg); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	s := testSeeker()
	good, _ := Encode(Reply("orig", s, "new"))
	badSeeker := append([]byte(nil), good...)
	badSeeker[1+4+4] = 31

	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrEmptyFrame},
		{"unknown tag", []byte{0x04, 'x'}, ErrUnknownMessageType},
		{"no length", []byte{0x01, 1, 0}, ErrTruncatedMessage},
		{"length overflow", []byte{0x02, 0xff, 0xff, 0xff, 0xff, 'a'}, ErrTruncatedMessage},
		{"short seeker", good[:1+4+4+20], ErrTruncatedMessage},
		{"bad seeker", badSeeker, ErrInvalidSeekerStructure},
		{"bad utf8", []byte{0x00, 0xff}, ErrInvalidUTF8},
	}
	for _, tc := range cases {
		if _, err := Decode(tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	if TypeForward.String() != "FORWARD" || Type(42).String() != "UNKNOWN" {
		t.Fatalf("unexpected type names")
	}
}
