// Package transporttest holds a behavioural test suite shared by every
// transport.Transport implementation.
package transporttest

import (
	"bytes"
	"context"
	"testing"

	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/transport"
)

func testSeeker(b byte) seeker.Seeker {
	var h [seeker.HashSize]byte
	for i := range h {
		h[i] = b
	}
	return seeker.New(h, b)
}

// Run exercises tr. It must start empty.
func Run(t *testing.T, tr transport.Transport) {
	t.Helper()
	ctx := context.Background()

	t.Run("bulletin", func(t *testing.T) {
		for i, data := range []string{"a1", "a2", "a3"} {
			n, err := tr.SendAnnouncement(ctx, []byte(data))
			if err != nil {
				t.Fatalf("SendAnnouncement: %v", err)
			}
			if n != uint64(i+1) {
				t.Fatalf("counter = %d, want %d", n, i+1)
			}
		}
		all, err := tr.FetchAnnouncements(ctx, 0, 10)
		if err != nil {
			t.Fatalf("FetchAnnouncements: %v", err)
		}
		if len(all) != 3 || string(all[2].Data) != "a3" || all[2].Counter != 3 {
			t.Fatalf("unexpected bulletin %+v", all)
		}
		page, _ := tr.FetchAnnouncements(ctx, 1, 1)
		if len(page) != 1 || page[0].Counter != 2 || string(page[0].Data) != "a2" {
			t.Fatalf("unexpected page %+v", page)
		}
		tail, _ := tr.FetchAnnouncements(ctx, 3, 10)
		if len(tail) != 0 {
			t.Fatalf("expected empty tail, got %d", len(tail))
		}
		if _, err := tr.SendAnnouncement(ctx, nil); err == nil {
			t.Fatalf("expected error for empty announcement")
		}
	})

	t.Run("board", func(t *testing.T) {
		s1, s2, s3 := testSeeker(1), testSeeker(2), testSeeker(3)
		if err := tr.SendMessage(ctx, transport.Message{Seeker: s1, Ciphertext: []byte("one")}); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		if err := tr.SendMessage(ctx, transport.Message{Seeker: s3, Ciphertext: []byte("three")}); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		got, err := tr.FetchMessages(ctx, []seeker.Seeker{s1, s2, s3})
		if err != nil {
			t.Fatalf("FetchMessages: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(got))
		}
		byS := map[seeker.Seeker][]byte{}
		for _, m := range got {
			byS[m.Seeker] = m.Ciphertext
		}
		if !bytes.Equal(byS[s1], []byte("one")) || !bytes.Equal(byS[s3], []byte("three")) {
			t.Fatalf("unexpected messages %v", byS)
		}
		none, err := tr.FetchMessages(ctx, nil)
		if err != nil || len(none) != 0 {
			t.Fatalf("empty fetch: %v %v", none, err)
		}
		err = tr.SendMessage(ctx, transport.Message{Seeker: seeker.Seeker{}, Ciphertext: []byte("x")})
		if err == nil {
			t.Fatalf("expected error for invalid seeker")
		}
		tooMany := make([]seeker.Seeker, transport.MaxFetchMessages+1)
		if _, err := tr.FetchMessages(ctx, tooMany); err == nil {
			t.Fatalf("expected error for oversized fetch")
		}
	})
}

