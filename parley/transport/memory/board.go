// Package memory provides an in-memory Transport. It backs tests, the demo and
// the relay's default storage.
package memory

import (
	"context"
	"sync"

	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/transport"
)

// Board is an in-memory bulletin and message board.
type Board struct {
	mu            sync.RWMutex
	announcements [][]byte
	messages      map[seeker.Seeker][]byte
}

func New() *Board {
	return &Board{messages: map[seeker.Seeker][]byte{}}
}

func (b *Board) SendAnnouncement(_ context.Context, data []byte) (uint64, error) {
	if err := transport.CheckAnnouncement(data); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.announcements = append(b.announcements, append([]byte(nil), data...))
	return uint64(len(b.announcements)), nil
}

func (b *Board) FetchAnnouncements(_ context.Context, since uint64, limit int) ([]transport.Announcement, error) {
	limit = transport.ClampLimit(limit)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []transport.Announcement
	for i := since; i < uint64(len(b.announcements)) && len(out) < limit; i++ {
		out = append(out, transport.Announcement{
			Counter: i + 1,
			Data:    append([]byte(nil), b.announcements[i]...),
		})
	}
	return out, nil
}

func (b *Board) SendMessage(_ context.Context, msg transport.Message) error {
	if err := transport.CheckMessage(msg); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[msg.Seeker] = append([]byte(nil), msg.Ciphertext...)
	return nil
}

func (b *Board) FetchMessages(_ context.Context, seekers []seeker.Seeker) ([]transport.Message, error) {
	if len(seekers) > transport.MaxFetchMessages {
		return nil, transport.ErrTooManySeekers
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []transport.Message
	for _, s := range seekers {
		ct, ok := b.messages[s]
		if !ok {
			continue
		}
		out = append(out, transport.Message{Seeker: s, Ciphertext: append([]byte(nil), ct...)})
	}
	return out, nil
}

// Len reports the number of announcements and stored messages.
func (b *Board) Len() (announcements, messages int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.announcements), len(b.messages)
}

var _ transport.Transport = (*Board)(nil)
