// Package redis stores the bulletin and the message board in Redis: the
// bulletin is a list whose length is the announcement counter, board slots are
// plain keys named after their seeker.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/transport"
)

const DefaultPrefix = "parley:"

type Option func(*Board)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option { return func(b *Board) { b.prefix = prefix } }

// WithMessageTTL expires board slots after ttl. Zero keeps them forever.
func WithMessageTTL(ttl time.Duration) Option { return func(b *Board) { b.ttl = ttl } }

type Board struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func New(rdb redis.Cmdable, opts ...Option) *Board {
	b := &Board{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Board) bulletinKey() string { return b.prefix + "bulletin" }

func (b *Board) slotKey(s seeker.Seeker) string { return b.prefix + "msg:" + s.String() }

// SendAnnouncement appends with RPUSH; the resulting list length is the counter.
func (b *Board) SendAnnouncement(ctx context.Context, data []byte) (uint64, error) {
	if err := transport.CheckAnnouncement(data); err != nil {
		return 0, err
	}
	n, err := b.rdb.RPush(ctx, b.bulletinKey(), data).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: append announcement: %w", err)
	}
	return uint64(n), nil
}

func (b *Board) FetchAnnouncements(ctx context.Context, since uint64, limit int) ([]transport.Announcement, error) {
	limit = transport.ClampLimit(limit)
	start := int64(since)
	vals, err := b.rdb.LRange(ctx, b.bulletinKey(), start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read bulletin: %w", err)
	}
	out := make([]transport.Announcement, 0, len(vals))
	for i, v := range vals {
		out = append(out, transport.Announcement{Counter: since + uint64(i) + 1, Data: []byte(v)})
	}
	return out, nil
}

func (b *Board) SendMessage(ctx context.Context, msg transport.Message) error {
	if err := transport.CheckMessage(msg); err != nil {
		return err
	}
	if err := b.rdb.Set(ctx, b.slotKey(msg.Seeker), msg.Ciphertext, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis: store message: %w", err)
	}
	return nil
}

func (b *Board) FetchMessages(ctx context.Context, seekers []seeker.Seeker) ([]transport.Message, error) {
	if len(seekers) > transport.MaxFetchMessages {
		return nil, transport.ErrTooManySeekers
	}
	if len(seekers) == 0 {
		return nil, nil
	}
	keys := make([]string, len(seekers))
	for i, s := range seekers {
		keys[i] = b.slotKey(s)
	}
	vals, err := b.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read board: %w", err)
	}
	var out []transport.Message
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, transport.Message{Seeker: seekers[i], Ciphertext: []byte(str)})
	}
	return out, nil
}

var _ transport.Transport = (*Board)(nil)
