package redis

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/transport/transporttest"
)

// Set PARLEY_TEST_REDIS=host:port to run against a live server.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("PARLEY_TEST_REDIS")
	if addr == "" {
		t.Skip("PARLEY_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestBoardSuite(t *testing.T) {
	rdb := testClient(t)
	prefix := "parley-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
	})
	transporttest.Run(t, New(rdb, WithPrefix(prefix)))
}

func TestKeys(t *testing.T) {
	b := New(nil, WithPrefix("x:"))
	if got := b.bulletinKey(); got != "x:bulletin" {
		t.Fatalf("bulletin key = %q", got)
	}
	s := seeker.New([seeker.HashSize]byte{}, 7)
	if got, want := b.slotKey(s), "x:msg:20"+strings.Repeat("00", seeker.HashSize)+"07"; got != want {
		t.Fatalf("slot key = %q, want %q", got, want)
	}
}
