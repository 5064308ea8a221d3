package erasure

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	codec, err := NewCodec(DefaultDataShards, DefaultParityShards)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	for _, data := range [][]byte{
		nil,
		[]byte("x"),
		[]byte("an encrypted session blob that spans several shards"),
		bytes.Repeat([]byte{0xAB}, 4097),
	} {
		env, err := codec.Encode(data)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, repaired, err := codec.Decode(env)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if repaired != 0 || !bytes.Equal(got, data) {
			t.Fatalf("round trip of %d bytes: repaired=%d equal=%v", len(data), repaired, bytes.Equal(got, data))
		}
	}
}

func TestRepair(t *testing.T) {
	codec, _ := NewCodec(4, 2)
	data := bytes.Repeat([]byte("parley"), 100)
	env, _ := codec.Encode(data)

	shardLen := (len(env) - headerSize) / 6
	// Flip a byte inside shard 0 and inside the hash of shard 5.
	env[headerSize+sha256.Size] ^= 0xFF
	env[headerSize+5*shardLen] ^= 0xFF

	got, repaired, err := codec.Decode(env)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if repaired != 2 {
		t.Fatalf("repaired = %d, want 2", repaired)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("repaired data differs")
	}
}

func TestTooManyLost(t *testing.T) {
	codec, _ := NewCodec(4, 2)
	env, _ := codec.Encode(make([]byte, 1024))
	shardLen := (len(env) - headerSize) / 6
	for i := 0; i < 3; i++ {
		env[headerSize+i*shardLen+sha256.Size] ^= 1
	}
	if _, _, err := codec.Decode(env); err != ErrTooManyLost {
		t.Fatalf("expected ErrTooManyLost, got %v", err)
	}
}

func TestForeignLayout(t *testing.T) {
	small, _ := NewCodec(2, 1)
	env, _ := small.Encode([]byte("written with 2+1"))
	big, _ := NewCodec(DefaultDataShards, DefaultParityShards)
	got, _, err := big.Decode(env)
	if err != nil || string(got) != "written with 2+1" {
		t.Fatalf("Decode: %q %v", got, err)
	}
}

func TestMalformed(t *testing.T) {
	codec, _ := NewCodec(4, 2)
	env, _ := codec.Encode([]byte("data"))
	for name, in := range map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte("XXXX"), env[4:]...),
		"truncated": env[:len(env)-1],
	} {
		if _, _, err := codec.Decode(in); err != ErrMalformed {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
	if _, err := NewCodec(0, 1); err != ErrInvalidConfig {
		t.Fatalf("NewCodec(0,1): %v", err)
	}
}

func TestOverhead(t *testing.T) {
	codec, _ := NewCodec(8, 4)
	if o := codec.Overhead(); o < 1.49 || o > 1.51 {
		t.Fatalf("unexpected overhead: %f", o)
	}
}
