// Package erasure wraps a byte slice in Reed-Solomon shards, each tagged with
// its SHA-256, so that bit rot in a stored blob can be detected and repaired
// without the key that encrypted it.
package erasure

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/klauspost/reedsolomon"
)

var (
	ErrTooManyLost   = errors.New("erasure: too many shards damaged, cannot recover")
	ErrInvalidConfig = errors.New("erasure: invalid data/parity configuration")
	ErrMalformed     = errors.New("erasure: malformed shard envelope")
)

const (
	DefaultDataShards   = 8
	DefaultParityShards = 4

	version    = 0x01
	headerSize = 4 + 1 + 1 + 1 + 4 + 4
	maxSize    = 1 << 30
)

var magic = [4]byte{'P', 'R', 'S', 'H'}

// Codec encodes and repairs shard envelopes.
type Codec struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

// NewCodec creates a codec tolerating up to parityShards damaged shards.
func NewCodec(dataShards, parityShards int) (*Codec, error) {
	if dataShards <= 0 || parityShards <= 0 || dataShards+parityShards > 255 {
		return nil, ErrInvalidConfig
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Codec{enc: enc, dataShards: dataShards, parityShards: parityShards}, nil
}

func (c *Codec) TotalShards() int { return c.dataShards + c.parityShards }

// Overhead returns the storage expansion, e.g. 1.5 for 8+4.
func (c *Codec) Overhead() float64 {
	return float64(c.TotalShards()) / float64(c.dataShards)
}

// Encode returns the envelope for data:
//
//	"PRSH" | version | data | parity | size u32 | shardLen u32 | (sha256 | shard)*
func (c *Codec) Encode(data []byte) ([]byte, error) {
	if len(data) > maxSize {
		return nil, ErrInvalidConfig
	}
	// Split rejects empty input; a single padding byte is dropped again by size.
	src := data
	if len(src) == 0 {
		src = []byte{0}
	}
	shards, err := c.enc.Split(append([]byte(nil), src...))
	if err != nil {
		return nil, err
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, err
	}
	shardLen := len(shards[0])

	out := make([]byte, headerSize, headerSize+c.TotalShards()*(sha256.Size+shardLen))
	copy(out, magic[:])
	out[4] = version
	out[5] = byte(c.dataShards)
	out[6] = byte(c.parityShards)
	binary.BigEndian.PutUint32(out[7:], uint32(len(data)))
	binary.BigEndian.PutUint32(out[11:], uint32(shardLen))
	for _, s := range shards {
		sum := sha256.Sum256(s)
		out = append(out, sum[:]...)
		out = append(out, s...)
	}
	return out, nil
}

// Decode verifies every shard, rebuilds the damaged ones and returns the
// original data with the number of shards that had to be repaired. The shard
// layout is read from the envelope, so any codec can decode any envelope.
func (c *Codec) Decode(env []byte) ([]byte, int, error) {
	if len(env) < headerSize || !bytes.Equal(env[:4], magic[:]) || env[4] != version {
		return nil, 0, ErrMalformed
	}
	dataShards, parityShards := int(env[5]), int(env[6])
	size := int(binary.BigEndian.Uint32(env[7:]))
	shardLen := int(binary.BigEndian.Uint32(env[11:]))
	total := dataShards + parityShards
	if dataShards == 0 || parityShards == 0 || shardLen == 0 ||
		len(env) != headerSize+total*(sha256.Size+shardLen) || size > dataShards*shardLen {
		return nil, 0, ErrMalformed
	}

	codec := c
	if dataShards != c.dataShards || parityShards != c.parityShards {
		var err error
		if codec, err = NewCodec(dataShards, parityShards); err != nil {
			return nil, 0, ErrMalformed
		}
	}

	shards := make([][]byte, total)
	damaged := 0
	body := env[headerSize:]
	for i := range shards {
		rec := body[i*(sha256.Size+shardLen):][: sha256.Size+shardLen : sha256.Size+shardLen]
		shard := append([]byte(nil), rec[sha256.Size:]...)
		if sum := sha256.Sum256(shard); bytes.Equal(sum[:], rec[:sha256.Size]) {
			shards[i] = shard
		} else {
			damaged++
		}
	}
	if damaged > 0 {
		if err := codec.enc.ReconstructData(shards); err != nil {
			if errors.Is(err, reedsolomon.ErrTooFewShards) {
				return nil, damaged, ErrTooManyLost
			}
			return nil, damaged, err
		}
	}

	data := make([]byte, 0, size)
	for i := 0; i < dataShards && len(data) < size; i++ {
		remaining := size - len(data)
		if remaining >= len(shards[i]) {
			data = append(data, shards[i]...)
		} else {
			data = append(data, shards[i][:remaining]...)
		}
	}
	return data, damaged, nil
}
