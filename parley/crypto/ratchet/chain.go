package ratchet

import (
	"crypto/sha256"
	"errors"

	"github.com/TheusHen/parley/parley/crypto"
	"github.com/TheusHen/parley/parley/seeker"
)

var (
	ErrRatchetExhausted = errors.New("ratchet: maximum generation reached")
	ErrInvalidKey       = errors.New("ratchet: initial key must be 32 bytes")
)

const (
	// DefaultMaxGeneration is the default number of ratchet steps before re-keying is required.
	DefaultMaxGeneration = 1 << 32
)

const (
	labelMessageKey byte = 0x01
	labelChainKey   byte = 0x02
	labelSeeker     byte = 0x03
)

// Step is the output of one ratchet advance.
type Step struct {
	Generation uint64
	MessageKey [32]byte
	Seeker     seeker.Seeker
}

func hashLabel(chainKey [32]byte, label byte) [32]byte {
	h := sha256.New()
	h.Write(chainKey[:])
	h.Write([]byte{label})
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func seekerFor(chainKey [32]byte, keyIndex byte) seeker.Seeker {
	return seeker.New(hashLabel(chainKey, labelSeeker), keyIndex)
}

// derive returns the next chain key and the message key for the generation
// chainKey belongs to.
func derive(chainKey [32]byte) (next [32]byte, messageKey [32]byte) {
	return hashLabel(chainKey, labelChainKey), hashLabel(chainKey, labelMessageKey)
}

// InitialKey expands a session seed into the first chain key, bound to the
// sending and receiving identities.
func InitialKey(seed, senderID, recipientID []byte) ([32]byte, error) {
	var ck [32]byte
	k, err := crypto.DeriveKey(seed, nil, crypto.Label("parley-chain", senderID, recipientID), 32)
	if err != nil {
		return ck, err
	}
	copy(ck[:], k)
	crypto.Wipe(k)
	return ck, nil
}

// Chain is the sending half of a session. It is not safe for concurrent use;
// the session manager serializes access.
type Chain struct {
	chainKey   [32]byte
	generation uint64
	keyIndex   byte
	limit      uint64
}

// ChainState is the persisted form of a Chain.
// WARNING: Handle with extreme care; this contains keying material.
type ChainState struct {
	ChainKey   [32]byte
	Generation uint64
	KeyIndex   byte
	Limit      uint64
}

// NewChain creates a sending chain from an initial 32-byte key. limit caps the
// number of steps; zero selects DefaultMaxGeneration.
func NewChain(initialKey []byte, keyIndex byte, limit uint64) (*Chain, error) {
	if len(initialKey) != 32 {
		return nil, ErrInvalidKey
	}
	if limit == 0 {
		limit = DefaultMaxGeneration
	}
	c := &Chain{keyIndex: keyIndex, limit: limit}
	copy(c.chainKey[:], initialKey)
	return c, nil
}

// RestoreChain rebuilds a chain from Export output.
func RestoreChain(st ChainState) *Chain {
	if st.Limit == 0 {
		st.Limit = DefaultMaxGeneration
	}
	return &Chain{chainKey: st.ChainKey, generation: st.Generation, keyIndex: st.KeyIndex, limit: st.Limit}
}

// Next advances the ratchet. The chain key is immediately replaced.
func (c *Chain) Next() (Step, error) {
	if c.generation >= c.limit {
		return Step{}, ErrRatchetExhausted
	}
	next, mk := derive(c.chainKey)
	st := Step{Generation: c.generation, MessageKey: mk, Seeker: seekerFor(c.chainKey, c.keyIndex)}
	c.chainKey = next
	c.generation++
	return st, nil
}

// Peek returns the seeker Next will produce without advancing.
func (c *Chain) Peek() (seeker.Seeker, error) {
	if c.generation >= c.limit {
		return seeker.Seeker{}, ErrRatchetExhausted
	}
	return seekerFor(c.chainKey, c.keyIndex), nil
}

// Generation returns the generation the next step will carry.
func (c *Chain) Generation() uint64 { return c.generation }

// Exhausted reports whether the step budget is spent.
func (c *Chain) Exhausted() bool { return c.generation >= c.limit }

// Export exports the current chain state for persistence.
func (c *Chain) Export() ChainState {
	return ChainState{ChainKey: c.chainKey, Generation: c.generation, KeyIndex: c.keyIndex, Limit: c.limit}
}

// Wipe destroys the chain key. The chain is unusable afterwards.
func (c *Chain) Wipe() {
	crypto.Wipe(c.chainKey[:])
	c.generation = c.limit
}
