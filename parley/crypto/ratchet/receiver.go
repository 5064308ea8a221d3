package ratchet

import (
	"errors"
	"slices"
	"sort"

	"github.com/TheusHen/parley/parley/crypto"
	"github.com/TheusHen/parley/parley/seeker"
)

var (
	ErrUnknownSeeker    = errors.New("ratchet: seeker not in read window")
	ErrDecryptionFailed = errors.New("ratchet: decryption failed")
)

const (
	DefaultWindow  = 8
	DefaultMaxSkip = 256

	// MaxAckRanges bounds the received runs a Receiver remembers above its
	// contiguous prefix. The oldest runs are forgotten first.
	MaxAckRanges = 1024
)

// AckRange is a run of received generations [From, To).
type AckRange struct {
	From uint64
	To   uint64
}

// Covers reports whether gen lies in the run.
func (a AckRange) Covers(gen uint64) bool {
	return a.From <= gen && gen < a.To
}

type pendingKey struct {
	chainKey [32]byte
	seeker   seeker.Seeker
}

// Receiver is the receiving half of a session.
//
// It keeps every derived but unconsumed generation pending: a look-ahead window
// past the highest consumed generation and the skipped generations below it.
// Skipped generations older than maxSkip behind the top are abandoned.
type Receiver struct {
	next     [32]byte // chain key of generation `derived`
	derived  uint64
	top      uint64 // highest consumed generation + 1
	keyIndex byte
	limit    uint64
	window   int
	maxSkip  int
	pending  map[uint64]pendingKey
	bySeeker map[seeker.Seeker]uint64
	acked    uint64     // every generation below was received
	ranges   []AckRange // received runs above acked, ascending
}

// PendingKey is one unconsumed generation in a ReceiverState.
type PendingKey struct {
	Generation uint64
	ChainKey   [32]byte
}

// ReceiverState is the persisted form of a Receiver.
// WARNING: Handle with extreme care; this contains keying material.
type ReceiverState struct {
	NextKey  [32]byte
	Derived  uint64
	Top      uint64
	KeyIndex byte
	Limit    uint64
	Window   int
	MaxSkip  int
	Pending  []PendingKey
	Acked    uint64
	Ranges   []AckRange
}

// NewReceiver creates a receiver from the peer's initial chain key.
func NewReceiver(initialKey []byte, keyIndex byte, limit uint64, window, maxSkip int) (*Receiver, error) {
	if len(initialKey) != 32 {
		return nil, ErrInvalidKey
	}
	r := newReceiver(keyIndex, limit, window, maxSkip)
	copy(r.next[:], initialKey)
	r.fill()
	return r, nil
}

func newReceiver(keyIndex byte, limit uint64, window, maxSkip int) *Receiver {
	if limit == 0 {
		limit = DefaultMaxGeneration
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxSkip <= 0 {
		maxSkip = DefaultMaxSkip
	}
	return &Receiver{
		keyIndex: keyIndex,
		limit:    limit,
		window:   window,
		maxSkip:  maxSkip,
		pending:  make(map[uint64]pendingKey),
		bySeeker: make(map[seeker.Seeker]uint64),
	}
}

// RestoreReceiver rebuilds a receiver from Export output.
func RestoreReceiver(st ReceiverState) *Receiver {
	r := newReceiver(st.KeyIndex, st.Limit, st.Window, st.MaxSkip)
	r.next = st.NextKey
	r.derived = st.Derived
	r.top = st.Top
	r.acked = st.Acked
	r.ranges = slices.Clone(st.Ranges)
	for _, p := range st.Pending {
		r.add(p.Generation, p.ChainKey)
	}
	return r
}

func (r *Receiver) add(gen uint64, chainKey [32]byte) {
	s := seekerFor(chainKey, r.keyIndex)
	r.pending[gen] = pendingKey{chainKey: chainKey, seeker: s}
	r.bySeeker[s] = gen
}

func (r *Receiver) drop(gen uint64) {
	p, ok := r.pending[gen]
	if !ok {
		return
	}
	delete(r.bySeeker, p.seeker)
	delete(r.pending, gen)
	crypto.Wipe(p.chainKey[:])
}

// fill derives the look-ahead window and abandons skipped keys that fell too far behind.
func (r *Receiver) fill() {
	end := r.top + uint64(r.window)
	if end > r.limit {
		end = r.limit
	}
	for r.derived < end {
		next, _ := derive(r.next)
		r.add(r.derived, r.next)
		r.next = next
		r.derived++
	}
	if r.top > uint64(r.maxSkip) {
		floor := r.top - uint64(r.maxSkip)
		for gen := range r.pending {
			if gen < floor {
				r.drop(gen)
			}
		}
	}
}

// Seekers returns the pending seekers ordered by generation.
func (r *Receiver) Seekers() []seeker.Seeker {
	gens := r.pendingGenerations()
	out := make([]seeker.Seeker, len(gens))
	for i, g := range gens {
		out[i] = r.pending[g].seeker
	}
	return out
}

func (r *Receiver) pendingGenerations() []uint64 {
	gens := make([]uint64, 0, len(r.pending))
	for g := range r.pending {
		gens = append(gens, g)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens
}

// Has reports whether s is pending.
func (r *Receiver) Has(s seeker.Seeker) bool {
	_, ok := r.bySeeker[s]
	return ok
}

// Open decrypts the message addressed by s and consumes its generation.
// Unknown or already consumed seekers return ErrUnknownSeeker; a known seeker
// whose ciphertext fails authentication returns ErrDecryptionFailed and is not
// consumed.
func (r *Receiver) Open(s seeker.Seeker, ciphertext, ad []byte) (uint64, []byte, error) {
	gen, ok := r.bySeeker[s]
	if !ok {
		return 0, nil, ErrUnknownSeeker
	}
	_, mk := derive(r.pending[gen].chainKey)
	pt, err := crypto.Open(mk[:], ciphertext, ad)
	crypto.Wipe(mk[:])
	if err != nil {
		return gen, nil, ErrDecryptionFailed
	}
	r.drop(gen)
	r.markReceived(gen)
	if gen+1 > r.top {
		r.top = gen + 1
	}
	r.fill()
	return gen, pt, nil
}

// Ack summarizes what has been received: every generation below `below` was
// received, as was every generation inside ranges. Generations abandoned
// before they arrived are never reported.
func (r *Receiver) Ack() (below uint64, ranges []AckRange) {
	return r.acked, slices.Clone(r.ranges)
}

func (r *Receiver) markReceived(gen uint64) {
	if gen < r.acked {
		return
	}
	if gen == r.acked {
		r.acked++
		if len(r.ranges) > 0 && r.ranges[0].From == r.acked {
			r.acked = r.ranges[0].To
			r.ranges = r.ranges[1:]
		}
		return
	}
	// first run ending at or after gen
	i := sort.Search(len(r.ranges), func(i int) bool { return r.ranges[i].To >= gen })
	switch {
	case i < len(r.ranges) && r.ranges[i].Covers(gen):
		return
	case i < len(r.ranges) && r.ranges[i].To == gen:
		r.ranges[i].To++
		if i+1 < len(r.ranges) && r.ranges[i+1].From == r.ranges[i].To {
			r.ranges[i].To = r.ranges[i+1].To
			r.ranges = slices.Delete(r.ranges, i+1, i+2)
		}
	case i < len(r.ranges) && r.ranges[i].From == gen+1:
		r.ranges[i].From = gen
	default:
		r.ranges = slices.Insert(r.ranges, i, AckRange{From: gen, To: gen + 1})
	}
	if len(r.ranges) > MaxAckRanges {
		r.ranges = slices.Clone(r.ranges[len(r.ranges)-MaxAckRanges:])
	}
}

// Exhausted reports whether the chain has no generations left to receive.
func (r *Receiver) Exhausted() bool {
	return r.derived >= r.limit && len(r.pending) == 0
}

// Export exports the receiver state for persistence.
func (r *Receiver) Export() ReceiverState {
	st := ReceiverState{
		NextKey:  r.next,
		Derived:  r.derived,
		Top:      r.top,
		KeyIndex: r.keyIndex,
		Limit:    r.limit,
		Window:   r.window,
		MaxSkip:  r.maxSkip,
		Acked:    r.acked,
		Ranges:   slices.Clone(r.ranges),
	}
	for _, g := range r.pendingGenerations() {
		st.Pending = append(st.Pending, PendingKey{Generation: g, ChainKey: r.pending[g].chainKey})
	}
	return st
}

// Wipe destroys all key material held by the receiver.
func (r *Receiver) Wipe() {
	for g := range r.pending {
		r.drop(g)
	}
	crypto.Wipe(r.next[:])
	r.derived = r.limit
}
