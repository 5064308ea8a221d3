package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/TheusHen/parley/parley/crypto"
	"github.com/TheusHen/parley/parley/crypto/ratchet"
	"github.com/TheusHen/parley/parley/identity"
	"github.com/TheusHen/parley/parley/seeker"
)

var (
	ErrCorruptBlob    = errors.New("session: corrupt or undecryptable blob")
	ErrBlobIdentity   = errors.New("session: blob belongs to another identity")
	ErrInvalidBlobKey = errors.New("session: invalid blob key")
)

const blobVersion = 0x01

var blobMagic = [4]byte{'P', 'R', 'L', 'Y'}

// BlobKey encrypts the persisted session state.
type BlobKey [crypto.KeySize]byte

// NewBlobKey returns a random key.
func NewBlobKey() (BlobKey, error) {
	k, err := crypto.RandomKey()
	return BlobKey(k), err
}

// Persisted layout. Integer keys keep the encoding compact and stable across
// field renames.
type blobState struct {
	Owner []byte     `cbor:"1,keyasint"`
	Peers []blobPeer `cbor:"2,keyasint"`
}

type blobPeer struct {
	ID              []byte                 `cbor:"1,keyasint"`
	Keys            []byte                 `cbor:"2,keyasint,omitempty"`
	Status          uint8                  `cbor:"3,keyasint"`
	KeyIndex        uint8                  `cbor:"4,keyasint"`
	Send            *ratchet.ChainState    `cbor:"5,keyasint,omitempty"`
	Recv            *ratchet.ReceiverState `cbor:"6,keyasint,omitempty"`
	PeerAnnouncedAt int64                  `cbor:"7,keyasint"`
	SentLog         []blobSent             `cbor:"8,keyasint,omitempty"`
	LastSent        int64                  `cbor:"9,keyasint"`
	LastReceived    int64                  `cbor:"10,keyasint"`
	AckPending      bool                   `cbor:"11,keyasint"`
}

type blobSent struct {
	Generation uint64 `cbor:"1,keyasint"`
	Seeker     []byte `cbor:"2,keyasint"`
}

// ToEncryptedBlob serializes every session, including ratchet secrets, under key.
//
// Format: "PRLY" || version (1) || nonce (24) || XChaCha20-Poly1305(lz4(cbor(state)))
func (m *Manager) ToEncryptedBlob(key BlobKey) ([]byte, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if key == (BlobKey{}) {
		return nil, ErrInvalidBlobKey
	}
	m.mu.Lock()
	st := blobState{Owner: m.id[:]}
	for _, id := range m.sortedIDs() {
		st.Peers = append(st.Peers, exportPeer(m.peers[id]))
	}
	m.mu.Unlock()

	raw, err := cbor.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("session: encode state: %w", err)
	}
	defer crypto.Wipe(raw)
	packed, err := compress(raw)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(packed)

	header := blobHeader()
	ct, err := crypto.SealX(key[:], packed, header)
	if err != nil {
		return nil, err
	}
	return append(header, ct...), nil
}

// FromEncryptedBlob restores a Manager saved with ToEncryptedBlob. The blob must
// have been written for the same identity.
func FromEncryptedBlob(keys identity.UserKeys, blob []byte, key BlobKey, cfg Config, opts ...Option) (*Manager, error) {
	m, err := NewManager(keys, cfg, opts...)
	if err != nil {
		return nil, err
	}
	header := blobHeader()
	if len(blob) < len(header) || !bytes.Equal(blob[:len(header)], header) {
		return nil, ErrCorruptBlob
	}
	packed, err := crypto.OpenX(key[:], blob[len(header):], header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
	}
	raw, err := decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
	}
	defer crypto.Wipe(raw)

	var st blobState
	if err := cbor.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
	}
	if !bytes.Equal(st.Owner, m.id[:]) {
		return nil, ErrBlobIdentity
	}
	for _, bp := range st.Peers {
		p, err := importPeer(bp)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptBlob, err)
		}
		m.peers[p.id] = p
	}
	m.log.Debug().Int("peers", len(m.peers)).Msg("sessions restored")
	return m, nil
}

func blobHeader() []byte {
	return append(blobMagic[:len(blobMagic):len(blobMagic)], blobVersion)
}

func exportPeer(p *peerSession) blobPeer {
	bp := blobPeer{
		ID:              append([]byte(nil), p.id[:]...),
		Status:          uint8(p.status),
		KeyIndex:        p.keyIndex,
		PeerAnnouncedAt: unixNano(p.peerAnnouncedAt),
		LastSent:        unixNano(p.lastSent),
		LastReceived:    unixNano(p.lastReceived),
		AckPending:      p.ackPending,
	}
	if p.keys.Sign != nil {
		bp.Keys = p.keys.Bytes()
	}
	if p.send != nil {
		cs := p.send.Export()
		bp.Send = &cs
	}
	if p.recv != nil {
		rs := p.recv.Export()
		bp.Recv = &rs
	}
	for g, s := range p.sentLog {
		bp.SentLog = append(bp.SentLog, blobSent{Generation: g, Seeker: s.Bytes()})
	}
	return bp
}

func importPeer(bp blobPeer) (*peerSession, error) {
	if len(bp.ID) != len(identity.UserID{}) {
		return nil, errors.New("bad peer id")
	}
	if bp.Status > uint8(StatusUnknownPeer) {
		return nil, fmt.Errorf("bad status %d", bp.Status)
	}
	var id identity.UserID
	copy(id[:], bp.ID)
	p := newPeerSession(id)
	p.status = Status(bp.Status)
	p.keyIndex = bp.KeyIndex
	p.peerAnnouncedAt = fromUnixNano(bp.PeerAnnouncedAt)
	p.lastSent = fromUnixNano(bp.LastSent)
	p.lastReceived = fromUnixNano(bp.LastReceived)
	p.ackPending = bp.AckPending
	if bp.Keys != nil {
		keys, err := identity.ParsePublicKeys(bp.Keys)
		if err != nil {
			return nil, err
		}
		if keys.ID() != id {
			return nil, errors.New("peer keys do not match id")
		}
		p.keys = keys
	}
	if bp.Send != nil {
		p.send = ratchet.RestoreChain(*bp.Send)
	}
	if bp.Recv != nil {
		p.recv = ratchet.RestoreReceiver(*bp.Recv)
	}
	for _, e := range bp.SentLog {
		s, err := seeker.Parse(e.Seeker)
		if err != nil {
			return nil, err
		}
		p.sentLog[e.Generation] = s
	}
	if p.status == StatusActive && (p.send == nil || p.recv == nil) {
		return nil, errors.New("active session without chains")
	}
	return p, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

var lz4Writers = sync.Pool{
	New: func() interface{} { return lz4.NewWriter(nil) },
}

var lz4Readers = sync.Pool{
	New: func() interface{} { return lz4.NewReader(nil) },
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4Writers.Get().(*lz4.Writer)
	defer lz4Writers.Put(w)
	w.Reset(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("session: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("session: compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := lz4Readers.Get().(*lz4.Reader)
	defer lz4Readers.Put(r)
	r.Reset(bytes.NewReader(data))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
