package session

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheusHen/parley/parley/announcement"
	"github.com/TheusHen/parley/parley/crypto"
	"github.com/TheusHen/parley/parley/crypto/ratchet"
	"github.com/TheusHen/parley/parley/identity"
	"github.com/TheusHen/parley/parley/message"
	"github.com/TheusHen/parley/parley/seeker"
)

var (
	ErrNotInitialized     = errors.New("session: manager not initialized")
	ErrSessionNotActive   = errors.New("session: session not active")
	ErrAnnouncementFailed = errors.New("session: announcement generation failed")
	ErrEncryptionFailed   = errors.New("session: encryption failed")
	ErrSelfSession        = errors.New("session: cannot open a session with ourselves")
)

// AnnouncementResult describes a peer announcement that was accepted.
type AnnouncementResult struct {
	PeerID     identity.UserID
	PublicKeys identity.PublicKeys
	UserData   []byte
	Timestamp  time.Time
	// Status is the session status after processing.
	Status Status
}

// SendOutput is what has to be posted to the message board.
type SendOutput struct {
	Seeker     seeker.Seeker
	Ciphertext []byte
	// Sequence is the position of the message in the session.
	Sequence uint64
}

// ReceiveOutput is a decrypted board message.
type ReceiveOutput struct {
	PeerID    identity.UserID
	Seeker    seeker.Seeker
	Message   message.Message
	Timestamp time.Time
	Sequence  uint64
	// AcknowledgedSeekers are seekers of our own messages the peer confirmed.
	AcknowledgedSeekers []seeker.Seeker
}

// PeerInfo is a read-only snapshot of one session.
type PeerInfo struct {
	ID           identity.UserID
	PublicKeys   identity.PublicKeys
	Status       Status
	Unacked      int
	LastSent     time.Time
	LastReceived time.Time
}

// Manager owns every peer session of one local identity.
type Manager struct {
	mu    sync.Mutex
	keys  identity.UserKeys
	id    identity.UserID
	cfg   Config
	log   zerolog.Logger
	peers map[identity.UserID]*peerSession
}

// NewManager creates an empty manager for keys.
func NewManager(keys identity.UserKeys, cfg Config, opts ...Option) (*Manager, error) {
	if !keys.Valid() {
		return nil, ErrNotInitialized
	}
	m := &Manager{
		keys:  keys,
		id:    keys.ID(),
		cfg:   cfg.withDefaults(),
		log:   zerolog.Nop(),
		peers: map[identity.UserID]*peerSession{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) ready() error {
	if m == nil || m.peers == nil || !m.keys.Valid() {
		return ErrNotInitialized
	}
	return nil
}

// ID returns the local user id.
func (m *Manager) ID() identity.UserID { return m.id }

// PublicKeys returns the local public keys.
func (m *Manager) PublicKeys() identity.PublicKeys { return m.keys.Public() }

// EstablishOutgoingSession creates a fresh sending chain for peer and returns the
// announcement to post on the bulletin. From PeerRequested the session becomes
// Active; from any other state it (re)starts at SelfRequested.
func (m *Manager) EstablishOutgoingSession(peer identity.PublicKeys, userData []byte) ([]byte, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := peer.ID()
	if id == m.id {
		return nil, ErrSelfSession
	}
	p, ok := m.peers[id]
	if !ok {
		p = newPeerSession(id)
	}
	keyIndex := p.keyIndex + 1

	a, err := announcement.New(m.keys, peer, keyIndex, userData, m.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnnouncementFailed, err)
	}
	data, err := announcement.Seal(a, peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnnouncementFailed, err)
	}
	ck, err := ratchet.InitialKey(a.Seed[:], m.id[:], id[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnnouncementFailed, err)
	}
	chain, err := ratchet.NewChain(ck[:], keyIndex, m.cfg.MaxGeneration)
	crypto.Wipe(ck[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnnouncementFailed, err)
	}

	prev := p.status
	m.peers[id] = p
	p.keys = peer
	p.keyIndex = keyIndex
	p.startOutgoing(chain)
	m.log.Debug().Str("peer", id.Short()).Stringer("from", prev).Stringer("to", p.status).Msg("outgoing session established")
	return data, nil
}

// FeedIncomingAnnouncement processes one bulletin entry. It returns (nil, nil)
// for announcements that are not for us or were already processed.
func (m *Manager) FeedIncomingAnnouncement(data []byte) (*AnnouncementResult, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := announcement.Open(m.keys, data)
	if err != nil {
		m.log.Warn().Err(err).Msg("rejected announcement")
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	id := a.Announcer.ID()
	if id == m.id {
		return nil, nil
	}
	p, ok := m.peers[id]
	if ok && !a.Timestamp.After(p.peerAnnouncedAt) {
		m.log.Debug().Str("peer", id.Short()).Msg("stale announcement ignored")
		return nil, nil
	}

	ck, err := ratchet.InitialKey(a.Seed[:], id[:], m.id[:])
	if err != nil {
		return nil, err
	}
	recv, err := ratchet.NewReceiver(ck[:], a.KeyIndex, m.cfg.MaxGeneration, m.cfg.ReadWindow, m.cfg.MaxSkipped)
	crypto.Wipe(ck[:])
	if err != nil {
		return nil, err
	}

	if !ok {
		p = newPeerSession(id)
		m.peers[id] = p
	}
	prev := p.status
	p.keys = a.Announcer
	p.peerAnnouncedAt = a.Timestamp
	p.lastReceived = m.cfg.Now()
	p.startIncoming(recv)
	m.log.Debug().Str("peer", id.Short()).Stringer("from", prev).Stringer("to", p.status).Msg("incoming announcement accepted")

	return &AnnouncementResult{
		PeerID:     id,
		PublicKeys: a.Announcer,
		UserData:   a.UserData,
		Timestamp:  a.Timestamp,
		Status:     p.status,
	}, nil
}

// MessageBoardReadKeys returns the seekers to poll for, across all peers, in a
// stable order. The set only changes when a message is consumed or a session
// changes state.
func (m *Manager) MessageBoardReadKeys() []seeker.Seeker {
	if m.ready() != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []seeker.Seeker
	for _, id := range m.sortedIDs() {
		out = append(out, m.peers[id].readSeekers()...)
	}
	return out
}

// FeedIncomingMessageBoardRead decrypts the ciphertext found under s. It returns
// (nil, nil) when s is not a pending seeker of any session or the ciphertext
// does not authenticate under it; the seeker stays pending in the latter case.
// A payload that authenticates but cannot be decoded kills the session.
func (m *Manager) FeedIncomingMessageBoardRead(s seeker.Seeker, ciphertext []byte) (*ReceiveOutput, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var p *peerSession
	for _, cand := range m.peers {
		if cand.recv != nil && cand.status != StatusKilled && cand.recv.Has(s) {
			p = cand
			break
		}
	}
	if p == nil {
		return nil, nil
	}

	gen, plain, err := p.recv.Open(s, ciphertext, s[:])
	if err != nil {
		m.log.Debug().Str("peer", p.id.Short()).Err(err).Msg("board read not decryptable")
		return nil, nil
	}
	env, err := decodeEnvelope(plain)
	if err != nil {
		m.killLocked(p, err)
		return nil, err
	}
	msg, err := message.Decode(env.Frame)
	if err != nil {
		m.killLocked(p, err)
		return nil, fmt.Errorf("session: peer %s: %w", p.id.Short(), err)
	}

	p.lastReceived = m.cfg.Now()
	p.ackPending = true
	acked := p.acknowledge(env.AckBelow, env.AckRanges)
	if p.checkSaturation() {
		m.log.Info().Str("peer", p.id.Short()).Msg("session saturated")
	}
	return &ReceiveOutput{
		PeerID:              p.id,
		Seeker:              s,
		Message:             msg,
		Timestamp:           env.Timestamp,
		Sequence:            gen,
		AcknowledgedSeekers: acked,
	}, nil
}

// SendMessage encrypts msg for peer. The session must be Active. Messages are
// sequenced in call order; any encryption failure kills the session so no later
// message can be encrypted out of order.
func (m *Manager) SendMessage(peer identity.UserID, msg message.Message) (*SendOutput, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[peer]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotActive, StatusUnknownPeer)
	}
	if p.status != StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotActive, p.status)
	}
	frame, err := message.Encode(msg)
	if err != nil {
		return nil, err
	}

	now := m.cfg.Now()
	below, ranges := p.recv.Ack()
	plain := envelope{Timestamp: now, AckBelow: below, AckRanges: ranges, Frame: frame}.encode()

	step, err := p.send.Next()
	if err != nil {
		m.killLocked(p, err)
		return nil, fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	ct, err := crypto.Seal(step.MessageKey[:], plain, step.Seeker[:])
	crypto.Wipe(step.MessageKey[:])
	if err != nil {
		m.killLocked(p, err)
		return nil, fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	p.sentLog[step.Generation] = step.Seeker
	p.lastSent = now
	p.ackPending = false
	if p.checkSaturation() {
		m.log.Info().Str("peer", p.id.Short()).Msg("session saturated")
	}
	return &SendOutput{Seeker: step.Seeker, Ciphertext: ct, Sequence: step.Generation}, nil
}

func (m *Manager) killLocked(p *peerSession, cause error) {
	m.log.Warn().Str("peer", p.id.Short()).Err(cause).Msg("session killed")
	p.kill()
}

// PeerSessionStatus returns StatusUnknownPeer for peers we never exchanged
// announcements with.
func (m *Manager) PeerSessionStatus(peer identity.UserID) Status {
	if m.ready() != nil {
		return StatusUnknownPeer
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peer]; ok {
		return p.status
	}
	return StatusUnknownPeer
}

// PeerDiscard drops the session secrets. Sessions we had requested or that were
// Active become Killed; a pending peer request is declined back to NoSession.
func (m *Manager) PeerDiscard(peer identity.UserID) error {
	if err := m.ready(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[peer]
	if !ok {
		return nil
	}
	switch p.status {
	case StatusPeerRequested, StatusNoSession:
		p.wipeSend()
		p.wipeRecv()
		p.status = StatusNoSession
	default:
		p.kill()
	}
	m.log.Debug().Str("peer", peer.Short()).Stringer("status", p.status).Msg("peer discarded")
	return nil
}

// PeerList returns every known peer ordered by id.
func (m *Manager) PeerList() []identity.UserID {
	if m.ready() != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedIDs()
}

// PeerPublicKeys returns the public keys last seen for peer.
func (m *Manager) PeerPublicKeys(peer identity.UserID) (identity.PublicKeys, bool) {
	if m.ready() != nil {
		return identity.PublicKeys{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peer]
	if !ok || p.keys.Sign == nil {
		return identity.PublicKeys{}, false
	}
	return p.keys, true
}

// Peers returns a snapshot of every session ordered by id.
func (m *Manager) Peers() []PeerInfo {
	if m.ready() != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.sortedIDs()
	out := make([]PeerInfo, 0, len(ids))
	for _, id := range ids {
		p := m.peers[id]
		out = append(out, PeerInfo{
			ID:           id,
			PublicKeys:   p.keys,
			Status:       p.status,
			Unacked:      len(p.sentLog),
			LastSent:     p.lastSent,
			LastReceived: p.lastReceived,
		})
	}
	return out
}

// Refresh returns the Active peers that should be sent a keep-alive: those we
// owe an acknowledgement and those idle for KeepAliveInterval. Sessions silent
// for longer than MaxInactivity are killed.
func (m *Manager) Refresh() []identity.UserID {
	if m.ready() != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	var out []identity.UserID
	for _, id := range m.sortedIDs() {
		p := m.peers[id]
		if p.status != StatusActive {
			continue
		}
		if m.cfg.MaxInactivity > 0 && now.Sub(p.lastReceived) > m.cfg.MaxInactivity {
			m.killLocked(p, errors.New("inactivity timeout"))
			continue
		}
		if p.ackPending || now.Sub(p.lastSent) >= m.cfg.KeepAliveInterval {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) sortedIDs() []identity.UserID {
	ids := make([]identity.UserID, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}
