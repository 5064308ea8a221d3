// Package client drives a session.Manager against a transport and a blob
// store: it keeps the bulletin cursor, an ordered outbox per peer and the
// delivery status of every message, and persists all of it after each change.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/TheusHen/parley/parley/identity"
	"github.com/TheusHen/parley/parley/message"
	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/session"
	"github.com/TheusHen/parley/parley/store"
	"github.com/TheusHen/parley/parley/transport"
)

var (
	ErrUnknownPeer = errors.New("client: unknown peer")
	ErrTransport   = errors.New("client: transport failure")
)

// DeliveryStatus tracks one outgoing message.
type DeliveryStatus uint8

const (
	StatusUnknown DeliveryStatus = iota
	// StatusPending: queued, or encrypted but not yet accepted by the transport.
	StatusPending
	// StatusSent: stored on the board.
	StatusSent
	// StatusDelivered: acknowledged by the peer.
	StatusDelivered
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusSent:
		return "SENT"
	case StatusDelivered:
		return "DELIVERED"
	default:
		return "UNKNOWN"
	}
}

type item struct {
	id        uint64
	peer      identity.UserID
	frame     []byte
	keepAlive bool
	out       *session.SendOutput
}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client is safe for concurrent use.
type Client struct {
	mu    sync.Mutex
	group singleflight.Group

	m   *session.Manager
	tr  transport.Transport
	st  store.BlobStore
	key session.BlobKey
	cfg Config
	log zerolog.Logger

	sessionLog zerolog.Logger

	cursor   uint64
	pending  [][]byte
	nextID   uint64
	queues   map[identity.UserID][]*item
	status   map[uint64]DeliveryStatus
	bySeeker map[seeker.Seeker]uint64
}

// Open loads the client saved under cfg.Name, or starts an empty one.
func Open(ctx context.Context, keys identity.UserKeys, tr transport.Transport, st store.BlobStore, key session.BlobKey, cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		tr:       tr,
		st:       st,
		key:      key,
		log:      zerolog.Nop(),
		queues:   map[identity.UserID][]*item{},
		status:   map[uint64]DeliveryStatus{},
		bySeeker: map[seeker.Seeker]uint64{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg = cfg.withDefaults(keys)
	c.sessionLog = c.log.With().Str("user", keys.ID().Short()).Logger()
	c.log = c.log.With().Str("component", "client").Str("user", keys.ID().Short()).Logger()

	blob, err := st.Load(ctx, c.cfg.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if c.m, err = session.NewManager(keys, c.cfg.Session, c.sessionLogger()); err != nil {
			return nil, err
		}
		c.log.Info().Msg("new client state")
	case err != nil:
		return nil, err
	default:
		if err := c.restore(keys, blob); err != nil {
			return nil, err
		}
		c.log.Info().Uint64("cursor", c.cursor).Int("peers", len(c.m.PeerList())).Msg("client state loaded")
	}
	return c, nil
}

func (c *Client) sessionLogger() session.Option { return session.WithLogger(c.sessionLog) }

func (c *Client) ID() identity.UserID { return c.m.ID() }

func (c *Client) PublicKeys() identity.PublicKeys { return c.m.PublicKeys() }

// Sessions exposes the manager for read-only queries such as Peers.
func (c *Client) Sessions() *session.Manager { return c.m }

// Announce starts (or restarts) a session with peer and posts the announcement.
// The announcement stays queued for ResendAnnouncements if posting fails.
func (c *Client) Announce(ctx context.Context, peer identity.PublicKeys, userData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.m.EstablishOutgoingSession(peer, userData)
	if err != nil {
		return err
	}
	c.resetPeerLocked(peer.ID())
	c.pending = append(c.pending, data)
	if err := c.saveLocked(ctx); err != nil {
		return err
	}
	return errors.Join(c.resendLocked(ctx), c.flushLocked(ctx))
}

// Accept answers a pending request from a peer seen on the bulletin.
func (c *Client) Accept(ctx context.Context, peer identity.UserID, userData []byte) error {
	keys, ok := c.m.PeerPublicKeys(peer)
	if !ok {
		return ErrUnknownPeer
	}
	return c.Announce(ctx, keys, userData)
}

// ResendAnnouncements retries announcements the transport refused earlier.
func (c *Client) ResendAnnouncements(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resendLocked(ctx)
}

func (c *Client) resendLocked(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}
	var rest [][]byte
	var errs []error
	for _, data := range c.pending {
		n, err := c.tr.SendAnnouncement(ctx, data)
		if err != nil {
			rest = append(rest, data)
			errs = append(errs, err)
			continue
		}
		c.log.Debug().Uint64("counter", n).Msg("announcement posted")
	}
	changed := len(rest) != len(c.pending)
	c.pending = rest
	if changed {
		if err := c.saveLocked(ctx); err != nil {
			return err
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrTransport, errors.Join(errs...))
	}
	return nil
}

// SyncAnnouncements reads the bulletin from the saved cursor and feeds every
// entry to the manager. Concurrent callers share one bulletin read.
func (c *Client) SyncAnnouncements(ctx context.Context) ([]session.AnnouncementResult, error) {
	v, err, _ := c.group.Do("announcements", func() (interface{}, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.syncLocked(ctx)
	})
	res, _ := v.([]session.AnnouncementResult)
	return res, err
}

func (c *Client) syncLocked(ctx context.Context) ([]session.AnnouncementResult, error) {
	var out []session.AnnouncementResult
	start := c.cursor
	limit := transport.ClampLimit(c.cfg.AnnouncementPage)
	var ferr error
	for {
		page, err := c.tr.FetchAnnouncements(ctx, c.cursor, limit)
		if err != nil {
			ferr = fmt.Errorf("%w: %w", ErrTransport, err)
			break
		}
		for _, a := range page {
			res, err := c.m.FeedIncomingAnnouncement(a.Data)
			switch {
			case err != nil:
				c.log.Warn().Err(err).Uint64("counter", a.Counter).Msg("invalid announcement")
			case res != nil:
				c.resetPeerLocked(res.PeerID)
				out = append(out, *res)
			}
			if a.Counter > c.cursor {
				c.cursor = a.Counter
			}
		}
		if len(page) < limit {
			break
		}
	}
	if c.cursor == start {
		return out, ferr
	}
	if err := c.saveLocked(ctx); err != nil {
		return out, err
	}
	if len(out) > 0 {
		ferr = errors.Join(ferr, c.flushLocked(ctx))
	}
	return out, ferr
}

// Send queues msg for peer and flushes. The returned id tracks delivery; it is
// valid even when err reports a transport failure, the message then stays
// queued for the next Flush.
func (c *Client) Send(ctx context.Context, peer identity.UserID, msg message.Message) (uint64, error) {
	frame, err := message.Encode(msg)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.m.PeerSessionStatus(peer) == session.StatusUnknownPeer {
		return 0, ErrUnknownPeer
	}
	c.nextID++
	id := c.nextID
	c.queues[peer] = append(c.queues[peer], &item{id: id, peer: peer, frame: frame})
	c.status[id] = StatusPending
	if err := c.flushLocked(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// Flush encrypts whatever the session states allow and posts it.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

// flushLocked runs in two phases so that ratchet state is persisted before any
// ciphertext leaves: encrypt in queue order, save, then post. Within a peer
// encryption stops at the first message that cannot be encrypted; posting
// failures leave the ciphertext queued and move on.
func (c *Client) flushLocked(ctx context.Context) error {
	peers := c.queuedPeers()
	encrypted := false
	for _, peer := range peers {
		st := c.m.PeerSessionStatus(peer)
		if st != session.StatusActive && st != session.StatusSaturated {
			c.resetPeerLocked(peer)
		}
		for _, it := range c.queues[peer] {
			if it.out != nil {
				continue
			}
			if c.m.PeerSessionStatus(peer) != session.StatusActive {
				break
			}
			msg, err := message.Decode(it.frame)
			if err != nil {
				return err
			}
			out, err := c.m.SendMessage(peer, msg)
			if err != nil {
				c.log.Warn().Err(err).Str("peer", peer.Short()).Msg("encryption stopped")
				break
			}
			it.out = out
			encrypted = true
		}
	}
	if encrypted {
		if err := c.saveLocked(ctx); err != nil {
			return err
		}
	}

	var errs []error
	posted := false
	for _, peer := range peers {
		var rest []*item
		for _, it := range c.queues[peer] {
			if it.out == nil {
				rest = append(rest, it)
				continue
			}
			err := c.tr.SendMessage(ctx, transport.Message{Seeker: it.out.Seeker, Ciphertext: it.out.Ciphertext})
			if err != nil {
				errs = append(errs, err)
				rest = append(rest, it)
				continue
			}
			posted = true
			if !it.keepAlive {
				c.status[it.id] = StatusSent
				c.bySeeker[it.out.Seeker] = it.id
			}
		}
		if len(rest) == 0 {
			delete(c.queues, peer)
		} else {
			c.queues[peer] = rest
		}
	}
	if posted {
		if err := c.saveLocked(ctx); err != nil {
			return err
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrTransport, errors.Join(errs...))
	}
	return nil
}

// resetPeerLocked discards unposted ciphertext for peer: it belongs to a send
// chain the peer will no longer read. The plaintext stays queued, keep-alives
// are dropped.
func (c *Client) resetPeerLocked(peer identity.UserID) {
	q, ok := c.queues[peer]
	if !ok {
		return
	}
	var rest []*item
	for _, it := range q {
		if it.keepAlive {
			continue
		}
		it.out = nil
		rest = append(rest, it)
	}
	if len(rest) == 0 {
		delete(c.queues, peer)
		return
	}
	c.queues[peer] = rest
}

func (c *Client) queuedPeers() []identity.UserID {
	ids := make([]identity.UserID, 0, len(c.queues))
	for id := range c.queues {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// Poll reads the board until no session makes progress. Returned messages are
// ordered by peer then sequence; keep-alives are consumed silently.
func (c *Client) Poll(ctx context.Context) ([]session.ReceiveOutput, error) {
	v, err, _ := c.group.Do("poll", func() (interface{}, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.pollLocked(ctx)
	})
	res, _ := v.([]session.ReceiveOutput)
	return res, err
}

func (c *Client) pollLocked(ctx context.Context) ([]session.ReceiveOutput, error) {
	var out []session.ReceiveOutput
	var ferr error
	changed := false

rounds:
	for i := 0; i < c.cfg.MaxPollIterations; i++ {
		keys := c.m.MessageBoardReadKeys()
		if len(keys) == 0 {
			break
		}
		progress := false
		for start := 0; start < len(keys); start += transport.MaxFetchMessages {
			end := min(start+transport.MaxFetchMessages, len(keys))
			msgs, err := c.tr.FetchMessages(ctx, keys[start:end])
			if err != nil {
				ferr = fmt.Errorf("%w: %w", ErrTransport, err)
				break rounds
			}
			for _, msg := range msgs {
				res, err := c.m.FeedIncomingMessageBoardRead(msg.Seeker, msg.Ciphertext)
				if err != nil {
					c.log.Warn().Err(err).Str("seeker", msg.Seeker.String()).Msg("board message killed its session")
					changed, progress = true, true
					continue
				}
				if res == nil {
					continue
				}
				changed, progress = true, true
				c.markDelivered(res.AcknowledgedSeekers)
				if res.Message.Visible() {
					out = append(out, *res)
				}
			}
		}
		if !progress {
			break
		}
	}
	if changed {
		if err := c.saveLocked(ctx); err != nil {
			return out, err
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if d := bytes.Compare(out[i].PeerID[:], out[j].PeerID[:]); d != 0 {
			return d < 0
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, ferr
}

func (c *Client) markDelivered(acked []seeker.Seeker) {
	for _, s := range acked {
		id, ok := c.bySeeker[s]
		if !ok {
			continue
		}
		c.status[id] = StatusDelivered
		delete(c.bySeeker, s)
	}
}

// Refresh kills inactive sessions and queues a keep-alive for every peer that
// is owed an acknowledgement or has been idle, then flushes.
func (c *Client) Refresh(ctx context.Context) ([]identity.UserID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	peers := c.m.Refresh()
	for _, peer := range peers {
		if c.hasUnposted(peer) {
			continue
		}
		frame, err := message.Encode(message.KeepAlive())
		if err != nil {
			return nil, err
		}
		c.queues[peer] = append(c.queues[peer], &item{peer: peer, frame: frame, keepAlive: true})
	}
	if err := c.saveLocked(ctx); err != nil {
		return peers, err
	}
	return peers, c.flushLocked(ctx)
}

func (c *Client) hasUnposted(peer identity.UserID) bool {
	return len(c.queues[peer]) > 0
}

// Discard drops the session with peer. Queued plaintext is kept for a later
// session.
func (c *Client) Discard(ctx context.Context, peer identity.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.m.PeerDiscard(peer); err != nil {
		return err
	}
	c.resetPeerLocked(peer)
	return c.saveLocked(ctx)
}

// Status reports the delivery state of a message returned by Send.
func (c *Client) Status(id uint64) DeliveryStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status[id]
}

// Queued returns the number of messages not yet posted for peer.
func (c *Client) Queued(peer identity.UserID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.queues[peer] {
		if !it.keepAlive {
			n++
		}
	}
	return n
}
