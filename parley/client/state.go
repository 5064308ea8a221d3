package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/TheusHen/parley/parley/crypto"
	"github.com/TheusHen/parley/parley/identity"
	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/session"
)

var ErrCorruptState = errors.New("client: corrupt or undecryptable state")

var stateHeader = []byte{'P', 'R', 'L', 'C', 0x01}

// Saved as one record so the outbox never refers to ratchet state that was not
// persisted with it.
type savedState struct {
	Session []byte        `cbor:"1,keyasint"`
	Cursor  uint64        `cbor:"2,keyasint"`
	Pending [][]byte      `cbor:"3,keyasint,omitempty"`
	NextID  uint64        `cbor:"4,keyasint"`
	Queue   []savedItem   `cbor:"5,keyasint,omitempty"`
	Tracked []savedStatus `cbor:"6,keyasint,omitempty"`
}

type savedItem struct {
	ID         uint64 `cbor:"1,keyasint"`
	Peer       []byte `cbor:"2,keyasint"`
	Frame      []byte `cbor:"3,keyasint"`
	KeepAlive  bool   `cbor:"4,keyasint,omitempty"`
	Seeker     []byte `cbor:"5,keyasint,omitempty"`
	Ciphertext []byte `cbor:"6,keyasint,omitempty"`
	Sequence   uint64 `cbor:"7,keyasint,omitempty"`
}

type savedStatus struct {
	ID     uint64 `cbor:"1,keyasint"`
	Status uint8  `cbor:"2,keyasint"`
	Seeker []byte `cbor:"3,keyasint,omitempty"`
}

func (c *Client) saveLocked(ctx context.Context) error {
	sess, err := c.m.ToEncryptedBlob(c.key)
	if err != nil {
		return err
	}
	st := savedState{Session: sess, Cursor: c.cursor, Pending: c.pending, NextID: c.nextID}
	for _, peer := range c.queuedPeers() {
		for _, it := range c.queues[peer] {
			si := savedItem{ID: it.id, Peer: peer[:], Frame: it.frame, KeepAlive: it.keepAlive}
			if it.out != nil {
				si.Seeker = it.out.Seeker.Bytes()
				si.Ciphertext = it.out.Ciphertext
				si.Sequence = it.out.Sequence
			}
			st.Queue = append(st.Queue, si)
		}
	}
	sent := make(map[uint64]seeker.Seeker, len(c.bySeeker))
	for s, id := range c.bySeeker {
		sent[id] = s
	}
	for id, status := range c.status {
		ss := savedStatus{ID: id, Status: uint8(status)}
		if s, ok := sent[id]; ok {
			ss.Seeker = s.Bytes()
		}
		st.Tracked = append(st.Tracked, ss)
	}

	raw, err := cbor.Marshal(st)
	if err != nil {
		return fmt.Errorf("client: encode state: %w", err)
	}
	defer crypto.Wipe(raw)
	ct, err := crypto.SealX(c.key[:], raw, stateHeader)
	if err != nil {
		return err
	}
	blob := append(append([]byte(nil), stateHeader...), ct...)
	if err := c.st.Save(ctx, c.cfg.Name, blob); err != nil {
		return fmt.Errorf("client: save state: %w", err)
	}
	return nil
}

func (c *Client) restore(keys identity.UserKeys, blob []byte) error {
	if !bytes.HasPrefix(blob, stateHeader) {
		return ErrCorruptState
	}
	raw, err := crypto.OpenX(c.key[:], blob[len(stateHeader):], stateHeader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	defer crypto.Wipe(raw)
	var st savedState
	if err := cbor.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	m, err := session.FromEncryptedBlob(keys, st.Session, c.key, c.cfg.Session, c.sessionLogger())
	if err != nil {
		return err
	}

	c.m = m
	c.cursor = st.Cursor
	c.pending = st.Pending
	c.nextID = st.NextID
	for _, si := range st.Queue {
		if len(si.Peer) != len(identity.UserID{}) {
			return ErrCorruptState
		}
		var peer identity.UserID
		copy(peer[:], si.Peer)
		it := &item{id: si.ID, peer: peer, frame: si.Frame, keepAlive: si.KeepAlive}
		if si.Seeker != nil {
			s, err := seeker.Parse(si.Seeker)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptState, err)
			}
			it.out = &session.SendOutput{Seeker: s, Ciphertext: si.Ciphertext, Sequence: si.Sequence}
		}
		c.queues[peer] = append(c.queues[peer], it)
	}
	for _, ss := range st.Tracked {
		c.status[ss.ID] = DeliveryStatus(ss.Status)
		if ss.Seeker != nil {
			s, err := seeker.Parse(ss.Seeker)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptState, err)
			}
			c.bySeeker[s] = ss.ID
		}
	}
	return nil
}
