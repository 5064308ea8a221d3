package session

import (
	"slices"
	"time"

	"github.com/TheusHen/parley/parley/crypto/ratchet"
	"github.com/TheusHen/parley/parley/identity"
	"github.com/TheusHen/parley/parley/seeker"
)

// peerSession is the state of the relationship with one peer. It is only
// touched with the Manager lock held.
type peerSession struct {
	id     identity.UserID
	keys   identity.PublicKeys
	status Status

	// keyIndex is the epoch of our current announcement; it is the last byte of
	// every seeker we send.
	keyIndex byte
	send     *ratchet.Chain
	recv     *ratchet.Receiver

	// peerAnnouncedAt is the timestamp of the newest peer announcement processed.
	peerAnnouncedAt time.Time
	// sentLog maps generations of our unacknowledged messages to their seekers.
	sentLog map[uint64]seeker.Seeker

	lastSent     time.Time
	lastReceived time.Time
	// ackPending is set when we received messages the peer has not seen an ack for.
	ackPending bool
}

func newPeerSession(id identity.UserID) *peerSession {
	return &peerSession{id: id, status: StatusNoSession, sentLog: map[uint64]seeker.Seeker{}}
}

func (p *peerSession) wipeSend() {
	if p.send != nil {
		p.send.Wipe()
		p.send = nil
	}
	p.sentLog = map[uint64]seeker.Seeker{}
}

func (p *peerSession) wipeRecv() {
	if p.recv != nil {
		p.recv.Wipe()
		p.recv = nil
	}
	p.ackPending = false
}

func (p *peerSession) kill() {
	p.wipeSend()
	p.wipeRecv()
	p.status = StatusKilled
}

// startOutgoing installs a fresh sending chain after we announced.
func (p *peerSession) startOutgoing(chain *ratchet.Chain) {
	p.wipeSend()
	p.send = chain
	if p.status == StatusPeerRequested && p.recv != nil {
		p.status = StatusActive
		return
	}
	// A fresh announcement from any other state restarts the exchange; the peer
	// will drop its sending chain when it processes ours.
	p.wipeRecv()
	p.status = StatusSelfRequested
}

// startIncoming installs the peer's sending chain after processing its announcement.
func (p *peerSession) startIncoming(recv *ratchet.Receiver) {
	p.wipeRecv()
	p.recv = recv
	if p.status == StatusSelfRequested && p.send != nil {
		p.status = StatusActive
		return
	}
	// The peer (re)started the exchange; our old sending chain, if any, belongs
	// to a generation the peer has dropped.
	p.wipeSend()
	p.status = StatusPeerRequested
}

// checkSaturation moves an Active session to Saturated once either chain ran out.
func (p *peerSession) checkSaturation() bool {
	if p.status != StatusActive {
		return false
	}
	if (p.send != nil && p.send.Exhausted()) || (p.recv != nil && p.recv.Exhausted()) {
		p.status = StatusSaturated
		return true
	}
	return false
}

// acknowledge resolves sentLog entries the peer reported as received and
// returns their seekers in send order.
func (p *peerSession) acknowledge(below uint64, ranges []ratchet.AckRange) []seeker.Seeker {
	var gens []uint64
	for g := range p.sentLog {
		if g < below || slices.ContainsFunc(ranges, func(r ratchet.AckRange) bool { return r.Covers(g) }) {
			gens = append(gens, g)
		}
	}
	if len(gens) == 0 {
		return nil
	}
	slices.Sort(gens)
	out := make([]seeker.Seeker, len(gens))
	for i, g := range gens {
		out[i] = p.sentLog[g]
		delete(p.sentLog, g)
	}
	return out
}

func (p *peerSession) readSeekers() []seeker.Seeker {
	if p.recv == nil || p.status == StatusKilled {
		return nil
	}
	return p.recv.Seekers()
}
