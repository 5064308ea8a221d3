package session

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/TheusHen/parley/parley/crypto/ratchet"
)

const (
	envelopeVersion = 0x01
	// version + timestamp + ack below + range count
	envelopeHeader = 1 + 8 + 8 + 2
	ackRangeSize   = 8 + 8
)

var ErrMalformedEnvelope = errors.New("session: malformed message envelope")

// Every range a Receiver remembers fits the count field.
var _ [math.MaxUint16 - ratchet.MaxAckRanges]struct{}

// envelope is the authenticated plaintext of every board message.
//
//	[version:1][timestamp ms:8][ack below:8][range count:2][from:8 to:8 each][frame]
type envelope struct {
	Timestamp time.Time
	AckBelow  uint64
	AckRanges []ratchet.AckRange
	Frame     []byte
}

func (e envelope) encode() []byte {
	ranges := e.AckRanges
	b := make([]byte, 0, envelopeHeader+ackRangeSize*len(ranges)+len(e.Frame))
	b = append(b, envelopeVersion)
	b = binary.BigEndian.AppendUint64(b, uint64(e.Timestamp.UnixMilli()))
	b = binary.BigEndian.AppendUint64(b, e.AckBelow)
	b = binary.BigEndian.AppendUint16(b, uint16(len(ranges)))
	for _, r := range ranges {
		b = binary.BigEndian.AppendUint64(b, r.From)
		b = binary.BigEndian.AppendUint64(b, r.To)
	}
	return append(b, e.Frame...)
}

func decodeEnvelope(b []byte) (envelope, error) {
	if len(b) < envelopeHeader || b[0] != envelopeVersion {
		return envelope{}, ErrMalformedEnvelope
	}
	e := envelope{
		Timestamp: time.UnixMilli(int64(binary.BigEndian.Uint64(b[1:9]))),
		AckBelow:  binary.BigEndian.Uint64(b[9:17]),
	}
	n := int(binary.BigEndian.Uint16(b[17:19]))
	rest := b[envelopeHeader:]
	if len(rest) < ackRangeSize*n {
		return envelope{}, ErrMalformedEnvelope
	}
	for i := 0; i < n; i++ {
		r := ratchet.AckRange{
			From: binary.BigEndian.Uint64(rest[ackRangeSize*i:]),
			To:   binary.BigEndian.Uint64(rest[ackRangeSize*i+8:]),
		}
		if r.From >= r.To {
			return envelope{}, ErrMalformedEnvelope
		}
		e.AckRanges = append(e.AckRanges, r)
	}
	e.Frame = rest[ackRangeSize*n:]
	return e, nil
}
