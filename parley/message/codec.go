// Package message implements the binary frame codec for session messages.
//
// Layouts (integers are 4-byte little endian):
//
//	KeepAlive: [0x03]
//	Regular:   [0x00][content]
//	Reply:     [0x01][original_len:4][original][seeker:34][content]
//	Forward:   [0x02][forward_len:4][forward][seeker:34][content]
package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/TheusHen/parley/parley/seeker"
)

const (
	// MaxContentSize limits each text field of a frame.
	MaxContentSize = 1 << 20 // 1 MiB

	lenSize = 4
)

var (
	ErrEmptyFrame             = errors.New("message: empty frame")
	ErrUnknownMessageType     = errors.New("message: unknown message type")
	ErrTruncatedMessage       = errors.New("message: truncated message")
	ErrInvalidSeekerStructure = seeker.ErrInvalidStructure
	ErrEmptyContent           = errors.New("message: empty content")
	ErrContentTooLarge        = errors.New("message: content too large")
	ErrInvalidUTF8            = errors.New("message: content is not valid UTF-8")
	ErrMissingReference       = errors.New("message: reply or forward without reference")
)

func checkText(s string) error {
	if len(s) > MaxContentSize {
		return fmt.Errorf("%w: %d bytes", ErrContentTooLarge, len(s))
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	return nil
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	switch m.Type {
	case TypeKeepAlive:
		return []byte{byte(TypeKeepAlive)}, nil
	case TypeRegular:
		if m.Content == "" {
			return nil, ErrEmptyContent
		}
		if err := checkText(m.Content); err != nil {
			return nil, err
		}
		out := make([]byte, 0, 1+len(m.Content))
		out = append(out, byte(TypeRegular))
		return append(out, m.Content...), nil
	case TypeReply, TypeForward:
		if m.Ref == nil {
			return nil, ErrMissingReference
		}
		if m.Content == "" {
			return nil, ErrEmptyContent
		}
		if m.Type == TypeForward && m.Ref.Content == "" {
			return nil, ErrEmptyContent
		}
		if !m.Ref.Seeker.Valid() {
			return nil, ErrInvalidSeekerStructure
		}
		if err := checkText(m.Content); err != nil {
			return nil, err
		}
		if err := checkText(m.Ref.Content); err != nil {
			return nil, err
		}
		out := make([]byte, 1+lenSize, 1+lenSize+len(m.Ref.Content)+seeker.Size+len(m.Content))
		out[0] = byte(m.Type)
		binary.LittleEndian.PutUint32(out[1:], uint32(len(m.Ref.Content)))
		out = append(out, m.Ref.Content...)
		out = append(out, m.Ref.Seeker[:]...)
		return append(out, m.Content...), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, byte(m.Type))
	}
}

// Decode parses a frame produced by Encode.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, ErrEmptyFrame
	}
	t := Type(b[0])
	body := b[1:]
	switch t {
	case TypeKeepAlive:
		return KeepAlive(), nil
	case TypeRegular:
		if !utf8.Valid(body) {
			return Message{}, ErrInvalidUTF8
		}
		return Message{Type: TypeRegular, Content: string(body)}, nil
	case TypeReply, TypeForward:
		if len(body) < lenSize {
			return Message{}, ErrTruncatedMessage
		}
		refLen := binary.LittleEndian.Uint32(body)
		body = body[lenSize:]
		if uint64(len(body)) < uint64(refLen) {
			return Message{}, ErrTruncatedMessage
		}
		ref := body[:refLen]
		body = body[refLen:]
		if len(body) < seeker.Size {
			return Message{}, ErrTruncatedMessage
		}
		s, err := seeker.Parse(body[:seeker.Size])
		if err != nil {
			return Message{}, ErrInvalidSeekerStructure
		}
		content := body[seeker.Size:]
		if !utf8.Valid(ref) || !utf8.Valid(content) {
			return Message{}, ErrInvalidUTF8
		}
		return Message{
			Type:    t,
			Content: string(content),
			Ref:     &Reference{Content: string(ref), Seeker: s},
		}, nil
	default:
		return Message{}, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, b[0])
	}
}
