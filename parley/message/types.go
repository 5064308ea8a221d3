package message

import "github.com/TheusHen/parley/parley/seeker"

// Type is the first byte of every frame.
type Type uint8

const (
	TypeRegular   Type = 0x00
	TypeReply     Type = 0x01
	TypeForward   Type = 0x02
	TypeKeepAlive Type = 0x03
)

func (t Type) String() string {
	switch t {
	case TypeRegular:
		return "REGULAR"
	case TypeReply:
		return "REPLY"
	case TypeForward:
		return "FORWARD"
	case TypeKeepAlive:
		return "KEEP_ALIVE"
	default:
		return "UNKNOWN"
	}
}

// Reference points at an earlier message. Content is a copy of the original text
// so the frame stays readable when the original cannot be found locally.
type Reference struct {
	Content string
	Seeker  seeker.Seeker
}

// Message is the plaintext unit exchanged over an active session.
// For TypeForward, Content is the optional note added by the forwarder and
// Ref.Content the forwarded text.
type Message struct {
	Type    Type
	Content string
	Ref     *Reference
}

func Regular(content string) Message {
	return Message{Type: TypeRegular, Content: content}
}

func Reply(original string, originalSeeker seeker.Seeker, content string) Message {
	return Message{Type: TypeReply, Content: content, Ref: &Reference{Content: original, Seeker: originalSeeker}}
}

func Forward(forwarded string, originalSeeker seeker.Seeker, note string) Message {
	return Message{Type: TypeForward, Content: note, Ref: &Reference{Content: forwarded, Seeker: originalSeeker}}
}

func KeepAlive() Message {
	return Message{Type: TypeKeepAlive}
}

// Visible reports whether the message should be shown to the user.
func (m Message) Visible() bool { return m.Type != TypeKeepAlive }
