// Package transport defines the network boundary of a parley client: an
// append-only announcement bulletin and a key-value message board addressed by
// seekers.
//
// Implementations can be backed by memory, Redis, or a relay reached over HTTP
// or HTTP/3. None of them see plaintext.
package transport

import (
	"context"
	"errors"

	"github.com/TheusHen/parley/parley/seeker"
)

const (
	// MaxAnnouncementSize bounds one bulletin entry.
	MaxAnnouncementSize = 16 << 10
	// MaxMessageSize bounds one board ciphertext.
	MaxMessageSize = 2 << 20
	// MaxFetchAnnouncements caps a single FetchAnnouncements page.
	MaxFetchAnnouncements = 500
	// MaxFetchMessages caps the seekers in one FetchMessages call.
	MaxFetchMessages = 1024
)

var (
	ErrTooLarge       = errors.New("transport: payload too large")
	ErrTooManySeekers = errors.New("transport: too many seekers in one fetch")
)

// Announcement is one bulletin entry. Counters start at 1 and increase by one.
type Announcement struct {
	Counter uint64 `json:"counter"`
	Data    []byte `json:"data"`
}

// Message is one board slot.
type Message struct {
	Seeker     seeker.Seeker `json:"seeker"`
	Ciphertext []byte        `json:"ciphertext"`
}

// Transport is what the client needs from the network.
type Transport interface {
	// SendAnnouncement appends data to the bulletin and returns its counter.
	SendAnnouncement(ctx context.Context, data []byte) (uint64, error)
	// FetchAnnouncements returns up to limit entries with a counter above since.
	FetchAnnouncements(ctx context.Context, since uint64, limit int) ([]Announcement, error)
	// SendMessage stores a ciphertext under its seeker.
	SendMessage(ctx context.Context, msg Message) error
	// FetchMessages returns the slots that exist among seekers; absent ones are
	// omitted.
	FetchMessages(ctx context.Context, seekers []seeker.Seeker) ([]Message, error)
}

// ClampLimit normalizes a FetchAnnouncements page size.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxFetchAnnouncements {
		return MaxFetchAnnouncements
	}
	return limit
}

// CheckAnnouncement validates an outgoing bulletin entry.
func CheckAnnouncement(data []byte) error {
	if len(data) == 0 || len(data) > MaxAnnouncementSize {
		return ErrTooLarge
	}
	return nil
}

// CheckMessage validates an outgoing board message.
func CheckMessage(msg Message) error {
	if !msg.Seeker.Valid() {
		return seeker.ErrInvalidStructure
	}
	if len(msg.Ciphertext) == 0 || len(msg.Ciphertext) > MaxMessageSize {
		return ErrTooLarge
	}
	return nil
}
