// Package session implements per-peer session state and the Manager facade that
// owns every session of one local identity.
//
// A session is opened by an exchange of announcements. Each side's announcement
// seeds that side's sending chain; once both have been processed the session is
// Active and messages flow as (seeker, ciphertext) pairs on the message board.
//
// The Manager is safe for concurrent use; all calls are serialized on a single
// mutex. It never performs I/O: callers drive the transport and persistence.
package session
