// Package ratchet provides the symmetric key ratchet behind each session direction.
//
// Every step of a chain yields a single-use message key and the seeker that
// addresses the message on the board, then replaces the chain key so that
// compromise of the current key does not reveal past messages.
//
// A session uses two chains: a Chain for sending and a Receiver, seeded by the
// peer, that keeps a bounded window of upcoming seekers to poll for.
package ratchet
