// Package crypto provides the cryptographic primitives parley sessions are built on.
//
//   - X25519 key agreement for announcements
//   - HKDF-SHA256 for seed and chain derivation
//   - ChaCha20-Poly1305 for single-use message keys
//   - XChaCha20-Poly1305 for long-lived keys (the persisted session blob)
package crypto
