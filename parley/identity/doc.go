// Package identity defines long-term user keys and the UserID derived from them.
package identity
