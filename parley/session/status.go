package session

// Status is the state of the session with one peer.
type Status uint8

const (
	StatusNoSession Status = iota
	StatusSelfRequested
	StatusPeerRequested
	StatusActive
	StatusSaturated
	StatusKilled
	StatusUnknownPeer
)

func (s Status) String() string {
	switch s {
	case StatusNoSession:
		return "NO_SESSION"
	case StatusSelfRequested:
		return "SELF_REQUESTED"
	case StatusPeerRequested:
		return "PEER_REQUESTED"
	case StatusActive:
		return "ACTIVE"
	case StatusSaturated:
		return "SATURATED"
	case StatusKilled:
		return "KILLED"
	case StatusUnknownPeer:
		return "UNKNOWN_PEER"
	default:
		return "UNKNOWN"
	}
}

// Broken reports whether the session needs a fresh announcement exchange.
func (s Status) Broken() bool { return s == StatusKilled || s == StatusSaturated }
