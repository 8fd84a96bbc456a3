package memory

import (
	"fmt"
	"strings"
)

// Tier selects the storage backend a memory operation targets.
type Tier int

const (
	// TierCrew is the durable per-crew JSON document.
	TierCrew Tier = iota + 1
	// TierSession is the volatile bounded per-crew buffer.
	TierSession
	// TierVector is the shared similarity-searchable collection.
	TierVector
)

// Tiers lists every valid tier in initialization order.
var Tiers = []Tier{TierVector, TierCrew, TierSession}

func (t Tier) String() string {
	switch t {
	case TierCrew:
		return "crew"
	case TierSession:
		return "session"
	case TierVector:
		return "vector"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierCrew, TierSession, TierVector:
		return true
	default:
		return false
	}
}

// ParseTier converts a tier name from an outer surface (CLI, websocket) to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crew":
		return TierCrew, nil
	case "session":
		return TierSession, nil
	case "vector":
		return TierVector, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}
