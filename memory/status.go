package memory

// TierStatus reports which tiers came up.
type TierStatus struct {
	Crew    bool `json:"crew"`
	Session bool `json:"session"`
	Vector  bool `json:"vector"`
}

// Ready reports whether tier t is usable.
func (s TierStatus) Ready(t Tier) bool {
	switch t {
	case TierCrew:
		return s.Crew
	case TierSession:
		return s.Session
	case TierVector:
		return s.Vector
	default:
		return false
	}
}

// Any reports whether at least one tier is usable.
func (s TierStatus) Any() bool {
	return s.Crew || s.Session || s.Vector
}

// VectorStatus describes the vector collection.
type VectorStatus struct {
	CollectionName string `json:"collection_name"`
	DocumentCount  int    `json:"document_count"`
}

// Status is a point-in-time snapshot of the Coordinator.
// VectorDB is nil when there is no vector handle.
type Status struct {
	Initialized   bool                    `json:"initialized"`
	Strict        bool                    `json:"strict"`
	Tiers         TierStatus              `json:"tiers"`
	CrewMemory    map[string]CrewStats    `json:"crew_memory"`
	SessionMemory map[string]SessionStats `json:"session_memory"`
	VectorDB      *VectorStatus           `json:"vector_db,omitempty"`
}
