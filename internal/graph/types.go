package graph

// Node represents an infrastructure entity in the knowledge graph.
// IDs carry a type prefix and are stable across re-ingestion,
// e.g. "service:order-service" or "database:payments-db".
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Edge represents a directed relationship between two nodes.
// Multiple edges of different types (or different IDs) may connect
// the same ordered pair; each is a distinct entity.
type Edge struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Common node types emitted by the bundled connectors. The set is open:
// connectors may introduce new types without touching this package.
const (
	TypeService  = "service"
	TypeDatabase = "database"
	TypeCache    = "cache"
	TypeQueue    = "queue"
	TypeTeam     = "team"
)

// Common edge types. EdgeOwns connects teams to the assets they own;
// the rest express runtime dependency.
const (
	EdgeDependsOn  = "depends_on"
	EdgeConnectsTo = "connects_to"
	EdgeUses       = "uses"
	EdgeCalls      = "calls"
	EdgeReadsFrom  = "reads_from"
	EdgeWritesTo   = "writes_to"
	EdgeOwns       = "owns"
)

// Direction selects which edges a neighbor lookup follows.
type Direction int

const (
	// Outgoing follows edges where the node is the source.
	Outgoing Direction = iota
	// Incoming follows edges where the node is the target.
	Incoming
	// Both follows edges in either orientation.
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Both:
		return "both"
	}
	return "unknown"
}

// Neighbor pairs an edge with the node on its far side.
type Neighbor struct {
	Edge Edge `json:"edge"`
	Node Node `json:"node"`
}

// Filter narrows ListNodes results. Zero values match everything.
type Filter struct {
	Type         string
	NameContains string
	Limit        int
}

// MergeProperties implements the upsert merge contract: keys present in
// incoming overwrite, new keys are added, keys absent from incoming are
// preserved. Neither input map is mutated.
func MergeProperties(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}
