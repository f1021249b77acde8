// Package memory implements the in-memory neuromorphic graph: concepts
// connected by weighted synaptic edges split across a short-term and a
// long-term zone, together with the plasticity, consolidation, recall and
// forgetting algorithms that operate on it.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// ConceptID is the stable 128-bit identity of a concept node.
//
// IDs are either random (NewConceptID) or derived deterministically from a
// string seed (ConceptIDFromString), which yields the same ID across runs.
type ConceptID uuid.UUID

// NewConceptID returns a fresh random concept identifier.
func NewConceptID() ConceptID {
	return ConceptID(uuid.New())
}

// ConceptIDFromString derives a deterministic concept identifier from a
// string seed. The same seed always maps to the same ID.
func ConceptIDFromString(s string) ConceptID {
	return ConceptID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(s)))
}

// ParseConceptID parses the canonical string form of a concept identifier.
func ParseConceptID(s string) (ConceptID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ConceptID{}, NewMemoryError("ParseConceptID", err)
	}
	return ConceptID(id), nil
}

// String returns the canonical textual form of the identifier.
func (id ConceptID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the identifier is the zero value.
func (id ConceptID) IsZero() bool {
	return id == ConceptID{}
}

// Reserved synaptic weight constants.
const (
	// WeightMin is the lower bound of a synaptic weight.
	WeightMin = 0.0

	// WeightMax is the upper bound of a synaptic weight.
	WeightMax = 1.0

	// WeightInitial is the weight of a freshly created edge.
	WeightInitial = 0.1

	// WeightThreshold is the active threshold: weights below it are
	// treated as zero for activity decisions and the edge is pruneable.
	WeightThreshold = 0.01
)

// SynapticWeight is a connection strength clamped to [0.0, 1.0].
type SynapticWeight float64

// NewSynapticWeight constructs a weight, clamping the input into [0, 1].
func NewSynapticWeight(w float64) SynapticWeight {
	if w < WeightMin {
		return WeightMin
	}
	if w > WeightMax {
		return WeightMax
	}
	return SynapticWeight(w)
}

// InitialWeight returns the weight assigned to new edges.
func InitialWeight() SynapticWeight {
	return WeightInitial
}

// Strengthen applies one long-term potentiation step.
//
// The update is asymptotic: w ← w + rate·(1 − w). It approaches 1.0 but
// cannot exceed it.
func (w SynapticWeight) Strengthen(learningRate float64) SynapticWeight {
	return NewSynapticWeight(float64(w) + learningRate*(WeightMax-float64(w)))
}

// Weaken applies one long-term depression step: w ← w·(1 − rate). Weights
// falling below the active threshold snap to exactly zero.
func (w SynapticWeight) Weaken(decayRate float64) SynapticWeight {
	nw := float64(w) * (1.0 - decayRate)
	if nw < WeightThreshold {
		return 0.0
	}
	return NewSynapticWeight(nw)
}

// IsActive reports whether the weight is at or above the active threshold.
func (w SynapticWeight) IsActive() bool {
	return float64(w) >= WeightThreshold
}

// Value returns the weight as a plain float64.
func (w SynapticWeight) Value() float64 {
	return float64(w)
}

// Concept is a node in the memory graph: a stable identity plus a text
// payload and string metadata. Identity never changes once created.
type Concept struct {
	// ID is the unique identifier of the concept.
	ID ConceptID `msgpack:"id"`

	// Content is the text payload.
	Content string `msgpack:"content"`

	// Metadata contains additional string key/value attributes.
	Metadata map[string]string `msgpack:"metadata,omitempty"`

	// CreatedAt is when the concept was learned.
	CreatedAt time.Time `msgpack:"created_at"`

	// LastAccessed is when the concept was last accessed.
	LastAccessed time.Time `msgpack:"last_accessed"`

	// AccessCount is the number of accesses. Monotonically non-decreasing.
	AccessCount uint64 `msgpack:"access_count"`
}

// NewConcept creates a concept with a random identifier.
func NewConcept(content string) *Concept {
	return NewConceptWithID(NewConceptID(), content)
}

// NewConceptWithID creates a concept with the supplied identifier.
func NewConceptWithID(id ConceptID, content string) *Concept {
	now := time.Now().UTC()
	return &Concept{
		ID:           id,
		Content:      content,
		Metadata:     make(map[string]string),
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// accessed returns a copy of the concept with its access bookkeeping
// advanced. Concepts stored in the graph are immutable; updates replace
// the stored value.
func (c *Concept) accessed(now time.Time) *Concept {
	cc := *c
	cc.LastAccessed = now
	cc.AccessCount++
	return &cc
}

// Clone returns a deep copy of the concept.
func (c *Concept) Clone() *Concept {
	cc := *c
	if c.Metadata != nil {
		cc.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cc.Metadata[k] = v
		}
	}
	return &cc
}

// EdgeKey is the ordered (from, to) pair identifying a directed edge.
type EdgeKey struct {
	From ConceptID
	To   ConceptID
}

// SynapticEdge is a directed weighted connection between two concepts.
//
// The zone an edge lives in (short-term or long-term) is a property of the
// table holding it, not of the edge itself.
type SynapticEdge struct {
	// From is the source concept.
	From ConceptID `msgpack:"from"`

	// To is the target concept.
	To ConceptID `msgpack:"to"`

	// Weight is the synaptic strength in [0, 1].
	Weight SynapticWeight `msgpack:"weight"`

	// CreatedAt is when the edge was formed.
	CreatedAt time.Time `msgpack:"created_at"`

	// LastAccessed is when the edge was last activated.
	LastAccessed time.Time `msgpack:"last_accessed"`

	// ActivationCount is the number of activations. Monotonically
	// non-decreasing.
	ActivationCount uint64 `msgpack:"activation_count"`
}

// NewSynapticEdge creates a short-term candidate edge at the initial
// weight. Creation counts as the edge's first activation.
func NewSynapticEdge(from, to ConceptID) *SynapticEdge {
	now := time.Now().UTC()
	return &SynapticEdge{
		From:            from,
		To:              to,
		Weight:          InitialWeight(),
		CreatedAt:       now,
		LastAccessed:    now,
		ActivationCount: 1,
	}
}

// Key returns the edge's ordered-pair key.
func (e *SynapticEdge) Key() EdgeKey {
	return EdgeKey{From: e.From, To: e.To}
}

// activated returns a copy with one potentiation step applied and the
// activation bookkeeping advanced.
func (e *SynapticEdge) activated(learningRate float64, now time.Time) *SynapticEdge {
	ne := *e
	ne.Weight = ne.Weight.Strengthen(learningRate)
	ne.LastAccessed = now
	ne.ActivationCount++
	return &ne
}

// decayed returns a copy with one depression step applied.
func (e *SynapticEdge) decayed(decayRate float64) *SynapticEdge {
	ne := *e
	ne.Weight = ne.Weight.Weaken(decayRate)
	return &ne
}

// IsActive reports whether the edge weight is at or above the active
// threshold.
func (e *SynapticEdge) IsActive() bool {
	return e.Weight.IsActive()
}

// Clone returns a copy of the edge.
func (e *SynapticEdge) Clone() *SynapticEdge {
	ne := *e
	return &ne
}

// Zone identifies which edge table holds an edge.
type Zone string

const (
	// ZoneShortTerm is the table of recently formed edges.
	ZoneShortTerm Zone = "short_term"

	// ZoneLongTerm is the table of consolidated edges.
	ZoneLongTerm Zone = "long_term"
)

// Stats is a point-in-time snapshot of graph table sizes.
type Stats struct {
	// TotalConcepts is the number of concepts.
	TotalConcepts int `json:"total_concepts"`

	// ShortTermConnections is the number of short-term edges.
	ShortTermConnections int `json:"short_term_connections"`

	// LongTermConnections is the number of long-term edges.
	LongTermConnections int `json:"long_term_connections"`

	// WorkingMemorySize is the number of working-memory entries.
	WorkingMemorySize int `json:"working_memory_size"`

	// LastConsolidation is when consolidation last ran.
	LastConsolidation time.Time `json:"last_consolidation"`
}
