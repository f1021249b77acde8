package memory

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Graph is the core neuromorphic memory store.
//
// It holds four concurrent tables: concepts by ID, short-term edges and
// long-term edges by ordered pair, and a working-memory ledger recording
// each concept's most recent activation. All tables use per-bucket locking;
// there is no global lock, and iteration tolerates concurrent inserts and
// removals.
//
// Stored values are treated as immutable: point updates replace the stored
// concept or edge with an updated copy under the entry's bucket lock, so a
// read following a write on the same key observes that write.
type Graph struct {
	// concepts holds every concept by ID.
	concepts *xsync.MapOf[ConceptID, *Concept]

	// shortTerm holds recently formed edges (hippocampus equivalent).
	shortTerm *xsync.MapOf[EdgeKey, *SynapticEdge]

	// longTerm holds consolidated edges (cortex equivalent).
	longTerm *xsync.MapOf[EdgeKey, *SynapticEdge]

	// workingMemory maps concept IDs to their most recent activation.
	workingMemory *xsync.MapOf[ConceptID, time.Time]

	config MemoryConfig
	logger *zap.Logger

	// now is the clock; replaceable in tests.
	now func() time.Time

	mu                sync.RWMutex // guards lastConsolidation
	lastConsolidation time.Time
}

// GraphOption configures a Graph at construction time.
type GraphOption func(*Graph)

// WithLogger sets the logger used by the graph and its engines.
func WithLogger(logger *zap.Logger) GraphOption {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock replaces the wall clock. Intended for tests.
func WithClock(now func() time.Time) GraphOption {
	return func(g *Graph) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGraph creates an empty memory graph with the given configuration.
func NewGraph(config MemoryConfig, opts ...GraphOption) *Graph {
	g := &Graph{
		concepts:      xsync.NewMapOf[ConceptID, *Concept](),
		shortTerm:     xsync.NewMapOf[EdgeKey, *SynapticEdge](),
		longTerm:      xsync.NewMapOf[EdgeKey, *SynapticEdge](),
		workingMemory: xsync.NewMapOf[ConceptID, time.Time](),
		config:        config,
		logger:        zap.NewNop(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	g.lastConsolidation = g.now()
	return g
}

// NewGraphWithDefaults creates a graph using DefaultMemoryConfig.
func NewGraphWithDefaults(opts ...GraphOption) *Graph {
	return NewGraph(DefaultMemoryConfig(), opts...)
}

// Config returns the graph's configuration.
func (g *Graph) Config() MemoryConfig {
	return g.config
}

// Learn creates a concept from content and stores it. No association is
// created. Returns ErrInvalidArgument on empty content.
func (g *Graph) Learn(content string) (ConceptID, error) {
	if content == "" {
		return ConceptID{}, NewMemoryError("Learn", ErrInvalidArgument)
	}
	return g.AddConcept(NewConcept(content)), nil
}

// LearnWithID creates a concept under a caller-supplied stable identifier.
// Learning the same ID twice replaces the payload, which makes seeded
// learning idempotent.
func (g *Graph) LearnWithID(id ConceptID, content string) (ConceptID, error) {
	if content == "" {
		return ConceptID{}, NewMemoryError("LearnWithID", ErrInvalidArgument)
	}
	return g.AddConcept(NewConceptWithID(id, content)), nil
}

// AddConcept inserts or replaces a concept, preserving its identity and any
// existing edges. The concept is recorded as accessed and enters working
// memory.
func (g *Graph) AddConcept(concept *Concept) ConceptID {
	now := g.now()
	var stored *Concept
	g.concepts.Compute(concept.ID, func(old *Concept, loaded bool) (*Concept, bool) {
		base := concept
		if loaded && old.AccessCount > concept.AccessCount {
			cc := *concept
			cc.AccessCount = old.AccessCount
			base = &cc
		}
		stored = base.accessed(now)
		return stored, false
	})
	g.workingMemory.Store(stored.ID, now)
	g.logger.Debug("added concept", zap.String("id", stored.ID.String()))
	return stored.ID
}

// GetConcept returns a copy of the concept with the given ID.
func (g *Graph) GetConcept(id ConceptID) (*Concept, bool) {
	c, ok := g.concepts.Load(id)
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// HasConcept reports whether a concept exists.
func (g *Graph) HasConcept(id ConceptID) bool {
	_, ok := g.concepts.Load(id)
	return ok
}

// AllConceptIDs returns the IDs of every stored concept.
func (g *Graph) AllConceptIDs() []ConceptID {
	ids := make([]ConceptID, 0, g.concepts.Size())
	g.concepts.Range(func(id ConceptID, _ *Concept) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Associate creates or strengthens the directed connection from one concept
// to another.
//
// If the edge already exists in either zone it receives one potentiation
// step at the configured learning rate. Otherwise a fresh short-term edge is
// inserted at the initial weight. When the short-term table is at capacity,
// a forced consolidation runs first; if it cannot make room, Associate
// returns ErrCapacityExceeded.
func (g *Graph) Associate(fromID, toID ConceptID) error {
	if !g.HasConcept(fromID) || !g.HasConcept(toID) {
		return NewMemoryError("Associate", ErrNotFound)
	}

	now := g.now()
	key := EdgeKey{From: fromID, To: toID}

	if g.activateExisting(key, g.config.LearningRate, now) {
		g.touchWorkingMemory(fromID, toID, now)
		return nil
	}

	if g.shortTerm.Size() >= g.config.MaxShortTermConnections {
		g.logger.Debug("short-term table full, forcing consolidation",
			zap.Int("size", g.shortTerm.Size()))
		g.ForceConsolidation()
		if g.shortTerm.Size() >= g.config.MaxShortTermConnections {
			return NewMemoryError("Associate", ErrCapacityExceeded)
		}
	}

	edge := &SynapticEdge{
		From:            fromID,
		To:              toID,
		Weight:          InitialWeight(),
		CreatedAt:       now,
		LastAccessed:    now,
		ActivationCount: 1, // creation is the first activation
	}
	// LoadOrStore keeps a concurrent insert of the same key from clobbering
	// its activation; the loser strengthens instead.
	if _, loaded := g.shortTerm.LoadOrStore(key, edge); loaded {
		g.activateExisting(key, g.config.LearningRate, now)
	}

	g.touchWorkingMemory(fromID, toID, now)
	return nil
}

// AssociateBidirectional creates both directed connections between two
// concepts.
func (g *Graph) AssociateBidirectional(a, b ConceptID) error {
	if err := g.Associate(a, b); err != nil {
		return err
	}
	return g.Associate(b, a)
}

// activateExisting applies one potentiation step to an existing edge in
// either zone. Returns false if the key is in neither.
func (g *Graph) activateExisting(key EdgeKey, rate float64, now time.Time) bool {
	activated := false
	activate := func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
		if !loaded {
			return nil, true
		}
		activated = true
		return old.activated(rate, now), false
	}
	if g.shortTerm.Compute(key, activate); activated {
		return true
	}
	g.longTerm.Compute(key, activate)
	return activated
}

func (g *Graph) touchWorkingMemory(a, b ConceptID, now time.Time) {
	g.workingMemory.Store(a, now)
	g.workingMemory.Store(b, now)
}

// Access marks a concept as accessed: it advances the concept's access
// bookkeeping, refreshes its working-memory entry, and applies one
// potentiation step to every edge incident on it in either zone.
func (g *Graph) Access(id ConceptID) error {
	now := g.now()
	found := false
	g.concepts.Compute(id, func(old *Concept, loaded bool) (*Concept, bool) {
		if !loaded {
			return nil, true
		}
		found = true
		return old.accessed(now), false
	})
	if !found {
		return NewMemoryError("Access", ErrNotFound)
	}

	g.workingMemory.Store(id, now)
	g.strengthenIncident(id, now)
	return nil
}

// strengthenIncident potentiates every edge touching the given concept.
func (g *Graph) strengthenIncident(id ConceptID, now time.Time) {
	for _, zone := range []*xsync.MapOf[EdgeKey, *SynapticEdge]{g.shortTerm, g.longTerm} {
		keys := make([]EdgeKey, 0)
		zone.Range(func(key EdgeKey, _ *SynapticEdge) bool {
			if key.From == id || key.To == id {
				keys = append(keys, key)
			}
			return true
		})
		for _, key := range keys {
			zone.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
				if !loaded {
					return nil, true // removed mid-pass, skip
				}
				return old.activated(g.config.LearningRate, now), false
			})
		}
	}
}

// GetEdge looks up an edge by key in both zones. The returned Zone reports
// which table holds it.
func (g *Graph) GetEdge(from, to ConceptID) (*SynapticEdge, Zone, bool) {
	key := EdgeKey{From: from, To: to}
	if e, ok := g.shortTerm.Load(key); ok {
		return e.Clone(), ZoneShortTerm, true
	}
	if e, ok := g.longTerm.Load(key); ok {
		return e.Clone(), ZoneLongTerm, true
	}
	return nil, "", false
}

// RemoveAssociation deletes the directed edge between two concepts from
// whichever zone holds it.
func (g *Graph) RemoveAssociation(from, to ConceptID) error {
	key := EdgeKey{From: from, To: to}
	if _, ok := g.shortTerm.LoadAndDelete(key); ok {
		return nil
	}
	if _, ok := g.longTerm.LoadAndDelete(key); ok {
		return nil
	}
	return NewMemoryError("RemoveAssociation", ErrNotFound)
}

// RemoveConcept deletes a concept, every incident edge in both zones, and
// its working-memory entry. Returns false if the concept did not exist.
func (g *Graph) RemoveConcept(id ConceptID) bool {
	if _, ok := g.concepts.LoadAndDelete(id); !ok {
		return false
	}
	g.workingMemory.Delete(id)
	g.removeIncidentEdges(id)
	return true
}

// removeIncidentEdges deletes every edge touching the concept.
func (g *Graph) removeIncidentEdges(id ConceptID) {
	for _, zone := range []*xsync.MapOf[EdgeKey, *SynapticEdge]{g.shortTerm, g.longTerm} {
		keys := make([]EdgeKey, 0)
		zone.Range(func(key EdgeKey, _ *SynapticEdge) bool {
			if key.From == id || key.To == id {
				keys = append(keys, key)
			}
			return true
		})
		for _, key := range keys {
			zone.Delete(key)
		}
	}
}

// IncidentEdges returns copies of every edge touching the concept, with the
// zone each was found in.
func (g *Graph) IncidentEdges(id ConceptID) []ZonedEdge {
	var out []ZonedEdge
	g.shortTerm.Range(func(key EdgeKey, e *SynapticEdge) bool {
		if key.From == id || key.To == id {
			out = append(out, ZonedEdge{Edge: e.Clone(), Zone: ZoneShortTerm})
		}
		return true
	})
	g.longTerm.Range(func(key EdgeKey, e *SynapticEdge) bool {
		if key.From == id || key.To == id {
			out = append(out, ZonedEdge{Edge: e.Clone(), Zone: ZoneLongTerm})
		}
		return true
	})
	return out
}

// ZonedEdge pairs an edge with the zone that holds it.
type ZonedEdge struct {
	Edge *SynapticEdge
	Zone Zone
}

// RangeConcepts iterates over concept copies. Returning false stops the
// iteration.
func (g *Graph) RangeConcepts(fn func(*Concept) bool) {
	g.concepts.Range(func(_ ConceptID, c *Concept) bool {
		return fn(c.Clone())
	})
}

// RangeEdges iterates over edge copies in the given zone.
func (g *Graph) RangeEdges(zone Zone, fn func(*SynapticEdge) bool) {
	g.zoneTable(zone).Range(func(_ EdgeKey, e *SynapticEdge) bool {
		return fn(e.Clone())
	})
}

func (g *Graph) zoneTable(zone Zone) *xsync.MapOf[EdgeKey, *SynapticEdge] {
	if zone == ZoneLongTerm {
		return g.longTerm
	}
	return g.shortTerm
}

// WorkingMemorySnapshot returns a copy of the working-memory ledger.
func (g *Graph) WorkingMemorySnapshot() map[ConceptID]time.Time {
	out := make(map[ConceptID]time.Time, g.workingMemory.Size())
	g.workingMemory.Range(func(id ConceptID, t time.Time) bool {
		out[id] = t
		return true
	})
	return out
}

// Stats returns a snapshot of table sizes and the last consolidation time.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	last := g.lastConsolidation
	g.mu.RUnlock()
	return Stats{
		TotalConcepts:        g.concepts.Size(),
		ShortTermConnections: g.shortTerm.Size(),
		LongTermConnections:  g.longTerm.Size(),
		WorkingMemorySize:    g.workingMemory.Size(),
		LastConsolidation:    last,
	}
}

// ShouldConsolidate reports whether a consolidation pass is due: either the
// consolidation interval has elapsed or the short-term table is over its
// cap.
func (g *Graph) ShouldConsolidate() bool {
	g.mu.RLock()
	last := g.lastConsolidation
	g.mu.RUnlock()
	if g.now().Sub(last) >= g.config.ConsolidationInterval() {
		return true
	}
	return g.shortTerm.Size() > g.config.MaxShortTermConnections
}

// LastConsolidation returns when consolidation last ran.
func (g *Graph) LastConsolidation() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastConsolidation
}

// setLastConsolidation records a completed consolidation pass.
func (g *Graph) setLastConsolidation(t time.Time) {
	g.mu.Lock()
	g.lastConsolidation = t
	g.mu.Unlock()
}

// RestoreConcept loads a concept without touching access bookkeeping. Used
// when rebuilding the graph from storage.
func (g *Graph) RestoreConcept(c *Concept) {
	g.concepts.Store(c.ID, c.Clone())
}

// RestoreEdge loads an edge into the given zone without touching activation
// bookkeeping. Used when rebuilding the graph from storage.
func (g *Graph) RestoreEdge(e *SynapticEdge, zone Zone) {
	g.zoneTable(zone).Store(e.Key(), e.Clone())
}

// RestoreLastConsolidation reinstates a persisted consolidation timestamp.
func (g *Graph) RestoreLastConsolidation(t time.Time) {
	g.setLastConsolidation(t)
}

// SetEdgeWeight overrides an edge's weight in whichever zone holds it.
// Returns ErrInvalidArgument if w lies outside [0, 1] and ErrNotFound if
// the key is in neither zone.
func (g *Graph) SetEdgeWeight(from, to ConceptID, w float64) error {
	if w < WeightMin || w > WeightMax {
		return NewMemoryError("SetEdgeWeight", ErrInvalidArgument)
	}
	key := EdgeKey{From: from, To: to}
	set := false
	apply := func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
		if !loaded {
			return nil, true
		}
		set = true
		ne := *old
		ne.Weight = NewSynapticWeight(w)
		return &ne, false
	}
	if g.shortTerm.Compute(key, apply); set {
		return nil
	}
	if g.longTerm.Compute(key, apply); set {
		return nil
	}
	return NewMemoryError("SetEdgeWeight", ErrNotFound)
}

// Clear empties all four tables.
func (g *Graph) Clear() {
	g.concepts.Clear()
	g.shortTerm.Clear()
	g.longTerm.Clear()
	g.workingMemory.Clear()
}
