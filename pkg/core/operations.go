package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/leafmind/leafmind-go/pkg/memory"
	"github.com/leafmind/leafmind-go/pkg/storage"
)

// LearnOption configures a Learn operation.
type LearnOption func(*LearnOptions)

// LearnOptions contains configuration options for Learn operations.
type LearnOptions struct {
	// Metadata is attached to the new concept.
	Metadata map[string]string

	// Tags are stored under the "tags" metadata key.
	Tags []string

	// Seed derives a deterministic concept ID, stable across runs.
	Seed string
}

// WithMetadata attaches metadata to the learned concept.
func WithMetadata(metadata map[string]string) LearnOption {
	return func(o *LearnOptions) { o.Metadata = metadata }
}

// WithTags attaches tags to the learned concept.
func WithTags(tags ...string) LearnOption {
	return func(o *LearnOptions) { o.Tags = tags }
}

// WithSeed derives the concept ID deterministically from a seed string,
// making Learn idempotent for that seed.
func WithSeed(seed string) LearnOption {
	return func(o *LearnOptions) { o.Seed = seed }
}

// Learn creates a concept from content and persists it asynchronously.
//
// Returns the stored concept. Empty content fails with ErrInvalidArgument.
func (pg *PersistentGraph) Learn(ctx context.Context, content string, opts ...LearnOption) (*memory.Concept, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if content == "" {
		return nil, memory.NewMemoryError("Learn", memory.ErrInvalidArgument)
	}

	var o LearnOptions
	for _, opt := range opts {
		opt(&o)
	}

	var fresh *memory.Concept
	if o.Seed != "" {
		fresh = memory.NewConceptWithID(memory.ConceptIDFromString(o.Seed), content)
	} else {
		fresh = memory.NewConcept(content)
	}
	for k, v := range o.Metadata {
		fresh.Metadata[k] = v
	}
	if len(o.Tags) > 0 {
		fresh.Metadata["tags"] = strings.Join(o.Tags, ",")
	}

	eventType := UpdateCreated
	if pg.graph.HasConcept(fresh.ID) {
		eventType = UpdateUpdated
	}
	id := pg.graph.AddConcept(fresh)
	pg.markConceptDirty(id)

	concept, _ := pg.graph.GetConcept(id)
	pg.bus.publish(ChangeEvent{
		Type:      eventType,
		ConceptID: id,
		Concept:   concept,
		Timestamp: time.Now().UTC(),
	})
	return concept, nil
}

// GetConcept returns a concept, optionally with its incident associations.
// A memory miss falls through to the store and repopulates memory.
func (pg *PersistentGraph) GetConcept(ctx context.Context, id memory.ConceptID, includeAssociations bool) (*memory.Concept, []memory.ZonedEdge, error) {
	concept, ok := pg.graph.GetConcept(id)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		loaded, err := pg.store.LoadConcept(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		pg.graph.RestoreConcept(loaded)
		concept = loaded
	}

	var edges []memory.ZonedEdge
	if includeAssociations {
		edges = pg.graph.IncidentEdges(id)
	}
	return concept, edges, nil
}

// ConceptPage is one page of a concept listing.
type ConceptPage struct {
	// Concepts holds the page contents.
	Concepts []*memory.Concept `json:"concepts"`

	// TotalCount is the number of concepts matching the filter.
	TotalCount int `json:"total_count"`

	// HasMore reports whether later pages exist.
	HasMore bool `json:"has_more"`
}

// ListConcepts returns one page of concepts ordered by ID. A non-empty
// filter keeps only concepts whose content contains it (case-insensitive).
// Pages are 1-based.
func (pg *PersistentGraph) ListConcepts(ctx context.Context, page, pageSize int, filter string) (*ConceptPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	needle := strings.ToLower(filter)
	var all []*memory.Concept
	pg.graph.RangeConcepts(func(c *memory.Concept) bool {
		if needle == "" || strings.Contains(strings.ToLower(c.Content), needle) {
			all = append(all, c)
		}
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID.String() < all[j].ID.String()
	})

	total := len(all)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &ConceptPage{
		Concepts:   all[start:end],
		TotalCount: total,
		HasMore:    end < total,
	}, nil
}

// Access marks a concept accessed, strengthening its connections, and
// returns the updated concept.
func (pg *PersistentGraph) Access(ctx context.Context, id memory.ConceptID) (*memory.Concept, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pg.graph.Access(id); err != nil {
		return nil, err
	}

	pg.markConceptDirty(id)
	pg.markEdgesOfDirty(id)

	concept, _ := pg.graph.GetConcept(id)
	pg.bus.publish(ChangeEvent{
		Type:      UpdateAccessed,
		ConceptID: id,
		Concept:   concept,
		Timestamp: time.Now().UTC(),
	})
	return concept, nil
}

// DeleteConcept removes a concept with its incident edges and
// working-memory entry.
func (pg *PersistentGraph) DeleteConcept(ctx context.Context, id memory.ConceptID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Capture incident pairs before removal so their store keys drain as
	// deletes.
	incident := pg.graph.IncidentEdges(id)
	if !pg.graph.RemoveConcept(id) {
		return memory.NewMemoryError("DeleteConcept", memory.ErrNotFound)
	}

	pg.markConceptDirty(id)
	for _, ze := range incident {
		pg.markEdgeDirty(ze.Edge.From, ze.Edge.To)
	}

	pg.bus.publish(ChangeEvent{
		Type:      UpdateRemoved,
		ConceptID: id,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// AssociateOption configures an Associate operation.
type AssociateOption func(*AssociateOptions)

// AssociateOptions contains configuration options for Associate operations.
type AssociateOptions struct {
	// Strength overrides the edge weight after association; zero leaves
	// the plasticity-driven weight untouched.
	Strength float64

	// Bidirectional also creates the reverse edge.
	Bidirectional bool
}

// WithStrength overrides the resulting edge weight (must lie in (0, 1]).
func WithStrength(strength float64) AssociateOption {
	return func(o *AssociateOptions) { o.Strength = strength }
}

// WithBidirectional also associates in the reverse direction.
func WithBidirectional() AssociateOption {
	return func(o *AssociateOptions) { o.Bidirectional = true }
}

// Associate creates or strengthens the connection between two concepts and
// returns the resulting edge.
func (pg *PersistentGraph) Associate(ctx context.Context, from, to memory.ConceptID, opts ...AssociateOption) (*memory.SynapticEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var o AssociateOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Strength < 0 || o.Strength > memory.WeightMax {
		return nil, memory.NewMemoryError("Associate", memory.ErrInvalidArgument)
	}

	if o.Bidirectional {
		if err := pg.graph.AssociateBidirectional(from, to); err != nil {
			return nil, err
		}
	} else if err := pg.graph.Associate(from, to); err != nil {
		return nil, err
	}

	if o.Strength > 0 {
		if err := pg.graph.SetEdgeWeight(from, to, o.Strength); err != nil {
			return nil, err
		}
		if o.Bidirectional {
			if err := pg.graph.SetEdgeWeight(to, from, o.Strength); err != nil {
				return nil, err
			}
		}
	}

	pg.markEdgeDirty(from, to)
	if o.Bidirectional {
		pg.markEdgeDirty(to, from)
	}
	// Working-memory entries were refreshed for both endpoints.
	pg.dirty.Store(dirtyKey{kind: dirtyWorking, a: from}, struct{}{})
	pg.dirty.Store(dirtyKey{kind: dirtyWorking, a: to}, struct{}{})

	edge, _, ok := pg.graph.GetEdge(from, to)
	if !ok {
		return nil, memory.NewMemoryError("Associate", memory.ErrNotFound)
	}
	pg.bus.publish(ChangeEvent{
		Type:      UpdateEdgeAdded,
		ConceptID: from,
		Edge:      edge,
		Timestamp: time.Now().UTC(),
	})
	return edge, nil
}

// RemoveAssociation deletes the directed edge between two concepts.
func (pg *PersistentGraph) RemoveAssociation(ctx context.Context, from, to memory.ConceptID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pg.graph.RemoveAssociation(from, to); err != nil {
		return err
	}
	pg.markEdgeDirty(from, to)

	pg.bus.publish(ChangeEvent{
		Type:      UpdateEdgeRemoved,
		ConceptID: from,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// RecallRequest selects a recall source: a concept ID for associative
// recall or a content query for similarity recall. At least one must be set;
// when both are, SourceID is used.
type RecallRequest struct {
	// SourceID selects associative recall from a concept.
	SourceID *memory.ConceptID

	// Query selects content-similarity recall.
	Query string

	// Options tune the operation; with none, DefaultRecallQuery applies.
	Options []memory.RecallOption
}

// RecallResponse is the outcome of a recall.
type RecallResponse struct {
	// Results are the recalled concepts, best first.
	Results []memory.RecallResult `json:"results"`

	// Source is the source concept for associative recall, nil otherwise.
	Source *memory.Concept `json:"source_concept,omitempty"`

	// TotalFound is the number of results returned, after truncation by
	// max results.
	TotalFound int `json:"total_found"`

	// QueryTime is how long the recall took.
	QueryTime time.Duration `json:"query_time"`
}

// Recall performs associative recall (from a source concept) or
// content-similarity recall (from a query string). Recall never mutates
// the graph.
func (pg *PersistentGraph) Recall(ctx context.Context, req RecallRequest) (*RecallResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.SourceID == nil && req.Query == "" {
		return nil, memory.NewMemoryError("Recall", memory.ErrInvalidArgument)
	}

	query := memory.ApplyRecallOptions(req.Options)
	start := time.Now()

	resp := &RecallResponse{}
	if req.SourceID != nil {
		source, ok := pg.graph.GetConcept(*req.SourceID)
		if !ok {
			return nil, memory.NewMemoryError("Recall", memory.ErrNotFound)
		}
		resp.Source = source
		results, err := pg.graph.Recall(*req.SourceID, query)
		if err != nil {
			return nil, err
		}
		resp.Results = results
	} else {
		resp.Results = pg.graph.RecallByContent(req.Query, query)
	}

	resp.TotalFound = len(resp.Results)
	resp.QueryTime = time.Since(start)
	return resp, nil
}

// SpreadingActivation runs multi-seed activation propagation.
func (pg *PersistentGraph) SpreadingActivation(ctx context.Context, seeds []memory.ConceptID, activationThreshold float64, maxIterations int) ([]memory.RecallResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, memory.NewMemoryError("SpreadingActivation", memory.ErrInvalidArgument)
	}
	return pg.graph.SpreadingActivation(seeds, activationThreshold, maxIterations), nil
}

// WatchConcept subscribes to one concept's change events.
func (pg *PersistentGraph) WatchConcept(id memory.ConceptID) *Subscription {
	return pg.bus.subscribe(id, false)
}

// WatchAll subscribes to every change event.
func (pg *PersistentGraph) WatchAll() *Subscription {
	return pg.bus.subscribe(memory.ConceptID{}, true)
}

// CombinedStats joins graph statistics with persistence statistics.
type CombinedStats struct {
	// Memory is the graph snapshot.
	Memory memory.Stats `json:"memory"`

	// ConsolidationRatio is long-term / (short-term + long-term) edges.
	ConsolidationRatio float64 `json:"consolidation_ratio"`

	// DirtyKeys is the number of keys awaiting persistence.
	DirtyKeys int `json:"dirty_keys"`

	// Healthy is false while the store is failing.
	Healthy bool `json:"healthy"`

	// Persistence is present when requested.
	Persistence *storage.PersistenceStats `json:"persistence,omitempty"`
}

// Stats returns combined statistics, including persistence figures when
// includePersistence is set.
func (pg *PersistentGraph) Stats(ctx context.Context, includePersistence bool) (*CombinedStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	memStats := pg.graph.Stats()
	stats := &CombinedStats{
		Memory:    memStats,
		DirtyKeys: pg.dirty.Size(),
		Healthy:   pg.Healthy(),
	}
	if total := memStats.ShortTermConnections + memStats.LongTermConnections; total > 0 {
		stats.ConsolidationRatio = float64(memStats.LongTermConnections) / float64(total)
	}
	if includePersistence {
		ps := pg.store.Stats(ctx)
		stats.Persistence = &ps
	}
	return stats, nil
}

// Consolidate runs a consolidation pass. Without force it is a no-op
// (returning zero stats) unless consolidation is due.
func (pg *PersistentGraph) Consolidate(ctx context.Context, force bool) (memory.ConsolidationStats, error) {
	if err := ctx.Err(); err != nil {
		return memory.ConsolidationStats{}, err
	}
	if !force && !pg.graph.ShouldConsolidate() {
		return memory.ConsolidationStats{}, nil
	}

	stats := pg.graph.ConsolidateMemory()
	// Promotion and pruning touch an unbounded set of edges; schedule a
	// full sync instead of tracking each key.
	pg.fullSync.Store(true)
	return stats, nil
}

// Forget runs a forgetting cycle with the given policy.
func (pg *PersistentGraph) Forget(ctx context.Context, cfg memory.ForgettingConfig) (memory.ForgettingStats, error) {
	if err := ctx.Err(); err != nil {
		return memory.ForgettingStats{}, err
	}
	stats := pg.graph.Forget(cfg)
	pg.fullSync.Store(true)
	return stats, nil
}

// SleepCycle runs the combined LTD + LTP + working-memory eviction pass.
func (pg *PersistentGraph) SleepCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pg.graph.SleepCycle()
	pg.fullSync.Store(true)
	return nil
}

// Reconsolidate makes the long-term edges of recently recalled concepts
// labile again, returning them to short-term storage.
func (pg *PersistentGraph) Reconsolidate(ctx context.Context, ids []memory.ConceptID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	moved := pg.graph.Reconsolidate(ids)
	if moved > 0 {
		pg.fullSync.Store(true)
	}
	return moved, nil
}
