package memory

import (
	"sort"

	"go.uber.org/zap"
)

// RecallResult is one recalled concept with its relevance and the
// associative path that reached it.
type RecallResult struct {
	// Concept is the recalled concept.
	Concept *Concept `json:"concept"`

	// Relevance is the score the result is ranked by.
	Relevance float64 `json:"relevance"`

	// AssociationPath is the chain of concept IDs from the source to this
	// concept, source included. Content recall and spreading activation
	// hold only the concept itself.
	AssociationPath []ConceptID `json:"association_path"`

	// PathLength is the number of edges traversed.
	PathLength int `json:"path_length"`

	// ConnectionStrength is the weight of the final edge on the path (or
	// the raw similarity for content recall, or the activation level for
	// spreading activation).
	ConnectionStrength float64 `json:"connection_strength"`
}

// RecallQuery configures a recall operation.
type RecallQuery struct {
	// MaxResults caps the result count; 0 uses the config default.
	MaxResults int `json:"max_results"`

	// MinRelevance discards results scoring below it.
	MinRelevance float64 `json:"min_relevance"`

	// MaxPathLength caps the breadth-first expansion depth.
	MaxPathLength int `json:"max_path_length"`

	// IncludeSemanticSimilarity folds content similarity into associative
	// relevance.
	IncludeSemanticSimilarity bool `json:"include_semantic_similarity"`

	// BoostRecentMemories multiplies relevance by a linearly decaying
	// recency boost.
	BoostRecentMemories bool `json:"boost_recent_memories"`

	// ExplorationBreadth truncates each expansion frontier to the top-N
	// neighbors by edge weight; 0 means unbounded.
	ExplorationBreadth int `json:"exploration_breadth"`
}

// DefaultRecallQuery returns the standard recall parameters.
func DefaultRecallQuery() RecallQuery {
	return RecallQuery{
		MaxResults:          10,
		MinRelevance:        0.1,
		MaxPathLength:       3,
		BoostRecentMemories: true,
		ExplorationBreadth:  8,
	}
}

// RecallOption configures a recall query using the functional options
// pattern.
type RecallOption func(*RecallQuery)

// WithMaxResults caps the number of results.
func WithMaxResults(n int) RecallOption {
	return func(q *RecallQuery) { q.MaxResults = n }
}

// WithMinRelevance sets the relevance floor.
func WithMinRelevance(r float64) RecallOption {
	return func(q *RecallQuery) { q.MinRelevance = r }
}

// WithMaxPathLength caps the associative expansion depth.
func WithMaxPathLength(n int) RecallOption {
	return func(q *RecallQuery) { q.MaxPathLength = n }
}

// WithSemanticSimilarity folds content similarity into associative recall.
func WithSemanticSimilarity(on bool) RecallOption {
	return func(q *RecallQuery) { q.IncludeSemanticSimilarity = on }
}

// WithRecencyBoost toggles the recency boost.
func WithRecencyBoost(on bool) RecallOption {
	return func(q *RecallQuery) { q.BoostRecentMemories = on }
}

// WithExplorationBreadth truncates each frontier to the top-N neighbors.
func WithExplorationBreadth(n int) RecallOption {
	return func(q *RecallQuery) { q.ExplorationBreadth = n }
}

// ApplyRecallOptions builds a query from the defaults plus options.
func ApplyRecallOptions(opts []RecallOption) RecallQuery {
	q := DefaultRecallQuery()
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// neighbor is one outgoing connection considered during traversal.
type neighbor struct {
	to     ConceptID
	weight float64
}

// outgoing collects the active outgoing edges of a concept across both
// zones, strongest first, truncated to the exploration breadth.
func (g *Graph) outgoing(id ConceptID, breadth int) []neighbor {
	var ns []neighbor
	collect := func(_ EdgeKey, e *SynapticEdge) bool {
		if e.From == id && e.IsActive() {
			ns = append(ns, neighbor{to: e.To, weight: e.Weight.Value()})
		}
		return true
	}
	g.shortTerm.Range(collect)
	g.longTerm.Range(collect)

	sort.Slice(ns, func(i, j int) bool { return ns[i].weight > ns[j].weight })
	if breadth > 0 && len(ns) > breadth {
		ns = ns[:breadth]
	}
	return ns
}

// Recall retrieves concepts associated with a source concept by expanding
// the directed multigraph formed by both edge zones breadth-first.
//
// The relevance of a reached concept is the product of the edge weights
// along the discovered path, optionally multiplied by a recency boost.
// Duplicates keep their best-scoring path. Recall is read-only: it touches
// no weights, counters or timestamps.
func (g *Graph) Recall(sourceID ConceptID, query RecallQuery) ([]RecallResult, error) {
	source, ok := g.GetConcept(sourceID)
	if !ok {
		return nil, NewMemoryError("Recall", ErrNotFound)
	}

	if query.MaxPathLength <= 0 {
		// Depth zero reaches nothing beyond the source itself.
		return []RecallResult{{
			Concept:            source,
			Relevance:          1.0,
			AssociationPath:    []ConceptID{sourceID},
			ConnectionStrength: 1.0,
		}}, nil
	}

	type visit struct {
		relevance float64
		path      []ConceptID
		strength  float64
	}
	best := make(map[ConceptID]visit)

	type frontierItem struct {
		id        ConceptID
		relevance float64
		path      []ConceptID
	}
	frontier := []frontierItem{{id: sourceID, relevance: 1.0, path: []ConceptID{sourceID}}}
	visited := map[ConceptID]struct{}{sourceID: {}}

	for depth := 0; depth < query.MaxPathLength && len(frontier) > 0; depth++ {
		var next []frontierItem
		for _, item := range frontier {
			for _, n := range g.outgoing(item.id, query.ExplorationBreadth) {
				relevance := item.relevance * n.weight
				path := append(append([]ConceptID{}, item.path...), n.to)

				if n.to != sourceID {
					if prev, ok := best[n.to]; !ok || relevance > prev.relevance {
						best[n.to] = visit{relevance: relevance, path: path, strength: n.weight}
					}
				}
				if _, seen := visited[n.to]; !seen {
					visited[n.to] = struct{}{}
					next = append(next, frontierItem{id: n.to, relevance: relevance, path: path})
				}
			}
		}
		frontier = next
	}

	results := make([]RecallResult, 0, len(best))
	for id, v := range best {
		concept, ok := g.GetConcept(id)
		if !ok {
			continue // forgotten mid-traversal
		}
		relevance := v.relevance
		if query.IncludeSemanticSimilarity {
			relevance *= 1.0 + ContentSimilarity(source.Content, concept.Content)
		}
		if query.BoostRecentMemories {
			relevance *= g.recencyBoost(concept)
		}
		if relevance < query.MinRelevance {
			continue
		}
		results = append(results, RecallResult{
			Concept:            concept,
			Relevance:          relevance,
			AssociationPath:    v.path,
			PathLength:         len(v.path) - 1,
			ConnectionStrength: v.strength,
		})
	}

	g.sortAndTruncate(&results, query.MaxResults)
	g.logger.Debug("recall completed",
		zap.String("source", sourceID.String()), zap.Int("results", len(results)))
	return results, nil
}

// recencyBoost returns 1 + γ·recency, where recency decays linearly from 1
// to 0 over the configured window since last access.
func (g *Graph) recencyBoost(c *Concept) float64 {
	window := g.config.RecencyBoostWindow
	if window <= 0 {
		return 1.0
	}
	since := g.now().Sub(c.LastAccessed)
	if since < 0 {
		since = 0
	}
	recency := 1.0 - since.Seconds()/window.Seconds()
	if recency < 0 {
		recency = 0
	}
	return 1.0 + g.config.RecencyBoostFactor*recency
}

// sortAndTruncate orders results by descending relevance (ties broken by
// concept ID for determinism) and applies the result cap.
func (g *Graph) sortAndTruncate(results *[]RecallResult, maxResults int) {
	rs := *results
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Relevance != rs[j].Relevance {
			return rs[i].Relevance > rs[j].Relevance
		}
		return rs[i].Concept.ID.String() < rs[j].Concept.ID.String()
	})
	if maxResults <= 0 {
		maxResults = g.config.MaxRecallResults
	}
	if len(rs) > maxResults {
		rs = rs[:maxResults]
	}
	*results = rs
}

// RecallByContent scores every concept against a query string using
// ContentSimilarity and returns those at or above the relevance floor,
// best first. An empty corpus yields an empty result, not an error.
func (g *Graph) RecallByContent(queryContent string, query RecallQuery) []RecallResult {
	queryTokens := similarityTokens(queryContent)

	var results []RecallResult
	g.concepts.Range(func(_ ConceptID, c *Concept) bool {
		similarity := tokenSimilarity(queryTokens, similarityTokens(c.Content))
		if c.Content == queryContent && c.Content != "" {
			similarity = 1.0
		}
		if similarity < query.MinRelevance {
			return true
		}
		concept := c.Clone()
		relevance := similarity
		if query.BoostRecentMemories {
			relevance *= g.recencyBoost(concept)
		}
		results = append(results, RecallResult{
			Concept:            concept,
			Relevance:          relevance,
			AssociationPath:    []ConceptID{concept.ID},
			ConnectionStrength: similarity,
		})
		return true
	})

	g.sortAndTruncate(&results, query.MaxResults)
	g.logger.Debug("content recall completed", zap.Int("results", len(results)))
	return results
}

// spreadRetention is the share of activation a concept keeps for itself
// each spreading round.
const spreadRetention = 0.7

// SpreadingActivation seeds each given concept with full activation and
// iteratively propagates activation along outgoing edges: a neighbor
// receives activation scaled by the edge weight, while the concept retains
// a fixed share. Activation below the threshold clamps to zero. Seeds are
// excluded from the results.
func (g *Graph) SpreadingActivation(seeds []ConceptID, activationThreshold float64, maxIterations int) []RecallResult {
	levels := make(map[ConceptID]float64, len(seeds))
	seedSet := make(map[ConceptID]struct{}, len(seeds))
	for _, id := range seeds {
		if g.HasConcept(id) {
			levels[id] = 1.0
			seedSet[id] = struct{}{}
		}
	}

	for iter := 0; iter < maxIterations; iter++ {
		next := make(map[ConceptID]float64, len(levels))
		changed := false
		for id, activation := range levels {
			if activation < activationThreshold {
				continue // clamped to zero
			}
			retained := activation * spreadRetention
			if retained > next[id] {
				next[id] = retained
			}
			for _, n := range g.outgoing(id, 0) {
				spread := activation * n.weight
				if spread > next[n.to] {
					next[n.to] = spread
					changed = true
				}
			}
		}
		levels = next
		if !changed {
			break
		}
	}

	var results []RecallResult
	for id, activation := range levels {
		if activation < activationThreshold {
			continue
		}
		if _, isSeed := seedSet[id]; isSeed {
			continue
		}
		concept, ok := g.GetConcept(id)
		if !ok {
			continue
		}
		results = append(results, RecallResult{
			Concept:            concept,
			Relevance:          activation,
			AssociationPath:    []ConceptID{id},
			ConnectionStrength: activation,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Concept.ID.String() < results[j].Concept.ID.String()
	})
	g.logger.Debug("spreading activation completed",
		zap.Int("seeds", len(seeds)), zap.Int("results", len(results)))
	return results
}
