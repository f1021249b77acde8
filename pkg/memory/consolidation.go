package memory

import (
	"go.uber.org/zap"
)

// ConsolidationStats summarizes one consolidation pass.
type ConsolidationStats struct {
	// PromotedToLongTerm is the number of edges moved to long-term storage.
	PromotedToLongTerm int `json:"promoted_to_long_term"`

	// PrunedWeakConnections is the number of inactive edges removed.
	PrunedWeakConnections int `json:"pruned_weak_connections"`

	// ReactivatedConnections is the number of promotions merged into an
	// edge already present in long-term storage.
	ReactivatedConnections int `json:"reactivated_connections"`

	// TotalShortTermBefore is the short-term edge count before the pass.
	TotalShortTermBefore int `json:"total_short_term_before"`

	// TotalLongTermAfter is the long-term edge count after the pass.
	TotalLongTermAfter int `json:"total_long_term_after"`
}

// interferenceSimilarity is the content-similarity bar above which two
// long-term targets of the same source compete.
const interferenceSimilarity = 0.3

// ConsolidateMemory runs one hippocampus-to-cortex transfer pass.
//
// Short-term edges meeting at least three of the five promotion criteria
// (weight, activation count, recent usage, maturity, endpoint importance)
// move to long-term storage; inactive edges that fail promotion are pruned;
// edges that fail promotion but remain active stay in short-term storage.
// After promotion the pass applies interference between competing long-term
// edges and records the consolidation timestamp.
func (g *Graph) ConsolidateMemory() ConsolidationStats {
	g.logger.Info("memory consolidation started")

	stats := ConsolidationStats{
		TotalShortTermBefore: g.shortTerm.Size(),
	}

	var promote, prune []EdgeKey
	g.shortTerm.Range(func(key EdgeKey, e *SynapticEdge) bool {
		switch {
		case g.shouldPromote(e):
			promote = append(promote, key)
		case !e.IsActive():
			prune = append(prune, key)
		}
		return true
	})

	for _, key := range promote {
		edge, ok := g.shortTerm.LoadAndDelete(key)
		if !ok {
			continue // removed mid-pass
		}
		merged := false
		g.longTerm.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
			if !loaded {
				return edge, false
			}
			merged = true
			ne := *old
			ne.Weight = NewSynapticWeight((old.Weight.Value() + edge.Weight.Value()) / 2.0)
			if edge.LastAccessed.After(ne.LastAccessed) {
				ne.LastAccessed = edge.LastAccessed
			}
			ne.ActivationCount += edge.ActivationCount
			return &ne, false
		})
		if merged {
			stats.ReactivatedConnections++
		} else {
			stats.PromotedToLongTerm++
		}
	}

	for _, key := range prune {
		if _, ok := g.shortTerm.LoadAndDelete(key); ok {
			stats.PrunedWeakConnections++
		}
	}

	g.applyInterference()
	g.setLastConsolidation(g.now())

	stats.TotalLongTermAfter = g.longTerm.Size()
	g.logger.Info("memory consolidation completed",
		zap.Int("promoted", stats.PromotedToLongTerm),
		zap.Int("pruned", stats.PrunedWeakConnections),
		zap.Int("reactivated", stats.ReactivatedConnections))
	return stats
}

// ForceConsolidation runs a pass regardless of the interval trigger.
func (g *Graph) ForceConsolidation() ConsolidationStats {
	return g.ConsolidateMemory()
}

// shouldPromote evaluates the five promotion criteria; three must hold.
func (g *Graph) shouldPromote(e *SynapticEdge) bool {
	now := g.now()

	criteria := 0
	if e.Weight.Value() >= g.config.ConsolidationThreshold {
		criteria++
	}
	if e.ActivationCount >= g.config.MinActivationCount {
		criteria++
	}
	if now.Sub(e.LastAccessed) <= g.config.PromotionRecentWindow {
		criteria++
	}
	if now.Sub(e.CreatedAt) >= g.config.PromotionMaturity {
		criteria++
	}
	if g.conceptsImportant(e.From, e.To) {
		criteria++
	}
	return criteria >= 3
}

// conceptsImportant reports whether both endpoints are frequently accessed.
func (g *Graph) conceptsImportant(a, b ConceptID) bool {
	ca, ok := g.concepts.Load(a)
	if !ok || ca.AccessCount < g.config.MinConceptAccess {
		return false
	}
	cb, ok := g.concepts.Load(b)
	return ok && cb.AccessCount >= g.config.MinConceptAccess
}

// applyInterference weakens the loser of each pair of long-term edges that
// share a source and point at targets with similar content. Competing
// memories suppress each other; the weaker edge takes a small LTD step.
func (g *Graph) applyInterference() {
	bySource := make(map[ConceptID][]*SynapticEdge)
	g.longTerm.Range(func(_ EdgeKey, e *SynapticEdge) bool {
		bySource[e.From] = append(bySource[e.From], e)
		return true
	})

	weakened := 0
	for _, edges := range bySource {
		if len(edges) < 2 {
			continue
		}
		for i := 0; i < len(edges); i++ {
			for j := i + 1; j < len(edges); j++ {
				ti, iok := g.concepts.Load(edges[i].To)
				tj, jok := g.concepts.Load(edges[j].To)
				if !iok || !jok {
					continue
				}
				if ContentSimilarity(ti.Content, tj.Content) < interferenceSimilarity {
					continue
				}
				loser := edges[i]
				if edges[j].Weight < loser.Weight {
					loser = edges[j]
				}
				g.longTerm.Compute(loser.Key(), func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
					if !loaded {
						return nil, true
					}
					return old.decayed(g.config.DecayRate), false
				})
				weakened++
			}
		}
	}
	if weakened > 0 {
		g.logger.Debug("interference applied", zap.Int("weakened", weakened))
	}
}

// Reconsolidate returns every long-term edge incident on a recalled concept
// to short-term storage. Recalled memories become labile again: the moved
// edge takes a bounded weight reduction, floored at the active threshold,
// and can be re-promoted by a later consolidation. Returns the number of
// edges moved.
func (g *Graph) Reconsolidate(conceptIDs []ConceptID) int {
	if len(conceptIDs) == 0 {
		return 0
	}
	now := g.now()

	recalled := make(map[ConceptID]struct{}, len(conceptIDs))
	for _, id := range conceptIDs {
		recalled[id] = struct{}{}
	}

	keys := make([]EdgeKey, 0)
	g.longTerm.Range(func(key EdgeKey, _ *SynapticEdge) bool {
		_, fromHit := recalled[key.From]
		_, toHit := recalled[key.To]
		if fromHit || toHit {
			keys = append(keys, key)
		}
		return true
	})

	moved := 0
	for _, key := range keys {
		edge, ok := g.longTerm.LoadAndDelete(key)
		if !ok {
			continue
		}
		ne := *edge
		w := ne.Weight.Value() * (1.0 - g.config.ReconsolidationPenalty)
		if w < WeightThreshold {
			w = WeightThreshold
		}
		ne.Weight = NewSynapticWeight(w)
		ne.LastAccessed = now
		g.shortTerm.Store(key, &ne)
		moved++
	}

	if moved > 0 {
		g.logger.Debug("reconsolidated", zap.Int("edges", moved))
	}
	return moved
}
