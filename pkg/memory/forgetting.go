package memory

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// ForgettingStats summarizes one forgetting cycle.
type ForgettingStats struct {
	// ConceptsForgotten is the number of concepts removed for age.
	ConceptsForgotten int `json:"concepts_forgotten"`

	// ConnectionsPruned is the number of edges removed.
	ConnectionsPruned int `json:"connections_pruned"`

	// WeakConnectionsDecayed is the number of edges weakened by the
	// forgetting curve.
	WeakConnectionsDecayed int `json:"weak_connections_decayed"`

	// IsolatedConceptsRemoved is the number of concepts removed for
	// isolation.
	IsolatedConceptsRemoved int `json:"isolated_concepts_removed"`
}

// Forgetting-curve time constants, in days. Consolidated memories fade far
// more slowly than short-term ones.
const (
	shortTermTimeConstantDays = 30.0
	longTermTimeConstantDays  = 180.0
)

// Forget runs one full forgetting cycle:
//
//  1. decay every edge along its forgetting curve and prune those below the
//     weak-connection threshold,
//  2. remove concepts with fewer incident edges than the isolation
//     threshold, except those with a working-memory entry under an hour
//     old,
//  3. remove concepts unused beyond the age limit that have no active
//     incident edges,
//  4. if aggressive forgetting is on, halve short-term edges idle for over
//     an hour and prune the resulting inactive ones.
//
// Removing a concept removes its incident edges in both zones and its
// working-memory entry.
func (g *Graph) Forget(config ForgettingConfig) ForgettingStats {
	g.logger.Info("forgetting cycle started")

	var stats ForgettingStats

	decayed, pruned := g.applyForgettingCurves(config.WeakConnectionThreshold)
	stats.WeakConnectionsDecayed += decayed
	stats.ConnectionsPruned += pruned

	stats.IsolatedConceptsRemoved += g.removeIsolatedConcepts(config.ConceptIsolationThreshold)
	stats.ConceptsForgotten += g.removeUnusedConcepts(config.UnusedConceptDays)

	if config.AggressiveForgetting {
		stats.ConnectionsPruned += g.aggressiveShortTermPruning()
	}

	g.logger.Info("forgetting cycle completed",
		zap.Int("concepts_forgotten", stats.ConceptsForgotten),
		zap.Int("connections_pruned", stats.ConnectionsPruned),
		zap.Int("decayed", stats.WeakConnectionsDecayed),
		zap.Int("isolated_removed", stats.IsolatedConceptsRemoved))
	return stats
}

// applyForgettingCurves applies w ← w·exp(−days/(w·τ)) per edge, where τ is
// the zone's time constant, then prunes edges below the threshold.
func (g *Graph) applyForgettingCurves(weakThreshold float64) (decayed, pruned int) {
	now := g.now()
	for _, zc := range []struct {
		zone Zone
		tau  float64
	}{
		{ZoneShortTerm, shortTermTimeConstantDays},
		{ZoneLongTerm, longTermTimeConstantDays},
	} {
		table := g.zoneTable(zc.zone)
		keys := make([]EdgeKey, 0)
		table.Range(func(key EdgeKey, _ *SynapticEdge) bool {
			keys = append(keys, key)
			return true
		})
		for _, key := range keys {
			removed, changed := false, false
			table.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
				if !loaded {
					return nil, true
				}
				days := now.Sub(old.LastAccessed).Hours() / 24.0
				if days <= 0 {
					return old, false
				}
				w := old.Weight.Value()
				retention := 0.0
				if w > 0 {
					retention = math.Exp(-days / (w * zc.tau))
				}
				ne := *old
				ne.Weight = NewSynapticWeight(w * retention)
				changed = true
				if ne.Weight.Value() < weakThreshold || !ne.IsActive() {
					removed = true
					return nil, true
				}
				return &ne, false
			})
			switch {
			case removed:
				pruned++
			case changed:
				decayed++
			}
		}
	}
	return decayed, pruned
}

// removeIsolatedConcepts removes every concept whose incident edge count
// across both zones is strictly below the threshold, unless its
// working-memory entry is less than an hour old.
func (g *Graph) removeIsolatedConcepts(minConnections int) int {
	if minConnections <= 0 {
		return 0
	}

	counts := make(map[ConceptID]int)
	countEdges := func(key EdgeKey, _ *SynapticEdge) bool {
		counts[key.From]++
		counts[key.To]++
		return true
	}
	g.shortTerm.Range(countEdges)
	g.longTerm.Range(countEdges)

	recentCutoff := g.now().Add(-time.Hour)
	var isolated []ConceptID
	g.concepts.Range(func(id ConceptID, _ *Concept) bool {
		if counts[id] >= minConnections {
			return true
		}
		// A fresh working-memory entry spares an otherwise isolated
		// concept; it was activated too recently to forget.
		if t, ok := g.workingMemory.Load(id); ok && t.After(recentCutoff) {
			return true
		}
		isolated = append(isolated, id)
		return true
	})

	removed := 0
	for _, id := range isolated {
		if g.RemoveConcept(id) {
			removed++
		}
	}
	if removed > 0 {
		g.logger.Debug("removed isolated concepts", zap.Int("count", removed))
	}
	return removed
}

// removeUnusedConcepts removes concepts idle beyond the age limit that have
// no active incident edges.
func (g *Graph) removeUnusedConcepts(daysThreshold int) int {
	cutoff := g.now().Add(-time.Duration(daysThreshold) * 24 * time.Hour)

	var stale []ConceptID
	g.concepts.Range(func(id ConceptID, c *Concept) bool {
		if c.LastAccessed.After(cutoff) {
			return true
		}
		if g.hasActiveIncidentEdge(id) {
			return true
		}
		stale = append(stale, id)
		return true
	})

	removed := 0
	for _, id := range stale {
		if g.RemoveConcept(id) {
			removed++
		}
	}
	if removed > 0 {
		g.logger.Debug("removed unused concepts", zap.Int("count", removed))
	}
	return removed
}

func (g *Graph) hasActiveIncidentEdge(id ConceptID) bool {
	active := false
	check := func(key EdgeKey, e *SynapticEdge) bool {
		if (key.From == id || key.To == id) && e.IsActive() {
			active = true
			return false
		}
		return true
	}
	g.shortTerm.Range(check)
	if active {
		return true
	}
	g.longTerm.Range(check)
	return active
}

// aggressiveShortTermPruning halves every short-term edge not accessed in
// the last hour and removes those that end up inactive.
func (g *Graph) aggressiveShortTermPruning() int {
	cutoff := g.now().Add(-time.Hour)

	keys := make([]EdgeKey, 0)
	g.shortTerm.Range(func(key EdgeKey, e *SynapticEdge) bool {
		if !e.LastAccessed.After(cutoff) {
			keys = append(keys, key)
		}
		return true
	})

	pruned := 0
	for _, key := range keys {
		removed := false
		g.shortTerm.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
			if !loaded || old.LastAccessed.After(cutoff) {
				return old, !loaded
			}
			ne := *old
			ne.Weight = NewSynapticWeight(ne.Weight.Value() / 2.0)
			if !ne.IsActive() {
				removed = true
				return nil, true
			}
			return &ne, false
		})
		if removed {
			pruned++
		}
	}
	if pruned > 0 {
		g.logger.Debug("aggressive pruning", zap.Int("pruned", pruned))
	}
	return pruned
}

// ForgetConcepts removes the given concepts and all their associations.
// Returns the number actually removed.
func (g *Graph) ForgetConcepts(conceptIDs []ConceptID) int {
	forgotten := 0
	for _, id := range conceptIDs {
		if g.RemoveConcept(id) {
			forgotten++
		}
	}
	g.logger.Debug("targeted forgetting", zap.Int("removed", forgotten))
	return forgotten
}

// InterferenceForgetting weakens the short-term connections of concepts
// whose content is similar to a newly learned concept (proactive
// interference). Returns the number of affected concepts.
func (g *Graph) InterferenceForgetting(newConceptID ConceptID, similarityThreshold float64) int {
	newConcept, ok := g.GetConcept(newConceptID)
	if !ok {
		return 0
	}
	newTokens := similarityTokens(newConcept.Content)

	var similar []ConceptID
	g.concepts.Range(func(id ConceptID, c *Concept) bool {
		if id == newConceptID {
			return true
		}
		if tokenSimilarity(newTokens, similarityTokens(c.Content)) > similarityThreshold {
			similar = append(similar, id)
		}
		return true
	})

	for _, id := range similar {
		keys := make([]EdgeKey, 0)
		g.shortTerm.Range(func(key EdgeKey, _ *SynapticEdge) bool {
			if key.From == id || key.To == id {
				keys = append(keys, key)
			}
			return true
		})
		for _, key := range keys {
			g.shortTerm.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
				if !loaded {
					return nil, true
				}
				return old.decayed(0.2), false
			})
		}
	}

	if len(similar) > 0 {
		g.logger.Debug("interference forgetting", zap.Int("affected", len(similar)))
	}
	return len(similar)
}

// ForgettingCandidates previews the concepts a cycle with the given config
// would consider for age-based removal.
func (g *Graph) ForgettingCandidates(config ForgettingConfig) []ConceptID {
	cutoff := g.now().Add(-time.Duration(config.UnusedConceptDays) * 24 * time.Hour)

	var candidates []ConceptID
	g.concepts.Range(func(id ConceptID, c *Concept) bool {
		if !c.LastAccessed.After(cutoff) && !g.hasActiveIncidentEdge(id) {
			candidates = append(candidates, id)
		}
		return true
	})
	return candidates
}
