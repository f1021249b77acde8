package memory

import (
	"time"

	"go.uber.org/zap"
)

// Synaptic plasticity: LTP strengthens recently used connections, LTD
// decays unused ones, and the Hebbian pass potentiates pre-existing edges
// among a co-activated set. Within one pass the effect on any edge depends
// only on its own state at the start of the pass; entries that disappear
// mid-iteration are skipped.

// longTermDampening slows both decay and strengthening on consolidated
// edges relative to short-term ones.
const longTermDampening = 0.1

// ApplyLTP strengthens every short-term edge accessed within the LTP
// recency window using the adaptive rate, and long-term edges at a dampened
// rate. Returns the number of strengthened edges.
func (g *Graph) ApplyLTP() int {
	cutoff := g.now().Add(-g.config.LTPRecencyWindow)
	strengthened := 0

	strengthened += g.ltpZone(ZoneShortTerm, cutoff, 1.0)
	strengthened += g.ltpZone(ZoneLongTerm, cutoff, longTermDampening)

	if strengthened > 0 {
		g.logger.Debug("ltp pass", zap.Int("strengthened", strengthened))
	}
	return strengthened
}

func (g *Graph) ltpZone(zone Zone, cutoff time.Time, damp float64) int {
	table := g.zoneTable(zone)
	keys := make([]EdgeKey, 0)
	table.Range(func(key EdgeKey, e *SynapticEdge) bool {
		if e.LastAccessed.After(cutoff) {
			keys = append(keys, key)
		}
		return true
	})

	count := 0
	for _, key := range keys {
		table.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
			if !loaded || !old.LastAccessed.After(cutoff) {
				return old, !loaded
			}
			ne := *old
			// Adaptive factor 1 − w: weaker edges strengthen faster.
			rate := g.config.LearningRate * (1.0 - ne.Weight.Value()) * damp
			ne.Weight = NewSynapticWeight(ne.Weight.Value() + rate)
			count++
			return &ne, false
		})
	}
	return count
}

// ApplyLTD decays every edge not accessed within the LTP recency window and
// removes edges whose weight falls below the active threshold. Long-term
// edges decay at a dampened rate. Returns (decayed, pruned) counts.
func (g *Graph) ApplyLTD() (decayed, pruned int) {
	now := g.now()
	cutoff := now.Add(-g.config.LTPRecencyWindow)

	d, p := g.ltdZone(ZoneShortTerm, cutoff, g.config.DecayRate)
	decayed += d
	pruned += p
	d, p = g.ltdZone(ZoneLongTerm, cutoff, g.config.DecayRate*longTermDampening)
	decayed += d
	pruned += p

	if decayed > 0 || pruned > 0 {
		g.logger.Debug("ltd pass", zap.Int("decayed", decayed), zap.Int("pruned", pruned))
	}
	return decayed, pruned
}

func (g *Graph) ltdZone(zone Zone, cutoff time.Time, rate float64) (decayed, pruned int) {
	table := g.zoneTable(zone)
	keys := make([]EdgeKey, 0)
	table.Range(func(key EdgeKey, e *SynapticEdge) bool {
		if !e.LastAccessed.After(cutoff) {
			keys = append(keys, key)
		}
		return true
	})

	for _, key := range keys {
		removed := false
		table.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
			if !loaded || old.LastAccessed.After(cutoff) {
				return old, !loaded
			}
			ne := old.decayed(rate)
			if !ne.IsActive() {
				removed = true
				return nil, true
			}
			return ne, false
		})
		if removed {
			pruned++
		} else {
			decayed++
		}
	}
	return decayed, pruned
}

// AdaptiveLearningRate scales the configured learning rate by connection
// strength: weaker connections learn faster, stronger ones are more stable.
func (g *Graph) AdaptiveLearningRate(w SynapticWeight) float64 {
	return g.config.LearningRate * (0.5 + (1.0 - w.Value()))
}

// HebbianStrengthening potentiates existing connections between every
// ordered pair of co-activated concepts, in both zones, at the adaptive
// rate. It never creates edges: firing together only wires what is already
// wired.
func (g *Graph) HebbianStrengthening(conceptIDs []ConceptID) int {
	if len(conceptIDs) < 2 {
		return 0
	}

	now := g.now()
	strengthened := 0
	for i := range conceptIDs {
		for j := range conceptIDs {
			if i == j {
				continue
			}
			key := EdgeKey{From: conceptIDs[i], To: conceptIDs[j]}
			if g.hebbianActivate(g.shortTerm, key, now) {
				strengthened++
				continue
			}
			if g.hebbianActivate(g.longTerm, key, now) {
				strengthened++
			}
		}
	}

	if strengthened > 0 {
		g.logger.Debug("hebbian pass", zap.Int("strengthened", strengthened))
	}
	return strengthened
}

func (g *Graph) hebbianActivate(table edgeTable, key EdgeKey, now time.Time) bool {
	activated := false
	table.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
		if !loaded {
			return nil, true
		}
		activated = true
		return old.activated(g.AdaptiveLearningRate(old.Weight), now), false
	})
	return activated
}

// CompetitiveLearning models resource competition: short-term connections
// of winner concepts get a boosted potentiation step while those of loser
// concepts decay at double rate.
func (g *Graph) CompetitiveLearning(winners, losers []ConceptID) {
	now := g.now()

	winnerSet := make(map[ConceptID]struct{}, len(winners))
	for _, id := range winners {
		winnerSet[id] = struct{}{}
	}
	loserSet := make(map[ConceptID]struct{}, len(losers))
	for _, id := range losers {
		loserSet[id] = struct{}{}
	}

	keys := make([]EdgeKey, 0)
	g.shortTerm.Range(func(key EdgeKey, _ *SynapticEdge) bool {
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		_, fromWins := winnerSet[key.From]
		_, toWins := winnerSet[key.To]
		_, fromLoses := loserSet[key.From]
		_, toLoses := loserSet[key.To]
		if !fromWins && !toWins && !fromLoses && !toLoses {
			continue
		}
		g.shortTerm.Compute(key, func(old *SynapticEdge, loaded bool) (*SynapticEdge, bool) {
			if !loaded {
				return nil, true
			}
			if fromWins || toWins {
				return old.activated(g.config.LearningRate*1.5, now), false
			}
			return old.decayed(g.config.DecayRate * 2.0), false
		})
	}

	g.logger.Debug("competitive learning",
		zap.Int("winners", len(winners)), zap.Int("losers", len(losers)))
}

// SleepCycle runs one combined maintenance pass: LTD decay, LTP
// strengthening, and eviction of working-memory entries older than one
// hour.
func (g *Graph) SleepCycle() {
	g.logger.Info("sleep cycle started")

	g.ApplyLTD()
	g.ApplyLTP()

	cutoff := g.now().Add(-time.Hour)
	evicted := 0
	stale := make([]ConceptID, 0)
	g.workingMemory.Range(func(id ConceptID, t time.Time) bool {
		if t.Before(cutoff) {
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		g.workingMemory.Delete(id)
		evicted++
	}

	g.logger.Info("sleep cycle completed", zap.Int("working_memory_evicted", evicted))
}

// edgeTable is the shared shape of the two zone tables.
type edgeTable interface {
	Compute(key EdgeKey, valueFn func(oldValue *SynapticEdge, loaded bool) (newValue *SynapticEdge, del bool)) (actual *SynapticEdge, ok bool)
}
