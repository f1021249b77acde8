package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

func TestApplyLTPStrengthensRecentEdges(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	before, _, _ := g.GetEdge(a, b)
	strengthened := g.ApplyLTP()
	after, _, _ := g.GetEdge(a, b)

	assert.Equal(t, 1, strengthened)
	assert.Greater(t, after.Weight.Value(), before.Weight.Value())
}

func TestApplyLTPSkipsStaleEdges(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	clock.Advance(2 * time.Hour) // beyond the LTP recency window

	before, _, _ := g.GetEdge(a, b)
	strengthened := g.ApplyLTP()
	after, _, _ := g.GetEdge(a, b)

	assert.Equal(t, 0, strengthened)
	assert.Equal(t, before.Weight.Value(), after.Weight.Value())
}

func TestApplyLTDDecaysAndPrunes(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	c, _ := g.Learn("C")
	require.NoError(t, g.Associate(a, b))
	require.NoError(t, g.Associate(b, c))
	require.NoError(t, g.SetEdgeWeight(b, c, 0.0101))

	clock.Advance(2 * time.Hour)

	decayed, pruned := g.ApplyLTD()
	assert.Equal(t, 1, decayed)
	assert.Equal(t, 1, pruned, "edge decaying below threshold is removed")

	_, _, ok := g.GetEdge(b, c)
	assert.False(t, ok)
	edge, _, ok := g.GetEdge(a, b)
	require.True(t, ok)
	assert.Less(t, edge.Weight.Value(), memory.WeightInitial)
}

func TestApplyLTDSparesRecentEdges(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	before, _, _ := g.GetEdge(a, b)
	decayed, pruned := g.ApplyLTD()
	after, _, _ := g.GetEdge(a, b)

	assert.Equal(t, 0, decayed)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, before.Weight.Value(), after.Weight.Value())
}

func TestHebbianStrengtheningExistingOnly(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	c, _ := g.Learn("C")
	require.NoError(t, g.Associate(a, b))

	before, _, _ := g.GetEdge(a, b)
	strengthened := g.HebbianStrengthening([]memory.ConceptID{a, b, c})
	after, _, _ := g.GetEdge(a, b)

	assert.Equal(t, 1, strengthened)
	assert.Greater(t, after.Weight.Value(), before.Weight.Value())

	// Hebbian never creates edges.
	_, _, ok := g.GetEdge(a, c)
	assert.False(t, ok)
	_, _, ok = g.GetEdge(b, c)
	assert.False(t, ok)
	assert.Equal(t, 1, g.Stats().ShortTermConnections)
}

func TestHebbianSingleConceptNoop(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	assert.Equal(t, 0, g.HebbianStrengthening([]memory.ConceptID{a}))
}

func TestAdaptiveLearningRate(t *testing.T) {
	g := memory.NewGraphWithDefaults()

	weak := g.AdaptiveLearningRate(memory.NewSynapticWeight(0.1))
	strong := g.AdaptiveLearningRate(memory.NewSynapticWeight(0.9))

	assert.Greater(t, weak, strong, "weaker connections learn faster")
}

func TestSleepCycleEvictsStaleWorkingMemory(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))

	a, _ := g.Learn("A")
	clock.Advance(90 * time.Minute)
	b, _ := g.Learn("B")

	g.SleepCycle()

	wm := g.WorkingMemorySnapshot()
	assert.NotContains(t, wm, a, "entries older than an hour are evicted")
	assert.Contains(t, wm, b)
}

func TestCompetitiveLearning(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	w1, _ := g.Learn("winner one")
	w2, _ := g.Learn("winner two")
	l1, _ := g.Learn("loser one")
	l2, _ := g.Learn("loser two")
	require.NoError(t, g.Associate(w1, w2))
	require.NoError(t, g.Associate(l1, l2))

	winnerBefore, _, _ := g.GetEdge(w1, w2)
	loserBefore, _, _ := g.GetEdge(l1, l2)

	g.CompetitiveLearning([]memory.ConceptID{w1}, []memory.ConceptID{l1})

	winnerAfter, _, _ := g.GetEdge(w1, w2)
	loserAfter, _, _ := g.GetEdge(l1, l2)

	assert.Greater(t, winnerAfter.Weight.Value(), winnerBefore.Weight.Value())
	assert.Less(t, loserAfter.Weight.Value(), loserBefore.Weight.Value())
}
