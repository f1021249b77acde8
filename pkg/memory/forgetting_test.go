package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

func TestForgetDecaysAndRemovesStaleChain(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))

	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	// Sixty idle days: the forgetting curve erases the weak edge, and the
	// now-isolated, long-unused concepts go with it.
	clock.Advance(60 * 24 * time.Hour)

	stats := g.Forget(memory.DefaultForgettingConfig())

	assert.GreaterOrEqual(t, stats.ConnectionsPruned, 1)
	_, _, ok := g.GetEdge(a, b)
	assert.False(t, ok, "decayed edge is removed")

	assert.False(t, g.HasConcept(b), "concept with only the dead edge is forgotten")
	assert.False(t, g.HasConcept(a))
}

func TestForgetSparesRecentlyActiveConcepts(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))

	stale, _ := g.Learn("stale")
	clock.Advance(60 * 24 * time.Hour)
	fresh, _ := g.Learn("fresh")

	g.Forget(memory.DefaultForgettingConfig())

	assert.False(t, g.HasConcept(stale))
	assert.True(t, g.HasConcept(fresh),
		"working-memory recency spares an isolated concept")
}

func TestForgetKeepsStrongRecentEdges(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))

	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))
	require.NoError(t, g.SetEdgeWeight(a, b, 0.9))

	clock.Advance(time.Hour)

	g.Forget(memory.DefaultForgettingConfig())

	edge, _, ok := g.GetEdge(a, b)
	require.True(t, ok, "a strong recently used edge survives")
	assert.Greater(t, edge.Weight.Value(), 0.5)
	assert.True(t, g.HasConcept(a))
	assert.True(t, g.HasConcept(b))
}

func TestForgetAggressiveHalvesIdleShortTerm(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))

	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))
	require.NoError(t, g.SetEdgeWeight(a, b, 0.8))

	clock.Advance(2 * time.Hour)

	cfg := memory.DefaultForgettingConfig()
	cfg.AggressiveForgetting = true
	g.Forget(cfg)

	edge, _, ok := g.GetEdge(a, b)
	require.True(t, ok)
	assert.Less(t, edge.Weight.Value(), 0.5,
		"aggressive forgetting halves idle short-term edges on top of decay")
}

func TestForgetConceptsTargeted(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	removed := g.ForgetConcepts([]memory.ConceptID{a, memory.NewConceptID()})
	assert.Equal(t, 1, removed)
	assert.False(t, g.HasConcept(a))
	_, _, ok := g.GetEdge(a, b)
	assert.False(t, ok)
}

func TestInterferenceForgetting(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	old1, _ := g.Learn("red apples grow on trees")
	old2, _ := g.Learn("green apples grow on trees")
	require.NoError(t, g.Associate(old1, old2))

	edgeBefore, _, _ := g.GetEdge(old1, old2)

	fresh, _ := g.Learn("ripe apples grow on trees")
	affected := g.InterferenceForgetting(fresh, 0.3)

	assert.Equal(t, 2, affected)
	edgeAfter, _, _ := g.GetEdge(old1, old2)
	assert.Less(t, edgeAfter.Weight.Value(), edgeBefore.Weight.Value())
}

func TestForgettingCandidates(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))

	old, _ := g.Learn("old and unused")
	clock.Advance(40 * 24 * time.Hour)
	recent, _ := g.Learn("recent")

	candidates := g.ForgettingCandidates(memory.DefaultForgettingConfig())

	assert.Contains(t, candidates, old)
	assert.NotContains(t, candidates, recent)
}

func TestForgetEmptyGraph(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	stats := g.Forget(memory.DefaultForgettingConfig())
	assert.Equal(t, memory.ForgettingStats{}, stats)
}
