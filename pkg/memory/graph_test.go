package memory_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

// testClock is a controllable clock for graph tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLearnAndGetConcept(t *testing.T) {
	g := memory.NewGraphWithDefaults()

	id, err := g.Learn("hello world")
	require.NoError(t, err)

	concept, ok := g.GetConcept(id)
	require.True(t, ok)
	assert.Equal(t, "hello world", concept.Content)
	assert.Equal(t, id, concept.ID)
}

func TestLearnEmptyContent(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	_, err := g.Learn("")
	assert.ErrorIs(t, err, memory.ErrInvalidArgument)
}

func TestLearnWithIDIdempotent(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	id := memory.ConceptIDFromString("seed")

	first, err := g.LearnWithID(id, "v1")
	require.NoError(t, err)
	second, err := g.LearnWithID(id, "v2")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, g.Stats().TotalConcepts)

	concept, _ := g.GetConcept(id)
	assert.Equal(t, "v2", concept.Content, "payload is overwritten, identity kept")
}

func TestAssociateNotFound(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")

	err := g.Associate(a, memory.NewConceptID())
	assert.ErrorIs(t, err, memory.ErrNotFound)
	err = g.Associate(memory.NewConceptID(), a)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestAssociateTwiceMonotone(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")

	require.NoError(t, g.Associate(a, b))
	first, zone, ok := g.GetEdge(a, b)
	require.True(t, ok)
	assert.Equal(t, memory.ZoneShortTerm, zone)

	require.NoError(t, g.Associate(a, b))
	second, zone, ok := g.GetEdge(a, b)
	require.True(t, ok)
	assert.Equal(t, memory.ZoneShortTerm, zone)

	// The key exists exactly once, in short-term storage.
	assert.Equal(t, 1, g.Stats().ShortTermConnections)
	assert.Equal(t, 0, g.Stats().LongTermConnections)

	assert.Equal(t, first.ActivationCount+1, second.ActivationCount)
	assert.Equal(t, uint64(2), second.ActivationCount,
		"two associates advance the activation count by exactly 2")
	assert.Greater(t, second.Weight.Value(), first.Weight.Value(),
		"potentiation is monotone")
}

func TestAssociateBidirectional(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")

	require.NoError(t, g.AssociateBidirectional(a, b))

	_, _, ok := g.GetEdge(a, b)
	assert.True(t, ok)
	_, _, ok = g.GetEdge(b, a)
	assert.True(t, ok)
}

func TestAccess(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	before, _ := g.GetConcept(a)
	edgeBefore, _, _ := g.GetEdge(a, b)

	require.NoError(t, g.Access(a))
	require.NoError(t, g.Access(a))

	after, _ := g.GetConcept(a)
	assert.Equal(t, before.AccessCount+2, after.AccessCount)
	assert.False(t, after.LastAccessed.Before(before.LastAccessed))

	edgeAfter, _, _ := g.GetEdge(a, b)
	assert.Greater(t, edgeAfter.Weight.Value(), edgeBefore.Weight.Value(),
		"access potentiates incident edges")

	err := g.Access(memory.NewConceptID())
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestRemoveAssociation(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	require.NoError(t, g.RemoveAssociation(a, b))
	_, _, ok := g.GetEdge(a, b)
	assert.False(t, ok)

	assert.ErrorIs(t, g.RemoveAssociation(a, b), memory.ErrNotFound)
}

func TestRemoveConceptCascades(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	c, _ := g.Learn("C")
	require.NoError(t, g.Associate(a, b))
	require.NoError(t, g.Associate(b, c))
	require.NoError(t, g.Associate(c, a))

	assert.True(t, g.RemoveConcept(b))
	assert.False(t, g.RemoveConcept(b))

	_, _, ok := g.GetEdge(a, b)
	assert.False(t, ok)
	_, _, ok = g.GetEdge(b, c)
	assert.False(t, ok)
	_, _, ok = g.GetEdge(c, a)
	assert.True(t, ok, "unrelated edge survives")

	assert.NotContains(t, g.WorkingMemorySnapshot(), b)
}

func TestStats(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	stats := g.Stats()
	assert.Equal(t, 2, stats.TotalConcepts)
	assert.Equal(t, 1, stats.ShortTermConnections)
	assert.Equal(t, 0, stats.LongTermConnections)
	assert.Equal(t, 2, stats.WorkingMemorySize)
	assert.False(t, stats.LastConsolidation.IsZero())
}

func TestShouldConsolidate(t *testing.T) {
	clock := newTestClock()
	g := memory.NewGraphWithDefaults(memory.WithClock(clock.Now))

	assert.False(t, g.ShouldConsolidate())

	clock.Advance(25 * time.Hour)
	assert.True(t, g.ShouldConsolidate(), "interval elapsed")
}

func TestAssociateCapacityExceeded(t *testing.T) {
	cfg := memory.DefaultMemoryConfig()
	cfg.MaxShortTermConnections = 2
	g := memory.NewGraph(cfg)

	ids := make([]memory.ConceptID, 4)
	for i := range ids {
		ids[i], _ = g.Learn(string(rune('A' + i)))
	}

	require.NoError(t, g.Associate(ids[0], ids[1]))
	require.NoError(t, g.Associate(ids[1], ids[2]))

	// Table is full and the fresh edges fail every promotion criterion
	// that would make room, so the forced consolidation cannot help.
	err := g.Associate(ids[2], ids[3])
	assert.ErrorIs(t, err, memory.ErrCapacityExceeded)

	// Strengthening an existing edge is still fine at capacity.
	assert.NoError(t, g.Associate(ids[0], ids[1]))
}

func TestWeightsAlwaysInRange(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	for i := 0; i < 200; i++ {
		require.NoError(t, g.Access(a))
	}
	edge, _, _ := g.GetEdge(a, b)
	assert.LessOrEqual(t, edge.Weight.Value(), 1.0)
	assert.GreaterOrEqual(t, edge.Weight.Value(), 0.0)
}

func TestConcurrentGraphOperations(t *testing.T) {
	g := memory.NewGraphWithDefaults()

	ids := make([]memory.ConceptID, 16)
	for i := range ids {
		var err error
		ids[i], err = g.Learn("concept")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				from := ids[(w+i)%len(ids)]
				to := ids[(w+i+1)%len(ids)]
				if err := g.Associate(from, to); err != nil &&
					!errors.Is(err, memory.ErrCapacityExceeded) {
					t.Errorf("associate: %v", err)
				}
				_ = g.Access(from)
				g.Stats()
			}
		}(w)
	}
	wg.Wait()

	// Every edge endpoint still refers to a live concept.
	for _, zone := range []memory.Zone{memory.ZoneShortTerm, memory.ZoneLongTerm} {
		g.RangeEdges(zone, func(e *memory.SynapticEdge) bool {
			assert.True(t, g.HasConcept(e.From))
			assert.True(t, g.HasConcept(e.To))
			return true
		})
	}
}

func TestSetEdgeWeight(t *testing.T) {
	g := memory.NewGraphWithDefaults()
	a, _ := g.Learn("A")
	b, _ := g.Learn("B")
	require.NoError(t, g.Associate(a, b))

	require.NoError(t, g.SetEdgeWeight(a, b, 0.75))
	edge, _, _ := g.GetEdge(a, b)
	assert.Equal(t, 0.75, edge.Weight.Value())

	assert.ErrorIs(t, g.SetEdgeWeight(a, b, 1.5), memory.ErrInvalidArgument)
	assert.ErrorIs(t, g.SetEdgeWeight(b, a, 0.5), memory.ErrNotFound)
}
