package core_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmind/leafmind-go/pkg/core"
	"github.com/leafmind/leafmind-go/pkg/memory"
	"github.com/leafmind/leafmind-go/pkg/storage"
)

func testConfig(t *testing.T) core.Config {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Persistence.DBPath = filepath.Join(t.TempDir(), "engine.db")
	cfg.Persistence.AutoSaveIntervalSeconds = 0 // tests save explicitly
	return cfg
}

func TestOpenValidatesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persistence.DBPath = ""
	_, err := core.Open(cfg)
	assert.ErrorIs(t, err, memory.ErrInvalidConfig)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	pg, err := core.Open(cfg)
	require.NoError(t, err)

	x, err := pg.Learn(ctx, "X", core.WithMetadata(map[string]string{"kind": "letter"}))
	require.NoError(t, err)
	_, err = pg.Associate(ctx, x.ID, x.ID)
	require.NoError(t, err)

	require.NoError(t, pg.ForceSave(ctx))
	require.NoError(t, pg.Close(ctx))

	// Reopen the same path: the graph comes back.
	pg, err = core.Open(cfg)
	require.NoError(t, err)
	defer pg.Close(ctx)

	restored, edges, err := pg.GetConcept(ctx, x.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "X", restored.Content)
	assert.Equal(t, "letter", restored.Metadata["kind"])

	require.Len(t, edges, 1)
	assert.Equal(t, memory.ZoneShortTerm, edges[0].Zone, "edge kept its original zone")
	assert.Equal(t, x.ID, edges[0].Edge.From)
	assert.Equal(t, x.ID, edges[0].Edge.To)

	stats, err := pg.Stats(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Memory.WorkingMemorySize,
		"working memory is transient and not restored")
}

func TestForceSaveMirrorsMemoryExactly(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	a, err := pg.Learn(ctx, "A")
	require.NoError(t, err)
	b, err := pg.Learn(ctx, "B")
	require.NoError(t, err)
	_, err = pg.Associate(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, pg.ForceSave(ctx))

	// Delete a concept; a later ForceSave must remove its keys too.
	require.NoError(t, pg.DeleteConcept(ctx, b.ID))
	require.NoError(t, pg.ForceSave(ctx))

	var conceptKeys, edgeKeys []string
	require.NoError(t, pg.Store().ScanKeys(ctx, storage.PrefixConcept, func(key string) error {
		conceptKeys = append(conceptKeys, key)
		return nil
	}))
	for _, prefix := range []string{storage.PrefixShortTerm, storage.PrefixLongTerm} {
		require.NoError(t, pg.Store().ScanKeys(ctx, prefix, func(key string) error {
			edgeKeys = append(edgeKeys, key)
			return nil
		}))
	}

	assert.Equal(t, []string{storage.ConceptKey(a.ID)}, conceptKeys,
		"the store holds exactly the live concepts")
	assert.Empty(t, edgeKeys, "edges of the deleted concept are gone from the store")
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	pg, err := core.Open(cfg)
	require.NoError(t, err)
	defer pg.Close(ctx)

	x, err := pg.Learn(ctx, "X")
	require.NoError(t, err)

	snap := filepath.Join(t.TempDir(), "snap.db")
	require.NoError(t, pg.Backup(ctx, snap))

	before, err := pg.Stats(ctx, false)
	require.NoError(t, err)

	// Diverge, then restore the snapshot.
	_, err = pg.Learn(ctx, "Y")
	require.NoError(t, err)
	require.NoError(t, pg.ForceSave(ctx))

	require.NoError(t, pg.Restore(ctx, snap))

	after, err := pg.Stats(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, before.Memory.TotalConcepts, after.Memory.TotalConcepts,
		"restore reinstates the pre-divergence concept count")

	_, _, err = pg.GetConcept(ctx, x.ID, false)
	assert.NoError(t, err, "X survives the restore")

	page, err := pg.ListConcepts(ctx, 1, 100, "Y")
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount, "Y is absent after the restore")
}

func TestSaveDrainsDirtyKeys(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	a, err := pg.Learn(ctx, "A")
	require.NoError(t, err)
	assert.Greater(t, pg.DirtyCount(), 0)

	require.NoError(t, pg.Save(ctx))
	assert.Equal(t, 0, pg.DirtyCount())

	loaded, err := pg.Store().LoadConcept(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", loaded.Content)
}

func TestConsolidateThroughFacadePersistsZoneMove(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Memory.ConsolidationThreshold = 0.3
	pg, err := core.Open(cfg)
	require.NoError(t, err)

	a, err := pg.Learn(ctx, "A")
	require.NoError(t, err)
	b, err := pg.Learn(ctx, "B")
	require.NoError(t, err)
	_, err = pg.Associate(ctx, a.ID, b.ID)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err = pg.Access(ctx, a.ID)
		require.NoError(t, err)
		_, err = pg.Access(ctx, b.ID)
		require.NoError(t, err)
		_, err = pg.Associate(ctx, a.ID, b.ID)
		require.NoError(t, err)
	}

	stats, err := pg.Consolidate(ctx, true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.PromotedToLongTerm, 1)

	require.NoError(t, pg.Save(ctx))
	require.NoError(t, pg.Close(ctx))

	pg, err = core.Open(cfg)
	require.NoError(t, err)
	defer pg.Close(ctx)

	_, zone, ok := pg.Graph().GetEdge(a.ID, b.ID)
	require.True(t, ok)
	assert.Equal(t, memory.ZoneLongTerm, zone,
		"the promoted edge is in long-term storage after a reload")
	assert.Equal(t, 0, pg.Graph().Stats().ShortTermConnections)
}

func TestRecallRequestValidation(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	_, err = pg.Recall(ctx, core.RecallRequest{})
	assert.ErrorIs(t, err, memory.ErrInvalidArgument,
		"recall needs a source ID or a content query")

	missing := memory.NewConceptID()
	_, err = pg.Recall(ctx, core.RecallRequest{SourceID: &missing})
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestRecallThroughFacade(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	a, _ := pg.Learn(ctx, "alpha particle physics")
	b, _ := pg.Learn(ctx, "beta particle physics")
	_, err = pg.Associate(ctx, a.ID, b.ID)
	require.NoError(t, err)

	resp, err := pg.Recall(ctx, core.RecallRequest{
		SourceID: &a.ID,
		Options:  []memory.RecallOption{memory.WithMinRelevance(0.0)},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Source)
	assert.Equal(t, a.ID, resp.Source.ID)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, b.ID, resp.Results[0].Concept.ID)
	assert.Equal(t, 1, resp.TotalFound)

	// Content recall through the same entry point.
	resp, err = pg.Recall(ctx, core.RecallRequest{Query: "particle physics"})
	require.NoError(t, err)
	assert.Nil(t, resp.Source)
	assert.Len(t, resp.Results, 2)
}

func TestRecallStreamDeliversOrdered(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	hub, _ := pg.Learn(ctx, "hub")
	for i := 0; i < 3; i++ {
		spoke, _ := pg.Learn(ctx, "spoke")
		_, err = pg.Associate(ctx, hub.ID, spoke.ID)
		require.NoError(t, err)
	}

	var got []*core.StreamedRecallResult
	for item := range pg.RecallStream(ctx, core.RecallRequest{
		SourceID: &hub.ID,
		Options:  []memory.RecallOption{memory.WithMinRelevance(0.0)},
	}) {
		require.NoError(t, item.Error)
		got = append(got, item)
	}

	require.Len(t, got, 3)
	for i, item := range got {
		assert.Equal(t, i, item.Index)
		assert.Equal(t, i == len(got)-1, item.IsLast)
	}
}

func TestWatchConceptEvents(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	a, err := pg.Learn(ctx, "watched")
	require.NoError(t, err)

	sub := pg.WatchConcept(a.ID)
	defer sub.Close()

	_, err = pg.Access(ctx, a.ID)
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, core.UpdateAccessed, event.Type)
		assert.Equal(t, a.ID, event.ConceptID)
		require.NotNil(t, event.Concept)
		assert.NotZero(t, event.EventID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	// Events for other concepts are filtered out.
	b, err := pg.Learn(ctx, "other")
	require.NoError(t, err)
	_, err = pg.Access(ctx, b.ID)
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, a.ID, event.ConceptID)
	case <-time.After(50 * time.Millisecond):
		// nothing delivered: correct
	}
}

func TestBatchLearnAndAssociate(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	learned := pg.BatchLearn(ctx, []core.BatchLearnInput{
		{Content: "one"},
		{Content: ""},
		{Content: "three"},
	})
	require.Len(t, learned, 3)
	assert.NoError(t, learned[0].Error)
	assert.ErrorIs(t, learned[1].Error, memory.ErrInvalidArgument,
		"item failures do not abort the batch")
	assert.NoError(t, learned[2].Error)

	associated := pg.BatchAssociate(ctx, []core.BatchAssociateInput{
		{From: learned[0].Concept.ID, To: learned[2].Concept.ID},
		{From: learned[0].Concept.ID, To: memory.NewConceptID()},
	})
	require.Len(t, associated, 2)
	assert.NoError(t, associated[0].Error)
	assert.ErrorIs(t, associated[1].Error, memory.ErrNotFound)
}

func TestListConceptsPagination(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	for i := 0; i < 5; i++ {
		_, err := pg.Learn(ctx, "page item")
		require.NoError(t, err)
	}

	page1, err := pg.ListConcepts(ctx, 1, 2, "")
	require.NoError(t, err)
	assert.Len(t, page1.Concepts, 2)
	assert.Equal(t, 5, page1.TotalCount)
	assert.True(t, page1.HasMore)

	page3, err := pg.ListConcepts(ctx, 3, 2, "")
	require.NoError(t, err)
	assert.Len(t, page3.Concepts, 1)
	assert.False(t, page3.HasMore)

	// Pages never overlap.
	seen := map[memory.ConceptID]bool{}
	for p := 1; p <= 3; p++ {
		page, err := pg.ListConcepts(ctx, p, 2, "")
		require.NoError(t, err)
		for _, c := range page.Concepts {
			assert.False(t, seen[c.ID])
			seen[c.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestAssociateWithStrengthAndBidirectional(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	a, _ := pg.Learn(ctx, "A")
	b, _ := pg.Learn(ctx, "B")

	edge, err := pg.Associate(ctx, a.ID, b.ID,
		core.WithStrength(0.6), core.WithBidirectional())
	require.NoError(t, err)
	assert.Equal(t, 0.6, edge.Weight.Value())

	reverse, _, ok := pg.Graph().GetEdge(b.ID, a.ID)
	require.True(t, ok)
	assert.Equal(t, 0.6, reverse.Weight.Value())

	_, err = pg.Associate(ctx, a.ID, b.ID, core.WithStrength(1.5))
	assert.ErrorIs(t, err, memory.ErrInvalidArgument)
}

func TestDeleteConceptNotFound(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	err = pg.DeleteConcept(ctx, memory.NewConceptID())
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(context.Background())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pg.Learn(cancelled, "never stored")
	assert.ErrorIs(t, err, context.Canceled)

	page, err := pg.ListConcepts(context.Background(), 1, 10, "")
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount, "cancellation before the write is a no-op")
}

func TestStatsConsolidationRatioAndHealth(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	a, _ := pg.Learn(ctx, "A")
	b, _ := pg.Learn(ctx, "B")
	_, err = pg.Associate(ctx, a.ID, b.ID)
	require.NoError(t, err)

	stats, err := pg.Stats(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stats.ConsolidationRatio)
	assert.True(t, stats.Healthy)
	require.NotNil(t, stats.Persistence)
}

func TestSpreadingActivationThroughFacade(t *testing.T) {
	ctx := context.Background()
	pg, err := core.Open(testConfig(t))
	require.NoError(t, err)
	defer pg.Close(ctx)

	_, err = pg.SpreadingActivation(ctx, nil, 0.1, 3)
	assert.ErrorIs(t, err, memory.ErrInvalidArgument)

	a, _ := pg.Learn(ctx, "A")
	b, _ := pg.Learn(ctx, "B")
	_, err = pg.Associate(ctx, a.ID, b.ID, core.WithStrength(0.9))
	require.NoError(t, err)

	results, err := pg.SpreadingActivation(ctx, []memory.ConceptID{a.ID}, 0.1, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b.ID, results[0].Concept.ID)
}
