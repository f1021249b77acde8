package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/leafmind/leafmind-go/pkg/memory"
	"github.com/leafmind/leafmind-go/pkg/storage"
	"github.com/leafmind/leafmind-go/pkg/storage/sqlite"
)

// dirtyKind classifies an entry in the dirty-key ledger.
type dirtyKind uint8

const (
	dirtyConcept dirtyKind = iota
	dirtyEdge
	dirtyWorking
)

// dirtyKey identifies one graph entry whose persisted mirror is stale. Edge
// entries carry both endpoints; the drain decides put-versus-delete and the
// zone by re-reading the live graph.
type dirtyKey struct {
	kind dirtyKind
	a    memory.ConceptID
	b    memory.ConceptID
}

// PersistentGraph is the write-through persistent facade over a memory
// graph and a storage engine.
//
// Reads serve from memory, falling back to storage on miss. Writes mutate
// memory first, then mark the affected keys dirty; the autosave worker (or
// an explicit ForceSave) drains dirty keys into the store with batched
// writes. Writers never wait for I/O.
//
// If the storage engine starts failing, the facade degrades gracefully:
// memory operations keep succeeding, dirty keys accumulate, the autosave
// worker retries with exponential backoff, and Healthy() turns false until
// a drain succeeds again.
type PersistentGraph struct {
	graph  *memory.Graph
	store  *storage.Store
	config Config
	logger *zap.Logger

	dirty    *xsync.MapOf[dirtyKey, struct{}]
	fullSync atomic.Bool

	bus *eventBus

	degraded atomic.Bool

	saveMu sync.Mutex // serializes drains, full saves and restores

	autosaveStop chan struct{}
	autosaveDone chan struct{}
	closeOnce    sync.Once
}

// Option configures a PersistentGraph.
type Option func(*PersistentGraph)

// WithLogger sets the facade's logger (and the graph's).
func WithLogger(logger *zap.Logger) Option {
	return func(pg *PersistentGraph) {
		if logger != nil {
			pg.logger = logger
		}
	}
}

// Open creates a persistent memory engine at cfg.Persistence.DBPath.
//
// If the store already holds a dataset, its memory configuration wins over
// cfg.Memory and the concepts and edges are loaded back into memory. The
// working-memory ledger is deliberately not restored: working memory is
// transient. Autosave starts when the configured interval is non-zero.
func Open(cfg Config, opts ...Option) (*PersistentGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pg := &PersistentGraph{
		config:       cfg,
		logger:       zap.NewNop(),
		dirty:        xsync.NewMapOf[dirtyKey, struct{}](),
		autosaveStop: make(chan struct{}),
		autosaveDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pg)
	}

	engine, err := sqlite.Open(cfg.Persistence.DBPath, cfg.Persistence.EnableWAL)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(engine, cfg.Persistence, pg.logger)
	if err != nil {
		engine.Close()
		return nil, err
	}
	pg.store = store

	ctx := context.Background()

	memCfg := cfg.Memory
	if stored, err := store.LoadMemoryConfig(ctx); err == nil && stored != nil {
		pg.logger.Info("loaded existing memory configuration")
		memCfg = *stored
	} else if err == nil {
		if err := store.StoreMemoryConfig(ctx, &memCfg); err != nil {
			store.Close()
			return nil, err
		}
	} else {
		store.Close()
		return nil, err
	}
	pg.config.Memory = memCfg

	pg.graph = memory.NewGraph(memCfg, memory.WithLogger(pg.logger))
	pg.bus, err = newEventBus()
	if err != nil {
		store.Close()
		return nil, err
	}

	if err := pg.loadFromStorage(ctx); err != nil {
		store.Close()
		return nil, err
	}

	if cfg.Persistence.AutoSaveIntervalSeconds > 0 {
		go pg.autosaveLoop()
	} else {
		close(pg.autosaveDone)
	}

	pg.logger.Info("persistent memory graph initialized",
		zap.String("db_path", cfg.Persistence.DBPath))
	return pg, nil
}

// OpenWithDefaults creates a persistent engine at path using default
// configuration.
func OpenWithDefaults(path string, opts ...Option) (*PersistentGraph, error) {
	cfg := DefaultConfig()
	cfg.Persistence.DBPath = path
	return Open(cfg, opts...)
}

// Graph exposes the underlying memory graph for advanced operations. The
// graph is safe for concurrent use, but mutations made directly on it are
// not tracked for persistence until the next ForceSave.
func (pg *PersistentGraph) Graph() *memory.Graph {
	return pg.graph
}

// Store exposes the underlying persistence store.
func (pg *PersistentGraph) Store() *storage.Store {
	return pg.store
}

// Config returns the engine configuration in effect.
func (pg *PersistentGraph) Config() Config {
	return pg.config
}

// Healthy reports whether the last persistence operation succeeded. While
// false, memory operations keep working and dirty keys accumulate.
func (pg *PersistentGraph) Healthy() bool {
	return !pg.degraded.Load()
}

// loadFromStorage rebuilds the in-memory graph from the store.
func (pg *PersistentGraph) loadFromStorage(ctx context.Context) error {
	concepts, err := pg.store.LoadAllConcepts(ctx)
	if err != nil {
		return err
	}
	for _, c := range concepts {
		pg.graph.RestoreConcept(c)
	}

	shortTerm, longTerm, err := pg.store.LoadAllEdges(ctx)
	if err != nil {
		return err
	}
	for _, e := range shortTerm {
		pg.graph.RestoreEdge(e, memory.ZoneShortTerm)
	}
	for _, e := range longTerm {
		pg.graph.RestoreEdge(e, memory.ZoneLongTerm)
	}

	if t, ok, err := pg.store.LoadMetaTime(ctx, storage.MetaLastConsolidation); err != nil {
		return err
	} else if ok {
		pg.graph.RestoreLastConsolidation(t)
	}

	stats := pg.graph.Stats()
	pg.logger.Info("loaded graph from storage",
		zap.Int("concepts", stats.TotalConcepts),
		zap.Int("short_term", stats.ShortTermConnections),
		zap.Int("long_term", stats.LongTermConnections))
	return nil
}

// markConceptDirty records that a concept (and its working-memory entry)
// needs persisting.
func (pg *PersistentGraph) markConceptDirty(id memory.ConceptID) {
	pg.dirty.Store(dirtyKey{kind: dirtyConcept, a: id}, struct{}{})
	pg.dirty.Store(dirtyKey{kind: dirtyWorking, a: id}, struct{}{})
}

// markEdgeDirty records that an edge pair needs persisting.
func (pg *PersistentGraph) markEdgeDirty(from, to memory.ConceptID) {
	pg.dirty.Store(dirtyKey{kind: dirtyEdge, a: from, b: to}, struct{}{})
}

// markEdgesOfDirty records every edge incident on a concept as dirty.
func (pg *PersistentGraph) markEdgesOfDirty(id memory.ConceptID) {
	for _, ze := range pg.graph.IncidentEdges(id) {
		pg.markEdgeDirty(ze.Edge.From, ze.Edge.To)
	}
}

// DirtyCount reports the number of keys awaiting persistence.
func (pg *PersistentGraph) DirtyCount() int {
	return pg.dirty.Size()
}

// opsForDirty converts one dirty entry into store ops by re-reading the
// live graph: present entries become puts in their current zone, absent
// entries become deletes (an edge deletes both zone keys, so a promoted
// edge's old short-term key is cleaned up).
func (pg *PersistentGraph) opsForDirty(k dirtyKey, wm map[memory.ConceptID]time.Time) ([]storage.Op, error) {
	switch k.kind {
	case dirtyConcept:
		if c, ok := pg.graph.GetConcept(k.a); ok {
			op, err := pg.store.ConceptOp(c)
			if err != nil {
				return nil, err
			}
			return []storage.Op{op}, nil
		}
		return []storage.Op{pg.store.DeleteOp(storage.ConceptKey(k.a))}, nil

	case dirtyWorking:
		if t, ok := wm[k.a]; ok {
			op, err := pg.store.WorkingOp(k.a, t)
			if err != nil {
				return nil, err
			}
			return []storage.Op{op}, nil
		}
		return []storage.Op{pg.store.DeleteOp(storage.WorkingKey(k.a))}, nil

	case dirtyEdge:
		edge, zone, ok := pg.graph.GetEdge(k.a, k.b)
		if !ok {
			return []storage.Op{
				pg.store.DeleteOp(storage.EdgeKey(k.a, k.b, memory.ZoneShortTerm)),
				pg.store.DeleteOp(storage.EdgeKey(k.a, k.b, memory.ZoneLongTerm)),
			}, nil
		}
		op, err := pg.store.EdgeOp(edge, zone)
		if err != nil {
			return nil, err
		}
		other := memory.ZoneShortTerm
		if zone == memory.ZoneShortTerm {
			other = memory.ZoneLongTerm
		}
		return []storage.Op{op, pg.store.DeleteOp(storage.EdgeKey(k.a, k.b, other))}, nil
	}
	return nil, nil
}

// drainDirty flushes the dirty ledger into the store. Keys that fail to
// drain are re-marked so a later pass retries them.
func (pg *PersistentGraph) drainDirty(ctx context.Context) error {
	pg.saveMu.Lock()
	defer pg.saveMu.Unlock()

	if pg.fullSync.Swap(false) {
		if err := pg.saveAllLocked(ctx); err != nil {
			pg.fullSync.Store(true)
			return err
		}
		return nil
	}

	keys := make([]dirtyKey, 0, pg.dirty.Size())
	pg.dirty.Range(func(k dirtyKey, _ struct{}) bool {
		keys = append(keys, k)
		return true
	})
	if len(keys) == 0 {
		return nil
	}

	wm := pg.graph.WorkingMemorySnapshot()
	ops := make([]storage.Op, 0, len(keys))
	for _, k := range keys {
		pg.dirty.Delete(k)
		kops, err := pg.opsForDirty(k, wm)
		if err != nil {
			for _, rk := range keys {
				pg.dirty.Store(rk, struct{}{})
			}
			return err
		}
		ops = append(ops, kops...)
	}

	if err := pg.store.Apply(ctx, ops); err != nil {
		for _, k := range keys {
			pg.dirty.Store(k, struct{}{})
		}
		return err
	}

	pg.logger.Debug("drained dirty keys", zap.Int("keys", len(keys)))
	return nil
}

// saveAllLocked writes the complete in-memory state and removes stale
// store keys, so afterwards a full scan of the store yields exactly the
// graph. Callers hold saveMu.
func (pg *PersistentGraph) saveAllLocked(ctx context.Context) error {
	// Everything dirty is covered by the full write.
	pg.dirty.Clear()

	live := make(map[string]struct{})
	var ops []storage.Op

	var encodeErr error
	pg.graph.RangeConcepts(func(c *memory.Concept) bool {
		op, err := pg.store.ConceptOp(c)
		if err != nil {
			encodeErr = err
			return false
		}
		live[op.Key] = struct{}{}
		ops = append(ops, op)
		return true
	})
	if encodeErr != nil {
		return encodeErr
	}

	for _, zone := range []memory.Zone{memory.ZoneShortTerm, memory.ZoneLongTerm} {
		pg.graph.RangeEdges(zone, func(e *memory.SynapticEdge) bool {
			op, err := pg.store.EdgeOp(e, zone)
			if err != nil {
				encodeErr = err
				return false
			}
			live[op.Key] = struct{}{}
			ops = append(ops, op)
			return true
		})
		if encodeErr != nil {
			return encodeErr
		}
	}

	for id, t := range pg.graph.WorkingMemorySnapshot() {
		op, err := pg.store.WorkingOp(id, t)
		if err != nil {
			return err
		}
		live[op.Key] = struct{}{}
		ops = append(ops, op)
	}

	// Remove keys whose in-memory counterpart is gone.
	for _, prefix := range []string{
		storage.PrefixConcept, storage.PrefixShortTerm,
		storage.PrefixLongTerm, storage.PrefixWorking,
	} {
		err := pg.store.ScanKeys(ctx, prefix, func(key string) error {
			if _, ok := live[key]; !ok {
				ops = append(ops, pg.store.DeleteOp(key))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := pg.store.Apply(ctx, ops); err != nil {
		return err
	}
	if err := pg.store.StoreMemoryConfig(ctx, &pg.config.Memory); err != nil {
		return err
	}
	if err := pg.store.StoreMetaTime(ctx, storage.MetaLastConsolidation, pg.graph.LastConsolidation()); err != nil {
		return err
	}

	pg.logger.Info("saved graph to storage", zap.Int("ops", len(ops)))
	return nil
}

// ForceSave synchronously writes the complete in-memory state to the
// store. After it returns successfully, the store mirrors memory exactly.
func (pg *PersistentGraph) ForceSave(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pg.saveMu.Lock()
	defer pg.saveMu.Unlock()

	if err := pg.saveAllLocked(ctx); err != nil {
		pg.degraded.Store(true)
		return err
	}
	pg.degraded.Store(false)
	return nil
}

// Save drains pending dirty keys. After a consolidation, forgetting or
// sleep pass has flagged a full sync, it rewrites the whole store instead.
func (pg *PersistentGraph) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pg.drainDirty(ctx); err != nil {
		pg.degraded.Store(true)
		return err
	}
	pg.degraded.Store(false)
	return nil
}

// Backup flushes pending state and snapshots the database to path. The
// engine keeps serving while the snapshot is taken.
func (pg *PersistentGraph) Backup(ctx context.Context, path string) error {
	if err := pg.ForceSave(ctx); err != nil {
		return err
	}
	if err := pg.store.Backup(ctx, path); err != nil {
		return err
	}
	pg.logger.Info("backup completed", zap.String("path", path))
	return nil
}

// Restore replaces the current state with the snapshot at path: the store
// is restored atomically, memory is emptied and reloaded. On failure the
// previous state remains visible.
func (pg *PersistentGraph) Restore(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pg.saveMu.Lock()
	defer pg.saveMu.Unlock()

	if err := pg.store.Restore(ctx, path); err != nil {
		return err
	}

	pg.dirty.Clear()
	pg.fullSync.Store(false)
	pg.graph.Clear()
	if err := pg.loadFromStorage(ctx); err != nil {
		return err
	}

	pg.logger.Info("restore completed", zap.String("path", path))
	return nil
}

// Load discards the in-memory graph (including pending dirty keys) and
// reloads it from the store.
func (pg *PersistentGraph) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pg.saveMu.Lock()
	defer pg.saveMu.Unlock()

	pg.dirty.Clear()
	pg.fullSync.Store(false)
	pg.graph.Clear()
	return pg.loadFromStorage(ctx)
}

// Compact reclaims unused space in the storage engine.
func (pg *PersistentGraph) Compact(ctx context.Context) error {
	return pg.store.Compact(ctx)
}

// Close drains pending dirty keys, stops the autosave worker, closes the
// event bus and releases the store.
func (pg *PersistentGraph) Close(ctx context.Context) error {
	var err error
	pg.closeOnce.Do(func() {
		close(pg.autosaveStop)
		<-pg.autosaveDone

		err = pg.drainDirty(ctx)
		pg.bus.close()
		if cerr := pg.store.Close(); err == nil {
			err = cerr
		}
		pg.logger.Info("persistent memory graph closed")
	})
	return err
}
