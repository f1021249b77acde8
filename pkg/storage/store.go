package storage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

// Store mirrors graph state into the key-value engine. Reads go through the
// LRU cache; writes refresh it. The store owns the key scheme and the value
// codec; callers deal in concepts, edges and timestamps.
type Store struct {
	engine Engine
	cache  *readCache
	codec  *codec
	config PersistenceConfig
	logger *zap.Logger

	conceptsStored atomic.Uint64
	edgesStored    atomic.Uint64
	saveCount      atomic.Uint64
	loadCount      atomic.Uint64

	timesMu      sync.Mutex
	lastSaveTime time.Time
	lastLoadTime time.Time
}

// NewStore wraps an engine with the cache and codec configured by config.
func NewStore(engine Engine, config PersistenceConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := newReadCache(config.MaxCacheSize)
	if err != nil {
		return nil, memory.NewMemoryError("NewStore", err)
	}
	return &Store{
		engine: engine,
		cache:  cache,
		codec:  newCodec(config.EnableCompression),
		config: config,
		logger: logger,
	}, nil
}

// Config returns the persistence configuration.
func (s *Store) Config() PersistenceConfig {
	return s.config
}

// put encodes and writes one value, refreshing the cache.
func (s *Store) put(ctx context.Context, key string, v interface{}) error {
	value, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	if err := s.engine.Put(ctx, key, value); err != nil {
		return err
	}
	s.cache.put(key, value)
	return nil
}

// get reads one value through the cache and decodes it into v. Returns
// false when the key does not exist.
func (s *Store) get(ctx context.Context, key string, v interface{}) (bool, error) {
	if value, ok := s.cache.get(key); ok {
		return true, s.codec.Decode(value, v)
	}
	value, ok, err := s.engine.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	s.cache.put(key, value)
	return true, s.codec.Decode(value, v)
}

// delete removes one key and invalidates the cache.
func (s *Store) delete(ctx context.Context, key string) error {
	if err := s.engine.Delete(ctx, key); err != nil {
		return err
	}
	s.cache.remove(key)
	return nil
}

// StoreConcept persists a concept.
func (s *Store) StoreConcept(ctx context.Context, concept *memory.Concept) error {
	if err := s.put(ctx, ConceptKey(concept.ID), concept); err != nil {
		return err
	}
	s.conceptsStored.Add(1)
	return nil
}

// LoadConcept reads a concept. Returns ErrNotFound when absent.
func (s *Store) LoadConcept(ctx context.Context, id memory.ConceptID) (*memory.Concept, error) {
	var concept memory.Concept
	ok, err := s.get(ctx, ConceptKey(id), &concept)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, memory.NewMemoryError("LoadConcept", memory.ErrNotFound)
	}
	return &concept, nil
}

// DeleteConcept removes a concept record.
func (s *Store) DeleteConcept(ctx context.Context, id memory.ConceptID) error {
	return s.delete(ctx, ConceptKey(id))
}

// StoreEdge persists an edge under its zone's key family.
func (s *Store) StoreEdge(ctx context.Context, edge *memory.SynapticEdge, zone memory.Zone) error {
	if err := s.put(ctx, EdgeKey(edge.From, edge.To, zone), edge); err != nil {
		return err
	}
	s.edgesStored.Add(1)
	return nil
}

// LoadEdge reads an edge from the given zone. Returns ErrNotFound when
// absent.
func (s *Store) LoadEdge(ctx context.Context, from, to memory.ConceptID, zone memory.Zone) (*memory.SynapticEdge, error) {
	var edge memory.SynapticEdge
	ok, err := s.get(ctx, EdgeKey(from, to, zone), &edge)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, memory.NewMemoryError("LoadEdge", memory.ErrNotFound)
	}
	return &edge, nil
}

// DeleteEdge removes an edge record from the given zone.
func (s *Store) DeleteEdge(ctx context.Context, from, to memory.ConceptID, zone memory.Zone) error {
	return s.delete(ctx, EdgeKey(from, to, zone))
}

// StoreWorkingEntry persists a working-memory timestamp.
func (s *Store) StoreWorkingEntry(ctx context.Context, id memory.ConceptID, t time.Time) error {
	return s.put(ctx, WorkingKey(id), t)
}

// DeleteWorkingEntry removes a working-memory record.
func (s *Store) DeleteWorkingEntry(ctx context.Context, id memory.ConceptID) error {
	return s.delete(ctx, WorkingKey(id))
}

// StoreMemoryConfig persists the memory configuration.
func (s *Store) StoreMemoryConfig(ctx context.Context, cfg *memory.MemoryConfig) error {
	return s.put(ctx, KeyConfig, cfg)
}

// LoadMemoryConfig reads the stored memory configuration, or nil when none
// has been stored yet.
func (s *Store) LoadMemoryConfig(ctx context.Context) (*memory.MemoryConfig, error) {
	var cfg memory.MemoryConfig
	ok, err := s.get(ctx, KeyConfig, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

// StoreMetaTime persists a named timestamp meta record.
func (s *Store) StoreMetaTime(ctx context.Context, name string, t time.Time) error {
	return s.put(ctx, MetaKey(name), t)
}

// LoadMetaTime reads a named timestamp meta record.
func (s *Store) LoadMetaTime(ctx context.Context, name string) (time.Time, bool, error) {
	var t time.Time
	ok, err := s.get(ctx, MetaKey(name), &t)
	return t, ok, err
}

// ConceptOp builds a batch put for a concept.
func (s *Store) ConceptOp(concept *memory.Concept) (Op, error) {
	value, err := s.codec.Encode(concept)
	return Op{Key: ConceptKey(concept.ID), Value: value}, err
}

// EdgeOp builds a batch put for an edge in the given zone.
func (s *Store) EdgeOp(edge *memory.SynapticEdge, zone memory.Zone) (Op, error) {
	value, err := s.codec.Encode(edge)
	return Op{Key: EdgeKey(edge.From, edge.To, zone), Value: value}, err
}

// WorkingOp builds a batch put for a working-memory entry.
func (s *Store) WorkingOp(id memory.ConceptID, t time.Time) (Op, error) {
	value, err := s.codec.Encode(t)
	return Op{Key: WorkingKey(id), Value: value}, err
}

// DeleteOp builds a batch delete for an arbitrary key.
func (s *Store) DeleteOp(key string) Op {
	return Op{Key: key, Delete: true}
}

// Apply runs a mixed batch in chunks of the configured batch size, each
// chunk atomically, and keeps the cache coherent. A failing chunk stops
// Apply; chunks before it stay written.
func (s *Store) Apply(ctx context.Context, ops []Op) error {
	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(ops)
	}
	for start := 0; start < len(ops); start += batchSize {
		end := start + batchSize
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[start:end]
		if err := s.engine.ApplyBatch(ctx, chunk); err != nil {
			return err
		}
		for _, op := range chunk {
			if op.Delete {
				s.cache.remove(op.Key)
			} else {
				s.cache.put(op.Key, op.Value)
				switch {
				case strings.HasPrefix(op.Key, PrefixConcept):
					s.conceptsStored.Add(1)
				case strings.HasPrefix(op.Key, PrefixShortTerm), strings.HasPrefix(op.Key, PrefixLongTerm):
					s.edgesStored.Add(1)
				}
			}
		}
	}
	s.noteSave(len(ops))
	return nil
}

func (s *Store) noteSave(n int) {
	if n == 0 {
		return
	}
	s.saveCount.Add(1)
	s.timesMu.Lock()
	s.lastSaveTime = time.Now().UTC()
	s.timesMu.Unlock()
}

// LoadAllConcepts scans every stored concept.
func (s *Store) LoadAllConcepts(ctx context.Context) (map[memory.ConceptID]*memory.Concept, error) {
	concepts := make(map[memory.ConceptID]*memory.Concept)
	err := s.engine.Scan(ctx, PrefixConcept, func(_ string, value []byte) error {
		var concept memory.Concept
		if err := s.codec.Decode(value, &concept); err != nil {
			return err
		}
		concepts[concept.ID] = &concept
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.noteLoad()
	s.logger.Debug("loaded concepts", zap.Int("count", len(concepts)))
	return concepts, nil
}

// LoadAllEdges scans both edge families.
func (s *Store) LoadAllEdges(ctx context.Context) (shortTerm, longTerm map[memory.EdgeKey]*memory.SynapticEdge, err error) {
	shortTerm = make(map[memory.EdgeKey]*memory.SynapticEdge)
	longTerm = make(map[memory.EdgeKey]*memory.SynapticEdge)

	scan := func(prefix string, into map[memory.EdgeKey]*memory.SynapticEdge) error {
		return s.engine.Scan(ctx, prefix, func(_ string, value []byte) error {
			var edge memory.SynapticEdge
			if err := s.codec.Decode(value, &edge); err != nil {
				return err
			}
			into[edge.Key()] = &edge
			return nil
		})
	}
	if err = scan(PrefixShortTerm, shortTerm); err != nil {
		return nil, nil, err
	}
	if err = scan(PrefixLongTerm, longTerm); err != nil {
		return nil, nil, err
	}
	s.noteLoad()
	s.logger.Debug("loaded edges",
		zap.Int("short_term", len(shortTerm)), zap.Int("long_term", len(longTerm)))
	return shortTerm, longTerm, nil
}

// LoadAllWorkingEntries scans the working-memory family.
func (s *Store) LoadAllWorkingEntries(ctx context.Context) (map[memory.ConceptID]time.Time, error) {
	entries := make(map[memory.ConceptID]time.Time)
	err := s.engine.Scan(ctx, PrefixWorking, func(key string, value []byte) error {
		id, ok := ParseWorkingKey(key)
		if !ok {
			return nil // foreign key shape, skip
		}
		var t time.Time
		if err := s.codec.Decode(value, &t); err != nil {
			return err
		}
		entries[id] = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ScanKeys visits every stored key with the given prefix.
func (s *Store) ScanKeys(ctx context.Context, prefix string, fn func(key string) error) error {
	return s.engine.Scan(ctx, prefix, func(key string, _ []byte) error {
		return fn(key)
	})
}

func (s *Store) noteLoad() {
	s.loadCount.Add(1)
	s.timesMu.Lock()
	s.lastLoadTime = time.Now().UTC()
	s.timesMu.Unlock()
}

// Backup snapshots the database to path.
func (s *Store) Backup(ctx context.Context, path string) error {
	return s.engine.Backup(ctx, path)
}

// Restore replaces the database with the snapshot at path and drops the
// cache, which may hold pre-restore values.
func (s *Store) Restore(ctx context.Context, path string) error {
	if err := s.engine.Restore(ctx, path); err != nil {
		return err
	}
	s.cache.clear()
	return nil
}

// Compact reclaims space in the engine.
func (s *Store) Compact(ctx context.Context) error {
	return s.engine.Compact(ctx)
}

// ClearCache drops every cached entry and resets the hit counters.
func (s *Store) ClearCache() {
	s.cache.clear()
}

// Stats reports persistence counters, the database footprint and the cache
// hit rate.
func (s *Store) Stats(ctx context.Context) PersistenceStats {
	s.timesMu.Lock()
	lastSave, lastLoad := s.lastSaveTime, s.lastLoadTime
	s.timesMu.Unlock()

	stats := PersistenceStats{
		TotalConceptsStored: s.conceptsStored.Load(),
		TotalEdgesStored:    s.edgesStored.Load(),
		LastSaveTime:        lastSave,
		LastLoadTime:        lastLoad,
		SaveCount:           s.saveCount.Load(),
		LoadCount:           s.loadCount.Load(),
		CacheHitRate:        s.cache.hitRate(),
	}
	if size, err := s.engine.SizeBytes(); err == nil {
		stats.DatabaseSizeBytes = size
	}
	if n, err := s.engine.KeyCount(ctx); err == nil {
		stats.TotalKeys = n
	}
	return stats
}

// Close closes the underlying engine.
func (s *Store) Close() error {
	return s.engine.Close()
}
