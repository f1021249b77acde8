// Package storage mirrors the memory graph into an embedded ordered
// key-value engine with a version-prefixed binary codec, an LRU
// read-through cache, batched writes and snapshot backup.
package storage

import "time"

// PersistenceConfig configures the persistence store.
//
// A config is immutable once a store has been opened with it.
type PersistenceConfig struct {
	// DBPath is the database file path.
	DBPath string `json:"db_path"`

	// AutoSaveIntervalSeconds is the autosave period; 0 disables autosave
	// (manual save only).
	AutoSaveIntervalSeconds int `json:"auto_save_interval_seconds"`

	// BatchSize is the chunk size for bulk writes.
	BatchSize int `json:"batch_size"`

	// EnableCompression compresses stored values.
	EnableCompression bool `json:"enable_compression"`

	// MaxCacheSize bounds the read cache entry count.
	MaxCacheSize int `json:"max_cache_size"`

	// EnableWAL turns on write-ahead logging for crash recovery.
	EnableWAL bool `json:"enable_wal"`
}

// DefaultPersistenceConfig returns the standard persistence settings.
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		DBPath:                  "leafmind.db",
		AutoSaveIntervalSeconds: 300, // 5 minutes
		BatchSize:               1000,
		EnableCompression:       true,
		MaxCacheSize:            100000,
		EnableWAL:               true,
	}
}

// AutoSaveInterval returns the autosave period as a duration.
func (c *PersistenceConfig) AutoSaveInterval() time.Duration {
	return time.Duration(c.AutoSaveIntervalSeconds) * time.Second
}

// PersistenceStats reports persistence activity and database footprint.
type PersistenceStats struct {
	// TotalConceptsStored counts concept writes since open.
	TotalConceptsStored uint64 `json:"total_concepts_stored"`

	// TotalEdgesStored counts edge writes since open.
	TotalEdgesStored uint64 `json:"total_edges_stored"`

	// LastSaveTime is when the store last completed a write batch.
	LastSaveTime time.Time `json:"last_save_time"`

	// LastLoadTime is when the store last completed a bulk load.
	LastLoadTime time.Time `json:"last_load_time"`

	// SaveCount counts completed write batches.
	SaveCount uint64 `json:"save_count"`

	// LoadCount counts completed bulk loads.
	LoadCount uint64 `json:"load_count"`

	// DatabaseSizeBytes is the on-disk footprint.
	DatabaseSizeBytes int64 `json:"database_size_bytes"`

	// TotalKeys is the number of stored keys.
	TotalKeys int64 `json:"total_keys"`

	// CacheHitRate is the read-cache hit ratio in [0, 1].
	CacheHitRate float64 `json:"cache_hit_rate"`
}
