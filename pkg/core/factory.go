package core

import (
	"github.com/leafmind/leafmind-go/pkg/memory"
	"github.com/leafmind/leafmind-go/pkg/storage"
)

// NewMemoryOnly creates a bare in-memory graph without persistence.
func NewMemoryOnly(cfg memory.MemoryConfig, opts ...memory.GraphOption) *memory.Graph {
	return memory.NewGraph(cfg, opts...)
}

// HighPerformanceConfig returns a configuration tuned for high-volume
// workloads: slower plasticity, a far larger short-term table, and more
// frequent, larger autosaves.
func HighPerformanceConfig(path string) Config {
	memCfg := memory.DefaultMemoryConfig()
	memCfg.LearningRate = 0.05
	memCfg.DecayRate = 0.001
	memCfg.ConsolidationThreshold = 0.7
	memCfg.MaxShortTermConnections = 100000
	memCfg.ConsolidationIntervalHours = 12
	memCfg.MaxRecallResults = 100

	persistCfg := storage.DefaultPersistenceConfig()
	persistCfg.DBPath = path
	persistCfg.AutoSaveIntervalSeconds = 120
	persistCfg.BatchSize = 5000
	persistCfg.MaxCacheSize = 500000

	return Config{Memory: memCfg, Persistence: persistCfg}
}

// ResearchConfig returns a configuration tuned for research workloads:
// moderate plasticity with long autosave intervals.
func ResearchConfig(path string) Config {
	memCfg := memory.DefaultMemoryConfig()
	memCfg.LearningRate = 0.08
	memCfg.DecayRate = 0.015
	memCfg.ConsolidationThreshold = 0.6
	memCfg.MaxShortTermConnections = 50000
	memCfg.MaxRecallResults = 50

	persistCfg := storage.DefaultPersistenceConfig()
	persistCfg.DBPath = path
	persistCfg.AutoSaveIntervalSeconds = 600
	persistCfg.BatchSize = 2000
	persistCfg.MaxCacheSize = 200000

	return Config{Memory: memCfg, Persistence: persistCfg}
}

// OpenHighPerformance opens a persistent engine with the high-performance
// preset.
func OpenHighPerformance(path string, opts ...Option) (*PersistentGraph, error) {
	return Open(HighPerformanceConfig(path), opts...)
}

// OpenResearch opens a persistent engine with the research preset.
func OpenResearch(path string, opts ...Option) (*PersistentGraph, error) {
	return Open(ResearchConfig(path), opts...)
}
