// Package core wraps the memory graph and the persistence store behind the
// PersistentGraph facade: write-through reads and writes, a dirty-key
// ledger drained by an autosave worker, change-event broadcasting, and the
// operation surface exposed to transports.
package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/leafmind/leafmind-go/pkg/memory"
	"github.com/leafmind/leafmind-go/pkg/storage"
)

// Config is the complete configuration of a persistent memory engine.
//
// Example:
//
//	cfg := core.DefaultConfig()
//	cfg.Persistence.DBPath = "./memories.db"
//	graph, err := core.Open(cfg)
type Config struct {
	// Memory contains the graph and plasticity parameters.
	Memory memory.MemoryConfig `json:"memory"`

	// Persistence contains the storage engine parameters.
	Persistence storage.PersistenceConfig `json:"persistence"`

	// APIKey is the optional key a serving layer may require from its
	// clients. The core itself never uses it.
	APIKey string `json:"api_key,omitempty"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Memory:      memory.DefaultMemoryConfig(),
		Persistence: storage.DefaultPersistenceConfig(),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	if c.Persistence.DBPath == "" {
		return memory.NewMemoryError("Validate", memory.ErrInvalidConfig)
	}
	if c.Persistence.BatchSize <= 0 {
		return memory.NewMemoryError("Validate", memory.ErrInvalidConfig)
	}
	return nil
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for a .env or .env.example file (up to 4 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses LEAFMIND_* variables into a Config
//
// Supported environment variables:
//   - LEAFMIND_DB_PATH
//   - LEAFMIND_AUTO_SAVE_INTERVAL_SECONDS
//   - LEAFMIND_BATCH_SIZE
//   - LEAFMIND_COMPRESSION (true/false)
//   - LEAFMIND_MAX_CACHE_SIZE
//   - LEAFMIND_WAL (true/false)
//   - LEAFMIND_LEARNING_RATE, LEAFMIND_DECAY_RATE
//   - LEAFMIND_CONSOLIDATION_THRESHOLD
//   - LEAFMIND_MAX_SHORT_TERM_CONNECTIONS
//   - LEAFMIND_CONSOLIDATION_INTERVAL_HOURS
//   - LEAFMIND_MAX_RECALL_RESULTS
//   - LEAFMIND_API_KEY (consumed by the serving layer only)
func LoadConfigFromEnv() (Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	cfg.Persistence.DBPath = getEnvOrDefault("LEAFMIND_DB_PATH", cfg.Persistence.DBPath)
	cfg.Persistence.AutoSaveIntervalSeconds = getEnvInt("LEAFMIND_AUTO_SAVE_INTERVAL_SECONDS", cfg.Persistence.AutoSaveIntervalSeconds)
	cfg.Persistence.BatchSize = getEnvInt("LEAFMIND_BATCH_SIZE", cfg.Persistence.BatchSize)
	cfg.Persistence.EnableCompression = getEnvBool("LEAFMIND_COMPRESSION", cfg.Persistence.EnableCompression)
	cfg.Persistence.MaxCacheSize = getEnvInt("LEAFMIND_MAX_CACHE_SIZE", cfg.Persistence.MaxCacheSize)
	cfg.Persistence.EnableWAL = getEnvBool("LEAFMIND_WAL", cfg.Persistence.EnableWAL)

	cfg.Memory.LearningRate = getEnvFloat("LEAFMIND_LEARNING_RATE", cfg.Memory.LearningRate)
	cfg.Memory.DecayRate = getEnvFloat("LEAFMIND_DECAY_RATE", cfg.Memory.DecayRate)
	cfg.Memory.ConsolidationThreshold = getEnvFloat("LEAFMIND_CONSOLIDATION_THRESHOLD", cfg.Memory.ConsolidationThreshold)
	cfg.Memory.MaxShortTermConnections = getEnvInt("LEAFMIND_MAX_SHORT_TERM_CONNECTIONS", cfg.Memory.MaxShortTermConnections)
	cfg.Memory.ConsolidationIntervalHours = getEnvInt("LEAFMIND_CONSOLIDATION_INTERVAL_HOURS", cfg.Memory.ConsolidationIntervalHours)
	cfg.Memory.MaxRecallResults = getEnvInt("LEAFMIND_MAX_RECALL_RESULTS", cfg.Memory.MaxRecallResults)

	cfg.APIKey = os.Getenv("LEAFMIND_API_KEY")

	return cfg, nil
}

// LoadConfigFromJSON loads configuration from a JSON file. Fields absent
// from the file keep their defaults.
func LoadConfigFromJSON(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, memory.NewMemoryError("LoadConfigFromJSON", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, memory.NewMemoryError("LoadConfigFromJSON", err)
	}
	return cfg, nil
}

// FindEnvFile searches for a .env (or .env.example) file in the current
// directory and up to 4 levels above it.
func FindEnvFile() (string, bool) {
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		examplePath := filepath.Join(dir, ".env.example")
		if _, err := os.Stat(examplePath); err == nil {
			return examplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
