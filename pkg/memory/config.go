package memory

import "time"

// MemoryConfig contains the tunable parameters of the memory graph.
//
// A config is immutable once a graph has been created from it.
//
// Example:
//
//	cfg := memory.DefaultMemoryConfig()
//	cfg.ConsolidationThreshold = 0.3
//	graph := memory.NewGraph(cfg)
type MemoryConfig struct {
	// LearningRate is the potentiation rate applied per activation.
	LearningRate float64 `json:"learning_rate"`

	// DecayRate is the depression rate applied per decay cycle.
	DecayRate float64 `json:"decay_rate"`

	// ConsolidationThreshold is the weight a short-term edge needs for the
	// weight criterion of promotion to long-term storage.
	ConsolidationThreshold float64 `json:"consolidation_threshold"`

	// MaxShortTermConnections caps the short-term edge table. When the cap
	// is hit, a forced consolidation runs before new edges are accepted.
	MaxShortTermConnections int `json:"max_short_term_connections"`

	// ConsolidationIntervalHours is how often automatic consolidation is
	// due, like nightly sleep.
	ConsolidationIntervalHours int `json:"consolidation_interval_hours"`

	// MaxRecallResults is the default result cap for recall operations.
	MaxRecallResults int `json:"max_recall_results"`

	// LTPRecencyWindow bounds which edges count as recently accessed
	// during an LTP pass.
	LTPRecencyWindow time.Duration `json:"ltp_recency_window"`

	// MinActivationCount is the activation-count criterion for promotion.
	MinActivationCount uint64 `json:"min_activation_count"`

	// PromotionRecentWindow is the recent-usage criterion for promotion.
	PromotionRecentWindow time.Duration `json:"promotion_recent_window"`

	// PromotionMaturity is the minimum edge age for promotion.
	PromotionMaturity time.Duration `json:"promotion_maturity"`

	// MinConceptAccess is the endpoint access-count criterion for
	// promotion.
	MinConceptAccess uint64 `json:"min_concept_access"`

	// ReconsolidationPenalty is the bounded weight reduction applied when
	// a long-term edge is returned to short-term storage.
	ReconsolidationPenalty float64 `json:"reconsolidation_penalty"`

	// RecencyBoostFactor is the γ in the recall boost 1 + γ·recency.
	RecencyBoostFactor float64 `json:"recency_boost_factor"`

	// RecencyBoostWindow is the window over which the recall recency
	// signal decays linearly to zero.
	RecencyBoostWindow time.Duration `json:"recency_boost_window"`
}

// DefaultMemoryConfig returns the standard configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		LearningRate:               0.1,  // 10% strengthening per activation
		DecayRate:                  0.01, // 1% decay per cycle
		ConsolidationThreshold:     0.5,
		MaxShortTermConnections:    10000,
		ConsolidationIntervalHours: 24, // daily consolidation like sleep
		MaxRecallResults:           20,
		LTPRecencyWindow:           time.Hour,
		MinActivationCount:         3,
		PromotionRecentWindow:      7 * 24 * time.Hour,
		PromotionMaturity:          time.Hour,
		MinConceptAccess:           5,
		ReconsolidationPenalty:     0.1,
		RecencyBoostFactor:         0.5,
		RecencyBoostWindow:         24 * time.Hour,
	}
}

// Validate checks the configuration for out-of-domain values.
func (c *MemoryConfig) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.DecayRate < 0 || c.DecayRate > 1 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.ConsolidationThreshold < WeightMin || c.ConsolidationThreshold > WeightMax {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.MaxShortTermConnections <= 0 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	return nil
}

// ConsolidationInterval returns the consolidation interval as a duration.
func (c *MemoryConfig) ConsolidationInterval() time.Duration {
	return time.Duration(c.ConsolidationIntervalHours) * time.Hour
}

// ForgettingConfig controls a forgetting cycle.
type ForgettingConfig struct {
	// ConceptIsolationThreshold is the minimum incident edge count a
	// concept needs to survive isolation pruning.
	ConceptIsolationThreshold int `json:"concept_isolation_threshold"`

	// UnusedConceptDays is the age after which concepts with no active
	// incident edges are removed.
	UnusedConceptDays int `json:"unused_concept_days"`

	// WeakConnectionThreshold is the weight below which edges are pruned.
	WeakConnectionThreshold float64 `json:"weak_connection_threshold"`

	// AggressiveForgetting enables the additional short-term halving pass.
	AggressiveForgetting bool `json:"aggressive_forgetting"`
}

// DefaultForgettingConfig returns the standard forgetting policy.
func DefaultForgettingConfig() ForgettingConfig {
	return ForgettingConfig{
		ConceptIsolationThreshold: 1,
		UnusedConceptDays:         30,
		WeakConnectionThreshold:   0.05,
		AggressiveForgetting:      false,
	}
}
