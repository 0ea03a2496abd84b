package risk

import (
	"errors"
	"fmt"
	"maps"
)

// DefaultClassWeights ranks COCO classes by danger (higher = more dangerous).
// Unknown classes weigh 1.0.
var DefaultClassWeights = map[string]float64{
	"car":          10.0,
	"truck":        10.0,
	"bus":          10.0,
	"motorcycle":   8.0,
	"bicycle":      6.0,
	"person":       5.0,
	"dog":          4.0,
	"cat":          3.0,
	"chair":        2.0,
	"couch":        2.0,
	"potted plant": 1.0,
}

// DefaultKeywords are safety words that boost text priority.
var DefaultKeywords = []string{"stop", "danger", "warning", "caution", "exit", "entrance"}

// Config holds all tunable scoring parameters.
type Config struct {
	// Ranking
	MaxItems int // Keep only the top-N events per frame

	// Object scoring
	ClassWeights         map[string]float64
	DefaultClassWeight   float64
	ProximityWeight      float64 // Multiplier for (1 - depth)
	ApproachThreshold    float64 // Track speed above which approach is scored
	ApproachWeight       float64 // Multiplier for speed
	PathOverlapRatio     float64 // Mask overlap needed for the path bonus
	PathOverlapBonus     float64
	ObstacleOverlapRatio float64 // Mask overlap that also emits an obstacle event
	ObstaclePriority     float64

	// Text scoring
	TextBase     float64
	KeywordBonus float64
	Keywords     []string
}

// DefaultConfig returns the production scoring parameters.
func DefaultConfig() Config {
	return Config{
		MaxItems: 5,

		ClassWeights:         maps.Clone(DefaultClassWeights),
		DefaultClassWeight:   1.0,
		ProximityWeight:      5.0,
		ApproachThreshold:    0.5,
		ApproachWeight:       2.0,
		PathOverlapRatio:     0.3,
		PathOverlapBonus:     8.0,
		ObstacleOverlapRatio: 0.5,
		ObstaclePriority:     15.0,

		TextBase:     2.0,
		KeywordBonus: 5.0,
		Keywords:     append([]string(nil), DefaultKeywords...),
	}
}

// Validate checks the configuration for values that would break ranking.
func (c Config) Validate() error {
	if c.MaxItems <= 0 {
		return fmt.Errorf("risk: max items must be positive, got %d", c.MaxItems)
	}
	if c.PathOverlapRatio < 0 || c.PathOverlapRatio > 1 {
		return errors.New("risk: path overlap ratio must be within [0,1]")
	}
	if c.ObstacleOverlapRatio < 0 || c.ObstacleOverlapRatio > 1 {
		return errors.New("risk: obstacle overlap ratio must be within [0,1]")
	}
	if c.ApproachThreshold < 0 {
		return errors.New("risk: approach threshold must not be negative")
	}
	return nil
}
