package worldmodel

import (
	"errors"
	"time"
)

// Config holds gate thresholds and retention windows.
type Config struct {
	// Cooldown is the minimum time between announcements of one identity.
	Cooldown time.Duration

	// TrackTTL and TextTTL bound how long snapshots and sightings are kept.
	TrackTTL time.Duration
	TextTTL  time.Duration

	DangerDistance    float64 // Relative depth below which an object is in the danger zone
	DangerPriority    float64 // Priority above which an object is in the danger zone
	ApproachThreshold float64 // Velocity magnitude that counts as fast approach
	TextPriority      float64 // Priority a novel text needs to be spoken

	DistanceDelta float64 // Relative depth change that counts as significant
	LocationDelta float64 // Per-axis pixel movement that counts as significant
	HeadingDelta  float64 // Degrees of heading change that count as significant
}

// DefaultConfig returns production gate settings.
func DefaultConfig() Config {
	return Config{
		Cooldown: 2 * time.Second,
		TrackTTL: 5 * time.Second,
		TextTTL:  5 * time.Second,

		DangerDistance:    0.3,
		DangerPriority:    10.0,
		ApproachThreshold: 0.5,
		TextPriority:      5.0,

		DistanceDelta: 0.3,
		LocationDelta: 50,
		HeadingDelta:  15,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Cooldown < 0 {
		return errors.New("worldmodel: cooldown must not be negative")
	}
	if c.TrackTTL <= 0 || c.TextTTL <= 0 {
		return errors.New("worldmodel: retention windows must be positive")
	}
	return nil
}
