package announce

import (
	"errors"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/scene"
)

// Config holds scheduler settings.
type Config struct {
	// InterruptWait bounds how long the scheduler waits for a cancelled
	// utterance to stop before starting the next one.
	InterruptWait time.Duration

	// FrameWidth is used to describe where an event is in descriptive mode.
	FrameWidth int

	// Mode is the initial output mode.
	Mode scene.Mode

	// HighPriority and NormalPriority map risk priority to message tiers.
	HighPriority   float64
	NormalPriority float64
}

// DefaultConfig returns production scheduler settings.
func DefaultConfig() Config {
	return Config{
		InterruptWait:  2 * time.Second,
		FrameWidth:     640,
		Mode:           scene.ModeNavigation,
		HighPriority:   10.0,
		NormalPriority: 5.0,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.InterruptWait <= 0 {
		return errors.New("announce: interrupt wait must be positive")
	}
	if c.FrameWidth <= 0 {
		return errors.New("announce: frame width must be positive")
	}
	if _, err := scene.ParseMode(string(c.Mode)); err != nil {
		return err
	}
	return nil
}
