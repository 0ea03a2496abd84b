package pipeline

import (
	"errors"
	"time"
)

// Config holds orchestration settings.
type Config struct {
	// DescribeEvery asks the describer for a richer description on every
	// Nth frame. Zero disables descriptions.
	DescribeEvery int

	// DescribeTimeout bounds one Describe call.
	DescribeTimeout time.Duration

	// AnswerTimeout bounds one question.
	AnswerTimeout time.Duration

	// StatusEvery logs a status line every Nth frame. Zero disables it.
	StatusEvery int

	// FrameInterval paces Run. Zero processes frames as fast as the source
	// yields them.
	FrameInterval time.Duration
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		DescribeEvery:   10,
		DescribeTimeout: 2 * time.Second,
		AnswerTimeout:   5 * time.Second,
		StatusEvery:     30,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DescribeEvery < 0 || c.StatusEvery < 0 {
		return errors.New("pipeline: frame periods must be >= 0")
	}
	if c.DescribeEvery > 0 && c.DescribeTimeout <= 0 {
		return errors.New("pipeline: describe timeout must be positive")
	}
	if c.AnswerTimeout <= 0 {
		return errors.New("pipeline: answer timeout must be positive")
	}
	if c.FrameInterval < 0 {
		return errors.New("pipeline: frame interval must be >= 0")
	}
	return nil
}
