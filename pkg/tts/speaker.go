package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/audio"
)

// Speaker synthesizes text with a Provider and plays it with an audio
// Player. Both steps share the caller's context, so cancelling an
// utterance aborts synthesis or stops playback, whichever is running.
type Speaker struct {
	provider Provider
	player   audio.Player
	logger   *slog.Logger
}

// NewSpeaker creates a speaker.
func NewSpeaker(provider Provider, player audio.Player, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		provider: provider,
		player:   player,
		logger:   logger.With("component", "tts.speaker"),
	}
}

// Speak synthesizes and plays text, blocking until playback ends.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	start := time.Now()

	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("synthesize: %w", err)
	}
	if len(result.Audio) == 0 {
		return ErrEmptyAudio
	}

	if err := s.player.Play(ctx, result.Audio, result.Format.Player()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("play: %w", err)
	}

	s.logger.Debug("utterance complete",
		"chars", len(text),
		"synth_latency_ms", result.LatencyMs,
		"total_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close closes the provider.
func (s *Speaker) Close() error {
	return s.provider.Close()
}
