// Package audio plays synthesized speech through a local command-line player.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoPlayer is returned when the player command cannot be found.
var ErrNoPlayer = errors.New("audio: player command not found")

// Format describes the bytes handed to a Player.
type Format struct {
	Encoding   string // "mp3" or "pcm_<rate>"
	SampleRate int
	Channels   int
}

// IsPCM reports whether the format is raw signed 16-bit little-endian PCM.
func (f Format) IsPCM() bool {
	return strings.HasPrefix(f.Encoding, "pcm")
}

// Player plays one clip. Play blocks until playback finishes or ctx is
// cancelled, and stops the sound when ctx is cancelled.
type Player interface {
	Play(ctx context.Context, data []byte, f Format) error
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(ctx context.Context, data []byte, f Format) error

// Play calls fn.
func (fn PlayerFunc) Play(ctx context.Context, data []byte, f Format) error {
	return fn(ctx, data, f)
}

// CommandPlayer pipes audio into an external process such as ffplay. The
// process is bound to the Play context, so cancelling it kills playback.
type CommandPlayer struct {
	name string
	args func(Format) []string

	// WaitDelay bounds how long Play waits for the process after it is killed.
	WaitDelay time.Duration

	// Callbacks
	OnPlaybackStart func()
	OnPlaybackEnd   func()

	logger *slog.Logger

	mu      sync.Mutex
	playing bool
}

// NewFFPlay creates a player that decodes MP3 and raw PCM through ffplay.
func NewFFPlay(logger *slog.Logger) *CommandPlayer {
	return NewCommandPlayer(logger, "ffplay", FFPlayArgs)
}

// NewCommandPlayer creates a player running name with the arguments args
// returns for each clip's format. The clip is written to the process stdin.
func NewCommandPlayer(logger *slog.Logger, name string, args func(Format) []string) *CommandPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	if args == nil {
		args = func(Format) []string { return nil }
	}
	return &CommandPlayer{
		name:      name,
		args:      args,
		WaitDelay: time.Second,
		logger:    logger.With("component", "audio.player"),
	}
}

// FFPlayArgs returns ffplay arguments for reading f from stdin.
func FFPlayArgs(f Format) []string {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
	if f.IsPCM() {
		rate, channels := f.SampleRate, f.Channels
		if rate == 0 {
			rate = 24000
		}
		if channels == 0 {
			channels = 1
		}
		args = append(args, "-f", "s16le", "-ar", strconv.Itoa(rate), "-ac", strconv.Itoa(channels))
	}
	return append(args, "-i", "pipe:0")
}

// Available reports whether the player command is on PATH.
func (p *CommandPlayer) Available() error {
	if _, err := exec.LookPath(p.name); err != nil {
		return fmt.Errorf("%w: %s", ErrNoPlayer, p.name)
	}
	return nil
}

// Play writes data to a fresh player process and waits for it to exit.
func (p *CommandPlayer) Play(ctx context.Context, data []byte, f Format) error {
	if len(data) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, p.name, p.args(f)...)
	cmd.WaitDelay = p.WaitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("audio: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: start %s: %w", p.name, err)
	}

	p.setPlaying(true)
	defer p.setPlaying(false)

	start := time.Now()
	_, writeErr := stdin.Write(data)
	stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		p.logger.Debug("playback cancelled", "after_ms", time.Since(start).Milliseconds())
		return ctx.Err()
	}
	if waitErr != nil {
		return fmt.Errorf("audio: %s: %w", p.name, waitErr)
	}
	if writeErr != nil {
		return fmt.Errorf("audio: write: %w", writeErr)
	}

	p.logger.Debug("playback complete",
		"bytes", len(data),
		"encoding", f.Encoding,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *CommandPlayer) setPlaying(v bool) {
	p.mu.Lock()
	p.playing = v
	p.mu.Unlock()

	if v && p.OnPlaybackStart != nil {
		p.OnPlaybackStart()
	}
	if !v && p.OnPlaybackEnd != nil {
		p.OnPlaybackEnd()
	}
}

// IsPlaying returns whether a clip is currently playing.
func (p *CommandPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// PCMDuration returns the playback length of 16-bit PCM audio.
func PCMDuration(n int, f Format) time.Duration {
	channels := f.Channels
	if channels == 0 {
		channels = 1
	}
	if f.SampleRate == 0 {
		return 0
	}
	samples := n / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

var _ Player = (*CommandPlayer)(nil)
