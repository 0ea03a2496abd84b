package announce

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Speaker renders text as speech. Speak blocks until the utterance is done
// or ctx is cancelled, and should return promptly after cancellation.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, text string) error

// Speak calls f.
func (f SpeakerFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}

// ConsoleSpeaker writes utterances as "[TTS] <text>" lines. It is the
// fallback when no audio backend is available.
type ConsoleSpeaker struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSpeaker writes to w, or stdout when w is nil.
func NewConsoleSpeaker(w io.Writer) *ConsoleSpeaker {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSpeaker{out: w}
}

// Speak prints the text.
func (c *ConsoleSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[TTS] %s\n", text)
	return err
}

// Cue is a non-verbal alert (haptic pulse or tone) fired before urgent speech.
type Cue interface {
	Alert(ctx context.Context, msg Message) error
}

// ConsoleCue prints haptic and tone cues. It stands in for hardware.
type ConsoleCue struct {
	mu  sync.Mutex
	out io.Writer

	Intensity float64 // Haptic intensity, 0-1
	ToneHz    int
	ToneSecs  float64
}

// NewConsoleCue writes to w, or stdout when w is nil.
func NewConsoleCue(w io.Writer) *ConsoleCue {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleCue{out: w, Intensity: 1.0, ToneHz: 880, ToneSecs: 0.1}
}

// Alert prints the cue.
func (c *ConsoleCue) Alert(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.out, "[Haptic] Alert intensity: %.1f\n", c.Intensity); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "[Tone] %dHz for %gs\n", c.ToneHz, c.ToneSecs)
	return err
}

var (
	_ Speaker = (*ConsoleSpeaker)(nil)
	_ Speaker = SpeakerFunc(nil)
	_ Cue     = (*ConsoleCue)(nil)
)
