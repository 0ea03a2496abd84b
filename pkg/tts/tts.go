// Package tts turns announcement text into audio.
//
// Providers synthesize speech (OpenAI TTS over HTTP, or a mock for tests)
// and can be chained for fallback. Speaker joins a Provider to an audio
// Player so the announcement scheduler can drive real speech:
//
//	provider, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	speaker := tts.NewSpeaker(provider, audio.NewFFPlay(logger), logger)
//	_ = speaker.Speak(ctx, "Stop. Car on the left, very close")
package tts

import (
	"context"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/audio"
)

// Provider synthesizes speech.
type Provider interface {
	// Synthesize converts text to audio, returning the complete clip.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is a synthesized clip.
type AudioResult struct {
	Audio  []byte
	Format AudioFormat

	// Duration is the estimated playback length, zero when unknown.
	Duration time.Duration

	CharCount int
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Player returns the format in the form audio players take.
func (f AudioFormat) Player() audio.Format {
	return audio.Format{
		Encoding:   string(f.Encoding),
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
	}
}

// Encoding identifies an audio encoding.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM24 Encoding = "pcm_24000" // OpenAI "pcm" response format
	EncodingMP3   Encoding = "mp3"
)

// SampleRateFromEncoding extracts the sample rate from an encoding.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingMP3:
		return 44100
	default:
		return 24000
	}
}
