package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/audio"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio data")
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
		if result.Duration != 220*time.Millisecond {
			t.Errorf("expected 220ms duration, got %v", result.Duration)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		_ = mock.Health(ctx)
		if len(mock.Calls()) != 2 {
			t.Errorf("expected 2 calls, got %d", len(mock.Calls()))
		}
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
	if err := mock.Health(ctx); err == nil {
		t.Error("expected health error")
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	t.Run("Synthesize has latency", func(t *testing.T) {
		start := time.Now()
		if _, err := mock.Synthesize(context.Background(), "Hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("expected at least 50ms latency, got %v", elapsed)
		}
	})

	t.Run("Context cancellation works", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context deadline error, got %v", err)
		}
	})
}

func TestFunctionalOptions(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Apply(
		tts.WithVoice(tts.VoiceOnyx),
		tts.WithModel(tts.ModelTTS1HD),
		tts.WithTimeout(5*time.Second),
		tts.WithSpeed(1.5),
		tts.WithOutputFormat(tts.EncodingPCM24),
	)

	if cfg.Voice != tts.VoiceOnyx {
		t.Errorf("expected voice onyx, got %s", cfg.Voice)
	}
	if cfg.Model != tts.ModelTTS1HD {
		t.Errorf("expected model tts-1-hd, got %s", cfg.Model)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.Speed != 1.5 || cfg.OutputFormat != tts.EncodingPCM24 {
		t.Errorf("unexpected speed/format %v/%s", cfg.Speed, cfg.OutputFormat)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*tts.Config)
		want   error
	}{
		{"requires API key", func(c *tts.Config) {}, tts.ErrNoAPIKey},
		{"valid", func(c *tts.Config) { c.APIKey = "k" }, nil},
		{"speed too high", func(c *tts.Config) { c.APIKey = "k"; c.Speed = 5 }, tts.ErrInvalidSpeed},
		{"unsupported format", func(c *tts.Config) { c.APIKey = "k"; c.OutputFormat = tts.EncodingPCM16 }, tts.ErrUnsupportedFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tts.DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	t.Run("IsRateLimited", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 429, Message: "rate limited"}
		if !err.IsRateLimited() || !err.IsRetryable() {
			t.Error("expected rate limited and retryable")
		}
		if err.IsUnauthorized() {
			t.Error("expected IsUnauthorized false")
		}
	})

	t.Run("IsServerError", func(t *testing.T) {
		for _, code := range []int{500, 502, 503, 504} {
			err := &tts.APIError{StatusCode: code}
			if !err.IsServerError() || !err.IsRetryable() {
				t.Errorf("expected server error and retryable for %d", code)
			}
		}
	})

	t.Run("Error message format", func(t *testing.T) {
		err := &tts.APIError{StatusCode: 400, Message: "bad request", Code: "invalid_input", Provider: "openai"}
		if msg := err.Error(); msg != "tts [openai]: API error 400 (invalid_input): bad request" {
			t.Errorf("unexpected error message: %s", msg)
		}
	})
}

func TestSampleRateFromEncoding(t *testing.T) {
	tests := []struct {
		encoding   tts.Encoding
		sampleRate int
	}{
		{tts.EncodingPCM16, 16000},
		{tts.EncodingPCM24, 24000},
		{tts.EncodingMP3, 44100},
	}

	for _, tt := range tests {
		t.Run(string(tt.encoding), func(t *testing.T) {
			if rate := tts.SampleRateFromEncoding(tt.encoding); rate != tt.sampleRate {
				t.Errorf("expected %d, got %d", tt.sampleRate, rate)
			}
		})
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("NewChain requires providers", func(t *testing.T) {
		if _, err := tts.NewChain(nil); !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("First provider succeeds", func(t *testing.T) {
		mock1 := tts.NewMock()
		mock2 := tts.NewMock()

		chain, err := tts.NewChain(nil, mock1, mock2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer chain.Close()

		if _, err := chain.Synthesize(ctx, "Hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mock1.CallCount("Synthesize") != 1 {
			t.Error("expected first provider to be called")
		}
		if mock2.CallCount("Synthesize") != 0 {
			t.Error("expected second provider not to be called")
		}
	})

	t.Run("Fallback on failure", func(t *testing.T) {
		chain, _ := tts.NewChain(nil, tts.WithError(errors.New("provider 1 failed")), tts.NewMock())

		result, err := chain.Synthesize(ctx, "Hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result == nil {
			t.Error("expected result from fallback provider")
		}
	})

	t.Run("All providers fail", func(t *testing.T) {
		fail1 := errors.New("fail 1")
		chain, _ := tts.NewChain(nil, tts.WithError(fail1), tts.WithError(errors.New("fail 2")))

		_, err := chain.Synthesize(ctx, "Hello")
		var chainErr *tts.ChainError
		if !errors.As(err, &chainErr) || len(chainErr.Errors) != 2 {
			t.Fatalf("expected ChainError with 2 errors, got %v", err)
		}
		if !errors.Is(err, fail1) {
			t.Error("expected chain error to unwrap to every provider error")
		}
	})

	t.Run("Health is fine while one provider is healthy", func(t *testing.T) {
		chain, _ := tts.NewChain(nil, tts.WithError(errors.New("down")), tts.NewMock())
		if err := chain.Health(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection failed")
	err := tts.WrapError("openai", inner)

	if err.Error() != "tts [openai]: connection failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to reach the inner error")
	}
	if tts.WrapError("openai", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestOpenAI_Synthesize(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write(make([]byte, 4800))
	}))
	defer srv.Close()

	p, err := tts.NewOpenAI(
		tts.WithAPIKey("sk-test"),
		tts.WithBaseURL(srv.URL),
		tts.WithOutputFormat(tts.EncodingPCM24),
	)
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	defer p.Close()

	result, err := p.Synthesize(context.Background(), "Stop. Car ahead.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if auth != "Bearer sk-test" {
		t.Errorf("auth header: %q", auth)
	}
	if got["input"] != "Stop. Car ahead." || got["response_format"] != "pcm" || got["voice"] != tts.VoiceNova {
		t.Errorf("unexpected payload %v", got)
	}
	if result.Format.Encoding != tts.EncodingPCM24 || result.Duration != 100*time.Millisecond {
		t.Errorf("unexpected result format %+v duration %v", result.Format, result.Duration)
	}
}

func TestOpenAI_Errors(t *testing.T) {
	if _, err := tts.NewOpenAI(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("mp3"))
		}))
		defer srv.Close()

		p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithRetry(2, time.Millisecond))
		result, err := p.Synthesize(context.Background(), "hi")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if string(result.Audio) != "mp3" || calls.Load() != 2 {
			t.Errorf("audio %q after %d calls", result.Audio, calls.Load())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","code":"invalid_api_key"}}`))
		}))
		defer srv.Close()

		p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithRetry(3, time.Millisecond))
		_, err := p.Synthesize(context.Background(), "hi")

		var apiErr *tts.APIError
		if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() || apiErr.Code != "invalid_api_key" {
			t.Fatalf("expected unauthorized APIError, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("health", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/models" || r.Method != http.MethodGet {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL))
		if err := p.Health(context.Background()); err != nil {
			t.Errorf("Health: %v", err)
		}
	})
}

func TestSpeaker(t *testing.T) {
	t.Run("plays synthesized audio", func(t *testing.T) {
		var played audio.Format
		var bytes int
		player := audio.PlayerFunc(func(ctx context.Context, data []byte, f audio.Format) error {
			played, bytes = f, len(data)
			return nil
		})

		s := tts.NewSpeaker(tts.NewMock(), player, nil)
		if err := s.Speak(context.Background(), "Stop"); err != nil {
			t.Fatalf("Speak: %v", err)
		}
		if !played.IsPCM() || played.SampleRate != 24000 || bytes != 4*960 {
			t.Errorf("unexpected playback %+v, %d bytes", played, bytes)
		}
	})

	t.Run("synthesis failure", func(t *testing.T) {
		s := tts.NewSpeaker(tts.WithError(errors.New("offline")), audio.PlayerFunc(func(context.Context, []byte, audio.Format) error {
			t.Error("player should not run")
			return nil
		}), nil)
		if err := s.Speak(context.Background(), "Stop"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("cancellation stops playback", func(t *testing.T) {
		player := audio.PlayerFunc(func(ctx context.Context, data []byte, f audio.Format) error {
			<-ctx.Done()
			return errors.New("killed")
		})
		s := tts.NewSpeaker(tts.NewMock(), player, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := s.Speak(ctx, "Stop"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
	})
}

func TestNewOpenAIChain(t *testing.T) {
	if _, err := tts.NewOpenAIChain(nil, []string{tts.ModelTTS1HD}); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		model, _ := req["model"].(string)
		models = append(models, model)
		if model == tts.ModelTTS1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"model unavailable"}}`))
			return
		}
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	opts := []tts.Option{tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithModel(tts.ModelTTS1)}

	t.Run("falls through to the next model", func(t *testing.T) {
		models = nil
		chain, err := tts.NewOpenAIChain(nil, []string{tts.ModelTTS1HD}, opts...)
		if err != nil {
			t.Fatalf("NewOpenAIChain: %v", err)
		}
		defer chain.Close()

		if len(chain.Providers()) != 2 {
			t.Fatalf("expected 2 providers, got %d", len(chain.Providers()))
		}
		result, err := chain.Synthesize(context.Background(), "Stop. Car ahead.")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if string(result.Audio) != "mp3" {
			t.Errorf("audio %q", result.Audio)
		}
		if len(models) != 2 || models[0] != tts.ModelTTS1 || models[1] != tts.ModelTTS1HD {
			t.Errorf("unexpected model order %v", models)
		}
	})

	t.Run("all models fail", func(t *testing.T) {
		chain, err := tts.NewOpenAIChain(nil, nil, opts...)
		if err != nil {
			t.Fatalf("NewOpenAIChain: %v", err)
		}
		defer chain.Close()

		_, err = chain.Synthesize(context.Background(), "hi")
		var chainErr *tts.ChainError
		var apiErr *tts.APIError
		if !errors.As(err, &chainErr) || !errors.As(err, &apiErr) {
			t.Fatalf("expected ChainError wrapping APIError, got %v", err)
		}
	})
}
