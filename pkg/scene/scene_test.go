package scene

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/risk"
)

func objectEvent(class string, priority, x, y float64) risk.Event {
	return risk.Event{
		Kind:        risk.KindObject,
		Priority:    priority,
		Description: class,
		Location:    &perception.Point{X: x, Y: y},
		Meta:        risk.Metadata{ClassName: class},
	}
}

func textEvent(s string, priority float64) risk.Event {
	return risk.Event{Kind: risk.KindText, Priority: priority, Meta: risk.Metadata{Text: s}}
}

func sampleSummary() Summary {
	return Build([]risk.Event{
		objectEvent("car", 16, 100, 300),
		{Kind: risk.KindObstacle, Priority: 15, Meta: risk.Metadata{ClassName: "car"}},
		objectEvent("person", 5, 150, 50),
		objectEvent("dog", 4, 500, 320),
		textEvent("EXIT", 6),
	})
}

func TestBuild(t *testing.T) {
	s := sampleSummary()

	if len(s.Objects) != 3 {
		t.Fatalf("expected 3 objects (obstacle dropped), got %d", len(s.Objects))
	}
	if s.Objects[0].Type != "car" || s.Objects[2].Type != "dog" {
		t.Errorf("object order not kept: %+v", s.Objects)
	}
	if len(s.Texts) != 1 || s.Texts[0].Text != "EXIT" {
		t.Errorf("unexpected texts: %+v", s.Texts)
	}

	want := []Relation{
		{"car", "person", AlignedVertically},
		{"car", "dog", AlignedHorizontally},
		{"person", "dog", Separate},
	}
	if len(s.Relations) != len(want) {
		t.Fatalf("expected %d relations, got %d", len(want), len(s.Relations))
	}
	for i, w := range want {
		if s.Relations[i] != w {
			t.Errorf("relation %d: got %+v, want %+v", i, s.Relations[i], w)
		}
	}

	if !(Summary{}).Empty() || s.Empty() {
		t.Error("Empty misreports")
	}
}

func TestSummaryPrompt(t *testing.T) {
	p := sampleSummary().Prompt()
	for _, want := range []string{
		"Current scene:",
		"- car at position (100, 300)",
		`- "EXIT"`,
		"- car and person are aligned_vertically",
		"Generate a description appropriate for visually impaired navigation.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestRuleBased(t *testing.T) {
	r := RuleBased{}
	ctx := context.Background()

	tests := []struct {
		name    string
		summary Summary
		mode    Mode
		want    string
	}{
		{"navigation high priority", sampleSummary(), ModeNavigation, "Stop. car ahead."},
		{"navigation low priority", Build([]risk.Event{objectEvent("chair", 2, 300, 300)}), ModeNavigation, "chair detected."},
		{"navigation empty", Summary{}, ModeNavigation, "No significant objects detected."},
		{"description", sampleSummary(), ModeDescription, `Objects in view: car on the left, person on the left, dog on the right. Text visible: "EXIT".`},
		{"description ahead", Build([]risk.Event{objectEvent("bench", 1, 300, 300)}), ModeDescription, "Objects in view: bench ahead."},
		{"description empty", Summary{}, ModeDescription, "No significant objects detected."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Describe(ctx, tc.summary, tc.mode)
			if err != nil {
				t.Fatalf("Describe: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := r.Answer(ctx, "what is ahead?", Summary{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	failing := &Mock{}
	c, err := NewChain(nil, failing, RuleBased{})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	got, err := c.Describe(ctx, sampleSummary(), ModeNavigation)
	if err != nil || got != "Stop. car ahead." {
		t.Errorf("fallback: got %q, %v", got, err)
	}
	if failing.DescribeCalls() != 1 {
		t.Errorf("expected first describer to be tried")
	}

	_, err = c.Answer(ctx, "anything?", Summary{})
	var chainErr *ChainError
	if !errors.As(err, &chainErr) || len(chainErr.Errors) != 2 {
		t.Fatalf("expected ChainError with 2 errors, got %v", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected ChainError to unwrap to ErrUnavailable")
	}

	if _, err := NewChain(nil); !errors.Is(err, ErrNoDescribers) {
		t.Errorf("expected ErrNoDescribers, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"navigation":   ModeNavigation,
		" Description": ModeDescription,
		"descriptive":  ModeDescription,
	} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q): got %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("shout"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

type capturedRequest struct {
	auth string
	body chatRequest
}

func chatServer(t *testing.T, status int, reply string, captured chan<- capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if captured != nil {
			captured <- capturedRequest{auth: r.Header.Get("Authorization"), body: req}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"bad request","code":"invalid"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Describe(t *testing.T) {
	captured := make(chan capturedRequest, 2)
	srv := chatServer(t, http.StatusOK, " Stop. Car on your left. ", captured)

	o, err := NewOpenAI(WithAPIKey("sk-test"), WithBaseURL(srv.URL+"/"), WithModel("test-model"))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	got, err := o.Describe(context.Background(), sampleSummary(), ModeNavigation)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got != "Stop. Car on your left." {
		t.Errorf("got %q", got)
	}

	req := <-captured
	if req.auth != "Bearer sk-test" {
		t.Errorf("auth header: %q", req.auth)
	}
	if req.body.Model != "test-model" || req.body.MaxTokens != 200 {
		t.Errorf("unexpected request %+v", req.body)
	}
	if len(req.body.Messages) != 2 || !strings.Contains(req.body.Messages[0].Content, "navigation assistant") {
		t.Errorf("unexpected messages %+v", req.body.Messages)
	}

	if _, err := o.Describe(context.Background(), sampleSummary(), ModeDescription); err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if req := <-captured; req.body.MaxTokens != 500 {
		t.Errorf("description max tokens: got %d", req.body.MaxTokens)
	}
}

func TestOpenAI_Answer(t *testing.T) {
	captured := make(chan capturedRequest, 1)
	srv := chatServer(t, http.StatusOK, "The exit is ahead.", captured)
	o, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL))

	got, err := o.Answer(context.Background(), "Where is the exit?", sampleSummary())
	if err != nil || got != "The exit is ahead." {
		t.Fatalf("Answer: %q, %v", got, err)
	}
	req := <-captured
	if req.body.MaxTokens != 150 || !strings.Contains(req.body.Messages[1].Content, "Where is the exit?") {
		t.Errorf("unexpected request %+v", req.body)
	}
}

func TestOpenAI_Errors(t *testing.T) {
	if _, err := NewOpenAI(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"bad model","code":"model_not_found"}}`))
		}))
		defer srv.Close()

		o, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL), WithRetry(3, time.Millisecond))
		_, err := o.Describe(context.Background(), Summary{}, ModeNavigation)

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 || apiErr.Code != "model_not_found" {
			t.Fatalf("expected APIError 400, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("server error is retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Clear path."}}]}`))
		}))
		defer srv.Close()

		o, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL), WithRetry(2, time.Millisecond))
		got, err := o.Describe(context.Background(), Summary{}, ModeNavigation)
		if err != nil || got != "Clear path." {
			t.Fatalf("got %q, %v", got, err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		o, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL))
		if _, err := o.Describe(context.Background(), Summary{}, ModeNavigation); err == nil {
			t.Error("expected error for empty choices")
		}
	})
}
