// Package pipeline runs one frame of perception output through risk
// scoring, event gating and the announcement scheduler.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/announce"
	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/risk"
	"github.com/teslashibe/go-wayfinder/pkg/scene"
	"github.com/teslashibe/go-wayfinder/pkg/worldmodel"
)

// Fallback answers.
const (
	NoFrameAnswer     = "No frame available to answer question."
	UnavailableAnswer = "Unable to answer question at this time."
)

// FrameResult summarises one processed frame.
type FrameResult struct {
	Frame        uint64                  `json:"frame"`
	At           time.Time               `json:"at"`
	Detections   int                     `json:"detections"`
	Tracks       int                     `json:"tracks"`
	TextRegions  int                     `json:"text_regions"`
	RiskEvents   int                     `json:"risk_events"`
	Spoken       int                     `json:"spoken"`
	Described    bool                    `json:"described"`
	ProcessingMs float64                 `json:"processing_ms"`
	Gated        []worldmodel.GatedEvent `json:"gated"`
}

// FPS is the processing rate the frame's latency allows.
func (r FrameResult) FPS() float64 {
	if r.ProcessingMs <= 0 {
		return 0
	}
	return 1000 / r.ProcessingMs
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Frames    uint64           `json:"frames"`
	Mode      scene.Mode       `json:"mode"`
	Scheduler string           `json:"scheduler"`
	Pending   int              `json:"pending"`
	World     worldmodel.Stats `json:"world"`
	LastFrame *FrameResult     `json:"last_frame,omitempty"`
}

// Pipeline wires the per-frame stages together. ProcessFrame calls are
// serialized, so one Pipeline owns one session's world state.
type Pipeline struct {
	config    Config
	scorer    *risk.Scorer
	gate      *worldmodel.Gate
	scheduler *announce.Scheduler
	describer scene.Describer
	now       func() time.Time
	logger    *slog.Logger

	// frameMu serializes ProcessFrame. mu guards the fields below and is
	// never held across a describer call.
	frameMu   sync.Mutex
	mu        sync.Mutex
	frames    uint64
	last      *FrameResult
	summary   scene.Summary
	hasFrame  bool
	observers []func(FrameResult)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDescriber enables richer descriptions and question answering.
func WithDescriber(d scene.Describer) Option {
	return func(p *Pipeline) {
		p.describer = d
	}
}

// WithClock replaces time.Now for gating decisions.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline. The scheduler must be run separately.
func New(cfg Config, scorer *risk.Scorer, gate *worldmodel.Gate, scheduler *announce.Scheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		config:    cfg,
		scorer:    scorer,
		gate:      gate,
		scheduler: scheduler,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// OnFrame registers fn to be called after every frame. fn must not block.
func (p *Pipeline) OnFrame(fn func(FrameResult)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// ProcessFrame scores, gates and announces one frame of perception output.
func (p *Pipeline) ProcessFrame(ctx context.Context, out *perception.Output) FrameResult {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()

	start := time.Now()
	p.mu.Lock()
	p.frames++
	frame := p.frames
	p.mu.Unlock()

	res := FrameResult{Frame: frame, At: p.now()}
	if out != nil {
		res.Detections = len(out.Detections)
		res.Tracks = len(out.Tracks)
		res.TextRegions = len(out.TextRegions)
	}

	events := p.scorer.Prioritize(out)
	res.RiskEvents = len(events)

	summary := scene.Build(events)
	p.mu.Lock()
	p.summary = summary
	p.hasFrame = true
	p.mu.Unlock()

	gated := p.gate.Gate(events, res.At)
	res.Gated = gated

	rich := ""
	if p.shouldDescribe(frame, gated) {
		rich = p.describe(ctx, summary)
		res.Described = rich != ""
	}

	for _, ge := range gated {
		if _, ok := p.scheduler.SpeakGatedEvent(ge, rich); ok {
			res.Spoken++
			// The scene description covers the frame once.
			rich = ""
		}
	}

	res.ProcessingMs = float64(time.Since(start).Microseconds()) / 1000

	p.mu.Lock()
	p.last = &res
	observers := slices.Clone(p.observers)
	p.mu.Unlock()

	if p.config.StatusEvery > 0 && frame%uint64(p.config.StatusEvery) == 0 {
		p.logger.Info("frame status",
			"frame", res.Frame,
			"detections", res.Detections,
			"tracks", res.Tracks,
			"spoken", res.Spoken,
			"fps", res.FPS(),
		)
	}

	for _, fn := range observers {
		fn(res)
	}
	return res
}

func (p *Pipeline) shouldDescribe(frame uint64, gated []worldmodel.GatedEvent) bool {
	if p.describer == nil || p.config.DescribeEvery <= 0 || frame%uint64(p.config.DescribeEvery) != 0 {
		return false
	}
	for _, ge := range gated {
		if ge.ShouldSpeak {
			return true
		}
	}
	return false
}

// describe returns a richer description, or "" so callers fall back to the
// event's own description.
func (p *Pipeline) describe(ctx context.Context, s scene.Summary) string {
	ctx, cancel := context.WithTimeout(ctx, p.config.DescribeTimeout)
	defer cancel()

	mode := p.scheduler.Mode()
	text, err := bounded(ctx, func(ctx context.Context) (string, error) {
		return p.describer.Describe(ctx, s, mode)
	})
	if err != nil {
		p.logger.Warn("describe failed, using event description", "error", err)
		return ""
	}
	return text
}

// bounded runs fn in its own goroutine and gives up when ctx is done, so a
// describer that ignores cancellation cannot stall the caller.
func bounded(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("pipeline: describer panic: %v", r)}
			}
		}()
		text, err := fn(ctx)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AnswerQuestion answers a question about the most recent frame. It always
// returns something speakable.
func (p *Pipeline) AnswerQuestion(ctx context.Context, question string) string {
	p.mu.Lock()
	summary, ok := p.summary, p.hasFrame
	p.mu.Unlock()

	if !ok {
		return NoFrameAnswer
	}
	if p.describer == nil {
		return UnavailableAnswer
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.AnswerTimeout)
	defer cancel()

	answer, err := bounded(ctx, func(ctx context.Context) (string, error) {
		return p.describer.Answer(ctx, question, summary)
	})
	if err != nil || answer == "" {
		p.logger.Warn("answer failed", "error", err)
		return UnavailableAnswer
	}
	return answer
}

// SetMode switches the output mode.
func (p *Pipeline) SetMode(m scene.Mode) {
	p.scheduler.SetMode(m)
	p.logger.Info("mode changed", "mode", m)
}

// Mode returns the output mode.
func (p *Pipeline) Mode() scene.Mode {
	return p.scheduler.Mode()
}

// Reset forgets what has been announced and drops queued messages.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gate.Reset()
	dropped := p.scheduler.Clear()
	p.summary = scene.Summary{}
	p.hasFrame = false
	p.logger.Info("pipeline reset", "dropped", dropped)
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	st := Status{Frames: p.frames}
	if p.last != nil {
		last := *p.last
		st.LastFrame = &last
	}
	p.mu.Unlock()

	st.Mode = p.scheduler.Mode()
	st.Scheduler = p.scheduler.State().String()
	st.Pending = p.scheduler.Pending()
	st.World = p.gate.Snapshot()
	return st
}

// maxSourceErrors is how many consecutive source failures Run tolerates.
const maxSourceErrors = 10

// Run processes frames from src until it is exhausted or ctx is cancelled.
// A frame that fails to load is logged and skipped.
func (p *Pipeline) Run(ctx context.Context, src perception.Source) error {
	failures := 0
	var tick <-chan time.Time
	if p.config.FrameInterval > 0 {
		ticker := time.NewTicker(p.config.FrameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		out, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			p.logger.Info("source exhausted", "frames", p.Status().Frames)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failures++
			if failures >= maxSourceErrors {
				return fmt.Errorf("pipeline: %d consecutive source errors: %w", failures, err)
			}
			p.logger.Warn("frame skipped", "error", err)
			continue
		}

		failures = 0
		p.ProcessFrame(ctx, out)
	}
}
