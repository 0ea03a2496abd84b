package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sentinel errors.
var (
	// ErrNoAPIKey is returned when a remote describer has no API key.
	ErrNoAPIKey = errors.New("scene: API key required")

	// ErrUnavailable is returned when a describer cannot serve a request.
	ErrUnavailable = errors.New("scene: describer unavailable")

	// ErrNoDescribers is returned when a chain is built empty.
	ErrNoDescribers = errors.New("scene: no describers configured")
)

// Describer turns a scene summary into words.
type Describer interface {
	// Describe returns a description of s suited to mode.
	Describe(ctx context.Context, s Summary, mode Mode) (string, error)

	// Answer answers a question about s.
	Answer(ctx context.Context, question string, s Summary) (string, error)
}

// RuleBased describes scenes with fixed phrasing. It never fails to describe
// and cannot answer questions.
type RuleBased struct {
	// FrameWidth splits the frame into left, ahead and right. The default
	// 640 gives left below 200 and right above 400.
	FrameWidth int
}

// Describe implements Describer.
func (r RuleBased) Describe(_ context.Context, s Summary, mode Mode) (string, error) {
	if mode == ModeNavigation {
		if len(s.Objects) == 0 {
			return "No significant objects detected.", nil
		}
		top := s.Objects[0]
		if top.Priority > 10 {
			return fmt.Sprintf("Stop. %s ahead.", top.Type), nil
		}
		return fmt.Sprintf("%s detected.", top.Type), nil
	}

	var sentences []string
	if len(s.Objects) > 0 {
		names := make([]string, 0, 3)
		for _, o := range head(s.Objects, 3) {
			name := o.Type
			if o.Location != nil {
				name += " " + r.side(o.Location.X)
			}
			names = append(names, name)
		}
		sentences = append(sentences, "Objects in view: "+strings.Join(names, ", "))
	}
	if len(s.Texts) > 0 {
		quoted := make([]string, 0, 2)
		for _, t := range head(s.Texts, 2) {
			quoted = append(quoted, fmt.Sprintf("%q", t.Text))
		}
		sentences = append(sentences, "Text visible: "+strings.Join(quoted, ", "))
	}
	if len(sentences) == 0 {
		return "No significant objects detected.", nil
	}
	return strings.Join(sentences, ". ") + ".", nil
}

func (r RuleBased) side(x float64) string {
	w := float64(r.FrameWidth)
	if w <= 0 {
		w = 640
	}
	switch {
	case x < w*200/640:
		return "on the left"
	case x > w*400/640:
		return "on the right"
	default:
		return "ahead"
	}
}

// Answer implements Describer.
func (RuleBased) Answer(context.Context, string, Summary) (string, error) {
	return "", ErrUnavailable
}

// Chain tries describers in order and returns the first success.
type Chain struct {
	describers []Describer
	logger     *slog.Logger
}

// NewChain creates a chain. At least one describer is required.
func NewChain(logger *slog.Logger, describers ...Describer) (*Chain, error) {
	if len(describers) == 0 {
		return nil, ErrNoDescribers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		describers: describers,
		logger:     logger.With("component", "scene.chain"),
	}, nil
}

// Describe implements Describer.
func (c *Chain) Describe(ctx context.Context, s Summary, mode Mode) (string, error) {
	var errs []error
	for i, d := range c.describers {
		text, err := d.Describe(ctx, s, mode)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback describer succeeded", "index", i)
			}
			return text, nil
		}
		errs = append(errs, err)
		c.logger.Warn("describer failed, trying next", "index", i, "error", err)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", &ChainError{Errors: errs}
}

// Answer implements Describer.
func (c *Chain) Answer(ctx context.Context, question string, s Summary) (string, error) {
	var errs []error
	for i, d := range c.describers {
		text, err := d.Answer(ctx, question, s)
		if err == nil {
			return text, nil
		}
		errs = append(errs, err)
		c.logger.Debug("answer failed, trying next", "index", i, "error", err)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", &ChainError{Errors: errs}
}

// ChainError aggregates errors from every describer in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "scene chain: no errors recorded"
	case 1:
		return fmt.Sprintf("scene chain: %v", e.Errors[0])
	default:
		return fmt.Sprintf("scene chain: all %d describers failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
	}
}

// Unwrap returns every wrapped error.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

var (
	_ Describer = RuleBased{}
	_ Describer = (*Chain)(nil)
)
