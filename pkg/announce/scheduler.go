package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfinder/pkg/scene"
)

// ErrSpeakerStuck is reported when a cancelled speaker does not return
// within the interrupt wait.
var ErrSpeakerStuck = errors.New("announce: speaker did not stop within interrupt wait")

// Scheduler orders messages by priority and drives one Speaker.
type Scheduler struct {
	config  Config
	speaker Speaker
	cue     Cue
	logger  *slog.Logger

	mu            sync.Mutex
	queue         messageQueue
	seq           uint64
	state         State
	current       *Message
	cancelCurrent context.CancelFunc
	mode          scene.Mode
	observers     []func(Outcome)
	running       bool

	wake chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCue fires c before every urgent message.
func WithCue(c Cue) Option {
	return func(s *Scheduler) {
		s.cue = c
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler creates a scheduler speaking through speaker. A nil speaker
// falls back to a ConsoleSpeaker on stdout.
func NewScheduler(cfg Config, speaker Speaker, opts ...Option) *Scheduler {
	if speaker == nil {
		speaker = NewConsoleSpeaker(nil)
	}
	mode := cfg.Mode
	if mode == "" {
		mode = scene.ModeNavigation
	}
	s := &Scheduler{
		config:  cfg,
		speaker: speaker,
		logger:  slog.Default(),
		mode:    mode,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "announce.scheduler")
	return s
}

// OnOutcome registers fn to be called after every utterance ends. fn runs on
// the consumer goroutine and must not block.
func (s *Scheduler) OnOutcome(fn func(Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Enqueue adds a message and returns its id. It always accepts the message.
// An urgent interruptible message cancels a strictly lower-tier interruptible
// message that is currently being spoken. Enqueue panics if p is not a
// defined tier.
func (s *Scheduler) Enqueue(text string, p Priority, interruptible bool) uuid.UUID {
	if !p.Valid() {
		panic(fmt.Sprintf("announce: invalid priority %d", int(p)))
	}

	s.mu.Lock()
	msg := Message{
		ID:            uuid.New(),
		Text:          text,
		Priority:      p,
		Interruptible: interruptible,
		Mode:          s.mode,
		EnqueuedAt:    time.Now(),
	}
	s.seq++
	s.queue.push(msg, s.seq)

	if s.shouldPreemptLocked(msg) {
		s.logger.Info("preempting current message",
			"current", s.current.ID,
			"current_priority", s.current.Priority,
			"by", msg.ID,
		)
		s.state = Interrupted
		s.cancelCurrent()
	}
	s.mu.Unlock()

	s.notify()
	return msg.ID
}

func (s *Scheduler) shouldPreemptLocked(msg Message) bool {
	return msg.Priority == Urgent && msg.Interruptible &&
		s.state == Speaking && s.current != nil &&
		s.current.Priority > msg.Priority && s.current.Interruptible
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run consumes the queue until ctx is cancelled. Only one Run may be active.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("announce: scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("scheduler started")
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("scheduler stopped", "pending", s.Pending())
			return err
		}

		s.mu.Lock()
		msg, ok := s.queue.pop()
		s.mu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
			case <-s.wake:
			}
			continue
		}

		s.speak(ctx, msg)
	}
}

// speak drives one utterance to completion, cancellation or failure.
func (s *Scheduler) speak(ctx context.Context, msg Message) {
	uttCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	s.mu.Lock()
	s.state = Speaking
	s.current = &msg
	s.cancelCurrent = cancel
	s.mu.Unlock()

	if msg.Priority == Urgent && s.cue != nil {
		if err := s.cue.Alert(uttCtx, msg); err != nil {
			s.logger.Warn("cue failed", "error", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("announce: speaker panic: %v", r)
			}
		}()
		done <- s.speaker.Speak(uttCtx, msg.Text)
	}()

	var err error
	select {
	case err = <-done:
	case <-uttCtx.Done():
		select {
		case err = <-done:
		case <-time.After(s.config.InterruptWait):
			err = ErrSpeakerStuck
			s.logger.Warn("speaker ignored cancellation", "id", msg.ID, "wait", s.config.InterruptWait)
		}
	}

	outcome := Outcome{Message: msg, StartedAt: started, FinishedAt: time.Now(), Err: err}
	switch {
	case err == nil:
		outcome.Status = StatusSpoken
	case uttCtx.Err() != nil:
		outcome.Status = StatusInterrupted
		s.logger.Info("message interrupted", "id", msg.ID, "priority", msg.Priority)
	default:
		outcome.Status = StatusFailed
		s.logger.Error("speaker failed", "id", msg.ID, "error", err)
	}

	s.mu.Lock()
	s.state = Idle
	s.current = nil
	s.cancelCurrent = nil
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(outcome)
	}
}

// State returns the current slot state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the message being spoken, if any.
func (s *Scheduler) Current() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Message{}, false
	}
	return *s.current, true
}

// Pending returns the number of queued messages.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Clear drops every queued message. The current utterance is not affected.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queue.Len()
	s.queue = nil
	return n
}

// Mode returns the output mode.
func (s *Scheduler) Mode() scene.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the output mode for messages formatted from now on.
func (s *Scheduler) SetMode(m scene.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}
