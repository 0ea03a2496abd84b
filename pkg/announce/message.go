// Package announce schedules spoken alerts on a single output channel.
//
// Messages are queued by priority tier, then FIFO within a tier. One consumer
// goroutine speaks them one at a time. An urgent interruptible message
// preempts a strictly lower-tier message that is currently being spoken; the
// interrupted message is dropped, not re-queued.
package announce

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfinder/pkg/scene"
)

// Priority is a message tier. Lower values are spoken first.
type Priority int

const (
	Urgent Priority = iota // Hazards, may interrupt everything
	High                   // Important navigation info
	Normal                 // General descriptions
	Low                    // Background info
)

// Valid reports whether p is one of the defined tiers.
func (p Priority) Valid() bool {
	return p >= Urgent && p <= Low
}

func (p Priority) String() string {
	switch p {
	case Urgent:
		return "urgent"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Message is one queued utterance.
type Message struct {
	ID            uuid.UUID  `json:"id"`
	Text          string     `json:"text"`
	Priority      Priority   `json:"priority"`
	Interruptible bool       `json:"interruptible"`
	Mode          scene.Mode `json:"mode"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
}

// State is the scheduler's output slot state.
type State int

const (
	Idle State = iota
	Speaking
	Interrupted // transient, returns to Idle once the speaker stops
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Speaking:
		return "speaking"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is how an utterance ended.
type Status string

const (
	StatusSpoken      Status = "spoken"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Outcome reports the end of one utterance.
type Outcome struct {
	Message    Message   `json:"message"`
	Status     Status    `json:"status"`
	Err        error     `json:"-"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Error returns the failure text, or "" when the utterance succeeded.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
