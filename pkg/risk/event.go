// Package risk scores perception output and ranks it into a short list of
// risk events for the current frame.
//
// Scoring is pure: the same Output always yields the same events in the same
// order. Events are created fresh every frame and never mutated afterwards.
package risk

import (
	"github.com/teslashibe/go-wayfinder/pkg/perception"
)

// Kind classifies a risk event.
type Kind string

const (
	KindObject   Kind = "object"
	KindText     Kind = "text"
	KindObstacle Kind = "obstacle"
)

// Metadata carries the raw facts an event was built from.
type Metadata struct {
	ClassName string          `json:"class_name,omitempty"`
	ClassID   int             `json:"class_id,omitempty"`
	TrackID   *int            `json:"track_id,omitempty"`
	Text      string          `json:"text,omitempty"`
	BBox      perception.BBox `json:"bbox"`

	// Identity is an optional caller-supplied stable key for hazards that
	// have no track id. When empty, one is derived from class and position.
	Identity string `json:"identity,omitempty"`
}

// Event is a scored hazard candidate for one frame.
type Event struct {
	Kind        Kind               `json:"kind"`
	Priority    float64            `json:"priority"` // higher = more urgent
	Description string             `json:"description"`
	Location    *perception.Point  `json:"location,omitempty"`
	Distance    *float64           `json:"distance,omitempty"` // relative depth, lower = closer
	Velocity    *perception.Vector `json:"velocity,omitempty"`
	Meta        Metadata           `json:"meta"`
}

// HasTrack reports whether the event is tied to a tracker identity.
func (e Event) HasTrack() bool {
	return e.Meta.TrackID != nil
}
