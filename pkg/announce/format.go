package announce

import (
	"strings"

	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/risk"
	"github.com/teslashibe/go-wayfinder/pkg/scene"
	"github.com/teslashibe/go-wayfinder/pkg/worldmodel"
)

// Tier maps a risk event to a message priority: obstacles are urgent, then
// priority above high, above normal, else low.
func (c Config) Tier(ev risk.Event) Priority {
	switch {
	case ev.Kind == risk.KindObstacle:
		return Urgent
	case ev.Priority > c.HighPriority:
		return High
	case ev.Priority > c.NormalPriority:
		return Normal
	default:
		return Low
	}
}

// Format renders the text for a gated event. rich replaces the event's own
// description when non-empty.
func (c Config) Format(ge worldmodel.GatedEvent, rich string, mode scene.Mode) string {
	ev := ge.Event
	text := strings.TrimSpace(rich)
	if text == "" {
		text = ev.Description
	}

	if mode == scene.ModeDescription {
		if loc := c.location(ev); loc != "" {
			text += ". Location: " + loc
		}
		return text
	}

	switch {
	case ev.Kind == risk.KindObstacle:
		return "Stop. " + text
	case ev.Priority > c.HighPriority:
		return "Warning. " + text
	default:
		return text
	}
}

// location describes where an event is, e.g. "on the left, close".
func (c Config) location(ev risk.Event) string {
	var parts []string
	if ev.Location != nil {
		parts = append(parts, perception.Side(ev.Location.X, c.FrameWidth))
	}
	if ev.Distance != nil {
		parts = append(parts, perception.DistanceCategory(*ev.Distance))
	}
	return strings.Join(parts, ", ")
}

// SpeakGatedEvent formats and enqueues a gated event that should be spoken.
// It returns false without enqueuing when ShouldSpeak is false.
func (s *Scheduler) SpeakGatedEvent(ge worldmodel.GatedEvent, rich string) (uuid.UUID, bool) {
	if !ge.ShouldSpeak {
		return uuid.Nil, false
	}
	text := s.config.Format(ge, rich, s.Mode())
	return s.Enqueue(text, s.config.Tier(ge.Event), true), true
}
