package worldmodel

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/risk"
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonDangerZone  Reason = "new_object_in_danger_zone"
	ReasonApproaching Reason = "object_approaching_quickly"
	ReasonObstacle    Reason = "obstacle_in_path"
	ReasonNovelText   Reason = "new_high_confidence_text"
	ReasonStateChange Reason = "significant_state_change"
	ReasonCooldown    Reason = "cooldown_active"
	ReasonNone        Reason = "none"
)

// GatedEvent is a risk event with the decision whether to speak it now.
type GatedEvent struct {
	Event       risk.Event `json:"event"`
	Identity    Identity   `json:"identity"`
	ShouldSpeak bool       `json:"should_speak"`
	Reason      Reason     `json:"reason"`
	Priority    float64    `json:"priority"`
}

// minHeadingSpeed is the velocity magnitude below which heading is noise.
const minHeadingSpeed = 0.1

// Gate decides which risk events to announce, remembering what it has said.
// Calls are serialized by an internal mutex; one Gate serves one session.
type Gate struct {
	config Config
	state  *State
	mu     sync.Mutex
	logger *slog.Logger
}

// NewGate creates a gate with empty state.
func NewGate(cfg Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		config: cfg,
		state:  NewState(),
		logger: logger.With("component", "worldmodel.gate"),
	}
}

// Config returns the gate configuration.
func (g *Gate) Config() Config {
	return g.config
}

// Gate evaluates events in order against the current state and returns one
// GatedEvent per input. now is used for every comparison and for the purge
// that ends the pass, so identical inputs and state yield identical output.
func (g *Gate) Gate(events []risk.Event, now time.Time) []GatedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	gated := make([]GatedEvent, 0, len(events))
	for _, ev := range events {
		id := IdentityOf(ev)
		reason := g.trigger(ev, id, now)
		speak := reason != ReasonNone

		if expiry, ok := g.state.Cooldowns[id]; ok && now.Before(expiry) {
			speak = false
			reason = ReasonCooldown
		}

		if speak {
			g.state.LastAnnounced[id] = now
			g.state.Cooldowns[id] = now.Add(g.config.Cooldown)
			g.state.LastSpoken = now
			g.logger.Debug("announce", "identity", id, "reason", reason, "priority", ev.Priority)
		}

		g.observe(ev, now)

		gated = append(gated, GatedEvent{
			Event:       ev,
			Identity:    id,
			ShouldSpeak: speak,
			Reason:      reason,
			Priority:    ev.Priority,
		})
	}

	g.collect(now)
	return gated
}

// trigger returns the first matching reason, or ReasonNone.
func (g *Gate) trigger(ev risk.Event, id Identity, now time.Time) Reason {
	switch {
	case g.enteringDangerZone(ev, id, now):
		return ReasonDangerZone
	case g.approaching(ev):
		return ReasonApproaching
	case ev.Kind == risk.KindObstacle:
		return ReasonObstacle
	case g.novelText(ev, id, now):
		return ReasonNovelText
	case g.changed(ev):
		return ReasonStateChange
	default:
		return ReasonNone
	}
}

func (g *Gate) recentlyAnnounced(id Identity, now time.Time) bool {
	last, ok := g.state.LastAnnounced[id]
	return ok && now.Sub(last) < g.config.Cooldown
}

func (g *Gate) enteringDangerZone(ev risk.Event, id Identity, now time.Time) bool {
	if ev.Kind != risk.KindObject || g.recentlyAnnounced(id, now) {
		return false
	}
	if ev.Distance != nil && *ev.Distance < g.config.DangerDistance {
		return true
	}
	return ev.Priority > g.config.DangerPriority
}

func (g *Gate) approaching(ev risk.Event) bool {
	return ev.Kind == risk.KindObject && ev.Velocity != nil &&
		ev.Velocity.Magnitude() > g.config.ApproachThreshold
}

func (g *Gate) novelText(ev risk.Event, id Identity, now time.Time) bool {
	if ev.Kind != risk.KindText || g.recentlyAnnounced(id, now) {
		return false
	}
	return ev.Priority > g.config.TextPriority
}

// changed compares a tracked object with its previous snapshot. Untracked
// objects have no history and always count as changed.
func (g *Gate) changed(ev risk.Event) bool {
	if ev.Kind != risk.KindObject {
		return false
	}
	if !ev.HasTrack() {
		return true
	}
	prev, ok := g.state.Tracks[*ev.Meta.TrackID]
	if !ok {
		return false
	}

	if ev.Distance != nil && prev.Distance != nil &&
		math.Abs(*ev.Distance-*prev.Distance) > g.config.DistanceDelta {
		return true
	}
	if ev.Location != nil && prev.Location != nil &&
		(math.Abs(ev.Location.X-prev.Location.X) > g.config.LocationDelta ||
			math.Abs(ev.Location.Y-prev.Location.Y) > g.config.LocationDelta) {
		return true
	}
	if ev.Velocity != nil && prev.Velocity != nil &&
		headingDelta(*prev.Velocity, *ev.Velocity) > g.config.HeadingDelta {
		return true
	}
	return false
}

// headingDelta returns the absolute angle in degrees between two motion
// directions, or 0 when either is too slow to have a heading.
func headingDelta(a, b perception.Vector) float64 {
	if a.Magnitude() < minHeadingSpeed || b.Magnitude() < minHeadingSpeed {
		return 0
	}
	d := math.Atan2(b.Y, b.X) - math.Atan2(a.Y, a.X)
	d = math.Abs(math.Remainder(d, 2*math.Pi))
	return d * 180 / math.Pi
}

// observe refreshes snapshots for every event, spoken or not.
func (g *Gate) observe(ev risk.Event, now time.Time) {
	switch {
	case ev.Kind == risk.KindObject && ev.HasTrack():
		g.state.Tracks[*ev.Meta.TrackID] = TrackSnapshot{
			ClassName: ev.Meta.ClassName,
			Location:  ev.Location,
			Distance:  ev.Distance,
			Velocity:  ev.Velocity,
			SeenAt:    now,
		}
	case ev.Kind == risk.KindText:
		g.state.Texts[NormalizeText(ev.Meta.Text)] = now
	}
}

// collect purges stale entries.
func (g *Gate) collect(now time.Time) {
	for id, snap := range g.state.Tracks {
		if now.Sub(snap.SeenAt) > g.config.TrackTTL {
			delete(g.state.Tracks, id)
		}
	}
	for id, expiry := range g.state.Cooldowns {
		if !expiry.After(now) {
			delete(g.state.Cooldowns, id)
		}
	}
	for id, at := range g.state.LastAnnounced {
		if now.Sub(at) >= g.config.Cooldown {
			delete(g.state.LastAnnounced, id)
		}
	}
	for text, at := range g.state.Texts {
		if now.Sub(at) > g.config.TextTTL {
			delete(g.state.Texts, text)
		}
	}
}

// Reset clears all remembered state.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = NewState()
	g.logger.Info("world state reset")
}

// Snapshot returns the current state sizes.
func (g *Gate) Snapshot() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.stats()
}

// Track returns the last snapshot of a track, if still retained.
func (g *Gate) Track(id int) (TrackSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap, ok := g.state.Tracks[id]
	return snap, ok
}

// InCooldown reports whether an identity is currently suppressed.
func (g *Gate) InCooldown(id Identity, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	expiry, ok := g.state.Cooldowns[id]
	return ok && now.Before(expiry)
}
