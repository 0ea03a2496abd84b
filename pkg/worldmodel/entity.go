// Package worldmodel remembers what has already been announced and decides,
// frame after frame, which risk events are worth speaking now.
//
// The Gate owns a State holding cross-frame memory keyed by hazard identity:
// last announcement times, cooldown timers, per-track snapshots and text
// sightings. Every entry carries a timestamp and is purged once stale, so the
// state stays bounded across long sessions.
package worldmodel

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/risk"
)

// Identity is a cross-frame key recognising the same real-world hazard.
type Identity string

// identityGrid is the pixel grid untracked boxes are snapped to.
const identityGrid = 32.0

// IdentityOf derives the hazard identity of an event.
//
// Tracked objects use track id and class. Text uses a hash of the normalized
// string. Untracked objects and obstacles use Meta.Identity when the caller
// supplied one, otherwise class plus the bbox snapped to a 32px grid.
func IdentityOf(ev risk.Event) Identity {
	switch ev.Kind {
	case risk.KindText:
		return Identity("text/" + textHash(ev.Meta.Text))
	case risk.KindObstacle:
		return Identity("obstacle/" + string(objectKey(ev)))
	default:
		return Identity("object/" + string(objectKey(ev)))
	}
}

func objectKey(ev risk.Event) Identity {
	if ev.Meta.TrackID != nil {
		return Identity(fmt.Sprintf("%d/%s", *ev.Meta.TrackID, ev.Meta.ClassName))
	}
	if ev.Meta.Identity != "" {
		return Identity(ev.Meta.Identity)
	}
	b := ev.Meta.BBox
	return Identity(fmt.Sprintf("%s@%d,%d,%d,%d",
		ev.Meta.ClassName, snap(b.X1), snap(b.Y1), snap(b.X2), snap(b.Y2)))
}

func snap(v float64) int {
	return int(math.Round(v / identityGrid))
}

// NormalizeText lowercases and collapses whitespace so that OCR jitter in
// case or spacing maps to the same key.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func textHash(s string) string {
	h := fnv.New64a()
	h.Write([]byte(NormalizeText(s)))
	return fmt.Sprintf("%016x", h.Sum64())
}

// TrackSnapshot is the last known state of a tracked object.
type TrackSnapshot struct {
	ClassName string             `json:"class_name"`
	Location  *perception.Point  `json:"location,omitempty"`
	Distance  *float64           `json:"distance,omitempty"`
	Velocity  *perception.Vector `json:"velocity,omitempty"`
	SeenAt    time.Time          `json:"seen_at"`
}

// State is the gate's cross-frame memory.
type State struct {
	LastAnnounced map[Identity]time.Time
	Cooldowns     map[Identity]time.Time // identity -> expiry
	Tracks        map[int]TrackSnapshot
	Texts         map[string]time.Time // normalized text -> last seen
	LastSpoken    time.Time
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		LastAnnounced: make(map[Identity]time.Time),
		Cooldowns:     make(map[Identity]time.Time),
		Tracks:        make(map[int]TrackSnapshot),
		Texts:         make(map[string]time.Time),
	}
}

// Stats summarises the size of a State.
type Stats struct {
	Announced  int       `json:"announced"`
	Cooldowns  int       `json:"cooldowns"`
	Tracks     int       `json:"tracks"`
	Texts      int       `json:"texts"`
	LastSpoken time.Time `json:"last_spoken,omitzero"`
}

func (s *State) stats() Stats {
	return Stats{
		Announced:  len(s.LastAnnounced),
		Cooldowns:  len(s.Cooldowns),
		Tracks:     len(s.Tracks),
		Texts:      len(s.Texts),
		LastSpoken: s.LastSpoken,
	}
}
