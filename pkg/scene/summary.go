// Package scene turns a frame's risk events into a compact scene summary and
// describes it in words, either through a chat model or by fixed rules.
package scene

import (
	"fmt"
	"math"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/risk"
)

// RelationTolerance is the pixel distance within which two objects count as
// sharing a column or row.
const RelationTolerance = 100.0

// Object is an object in the scene summary.
type Object struct {
	Type     string             `json:"type"`
	Location *perception.Point  `json:"location,omitempty"`
	Distance *float64           `json:"distance,omitempty"`
	Priority float64            `json:"priority"`
	TrackID  *int               `json:"track_id,omitempty"`
	Velocity *perception.Vector `json:"velocity,omitempty"`
}

// Text is a text region in the scene summary.
type Text struct {
	Text     string            `json:"text"`
	Location *perception.Point `json:"location,omitempty"`
	Priority float64           `json:"priority"`
}

// Relation describes how two objects sit relative to each other.
type Relation struct {
	A        string `json:"object1"`
	B        string `json:"object2"`
	Relation string `json:"relation"`
}

const (
	AlignedVertically   = "aligned_vertically"
	AlignedHorizontally = "aligned_horizontally"
	Separate            = "separate"
)

// Summary is the structured scene handed to a Describer.
type Summary struct {
	Objects   []Object   `json:"objects"`
	Texts     []Text     `json:"text_regions"`
	Relations []Relation `json:"spatial_relations"`
}

// Empty reports whether the summary holds nothing to describe.
func (s Summary) Empty() bool {
	return len(s.Objects) == 0 && len(s.Texts) == 0
}

// Build summarises ranked risk events. Obstacle events duplicate an object
// and are left out. Event order is kept.
func Build(events []risk.Event) Summary {
	var s Summary
	for _, ev := range events {
		switch ev.Kind {
		case risk.KindObject:
			name := ev.Meta.ClassName
			if name == "" {
				name = "unknown"
			}
			s.Objects = append(s.Objects, Object{
				Type:     name,
				Location: ev.Location,
				Distance: ev.Distance,
				Priority: ev.Priority,
				TrackID:  ev.Meta.TrackID,
				Velocity: ev.Velocity,
			})
		case risk.KindText:
			s.Texts = append(s.Texts, Text{
				Text:     ev.Meta.Text,
				Location: ev.Location,
				Priority: ev.Priority,
			})
		}
	}

	for i, a := range s.Objects {
		for _, b := range s.Objects[i+1:] {
			if a.Location == nil || b.Location == nil {
				continue
			}
			s.Relations = append(s.Relations, Relation{A: a.Type, B: b.Type, Relation: relate(*a.Location, *b.Location)})
		}
	}
	return s
}

func relate(a, b perception.Point) string {
	switch {
	case math.Abs(a.X-b.X) < RelationTolerance:
		return AlignedVertically
	case math.Abs(a.Y-b.Y) < RelationTolerance:
		return AlignedHorizontally
	default:
		return Separate
	}
}

// Prompt renders the summary as the user message for a chat model.
func (s Summary) Prompt() string {
	var b strings.Builder
	b.WriteString("Current scene:\n")

	if len(s.Objects) > 0 {
		b.WriteString("\nObjects detected:\n")
		for _, o := range head(s.Objects, 5) {
			fmt.Fprintf(&b, "- %s", o.Type)
			if o.Distance != nil {
				fmt.Fprintf(&b, " (distance: %.2f)", *o.Distance)
			}
			if o.Location != nil {
				fmt.Fprintf(&b, " at position (%.0f, %.0f)", o.Location.X, o.Location.Y)
			}
			b.WriteByte('\n')
		}
	}

	if len(s.Texts) > 0 {
		b.WriteString("\nText detected:\n")
		for _, t := range head(s.Texts, 3) {
			fmt.Fprintf(&b, "- %q\n", t.Text)
		}
	}

	if len(s.Relations) > 0 {
		b.WriteString("\nSpatial relationships:\n")
		for _, r := range head(s.Relations, 3) {
			fmt.Fprintf(&b, "- %s and %s are %s\n", r.A, r.B, r.Relation)
		}
	}

	b.WriteString("\nGenerate a description appropriate for visually impaired navigation.")
	return b.String()
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
