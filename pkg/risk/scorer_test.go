package risk

import (
	"math"
	"testing"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func intPtr(v int) *int { return &v }

func newScorer() *Scorer {
	return NewScorer(DefaultConfig(), nil)
}

// walkableFrame returns a 100x100 mask whose bottom half is walkable.
func walkableFrame() *perception.Mask {
	m := perception.NewMask(100, 100)
	m.Fill(perception.BBox{X1: 0, Y1: 50, X2: 100, Y2: 100})
	return m
}

func TestScore_CarInPath(t *testing.T) {
	s := newScorer()
	mask := walkableFrame()
	// Covers 40% of the walkable half, entirely inside it.
	car := perception.Detection{
		BBox:       perception.BBox{X1: 0, Y1: 50, X2: 40, Y2: 100},
		Confidence: 0.9,
		ClassName:  "car",
	}

	got := s.Score(car, nil, nil, mask)
	want := (10.0*0.9 + 8.0) * (0.5 + 0.5*0.9) // 16.15
	if !floatEquals(got, want) {
		t.Errorf("Score: got %v, want %v", got, want)
	}

	events := s.Prioritize(&perception.Output{
		Detections: []perception.Detection{car},
		Walkable:   mask,
	})
	if len(events) != 2 {
		t.Fatalf("expected object + obstacle events, got %d", len(events))
	}
	if events[0].Kind != KindObject || !floatEquals(events[0].Priority, 16.15) {
		t.Errorf("first event: got %s %.2f, want object 16.15", events[0].Kind, events[0].Priority)
	}
	if events[1].Kind != KindObstacle || events[1].Priority != 15.0 {
		t.Errorf("second event: got %s %.2f, want obstacle 15.0", events[1].Kind, events[1].Priority)
	}
	if events[1].Description != "Obstacle in path: car" {
		t.Errorf("obstacle description: got %q", events[1].Description)
	}
}

func TestScore_Terms(t *testing.T) {
	s := newScorer()
	det := perception.Detection{
		BBox:       perception.BBox{X1: 0, Y1: 0, X2: 2, Y2: 2},
		Confidence: 1.0,
		ClassName:  "Person",
	}
	depth := &perception.DepthMap{Width: 4, Height: 4, Relative: make([]float64, 16)}
	depth.Relative[1*4+1] = 0.2 // center of the box

	tests := []struct {
		name  string
		track *perception.Track
		depth *perception.DepthMap
		want  float64
	}{
		{
			name: "base only, case-insensitive class",
			want: 5.0,
		},
		{
			name:  "proximity",
			depth: depth,
			want:  5.0 + 0.8*5.0,
		},
		{
			name:  "slow track ignored",
			track: &perception.Track{ID: 1, Velocity: &perception.Vector{X: 0.3, Y: 0.3}},
			want:  5.0,
		},
		{
			name:  "fast track adds approach",
			track: &perception.Track{ID: 1, Velocity: &perception.Vector{X: 3, Y: 4}},
			want:  5.0 + 5*2.0,
		},
		{
			name:  "track without velocity",
			track: &perception.Track{ID: 1},
			want:  5.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Score(det, tc.track, tc.depth, nil)
			if !floatEquals(got, tc.want) {
				t.Errorf("Score: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScore_UnknownClassAndLowConfidence(t *testing.T) {
	s := newScorer()
	det := perception.Detection{
		BBox:       perception.BBox{X1: 0, Y1: 0, X2: 1, Y2: 1},
		Confidence: 0.2,
		ClassName:  "umbrella",
	}
	got := s.Score(det, nil, nil, nil)
	want := 1.0 * 0.2 * (0.5 + 0.1)
	if !floatEquals(got, want) {
		t.Errorf("Score: got %v, want %v", got, want)
	}
	if got <= 0 {
		t.Error("low confidence must damp, not zero")
	}
}

func TestScore_ZeroAreaDetectionAgainstMask(t *testing.T) {
	s := newScorer()
	det := perception.Detection{
		BBox:       perception.BBox{X1: 60, Y1: 60, X2: 60, Y2: 60},
		Confidence: 1.0,
		ClassName:  "chair",
	}
	got := s.Score(det, nil, nil, walkableFrame())
	if !floatEquals(got, 2.0) {
		t.Errorf("zero-area box should get no path bonus: got %v", got)
	}
}

func TestTextScore(t *testing.T) {
	s := newScorer()

	tests := []struct {
		name   string
		region perception.TextRegion
		want   float64
	}{
		{"stop sign", perception.TextRegion{Text: "STOP", Confidence: 0.95}, 6.9},
		{"keyword inside word", perception.TextRegion{Text: "Emergency Exit", Confidence: 0.5}, 6.0},
		{"plain text", perception.TextRegion{Text: "Bakery", Confidence: 0.8}, 1.6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.TextScore(tc.region)
			if !floatEquals(got, tc.want) {
				t.Errorf("TextScore: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPrioritize_TopNAndStableTies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxItems = 3
	s := NewScorer(cfg, nil)

	box := perception.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	out := &perception.Output{
		Detections: []perception.Detection{
			{BBox: box, Confidence: 1, ClassName: "chair", TrackID: intPtr(1)},
			{BBox: box, Confidence: 1, ClassName: "car", TrackID: intPtr(2)},
			{BBox: box, Confidence: 1, ClassName: "couch", TrackID: intPtr(3)},
			{BBox: box, Confidence: 1, ClassName: "cat", TrackID: intPtr(4)},
		},
	}

	events := s.Prioritize(out)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	// car(10) > cat(3) > chair(2) == couch(2); chair came first.
	want := []int{2, 4, 1}
	for i, id := range want {
		if got := *events[i].Meta.TrackID; got != id {
			t.Errorf("event %d: got track %d, want %d", i, got, id)
		}
	}
}

func TestPrioritize_BadDepthSamplesIgnored(t *testing.T) {
	s := newScorer()
	det := perception.Detection{
		BBox:       perception.BBox{X1: 0, Y1: 0, X2: 2, Y2: 2},
		Confidence: 1.0,
		ClassName:  "person",
	}

	for _, sample := range []float64{math.NaN(), math.Inf(-1), -3, 7} {
		depth := &perception.DepthMap{Width: 4, Height: 4, Relative: make([]float64, 16)}
		depth.Relative[1*4+1] = sample

		if got := s.Score(det, nil, depth, nil); !floatEquals(got, 5.0) {
			t.Errorf("depth %v: score %v, want 5.0 without the proximity term", sample, got)
		}

		events := s.Prioritize(&perception.Output{
			Detections: []perception.Detection{det, {
				BBox:       perception.BBox{X1: 0, Y1: 0, X2: 2, Y2: 2},
				Confidence: 0.9,
				ClassName:  "car",
			}},
			Depth: depth,
		})
		if len(events) != 2 || events[0].Meta.ClassName != "car" {
			t.Fatalf("depth %v: unexpected order %+v", sample, events)
		}
		for _, ev := range events {
			if math.IsNaN(ev.Priority) || ev.Distance != nil {
				t.Errorf("depth %v: event %+v carries a bad sample", sample, ev)
			}
		}
	}
}

func TestPrioritize_TrackVelocityAndDistanceCarried(t *testing.T) {
	s := newScorer()
	depth := &perception.DepthMap{Width: 20, Height: 20, Relative: make([]float64, 400)}
	for i := range depth.Relative {
		depth.Relative[i] = 0.25
	}
	out := &perception.Output{
		Detections: []perception.Detection{{
			BBox:       perception.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
			Confidence: 0.8,
			ClassName:  "bicycle",
			TrackID:    intPtr(9),
		}},
		Tracks: []perception.Track{{ID: 9, Velocity: &perception.Vector{X: 1, Y: 0}}},
		Depth:  depth,
	}

	events := s.Prioritize(out)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Distance == nil || *ev.Distance != 0.25 {
		t.Errorf("expected distance 0.25, got %v", ev.Distance)
	}
	if ev.Velocity == nil || ev.Velocity.X != 1 {
		t.Errorf("expected velocity from track, got %v", ev.Velocity)
	}
	if ev.Location == nil || ev.Location.X != 5 || ev.Location.Y != 5 {
		t.Errorf("expected location (5,5), got %v", ev.Location)
	}
	if ev.Description != "bicycle (confidence: 0.80)" {
		t.Errorf("description: got %q", ev.Description)
	}
}

func TestPrioritize_DropsMalformed(t *testing.T) {
	s := newScorer()
	out := &perception.Output{
		Detections: []perception.Detection{
			{BBox: perception.BBox{X1: math.NaN(), Y1: 0, X2: 1, Y2: 1}, Confidence: 0.9, ClassName: "car"},
			{BBox: perception.BBox{X1: 0, Y1: 0, X2: 1, Y2: 1}, Confidence: math.Inf(1), ClassName: "bus"},
			{BBox: perception.BBox{X1: 0, Y1: 0, X2: 1, Y2: 1}, Confidence: 0.9, ClassName: "dog"},
		},
		TextRegions: []perception.TextRegion{
			{Text: "   ", Confidence: 0.9},
			{Text: "Caution", Confidence: 0.5},
		},
	}

	events := s.Prioritize(out)
	if len(events) != 2 {
		t.Fatalf("expected 2 surviving events, got %d", len(events))
	}
	if events[0].Kind != KindText || events[0].Meta.Text != "Caution" {
		t.Errorf("expected caution text first, got %+v", events[0])
	}
	if events[1].Meta.ClassName != "dog" {
		t.Errorf("expected dog second, got %+v", events[1])
	}
}

func TestPrioritize_NilOutput(t *testing.T) {
	if events := newScorer().Prioritize(nil); events != nil {
		t.Errorf("expected nil events, got %v", events)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.MaxItems = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero max items")
	}
	cfg = DefaultConfig()
	cfg.ObstacleOverlapRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for overlap ratio above 1")
	}
}
