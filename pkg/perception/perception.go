// Package perception defines the per-frame computer-vision output consumed by
// the hazard pipeline: detections, tracks, recognised text, relative depth and
// the walkable-area mask.
//
// Model inference is not done here. A Provider turns a camera frame into an
// Output; Replay feeds recorded Outputs back so the pipeline can run without
// any models loaded.
package perception

import (
	"context"
	"math"
)

// Point is a 2D image-space point in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector is a 2D velocity in pixels per frame.
type Vector struct {
	X float64 `json:"vx"`
	Y float64 `json:"vy"`
}

// Magnitude returns the Euclidean length of the vector.
func (v Vector) Magnitude() float64 {
	return math.Hypot(v.X, v.Y)
}

// BBox is an axis-aligned bounding box in pixels (x1,y1 top-left; x2,y2 bottom-right).
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Center returns the center point of the box.
func (b BBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Area returns the area of the box, 0 for degenerate boxes.
func (b BBox) Area() float64 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Valid reports whether all coordinates are finite and the box is not inverted.
func (b BBox) Valid() bool {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 >= b.X1 && b.Y2 >= b.Y1
}

// Detection is a single object detection for one frame.
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	TrackID    *int    `json:"track_id,omitempty"`
}

// Track is a tracker-owned object history. The pipeline only reads it.
type Track struct {
	ID         int     `json:"id"`
	Trajectory []Point `json:"trajectory"` // most recent last
	Velocity   *Vector `json:"velocity,omitempty"`
	Age        int     `json:"age"` // frames since last matched
}

// TextRegion is a recognised OCR string.
type TextRegion struct {
	BBox       BBox    `json:"bbox"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Output is everything perception produced for one frame.
type Output struct {
	Detections  []Detection  `json:"detections"`
	Tracks      []Track      `json:"tracks"`
	TextRegions []TextRegion `json:"text_regions"`
	Depth       *DepthMap    `json:"depth,omitempty"`
	Walkable    *Mask        `json:"walkable,omitempty"`
}

// TrackIndex maps track IDs to tracks for lookups by detection.
func (o *Output) TrackIndex() map[int]*Track {
	idx := make(map[int]*Track, len(o.Tracks))
	for i := range o.Tracks {
		idx[o.Tracks[i].ID] = &o.Tracks[i]
	}
	return idx
}

// Provider turns a camera frame into perception output.
// Implementations wrap detection, tracking, OCR and depth models.
type Provider interface {
	Process(ctx context.Context, jpeg []byte) (*Output, error)
}

// Source yields one perception Output per frame.
// Next returns io.EOF when no more frames are available.
type Source interface {
	Next(ctx context.Context) (*Output, error)
}

// Camera captures frames for a Provider.
type Camera interface {
	CaptureJPEG() ([]byte, error)
}
