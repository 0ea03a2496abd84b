package risk

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
)

// Scorer computes risk scores and ranks a frame's events.
// It holds no per-frame state and is safe for concurrent use.
type Scorer struct {
	config  Config
	weights map[string]float64
	logger  *slog.Logger
}

// NewScorer creates a scorer. Class weight keys are matched case-insensitively.
func NewScorer(cfg Config, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	weights := make(map[string]float64, len(cfg.ClassWeights))
	for k, v := range cfg.ClassWeights {
		weights[strings.ToLower(k)] = v
	}
	return &Scorer{
		config:  cfg,
		weights: weights,
		logger:  logger.With("component", "risk.scorer"),
	}
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.config
}

// ClassWeight returns the danger weight for a class name.
func (s *Scorer) ClassWeight(className string) float64 {
	if w, ok := s.weights[strings.ToLower(className)]; ok {
		return w
	}
	return s.config.DefaultClassWeight
}

// Score computes the risk score of a detection. track, depth and walkable
// are optional; a nil value skips that term.
func (s *Scorer) Score(det perception.Detection, track *perception.Track, depth *perception.DepthMap, walkable *perception.Mask) float64 {
	score := s.ClassWeight(det.ClassName) * det.Confidence

	if d, ok := depth.AtCenter(det.BBox); ok {
		score += (1 - d) * s.config.ProximityWeight
	}

	if track != nil && track.Velocity != nil {
		if speed := track.Velocity.Magnitude(); speed > s.config.ApproachThreshold {
			score += speed * s.config.ApproachWeight
		}
	}

	if walkable != nil && walkable.Overlap(det.BBox) > s.config.PathOverlapRatio {
		score += s.config.PathOverlapBonus
	}

	// Damp low-confidence detections without zeroing them.
	return score * (0.5 + 0.5*det.Confidence)
}

// TextScore computes the risk score of an OCR region.
func (s *Scorer) TextScore(region perception.TextRegion) float64 {
	score := s.config.TextBase * region.Confidence
	if s.hasKeyword(region.Text) {
		score += s.config.KeywordBonus
	}
	return score
}

func (s *Scorer) hasKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range s.config.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Prioritize scores every detection and text region of a frame and returns
// the top-N events by descending priority. Ties keep input order: objects,
// then text, then obstacles.
func (s *Scorer) Prioritize(out *perception.Output) []Event {
	if out == nil {
		return nil
	}

	tracks := out.TrackIndex()
	var objects, obstacles []Event

	for _, det := range out.Detections {
		if !validDetection(det) {
			s.logger.Debug("dropping malformed detection",
				"class", det.ClassName,
				"confidence", det.Confidence,
			)
			continue
		}

		var track *perception.Track
		if det.TrackID != nil {
			track = tracks[*det.TrackID]
		}

		objects = append(objects, s.objectEvent(det, track, out.Depth, out.Walkable))

		if out.Walkable != nil && out.Walkable.Overlap(det.BBox) > s.config.ObstacleOverlapRatio {
			obstacles = append(obstacles, s.obstacleEvent(det))
		}
	}

	texts := make([]Event, 0, len(out.TextRegions))
	for _, region := range out.TextRegions {
		if strings.TrimSpace(region.Text) == "" || !region.BBox.Valid() || !finite(region.Confidence) {
			s.logger.Debug("dropping malformed text region", "text", region.Text)
			continue
		}
		texts = append(texts, s.textEvent(region))
	}

	events := make([]Event, 0, len(objects)+len(texts)+len(obstacles))
	events = append(events, objects...)
	events = append(events, texts...)
	events = append(events, obstacles...)

	return Rank(events, s.config.MaxItems)
}

// Rank sorts events by descending priority, keeping input order for ties,
// and truncates to the first n.
func Rank(events []Event, n int) []Event {
	slices.SortStableFunc(events, func(a, b Event) int {
		switch {
		case a.Priority > b.Priority:
			return -1
		case a.Priority < b.Priority:
			return 1
		default:
			return 0
		}
	})
	if n >= 0 && len(events) > n {
		events = events[:n]
	}
	return events
}

func (s *Scorer) objectEvent(det perception.Detection, track *perception.Track, depth *perception.DepthMap, walkable *perception.Mask) Event {
	center := det.BBox.Center()
	ev := Event{
		Kind:        KindObject,
		Priority:    s.Score(det, track, depth, walkable),
		Description: fmt.Sprintf("%s (confidence: %.2f)", det.ClassName, det.Confidence),
		Location:    &center,
		Meta: Metadata{
			ClassName: det.ClassName,
			ClassID:   det.ClassID,
			TrackID:   det.TrackID,
			BBox:      det.BBox,
		},
	}
	if d, ok := depth.AtCenter(det.BBox); ok {
		ev.Distance = &d
	}
	if track != nil && track.Velocity != nil {
		v := *track.Velocity
		ev.Velocity = &v
	}
	return ev
}

func (s *Scorer) obstacleEvent(det perception.Detection) Event {
	center := det.BBox.Center()
	return Event{
		Kind:        KindObstacle,
		Priority:    s.config.ObstaclePriority,
		Description: "Obstacle in path: " + det.ClassName,
		Location:    &center,
		Meta: Metadata{
			ClassName: det.ClassName,
			ClassID:   det.ClassID,
			TrackID:   det.TrackID,
			BBox:      det.BBox,
		},
	}
}

func (s *Scorer) textEvent(region perception.TextRegion) Event {
	center := region.BBox.Center()
	return Event{
		Kind:        KindText,
		Priority:    s.TextScore(region),
		Description: "Text: " + region.Text,
		Location:    &center,
		Meta: Metadata{
			Text: region.Text,
			BBox: region.BBox,
		},
	}
}

func validDetection(det perception.Detection) bool {
	return det.BBox.Valid() && finite(det.Confidence)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
