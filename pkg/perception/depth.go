package perception

import "math"

// DepthMap holds normalized relative depth in [0,1], lower is closer.
// Values are stored row-major, Width*Height long.
type DepthMap struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Relative []float64 `json:"relative"`
}

// At returns the relative depth at pixel (x, y).
// ok is false when the pixel is outside the map or the sample is not a
// finite value in [0,1].
func (d *DepthMap) At(x, y int) (float64, bool) {
	if d == nil || x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0, false
	}
	i := y*d.Width + x
	if i >= len(d.Relative) {
		return 0, false
	}
	v := d.Relative[i]
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// AtCenter samples the depth at the integer center of a bounding box.
func (d *DepthMap) AtCenter(b BBox) (float64, bool) {
	c := b.Center()
	return d.At(int(c.X), int(c.Y))
}

// DistanceCategory returns a spoken distance bucket for a relative depth.
func DistanceCategory(depth float64) string {
	switch {
	case depth < 0:
		return "unknown"
	case depth < 0.15:
		return "very close"
	case depth < 0.3:
		return "close"
	case depth < 0.5:
		return "nearby"
	case depth < 0.75:
		return "moderate"
	default:
		return "far"
	}
}

// Side describes where x falls in a frame of the given width, split into thirds.
func Side(x float64, frameWidth int) string {
	if frameWidth <= 0 {
		return "ahead"
	}
	third := float64(frameWidth) / 3
	switch {
	case x < third:
		return "on the left"
	case x > 2*third:
		return "on the right"
	default:
		return "ahead"
	}
}
