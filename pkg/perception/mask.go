package perception

// Mask is a walkable-area segmentation mask, row-major, true where the user
// can safely walk.
type Mask struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Cells  []bool `json:"cells"`
}

// NewMask returns an all-false mask of the given size.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Cells: make([]bool, width*height)}
}

// Fill marks every pixel inside b as walkable.
func (m *Mask) Fill(b BBox) {
	x1, y1, x2, y2, ok := m.clip(b)
	if !ok {
		return
	}
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			m.Cells[y*m.Width+x] = true
		}
	}
}

// Overlap returns the fraction of the box's in-frame pixels that are walkable.
// Boxes with no in-frame area overlap by 0.
func (m *Mask) Overlap(b BBox) float64 {
	if m == nil || !b.Valid() {
		return 0
	}
	x1, y1, x2, y2, ok := m.clip(b)
	if !ok {
		return 0
	}

	var total, walkable int
	for y := y1; y < y2; y++ {
		row := y * m.Width
		for x := x1; x < x2; x++ {
			total++
			if row+x < len(m.Cells) && m.Cells[row+x] {
				walkable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(walkable) / float64(total)
}

// clip converts b to integer pixel bounds clipped to the mask.
func (m *Mask) clip(b BBox) (x1, y1, x2, y2 int, ok bool) {
	x1, y1 = max(0, int(b.X1)), max(0, int(b.Y1))
	x2, y2 = min(m.Width, int(b.X2)), min(m.Height, int(b.Y2))
	return x1, y1, x2, y2, x2 > x1 && y2 > y1
}
