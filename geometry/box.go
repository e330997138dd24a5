// Package geometry provides the bounding-box primitives shared by every
// other package in railwatch: the Box type and the IoU metric used as
// the sole association score by the tracker.
package geometry

// Box is an axis-aligned bounding box in pixel coordinates of the
// post-resize frame. X1 <= X2 and Y1 <= Y2 hold for any box produced
// by the detector or the tracker; callers constructing a Box by hand
// are responsible for that ordering.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the box width, clamped to zero for degenerate boxes.
func (b Box) Width() float64 {
	if w := b.X2 - b.X1; w > 0 {
		return w
	}
	return 0
}

// Height returns the box height, clamped to zero for degenerate boxes.
func (b Box) Height() float64 {
	if h := b.Y2 - b.Y1; h > 0 {
		return h
	}
	return 0
}

// Area returns the box area, zero for degenerate (zero or negative
// width/height) boxes.
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the box's center point.
func (b Box) Center() (cx, cy float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Translate returns a copy of b shifted by (dx, dy).
func (b Box) Translate(dx, dy float64) Box {
	return Box{b.X1 + dx, b.Y1 + dy, b.X2 + dx, b.Y2 + dy}
}

// IoU returns the intersection-over-union of a and b: intersection
// area divided by union area, or 0 when the union has zero area.
// Negative-width/height overlaps (disjoint boxes) are clamped to zero
// before computing the intersection, matching the axis-aligned overlap
// definition in spec.md §4.1.
func IoU(a, b Box) float64 {
	xi1, yi1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	xi2, yi2 := min(a.X2, b.X2), min(a.Y2, b.Y2)

	interW := xi2 - xi1
	if interW < 0 {
		interW = 0
	}
	interH := yi2 - yi1
	if interH < 0 {
		interH = 0
	}
	inter := interW * interH

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
