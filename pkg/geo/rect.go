package geo

import "math"

// Rect is an axis-aligned rectangle in screen pixels.
// Top is numerically smaller than Bottom.
type Rect struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// RectFromSize builds a rectangle from an origin and a size.
func RectFromSize(left, top, width, height float64) Rect {
	return Rect{Left: left, Top: top, Right: left + width, Bottom: top + height}
}

// Width returns the horizontal extent, never negative.
func (r Rect) Width() float64 {
	return math.Max(0, r.Right-r.Left)
}

// Height returns the vertical extent, never negative.
func (r Rect) Height() float64 {
	return math.Max(0, r.Bottom-r.Top)
}

// Area returns Width*Height.
func (r Rect) Area() float64 {
	return r.Width() * r.Height()
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width() == 0 || r.Height() == 0
}

// Intersect returns the overlapping region of r and o.
// Disjoint rectangles yield a rectangle with zero width or height.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		Left:   math.Max(r.Left, o.Left),
		Right:  math.Min(r.Right, o.Right),
		Top:    math.Max(r.Top, o.Top),
		Bottom: math.Min(r.Bottom, o.Bottom),
	}
	if out.Right < out.Left {
		out.Right = out.Left
	}
	if out.Bottom < out.Top {
		out.Bottom = out.Top
	}
	return out
}

// IntersectionArea returns the overlapping area of two rectangles, 0 when disjoint.
func IntersectionArea(a, b Rect) float64 {
	w := math.Min(a.Right, b.Right) - math.Max(a.Left, b.Left)
	h := math.Min(a.Bottom, b.Bottom) - math.Max(a.Top, b.Top)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// OverlapRatio returns the intersection area relative to the smaller of the two areas.
// A small rectangle fully inside a large one therefore scores 1.0.
// Degenerate rectangles never overlap.
func OverlapRatio(a, b Rect) float64 {
	minArea := math.Min(a.Area(), b.Area())
	if minArea <= 0 {
		return 0
	}
	return IntersectionArea(a, b) / minArea
}
