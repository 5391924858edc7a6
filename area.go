package subpic

import "fmt"

// Area is the screen zone on which a subtitle image is displayed, expressed
// as inclusive pixel coordinates.
type Area struct {
	X1, Y1, X2, Y2 int
}

// NewArea validates the bounding values. Bounding boxes with non positive
// width or height have been seen in the wild on damaged streams and would
// break every computation downstream, so they are rejected at construction.
func NewArea(x1, y1, x2, y2 int) (a Area, err error) {
	if x2 < x1 || y2 < y1 {
		err = fmt.Errorf("invalid area bounding (%d,%d)-(%d,%d): %w", x1, y1, x2, y2, ErrMalformedHeader)
		return
	}
	a = Area{X1: x1, Y1: y1, X2: x2, Y2: y2}
	return
}

// Left returns the leftmost edge of the area.
func (a Area) Left() int {
	return a.X1
}

// Top returns the topmost edge of the area.
func (a Area) Top() int {
	return a.Y1
}

// Width returns the area width in pixels.
func (a Area) Width() int {
	return a.X2 + 1 - a.X1
}

// Height returns the area height in pixels.
func (a Area) Height() int {
	return a.Y2 + 1 - a.Y1
}

// Intersect reports whether other overlaps a.
func (a Area) Intersect(other Area) bool {
	return a.X1 <= other.X2 && a.X2 >= other.X1 &&
		a.Y1 <= other.Y2 && a.Y2 >= other.Y1
}

// Contains reports whether other is fully within a bounds.
func (a Area) Contains(other Area) bool {
	return a.X1 <= other.X1 && a.X2 >= other.X2 &&
		a.Y1 <= other.Y1 && a.Y2 >= other.Y2
}

// Extend grows the area to also cover other.
func (a Area) Extend(other Area) Area {
	return Area{
		X1: min(a.X1, other.X1),
		Y1: min(a.Y1, other.Y1),
		X2: max(a.X2, other.X2),
		Y2: max(a.Y2, other.Y2),
	}
}
