package model

import "math"

// Rect is an axis-aligned rectangle with its origin at the top-left corner.
type Rect struct {
	X, Y, W, H float64
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Center returns the rectangle's center point.
func (r Rect) Center() Position { return Position{X: r.X + r.W/2, Y: r.Y + r.H/2} }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Inflate returns r grown by d on every side.
func (r Rect) Inflate(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, W: r.W + 2*d, H: r.H + 2*d}
}

// Overlaps reports whether r and o are closer than gap on both axes.
// With gap 0 this is a strict intersection test: touching edges do not
// overlap. Empty rectangles never overlap anything.
func (r Rect) Overlaps(o Rect, gap float64) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.Right()+gap && o.X < r.Right()+gap &&
		r.Y < o.Bottom()+gap && o.Y < r.Bottom()+gap
}

// SnapDown rounds v down to a multiple of grid.
func SnapDown(v, grid float64) float64 {
	if grid <= 0 {
		return v
	}
	return math.Floor(v/grid) * grid
}

// SnapUp rounds v up to a multiple of grid.
func SnapUp(v, grid float64) float64 {
	if grid <= 0 {
		return v
	}
	return math.Ceil(v/grid) * grid
}

// SnapNearest rounds v to the nearest multiple of grid.
func SnapNearest(v, grid float64) float64 {
	if grid <= 0 {
		return v
	}
	return math.Round(v/grid) * grid
}
