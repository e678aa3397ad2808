// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PointInt represents a 2D point with integer coordinates.
type PointInt struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ToFloat converts to Point2D.
func (p PointInt) ToFloat() Point2D {
	return Point2D{X: float64(p.X), Y: float64(p.Y)}
}

// RectInt represents a rectangle with integer coordinates.
// Detections and regions of interest both use this form: (x, y) is the
// top-left corner, width and height extend right and down.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewRectInt creates a new RectInt.
func NewRectInt(x, y, width, height int) RectInt {
	return RectInt{X: x, Y: y, Width: width, Height: height}
}

// Area returns the rectangle area.
func (r RectInt) Area() int {
	return r.Width * r.Height
}

// Empty reports whether the rectangle has no area.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Center returns the center point of the rectangle.
func (r RectInt) Center() Point2D {
	return Point2D{X: float64(r.X) + float64(r.Width)/2, Y: float64(r.Y) + float64(r.Height)/2}
}

// CenterInt returns the center point with integer coordinates.
func (r RectInt) CenterInt() PointInt {
	return PointInt{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains returns true if the point is inside the rectangle.
func (r RectInt) Contains(p PointInt) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Intersect returns the overlapping region of two rectangles.
// The result is empty when they do not overlap.
func (r RectInt) Intersect(other RectInt) RectInt {
	left := max(r.X, other.X)
	top := max(r.Y, other.Y)
	right := min(r.X+r.Width, other.X+other.Width)
	bottom := min(r.Y+r.Height, other.Y+other.Height)
	if left >= right || top >= bottom {
		return RectInt{}
	}
	return RectInt{X: left, Y: top, Width: right - left, Height: bottom - top}
}

// Union returns the smallest rectangle containing both rectangles.
func (r RectInt) Union(other RectInt) RectInt {
	if r.Empty() {
		return other
	}
	if other.Empty() {
		return r
	}
	left := min(r.X, other.X)
	top := min(r.Y, other.Y)
	right := max(r.X+r.Width, other.X+other.Width)
	bottom := max(r.Y+r.Height, other.Y+other.Height)
	return RectInt{X: left, Y: top, Width: right - left, Height: bottom - top}
}

// IoU returns the intersection-over-union overlap ratio of two rectangles.
func (r RectInt) IoU(other RectInt) float64 {
	inter := r.Intersect(other).Area()
	if inter == 0 {
		return 0.0
	}
	union := r.Area() + other.Area() - inter
	if union <= 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

// Clip returns the rectangle clipped to the bounds (0, 0, width, height).
// Rectangles entirely outside the bounds collapse to an empty rectangle.
func (r RectInt) Clip(width, height int) RectInt {
	return r.Intersect(RectInt{X: 0, Y: 0, Width: width, Height: height})
}

// Translate returns the rectangle shifted by (dx, dy).
func (r RectInt) Translate(dx, dy int) RectInt {
	return RectInt{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Scale returns the rectangle with all coordinates multiplied by factor.
func (r RectInt) Scale(factor float64) RectInt {
	return RectInt{
		X:      int(math.Round(float64(r.X) * factor)),
		Y:      int(math.Round(float64(r.Y) * factor)),
		Width:  int(math.Round(float64(r.Width) * factor)),
		Height: int(math.Round(float64(r.Height) * factor)),
	}
}

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point2D{X: sumX / n, Y: sumY / n}
}

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point2D) RectInt {
	if len(points) == 0 {
		return RectInt{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return RectInt{
		X:      int(minX),
		Y:      int(minY),
		Width:  int(maxX-minX) + 1,
		Height: int(maxY-minY) + 1,
	}
}
