package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectIntIoU(t *testing.T) {
	a := NewRectInt(0, 0, 10, 10)

	assert.InDelta(t, 1.0, a.IoU(a), 1e-9, "identical rects")
	assert.Equal(t, 0.0, a.IoU(NewRectInt(20, 20, 10, 10)), "disjoint rects")

	// Half overlap: intersection 50, union 150.
	b := NewRectInt(5, 0, 10, 10)
	assert.InDelta(t, 50.0/150.0, a.IoU(b), 1e-9)
}

func TestRectIntIntersectUnion(t *testing.T) {
	a := NewRectInt(0, 0, 10, 10)
	b := NewRectInt(5, 5, 10, 10)

	inter := a.Intersect(b)
	assert.Equal(t, NewRectInt(5, 5, 5, 5), inter)

	union := a.Union(b)
	assert.Equal(t, NewRectInt(0, 0, 15, 15), union)

	assert.True(t, a.Intersect(NewRectInt(50, 50, 5, 5)).Empty())
}

func TestRectIntClip(t *testing.T) {
	r := NewRectInt(-5, -5, 20, 20)
	clipped := r.Clip(10, 10)
	assert.Equal(t, NewRectInt(0, 0, 10, 10), clipped)

	outside := NewRectInt(100, 100, 10, 10)
	assert.True(t, outside.Clip(50, 50).Empty())
}

func TestRectIntCenterAndContains(t *testing.T) {
	r := NewRectInt(10, 20, 4, 6)
	assert.Equal(t, Point2D{X: 12, Y: 23}, r.Center())
	assert.True(t, r.Contains(PointInt{X: 11, Y: 21}))
	assert.False(t, r.Contains(PointInt{X: 14, Y: 21}))
}

func TestRectIntTranslateScale(t *testing.T) {
	r := NewRectInt(1, 2, 3, 4)
	assert.Equal(t, NewRectInt(11, 22, 3, 4), r.Translate(10, 20))
	assert.Equal(t, NewRectInt(2, 4, 6, 8), r.Scale(2.0))
}

func TestPointDistance(t *testing.T) {
	a := Point2D{X: 0, Y: 0}
	b := Point2D{X: 3, Y: 4}
	assert.InDelta(t, 5.0, a.Distance(b), 1e-9)
}

func TestConvexHullSquare(t *testing.T) {
	points := []Point2D{
		{0, 0}, {10, 0}, {10, 10}, {0, 10},
		{5, 5}, {3, 7}, // interior points drop out
	}
	hull := ConvexHull(points)
	assert.Len(t, hull, 4)
	assert.InDelta(t, 100.0, PolygonArea(hull), 1e-9)
}

func TestPolygonCentroid(t *testing.T) {
	square := []Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	c := PolygonCentroid(square)
	assert.InDelta(t, 5.0, c.X, 1e-9)
	assert.InDelta(t, 5.0, c.Y, 1e-9)
}
