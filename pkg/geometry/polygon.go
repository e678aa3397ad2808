package geometry

// ConvexHull computes the convex hull of a set of points using Graham scan.
// Returns the points forming the convex hull in counter-clockwise order.
func ConvexHull(points []Point2D) []Point2D {
	if len(points) < 3 {
		return points
	}

	// Make a copy to avoid modifying the input
	pts := make([]Point2D, len(points))
	copy(pts, points)

	// Find the point with lowest y (and leftmost if tied)
	lowest := 0
	for i := 1; i < len(pts); i++ {
		if pts[i].Y < pts[lowest].Y ||
			(pts[i].Y == pts[lowest].Y && pts[i].X < pts[lowest].X) {
			lowest = i
		}
	}

	// Swap to front
	pts[0], pts[lowest] = pts[lowest], pts[0]
	pivot := pts[0]

	// Sort by polar angle with respect to pivot
	sorted := make([]Point2D, len(pts)-1)
	copy(sorted, pts[1:])

	// Sort by angle (bubble sort for simplicity)
	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			cross := crossProduct(pivot, sorted[i], sorted[j])
			if cross < 0 || (cross == 0 && distSq(pivot, sorted[i]) > distSq(pivot, sorted[j])) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	// Build hull
	hull := []Point2D{pivot}
	for _, p := range sorted {
		for len(hull) > 1 && crossProduct(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull
}

// PolygonArea computes the unsigned area of a simple polygon using the
// shoelace formula.
func PolygonArea(polygon []Point2D) float64 {
	if len(polygon) < 3 {
		return 0.0
	}

	var sum float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}

	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

// PolygonCentroid computes the area-weighted centroid of a simple polygon.
// Degenerate polygons fall back to the vertex average.
func PolygonCentroid(polygon []Point2D) Point2D {
	if len(polygon) < 3 {
		return Centroid(polygon)
	}

	var cx, cy, signed float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
		signed += cross
		cx += (polygon[i].X + polygon[j].X) * cross
		cy += (polygon[i].Y + polygon[j].Y) * cross
	}

	if signed == 0 {
		return Centroid(polygon)
	}
	signed /= 2
	return Point2D{X: cx / (6 * signed), Y: cy / (6 * signed)}
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// distSq computes the squared distance between two points.
func distSq(a, b Point2D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return dx*dx + dy*dy
}
