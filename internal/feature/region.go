package feature

import (
	"image"

	"gocv.io/x/gocv"

	"ui-recognizer/internal/pyramid"
	"ui-recognizer/pkg/geometry"
)

// Region is one segmentation candidate: a connected area of the frame that
// may contain a UI element. Contour is present only for contour-sourced
// regions; component-sourced regions carry geometry alone.
type Region struct {
	Bounds   geometry.RectInt
	Area     float64
	Centroid geometry.Point2D
	Contour  []geometry.Point2D
}

// SegmentRegions finds candidate regions on a level's feature maps using
// both sources: external contours of the morphologically closed edge map,
// and connected components of the thresholded gradient magnitude.
// Duplicates between the two sources are tolerated; spatial optimization
// resolves them later.
func (e *Extractor) SegmentRegions(lf *pyramid.LevelFeatures) []Region {
	regions := e.segmentByContour(lf, true)
	regions = append(regions, e.segmentByGradient(lf)...)
	return regions
}

// SegmentRegionsSimple is the cheaper contour-only pass used for non-zero
// pyramid levels.
func (e *Extractor) SegmentRegionsSimple(lf *pyramid.LevelFeatures) []Region {
	return e.segmentByContour(lf, false)
}

func (e *Extractor) segmentByContour(lf *pyramid.LevelFeatures, closeEdges bool) []Region {
	if lf == nil || lf.Edges.Empty() {
		return nil
	}

	src := lf.Edges
	if closeEdges {
		// Bridge broken edges before contour extraction.
		closed := gocv.NewMat()
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(e.kernelSize, e.kernelSize))
		gocv.MorphologyEx(lf.Edges, &closed, gocv.MorphClose, kernel)
		kernel.Close()
		defer closed.Close()
		src = closed
	}

	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []Region
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < e.minArea || area > e.maxArea {
			continue
		}

		rect := gocv.BoundingRect(contour)
		points := contourPoints(contour)
		regions = append(regions, Region{
			Bounds:   geometry.NewRectInt(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()),
			Area:     area,
			Centroid: geometry.PolygonCentroid(points),
			Contour:  points,
		})
	}
	return regions
}

// segmentByGradient thresholds the gradient-magnitude map at mean + 1σ and
// labels connected components as a second candidate source.
func (e *Extractor) segmentByGradient(lf *pyramid.LevelFeatures) []Region {
	if lf == nil || lf.GradMag.Empty() {
		return nil
	}

	meanMat := gocv.NewMat()
	stdMat := gocv.NewMat()
	gocv.MeanStdDev(lf.GradMag, &meanMat, &stdMat)
	thresh := float32(meanMat.GetDoubleAt(0, 0) + stdMat.GetDoubleAt(0, 0))
	meanMat.Close()
	stdMat.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(lf.GradMag, &binary, thresh, 255, gocv.ThresholdBinary)

	binary8 := gocv.NewMat()
	defer binary8.Close()
	binary.ConvertTo(&binary8, gocv.MatTypeCV8U)

	labels := gocv.NewMat()
	stats := gocv.NewMat()
	centroids := gocv.NewMat()
	defer labels.Close()
	defer stats.Close()
	defer centroids.Close()
	count := gocv.ConnectedComponentsWithStats(binary8, &labels, &stats, &centroids)

	var regions []Region
	for i := 1; i < count; i++ { // label 0 is background
		area := float64(stats.GetIntAt(i, int(gocv.CC_STAT_AREA)))
		if area < e.minArea || area > e.maxArea {
			continue
		}
		regions = append(regions, Region{
			Bounds: geometry.NewRectInt(
				int(stats.GetIntAt(i, int(gocv.CC_STAT_LEFT))),
				int(stats.GetIntAt(i, int(gocv.CC_STAT_TOP))),
				int(stats.GetIntAt(i, int(gocv.CC_STAT_WIDTH))),
				int(stats.GetIntAt(i, int(gocv.CC_STAT_HEIGHT))),
			),
			Area: area,
			Centroid: geometry.Point2D{
				X: centroids.GetDoubleAt(i, 0),
				Y: centroids.GetDoubleAt(i, 1),
			},
		})
	}
	return regions
}

func contourPoints(contour gocv.PointVector) []geometry.Point2D {
	points := make([]geometry.Point2D, 0, contour.Size())
	for _, p := range contour.ToPoints() {
		points = append(points, geometry.Point2D{X: float64(p.X), Y: float64(p.Y)})
	}
	return points
}
