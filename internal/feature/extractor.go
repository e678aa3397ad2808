// Package feature segments candidate regions from pyramid feature maps and
// computes per-region descriptor vectors for classification.
package feature

import (
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ui-recognizer/internal/config"
	"ui-recognizer/internal/pyramid"
	"ui-recognizer/pkg/geometry"
)

// histogramBins is the bin count for both the LBP and hue histograms.
const histogramBins = 16

// ShapeFeatures describes region shape beyond the basic geometry. Present
// only for contour-sourced regions.
type ShapeFeatures struct {
	Solidity    float64
	Compactness float64
}

// TextureFeatures describes edge and gradient texture inside the region.
type TextureFeatures struct {
	EdgeDensity      float64
	GradientMean     float64
	GradientVariance float64
	LBPHistogram     []float64 // normalized, histogramBins entries; nil when the texture map is absent
}

// ColorFeatures describes HSV and LAB colour statistics inside the region.
// Hue is in the OpenCV 0-180 scale; all other channels are 0-255.
type ColorFeatures struct {
	HueMean        float64
	SaturationMean float64
	SaturationStd  float64
	ValueMean      float64
	HueHistogram   []float64
	LightnessMean  float64
	AMean          float64
	BMean          float64
}

// StructureFeatures describes boundary and internal structure.
type StructureFeatures struct {
	BorderContrast float64
	Connectivity   int
	SymmetryScore  float64
}

// Vector is the descriptor for one candidate region. The geometric fields
// are always present; the optional subsets are nil when their source maps
// were absent, so consumers branch on presence instead of probing.
type Vector struct {
	Bounds      geometry.RectInt
	Area        float64
	AspectRatio float64
	Extent      float64
	Centroid    geometry.Point2D
	Level       int

	Shape     *ShapeFeatures
	Texture   *TextureFeatures
	Color     *ColorFeatures
	Structure *StructureFeatures
}

// Extractor computes unified feature vectors from pyramid feature maps.
type Extractor struct {
	minArea    float64
	maxArea    float64
	kernelSize int
	log        *logrus.Entry
}

// NewExtractor creates an Extractor from the segmentation configuration.
func NewExtractor(sc config.SegmentationConfig, log *logrus.Logger) *Extractor {
	return &Extractor{
		minArea:    float64(sc.MinRegionArea),
		maxArea:    float64(sc.MaxRegionArea),
		kernelSize: sc.MorphologyKernelSize,
		log:        log.WithField("component", "feature"),
	}
}

// ExtractAll runs the per-level pipeline serially over every pyramid level
// and concatenates the results. Level 0 maps serve as the reference for all
// region descriptors regardless of which level produced the region.
func (e *Extractor) ExtractAll(features []*pyramid.LevelFeatures, scaleFactor float64) []Vector {
	if len(features) == 0 {
		return nil
	}

	var vectors []Vector
	for level := range features {
		vectors = append(vectors, e.ExtractLevelFeatures(level, features[level], features[0], scaleFactor)...)
	}
	e.log.WithField("vectors", len(vectors)).Debug("feature extraction complete")
	return vectors
}

// ExtractLevelFeatures segments one pyramid level and computes descriptors
// for its regions. Non-zero levels use the cheaper contour-only pass and
// have their boxes mapped back to level-0 coordinates before descriptor
// computation, which always reads the level-0 maps. The method touches no
// state shared with other levels, so calls for distinct levels may run
// concurrently.
func (e *Extractor) ExtractLevelFeatures(level int, lf, base *pyramid.LevelFeatures, scaleFactor float64) []Vector {
	var regions []Region
	if level == 0 {
		regions = e.SegmentRegions(lf)
	} else {
		regions = e.SegmentRegionsSimple(lf)
	}

	upscale := 1.0
	if level > 0 && scaleFactor > 0 {
		upscale = math.Pow(1.0/scaleFactor, float64(level))
	}

	vectors := make([]Vector, 0, len(regions))
	for _, region := range regions {
		if level > 0 {
			region = rescaleRegion(region, upscale)
		}
		vectors = append(vectors, e.extractRegion(region, base, level))
	}
	return vectors
}

func rescaleRegion(r Region, upscale float64) Region {
	r.Bounds = r.Bounds.Scale(upscale)
	r.Area *= upscale * upscale
	r.Centroid = geometry.Point2D{X: r.Centroid.X * upscale, Y: r.Centroid.Y * upscale}
	return r
}

// extractRegion computes the full descriptor for one region. Absent source
// maps silently yield a vector without the corresponding subset.
func (e *Extractor) extractRegion(region Region, base *pyramid.LevelFeatures, level int) Vector {
	w, h := region.Bounds.Width, region.Bounds.Height
	v := Vector{
		Bounds:      region.Bounds,
		Area:        region.Area,
		AspectRatio: 1.0,
		Centroid:    region.Centroid,
		Level:       level,
	}
	if h > 0 {
		v.AspectRatio = float64(w) / float64(h)
	}
	if w*h > 0 {
		v.Extent = region.Area / float64(w*h)
	}

	v.Shape = shapeFeatures(region)
	if base != nil {
		v.Texture = e.textureFeatures(region.Bounds, base)
		v.Color = e.colorFeatures(region.Bounds, base)
		v.Structure = e.structureFeatures(region.Bounds, base)
	}
	return v
}

func shapeFeatures(region Region) *ShapeFeatures {
	if len(region.Contour) < 3 {
		return nil
	}

	sf := &ShapeFeatures{}
	hull := geometry.ConvexHull(region.Contour)
	if hullArea := geometry.PolygonArea(hull); hullArea > 0 {
		sf.Solidity = region.Area / hullArea
	}
	if perimeter := polygonPerimeter(region.Contour); perimeter > 0 {
		sf.Compactness = 4 * math.Pi * region.Area / (perimeter * perimeter)
	}
	return sf
}

func polygonPerimeter(points []geometry.Point2D) float64 {
	if len(points) < 2 {
		return 0
	}
	var total float64
	for i := range points {
		total += points[i].Distance(points[(i+1)%len(points)])
	}
	return total
}

func (e *Extractor) textureFeatures(bounds geometry.RectInt, base *pyramid.LevelFeatures) *TextureFeatures {
	if base.Edges.Empty() && base.GradMag.Empty() && base.Texture.Empty() {
		return nil
	}

	tf := &TextureFeatures{}

	if !base.Edges.Empty() {
		r := bounds.Clip(base.Edges.Cols(), base.Edges.Rows())
		if !r.Empty() {
			edgeCount := 0
			for y := r.Y; y < r.Y+r.Height; y++ {
				for x := r.X; x < r.X+r.Width; x++ {
					if base.Edges.GetUCharAt(y, x) > 0 {
						edgeCount++
					}
				}
			}
			tf.EdgeDensity = float64(edgeCount) / float64(r.Area())
		}
	}

	if !base.GradMag.Empty() {
		grad := regionFloats(base.GradMag, bounds)
		if len(grad) > 0 {
			tf.GradientMean = stat.Mean(grad, nil)
			tf.GradientVariance = stat.PopVariance(grad, nil)
		}
	}

	if !base.Texture.Empty() {
		// The LBP map is two pixels smaller than the frame; clip to it.
		r := bounds.Clip(base.Texture.Cols(), base.Texture.Rows())
		if !r.Empty() {
			hist := make([]float64, histogramBins)
			for y := r.Y; y < r.Y+r.Height; y++ {
				for x := r.X; x < r.X+r.Width; x++ {
					bin := int(base.Texture.GetUCharAt(y, x)) * histogramBins / 256
					hist[bin]++
				}
			}
			if total := floats.Sum(hist); total > 0 {
				floats.Scale(1.0/total, hist)
			}
			tf.LBPHistogram = hist
		}
	}

	return tf
}

func (e *Extractor) colorFeatures(bounds geometry.RectInt, base *pyramid.LevelFeatures) *ColorFeatures {
	if base.HSV.Empty() && base.Lab.Empty() {
		return nil
	}

	cf := &ColorFeatures{}

	if !base.HSV.Empty() {
		r := bounds.Clip(base.HSV.Cols(), base.HSV.Rows())
		if !r.Empty() {
			n := r.Area()
			hues := make([]float64, 0, n)
			sats := make([]float64, 0, n)
			vals := make([]float64, 0, n)
			hist := make([]float64, histogramBins)
			for y := r.Y; y < r.Y+r.Height; y++ {
				for x := r.X; x < r.X+r.Width; x++ {
					hue := float64(base.HSV.GetUCharAt(y, x*3+0))
					hues = append(hues, hue)
					sats = append(sats, float64(base.HSV.GetUCharAt(y, x*3+1)))
					vals = append(vals, float64(base.HSV.GetUCharAt(y, x*3+2)))
					bin := int(hue) * histogramBins / 181
					if bin >= histogramBins {
						bin = histogramBins - 1
					}
					hist[bin]++
				}
			}
			cf.HueMean = stat.Mean(hues, nil)
			cf.SaturationMean = stat.Mean(sats, nil)
			cf.SaturationStd = stat.PopStdDev(sats, nil)
			cf.ValueMean = stat.Mean(vals, nil)
			if total := floats.Sum(hist); total > 0 {
				floats.Scale(1.0/total, hist)
			}
			cf.HueHistogram = hist
		}
	}

	if !base.Lab.Empty() {
		r := bounds.Clip(base.Lab.Cols(), base.Lab.Rows())
		if !r.Empty() {
			var l, a, b float64
			for y := r.Y; y < r.Y+r.Height; y++ {
				for x := r.X; x < r.X+r.Width; x++ {
					l += float64(base.Lab.GetUCharAt(y, x*3+0))
					a += float64(base.Lab.GetUCharAt(y, x*3+1))
					b += float64(base.Lab.GetUCharAt(y, x*3+2))
				}
			}
			n := float64(r.Area())
			cf.LightnessMean = l / n
			cf.AMean = a / n
			cf.BMean = b / n
		}
	}

	return cf
}

func (e *Extractor) structureFeatures(bounds geometry.RectInt, base *pyramid.LevelFeatures) *StructureFeatures {
	if base.Edges.Empty() && base.GradMag.Empty() {
		return nil
	}

	sf := &StructureFeatures{}

	if !base.Edges.Empty() {
		sf.BorderContrast = borderContrast(base, bounds)
	}

	if !base.GradMag.Empty() {
		grad := regionFloats(base.GradMag, bounds)
		if len(grad) > 0 {
			sf.Connectivity = gradientConnectivity(base, bounds, grad)
			sf.SymmetryScore = horizontalSymmetry(base, bounds)
		}
	}

	return sf
}

// borderContrast averages the edge-map values along the one-pixel-expanded
// boundary of the region, normalized to [0,1].
func borderContrast(base *pyramid.LevelFeatures, bounds geometry.RectInt) float64 {
	expanded := geometry.NewRectInt(bounds.X-1, bounds.Y-1, bounds.Width+2, bounds.Height+2)
	r := expanded.Clip(base.Edges.Cols(), base.Edges.Rows())
	if r.Empty() {
		return 0.0
	}

	var sum float64
	var count int
	for x := r.X; x < r.X+r.Width; x++ {
		sum += float64(base.Edges.GetUCharAt(r.Y, x))
		count++
		if r.Height > 1 {
			sum += float64(base.Edges.GetUCharAt(r.Y+r.Height-1, x))
			count++
		}
	}
	for y := r.Y; y < r.Y+r.Height; y++ {
		sum += float64(base.Edges.GetUCharAt(y, r.X))
		count++
		if r.Width > 1 {
			sum += float64(base.Edges.GetUCharAt(y, r.X+r.Width-1))
			count++
		}
	}

	if count == 0 {
		return 0.0
	}
	return sum / float64(count) / 255.0
}

// gradientConnectivity counts connected components of the region's gradient
// magnitude thresholded at mean + 0.5σ. Few components indicate simple,
// text-like structure.
func gradientConnectivity(base *pyramid.LevelFeatures, bounds geometry.RectInt, grad []float64) int {
	r := bounds.Clip(base.GradMag.Cols(), base.GradMag.Rows())
	if r.Empty() {
		return 0
	}

	thresh := stat.Mean(grad, nil) + 0.5*stat.PopStdDev(grad, nil)
	components := countComponents(base.GradMag, r, thresh)
	return components
}

// countComponents labels 8-connected above-threshold pixels inside r with
// an iterative flood fill and returns the component count.
func countComponents(gradMag gocv.Mat, r geometry.RectInt, thresh float64) int {
	w, h := r.Width, r.Height
	visited := make([]bool, w*h)
	above := func(x, y int) bool {
		return float64(gradMag.GetFloatAt(r.Y+y, r.X+x)) > thresh
	}

	count := 0
	var stack []geometry.PointInt
	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			if visited[sy*w+sx] || !above(sx, sy) {
				continue
			}
			count++
			stack = append(stack[:0], geometry.PointInt{X: sx, Y: sy})
			visited[sy*w+sx] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h || visited[ny*w+nx] {
							continue
						}
						if above(nx, ny) {
							visited[ny*w+nx] = true
							stack = append(stack, geometry.PointInt{X: nx, Y: ny})
						}
					}
				}
			}
		}
	}
	return count
}

// horizontalSymmetry compares the left half of the region's gradient map
// with the mirrored right half. 1.0 is perfect symmetry.
func horizontalSymmetry(base *pyramid.LevelFeatures, bounds geometry.RectInt) float64 {
	r := bounds.Clip(base.GradMag.Cols(), base.GradMag.Rows())
	if r.Width < 2 || r.Height < 2 {
		return 0.0
	}

	half := r.Width / 2
	var diff float64
	var count int
	for y := r.Y; y < r.Y+r.Height; y++ {
		for i := 0; i < half; i++ {
			left := float64(base.GradMag.GetFloatAt(y, r.X+i))
			right := float64(base.GradMag.GetFloatAt(y, r.X+r.Width-1-i))
			diff += math.Abs(left - right)
			count++
		}
	}
	if count == 0 {
		return 0.0
	}

	score := 1.0 - diff/float64(count)/255.0
	return math.Max(0.0, score)
}

func regionFloats(m gocv.Mat, bounds geometry.RectInt) []float64 {
	r := bounds.Clip(m.Cols(), m.Rows())
	if r.Empty() {
		return nil
	}
	out := make([]float64, 0, r.Area())
	for y := r.Y; y < r.Y+r.Height; y++ {
		for x := r.X; x < r.X+r.Width; x++ {
			out = append(out, float64(m.GetFloatAt(y, x)))
		}
	}
	return out
}
