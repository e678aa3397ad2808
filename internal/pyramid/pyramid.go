// Package pyramid builds multi-scale image pyramids and the per-level base
// feature maps shared by the downstream recognition stages.
package pyramid

import (
	"errors"
	"image"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"ui-recognizer/internal/config"
)

// ErrEmptyImage is returned when pyramid construction receives no pixels.
var ErrEmptyImage = errors.New("pyramid: empty input image")

// Builder constructs pyramids and base feature maps according to one
// configuration snapshot.
type Builder struct {
	levels      int
	scaleFactor float64
	minSize     int
	edgeLow     float32
	edgeHigh    float32
	kernelSize  int
	log         *logrus.Entry
}

// NewBuilder creates a Builder from the pyramid and segmentation sections
// of the configuration. The segmentation section supplies the Canny
// thresholds and morphology kernel size used for the base feature maps.
func NewBuilder(pc config.PyramidConfig, sc config.SegmentationConfig, log *logrus.Logger) *Builder {
	return &Builder{
		levels:      pc.Levels,
		scaleFactor: pc.ScaleFactor,
		minSize:     pc.MinSize,
		edgeLow:     float32(sc.EdgeThresholdLow),
		edgeHigh:    float32(sc.EdgeThresholdHigh),
		kernelSize:  sc.MorphologyKernelSize,
		log:         log.WithField("component", "pyramid"),
	}
}

// Pyramid is an ordered set of progressively down-scaled copies of one
// frame, level 0 being full resolution. The pyramid owns its Mats; Close
// must be called exactly once, either by the pipeline or by the cache that
// has taken ownership.
type Pyramid struct {
	Images []gocv.Mat
}

// Levels returns the number of levels actually built.
func (p *Pyramid) Levels() int {
	return len(p.Images)
}

// Close releases all level images.
func (p *Pyramid) Close() {
	for i := range p.Images {
		if !p.Images[i].Empty() {
			p.Images[i].Close()
		}
	}
	p.Images = nil
}

// MemBytes estimates the pyramid's pixel memory footprint.
func (p *Pyramid) MemBytes() int64 {
	var total int64
	for i := range p.Images {
		m := p.Images[i]
		total += int64(m.Rows()) * int64(m.Cols()) * int64(m.Channels())
	}
	return total
}

// Info describes a pyramid for diagnostics.
type Info struct {
	Levels      int           `json:"levels"`
	Scales      []float64     `json:"scales"`
	Sizes       []image.Point `json:"sizes"`
	TotalPixels int           `json:"totalPixels"`
}

// Info summarises the pyramid's levels, scales and pixel counts.
func (p *Pyramid) Info() Info {
	info := Info{Levels: len(p.Images)}
	if len(p.Images) == 0 {
		return info
	}
	baseRows := p.Images[0].Rows()
	for i := range p.Images {
		rows, cols := p.Images[i].Rows(), p.Images[i].Cols()
		scale := 0.0
		if baseRows > 0 {
			scale = float64(rows) / float64(baseRows)
		}
		info.Scales = append(info.Scales, scale)
		info.Sizes = append(info.Sizes, image.Pt(cols, rows))
		info.TotalPixels += rows * cols
	}
	return info
}

// Build constructs the pyramid for an image, stopping early once either
// dimension would fall below the configured minimum. An invalid scale
// configuration degrades to a single-level pyramid of the original; only
// an empty input is an error.
func (b *Builder) Build(img gocv.Mat) (*Pyramid, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	p := &Pyramid{Images: []gocv.Mat{img.Clone()}}
	current := p.Images[0]

	for level := 1; level < b.levels; level++ {
		newW := int(float64(current.Cols()) * b.scaleFactor)
		newH := int(float64(current.Rows()) * b.scaleFactor)
		if newW < b.minSize || newH < b.minSize {
			break
		}

		scaled := gocv.NewMat()
		gocv.Resize(current, &scaled, image.Pt(newW, newH), 0, 0, gocv.InterpolationArea)
		p.Images = append(p.Images, scaled)
		current = scaled
	}

	b.log.WithField("levels", len(p.Images)).Debug("pyramid built")
	return p, nil
}

// LevelFeatures holds the base feature maps computed for one pyramid level.
// Any map may be empty (its Empty() method reports true); consumers must
// treat an empty map as absent rather than an error.
type LevelFeatures struct {
	Gray       gocv.Mat
	Edges      gocv.Mat
	GradX      gocv.Mat // CV32F
	GradY      gocv.Mat // CV32F
	GradMag    gocv.Mat // CV32F
	HSV        gocv.Mat
	Lab        gocv.Mat
	MorphOpen  gocv.Mat
	MorphClose gocv.Mat
	Texture    gocv.Mat // 8-neighbourhood local binary pattern map, (rows-2)x(cols-2)
}

// Close releases all feature maps.
func (lf *LevelFeatures) Close() {
	for _, m := range []*gocv.Mat{
		&lf.Gray, &lf.Edges, &lf.GradX, &lf.GradY, &lf.GradMag,
		&lf.HSV, &lf.Lab, &lf.MorphOpen, &lf.MorphClose, &lf.Texture,
	} {
		if !m.Empty() {
			m.Close()
		}
	}
}

// ExtractBaseFeatures computes the base feature maps for every pyramid
// level. Levels that fail feature extraction contribute an empty
// LevelFeatures rather than aborting the pass.
func (b *Builder) ExtractBaseFeatures(p *Pyramid) []*LevelFeatures {
	features := make([]*LevelFeatures, 0, len(p.Images))
	for level := range p.Images {
		lf := b.extractLevel(p.Images[level])
		features = append(features, lf)
	}
	return features
}

// CloseFeatures releases a full set of per-level feature maps.
func CloseFeatures(features []*LevelFeatures) {
	for _, lf := range features {
		if lf != nil {
			lf.Close()
		}
	}
}

func (b *Builder) extractLevel(img gocv.Mat) *LevelFeatures {
	lf := &LevelFeatures{}
	if img.Empty() {
		return lf
	}

	if img.Channels() == 3 {
		lf.Gray = gocv.NewMat()
		lf.HSV = gocv.NewMat()
		lf.Lab = gocv.NewMat()
		gocv.CvtColor(img, &lf.Gray, gocv.ColorBGRToGray)
		gocv.CvtColor(img, &lf.HSV, gocv.ColorBGRToHSV)
		gocv.CvtColor(img, &lf.Lab, gocv.ColorBGRToLab)
	} else {
		lf.Gray = img.Clone()
		// Pseudo colour maps for grayscale input: V and L carry the gray
		// values, the remaining channels stay zero.
		zero := gocv.NewMatWithSize(img.Rows(), img.Cols(), gocv.MatTypeCV8UC1)
		defer zero.Close()
		lf.HSV = gocv.NewMat()
		lf.Lab = gocv.NewMat()
		gocv.Merge([]gocv.Mat{zero, zero, lf.Gray}, &lf.HSV)
		gocv.Merge([]gocv.Mat{lf.Gray, zero, zero}, &lf.Lab)
	}

	lf.Edges = gocv.NewMat()
	gocv.Canny(lf.Gray, &lf.Edges, b.edgeLow, b.edgeHigh)

	lf.GradX = gocv.NewMat()
	lf.GradY = gocv.NewMat()
	lf.GradMag = gocv.NewMat()
	gocv.Sobel(lf.Gray, &lf.GradX, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(lf.Gray, &lf.GradY, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderDefault)
	gocv.Magnitude(lf.GradX, lf.GradY, &lf.GradMag)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(b.kernelSize, b.kernelSize))
	defer kernel.Close()
	lf.MorphOpen = gocv.NewMat()
	lf.MorphClose = gocv.NewMat()
	gocv.MorphologyEx(lf.Gray, &lf.MorphOpen, gocv.MorphOpen, kernel)
	gocv.MorphologyEx(lf.Gray, &lf.MorphClose, gocv.MorphClose, kernel)

	lf.Texture = computeLBP(lf.Gray)
	return lf
}

// computeLBP builds an 8-neighbourhood local binary pattern map. The output
// is two pixels smaller in each dimension than the input; images too small
// for a 3x3 neighbourhood yield an empty map.
func computeLBP(gray gocv.Mat) gocv.Mat {
	rows, cols := gray.Rows(), gray.Cols()
	if rows < 3 || cols < 3 {
		return gocv.NewMat()
	}

	lbp := gocv.NewMatWithSize(rows-2, cols-2, gocv.MatTypeCV8UC1)
	// Clockwise from top-left, matching bit order (dy, dx).
	offsets := [8][2]int{
		{-1, -1}, {-1, 0}, {-1, 1}, {0, 1},
		{1, 1}, {1, 0}, {1, -1}, {0, -1},
	}

	for y := 1; y < rows-1; y++ {
		for x := 1; x < cols-1; x++ {
			center := gray.GetUCharAt(y, x)
			var code uint8
			for k, off := range offsets {
				if gray.GetUCharAt(y+off[0], x+off[1]) >= center {
					code |= 1 << uint(k)
				}
			}
			lbp.SetUCharAt(y-1, x-1, code)
		}
	}
	return lbp
}
