// Package roi narrows repeated detection runs to the regions of the frame
// that changed since the previous run.
package roi

import (
	"image"
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"ui-recognizer/internal/config"
	"ui-recognizer/pkg/geometry"
)

// hashSize is the side length of the downsampled grey image used for the
// mean perceptual hash.
const hashSize = 32

// Stats reports accumulated detector behaviour across Detect calls.
type Stats struct {
	TotalDetections     int     `json:"total_detections"`
	ROIHits             int     `json:"roi_hits"`
	FullScreenFallbacks int     `json:"full_screen_fallbacks"`
	AverageROICount     float64 `json:"average_roi_count"`
	AverageCoverage     float64 `json:"average_coverage"`
	ROIHitRate          float64 `json:"roi_hit_rate"`
	FallbackRate        float64 `json:"fallback_rate"`
}

// Detector tracks the previously seen frame and reports changed regions.
// It is not safe for concurrent use.
type Detector struct {
	changeThreshold float64
	minSize         int
	maxCount        int
	mergeDistance   int

	prev     gocv.Mat
	hasPrev  bool
	prevHash [hashSize * hashSize / 8]byte

	totalDetections int
	roiHits         int
	fallbacks       int
	avgROICount     float64
	avgCoverage     float64

	log *logrus.Entry
}

// NewDetector creates a Detector from the performance configuration.
func NewDetector(pc config.PerformanceConfig, log *logrus.Logger) *Detector {
	return &Detector{
		changeThreshold: pc.ROIChangeThreshold,
		minSize:         pc.ROIMinSize,
		maxCount:        pc.ROIMaxCount,
		mergeDistance:   pc.ROIMergeDistance,
		log:             log.WithField("component", "roi"),
	}
}

// Detect compares the frame against the previous one and returns the
// changed regions. The first call, and any call where the frame dimensions
// changed, returns one full-frame region. A frame whose perceptual hash
// matches the previous one returns an empty slice, meaning nothing changed.
func (d *Detector) Detect(img gocv.Mat) []geometry.RectInt {
	d.totalDetections++
	fullFrame := []geometry.RectInt{geometry.NewRectInt(0, 0, img.Cols(), img.Rows())}

	if !d.hasPrev {
		d.rememberFrame(img)
		d.prevHash = perceptualHash(img)
		d.fallbacks++
		return fullFrame
	}

	hash := perceptualHash(img)
	if hash == d.prevHash {
		return nil
	}

	rois := d.changedRegions(img)
	d.rememberFrame(img)
	d.prevHash = hash

	if len(rois) > 0 {
		d.roiHits++
		d.avgROICount += (float64(len(rois)) - d.avgROICount) / float64(d.roiHits)
		coverage := coverageOf(rois, img.Cols(), img.Rows())
		d.avgCoverage += (coverage - d.avgCoverage) / float64(d.roiHits)
	} else {
		d.fallbacks++
	}

	d.log.WithField("rois", len(rois)).Debug("roi detection complete")
	return rois
}

// Stats returns the accumulated detection statistics.
func (d *Detector) Stats() Stats {
	s := Stats{
		TotalDetections:     d.totalDetections,
		ROIHits:             d.roiHits,
		FullScreenFallbacks: d.fallbacks,
		AverageROICount:     d.avgROICount,
		AverageCoverage:     d.avgCoverage,
	}
	if d.totalDetections > 0 {
		s.ROIHitRate = float64(d.roiHits) / float64(d.totalDetections)
		s.FallbackRate = float64(d.fallbacks) / float64(d.totalDetections)
	}
	return s
}

// Reset forgets the previous frame and clears the statistics.
func (d *Detector) Reset() {
	if d.hasPrev {
		d.prev.Close()
		d.hasPrev = false
	}
	d.prevHash = [hashSize * hashSize / 8]byte{}
	d.totalDetections = 0
	d.roiHits = 0
	d.fallbacks = 0
	d.avgROICount = 0
	d.avgCoverage = 0
}

// Close releases the retained previous frame.
func (d *Detector) Close() {
	if d.hasPrev {
		d.prev.Close()
		d.hasPrev = false
	}
}

func (d *Detector) rememberFrame(img gocv.Mat) {
	if d.hasPrev {
		d.prev.Close()
	}
	d.prev = img.Clone()
	d.hasPrev = true
}

// changedRegions diffs the frame against the previous one and extracts
// bounding boxes around the changed pixels.
func (d *Detector) changedRegions(img gocv.Mat) []geometry.RectInt {
	full := []geometry.RectInt{geometry.NewRectInt(0, 0, img.Cols(), img.Rows())}
	if d.prev.Cols() != img.Cols() || d.prev.Rows() != img.Rows() {
		d.log.Warn("frame dimensions changed, falling back to full frame")
		return full
	}

	prevGray := toGray(d.prev)
	defer prevGray.Close()
	currGray := toGray(img)
	defer currGray.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(prevGray, currGray, &diff)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(diff, &binary, float32(255*d.changeThreshold), 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(5, 5))
	defer kernel.Close()
	gocv.MorphologyEx(binary, &binary, gocv.MorphClose, kernel)
	gocv.MorphologyEx(binary, &binary, gocv.MorphOpen, kernel)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var rois []geometry.RectInt
	for i := 0; i < contours.Size(); i++ {
		r := gocv.BoundingRect(contours.At(i))
		if r.Dx() >= d.minSize && r.Dy() >= d.minSize {
			rois = append(rois, geometry.NewRectInt(r.Min.X, r.Min.Y, r.Dx(), r.Dy()))
		}
	}

	rois = d.mergeNearby(rois)

	if len(rois) > d.maxCount {
		sortByArea(rois)
		rois = rois[:d.maxCount]
	}

	// Widespread change is cheaper to process as a single full pass.
	if len(rois) > d.maxCount/2 && coverageOf(rois, img.Cols(), img.Rows()) > 0.5 {
		return full
	}
	return rois
}

// mergeNearby unions regions whose centers are within the merge distance.
func (d *Detector) mergeNearby(rois []geometry.RectInt) []geometry.RectInt {
	if len(rois) <= 1 {
		return rois
	}

	used := make([]bool, len(rois))
	var merged []geometry.RectInt
	for i := range rois {
		if used[i] {
			continue
		}
		used[i] = true
		current := rois[i]
		for j := i + 1; j < len(rois); j++ {
			if used[j] {
				continue
			}
			dist := current.Center().Distance(rois[j].Center())
			if dist <= float64(d.mergeDistance) {
				current = current.Union(rois[j])
				used[j] = true
			}
		}
		merged = append(merged, current)
	}
	return merged
}

func sortByArea(rois []geometry.RectInt) {
	for i := 1; i < len(rois); i++ {
		for j := i; j > 0 && rois[j].Area() > rois[j-1].Area(); j-- {
			rois[j], rois[j-1] = rois[j-1], rois[j]
		}
	}
}

func coverageOf(rois []geometry.RectInt, width, height int) float64 {
	total := float64(width * height)
	if total == 0 {
		return 0
	}
	area := 0.0
	for _, r := range rois {
		area += float64(r.Area())
	}
	return math.Min(1.0, area/total)
}

// perceptualHash computes a 1024-bit mean hash over a 32x32 grey
// downsample. Equal hashes mean the frames are visually identical.
func perceptualHash(img gocv.Mat) [hashSize * hashSize / 8]byte {
	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(img, &small, image.Pt(hashSize, hashSize), 0, 0, gocv.InterpolationArea)

	gray := toGray(small)
	defer gray.Close()

	var sum int
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			sum += int(gray.GetUCharAt(y, x))
		}
	}
	mean := uint8(sum / (hashSize * hashSize))

	var hash [hashSize * hashSize / 8]byte
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			if gray.GetUCharAt(y, x) > mean {
				bit := y*hashSize + x
				hash[bit/8] |= 1 << (bit % 8)
			}
		}
	}
	return hash
}

func toGray(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if img.Channels() == 3 {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	} else {
		img.CopyTo(&gray)
	}
	return gray
}
