// Package recognize orchestrates the full detection pipeline: change
// detection, pyramid construction, feature extraction, classification, and
// spatial refinement, with caching between stages.
package recognize

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"ui-recognizer/internal/cache"
	"ui-recognizer/internal/classify"
	"ui-recognizer/internal/config"
	"ui-recognizer/internal/feature"
	"ui-recognizer/internal/frame"
	"ui-recognizer/internal/pyramid"
	"ui-recognizer/internal/roi"
	"ui-recognizer/internal/spatial"
	"ui-recognizer/pkg/geometry"
)

const (
	// levelTimeout bounds how long a detection waits for one pyramid
	// level's parallel extraction before abandoning its result.
	levelTimeout = 10 * time.Second

	// maxPartialROIs is the most changed regions a detection will process
	// individually before falling back to a full-frame pass.
	maxPartialROIs = 5
)

// PerformanceStats aggregates timings and cache behaviour across
// detection calls.
type PerformanceStats struct {
	TotalDetections  int           `json:"total_detections"`
	AverageTime      time.Duration `json:"average_time"`
	LastTime         time.Duration `json:"last_time"`
	ResultCacheHits  int           `json:"result_cache_hits"`
	PyramidCacheHits int           `json:"pyramid_cache_hits"`
	FeatureCacheHits int           `json:"feature_cache_hits"`
	ROISkips         int           `json:"roi_skips"`
	PartialRuns      int           `json:"partial_runs"`
	FullRuns         int           `json:"full_runs"`
	Cache            *cache.Stats  `json:"cache,omitempty"`
	ROI              *roi.Stats    `json:"roi,omitempty"`
}

// Recognizer detects clickable UI elements in screen frames. One logical
// detection runs at a time; concurrent callers serialize on an internal
// lock.
type Recognizer struct {
	mu sync.Mutex

	cfg        config.RecognitionConfig
	builder    *pyramid.Builder
	extractor  *feature.Extractor
	classifier *classify.Classifier
	analyzer   *spatial.Analyzer
	roiDet     *roi.Detector
	store      *cache.Cache
	pool       *levelPool

	levelTimeout time.Duration

	totalDetections int
	totalTime       time.Duration
	lastTime        time.Duration
	resultHits      int
	pyramidHits     int
	featureHits     int
	roiSkips        int
	partialRuns     int
	fullRuns        int

	closed bool
	log    *logrus.Logger
}

// New creates a Recognizer from a validated configuration.
func New(cfg config.RecognitionConfig, log *logrus.Logger) (*Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := &Recognizer{cfg: cfg, levelTimeout: levelTimeout, log: log}
	r.buildComponents()
	return r, nil
}

// buildComponents instantiates the pipeline stages from r.cfg. Callers
// hold the lock or own the recognizer exclusively.
func (r *Recognizer) buildComponents() {
	r.builder = pyramid.NewBuilder(r.cfg.Pyramid, r.cfg.Segmentation, r.log)
	r.extractor = feature.NewExtractor(r.cfg.Segmentation, r.log)
	r.classifier = classify.NewClassifier(r.cfg.Classification, r.log)
	r.analyzer = spatial.NewAnalyzer(r.cfg.Spatial, r.log)

	perf := r.cfg.Performance
	if perf.EnableROIDetection {
		r.roiDet = roi.NewDetector(perf, r.log)
	}
	if perf.EnableCaching {
		r.store = cache.New(perf.MaxCacheSize, perf.CacheMemoryLimitMB, r.log)
	}
	if perf.ParallelFeatureExtraction {
		workers := perf.MaxThreads
		if workers > r.cfg.Pyramid.Levels {
			workers = r.cfg.Pyramid.Levels
		}
		if workers < 1 {
			workers = 1
		}
		r.pool = newLevelPool(workers)
	}
}

// teardownComponents releases resources owned by the current stages.
func (r *Recognizer) teardownComponents() {
	if r.roiDet != nil {
		r.roiDet.Close()
		r.roiDet = nil
	}
	if r.store != nil {
		r.store.Clear()
		r.store = nil
	}
	if r.pool != nil {
		r.pool.close()
		r.pool = nil
	}
}

// DetectClickableElements finds all clickable elements in the frame,
// sorted by descending confidence. The input Mat remains owned by the
// caller.
func (r *Recognizer) DetectClickableElements(img gocv.Mat) ([]classify.Element, error) {
	return r.detect(img, nil)
}

// DetectSingleType runs a full detection and keeps only elements of the
// given type.
func (r *Recognizer) DetectSingleType(img gocv.Mat, t classify.ElementType) ([]classify.Element, error) {
	return r.detect(img, []classify.ElementType{t})
}

// DetectMultipleTypes runs a full detection and keeps only elements of the
// given types.
func (r *Recognizer) DetectMultipleTypes(img gocv.Mat, types []classify.ElementType) ([]classify.Element, error) {
	if len(types) == 0 {
		return nil, nil
	}
	return r.detect(img, types)
}

// DetectFrame decodes a raw BGR frame and runs detection on it.
func (r *Recognizer) DetectFrame(f frame.Frame) ([]classify.Element, error) {
	img, err := f.Mat()
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return r.DetectClickableElements(img)
}

func (r *Recognizer) detect(img gocv.Mat, types []classify.ElementType) ([]classify.Element, error) {
	if img.Empty() {
		return nil, frame.ErrEmptyFrame
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("recognize: recognizer is closed")
	}

	start := time.Now()
	defer func() {
		r.lastTime = time.Since(start)
		r.totalTime += r.lastTime
		r.totalDetections++
	}()

	contentKey := cache.Key(frame.ContentHash(img))

	// The pipeline always produces the full element set; type-restricted
	// calls filter it afterwards, so cached and uncached calls agree.
	if r.store != nil {
		if cached, ok := r.store.GetResults(contentKey); ok {
			r.resultHits++
			return filterTypes(cloneElements(cached), types), nil
		}
	}

	elements, err := r.runDetection(img, contentKey)
	if err != nil {
		return nil, err
	}

	elements = r.postprocess(elements, img.Cols(), img.Rows())

	if r.store != nil {
		r.store.PutResults(contentKey, cloneElements(elements))
		r.store.Optimize()
	}
	return filterTypes(elements, types), nil
}

// runDetection picks between the full-frame and per-region paths based on
// what changed since the previous frame.
func (r *Recognizer) runDetection(img gocv.Mat, contentKey string) ([]classify.Element, error) {
	if r.roiDet == nil {
		r.fullRuns++
		return r.detectFull(img, contentKey)
	}

	rois := r.roiDet.Detect(img)
	if len(rois) == 0 {
		// Nothing changed since the previous frame.
		r.roiSkips++
		return []classify.Element{}, nil
	}

	frameArea := float64(img.Cols() * img.Rows())
	roiArea := 0.0
	for _, rect := range rois {
		roiArea += float64(rect.Area())
	}
	coverage := roiArea / frameArea

	fullFrame := len(rois) == 1 && rois[0].Area() == img.Cols()*img.Rows()
	if fullFrame || coverage >= r.cfg.Performance.ROICoverageThreshold || len(rois) > maxPartialROIs {
		r.fullRuns++
		return r.detectFull(img, contentKey)
	}

	r.partialRuns++
	return r.detectRegions(img, contentKey, rois)
}

// detectFull runs the whole pipeline on the entire frame.
func (r *Recognizer) detectFull(img gocv.Mat, contentKey string) ([]classify.Element, error) {
	vectors, err := r.extractVectors(img, contentKey)
	if err != nil {
		return nil, err
	}
	elements := r.classifier.ClassifyElements(vectors)
	return r.runSpatial(elements), nil
}

// detectRegions runs the pipeline per changed region and merges the
// results, translating element bounds back into frame coordinates before
// the spatial pass so cross-region relationships still resolve.
func (r *Recognizer) detectRegions(img gocv.Mat, contentKey string, rois []geometry.RectInt) ([]classify.Element, error) {
	var combined []classify.Element
	for _, rect := range rois {
		clipped := rect.Clip(img.Cols(), img.Rows())
		if clipped.Empty() {
			continue
		}

		view := img.Region(image.Rect(clipped.X, clipped.Y, clipped.X+clipped.Width, clipped.Y+clipped.Height))
		region := view.Clone()
		view.Close()

		regionKey := fmt.Sprintf("%s:%d,%d,%dx%d", contentKey, clipped.X, clipped.Y, clipped.Width, clipped.Height)
		vectors, err := r.extractVectors(region, regionKey)
		region.Close()
		if err != nil {
			return nil, err
		}

		elements := r.classifier.ClassifyElements(vectors)
		for i := range elements {
			elements[i].Bounds = elements[i].Bounds.Translate(clipped.X, clipped.Y)
			elements[i].Center = elements[i].Bounds.Center()
		}
		combined = append(combined, elements...)
	}
	return r.runSpatial(combined), nil
}

// extractVectors builds (or fetches) the pyramid for the image and
// extracts feature vectors for its candidate regions, consulting the
// feature and pyramid caches along the way.
func (r *Recognizer) extractVectors(img gocv.Mat, key string) ([]feature.Vector, error) {
	if r.store != nil {
		if vectors, ok := r.store.GetFeatures(key); ok {
			r.featureHits++
			return vectors, nil
		}
	}

	p, cached, err := r.obtainPyramid(img, key)
	if err != nil {
		return nil, err
	}
	if !cached {
		defer p.Close()
	}

	maps := r.builder.ExtractBaseFeatures(p)

	var vectors []feature.Vector
	if r.pool != nil && len(maps) > 1 {
		vectors = r.extractParallel(maps)
	} else {
		vectors = r.extractor.ExtractAll(maps, r.cfg.Pyramid.ScaleFactor)
		pyramid.CloseFeatures(maps)
	}

	if r.store != nil {
		r.store.PutFeatures(key, vectors)
	}
	return vectors, nil
}

func (r *Recognizer) obtainPyramid(img gocv.Mat, key string) (*pyramid.Pyramid, bool, error) {
	if r.store != nil {
		if p, ok := r.store.GetPyramid(key); ok {
			r.pyramidHits++
			return p, true, nil
		}
	}

	p, err := r.builder.Build(img)
	if err != nil {
		return nil, false, err
	}

	if r.store != nil {
		// Ownership passes to the cache; read it back so the caller knows
		// not to close it.
		r.store.PutPyramid(key, p)
		if cached, ok := r.store.GetPyramid(key); ok {
			return cached, true, nil
		}
		// Rejected as oversized and already closed by the cache.
		p, err = r.builder.Build(img)
		if err != nil {
			return nil, false, err
		}
		return p, false, nil
	}
	return p, false, nil
}

// extractParallel fans per-level extraction out across the worker pool
// and closes the feature maps when all workers finish. Each level gets its
// own timeout; a level that exceeds it contributes nothing, but the wait
// continues with the remaining levels. Abandoned results are not
// cancelled, and map cleanup waits for the stragglers in the background.
func (r *Recognizer) extractParallel(maps []*pyramid.LevelFeatures) []feature.Vector {
	outs := make([]<-chan []feature.Vector, len(maps))
	for level := range maps {
		level := level
		outs[level] = r.pool.submit(func() []feature.Vector {
			return r.extractor.ExtractLevelFeatures(level, maps[level], maps[0], r.cfg.Pyramid.ScaleFactor)
		})
	}

	timer := time.NewTimer(r.levelTimeout)
	defer timer.Stop()

	var vectors []feature.Vector
	var abandoned []<-chan []feature.Vector
	for level, out := range outs {
		if level > 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.levelTimeout)
		}
		select {
		case levelVectors := <-out:
			vectors = append(vectors, levelVectors...)
		case <-timer.C:
			r.log.WithField("level", level).Warn("level extraction timed out, skipping its results")
			abandoned = append(abandoned, out)
		}
	}

	if len(abandoned) == 0 {
		pyramid.CloseFeatures(maps)
		return vectors
	}
	go func() {
		for _, ch := range abandoned {
			<-ch
		}
		pyramid.CloseFeatures(maps)
	}()
	return vectors
}

// runSpatial shields the detection from a panicking spatial pass: on
// panic the unrefined elements are returned instead.
func (r *Recognizer) runSpatial(elements []classify.Element) (out []classify.Element) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Error("spatial analysis failed, returning unrefined elements")
			out = elements
		}
	}()
	return r.analyzer.Optimize(elements)
}

// postprocess clamps every element to the frame and to legal confidence,
// recomputing centers after clamping.
func (r *Recognizer) postprocess(elements []classify.Element, width, height int) []classify.Element {
	kept := elements[:0]
	for _, el := range elements {
		el.Bounds = el.Bounds.Clip(width, height)
		if el.Bounds.Empty() {
			continue
		}
		if el.Confidence < 0 {
			el.Confidence = 0
		} else if el.Confidence > 1 {
			el.Confidence = 1
		}
		el.Center = el.Bounds.Center()
		kept = append(kept, el)
	}
	return kept
}

// UpdateConfig swaps in a new configuration, rebuilding the pipeline
// stages. The previous cache contents and change-detection history are
// discarded.
func (r *Recognizer) UpdateConfig(cfg config.RecognitionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recognize: recognizer is closed")
	}

	r.teardownComponents()
	r.cfg = cfg
	r.buildComponents()
	return nil
}

// Config returns a copy of the active configuration.
func (r *Recognizer) Config() config.RecognitionConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// PerformanceStats reports aggregated detection statistics.
func (r *Recognizer) PerformanceStats() PerformanceStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := PerformanceStats{
		TotalDetections:  r.totalDetections,
		LastTime:         r.lastTime,
		ResultCacheHits:  r.resultHits,
		PyramidCacheHits: r.pyramidHits,
		FeatureCacheHits: r.featureHits,
		ROISkips:         r.roiSkips,
		PartialRuns:      r.partialRuns,
		FullRuns:         r.fullRuns,
	}
	if r.totalDetections > 0 {
		stats.AverageTime = r.totalTime / time.Duration(r.totalDetections)
	}
	if r.store != nil {
		s := r.store.Stats()
		stats.Cache = &s
	}
	if r.roiDet != nil {
		s := r.roiDet.Stats()
		stats.ROI = &s
	}
	return stats
}

// ResetPerformanceStats zeroes the counters, including the ROI detector's.
func (r *Recognizer) ResetPerformanceStats() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalDetections = 0
	r.totalTime = 0
	r.lastTime = 0
	r.resultHits = 0
	r.pyramidHits = 0
	r.featureHits = 0
	r.roiSkips = 0
	r.partialRuns = 0
	r.fullRuns = 0
	if r.roiDet != nil {
		r.roiDet.Reset()
	}
}

// ClearCache empties all cache namespaces.
func (r *Recognizer) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		r.store.Clear()
	}
}

// Close releases all resources. The recognizer rejects detection calls
// afterwards.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.teardownComponents()
	r.closed = true
}

// filterTypes keeps only elements of the requested types. A nil filter
// keeps everything.
func filterTypes(elements []classify.Element, types []classify.ElementType) []classify.Element {
	if types == nil {
		return elements
	}
	want := make(map[classify.ElementType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	kept := elements[:0]
	for _, el := range elements {
		if want[el.Type] {
			kept = append(kept, el)
		}
	}
	return kept
}

// cloneElements copies the slice so cached results stay immutable.
func cloneElements(elements []classify.Element) []classify.Element {
	out := make([]classify.Element, len(elements))
	copy(out, elements)
	return out
}
