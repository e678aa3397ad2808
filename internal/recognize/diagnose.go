package recognize

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"ui-recognizer/internal/classify"
	"ui-recognizer/internal/frame"
	"ui-recognizer/internal/pyramid"
)

// StageTiming records one pipeline stage's duration and output size.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Outputs  int           `json:"outputs"`
}

// Diagnostics is the result of an instrumented full-frame detection.
type Diagnostics struct {
	Pyramid  pyramid.Info       `json:"pyramid"`
	Stages   []StageTiming      `json:"stages"`
	Elements []classify.Element `json:"elements"`
	Total    time.Duration      `json:"total"`
}

// Diagnose runs an instrumented full-frame detection, bypassing the
// caches and change detection so every stage executes and is timed.
func (r *Recognizer) Diagnose(img gocv.Mat) (*Diagnostics, error) {
	if img.Empty() {
		return nil, frame.ErrEmptyFrame
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("recognize: recognizer is closed")
	}

	start := time.Now()
	d := &Diagnostics{}
	mark := func(stage string, begin time.Time, outputs int) {
		d.Stages = append(d.Stages, StageTiming{Stage: stage, Duration: time.Since(begin), Outputs: outputs})
	}

	t := time.Now()
	p, err := r.builder.Build(img)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	d.Pyramid = p.Info()
	mark("pyramid", t, p.Levels())

	t = time.Now()
	maps := r.builder.ExtractBaseFeatures(p)
	defer pyramid.CloseFeatures(maps)
	mark("feature_maps", t, len(maps))

	t = time.Now()
	vectors := r.extractor.ExtractAll(maps, r.cfg.Pyramid.ScaleFactor)
	mark("extraction", t, len(vectors))

	t = time.Now()
	elements := r.classifier.ClassifyElements(vectors)
	mark("classification", t, len(elements))

	t = time.Now()
	elements = r.analyzer.Optimize(elements)
	mark("spatial", t, len(elements))

	d.Elements = r.postprocess(elements, img.Cols(), img.Rows())
	d.Total = time.Since(start)
	return d, nil
}
