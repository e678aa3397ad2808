package feature

import (
	"image"
	"image/color"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"ui-recognizer/internal/config"
	"ui-recognizer/internal/pyramid"
	"ui-recognizer/pkg/geometry"
)

func newTestExtractor() *Extractor {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewExtractor(config.Default().Segmentation, log)
}

// singleLevelMaps renders the image's base feature maps at full resolution.
func singleLevelMaps(t *testing.T, img gocv.Mat) []*pyramid.LevelFeatures {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	cfg := config.Default()
	cfg.Pyramid.Levels = 1
	b := pyramid.NewBuilder(cfg.Pyramid, cfg.Segmentation, log)

	p, err := b.Build(img)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	maps := b.ExtractBaseFeatures(p)
	t.Cleanup(func() { pyramid.CloseFeatures(maps) })
	return maps
}

func TestExtractAllFindsSolidRectangle(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 200, 200, gocv.MatTypeCV8UC3)
	defer img.Close()
	target := geometry.NewRectInt(50, 50, 100, 50)
	gocv.Rectangle(&img, image.Rect(50, 50, 150, 100), color.RGBA{R: 255, G: 255, B: 255}, -1)

	e := newTestExtractor()
	vectors := e.ExtractAll(singleLevelMaps(t, img), 0.5)
	require.NotEmpty(t, vectors)

	var hit *Vector
	for i := range vectors {
		if vectors[i].Bounds.IoU(target) > 0.5 {
			hit = &vectors[i]
			break
		}
	}
	require.NotNil(t, hit, "no vector matches the drawn rectangle: %+v", vectors)

	assert.InDelta(t, 2.0, hit.AspectRatio, 0.3)
	assert.Greater(t, hit.Area, 0.0)
	assert.Equal(t, 0, hit.Level)

	require.NotNil(t, hit.Color)
	assert.Greater(t, hit.Color.ValueMean, 200.0, "a white region should read bright")

	require.NotNil(t, hit.Texture)
	assert.Greater(t, hit.Texture.EdgeDensity, 0.0)

	require.NotNil(t, hit.Structure)
	assert.GreaterOrEqual(t, hit.Structure.SymmetryScore, 0.0)
	assert.LessOrEqual(t, hit.Structure.SymmetryScore, 1.0)
}

func TestExtractAllEmptyOnUniformImage(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	e := newTestExtractor()
	vectors := e.ExtractAll(singleLevelMaps(t, img), 0.5)
	assert.Empty(t, vectors, "a featureless frame should produce no candidates")
}

func TestExtractAllNilInput(t *testing.T) {
	e := newTestExtractor()
	assert.Nil(t, e.ExtractAll(nil, 0.5))
}

func TestRescaleRegion(t *testing.T) {
	r := Region{
		Bounds:   geometry.NewRectInt(10, 10, 20, 20),
		Area:     400,
		Centroid: geometry.Point2D{X: 20, Y: 20},
	}
	scaled := rescaleRegion(r, 2.0)
	assert.Equal(t, geometry.NewRectInt(20, 20, 40, 40), scaled.Bounds)
	assert.Equal(t, 1600.0, scaled.Area)
	assert.Equal(t, geometry.Point2D{X: 40, Y: 40}, scaled.Centroid)
}

func TestSegmentRegionsAreaFilter(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 200, 200, gocv.MatTypeCV8UC3)
	defer img.Close()
	// A 4x4 speck falls under the minimum region area.
	gocv.Rectangle(&img, image.Rect(20, 20, 24, 24), color.RGBA{R: 255, G: 255, B: 255}, -1)

	cfg := config.Default()
	cfg.Segmentation.MinRegionArea = 100
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	e := NewExtractor(cfg.Segmentation, log)

	maps := singleLevelMaps(t, img)
	for _, region := range e.SegmentRegions(maps[0]) {
		assert.GreaterOrEqual(t, region.Area, 100.0)
	}
}

func TestExtractLevelFeaturesUpscalesBounds(t *testing.T) {
	// A rectangle segmented at a half-resolution level must map back to
	// full-frame coordinates.
	small := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer small.Close()
	gocv.Rectangle(&small, image.Rect(25, 25, 75, 50), color.RGBA{R: 255, G: 255, B: 255}, -1)

	smallMaps := singleLevelMaps(t, small)

	full := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 200, 200, gocv.MatTypeCV8UC3)
	defer full.Close()
	gocv.Rectangle(&full, image.Rect(50, 50, 150, 100), color.RGBA{R: 255, G: 255, B: 255}, -1)
	fullMaps := singleLevelMaps(t, full)

	e := newTestExtractor()
	vectors := e.ExtractLevelFeatures(1, smallMaps[0], fullMaps[0], 0.5)
	require.NotEmpty(t, vectors)

	target := geometry.NewRectInt(50, 50, 100, 50)
	found := false
	for _, v := range vectors {
		if v.Bounds.IoU(target) > 0.5 {
			found = true
			assert.Equal(t, 1, v.Level)
		}
	}
	assert.True(t, found, "upscaled bounds should land on the full-resolution rectangle")
}
