package pyramid

import (
	"image"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"ui-recognizer/internal/config"
)

func newTestBuilder() *Builder {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	cfg := config.Default()
	return NewBuilder(cfg.Pyramid, cfg.Segmentation, log)
}

func grayRamp(rows, cols int) gocv.Mat {
	img := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := uint8((x + y) % 256)
			img.SetUCharAt(y, x*3+0, v)
			img.SetUCharAt(y, x*3+1, v)
			img.SetUCharAt(y, x*3+2, v)
		}
	}
	return img
}

func TestBuildLevelCount(t *testing.T) {
	b := newTestBuilder()
	img := grayRamp(256, 256)
	defer img.Close()

	p, err := b.Build(img)
	require.NoError(t, err)
	defer p.Close()

	// 256 -> 128 -> 64 -> 32, all at or above the 32 pixel minimum.
	require.Equal(t, 4, p.Levels())
	assert.Equal(t, 256, p.Images[0].Cols())
	assert.Equal(t, 128, p.Images[1].Cols())
	assert.Equal(t, 64, p.Images[2].Cols())
	assert.Equal(t, 32, p.Images[3].Cols())
}

func TestBuildStopsBelowMinSize(t *testing.T) {
	b := newTestBuilder()
	img := grayRamp(20, 20)
	defer img.Close()

	p, err := b.Build(img)
	require.NoError(t, err)
	defer p.Close()

	// The next level would be 10x10, under the minimum; only the original
	// survives.
	assert.Equal(t, 1, p.Levels())
}

func TestBuildEmptyImage(t *testing.T) {
	b := newTestBuilder()
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := b.Build(empty)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestBuildClonesInput(t *testing.T) {
	b := newTestBuilder()
	img := grayRamp(64, 64)

	p, err := b.Build(img)
	require.NoError(t, err)
	defer p.Close()

	// Closing the input must not invalidate the pyramid's level 0.
	img.Close()
	assert.Equal(t, 64, p.Images[0].Cols())
}

func TestPyramidInfo(t *testing.T) {
	b := newTestBuilder()
	img := grayRamp(128, 128)
	defer img.Close()

	p, err := b.Build(img)
	require.NoError(t, err)
	defer p.Close()

	info := p.Info()
	// 128 -> 64 -> 32; the next halving lands under the minimum size.
	require.Equal(t, 3, info.Levels)
	require.Len(t, info.Sizes, 3)
	assert.Equal(t, image.Pt(128, 128), info.Sizes[0])
	assert.Equal(t, 128*128+64*64+32*32, info.TotalPixels)
}

func TestExtractBaseFeatures(t *testing.T) {
	b := newTestBuilder()
	img := grayRamp(64, 64)
	defer img.Close()

	p, err := b.Build(img)
	require.NoError(t, err)
	defer p.Close()

	features := b.ExtractBaseFeatures(p)
	defer CloseFeatures(features)
	require.Len(t, features, p.Levels())

	lv0 := features[0]
	assert.False(t, lv0.Gray.Empty())
	assert.Equal(t, 1, lv0.Gray.Channels())
	assert.Equal(t, 64, lv0.Gray.Cols())

	assert.False(t, lv0.Edges.Empty())
	assert.Equal(t, 64, lv0.Edges.Cols())

	assert.Equal(t, gocv.MatTypeCV32F, lv0.GradX.Type())
	assert.Equal(t, gocv.MatTypeCV32F, lv0.GradMag.Type())

	assert.False(t, lv0.HSV.Empty())
	assert.Equal(t, 3, lv0.HSV.Channels())
	assert.False(t, lv0.Lab.Empty())

	// The LBP map is two pixels smaller in each dimension.
	assert.Equal(t, 62, lv0.Texture.Cols())
	assert.Equal(t, 62, lv0.Texture.Rows())
}

func TestComputeLBPTinyImage(t *testing.T) {
	tiny := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1)
	defer tiny.Close()

	lbp := computeLBP(tiny)
	assert.True(t, lbp.Empty())
}
