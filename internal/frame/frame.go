// Package frame defines the capture boundary: raw BGR pixel buffers as
// produced by a screen-capture provider, and their conversion to OpenCV Mats.
package frame

import (
	"errors"
	"fmt"
	"image"

	"github.com/cespare/xxhash/v2"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when a nil or zero-sized frame reaches the
// recognizer. It is the only input failure surfaced to callers.
var ErrEmptyFrame = errors.New("frame: empty input frame")

// Frame is one captured screen image. Pixels are tightly packed BGR
// (3 bytes per pixel, row-major). The buffer is owned by the capture
// provider and treated as immutable here.
type Frame struct {
	Pixels []byte
	Width  int
	Height int
}

// Valid reports whether the frame has dimensions and a buffer that agree.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pixels) == f.Width*f.Height*3
}

// Mat converts the frame to a BGR OpenCV Mat. The Mat copies the pixel
// buffer and must be closed by the caller.
func (f Frame) Mat() (gocv.Mat, error) {
	if !f.Valid() {
		if f.Width <= 0 || f.Height <= 0 || len(f.Pixels) == 0 {
			return gocv.Mat{}, ErrEmptyFrame
		}
		return gocv.Mat{}, fmt.Errorf("frame: buffer size %d does not match %dx%d BGR",
			len(f.Pixels), f.Width, f.Height)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pixels)
}

// FromImage converts a decoded Go image to a BGR Mat. Used by tooling that
// reads screenshots from disk rather than a live capture provider.
func FromImage(srcImg image.Image) (gocv.Mat, error) {
	if srcImg == nil {
		return gocv.Mat{}, ErrEmptyFrame
	}
	bounds := srcImg.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return gocv.Mat{}, ErrEmptyFrame
	}

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := srcImg.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Convert from 16-bit to 8-bit and BGR order for OpenCV
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat, nil
}

// hashSampleSize bounds the work done per hash: frames are downsampled so
// neither dimension exceeds this before hashing.
const hashSampleSize = 64

// ContentHash computes a cheap content hash of an image. The image is
// downsampled and converted to grayscale first so the cost is bounded by
// hashSampleSize regardless of frame resolution. Identical pixel content
// always produces an identical hash; the hash is not perceptual.
func ContentHash(img gocv.Mat) uint64 {
	if img.Empty() {
		return 0
	}

	sample := img
	sampleOwned := false
	if img.Cols() > hashSampleSize || img.Rows() > hashSampleSize {
		resized := gocv.NewMat()
		gocv.Resize(img, &resized, image.Pt(hashSampleSize, hashSampleSize), 0, 0, gocv.InterpolationArea)
		sample = resized
		sampleOwned = true
	}

	gray := sample
	grayOwned := false
	if sample.Channels() == 3 {
		g := gocv.NewMat()
		gocv.CvtColor(sample, &g, gocv.ColorBGRToGray)
		gray = g
		grayOwned = true
	}

	sum := xxhash.Sum64(gray.ToBytes())

	if grayOwned {
		gray.Close()
	}
	if sampleOwned {
		sample.Close()
	}
	return sum
}
