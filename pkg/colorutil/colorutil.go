// Package colorutil converts between color spaces using the OpenCV value
// conventions, so Go-side color math matches what the feature maps contain.
package colorutil

import "math"

// RGBToHSV converts RGB (0-255) to HSV in the OpenCV convention:
// H 0-180, S 0-255, V 0-255.
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	r /= 255.0
	g /= 255.0
	b /= 255.0

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	v = maxC * 255.0

	if maxC == 0 {
		s = 0
	} else {
		s = (diff / maxC) * 255.0
	}

	if diff == 0 {
		h = 0
	} else if maxC == r {
		h = 60 * math.Mod((g-b)/diff, 6)
	} else if maxC == g {
		h = 60 * ((b-r)/diff + 2)
	} else {
		h = 60 * ((r-g)/diff + 4)
	}
	if h < 0 {
		h += 360
	}

	return h / 2, s, v
}

// IsBlueHue reports whether an OpenCV hue (0-180) falls in the blue band
// typical of hyperlink text.
func IsBlueHue(h float64) bool {
	return h >= 100 && h <= 130
}
