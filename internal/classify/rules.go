package classify

import (
	"ui-recognizer/internal/feature"
	"ui-recognizer/pkg/colorutil"
)

// The built-in rules sum weighted evidence per type. Each piece of evidence
// checks one geometric, texture, colour, or structural property against a
// full-credit band, falling back to half credit in the adjacent bands, and
// the weights are tuned so a region matching most of a type's expected
// properties lands comfortably above that type's threshold.

func scoreButton(v *feature.Vector) float64 {
	score := 0.0

	switch {
	case v.Area >= 200 && v.Area <= 20000:
		score += 0.3
	case (v.Area >= 100 && v.Area < 200) || (v.Area > 20000 && v.Area <= 50000):
		score += 0.15
	}
	switch {
	case v.AspectRatio >= 0.3 && v.AspectRatio <= 6.0:
		score += 0.2
	case (v.AspectRatio >= 0.1 && v.AspectRatio < 0.3) || (v.AspectRatio > 6.0 && v.AspectRatio <= 10.0):
		score += 0.1
	}
	switch {
	case v.Extent > 0.5:
		score += 0.15
	case v.Extent > 0.3:
		score += 0.08
	}
	if v.Color != nil && isButtonColor(v.Color) {
		score += 0.25
	}
	if v.Texture != nil {
		switch d := v.Texture.EdgeDensity; {
		case d >= 0.1 && d <= 0.4:
			score += 0.1
		case (d >= 0.05 && d < 0.1) || (d > 0.4 && d <= 0.6):
			score += 0.05
		}
	}

	return score
}

func scoreIcon(v *feature.Vector) float64 {
	score := 0.0

	switch {
	case v.AspectRatio >= 0.6 && v.AspectRatio <= 2.0:
		score += 0.3
	case (v.AspectRatio >= 0.4 && v.AspectRatio < 0.6) || (v.AspectRatio > 2.0 && v.AspectRatio <= 3.0):
		score += 0.15
	}
	switch {
	case v.Area >= 64 && v.Area <= 8000:
		score += 0.25
	case (v.Area >= 32 && v.Area < 64) || (v.Area > 8000 && v.Area <= 15000):
		score += 0.12
	}
	if v.Structure != nil {
		switch {
		case v.Structure.SymmetryScore > 0.6:
			score += 0.2
		case v.Structure.SymmetryScore > 0.4:
			score += 0.1
		}
		switch {
		case v.Structure.BorderContrast > 0.3:
			score += 0.25
		case v.Structure.BorderContrast > 0.15:
			score += 0.12
		}
	}

	return score
}

func scoreText(v *feature.Vector) float64 {
	score := 0.0

	switch {
	case v.AspectRatio >= 2.0:
		score += 0.3
	case v.AspectRatio >= 1.5:
		score += 0.15
	}
	switch {
	case v.Area >= 100 && v.Area <= 10000:
		score += 0.25
	case (v.Area >= 50 && v.Area < 100) || (v.Area > 10000 && v.Area <= 20000):
		score += 0.12
	}
	if v.Texture != nil {
		switch d := v.Texture.EdgeDensity; {
		case d >= 0.05 && d <= 0.2:
			score += 0.2
		case (d >= 0.02 && d < 0.05) || (d > 0.2 && d <= 0.3):
			score += 0.1
		}
	}
	if v.Structure != nil {
		switch {
		case v.Structure.Connectivity <= 3:
			score += 0.15
		case v.Structure.Connectivity <= 6:
			score += 0.08
		}
	}
	if v.Extent > 0.3 {
		score += 0.1
	}

	return score
}

func scoreLink(v *feature.Vector) float64 {
	score := 0.0

	switch {
	case v.AspectRatio >= 1.5:
		score += 0.25
	case v.AspectRatio >= 1.0:
		score += 0.12
	}
	switch {
	case v.Area >= 50 && v.Area <= 5000:
		score += 0.2
	case (v.Area >= 30 && v.Area < 50) || (v.Area > 5000 && v.Area <= 8000):
		score += 0.1
	}
	if v.Color != nil && isLinkColor(v.Color) {
		score += 0.3
	}
	if v.Texture != nil {
		switch d := v.Texture.EdgeDensity; {
		case d >= 0.08 && d <= 0.25:
			score += 0.15
		case (d >= 0.05 && d < 0.08) || (d > 0.25 && d <= 0.35):
			score += 0.08
		}
	}
	if v.Structure != nil {
		switch {
		case v.Structure.Connectivity <= 2:
			score += 0.1
		case v.Structure.Connectivity <= 4:
			score += 0.05
		}
	}

	return score
}

func scoreInput(v *feature.Vector) float64 {
	score := 0.0

	switch {
	case v.AspectRatio >= 2.0 && v.AspectRatio <= 8.0:
		score += 0.3
	case (v.AspectRatio >= 1.5 && v.AspectRatio < 2.0) || (v.AspectRatio > 8.0 && v.AspectRatio <= 12.0):
		score += 0.15
	}
	switch {
	case v.Area >= 500 && v.Area <= 15000:
		score += 0.25
	case (v.Area >= 200 && v.Area < 500) || (v.Area > 15000 && v.Area <= 25000):
		score += 0.12
	}
	if v.Structure != nil {
		switch {
		case v.Structure.BorderContrast > 0.4:
			score += 0.2
		case v.Structure.BorderContrast > 0.2:
			score += 0.1
		}
	}
	switch {
	case v.Extent > 0.7:
		score += 0.15
	case v.Extent > 0.5:
		score += 0.08
	}
	if v.Color != nil && isLightBackground(v.Color) {
		score += 0.1
	}

	return score
}

// isButtonColor accepts moderately saturated mid-brightness fills as well
// as near-grey fills in a narrower brightness band.
func isButtonColor(c *feature.ColorFeatures) bool {
	if c.SaturationMean > 30 {
		return c.ValueMean >= 50 && c.ValueMean <= 200
	}
	return c.ValueMean >= 80 && c.ValueMean <= 180
}

// isLinkColor looks for saturated blue, the near-universal hyperlink color.
func isLinkColor(c *feature.ColorFeatures) bool {
	return colorutil.IsBlueHue(c.HueMean) && c.SaturationMean > 50
}

// isLightBackground matches the pale, low-saturation fill of input fields.
func isLightBackground(c *feature.ColorFeatures) bool {
	return c.LightnessMean > 200 && c.SaturationMean < 30
}
