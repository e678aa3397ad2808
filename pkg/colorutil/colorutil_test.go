package colorutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRGBToHSV(t *testing.T) {
	h, s, v := RGBToHSV(255, 0, 0)
	assert.InDelta(t, 0.0, h, 0.5)
	assert.InDelta(t, 255.0, s, 0.5)
	assert.InDelta(t, 255.0, v, 0.5)

	h, s, v = RGBToHSV(0, 0, 255)
	assert.InDelta(t, 120.0, h, 0.5)
	assert.InDelta(t, 255.0, s, 0.5)
	assert.InDelta(t, 255.0, v, 0.5)

	h, s, v = RGBToHSV(128, 128, 128)
	assert.Equal(t, 0.0, h)
	assert.Equal(t, 0.0, s)
	assert.InDelta(t, 128.0, v, 0.5)
}

func TestIsBlueHue(t *testing.T) {
	h, _, _ := RGBToHSV(0, 0, 255)
	assert.True(t, IsBlueHue(h))

	h, _, _ = RGBToHSV(255, 0, 0)
	assert.False(t, IsBlueHue(h))
}
