package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestPresets(t *testing.T) {
	fast, err := Preset("fast")
	require.NoError(t, err)
	assert.Equal(t, 1, fast.Pyramid.Levels)
	assert.NoError(t, fast.Validate())

	accurate, err := Preset("accurate")
	require.NoError(t, err)
	assert.Equal(t, 4, accurate.Pyramid.Levels)
	assert.False(t, accurate.Performance.ParallelFeatureExtraction)
	assert.NoError(t, accurate.Validate())

	balanced, err := Preset("Balanced")
	require.NoError(t, err)
	assert.Equal(t, Default(), balanced)

	_, err = Preset("turbo")
	assert.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	c := Default()
	c.Pyramid.ScaleFactor = 1.5
	c.Segmentation.MinRegionArea = 5000
	c.Segmentation.MaxRegionArea = 100
	c.Segmentation.MorphologyKernelSize = 4

	err := c.Validate()
	require.Error(t, err)

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.GreaterOrEqual(t, len(cerr.Problems), 3)
}

func TestValidateEdgeThresholdOrder(t *testing.T) {
	c := Default()
	c.Segmentation.EdgeThresholdLow = 200
	c.Segmentation.EdgeThresholdHigh = 100
	assert.Error(t, c.Validate())
}

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(`{"pyramid": {"levels": 2}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Pyramid.Levels)
	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Segmentation, c.Segmentation)
	assert.Equal(t, Default().Performance, c.Performance)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte(`{"segmentation": {"morphologyKernelSize": 2}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	original := Accurate()
	require.NoError(t, original.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestThresholdFallback(t *testing.T) {
	c := Default().Classification
	assert.Equal(t, 0.4, c.Threshold("button"))
	assert.Equal(t, 0.3, c.Threshold("unknown"))
}
