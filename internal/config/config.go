// Package config holds the tunable parameters for the visual recognizer.
// The surrounding application persists the configuration as JSON; this
// package owns its shape, defaults, presets and load-time validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PyramidConfig controls multi-scale pyramid construction.
type PyramidConfig struct {
	Levels      int     `json:"levels" validate:"min=1,max=10"`
	ScaleFactor float64 `json:"scaleFactor" validate:"gt=0,lt=1"`
	MinSize     int     `json:"minSize" validate:"min=16"`
}

// SegmentationConfig controls candidate-region extraction.
type SegmentationConfig struct {
	MinRegionArea        int `json:"minRegionArea" validate:"gt=0"`
	MaxRegionArea        int `json:"maxRegionArea" validate:"gt=0"`
	EdgeThresholdLow     int `json:"edgeThresholdLow" validate:"min=1,max=255"`
	EdgeThresholdHigh    int `json:"edgeThresholdHigh" validate:"min=1,max=255"`
	MorphologyKernelSize int `json:"morphologyKernelSize" validate:"min=3,max=15"`
}

// ClassificationConfig holds the per-type acceptance thresholds.
type ClassificationConfig struct {
	Thresholds map[string]float64 `json:"thresholds" validate:"dive,min=0,max=1"`
}

// SpatialConfig controls overlap resolution and semantic enhancement.
type SpatialConfig struct {
	OverlapThreshold          float64 `json:"overlapThreshold" validate:"min=0,max=1"`
	SemanticDistanceThreshold int     `json:"semanticDistanceThreshold" validate:"gt=0"`
	DensityCheckRadius        int     `json:"densityCheckRadius" validate:"gt=0"`
}

// PerformanceConfig controls caching, parallelism and incremental
// change detection.
type PerformanceConfig struct {
	EnableCaching             bool    `json:"enableCaching"`
	MaxCacheSize              int     `json:"maxCacheSize" validate:"gt=0"`
	CacheMemoryLimitMB        int     `json:"cacheMemoryLimitMB" validate:"gt=0"`
	ParallelFeatureExtraction bool    `json:"parallelFeatureExtraction"`
	MaxThreads                int     `json:"maxThreads" validate:"gt=0"`
	EnableROIDetection        bool    `json:"enableROIDetection"`
	ROIChangeThreshold        float64 `json:"roiChangeThreshold" validate:"gt=0,lt=1"`
	ROIMinSize                int     `json:"roiMinSize" validate:"gt=0"`
	ROIMaxCount               int     `json:"roiMaxCount" validate:"gt=0"`
	ROIMergeDistance          int     `json:"roiMergeDistance" validate:"min=0"`
	ROICoverageThreshold      float64 `json:"roiCoverageThreshold" validate:"gt=0,max=1"`
}

// RecognitionConfig is the complete parameter set for one recognizer
// instance. Loaded once and mutated only through Recognizer.UpdateConfig.
type RecognitionConfig struct {
	Pyramid        PyramidConfig        `json:"pyramid"`
	Segmentation   SegmentationConfig   `json:"segmentation"`
	Classification ClassificationConfig `json:"classification"`
	Spatial        SpatialConfig        `json:"spatial"`
	Performance    PerformanceConfig    `json:"performance"`
}

// ConfigError reports an out-of-range or inconsistent parameter. Invalid
// configurations are rejected at load time, never silently clamped.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "config: invalid configuration: " + strings.Join(e.Problems, "; ")
}

var validate = validator.New()

// Default returns the balanced default configuration.
func Default() RecognitionConfig {
	return RecognitionConfig{
		Pyramid: PyramidConfig{
			Levels:      4,
			ScaleFactor: 0.5,
			MinSize:     32,
		},
		Segmentation: SegmentationConfig{
			MinRegionArea:        50,
			MaxRegionArea:        100000,
			EdgeThresholdLow:     50,
			EdgeThresholdHigh:    150,
			MorphologyKernelSize: 3,
		},
		Classification: ClassificationConfig{
			Thresholds: map[string]float64{
				"button": 0.4,
				"icon":   0.35,
				"text":   0.3,
				"link":   0.35,
				"input":  0.4,
			},
		},
		Spatial: SpatialConfig{
			OverlapThreshold:          0.3,
			SemanticDistanceThreshold: 50,
			DensityCheckRadius:        100,
		},
		Performance: PerformanceConfig{
			EnableCaching:             true,
			MaxCacheSize:              100,
			CacheMemoryLimitMB:        512,
			ParallelFeatureExtraction: true,
			MaxThreads:                4,
			EnableROIDetection:        true,
			ROIChangeThreshold:        0.05,
			ROIMinSize:                50,
			ROIMaxCount:               10,
			ROIMergeDistance:          30,
			ROICoverageThreshold:      0.7,
		},
	}
}

// Balanced is an alias for the default preset.
func Balanced() RecognitionConfig {
	return Default()
}

// Fast trades accuracy for latency: a single pyramid level, coarse
// segmentation, lowered acceptance thresholds and aggressive change
// detection.
func Fast() RecognitionConfig {
	c := Default()
	c.Pyramid.Levels = 1
	c.Pyramid.ScaleFactor = 0.6
	c.Segmentation.MinRegionArea = 100
	c.Segmentation.MaxRegionArea = 50000
	c.Classification.Thresholds = map[string]float64{
		"button": 0.35,
		"icon":   0.3,
		"text":   0.25,
		"link":   0.3,
		"input":  0.35,
	}
	c.Performance.ParallelFeatureExtraction = true
	c.Performance.ROIChangeThreshold = 0.1
	c.Performance.ROIMinSize = 80
	c.Performance.ROIMaxCount = 5
	return c
}

// Accurate favours recall and precision over latency: full pyramid depth,
// serial extraction, raised acceptance thresholds and fine-grained change
// detection.
func Accurate() RecognitionConfig {
	c := Default()
	c.Pyramid.Levels = 4
	c.Pyramid.ScaleFactor = 0.5
	c.Segmentation.MinRegionArea = 50
	c.Segmentation.MaxRegionArea = 100000
	c.Performance.ParallelFeatureExtraction = false
	c.Performance.ROIChangeThreshold = 0.02
	c.Performance.ROIMinSize = 30
	c.Classification.Thresholds = map[string]float64{
		"button": 0.5,
		"icon":   0.45,
		"text":   0.4,
		"link":   0.45,
		"input":  0.5,
	}
	return c
}

// Preset returns a named preset ("fast", "accurate", "balanced").
func Preset(name string) (RecognitionConfig, error) {
	switch strings.ToLower(name) {
	case "fast":
		return Fast(), nil
	case "accurate":
		return Accurate(), nil
	case "balanced", "default", "":
		return Balanced(), nil
	default:
		return RecognitionConfig{}, fmt.Errorf("config: unknown preset %q", name)
	}
}

// Validate checks all parameters and returns a ConfigError listing every
// problem found. A nil return means the configuration is usable as-is.
func (c RecognitionConfig) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s fails %q constraint", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	// Cross-field checks the tag language cannot express.
	if c.Segmentation.MaxRegionArea <= c.Segmentation.MinRegionArea {
		problems = append(problems, "segmentation.maxRegionArea must exceed minRegionArea")
	}
	if c.Segmentation.EdgeThresholdHigh <= c.Segmentation.EdgeThresholdLow {
		problems = append(problems, "segmentation.edgeThresholdHigh must exceed edgeThresholdLow")
	}
	if c.Segmentation.MorphologyKernelSize%2 == 0 {
		problems = append(problems, "segmentation.morphologyKernelSize must be odd")
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// LoadFile reads a JSON configuration from disk. Missing fields keep their
// defaults; the merged result is validated before being returned.
func LoadFile(path string) (RecognitionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RecognitionConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSON configuration, applying defaults for absent fields.
func Parse(data []byte) (RecognitionConfig, error) {
	c := Default()
	if err := json.Unmarshal(data, &c); err != nil {
		return RecognitionConfig{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return RecognitionConfig{}, err
	}
	return c, nil
}

// SaveFile writes the configuration to disk as indented JSON.
func (c RecognitionConfig) SaveFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Threshold returns the acceptance threshold for an element type, falling
// back to 0.3 for unknown types as the rule table does.
func (c ClassificationConfig) Threshold(elementType string) float64 {
	if t, ok := c.Thresholds[elementType]; ok {
		return t
	}
	return 0.3
}
