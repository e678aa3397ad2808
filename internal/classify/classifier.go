// Package classify scores candidate regions against rule sets for each
// supported clickable element type and emits typed elements.
package classify

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"ui-recognizer/internal/config"
	"ui-recognizer/internal/feature"
	"ui-recognizer/pkg/geometry"
)

// ElementType identifies a category of clickable UI element.
type ElementType string

const (
	TypeButton ElementType = "button"
	TypeIcon   ElementType = "icon"
	TypeText   ElementType = "text"
	TypeLink   ElementType = "link"
	TypeInput  ElementType = "input"
)

// SemanticContext captures the relational context a spatial pass attaches
// to an element after classification.
type SemanticContext struct {
	HasLabel       bool     `json:"has_label"`
	HasDescription bool     `json:"has_description"`
	InGroup        bool     `json:"in_group"`
	RelatedTypes   []string `json:"related_types,omitempty"`
}

// ConfidenceAdjustments breaks down the post-classification confidence
// changes applied by the spatial pass.
type ConfidenceAdjustments struct {
	SemanticBoost float64 `json:"semantic_boost"`
	ContextBoost  float64 `json:"context_boost"`
	DensityAdjust float64 `json:"density_adjust"`
}

// Element is one detected clickable element.
type Element struct {
	Type        ElementType             `json:"type"`
	Bounds      geometry.RectInt        `json:"bounds"`
	Confidence  float64                 `json:"confidence"`
	Center      geometry.Point2D        `json:"center"`
	Context     *SemanticContext        `json:"context,omitempty"`
	Scores      map[ElementType]float64 `json:"-"`
	Features    *feature.Vector         `json:"-"`
	Adjustments *ConfidenceAdjustments  `json:"adjustments,omitempty"`
}

// RuleFunc scores a feature vector for one element type. Implementations
// must return a value in [0, 1].
type RuleFunc func(v *feature.Vector) float64

// Classifier applies per-type rules to feature vectors. The registry keeps
// insertion order so repeated runs over the same input classify
// deterministically.
type Classifier struct {
	order      []ElementType
	rules      map[ElementType]RuleFunc
	thresholds map[ElementType]float64
	log        *logrus.Entry
}

// NewClassifier builds a Classifier with the built-in rule set for the five
// standard element types. Thresholds come from the configuration, falling
// back to the per-type defaults where unset.
func NewClassifier(cc config.ClassificationConfig, log *logrus.Logger) *Classifier {
	c := &Classifier{
		rules:      make(map[ElementType]RuleFunc),
		thresholds: make(map[ElementType]float64),
		log:        log.WithField("component", "classify"),
	}

	defaults := map[ElementType]float64{
		TypeButton: 0.4,
		TypeIcon:   0.35,
		TypeText:   0.3,
		TypeLink:   0.35,
		TypeInput:  0.4,
	}
	builtins := []struct {
		t ElementType
		f RuleFunc
	}{
		{TypeButton, scoreButton},
		{TypeIcon, scoreIcon},
		{TypeText, scoreText},
		{TypeLink, scoreLink},
		{TypeInput, scoreInput},
	}
	for _, b := range builtins {
		threshold := defaults[b.t]
		if t, ok := cc.Thresholds[string(b.t)]; ok {
			threshold = t
		}
		c.RegisterRule(b.t, b.f, threshold)
	}
	return c
}

// RegisterRule installs or replaces the rule for an element type. New types
// append to the evaluation order; existing types keep their position.
func (c *Classifier) RegisterRule(t ElementType, fn RuleFunc, threshold float64) {
	if _, exists := c.rules[t]; !exists {
		c.order = append(c.order, t)
	}
	c.rules[t] = fn
	c.thresholds[t] = threshold
}

// SetThreshold adjusts the acceptance threshold for a registered type.
func (c *Classifier) SetThreshold(t ElementType, threshold float64) {
	if _, ok := c.rules[t]; ok {
		c.thresholds[t] = threshold
	}
}

// SupportedTypes lists the registered element types in evaluation order.
func (c *Classifier) SupportedTypes() []ElementType {
	out := make([]ElementType, len(c.order))
	copy(out, c.order)
	return out
}

// ClassifyElements scores every vector against every registered rule,
// assigns each region its highest-scoring type, and keeps the region when
// that type clears its threshold. A region whose best type falls short is
// dropped even if a lower-scoring type would have cleared its own
// threshold.
func (c *Classifier) ClassifyElements(vectors []feature.Vector) []Element {
	elements := make([]Element, 0, len(vectors))
	for i := range vectors {
		if el, ok := c.classifyOne(&vectors[i], c.order); ok {
			elements = append(elements, el)
		}
	}
	c.log.WithFields(logrus.Fields{
		"candidates": len(vectors),
		"accepted":   len(elements),
	}).Debug("classification complete")
	return elements
}

// ClassifySingleType scores vectors against one type only.
func (c *Classifier) ClassifySingleType(vectors []feature.Vector, t ElementType) []Element {
	if _, ok := c.rules[t]; !ok {
		return nil
	}
	elements := make([]Element, 0, len(vectors))
	for i := range vectors {
		if el, ok := c.classifyOne(&vectors[i], []ElementType{t}); ok {
			elements = append(elements, el)
		}
	}
	return elements
}

// classifyOne picks the arg-max type across the candidate set and keeps
// the region only when that type clears its own threshold. Ties go to the
// earlier type in evaluation order.
func (c *Classifier) classifyOne(v *feature.Vector, types []ElementType) (Element, bool) {
	if len(types) == 0 {
		return Element{}, false
	}
	scores := make(map[ElementType]float64, len(types))
	best := types[0]
	bestScore := -1.0
	for _, t := range types {
		score := clamp01(c.rules[t](v))
		scores[t] = score
		if score > bestScore {
			best = t
			bestScore = score
		}
	}
	if bestScore < c.thresholds[best] {
		return Element{}, false
	}
	return Element{
		Type:       best,
		Bounds:     v.Bounds,
		Confidence: bestScore,
		Center:     v.Bounds.Center(),
		Scores:     scores,
		Features:   v,
	}, true
}

// sortByConfidence orders elements by descending confidence, breaking ties
// by position so output order is stable.
func sortByConfidence(elements []Element) {
	sort.SliceStable(elements, func(i, j int) bool {
		if elements[i].Confidence != elements[j].Confidence {
			return elements[i].Confidence > elements[j].Confidence
		}
		if elements[i].Bounds.Y != elements[j].Bounds.Y {
			return elements[i].Bounds.Y < elements[j].Bounds.Y
		}
		return elements[i].Bounds.X < elements[j].Bounds.X
	})
}

// SortByConfidence orders elements by descending confidence with a stable
// positional tiebreak.
func SortByConfidence(elements []Element) {
	sortByConfidence(elements)
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
