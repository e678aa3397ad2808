// Package spatial refines classified elements using their spatial
// relationships: overlap suppression, semantic neighbour inference, and a
// final confidence recomputation.
package spatial

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"ui-recognizer/internal/classify"
	"ui-recognizer/internal/config"
	"ui-recognizer/pkg/geometry"
)

// Direction names the relative position of a neighbour.
type Direction string

const (
	DirLeft  Direction = "left"
	DirRight Direction = "right"
	DirAbove Direction = "above"
	DirBelow Direction = "below"
)

// typeWeights rank element types for overlap conflict resolution. A button
// claim beats a text claim of similar confidence over the same pixels.
var typeWeights = map[classify.ElementType]float64{
	classify.TypeButton: 1.0,
	classify.TypeInput:  0.9,
	classify.TypeIcon:   0.8,
	classify.TypeLink:   0.7,
	classify.TypeText:   0.6,
}

// relationKey indexes the semantic rule table.
type relationKey struct {
	a, b classify.ElementType
}

// semanticRules scores how strongly a neighbour of type b in the given
// direction supports an element of type a. Text left of a button or input
// is likely its label; text below an icon is likely its caption.
var semanticRules = map[relationKey]map[Direction]float64{
	{classify.TypeButton, classify.TypeText}:   {DirLeft: 0.3, DirRight: 0.2, DirAbove: 0.1, DirBelow: 0.1},
	{classify.TypeInput, classify.TypeText}:    {DirLeft: 0.4, DirRight: 0.1, DirAbove: 0.2, DirBelow: 0.1},
	{classify.TypeIcon, classify.TypeText}:     {DirBelow: 0.3, DirRight: 0.2, DirLeft: 0.1, DirAbove: 0.0},
	{classify.TypeLink, classify.TypeText}:     {DirLeft: 0.1, DirRight: 0.1, DirAbove: 0.0, DirBelow: 0.0},
	{classify.TypeButton, classify.TypeButton}: {DirRight: 0.1, DirBelow: 0.1, DirLeft: 0.1, DirAbove: 0.1},
	{classify.TypeIcon, classify.TypeIcon}:     {DirRight: 0.2, DirBelow: 0.2, DirLeft: 0.2, DirAbove: 0.2},
}

var reverseDirection = map[Direction]Direction{
	DirLeft:  DirRight,
	DirRight: DirLeft,
	DirAbove: DirBelow,
	DirBelow: DirAbove,
}

// Analyzer optimizes a set of classified elements in place.
type Analyzer struct {
	overlapThreshold float64
	semanticDistance float64
	densityRadius    float64
	log              *logrus.Entry
}

// NewAnalyzer creates an Analyzer from the spatial configuration.
func NewAnalyzer(sc config.SpatialConfig, log *logrus.Logger) *Analyzer {
	return &Analyzer{
		overlapThreshold: sc.OverlapThreshold,
		semanticDistance: float64(sc.SemanticDistanceThreshold),
		densityRadius:    float64(sc.DensityCheckRadius),
		log:              log.WithField("component", "spatial"),
	}
}

// Optimize runs the full spatial pass: overlap resolution, semantic
// enhancement, confidence recomputation, and a final sort by descending
// confidence.
func (a *Analyzer) Optimize(elements []classify.Element) []classify.Element {
	if len(elements) == 0 {
		return elements
	}

	kept := a.ResolveOverlaps(elements)
	enhanced := a.enhanceWithSemantics(kept)
	final := a.recalculateConfidence(enhanced)
	classify.SortByConfidence(final)

	a.log.WithFields(logrus.Fields{
		"input":  len(elements),
		"output": len(final),
	}).Debug("spatial optimization complete")
	return final
}

// ResolveOverlaps removes overlap conflicts with non-maximum suppression.
// Every conflicting pair loses exactly one member, so no two kept elements
// overlap beyond the threshold, and running the result through again
// returns it unchanged.
func (a *Analyzer) ResolveOverlaps(elements []classify.Element) []classify.Element {
	if len(elements) <= 1 {
		return elements
	}

	sorted := make([]classify.Element, len(elements))
	copy(sorted, elements)
	classify.SortByConfidence(sorted)

	suppressed := make([]bool, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] {
				continue
			}
			if sorted[i].Bounds.IoU(sorted[j].Bounds) <= a.overlapThreshold {
				continue
			}
			if a.suppressLater(&sorted[i], &sorted[j]) {
				suppressed[j] = true
			} else {
				suppressed[i] = true
				break
			}
		}
	}

	kept := make([]classify.Element, 0, len(sorted))
	for i := range sorted {
		if !suppressed[i] {
			kept = append(kept, sorted[i])
		}
	}
	return kept
}

// suppressLater decides whether the lower-confidence element b loses to a.
// A clear confidence margin wins outright; otherwise type weights break
// the tie.
func (a *Analyzer) suppressLater(hi, lo *classify.Element) bool {
	if hi.Confidence-lo.Confidence > 0.2 {
		return true
	}
	return hi.Confidence*weightFor(hi.Type) >= lo.Confidence*weightFor(lo.Type)
}

func weightFor(t classify.ElementType) float64 {
	if w, ok := typeWeights[t]; ok {
		return w
	}
	return 0.5
}

type neighbour struct {
	index     int
	distance  float64
	direction Direction
}

// enhanceWithSemantics boosts each element's confidence from its neighbour
// relations and attaches the semantic context.
func (a *Analyzer) enhanceWithSemantics(elements []classify.Element) []classify.Element {
	for i := range elements {
		nearby := a.findNearby(i, elements)
		boost := a.semanticBoost(&elements[i], nearby, elements)
		elements[i].Confidence = math.Min(1.0, elements[i].Confidence+boost)
		elements[i].Context = a.analyzeContext(&elements[i], nearby, elements)
		elements[i].Adjustments = &classify.ConfidenceAdjustments{SemanticBoost: boost}
	}
	return elements
}

func (a *Analyzer) findNearby(target int, elements []classify.Element) []neighbour {
	center := elements[target].Bounds.Center()
	var nearby []neighbour
	for i := range elements {
		if i == target {
			continue
		}
		other := elements[i].Bounds.Center()
		distance := center.Distance(other)
		if distance <= a.semanticDistance {
			nearby = append(nearby, neighbour{
				index:     i,
				distance:  distance,
				direction: directionOf(center, other),
			})
		}
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].distance < nearby[j].distance })
	return nearby
}

// semanticBoost accumulates distance-weighted relation scores over the
// neighbours, capped at 0.3.
func (a *Analyzer) semanticBoost(el *classify.Element, nearby []neighbour, elements []classify.Element) float64 {
	boost := 0.0
	for _, n := range nearby {
		distanceWeight := math.Max(0, 1.0-n.distance/a.semanticDistance)
		score := semanticScore(el.Type, elements[n.index].Type, n.direction)
		boost += score * distanceWeight * 0.1
	}
	return math.Min(boost, 0.3)
}

// semanticScore looks up the relation rule for (a, b, direction), falling
// back to the reversed rule with the direction flipped.
func semanticScore(ta, tb classify.ElementType, dir Direction) float64 {
	if rule, ok := semanticRules[relationKey{ta, tb}]; ok {
		return rule[dir]
	}
	if rule, ok := semanticRules[relationKey{tb, ta}]; ok {
		return rule[reverseDirection[dir]]
	}
	return 0.0
}

func (a *Analyzer) analyzeContext(el *classify.Element, nearby []neighbour, elements []classify.Element) *classify.SemanticContext {
	ctx := &classify.SemanticContext{}
	for _, n := range nearby {
		nt := elements[n.index].Type
		if (el.Type == classify.TypeButton || el.Type == classify.TypeInput) &&
			nt == classify.TypeText && n.direction == DirLeft {
			ctx.HasLabel = true
		}
		if el.Type == classify.TypeIcon && nt == classify.TypeText && n.direction == DirBelow {
			ctx.HasDescription = true
		}
		if nt == el.Type && n.distance < 30 {
			ctx.InGroup = true
		}
		ctx.RelatedTypes = append(ctx.RelatedTypes, string(nt))
	}
	return ctx
}

// recalculateConfidence applies the context and density adjustments and
// clamps the result to [0, 1].
func (a *Analyzer) recalculateConfidence(elements []classify.Element) []classify.Element {
	for i := range elements {
		contextBoost := contextBoost(elements[i].Context)
		densityAdjust := a.densityAdjustment(i, elements)

		conf := elements[i].Confidence + contextBoost + densityAdjust
		elements[i].Confidence = math.Max(0.0, math.Min(1.0, conf))

		if elements[i].Adjustments == nil {
			elements[i].Adjustments = &classify.ConfidenceAdjustments{}
		}
		elements[i].Adjustments.ContextBoost = contextBoost
		elements[i].Adjustments.DensityAdjust = densityAdjust
	}
	return elements
}

func contextBoost(ctx *classify.SemanticContext) float64 {
	if ctx == nil {
		return 0.0
	}
	boost := 0.0
	if ctx.HasLabel {
		boost += 0.05
	}
	if ctx.HasDescription {
		boost += 0.05
	}
	if ctx.InGroup {
		boost += 0.03
	}
	return boost
}

// densityAdjustment penalizes clusters of many same-type detections, which
// usually indicate over-segmentation, and slightly rewards a moderate one.
func (a *Analyzer) densityAdjustment(target int, elements []classify.Element) float64 {
	center := elements[target].Bounds.Center()
	sameTypeNearby := 0
	for i := range elements {
		if i == target || elements[i].Type != elements[target].Type {
			continue
		}
		if center.Distance(elements[i].Bounds.Center()) < a.densityRadius {
			sameTypeNearby++
		}
	}

	switch {
	case sameTypeNearby > 5:
		return -0.1
	case sameTypeNearby > 3:
		return -0.05
	case sameTypeNearby >= 1:
		return 0.02
	default:
		return 0.0
	}
}

func directionOf(from, to geometry.Point2D) Direction {
	dx := to.X - from.X
	dy := to.Y - from.Y
	if math.Abs(dx) > math.Abs(dy) {
		if dx > 0 {
			return DirRight
		}
		return DirLeft
	}
	if dy > 0 {
		return DirBelow
	}
	return DirAbove
}
