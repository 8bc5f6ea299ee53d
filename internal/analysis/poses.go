// Package analysis holds the pure pose-set computations behind docking results:
// best pose selection, affinity statistics, quality labels and the blended
// composite score shown next to a docking run.
package analysis

import (
	"math"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
)

// Quality is a coarse label for a binding affinity
type Quality string

const (
	QualityExcellent Quality = "Excellent"
	QualityGood      Quality = "Good"
	QualityModerate  Quality = "Moderate"
	QualityWeak      Quality = "Weak"
)

// Quality thresholds in kcal/mol. Fixed for every deployment.
const (
	excellentThreshold = -9.0
	goodThreshold      = -7.0
	moderateThreshold  = -5.0
)

// DefaultDockingWeight is the share of the composite score given to docking
const DefaultDockingWeight = 0.3

// affinityScale maps -12 kcal/mol onto the top of the 0-10 score scale
const affinityScale = 12.0

// improvementTolerance is the band in kcal/mol treated as "same as predicted"
const improvementTolerance = 0.5

// Statistics summarises binding affinities across a pose set
type Statistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Range  float64 `json:"range"`
	Best   float64 `json:"best"`
	Worst  float64 `json:"worst"`
}

// BestPose returns the pose with the lowest binding affinity; ties go to the lowest pose number
func BestPose(poses []domain.Pose) (domain.Pose, bool) {
	if len(poses) == 0 {
		return domain.Pose{}, false
	}

	best := poses[0]
	for _, p := range poses[1:] {
		if p.BindingAffinity < best.BindingAffinity ||
			(p.BindingAffinity == best.BindingAffinity && p.PoseNumber < best.PoseNumber) {
			best = p
		}
	}
	return best, true
}

// ComputeStatistics returns mean, population standard deviation, range, best and worst affinity
func ComputeStatistics(poses []domain.Pose) (Statistics, bool) {
	if len(poses) == 0 {
		return Statistics{}, false
	}

	best := poses[0].BindingAffinity
	worst := poses[0].BindingAffinity
	sum := 0.0
	for _, p := range poses {
		sum += p.BindingAffinity
		best = math.Min(best, p.BindingAffinity)
		worst = math.Max(worst, p.BindingAffinity)
	}

	n := float64(len(poses))
	mean := sum / n

	variance := 0.0
	for _, p := range poses {
		d := p.BindingAffinity - mean
		variance += d * d
	}
	variance /= n

	return Statistics{
		Count:  len(poses),
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Range:  worst - best,
		Best:   best,
		Worst:  worst,
	}, true
}

// QualityLabel classifies a binding affinity
func QualityLabel(affinity float64) Quality {
	switch {
	case affinity <= excellentThreshold:
		return QualityExcellent
	case affinity <= goodThreshold:
		return QualityGood
	case affinity <= moderateThreshold:
		return QualityModerate
	default:
		return QualityWeak
	}
}

// NormalizeAffinity maps a binding affinity onto the 0-10 score scale
func NormalizeAffinity(affinity float64) float64 {
	return clamp(0, 10, (-affinity/affinityScale)*10)
}

// CompositeScoreUpdate blends a docking result into an existing composite score.
// The result is for display only and is rounded to one decimal.
func CompositeScoreUpdate(originalScore, bestAffinity, dockingWeight float64) float64 {
	updated := originalScore*(1-dockingWeight) + NormalizeAffinity(bestAffinity)*dockingWeight
	return roundTo(updated, 1)
}

// Direction of a docking result against its predicted affinity
type Direction string

const (
	DirectionBetter Direction = "better"
	DirectionWorse  Direction = "worse"
	DirectionSame   Direction = "same"
)

// Improvement compares an actual affinity with a prediction
type Improvement struct {
	Direction Direction `json:"direction"`
	Magnitude float64   `json:"magnitude"`
}

// ImprovementVsPrediction reports whether docking beat the predicted affinity.
// More negative is better.
func ImprovementVsPrediction(actual, predicted float64) Improvement {
	diff := actual - predicted

	direction := DirectionSame
	switch {
	case diff < -improvementTolerance:
		direction = DirectionBetter
	case diff > improvementTolerance:
		direction = DirectionWorse
	}

	return Improvement{Direction: direction, Magnitude: math.Abs(diff)}
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
