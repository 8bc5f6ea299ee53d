package analysis

import (
	"testing"

	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePoses() []domain.Pose {
	return []domain.Pose{
		{PoseNumber: 1, BindingAffinity: -8.5},
		{PoseNumber: 2, BindingAffinity: -9.2},
		{PoseNumber: 3, BindingAffinity: -6.0},
	}
}

func TestBestPose(t *testing.T) {
	t.Run("lowest affinity wins", func(t *testing.T) {
		best, ok := BestPose(samplePoses())
		require.True(t, ok)
		assert.Equal(t, 2, best.PoseNumber)
		assert.Equal(t, -9.2, best.BindingAffinity)
	})

	t.Run("ties broken by lowest pose number", func(t *testing.T) {
		best, ok := BestPose([]domain.Pose{
			{PoseNumber: 4, BindingAffinity: -7.1},
			{PoseNumber: 2, BindingAffinity: -7.1},
			{PoseNumber: 3, BindingAffinity: -7.1},
		})
		require.True(t, ok)
		assert.Equal(t, 2, best.PoseNumber)
	})

	t.Run("empty pose set", func(t *testing.T) {
		_, ok := BestPose(nil)
		assert.False(t, ok)
	})
}

func TestComputeStatistics(t *testing.T) {
	stats, ok := ComputeStatistics(samplePoses())
	require.True(t, ok)

	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, -9.2, stats.Best)
	assert.Equal(t, -6.0, stats.Worst)
	assert.InDelta(t, 3.2, stats.Range, 1e-9)
	assert.InDelta(t, -7.9, stats.Mean, 1e-9)
	// population standard deviation, divides by N
	assert.InDelta(t, 1.3735599, stats.StdDev, 1e-6)

	single, ok := ComputeStatistics([]domain.Pose{{PoseNumber: 1, BindingAffinity: -5}})
	require.True(t, ok)
	assert.Equal(t, 0.0, single.StdDev)
	assert.Equal(t, 0.0, single.Range)

	_, ok = ComputeStatistics(nil)
	assert.False(t, ok)
}

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		affinity float64
		want     Quality
	}{
		{-9.5, QualityExcellent},
		{-9.0, QualityExcellent},
		{-8.0, QualityGood},
		{-7.0, QualityGood},
		{-6.0, QualityModerate},
		{-5.0, QualityModerate},
		{-3.0, QualityWeak},
		{1.2, QualityWeak},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityLabel(tt.affinity), "affinity %v", tt.affinity)
	}
}

func TestCompositeScoreUpdate(t *testing.T) {
	tests := []struct {
		name     string
		original float64
		affinity float64
		weight   float64
		want     float64
	}{
		{name: "reference example", original: 7.0, affinity: -9.2, weight: 0.3, want: 7.2},
		{name: "affinity beyond scale is clamped to 10", original: 5.0, affinity: -15, weight: 0.3, want: 6.5},
		{name: "positive affinity is clamped to 0", original: 5.0, affinity: 2, weight: 0.3, want: 3.5},
		{name: "zero weight keeps original", original: 6.4, affinity: -11, weight: 0, want: 6.4},
		{name: "full weight uses docking only", original: 6.4, affinity: -6, weight: 1, want: 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CompositeScoreUpdate(tt.original, tt.affinity, tt.weight), 1e-9)
		})
	}
}

func TestNormalizeAffinity(t *testing.T) {
	assert.InDelta(t, 7.6666667, NormalizeAffinity(-9.2), 1e-6)
	assert.Equal(t, 10.0, NormalizeAffinity(-20))
	assert.Equal(t, 0.0, NormalizeAffinity(0.5))
}

func TestImprovementVsPrediction(t *testing.T) {
	tests := []struct {
		name      string
		actual    float64
		predicted float64
		direction Direction
		magnitude float64
	}{
		{name: "better", actual: -9.2, predicted: -8.0, direction: DirectionBetter, magnitude: 1.2},
		{name: "worse", actual: -6.0, predicted: -8.0, direction: DirectionWorse, magnitude: 2.0},
		{name: "within tolerance", actual: -8.3, predicted: -8.0, direction: DirectionSame, magnitude: 0.3},
		{name: "boundary is same", actual: -8.5, predicted: -8.0, direction: DirectionSame, magnitude: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ImprovementVsPrediction(tt.actual, tt.predicted)
			assert.Equal(t, tt.direction, got.Direction)
			assert.InDelta(t, tt.magnitude, got.Magnitude, 1e-9)
		})
	}
}
