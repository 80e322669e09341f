package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalCDFKnownPoints(t *testing.T) {
	assert.InDelta(t, 0.5, NormalCDF(0), 1e-6)
	assert.InDelta(t, 0.8413, NormalCDF(1), 1e-3)
	assert.InDelta(t, 0.1587, NormalCDF(-1), 1e-3)
}

// entries=1000/conversions=50 (5%) vs a previous window of 1000/25 (2.5%):
// pooled proportion 3.75%, pooled SE ~0.0085, z ~2.94, p ~0.003.
func TestTwoProportionZTestDetectsImprovedConversion(t *testing.T) {
	r := TwoProportionZTest(50, 1000, 25, 1000)
	assert.InDelta(t, 0.0375, r.PooledP, 1e-4)
	assert.InDelta(t, 2.94, r.Z, 0.05)
	assert.Less(t, r.PValue, 0.01)
	assert.True(t, r.IsSignificant)
	assert.Equal(t, 99, r.ConfidenceLevel)
}

// S5: fn_A 2000/100, fn_B 2000/140. Rates 5% vs 7%, pooled p=0.06, SE~0.00754, z~2.65, p~0.008.
func TestTwoProportionZTest_SpecScenarioS5(t *testing.T) {
	r := TwoProportionZTest(140, 2000, 100, 2000)
	assert.InDelta(t, 0.06, r.PooledP, 0.001)
	assert.InDelta(t, 0.00754, r.StdError, 0.0005)
	assert.InDelta(t, 2.65, r.Z, 0.05)
	assert.InDelta(t, 0.008, r.PValue, 0.003)
}

func TestTwoProportionZTestZeroSamples(t *testing.T) {
	r := TwoProportionZTest(0, 0, 0, 0)
	assert.Equal(t, ZTestResult{}, r)
}

func TestConfidenceLevelBuckets(t *testing.T) {
	assert.Equal(t, 99, confidenceLevelFor(0.001))
	assert.Equal(t, 95, confidenceLevelFor(0.02))
	assert.Equal(t, 90, confidenceLevelFor(0.08))
	assert.Equal(t, 0, confidenceLevelFor(0.5))
}

func TestCohensHIdenticalProportionsIsZero(t *testing.T) {
	assert.InDelta(t, 0, CohensH(0.3, 0.3), 1e-9)
	assert.Greater(t, CohensH(0.5, 0.1), 0.0)
}

func TestChiSquareZeroWhenObservedMatchesExpected(t *testing.T) {
	stat, df, p := ChiSquare([]float64{10, 20, 30}, []float64{10, 20, 30})
	assert.InDelta(t, 0, stat, 1e-9)
	assert.Equal(t, 2, df)
	assert.InDelta(t, 1, p, 1e-6)
}

func TestChiSquareLargeDeviationIsSignificant(t *testing.T) {
	_, _, p := ChiSquare([]float64{100, 10}, []float64{55, 55})
	assert.Less(t, p, 0.01)
}

func TestBenjaminiHochbergMonotoneAndBounded(t *testing.T) {
	adj := BenjaminiHochberg([]float64{0.01, 0.04, 0.03, 0.5})
	for _, v := range adj {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	// the smallest raw p-value should still have the smallest (or tied) adjusted value
	assert.LessOrEqual(t, adj[0], adj[3])
}

func TestBenjaminiHochbergEmpty(t *testing.T) {
	assert.Empty(t, BenjaminiHochberg(nil))
}

func TestPearsonRPerfectCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, PearsonR(x, y), 1e-9)
}

func TestPearsonRMismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, PearsonR([]float64{1, 2}, []float64{1}))
}

func TestCoefficientOfVariationZeroMean(t *testing.T) {
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{-1, 1}))
}

func TestStdDevKnownSample(t *testing.T) {
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 0.01)
}

func TestPercentileMedianOfOddSample(t *testing.T) {
	assert.Equal(t, 3.0, Percentile([]float64{5, 1, 3, 2, 4}, 50))
}

func TestPercentileSingleValue(t *testing.T) {
	assert.Equal(t, 42.0, Percentile([]float64{42}, 90))
}

func TestEstimatePercentilesFromMeanRatios(t *testing.T) {
	out := EstimatePercentilesFromMean(100)
	assert.Equal(t, 75.0, out["p25"])
	assert.Equal(t, 100.0, out["p50"])
	assert.Equal(t, 180.0, out["p95"])
}

func TestClampBounds(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(150, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}

// Five points at 10 followed by five at 6.5 (a sudden drop) give a negative slope.
func TestLinearRegressionSlopeDetectsSuddenDrop(t *testing.T) {
	series := []float64{10, 10, 10, 10, 10, 6.5, 6.5, 6.5, 6.5, 6.5}
	slope := LinearRegressionSlope(series)
	assert.Less(t, slope, 0.0)
}

func TestLinearRegressionSlopeFlatSeriesIsZero(t *testing.T) {
	assert.InDelta(t, 0, LinearRegressionSlope([]float64{5, 5, 5, 5}), 1e-9)
}

func TestLinearRegressionSlopeTooShort(t *testing.T) {
	assert.Equal(t, 0.0, LinearRegressionSlope([]float64{1}))
}

func TestUnpooledDifferenceCI95(t *testing.T) {
	ci := UnpooledDifferenceCI95(0.07, 2000, 0.05, 2000)
	assert.Greater(t, ci, 0.0)
	assert.Less(t, ci, 0.05)
}

func TestErfIsOddFunction(t *testing.T) {
	assert.InDelta(t, -erf(0.7), erf(-0.7), 1e-9)
	assert.InDelta(t, 1, math.Abs(erf(5)), 1e-6)
}
