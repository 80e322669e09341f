package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSensitivityThresholds(t *testing.T) {
	drop, stuck := SensitivityHigh.thresholds()
	assert.Equal(t, 30.0, drop)
	assert.Equal(t, int64(5), stuck)

	drop, stuck = SensitivityMedium.thresholds()
	assert.Equal(t, 45.0, drop)
	assert.Equal(t, int64(20), stuck)

	drop, stuck = SensitivityLow.thresholds()
	assert.Equal(t, 65.0, drop)
	assert.Equal(t, int64(50), stuck)
}

func TestTrendLabel(t *testing.T) {
	assert.Equal(t, "improving", trendLabel(0.6))
	assert.Equal(t, "worsening", trendLabel(-0.6))
	assert.Equal(t, "stable", trendLabel(0.1))
}

func TestBottleneckRecommendationBySignal(t *testing.T) {
	assert.Contains(t, bottleneckRecommendation(Bottleneck{Signal: "both"}), "stalling")
	assert.Contains(t, bottleneckRecommendation(Bottleneck{Signal: "time_stuck"}), "stalling")
	assert.Contains(t, bottleneckRecommendation(Bottleneck{Signal: "conversion_drop"}), "abandonment")
}

// TestDetectAnomaliesFlagsOutliersBeyondThreeSigma covers the SPC ±3σ rule
// from §4.5.5 (the point-level signal; detectAnomalies reports each flagged
// point separately and does not merge consecutive ones).
func TestDetectAnomaliesFlagsOutliersBeyondThreeSigma(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]TimeSeriesEntry, 0, 11)
	// Ten points tightly clustered around 10, one extreme outlier.
	for i := 0; i < 10; i++ {
		series = append(series, TimeSeriesEntry{Bucket: base.Add(time.Duration(i) * time.Hour), Rate: 10})
	}
	series = append(series, TimeSeriesEntry{Bucket: base.Add(10 * time.Hour), Rate: 100})

	anomalies := detectAnomalies(series)
	require := assert.New(t)
	require.NotEmpty(anomalies)
	require.Equal("spike", anomalies[0].Kind)
	require.InDelta(100.0, anomalies[0].Rate, 1e-9)
}

func TestDetectAnomaliesNoAnomalyWhenFlat(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]TimeSeriesEntry, 0, 5)
	for i := 0; i < 5; i++ {
		series = append(series, TimeSeriesEntry{Bucket: base.Add(time.Duration(i) * time.Hour), Rate: 10})
	}
	assert.Empty(t, detectAnomalies(series))
}

func TestDetectAnomaliesRequiresAtLeastThreePoints(t *testing.T) {
	assert.Nil(t, detectAnomalies([]TimeSeriesEntry{{Rate: 1}, {Rate: 2}}))
}
