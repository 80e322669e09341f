package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victoralfred/funnelengine/internal/domain/funnel"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

func testWindow() (time.Time, time.Time) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return start, start.Add(48 * time.Hour)
}

// TestComputeConversionDropOffMath exercises §8 invariant 4 ("drop_off_count
// == reached(s-1) - reached(s)") against the S3 scenario's step entries
// ([1000, 400, 100]).
func TestComputeConversionDropOffMath(t *testing.T) {
	repo := &fakeRepository{stepCompletions: map[int]int64{0: 1000, 1: 400, 2: 100}}
	e := newTestEngine(repo, &fakeFunnelLookup{})
	start, end := testWindow()

	fn := threeStepFunnel(1)
	result, err := e.computeConversion(context.Background(), ConversionRequest{
		TenantID: 1, WorkspaceID: 1, FunnelID: 1, Start: start, End: end,
	}, fn.Versions[0])
	require.NoError(t, err)
	require.Len(t, result.StepMetrics, 3)

	for i := 1; i < len(result.StepMetrics); i++ {
		reachedPrev := repo.stepCompletions[i-1]
		reachedCur := repo.stepCompletions[i]
		got := result.StepMetrics[i]
		assert.Equal(t, reachedPrev-reachedCur, got.DropOffCount, "step %d drop-off count", i)
		assert.GreaterOrEqual(t, got.DropOffRate, 0.0)
		assert.LessOrEqual(t, got.DropOffRate, 100.0)
	}

	assert.Equal(t, int64(1000), result.TotalEntries)
	assert.Equal(t, int64(100), result.TotalConversions)
	assert.InDelta(t, 10.0, result.OverallRate, 1e-9)

	// Step 1: 400/1000 -> 60% drop. Step 2: 100/400 -> 75% drop, severity critical.
	assert.InDelta(t, 60.0, result.StepMetrics[1].DropOffRate, 1e-9)
	assert.InDelta(t, 75.0, result.StepMetrics[2].DropOffRate, 1e-9)
	assert.Equal(t, "critical", result.StepMetrics[2].Severity)
}

func TestComputeConversionZeroEntriesYieldsZerosNotNulls(t *testing.T) {
	repo := &fakeRepository{}
	e := newTestEngine(repo, &fakeFunnelLookup{})
	start, end := testWindow()
	fn := threeStepFunnel(1)

	result, err := e.computeConversion(context.Background(), ConversionRequest{
		TenantID: 1, WorkspaceID: 1, FunnelID: 1, Start: start, End: end,
	}, fn.Versions[0])
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.TotalEntries)
	assert.Equal(t, int64(0), result.TotalConversions)
	assert.Equal(t, 0.0, result.OverallRate)
	assert.NotNil(t, result.StepMetrics)
	for _, sm := range result.StepMetrics {
		assert.Equal(t, int64(0), sm.DropOffCount)
	}
}

func TestSeverityBucketBoundaries(t *testing.T) {
	cases := []struct {
		rate float64
		want string
	}{
		{0, "low"}, {45, "low"}, {45.1, "medium"}, {60, "medium"}, {60.1, "high"}, {75, "high"}, {75.1, "critical"}, {100, "critical"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, severityBucket(c.rate), "rate=%v", c.rate)
	}
}

func TestComputeTimeSeriesMovingAverageAndTrend(t *testing.T) {
	repo := &fakeRepository{}
	e := newTestEngine(repo, &fakeFunnelLookup{})
	start, end := testWindow()

	repo.timeSeries = []postgres.TimeSeriesPoint{
		{Bucket: start, Entries: 100, Conversions: 10},
		{Bucket: start.Add(24 * time.Hour), Entries: 100, Conversions: 20},
	}

	series, err := e.computeTimeSeries(context.Background(), ConversionRequest{
		TenantID: 1, WorkspaceID: 1, FunnelID: 1, Start: start, End: end,
	}, 3)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.InDelta(t, 10.0, series[0].Rate, 1e-9)
	assert.InDelta(t, 20.0, series[1].Rate, 1e-9)
	assert.Equal(t, "stable", series[0].TrendDirection)
	assert.Equal(t, "up", series[1].TrendDirection)
	assert.InDelta(t, 15.0, series[1].MovingAverage, 1e-9)
}

func TestFunnelVersionPublishedIsLatest(t *testing.T) {
	fn := threeStepFunnel(1)
	v := fn.LatestPublished()
	require.NotNil(t, v)
	assert.Equal(t, 1, v.Version)
	assert.Equal(t, funnel.VersionPublished, v.State)
}
