package analytics

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

// newMissCache builds a *cache.Layer whose Redis client points at an
// unreachable address, so every Get is a genuine (if slow-free) connection
// error that degrades to cache.ErrMiss per §4.2's contract, and every Set is
// logged and swallowed. This exercises the real cache-miss-then-compute path
// of each AnalyzeX method without requiring a live Redis server.
func newMissCache() *cache.Layer {
	rdb := redis.NewClient(&redis.Options{
		Addr:            "127.0.0.1:1",
		DialTimeout:     50 * time.Millisecond,
		ReadTimeout:     50 * time.Millisecond,
		WriteTimeout:    50 * time.Millisecond,
		MaxRetries:      -1,
	})
	return cache.New(rdb, nil)
}

// fakeFunnelLookup is an in-memory FunnelLookup fixture.
type fakeFunnelLookup struct {
	funnels map[int64]*funnel.Funnel
	peers   []postgres.PeerFunnelMetric
}

func (f *fakeFunnelLookup) Get(ctx context.Context, tenantID, workspaceID, id int64) (*funnel.Funnel, error) {
	fn, ok := f.funnels[id]
	if !ok || fn.TenantID != tenantID || fn.WorkspaceID != workspaceID {
		return nil, apperr.NotFound("funnel not found")
	}
	return fn, nil
}

func (f *fakeFunnelLookup) PeerFunnelMetrics(ctx context.Context, tenantID, workspaceID, excludeFunnelID int64) ([]postgres.PeerFunnelMetric, error) {
	return f.peers, nil
}

// threeStepFunnel builds a published funnel/version with start/page/
// conversion steps, mirroring the S1/S3 scenario shapes from spec.md §8.
func threeStepFunnel(id int64) *funnel.Funnel {
	return &funnel.Funnel{
		ID: id, TenantID: 1, WorkspaceID: 1, Name: "checkout",
		Versions: []*funnel.Version{{
			ID: 1, FunnelID: id, Version: 1, State: funnel.VersionPublished,
			Steps: []*funnel.Step{
				{OrderIndex: 0, Type: funnel.StepStart, Label: "begin"},
				{OrderIndex: 1, Type: funnel.StepPage, Label: "checkout page"},
				{OrderIndex: 2, Type: funnel.StepConversion, Label: "purchase"},
			},
		}},
	}
}

// fakeRepository is an in-memory, fully-scripted Repository fixture: each
// field backs exactly one method, defaulting to zero values so tests only
// need to populate what they exercise.
type fakeRepository struct {
	stepCompletions map[int]int64 // order -> count, same value regardless of window
	segments        []postgres.SegmentConversion
	timeSeries      []postgres.TimeSeriesPoint
	avgStepTime     float64
	avgTimeToConvert float64
	velocity        float64
	avgConversionRate float64

	dropoffRows []postgres.StepDropoff
	exitPaths   []postgres.ExitPath

	cohorts     []postgres.Cohort
	progression []postgres.CohortProgressionRow
	retention   []postgres.RetentionPoint

	timingDist  postgres.TimingDistribution
	stepTimings []postgres.StepTiming
	velocityTrends []postgres.VelocityTrend
	segmentTimings []postgres.SegmentTiming

	liveMetrics postgres.LiveMetrics
	stuckSteps  []postgres.StuckStep

	journeys    []postgres.UserJourney
	touchpoints []postgres.TouchpointRecord
}

func (f *fakeRepository) StepCompletions(ctx context.Context, tenantID, workspaceID, funnelID int64, stepOrder int, start, end time.Time) (int64, error) {
	return f.stepCompletions[stepOrder], nil
}

func (f *fakeRepository) SegmentConversions(ctx context.Context, tenantID, workspaceID, funnelID int64, dimension string, totalSteps int, start, end time.Time) ([]postgres.SegmentConversion, error) {
	return f.segments, nil
}

func (f *fakeRepository) ConversionTimeSeries(ctx context.Context, tenantID, workspaceID, funnelID int64, granularity string, totalSteps int, start, end time.Time) ([]postgres.TimeSeriesPoint, error) {
	return f.timeSeries, nil
}

func (f *fakeRepository) AvgStepCompletionTime(ctx context.Context, tenantID, workspaceID, funnelID int64, stepOrder int, start, end time.Time) (float64, error) {
	return f.avgStepTime, nil
}

func (f *fakeRepository) AvgTimeToConvert(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error) {
	return f.avgTimeToConvert, nil
}

func (f *fakeRepository) ConversionVelocity(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error) {
	return f.velocity, nil
}

func (f *fakeRepository) AvgConversionRate(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error) {
	return f.avgConversionRate, nil
}

func (f *fakeRepository) PeerFunnelMetrics(ctx context.Context, tenantID, workspaceID, excludeFunnelID int64) ([]postgres.PeerFunnelMetric, error) {
	return nil, nil
}

func (f *fakeRepository) StepDropoffRates(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]postgres.StepDropoff, error) {
	return f.dropoffRows, nil
}

func (f *fakeRepository) ExitPaths(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]postgres.ExitPath, error) {
	return f.exitPaths, nil
}

func (f *fakeRepository) CohortsByPeriod(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]postgres.Cohort, error) {
	return f.cohorts, nil
}

func (f *fakeRepository) CohortProgression(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, totalSteps int, start, end time.Time) ([]postgres.CohortProgressionRow, error) {
	return f.progression, nil
}

func (f *fakeRepository) RetentionCurve(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]postgres.RetentionPoint, error) {
	return f.retention, nil
}

func (f *fakeRepository) TimingDistribution(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (postgres.TimingDistribution, error) {
	return f.timingDist, nil
}

func (f *fakeRepository) StepTimingAnalysis(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]postgres.StepTiming, error) {
	return f.stepTimings, nil
}

func (f *fakeRepository) VelocityTrends(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]postgres.VelocityTrend, error) {
	return f.velocityTrends, nil
}

func (f *fakeRepository) SegmentTimingComparison(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) ([]postgres.SegmentTiming, error) {
	return f.segmentTimings, nil
}

func (f *fakeRepository) LiveMetrics(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int) (postgres.LiveMetrics, error) {
	return f.liveMetrics, nil
}

func (f *fakeRepository) StuckSteps(ctx context.Context, tenantID, workspaceID, funnelID int64, idleMinutes int, minStuck int64) ([]postgres.StuckStep, error) {
	return f.stuckSteps, nil
}

func (f *fakeRepository) UserJourneys(ctx context.Context, tenantID, workspaceID, funnelID int64, maxPathLength, limit int, start, end time.Time) ([]postgres.UserJourney, error) {
	return f.journeys, nil
}

func (f *fakeRepository) TouchpointJourneys(ctx context.Context, tenantID, workspaceID, funnelID int64, maxTouchpoints, limit int, lookback time.Duration, end time.Time) ([]postgres.TouchpointRecord, error) {
	return f.touchpoints, nil
}

func newTestEngine(repo *fakeRepository, store *fakeFunnelLookup) *Engine {
	return NewEngine(repo, store, newMissCache(), nil)
}
