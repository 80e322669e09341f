// Package analytics implements the AnalyticsEngine of §4.5: conversion,
// drop-off, cohort, timing, bottleneck, path, attribution and comparison
// analyses. It is generalized from backend/internal/services/
// funnel_service.go's cache-map-per-operation shape (AnalyzeFunnel,
// GetDropoffPoints, AnalyzePaths, CompareFunnels, AnalyzeTimeToConvert,
// AnalyzeAttribution, ExportFunnelData) from simulated single-tenant data
// to real multi-tenant SQL-backed computation via Repository + CacheLayer.
package analytics

import (
	"context"
	"time"

	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

// Repository is the read-side query surface the AnalyticsEngine depends
// on (§4.3 "EventStore/AnalyticsRepository"). It is defined here, at the
// consumer, and implemented by internal/storage/postgres.Repository.
type Repository interface {
	StepCompletions(ctx context.Context, tenantID, workspaceID, funnelID int64, stepOrder int, start, end time.Time) (int64, error)
	SegmentConversions(ctx context.Context, tenantID, workspaceID, funnelID int64, dimension string, totalSteps int, start, end time.Time) ([]postgres.SegmentConversion, error)
	ConversionTimeSeries(ctx context.Context, tenantID, workspaceID, funnelID int64, granularity string, totalSteps int, start, end time.Time) ([]postgres.TimeSeriesPoint, error)
	AvgStepCompletionTime(ctx context.Context, tenantID, workspaceID, funnelID int64, stepOrder int, start, end time.Time) (float64, error)
	AvgTimeToConvert(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error)
	ConversionVelocity(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error)
	AvgConversionRate(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error)
	PeerFunnelMetrics(ctx context.Context, tenantID, workspaceID, excludeFunnelID int64) ([]postgres.PeerFunnelMetric, error)

	StepDropoffRates(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]postgres.StepDropoff, error)
	ExitPaths(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]postgres.ExitPath, error)

	CohortsByPeriod(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]postgres.Cohort, error)
	CohortProgression(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, totalSteps int, start, end time.Time) ([]postgres.CohortProgressionRow, error)
	RetentionCurve(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]postgres.RetentionPoint, error)

	TimingDistribution(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (postgres.TimingDistribution, error)
	StepTimingAnalysis(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]postgres.StepTiming, error)
	VelocityTrends(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]postgres.VelocityTrend, error)
	SegmentTimingComparison(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) ([]postgres.SegmentTiming, error)

	LiveMetrics(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int) (postgres.LiveMetrics, error)
	StuckSteps(ctx context.Context, tenantID, workspaceID, funnelID int64, idleMinutes int, minStuck int64) ([]postgres.StuckStep, error)

	UserJourneys(ctx context.Context, tenantID, workspaceID, funnelID int64, maxPathLength, limit int, start, end time.Time) ([]postgres.UserJourney, error)
	TouchpointJourneys(ctx context.Context, tenantID, workspaceID, funnelID int64, maxTouchpoints, limit int, lookback time.Duration, end time.Time) ([]postgres.TouchpointRecord, error)
}
