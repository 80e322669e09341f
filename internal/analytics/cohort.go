package analytics

import (
	"context"
	"time"

	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/stats"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

type CohortRequest struct {
	TenantID, WorkspaceID, FunnelID int64
	Start, End                      time.Time
	Period                          string // daily, weekly, monthly
	IncludeProgression              bool
}

type CohortSummary struct {
	postgres.Cohort
	ConversionRate float64 `json:"conversion_rate"`
}

type CohortComparison struct {
	PearsonR               float64 `json:"pearson_r"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	TrendSlope             float64 `json:"trend_slope"`
	Insight                string  `json:"insight"`
}

type CohortAnalysis struct {
	Envelope
	FunnelID     int64                              `json:"funnel_id"`
	Cohorts      []CohortSummary                     `json:"cohorts"`
	Progression  []postgres.CohortProgressionRow     `json:"progression,omitempty"`
	Retention    []postgres.RetentionPoint           `json:"retention"`
	Comparison   CohortComparison                    `json:"comparison"`
}

func (e *Engine) AnalyzeCohorts(ctx context.Context, req CohortRequest) (*CohortAnalysis, error) {
	start := time.Now()
	period := req.Period
	if period == "" {
		period = "weekly"
	}
	key := cache.KeyFor("funnel:cohort", map[string]any{
		"funnelId": req.FunnelID, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
		"start": req.Start.Unix(), "end": req.End.Unix(), "period": period, "progression": req.IncludeProgression,
	})
	if cached, err := cache.Get[CohortAnalysis](ctx, e.cacheLyr, key); err == nil {
		cached.CacheHit = true
		return &cached, nil
	}

	if err := validateWindow(req.Start, req.End, capLong); err != nil {
		return nil, err
	}
	_, version, err := e.resolveFunnel(ctx, req.TenantID, req.WorkspaceID, req.FunnelID)
	if err != nil {
		return nil, err
	}
	totalSteps := len(version.Steps)

	cohorts, err := e.funnels.CohortsByPeriod(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, period, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	retention, err := e.funnels.RetentionCurve(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, period, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	result := &CohortAnalysis{FunnelID: req.FunnelID, Retention: retention}

	var rates []float64
	for i, c := range cohorts {
		cs := CohortSummary{Cohort: c}
		if i < len(retention) && c.Size > 0 {
			cs.ConversionRate = float64(retention[i].Retained) / float64(c.Size) * 100
		}
		result.Cohorts = append(result.Cohorts, cs)
		rates = append(rates, cs.ConversionRate)
	}

	if req.IncludeProgression {
		progression, err := e.funnels.CohortProgression(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, period, totalSteps, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		result.Progression = progression
	}

	idx := make([]float64, len(rates))
	for i := range idx {
		idx[i] = float64(i)
	}
	result.Comparison = CohortComparison{
		PearsonR:               stats.PearsonR(idx, rates),
		CoefficientOfVariation: stats.CoefficientOfVariation(rates),
		TrendSlope:             stats.LinearRegressionSlope(rates),
	}
	result.Comparison.Insight = cohortInsight(result.Comparison)

	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassCohortAnalysis).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassCohortAnalysis, key, result)
	return result, nil
}

func cohortInsight(c CohortComparison) string {
	switch {
	case c.TrendSlope > 0.5:
		return "cohort conversion rate is improving over time"
	case c.TrendSlope < -0.5:
		return "cohort conversion rate is declining over time"
	case c.CoefficientOfVariation > 0.5:
		return "cohort performance is highly variable"
	default:
		return "cohort performance is stable"
	}
}
