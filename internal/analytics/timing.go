package analytics

import (
	"context"
	"time"

	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

type TimingRequest struct {
	TenantID, WorkspaceID, FunnelID int64
	Start, End                      time.Time
	Period                          string
}

type TimingAnalysis struct {
	Envelope
	FunnelID       int64                      `json:"funnel_id"`
	Distribution   postgres.TimingDistribution `json:"distribution"`
	StepTimings    []postgres.StepTiming       `json:"step_timings"`
	VelocityTrends []postgres.VelocityTrend    `json:"velocity_trends"`
	Segments       []postgres.SegmentTiming    `json:"segments"`
	Bottlenecks    []int                       `json:"bottleneck_steps"`
	Insights       []string                    `json:"insights"`
}

func (e *Engine) AnalyzeTiming(ctx context.Context, req TimingRequest) (*TimingAnalysis, error) {
	start := time.Now()
	period := req.Period
	if period == "" {
		period = "daily"
	}
	key := cache.KeyFor("funnel:timing", map[string]any{
		"funnelId": req.FunnelID, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
		"start": req.Start.Unix(), "end": req.End.Unix(), "period": period,
	})
	if cached, err := cache.Get[TimingAnalysis](ctx, e.cacheLyr, key); err == nil {
		cached.CacheHit = true
		return &cached, nil
	}

	if err := validateWindow(req.Start, req.End, capShort); err != nil {
		return nil, err
	}
	_, version, err := e.resolveFunnel(ctx, req.TenantID, req.WorkspaceID, req.FunnelID)
	if err != nil {
		return nil, err
	}
	totalSteps := len(version.Steps)

	dist, err := e.funnels.TimingDistribution(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	stepTimings, err := e.funnels.StepTimingAnalysis(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, totalSteps, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	trends, err := e.funnels.VelocityTrends(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, period, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	segments, err := e.funnels.SegmentTimingComparison(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	result := &TimingAnalysis{
		FunnelID:       req.FunnelID,
		Distribution:   dist,
		StepTimings:    stepTimings,
		VelocityTrends: trends,
		Segments:       segments,
	}

	for _, st := range stepTimings {
		if st.AbandonmentRate > 40 {
			result.Bottlenecks = append(result.Bottlenecks, st.StepOrder)
		}
	}
	result.Insights = timingInsights(dist, trends)

	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassDailyMetrics).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassDailyMetrics, key, result)
	return result, nil
}

func timingInsights(dist postgres.TimingDistribution, trends []postgres.VelocityTrend) []string {
	var out []string
	if dist.P90 > 0 && dist.Mean > 0 && dist.P90 > dist.Mean*2 {
		out = append(out, "a long tail of slow conversions is pulling the average up")
	}
	if len(trends) >= 2 {
		first, last := trends[0].AvgSeconds, trends[len(trends)-1].AvgSeconds
		if last > first*1.2 {
			out = append(out, "conversion time is trending slower over the selected window")
		} else if last < first*0.8 {
			out = append(out, "conversion time is trending faster over the selected window")
		}
	}
	return out
}
