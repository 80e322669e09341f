package analytics

import (
	"context"
	"time"

	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

// LiveRequest asks for the §4.3 "live metrics" snapshot: active sessions,
// entries/conversions in the last hour, current rate, step distribution of
// active users, per-minute trend, and the current-vs-yesterday anomaly
// signal (§4.5's Bottleneck detection shares the same SPC math but this is
// the cheaper always-fresh view used for a live dashboard tile).
type LiveRequest struct {
	TenantID, WorkspaceID, FunnelID int64
}

type LiveAnomaly struct {
	RateChangePct float64 `json:"rate_change_pct"`
	Direction     string  `json:"direction"` // up, down, stable
}

type LiveMetricsAnalysis struct {
	Envelope
	FunnelID            int64           `json:"funnel_id"`
	ActiveSessions      int64           `json:"active_sessions"`
	EntriesLastHour     int64           `json:"entries_last_hour"`
	ConversionsLastHour int64           `json:"conversions_last_hour"`
	CurrentRate         float64         `json:"current_rate"`
	StepDistribution    map[int]int64   `json:"step_distribution"`
	PerMinuteTrend      []TimeSeriesEntry `json:"per_minute_trend"`
	RateAnomaly         LiveAnomaly     `json:"rate_anomaly"`
	StuckSteps          []postgres.StuckStep `json:"stuck_steps"`
}

// LiveMetrics implements §4.3's live-metrics + anomaly query and the
// envelope of §4.5, using the `liveMetrics` cache class (30s max TTL, the
// tightest of the fixed classes since this view is meant to feel real
// time).
func (e *Engine) LiveMetrics(ctx context.Context, req LiveRequest) (*LiveMetricsAnalysis, error) {
	start := time.Now()
	key := cache.KeyFor("funnel:live", map[string]any{
		"funnelId": req.FunnelID, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
	})
	if cached, err := cache.Get[LiveMetricsAnalysis](ctx, e.cacheLyr, key); err == nil {
		cached.CacheHit = true
		return &cached, nil
	}

	f, version, err := e.resolveFunnel(ctx, req.TenantID, req.WorkspaceID, req.FunnelID)
	if err != nil {
		return nil, err
	}
	_ = f
	totalSteps := len(version.Steps)

	m, err := e.funnels.LiveMetrics(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, totalSteps)
	if err != nil {
		return nil, err
	}
	stuck, err := e.funnels.StuckSteps(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, 10, 5)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	yesterdayEnd := now.Add(-24 * time.Hour)
	yesterdayStart := yesterdayEnd.Add(-time.Hour)
	yesterdayRate, err := e.funnels.AvgConversionRate(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, yesterdayStart, yesterdayEnd)
	if err != nil {
		return nil, err
	}

	anomaly := LiveAnomaly{Direction: "stable"}
	if yesterdayRate > 0 {
		anomaly.RateChangePct = (m.CurrentRate - yesterdayRate) / yesterdayRate * 100
		switch {
		case anomaly.RateChangePct > 10:
			anomaly.Direction = "up"
		case anomaly.RateChangePct < -10:
			anomaly.Direction = "down"
		}
	}

	trend := make([]TimeSeriesEntry, len(m.PerMinuteTrend))
	for i, p := range m.PerMinuteTrend {
		rate := float64(0)
		if p.Entries > 0 {
			rate = float64(p.Conversions) / float64(p.Entries) * 100
		}
		trend[i] = TimeSeriesEntry{Bucket: p.Bucket, Entries: p.Entries, Conversions: p.Conversions, Rate: rate}
	}

	result := &LiveMetricsAnalysis{
		FunnelID:            req.FunnelID,
		ActiveSessions:      m.ActiveSessions,
		EntriesLastHour:     m.EntriesLastHour,
		ConversionsLastHour: m.ConversionsLastHour,
		CurrentRate:         m.CurrentRate,
		StepDistribution:    m.StepDistribution,
		PerMinuteTrend:      trend,
		RateAnomaly:         anomaly,
		StuckSteps:          stuck,
	}
	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassLiveMetrics).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassLiveMetrics, key, result)
	return result, nil
}
