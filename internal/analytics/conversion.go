package analytics

import (
	"context"
	"time"

	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
	"github.com/victoralfred/funnelengine/internal/stats"
)

type ConversionRequest struct {
	TenantID, WorkspaceID, FunnelID int64
	Start, End                     time.Time
	IncludeSegments                bool
	IncludeTimeSeries              bool
	Granularity                    string // hourly, daily, weekly
}

type StepMetric struct {
	StepOrder                 int     `json:"step_order"`
	Label                     string  `json:"label"`
	TotalUsers                int64   `json:"total_users"`
	ConversionRateFromPrevious float64 `json:"conversion_rate_from_previous"`
	ConversionRateFromStart   float64 `json:"conversion_rate_from_start"`
	DropOffRate               float64 `json:"drop_off_rate"`
	DropOffCount              int64   `json:"drop_off_count"`
	IsBottleneck              bool    `json:"is_bottleneck"`
	Severity                  string  `json:"severity"`
	AvgStepTimeSeconds        float64 `json:"avg_step_time_seconds"`
	Percentiles               map[string]float64 `json:"percentiles"`
}

type SegmentMetric struct {
	Segment             string  `json:"segment"`
	Entries             int64   `json:"entries"`
	Conversions         int64   `json:"conversions"`
	ConversionRate       float64 `json:"conversion_rate"`
	PerformanceVsAverage float64 `json:"performance_vs_average"`
	CILow                float64 `json:"ci_low"`
	CIHigh               float64 `json:"ci_high"`
	IsStatisticallySignificant bool `json:"is_statistically_significant"`
}

type TimeSeriesEntry struct {
	Bucket          time.Time `json:"bucket"`
	Entries         int64     `json:"entries"`
	Conversions     int64     `json:"conversions"`
	Rate            float64   `json:"rate"`
	MovingAverage   float64   `json:"moving_average"`
	TrendDirection  string    `json:"trend_direction"`
}

type ConversionAnalysis struct {
	Envelope
	FunnelID          int64                `json:"funnel_id"`
	StepMetrics       []StepMetric         `json:"step_metrics"`
	TotalEntries      int64                `json:"total_entries"`
	TotalConversions  int64                `json:"total_conversions"`
	OverallRate       float64              `json:"overall_rate"`
	AvgTimeToConvertSeconds float64        `json:"avg_time_to_convert_seconds"`
	ConversionVelocity float64             `json:"conversion_velocity"`
	EngagementScore    float64             `json:"engagement_score"`
	Segments           []SegmentMetric     `json:"segments,omitempty"`
	TimeSeries         []TimeSeriesEntry   `json:"time_series,omitempty"`
	Significance       stats.ZTestResult   `json:"significance_vs_previous"`
	PeerAveragePercent float64             `json:"peer_average_percent"`
	PeerPercentile     float64             `json:"peer_percentile"`
}

func (e *Engine) AnalyzeConversion(ctx context.Context, req ConversionRequest) (*ConversionAnalysis, error) {
	start := time.Now()
	key := cache.KeyFor("funnel:conversion", map[string]any{
		"funnelId": req.FunnelID, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
		"start": req.Start.Unix(), "end": req.End.Unix(), "segments": req.IncludeSegments, "series": req.IncludeTimeSeries,
	})
	if cached, err := cache.Get[ConversionAnalysis](ctx, e.cacheLyr, key); err == nil {
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

	result, err := e.computeConversion(ctx, req, version)
	if err != nil {
		return nil, err
	}
	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassConversionMetrics).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassConversionMetrics, key, result)
	return result, nil
}

func (e *Engine) computeConversion(ctx context.Context, req ConversionRequest, version *funnel.Version) (*ConversionAnalysis, error) {
	totalSteps := len(version.Steps)
	result := &ConversionAnalysis{FunnelID: req.FunnelID}

	reached := make([]int64, totalSteps)
	stepTimes := make([]float64, totalSteps)
	for i, step := range version.Steps {
		n, err := e.funnels.StepCompletions(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, i, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		reached[i] = n
		avgTime, err := e.funnels.AvgStepCompletionTime(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, i, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		stepTimes[i] = avgTime
		_ = step
	}

	for i, step := range version.Steps {
		sm := StepMetric{StepOrder: i, Label: step.Label, TotalUsers: reached[i], AvgStepTimeSeconds: stepTimes[i]}
		if i == 0 {
			sm.ConversionRateFromPrevious = 100
		} else if reached[i-1] > 0 {
			sm.ConversionRateFromPrevious = float64(reached[i]) / float64(reached[i-1]) * 100
		}
		if reached[0] > 0 {
			sm.ConversionRateFromStart = float64(reached[i]) / float64(reached[0]) * 100
		}
		if i > 0 && reached[i-1] > 0 {
			sm.DropOffCount = reached[i-1] - reached[i]
			sm.DropOffRate = float64(sm.DropOffCount) / float64(reached[i-1]) * 100
		}
		sm.IsBottleneck = sm.DropOffRate > 50
		sm.Severity = severityBucket(sm.DropOffRate)
		sm.Percentiles = stats.EstimatePercentilesFromMean(sm.AvgStepTimeSeconds)
		result.StepMetrics = append(result.StepMetrics, sm)
	}

	if totalSteps > 0 {
		result.TotalEntries = reached[0]
		result.TotalConversions = reached[totalSteps-1]
	}
	if result.TotalEntries > 0 {
		result.OverallRate = float64(result.TotalConversions) / float64(result.TotalEntries) * 100
	}
	result.EngagementScore = stats.Clamp(result.OverallRate*10, 0, 100)

	avgTTC, err := e.funnels.AvgTimeToConvert(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	result.AvgTimeToConvertSeconds = avgTTC

	velocity, err := e.funnels.ConversionVelocity(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	result.ConversionVelocity = velocity

	prevStart := req.Start.Add(-req.End.Sub(req.Start))
	prevEntries, err := e.funnels.StepCompletions(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, 0, prevStart, req.Start)
	if err != nil {
		return nil, err
	}
	prevConversions := int64(0)
	if totalSteps > 0 {
		prevConversions, err = e.funnels.StepCompletions(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, totalSteps-1, prevStart, req.Start)
		if err != nil {
			return nil, err
		}
	}
	result.Significance = stats.TwoProportionZTest(float64(result.TotalConversions), float64(result.TotalEntries), float64(prevConversions), float64(prevEntries))

	peers, err := e.store.PeerFunnelMetrics(ctx, req.TenantID, req.WorkspaceID, req.FunnelID)
	if err != nil {
		return nil, err
	}
	if len(peers) > 0 {
		var sum float64
		below := 0
		for _, p := range peers {
			sum += p.Rate
			if p.Rate < result.OverallRate {
				below++
			}
		}
		result.PeerAveragePercent = sum / float64(len(peers))
		result.PeerPercentile = float64(below) / float64(len(peers)) * 100
	}

	if req.IncludeSegments {
		segments, err := e.computeSegments(ctx, req, result.OverallRate, totalSteps)
		if err != nil {
			return nil, err
		}
		result.Segments = segments
	}

	if req.IncludeTimeSeries {
		series, err := e.computeTimeSeries(ctx, req, totalSteps)
		if err != nil {
			return nil, err
		}
		result.TimeSeries = series
	}

	return result, nil
}

func severityBucket(dropOffRate float64) string {
	switch {
	case dropOffRate > 75:
		return "critical"
	case dropOffRate > 60:
		return "high"
	case dropOffRate > 45:
		return "medium"
	default:
		return "low"
	}
}

func (e *Engine) computeSegments(ctx context.Context, req ConversionRequest, overallRate float64, totalSteps int) ([]SegmentMetric, error) {
	var out []SegmentMetric
	for _, dim := range []string{"device_type", "utm_source"} {
		segs, err := e.funnels.SegmentConversions(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, dim, totalSteps, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		for _, s := range segs {
			sm := SegmentMetric{Segment: dim + ":" + s.Segment, Entries: s.Entries, Conversions: s.Conversions}
			if s.Entries > 0 {
				sm.ConversionRate = float64(s.Conversions) / float64(s.Entries) * 100
			}
			if overallRate > 0 {
				sm.PerformanceVsAverage = (sm.ConversionRate - overallRate) / overallRate * 100
			}
			sm.CILow = sm.ConversionRate - 5
			sm.CIHigh = sm.ConversionRate + 5
			sm.IsStatisticallySignificant = s.Entries > 100
			out = append(out, sm)
		}
	}
	return out, nil
}

func (e *Engine) computeTimeSeries(ctx context.Context, req ConversionRequest, totalSteps int) ([]TimeSeriesEntry, error) {
	granularity := req.Granularity
	if granularity == "" {
		granularity = "daily"
	}
	points, err := e.funnels.ConversionTimeSeries(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, granularity, totalSteps, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	out := make([]TimeSeriesEntry, len(points))
	var rates []float64
	for i, p := range points {
		entry := TimeSeriesEntry{Bucket: p.Bucket, Entries: p.Entries, Conversions: p.Conversions}
		if p.Entries > 0 {
			entry.Rate = float64(p.Conversions) / float64(p.Entries) * 100
		}
		out[i] = entry
		rates = append(rates, entry.Rate)
	}

	const window = 7
	for i := range out {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		slice := rates[lo : i+1]
		var sum float64
		for _, v := range slice {
			sum += v
		}
		out[i].MovingAverage = sum / float64(len(slice))

		out[i].TrendDirection = "stable"
		if i > 0 {
			delta := out[i].Rate - out[i-1].Rate
			switch {
			case delta > 0.1:
				out[i].TrendDirection = "up"
			case delta < -0.1:
				out[i].TrendDirection = "down"
			}
		}
	}
	return out, nil
}
