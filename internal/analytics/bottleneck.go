package analytics

import (
	"context"
	"time"

	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/stats"
)

type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// thresholds returns the minimum drop-off-rate and stuck-user count that
// qualify a step as a bottleneck at the given sensitivity.
func (s Sensitivity) thresholds() (dropOffPct float64, stuckUsers int64) {
	switch s {
	case SensitivityHigh:
		return 30, 5
	case SensitivityLow:
		return 65, 50
	default:
		return 45, 20
	}
}

type BottleneckRequest struct {
	TenantID, WorkspaceID, FunnelID int64
	Start, End                      time.Time
	Sensitivity                     Sensitivity
	IdleMinutes                     int
}

type Bottleneck struct {
	StepOrder      int     `json:"step_order"`
	DropOffRate    float64 `json:"drop_off_rate"`
	StuckUsers     int64   `json:"stuck_users"`
	Signal         string  `json:"signal"` // conversion_drop, time_stuck, both
	Severity       string  `json:"severity"`
	Recommendation string  `json:"recommendation"`
}

type Anomaly struct {
	Bucket  time.Time `json:"bucket"`
	Rate    float64   `json:"rate"`
	ZScore  float64   `json:"z_score"`
	Kind    string    `json:"kind"` // spike, dip
}

type BottleneckAnalysis struct {
	Envelope
	FunnelID     int64        `json:"funnel_id"`
	Bottlenecks  []Bottleneck `json:"bottlenecks"`
	Anomalies    []Anomaly    `json:"anomalies"`
	TrendSlope   float64      `json:"trend_slope"`
	TrendLabel   string       `json:"trend_label"`
}

func (e *Engine) DetectBottlenecks(ctx context.Context, req BottleneckRequest) (*BottleneckAnalysis, error) {
	start := time.Now()
	sensitivity := req.Sensitivity
	if sensitivity == "" {
		sensitivity = SensitivityMedium
	}
	idleMinutes := req.IdleMinutes
	if idleMinutes <= 0 {
		idleMinutes = 30
	}
	key := cache.KeyFor("funnel:conversion:bottleneck", map[string]any{
		"funnelId": req.FunnelID, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
		"start": req.Start.Unix(), "end": req.End.Unix(), "sensitivity": sensitivity,
	})
	if cached, err := cache.Get[BottleneckAnalysis](ctx, e.cacheLyr, key); err == nil {
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

	dropOffThreshold, stuckThreshold := sensitivity.thresholds()

	drops, err := e.funnels.StepDropoffRates(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, totalSteps, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	stuck, err := e.funnels.StuckSteps(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, idleMinutes, stuckThreshold)
	if err != nil {
		return nil, err
	}
	stuckByStep := make(map[int]int64, len(stuck))
	for _, s := range stuck {
		stuckByStep[s.StepOrder] = s.StuckUsers
	}

	result := &BottleneckAnalysis{FunnelID: req.FunnelID}
	for _, d := range drops {
		rate := float64(0)
		if d.Entries > 0 {
			rate = float64(d.Exits) / float64(d.Entries) * 100
		}
		stuckCount := stuckByStep[d.StepOrder]
		isDropSignal := rate >= dropOffThreshold
		isStuckSignal := stuckCount >= stuckThreshold
		if !isDropSignal && !isStuckSignal {
			continue
		}
		signal := "conversion_drop"
		switch {
		case isDropSignal && isStuckSignal:
			signal = "both"
		case isStuckSignal:
			signal = "time_stuck"
		}
		b := Bottleneck{
			StepOrder:   d.StepOrder,
			DropOffRate: rate,
			StuckUsers:  stuckCount,
			Signal:      signal,
			Severity:    severityBucket(rate),
		}
		b.Recommendation = bottleneckRecommendation(b)
		result.Bottlenecks = append(result.Bottlenecks, b)
	}

	series, err := e.computeTimeSeries(ctx, ConversionRequest{
		TenantID: req.TenantID, WorkspaceID: req.WorkspaceID, FunnelID: req.FunnelID,
		Start: req.Start, End: req.End,
	}, totalSteps)
	if err != nil {
		return nil, err
	}
	result.Anomalies = detectAnomalies(series)

	rates := make([]float64, len(series))
	for i, p := range series {
		rates[i] = p.Rate
	}
	result.TrendSlope = stats.LinearRegressionSlope(rates)
	result.TrendLabel = trendLabel(result.TrendSlope)

	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassConversionMetrics).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassConversionMetrics, key, result)
	return result, nil
}

func bottleneckRecommendation(b Bottleneck) string {
	switch b.Signal {
	case "both":
		return "high abandonment and users stalling here; prioritize this step"
	case "time_stuck":
		return "users are stalling without leaving; simplify or add guidance"
	default:
		return "high abandonment at this step; review step content"
	}
}

func trendLabel(slope float64) string {
	switch {
	case slope > 0.5:
		return "improving"
	case slope < -0.5:
		return "worsening"
	default:
		return "stable"
	}
}

// detectAnomalies flags points more than 3 standard deviations from the
// series mean (SPC ±3σ). Each point is scored independently and every
// flagged point is returned as its own Anomaly; consecutive flagged points
// are not merged into one.
func detectAnomalies(series []TimeSeriesEntry) []Anomaly {
	if len(series) < 3 {
		return nil
	}
	rates := make([]float64, len(series))
	for i, p := range series {
		rates[i] = p.Rate
	}
	m := 0.0
	for _, r := range rates {
		m += r
	}
	m /= float64(len(rates))
	sd := stats.StdDev(rates)
	if sd == 0 {
		return nil
	}

	var anomalies []Anomaly
	for i, r := range rates {
		z := (r - m) / sd
		if z > 3 || z < -3 {
			kind := "spike"
			if z < 0 {
				kind = "dip"
			}
			anomalies = append(anomalies, Anomaly{Bucket: series[i].Bucket, Rate: r, ZScore: z, Kind: kind})
		}
	}
	return anomalies
}
