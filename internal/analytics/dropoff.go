package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/victoralfred/funnelengine/internal/cache"
)

type DropOffRequest struct {
	TenantID, WorkspaceID, FunnelID int64
	Start, End                      time.Time
	IncludeExitPaths                bool
}

type DropOffStep struct {
	StepOrder                int     `json:"step_order"`
	Entries                   int64   `json:"entries"`
	Exits                     int64   `json:"exits"`
	DropOffRate               float64 `json:"drop_off_rate"`
	AvgTimeBeforeExitSeconds float64 `json:"avg_time_before_exit_seconds"`
	ExitVelocity              string  `json:"exit_velocity"`
	Severity                  string  `json:"severity"`
	ImmediateBounces          int64   `json:"immediate_bounces,omitempty"`
	DelayedExits              int64   `json:"delayed_exits,omitempty"`
	Recommendation            string  `json:"recommendation,omitempty"`
}

type DropOffAnalysis struct {
	Envelope
	FunnelID             int64         `json:"funnel_id"`
	Steps                []DropOffStep `json:"steps"`
	CriticalBottlenecks  []DropOffStep `json:"critical_bottlenecks"`
	BiggestBottleneckStep int          `json:"biggest_bottleneck_step"`
	OptimizationPotential float64      `json:"optimization_potential"`
}

func (e *Engine) AnalyzeDropOff(ctx context.Context, req DropOffRequest) (*DropOffAnalysis, error) {
	start := time.Now()
	key := cache.KeyFor("funnel:conversion:dropoff", map[string]any{
		"funnelId": req.FunnelID, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
		"start": req.Start.Unix(), "end": req.End.Unix(), "paths": req.IncludeExitPaths,
	})
	if cached, err := cache.Get[DropOffAnalysis](ctx, e.cacheLyr, key); err == nil {
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

	rows, err := e.funnels.StepDropoffRates(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, totalSteps, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	var exitPaths []DropOffStep
	if req.IncludeExitPaths {
		paths, err := e.funnels.ExitPaths(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, totalSteps, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		byOrder := make(map[int]DropOffStep, len(paths))
		for _, p := range paths {
			byOrder[p.StepOrder] = DropOffStep{ImmediateBounces: p.ImmediateBounces, DelayedExits: p.DelayedExits}
		}
		exitPaths = make([]DropOffStep, totalSteps)
		for i := range exitPaths {
			exitPaths[i] = byOrder[i]
		}
	}

	result := &DropOffAnalysis{FunnelID: req.FunnelID}
	for _, r := range rows {
		ds := DropOffStep{
			StepOrder:                r.StepOrder,
			Entries:                  r.Entries,
			Exits:                    r.Exits,
			AvgTimeBeforeExitSeconds: r.AvgTimeBeforeExitSeconds,
			ExitVelocity:             r.ExitVelocity,
		}
		if r.Entries > 0 {
			ds.DropOffRate = float64(r.Exits) / float64(r.Entries) * 100
		}
		ds.Severity = severityBucket(ds.DropOffRate)
		if req.IncludeExitPaths && r.StepOrder < len(exitPaths) {
			ds.ImmediateBounces = exitPaths[r.StepOrder].ImmediateBounces
			ds.DelayedExits = exitPaths[r.StepOrder].DelayedExits
		}
		ds.Recommendation = dropOffRecommendation(ds)
		result.Steps = append(result.Steps, ds)
	}

	sorted := append([]DropOffStep(nil), result.Steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DropOffRate > sorted[j].DropOffRate })
	for _, s := range sorted {
		if s.Severity == "critical" || s.Severity == "high" {
			result.CriticalBottlenecks = append(result.CriticalBottlenecks, s)
		}
	}
	if len(sorted) > 0 {
		result.BiggestBottleneckStep = sorted[0].StepOrder
		result.OptimizationPotential = sorted[0].DropOffRate
	}

	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassConversionMetrics).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassConversionMetrics, key, result)
	return result, nil
}

func dropOffRecommendation(s DropOffStep) string {
	switch {
	case s.ExitVelocity == "immediate":
		return "users leave within seconds; review step relevance and load time"
	case s.ExitVelocity == "quick":
		return "users leave quickly; review clarity of the call to action"
	case s.ExitVelocity == "delayed":
		return "users hesitate before leaving; consider simplifying the step"
	case s.Severity == "critical" || s.Severity == "high":
		return "high drop-off; investigate step friction"
	default:
		return ""
	}
}
