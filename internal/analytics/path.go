package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

const (
	defaultMaxPathLength = 25
	defaultJourneyLimit  = 2000
)

type PathRequest struct {
	TenantID, WorkspaceID, FunnelID int64
	Start, End                      time.Time
	MaxPathLength                   int
	Limit                           int
}

type PathGroup struct {
	Signature      string   `json:"signature"`
	Steps          []string `json:"steps"`
	UserCount      int64    `json:"user_count"`
	ConvertedCount int64    `json:"converted_count"`
	ConversionRate float64  `json:"conversion_rate"`
	AvgEvents      float64  `json:"avg_events"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

type BranchPoint struct {
	StepIndex   int            `json:"step_index"`
	EventName   string         `json:"event_name"`
	NextOptions map[string]int64 `json:"next_options"`
}

type PathAnalysis struct {
	Envelope
	FunnelID        int64         `json:"funnel_id"`
	PrimaryPath     *PathGroup    `json:"primary_path"`
	AlternativePaths []PathGroup  `json:"alternative_paths"`
	Branches        []BranchPoint `json:"branches"`
	SuccessIndicators []string    `json:"success_indicators"`
}

func (e *Engine) AnalyzePaths(ctx context.Context, req PathRequest) (*PathAnalysis, error) {
	start := time.Now()
	maxLen := req.MaxPathLength
	if maxLen <= 0 {
		maxLen = defaultMaxPathLength
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultJourneyLimit
	}
	key := cache.KeyFor("funnel:path", map[string]any{
		"funnelId": req.FunnelID, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
		"start": req.Start.Unix(), "end": req.End.Unix(),
	})
	if cached, err := cache.Get[PathAnalysis](ctx, e.cacheLyr, key); err == nil {
		cached.CacheHit = true
		return &cached, nil
	}

	if err := validateWindow(req.Start, req.End, capShort); err != nil {
		return nil, err
	}
	if _, _, err := e.resolveFunnel(ctx, req.TenantID, req.WorkspaceID, req.FunnelID); err != nil {
		return nil, err
	}

	journeys, err := e.funnels.UserJourneys(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, maxLen, limit, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	groups := groupByPathSignature(journeys)
	result := &PathAnalysis{FunnelID: req.FunnelID}
	for _, g := range groups {
		result.AlternativePaths = append(result.AlternativePaths, g)
	}
	sort.Slice(result.AlternativePaths, func(i, j int) bool {
		return result.AlternativePaths[i].UserCount > result.AlternativePaths[j].UserCount
	})
	if len(result.AlternativePaths) > 0 {
		result.PrimaryPath = &result.AlternativePaths[0]
		if len(result.AlternativePaths) > 1 {
			result.AlternativePaths = result.AlternativePaths[1:]
		} else {
			result.AlternativePaths = nil
		}
	}

	result.Branches = detectBranches(journeys)
	result.SuccessIndicators = successIndicators(result.PrimaryPath)

	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassPathAnalysis).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassPathAnalysis, key, result)
	return result, nil
}

func groupByPathSignature(journeys []postgres.UserJourney) map[string]PathGroup {
	groups := make(map[string]PathGroup)
	for _, j := range journeys {
		steps := make([]string, len(j.Events))
		for i, ev := range j.Events {
			steps[i] = ev.EventName
		}
		sig := strings.Join(steps, ">")
		g, ok := groups[sig]
		if !ok {
			g = PathGroup{Signature: sig, Steps: steps}
		}
		g.UserCount++
		if j.Converted {
			g.ConvertedCount++
		}
		g.AvgEvents = (g.AvgEvents*float64(g.UserCount-1) + float64(len(j.Events))) / float64(g.UserCount)
		groups[sig] = g
	}
	for sig, g := range groups {
		if g.UserCount > 0 {
			g.ConversionRate = float64(g.ConvertedCount) / float64(g.UserCount) * 100
		}
		if g.AvgEvents > 0 {
			g.EfficiencyScore = g.ConversionRate / g.AvgEvents
		}
		groups[sig] = g
	}
	return groups
}

func detectBranches(journeys []postgres.UserJourney) []BranchPoint {
	byIndex := make(map[int]map[string]map[string]int64)
	for _, j := range journeys {
		for i := 0; i < len(j.Events)-1; i++ {
			if byIndex[i] == nil {
				byIndex[i] = make(map[string]map[string]int64)
			}
			cur := j.Events[i].EventName
			next := j.Events[i+1].EventName
			if byIndex[i][cur] == nil {
				byIndex[i][cur] = make(map[string]int64)
			}
			byIndex[i][cur][next]++
		}
	}

	var out []BranchPoint
	for idx, byEvent := range byIndex {
		for ev, options := range byEvent {
			if len(options) > 1 {
				out = append(out, BranchPoint{StepIndex: idx, EventName: ev, NextOptions: options})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out
}

func successIndicators(primary *PathGroup) []string {
	if primary == nil {
		return nil
	}
	var out []string
	if primary.ConversionRate > 50 {
		out = append(out, fmt.Sprintf("the dominant path converts at %.1f%%, well above typical funnel norms", primary.ConversionRate))
	}
	if primary.AvgEvents > 0 && primary.AvgEvents < 5 {
		out = append(out, "the dominant path is short, suggesting a frictionless route to conversion")
	}
	return out
}
