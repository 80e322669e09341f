package analytics

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/stats"
)

type CompareRequest struct {
	TenantID, WorkspaceID int64
	FunnelIDs             []int64
	Start, End            time.Time
	ABTest                *ABTestConfig
}

// ABTestConfig marks two of the compared funnels as variants of a single
// experiment, enabling a winner declaration on top of the pairwise matrix.
type ABTestConfig struct {
	ControlFunnelID  int64
	VariantFunnelID  int64
	MinimumDetectableEffect float64
}

type FunnelSummary struct {
	FunnelID    int64   `json:"funnel_id"`
	Entries     int64   `json:"entries"`
	Conversions int64   `json:"conversions"`
	Rate        float64 `json:"rate"`
	Rank        int     `json:"rank"`
}

type PairwiseResult struct {
	FunnelA          int64             `json:"funnel_a,omitempty"`
	FunnelB          int64             `json:"funnel_b,omitempty"`
	Test             stats.ZTestResult `json:"test"`
	EffectSize       float64           `json:"effect_size_cohens_h"`
	AdjustedPValue   float64           `json:"adjusted_p_value"`
}

type ABTestOutcome struct {
	WinnerFunnelID int64   `json:"winner_funnel_id"`
	IsConclusive   bool    `json:"is_conclusive"`
	UpliftPercent  float64 `json:"uplift_percent"`
}

type ComparisonAnalysis struct {
	Envelope
	Funnels       []FunnelSummary  `json:"funnels"`
	Pairwise      []PairwiseResult `json:"pairwise"`
	ChiSquare     float64          `json:"chi_square"`
	ChiSquareDF   int              `json:"chi_square_df"`
	ChiSquarePVal float64          `json:"chi_square_p_value"`
	ABTest        *ABTestOutcome   `json:"ab_test,omitempty"`
	Insights      []string         `json:"insights"`
}

func (e *Engine) CompareFunnels(ctx context.Context, req CompareRequest) (*ComparisonAnalysis, error) {
	start := time.Now()
	if err := validateWindow(req.Start, req.End, capShort); err != nil {
		return nil, err
	}
	if len(req.FunnelIDs) < 2 {
		return nil, apperr.InvalidSchema("comparison requires at least two funnel_ids", nil)
	}

	key := cache.KeyFor("funnel:conversion:compare", map[string]any{
		"funnelIds": req.FunnelIDs, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
		"start": req.Start.Unix(), "end": req.End.Unix(),
	})
	if cached, err := cache.Get[ComparisonAnalysis](ctx, e.cacheLyr, key); err == nil {
		cached.CacheHit = true
		return &cached, nil
	}

	result := &ComparisonAnalysis{}
	for _, id := range req.FunnelIDs {
		_, version, err := e.resolveFunnel(ctx, req.TenantID, req.WorkspaceID, id)
		if err != nil {
			return nil, err
		}
		totalSteps := len(version.Steps)
		entries, err := e.funnels.StepCompletions(ctx, req.TenantID, req.WorkspaceID, id, 0, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		conversions := int64(0)
		if totalSteps > 0 {
			conversions, err = e.funnels.StepCompletions(ctx, req.TenantID, req.WorkspaceID, id, totalSteps-1, req.Start, req.End)
			if err != nil {
				return nil, err
			}
		}
		rate := 0.0
		if entries > 0 {
			rate = float64(conversions) / float64(entries) * 100
		}
		result.Funnels = append(result.Funnels, FunnelSummary{FunnelID: id, Entries: entries, Conversions: conversions, Rate: rate})
	}

	sort.Slice(result.Funnels, func(i, j int) bool { return result.Funnels[i].Rate > result.Funnels[j].Rate })
	for i := range result.Funnels {
		result.Funnels[i].Rank = i + 1
	}

	var pValues []float64
	for i := 0; i < len(result.Funnels); i++ {
		for j := i + 1; j < len(result.Funnels); j++ {
			a, b := result.Funnels[i], result.Funnels[j]
			test := stats.TwoProportionZTest(float64(a.Conversions), float64(a.Entries), float64(b.Conversions), float64(b.Entries))
			pValues = append(pValues, test.PValue)
			result.Pairwise = append(result.Pairwise, PairwiseResult{
				FunnelA: a.FunnelID, FunnelB: b.FunnelID,
				Test:       test,
				EffectSize: stats.CohensH(a.Rate/100, b.Rate/100),
			})
		}
	}
	adjusted := stats.BenjaminiHochberg(pValues)
	for i := range result.Pairwise {
		result.Pairwise[i].AdjustedPValue = adjusted[i]
	}

	observed := make([]float64, 0, len(result.Funnels)*2)
	expected := make([]float64, 0, len(result.Funnels)*2)
	var totalEntries, totalConversions int64
	for _, f := range result.Funnels {
		totalEntries += f.Entries
		totalConversions += f.Conversions
	}
	overallRate := 0.0
	if totalEntries > 0 {
		overallRate = float64(totalConversions) / float64(totalEntries)
	}
	for _, f := range result.Funnels {
		observed = append(observed, float64(f.Conversions), float64(f.Entries-f.Conversions))
		expected = append(expected, float64(f.Entries)*overallRate, float64(f.Entries)*(1-overallRate))
	}
	chi, df, pval := stats.ChiSquare(observed, expected)
	result.ChiSquare, result.ChiSquareDF, result.ChiSquarePVal = chi, df, pval

	if req.ABTest != nil {
		result.ABTest = declareABTestWinner(result.Funnels, *req.ABTest)
	}
	result.Insights = comparisonInsights(result)

	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassConversionMetrics).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassConversionMetrics, key, result)
	return result, nil
}

func declareABTestWinner(funnels []FunnelSummary, cfg ABTestConfig) *ABTestOutcome {
	var control, variant *FunnelSummary
	for i := range funnels {
		switch funnels[i].FunnelID {
		case cfg.ControlFunnelID:
			control = &funnels[i]
		case cfg.VariantFunnelID:
			variant = &funnels[i]
		}
	}
	if control == nil || variant == nil {
		return nil
	}
	test := stats.TwoProportionZTest(float64(variant.Conversions), float64(variant.Entries), float64(control.Conversions), float64(control.Entries))
	outcome := &ABTestOutcome{IsConclusive: test.IsSignificant}
	if control.Rate > 0 {
		outcome.UpliftPercent = (variant.Rate - control.Rate) / control.Rate * 100
	}
	if variant.Rate >= control.Rate {
		outcome.WinnerFunnelID = cfg.VariantFunnelID
	} else {
		outcome.WinnerFunnelID = cfg.ControlFunnelID
	}
	return outcome
}

func comparisonInsights(result *ComparisonAnalysis) []string {
	var out []string
	if len(result.Funnels) > 0 {
		best := result.Funnels[0]
		out = append(out, "best performing funnel in this comparison is funnel "+strconv.FormatInt(best.FunnelID, 10))
	}
	if result.ChiSquarePVal < 0.05 {
		out = append(out, "conversion rates differ significantly across the compared funnels")
	}
	return out
}
