package analytics

import (
	"context"
	"math"
	"time"

	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

type AttributionModel string

const (
	ModelFirstTouch    AttributionModel = "first_touch"
	ModelLastTouch     AttributionModel = "last_touch"
	ModelLinear        AttributionModel = "linear"
	ModelTimeDecay     AttributionModel = "time_decay"
	ModelPositionBased AttributionModel = "position_based"
)

type AttributionRequest struct {
	TenantID, WorkspaceID, FunnelID int64
	Start, End                      time.Time
	Models                          []AttributionModel
	Lookback                        time.Duration
	MaxTouchpoints                  int
	Limit                           int
}

type ChannelCredit struct {
	Channel    string  `json:"channel"`
	Credit     float64 `json:"credit"`
	Conversions float64 `json:"conversions"`
}

type ModelResult struct {
	Model   AttributionModel `json:"model"`
	Credits []ChannelCredit  `json:"credits"`
}

type AttributionAnalysis struct {
	Envelope
	FunnelID          int64         `json:"funnel_id"`
	Results           []ModelResult `json:"results"`
	JourneyCount      int           `json:"journey_count"`
	AvgTouchpoints    float64       `json:"avg_touchpoints"`
	MultiTouchPercent float64       `json:"multi_touch_percent"`
}

const defaultAttributionLookback = 30 * 24 * time.Hour

func (e *Engine) AnalyzeAttribution(ctx context.Context, req AttributionRequest) (*AttributionAnalysis, error) {
	start := time.Now()
	lookback := req.Lookback
	if lookback <= 0 {
		lookback = defaultAttributionLookback
	}
	maxTouchpoints := req.MaxTouchpoints
	if maxTouchpoints <= 0 {
		maxTouchpoints = 20
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultJourneyLimit
	}
	models := req.Models
	if len(models) == 0 {
		models = []AttributionModel{ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelPositionBased}
	}

	key := cache.KeyFor("funnel:path:attribution", map[string]any{
		"funnelId": req.FunnelID, "tenantId": req.TenantID, "workspaceId": req.WorkspaceID,
		"start": req.Start.Unix(), "end": req.End.Unix(),
	})
	if cached, err := cache.Get[AttributionAnalysis](ctx, e.cacheLyr, key); err == nil {
		cached.CacheHit = true
		return &cached, nil
	}

	if err := validateWindow(req.Start, req.End, capShort); err != nil {
		return nil, err
	}
	if _, _, err := e.resolveFunnel(ctx, req.TenantID, req.WorkspaceID, req.FunnelID); err != nil {
		return nil, err
	}

	records, err := e.funnels.TouchpointJourneys(ctx, req.TenantID, req.WorkspaceID, req.FunnelID, maxTouchpoints, limit, lookback, req.End)
	if err != nil {
		return nil, err
	}
	journeys := groupTouchpointsByUser(records)

	result := &AttributionAnalysis{FunnelID: req.FunnelID, JourneyCount: len(journeys)}
	var totalTouches, multiTouch int
	for _, j := range journeys {
		totalTouches += len(j)
		if len(j) > 1 {
			multiTouch++
		}
	}
	if len(journeys) > 0 {
		result.AvgTouchpoints = float64(totalTouches) / float64(len(journeys))
		result.MultiTouchPercent = float64(multiTouch) / float64(len(journeys)) * 100
	}

	for _, model := range models {
		result.Results = append(result.Results, ModelResult{Model: model, Credits: applyAttributionModel(model, journeys)})
	}

	result.ProcessingTimeMS = measure(start)
	result.CacheDurationSeconds = int(cache.TTLFor(cache.ClassPathAnalysis).Seconds())
	e.cacheLyr.SetClass(ctx, cache.ClassPathAnalysis, key, result)
	return result, nil
}

func groupTouchpointsByUser(records []postgres.TouchpointRecord) map[string][]postgres.TouchpointRecord {
	out := make(map[string][]postgres.TouchpointRecord)
	for _, r := range records {
		if !r.Converted {
			continue
		}
		out[r.AnonymousID] = append(out[r.AnonymousID], r)
	}
	return out
}

func applyAttributionModel(model AttributionModel, journeys map[string][]postgres.TouchpointRecord) []ChannelCredit {
	credits := make(map[string]float64)
	for _, touches := range journeys {
		if len(touches) == 0 {
			continue
		}
		switch model {
		case ModelFirstTouch:
			credits[touches[0].Type]++
		case ModelLastTouch:
			credits[touches[len(touches)-1].Type]++
		case ModelLinear:
			share := 1.0 / float64(len(touches))
			for _, t := range touches {
				credits[t.Type] += share
			}
		case ModelTimeDecay:
			applyTimeDecayCredit(credits, touches)
		case ModelPositionBased:
			applyPositionBasedCredit(credits, touches)
		}
	}

	var out []ChannelCredit
	var total float64
	for _, c := range credits {
		total += c
	}
	for ch, c := range credits {
		pct := 0.0
		if total > 0 {
			pct = c / total * 100
		}
		out = append(out, ChannelCredit{Channel: ch, Credit: pct, Conversions: c})
	}
	return out
}

func applyTimeDecayCredit(credits map[string]float64, touches []postgres.TouchpointRecord) {
	const halfLifeDays = 7.0
	last := touches[len(touches)-1].Timestamp
	var weights []float64
	var sum float64
	for _, t := range touches {
		ageDays := last.Sub(t.Timestamp).Hours() / 24
		w := decayWeight(ageDays, halfLifeDays)
		weights = append(weights, w)
		sum += w
	}
	if sum == 0 {
		return
	}
	for i, t := range touches {
		credits[t.Type] += weights[i] / sum
	}
}

func decayWeight(ageDays, halfLifeDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(2, -ageDays/halfLifeDays)
}

func applyPositionBasedCredit(credits map[string]float64, touches []postgres.TouchpointRecord) {
	n := len(touches)
	if n == 1 {
		credits[touches[0].Type]++
		return
	}
	if n == 2 {
		credits[touches[0].Type] += 0.5
		credits[touches[1].Type] += 0.5
		return
	}
	credits[touches[0].Type] += 0.4
	credits[touches[n-1].Type] += 0.4
	middleShare := 0.2 / float64(n-2)
	for _, t := range touches[1 : n-1] {
		credits[t.Type] += middleShare
	}
}
