package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

// S4 journey: utm=google/cpc, direct, utm=fb/social, all same day.
func s4Touches() []postgres.TouchpointRecord {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return []postgres.TouchpointRecord{
		{AnonymousID: "a_1", Type: "google/cpc", Timestamp: base, Converted: true},
		{AnonymousID: "a_1", Type: "direct", Timestamp: base.Add(time.Hour), Converted: true},
		{AnonymousID: "a_1", Type: "fb/social", Timestamp: base.Add(2 * time.Hour), Converted: true},
	}
}

func creditFor(credits []ChannelCredit, channel string) float64 {
	for _, c := range credits {
		if c.Channel == channel {
			return c.Credit
		}
	}
	return 0
}

func TestFirstTouchCreditsFirstChannelFully(t *testing.T) {
	journeys := map[string][]postgres.TouchpointRecord{"a_1": s4Touches()}
	credits := applyAttributionModel(ModelFirstTouch, journeys)
	assert.InDelta(t, 100.0, creditFor(credits, "google/cpc"), 1e-9)
}

func TestLastTouchCreditsLastChannelFully(t *testing.T) {
	journeys := map[string][]postgres.TouchpointRecord{"a_1": s4Touches()}
	credits := applyAttributionModel(ModelLastTouch, journeys)
	assert.InDelta(t, 100.0, creditFor(credits, "fb/social"), 1e-9)
}

// TestLinearSplitsEvenlyS4 matches spec.md §8 S4: linear credits 1/3 to each.
func TestLinearSplitsEvenlyS4(t *testing.T) {
	journeys := map[string][]postgres.TouchpointRecord{"a_1": s4Touches()}
	credits := applyAttributionModel(ModelLinear, journeys)
	require := func(ch string) {
		assert.InDelta(t, 100.0/3, creditFor(credits, ch), 1e-6)
	}
	require("google/cpc")
	require("direct")
	require("fb/social")
}

// TestTimeDecaySameDayIsEffectivelyLinearS4: per spec.md §8 S4, when all
// touches land on the same day the decay weight is 0.5^0=1 for each touch,
// so time-decay degenerates to the same 1/3 split as linear.
func TestTimeDecaySameDayIsEffectivelyLinearS4(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	touches := []postgres.TouchpointRecord{
		{AnonymousID: "a_1", Type: "google/cpc", Timestamp: base, Converted: true},
		{AnonymousID: "a_1", Type: "direct", Timestamp: base, Converted: true},
		{AnonymousID: "a_1", Type: "fb/social", Timestamp: base, Converted: true},
	}
	journeys := map[string][]postgres.TouchpointRecord{"a_1": touches}
	credits := applyAttributionModel(ModelTimeDecay, journeys)
	for _, ch := range []string{"google/cpc", "direct", "fb/social"} {
		assert.InDelta(t, 100.0/3, creditFor(credits, ch), 1e-6)
	}
}

// TestSingleTouchpointGets100PercentAcrossModels covers spec.md §8's
// "Single touchpoint in attribution -> 100% credit to that touchpoint in
// all models" boundary behavior.
func TestSingleTouchpointGets100PercentAcrossModels(t *testing.T) {
	touch := postgres.TouchpointRecord{AnonymousID: "a_1", Type: "direct", Timestamp: time.Now(), Converted: true}
	journeys := map[string][]postgres.TouchpointRecord{"a_1": {touch}}

	for _, model := range []AttributionModel{ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelPositionBased} {
		credits := applyAttributionModel(model, journeys)
		assert.InDelta(t, 100.0, creditFor(credits, "direct"), 1e-9, "model=%s", model)
	}
}

func TestPositionBasedFortyFortyTwenty(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	touches := []postgres.TouchpointRecord{
		{AnonymousID: "a_1", Type: "first", Timestamp: base, Converted: true},
		{AnonymousID: "a_1", Type: "mid1", Timestamp: base.Add(time.Hour), Converted: true},
		{AnonymousID: "a_1", Type: "mid2", Timestamp: base.Add(2 * time.Hour), Converted: true},
		{AnonymousID: "a_1", Type: "last", Timestamp: base.Add(3 * time.Hour), Converted: true},
	}
	journeys := map[string][]postgres.TouchpointRecord{"a_1": touches}
	credits := applyAttributionModel(ModelPositionBased, journeys)

	assert.InDelta(t, 40.0, creditFor(credits, "first"), 1e-9)
	assert.InDelta(t, 40.0, creditFor(credits, "last"), 1e-9)
	assert.InDelta(t, 10.0, creditFor(credits, "mid1"), 1e-9)
	assert.InDelta(t, 10.0, creditFor(credits, "mid2"), 1e-9)
}

// TestAttributionCreditConservation covers §8 invariant 8: for any model and
// any journey set, credits sum to 100% (the Credit field is already
// expressed as a percentage of 1.0 total).
func TestAttributionCreditConservation(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	journeys := map[string][]postgres.TouchpointRecord{
		"a_1": {
			{AnonymousID: "a_1", Type: "google/cpc", Timestamp: base, Converted: true},
			{AnonymousID: "a_1", Type: "direct", Timestamp: base.Add(time.Hour), Converted: true},
		},
		"a_2": {
			{AnonymousID: "a_2", Type: "organic", Timestamp: base, Converted: true},
			{AnonymousID: "a_2", Type: "direct", Timestamp: base.Add(2 * time.Hour), Converted: true},
			{AnonymousID: "a_2", Type: "email", Timestamp: base.Add(5 * time.Hour), Converted: true},
		},
		"a_3": {
			{AnonymousID: "a_3", Type: "social", Timestamp: base, Converted: true},
		},
	}
	for _, model := range []AttributionModel{ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelPositionBased} {
		credits := applyAttributionModel(model, journeys)
		var total float64
		for _, c := range credits {
			total += c.Credit
		}
		assert.InDelta(t, 100.0, total, 1e-6, "model=%s", model)
	}
}

// TestGroupTouchpointsByUserDropsUnconvertedJourneys: only converted
// journeys contribute touchpoints (§4.5.7 "for each user journey ... ending
// in a conversion").
func TestGroupTouchpointsByUserDropsUnconvertedJourneys(t *testing.T) {
	records := []postgres.TouchpointRecord{
		{AnonymousID: "a_1", Type: "direct", Converted: true},
		{AnonymousID: "a_2", Type: "direct", Converted: false},
	}
	journeys := groupTouchpointsByUser(records)
	assert.Len(t, journeys, 1)
	_, ok := journeys["a_1"]
	assert.True(t, ok)
	_, ok = journeys["a_2"]
	assert.False(t, ok)
}
