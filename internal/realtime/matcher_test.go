package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victoralfred/funnelengine/internal/domain/event"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
)

func TestMatchRuleEventName(t *testing.T) {
	m := &funnel.Match{Kind: funnel.MatchEventName, Rules: map[string]any{"value": "purchase"}}
	assert.True(t, matchRule(m, &event.Event{EventName: "purchase"}))
	assert.False(t, matchRule(m, &event.Event{EventName: "view"}))
}

func TestMatchRulePageURLGlob(t *testing.T) {
	m := &funnel.Match{Kind: funnel.MatchPageURL, Rules: map[string]any{"pattern": "/checkout*"}}
	assert.True(t, matchRule(m, &event.Event{Page: &event.PageInfo{URL: "/Checkout/confirm"}}))
	assert.False(t, matchRule(m, &event.Event{Page: &event.PageInfo{URL: "/cart"}}))
}

func TestMatchRulePageURLSubstring(t *testing.T) {
	m := &funnel.Match{Kind: funnel.MatchPageURL, Rules: map[string]any{"pattern": "/checkout"}}
	assert.True(t, matchRule(m, &event.Event{Page: &event.PageInfo{URL: "https://x.com/CHECKOUT/step1"}}))
}

func TestMatchRuleCustomProperty(t *testing.T) {
	m := &funnel.Match{Kind: funnel.MatchCustomProperty, Rules: map[string]any{"name": "plan", "value": "pro"}}
	assert.True(t, matchRule(m, &event.Event{Props: map[string]any{"plan": "pro"}}))
	assert.False(t, matchRule(m, &event.Event{Props: map[string]any{"plan": "free"}}))
}

func TestMatchStepReturnsFirstMatching(t *testing.T) {
	version := &funnel.Version{Steps: []*funnel.Step{
		{OrderIndex: 0, Type: funnel.StepStart, Matches: []*funnel.Match{{Kind: funnel.MatchEventName, Rules: map[string]any{"value": "begin"}}}},
		{OrderIndex: 1, Type: funnel.StepConversion, Matches: []*funnel.Match{{Kind: funnel.MatchEventName, Rules: map[string]any{"value": "purchase"}}}},
	}}
	step := matchStep(version, &event.Event{EventName: "purchase"})
	assert.NotNil(t, step)
	assert.Equal(t, 1, step.OrderIndex)

	assert.Nil(t, matchStep(version, &event.Event{EventName: "unrelated"}))
}
