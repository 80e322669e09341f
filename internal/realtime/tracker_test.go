package realtime

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/victoralfred/funnelengine/internal/domain/event"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
	"github.com/victoralfred/funnelengine/internal/domain/state"
)

func convStep() *funnel.Step {
	return &funnel.Step{OrderIndex: 2, Type: funnel.StepConversion}
}

func TestAdvanceCreatesNewState(t *testing.T) {
	key := state.Key{TenantID: 1, WorkspaceID: 1, FunnelID: 10, AnonymousID: "a_1"}
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := &event.Event{AnonymousID: "a_1", Timestamp: ts}

	significant, st := advance(nil, key, 100, &funnel.Step{OrderIndex: 0, Type: funnel.StepStart}, ev)
	assert.True(t, significant)
	assert.Equal(t, state.StatusActive, st.Status)
	assert.Equal(t, 0, st.CurrentStepIndex)
	assert.Equal(t, ts, st.EnteredAt)
}

func TestAdvanceConversionSetsCompleted(t *testing.T) {
	key := state.Key{TenantID: 1, WorkspaceID: 1, FunnelID: 10, AnonymousID: "a_1"}
	ts := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	ev := &event.Event{AnonymousID: "a_1", Timestamp: ts}

	_, st := advance(nil, key, 100, convStep(), ev)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.NotNil(t, st.CompletedAt)
}

func TestAdvanceIsIdempotent(t *testing.T) {
	key := state.Key{TenantID: 1, WorkspaceID: 1, FunnelID: 10, AnonymousID: "a_1"}
	ts := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	ev := &event.Event{AnonymousID: "a_1", Timestamp: ts}

	_, first := advance(nil, key, 100, convStep(), ev)
	before := *first
	_, second := advance(first, key, 100, convStep(), ev)

	if diff := cmp.Diff(before, *second); diff != "" {
		t.Errorf("re-applying the same event changed state (-before +after):\n%s", diff)
	}
}

func TestAdvanceNeverRegressesStepIndex(t *testing.T) {
	key := state.Key{TenantID: 1, WorkspaceID: 1, FunnelID: 10, AnonymousID: "a_1"}
	ts1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(time.Minute)

	_, st := advance(nil, key, 100, &funnel.Step{OrderIndex: 1, Type: funnel.StepPage}, &event.Event{Timestamp: ts1})
	significant, st2 := advance(st, key, 100, &funnel.Step{OrderIndex: 0, Type: funnel.StepStart}, &event.Event{Timestamp: ts2})

	assert.Equal(t, 1, st2.CurrentStepIndex)
	assert.False(t, significant)
}
