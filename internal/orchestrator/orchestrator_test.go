package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/domain/state"
)

func TestStatusHintMapsKnownCodes(t *testing.T) {
	assert.Equal(t, 400, StatusHint(apperr.InvalidSchema("x", nil)))
	assert.Equal(t, 404, StatusHint(apperr.NotFound("x")))
	assert.Equal(t, 409, StatusHint(apperr.Conflict("x")))
	assert.Equal(t, 429, StatusHint(apperr.RateLimited("x")))
	assert.Equal(t, 500, StatusHint(assertErr{}))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestCompareRequiresAtLeastTwoFunnels(t *testing.T) {
	o := &Orchestrator{}
	_, err := o.Compare(context.Background(), Scope{TenantID: 1, WorkspaceID: 1}, []int64{1}, time.Time{}, time.Time{}, nil)
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

type fakeUserStates struct {
	st  *state.UserFunnelState
	err error
}

func (f fakeUserStates) Get(ctx context.Context, key state.Key) (*state.UserFunnelState, error) {
	return f.st, f.err
}

func TestUserProgressionNotFoundWhenNoState(t *testing.T) {
	o := &Orchestrator{userStates: fakeUserStates{}}
	_, err := o.UserProgression(context.Background(), Scope{TenantID: 1, WorkspaceID: 1}, 1, "a_u1")
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestUserProgressionReturnsState(t *testing.T) {
	want := &state.UserFunnelState{TenantID: 1, WorkspaceID: 1, FunnelID: 1, AnonymousID: "a_u1", CurrentStepIndex: 2}
	o := &Orchestrator{userStates: fakeUserStates{st: want}}
	got, err := o.UserProgression(context.Background(), Scope{TenantID: 1, WorkspaceID: 1}, 1, "a_u1")
	assert.NoError(t, err)
	assert.Equal(t, want, got)
}
