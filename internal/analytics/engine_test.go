package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
)

func TestValidateWindowRejectsStartAfterEnd(t *testing.T) {
	end := time.Now()
	start := end.Add(time.Hour)
	err := validateWindow(start, end, capShort)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateWindowRejectsWindowBeyondCap(t *testing.T) {
	start := time.Now()
	end := start.Add(91 * 24 * time.Hour)
	err := validateWindow(start, end, capShort)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidSchema, apperr.CodeOf(err))
}

func TestValidateWindowAcceptsWithinCap(t *testing.T) {
	start := time.Now()
	end := start.Add(89 * 24 * time.Hour)
	assert.NoError(t, validateWindow(start, end, capShort))
}

func TestResolveFunnelReturnsNotFoundWithoutPublishedVersion(t *testing.T) {
	draftOnly := &funnel.Funnel{
		ID: 1, TenantID: 1, WorkspaceID: 1,
		Versions: []*funnel.Version{{Version: 1, State: funnel.VersionDraft}},
	}
	store := &fakeFunnelLookup{funnels: map[int64]*funnel.Funnel{1: draftOnly}}
	e := newTestEngine(&fakeRepository{}, store)

	_, _, err := e.resolveFunnel(context.Background(), 1, 1, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestResolveFunnelReturnsLatestPublishedVersion(t *testing.T) {
	fn := &funnel.Funnel{
		ID: 1, TenantID: 1, WorkspaceID: 1,
		Versions: []*funnel.Version{
			{Version: 1, State: funnel.VersionPublished},
			{Version: 2, State: funnel.VersionPublished},
			{Version: 3, State: funnel.VersionDraft},
		},
	}
	store := &fakeFunnelLookup{funnels: map[int64]*funnel.Funnel{1: fn}}
	e := newTestEngine(&fakeRepository{}, store)

	_, version, err := e.resolveFunnel(context.Background(), 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, version.Version)
}

func TestResolveFunnelNotFoundForWrongTenant(t *testing.T) {
	fn := threeStepFunnel(1)
	store := &fakeFunnelLookup{funnels: map[int64]*funnel.Funnel{1: fn}}
	e := newTestEngine(&fakeRepository{}, store)

	_, _, err := e.resolveFunnel(context.Background(), 2, 1, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
