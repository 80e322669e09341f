// Package realtime implements the RealtimeStateTracker of §4.4: per
// event, match against active funnels' latest published version, update
// UserFunnelState, and invalidate the live-metrics cache on significant
// transitions. Grounded on backend/internal/analytics/stream_service.go's
// Redis-backed consumer loop and best-effort error counting, narrowed
// from a generic stream service to per-event funnel-step matching.
package realtime

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/domain/event"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
	"github.com/victoralfred/funnelengine/internal/domain/state"
)

// FunnelProvider loads the active (non-archived, >=1 published version)
// funnels for a tenant/workspace.
type FunnelProvider interface {
	ListActive(ctx context.Context, tenantID, workspaceID int64) ([]*funnel.Funnel, error)
}

// StateRepo is the durable fallback below the tracker's own state cache.
type StateRepo interface {
	Get(ctx context.Context, key state.Key) (*state.UserFunnelState, error)
	Upsert(ctx context.Context, st *state.UserFunnelState) error
}

// Tracker implements the §4.4 algorithm. It is best-effort: Process never
// returns an error to the caller; failures are logged and counted.
type Tracker struct {
	funnels   FunnelProvider
	states    StateRepo
	cacheLyr  *cache.Layer
	logger    *zap.Logger
	active    *activeFunnelCache
	errCount  int64
}

func New(funnels FunnelProvider, states StateRepo, cacheLyr *cache.Layer, logger *zap.Logger, activeFunnelsTTL time.Duration) *Tracker {
	return &Tracker{
		funnels:  funnels,
		states:   states,
		cacheLyr: cacheLyr,
		logger:   logger,
		active:   newActiveFunnelCache(activeFunnelsTTL),
	}
}

// ErrorCount reports how many events have failed processing since
// startup, for host-side metrics.
func (t *Tracker) ErrorCount() int64 { return atomic.LoadInt64(&t.errCount) }

// InvalidateActiveFunnels drops the cached active-funnel list for a
// tenant/workspace, forcing the next event to reload it. Called after a
// publish so newly published steps start matching without waiting out the
// cache TTL.
func (t *Tracker) InvalidateActiveFunnels(tenantID, workspaceID int64) {
	t.active.invalidate(tenantID, workspaceID)
}

// Process runs the §4.4 algorithm for a single event. It never propagates
// an error: failures are logged with structured context and counted, per
// §7's realtime propagation policy.
func (t *Tracker) Process(ctx context.Context, ev *event.Event) {
	funnels, err := t.loadActiveFunnels(ctx, ev.TenantID, ev.WorkspaceID)
	if err != nil {
		t.fail(ev, "unknown", "load_active_funnels", err)
		return
	}

	for _, f := range funnels {
		version := f.LatestPublished()
		if version == nil {
			continue
		}
		step := matchStep(version, ev)
		if step == nil {
			continue
		}
		if err := t.applyMatch(ctx, f, version, step, ev); err != nil {
			t.fail(ev, funnelExternalRef(f), "apply_match", err)
		}
	}
}

func (t *Tracker) loadActiveFunnels(ctx context.Context, tenantID, workspaceID int64) ([]*funnel.Funnel, error) {
	if cached, ok := t.active.get(tenantID, workspaceID); ok {
		return cached, nil
	}
	funnels, err := t.funnels.ListActive(ctx, tenantID, workspaceID)
	if err != nil {
		return nil, err
	}
	t.active.set(tenantID, workspaceID, funnels)
	return funnels, nil
}

func (t *Tracker) applyMatch(ctx context.Context, f *funnel.Funnel, version *funnel.Version, step *funnel.Step, ev *event.Event) error {
	key := state.Key{TenantID: ev.TenantID, WorkspaceID: ev.WorkspaceID, FunnelID: f.ID, AnonymousID: ev.AnonymousID}

	current, err := t.loadState(ctx, key)
	if err != nil {
		return err
	}

	significant, next := advance(current, key, version.ID, step, ev)

	if err := t.upsertWithRetry(ctx, next); err != nil {
		return err
	}
	t.cacheLyr.SetClass(ctx, cache.ClassUserState, userStateKey(key), next)

	if significant {
		t.cacheLyr.InvalidatePattern(ctx, "funnel:live:funnelId="+extID(f.ID)+"*")
	}
	return nil
}

// advance computes the new state per §4.4 step 5: idempotent under
// duplicate delivery since re-applying the same event never regresses
// current_step_index or a terminal completed status.
func advance(current *state.UserFunnelState, key state.Key, versionID int64, step *funnel.Step, ev *event.Event) (significant bool, next *state.UserFunnelState) {
	if current == nil {
		st := &state.UserFunnelState{
			TenantID: key.TenantID, WorkspaceID: key.WorkspaceID, FunnelID: key.FunnelID,
			FunnelVersionID: versionID, AnonymousID: key.AnonymousID, LeadID: ev.LeadID,
			CurrentStepIndex: step.OrderIndex,
			EnteredAt:        ev.Timestamp,
			LastActivityAt:   ev.Timestamp,
			Status:           state.StatusActive,
		}
		if step.Type == funnel.StepConversion {
			st.Status = state.StatusCompleted
			st.CompletedAt = &ev.Timestamp
		}
		return true, st
	}

	next = current
	next.LastActivityAt = ev.Timestamp
	if ev.LeadID != nil {
		next.LeadID = ev.LeadID
	}

	wasActive := next.Status == state.StatusActive
	advanced := step.OrderIndex > next.CurrentStepIndex
	if advanced {
		next.CurrentStepIndex = step.OrderIndex
	}

	statusChanged := false
	if step.Type == funnel.StepConversion && next.Status != state.StatusCompleted {
		next.Status = state.StatusCompleted
		next.CompletedAt = &ev.Timestamp
		statusChanged = true
	}

	significant = advanced || statusChanged || !wasActive
	return significant, next
}

// upsertWithRetry guards against transient Postgres blips (connection churn,
// brief pool exhaustion) so a single bad round-trip doesn't drop a user's
// funnel progress. Bounded short since Process sits on the event ingest
// path and must stay best-effort, not block it indefinitely.
func (t *Tracker) upsertWithRetry(ctx context.Context, st *state.UserFunnelState) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(func() error { return t.states.Upsert(ctx, st) }, b)
}

func (t *Tracker) loadState(ctx context.Context, key state.Key) (*state.UserFunnelState, error) {
	if st, err := cache.Get[state.UserFunnelState](ctx, t.cacheLyr, userStateKey(key)); err == nil {
		return &st, nil
	}
	return t.states.Get(ctx, key)
}

func userStateKey(key state.Key) string {
	return cache.KeyFor("user_state", map[string]any{
		"tenantId": key.TenantID, "workspaceId": key.WorkspaceID, "funnelId": key.FunnelID, "anonymousId": key.AnonymousID,
	})
}

func (t *Tracker) fail(ev *event.Event, funnelRef, stage string, err error) {
	atomic.AddInt64(&t.errCount, 1)
	if t.logger != nil {
		t.logger.Error("realtime processing failed",
			zap.Int64("tenant_id", ev.TenantID),
			zap.Int64("workspace_id", ev.WorkspaceID),
			zap.String("funnel_id", funnelRef),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}
}

func funnelExternalRef(f *funnel.Funnel) string { return extID(f.ID) }

func extID(id int64) string { return strconv.FormatInt(id, 10) }
