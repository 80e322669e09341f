package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/domain/state"
)

// StateStore persists UserFunnelState with upsert-on-conflict semantics,
// used by the RealtimeStateTracker as the fallback below its cache.
type StateStore struct {
	pool *pgxpool.Pool
}

func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

func (s *StateStore) Get(ctx context.Context, key state.Key) (*state.UserFunnelState, error) {
	const q = `
		SELECT tenant_id, workspace_id, funnel_id, funnel_version_id, anonymous_id, lead_id,
		       current_step_index, entered_at, last_activity_at, completed_at, exited_at, status
		FROM funnel_user_state
		WHERE tenant_id=$1 AND workspace_id=$2 AND funnel_id=$3 AND anonymous_id=$4`
	var st state.UserFunnelState
	err := s.pool.QueryRow(ctx, q, key.TenantID, key.WorkspaceID, key.FunnelID, key.AnonymousID).Scan(
		&st.TenantID, &st.WorkspaceID, &st.FunnelID, &st.FunnelVersionID, &st.AnonymousID, &st.LeadID,
		&st.CurrentStepIndex, &st.EnteredAt, &st.LastActivityAt, &st.CompletedAt, &st.ExitedAt, &st.Status,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get user funnel state", err)
	}
	return &st, nil
}

// Upsert writes st, keyed on (tenant,workspace,funnel,anonymous_id),
// matching the §4.4 persistence step of the realtime algorithm.
func (s *StateStore) Upsert(ctx context.Context, st *state.UserFunnelState) error {
	const q = `
		INSERT INTO funnel_user_state (
			tenant_id, workspace_id, funnel_id, funnel_version_id, anonymous_id, lead_id,
			current_step_index, entered_at, last_activity_at, completed_at, exited_at, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (tenant_id, workspace_id, funnel_id, anonymous_id) DO UPDATE SET
			funnel_version_id = EXCLUDED.funnel_version_id,
			lead_id = EXCLUDED.lead_id,
			current_step_index = EXCLUDED.current_step_index,
			last_activity_at = EXCLUDED.last_activity_at,
			completed_at = EXCLUDED.completed_at,
			exited_at = EXCLUDED.exited_at,
			status = EXCLUDED.status`
	_, err := s.pool.Exec(ctx, q,
		st.TenantID, st.WorkspaceID, st.FunnelID, st.FunnelVersionID, st.AnonymousID, st.LeadID,
		st.CurrentStepIndex, st.EnteredAt, st.LastActivityAt, st.CompletedAt, st.ExitedAt, st.Status,
	)
	if err != nil {
		return apperr.Internal("upsert user funnel state", err)
	}
	return nil
}
