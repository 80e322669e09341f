package postgres

import (
	"context"
	"time"
)

// LiveMetrics computes the §4.3 live-metrics snapshot: active sessions in
// the last 30 minutes, entries/conversions in the last hour, current
// rate, per-step distribution of active users, and a 30-point per-minute
// trend.
func (r *Repository) LiveMetrics(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int) (LiveMetrics, error) {
	now := timeNow()

	var m LiveMetrics
	const activeQ = `
		SELECT count(*) FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status = 'active' AND last_activity_at >= $4`
	if err := r.pool.QueryRow(ctx, activeQ, tenantID, workspaceID, funnelID, now.Add(-30*time.Minute)).Scan(&m.ActiveSessions); err != nil {
		return m, err
	}

	const entriesQ = `
		SELECT count(*) FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3 AND entered_at >= $4`
	if err := r.pool.QueryRow(ctx, entriesQ, tenantID, workspaceID, funnelID, now.Add(-time.Hour)).Scan(&m.EntriesLastHour); err != nil {
		return m, err
	}

	const convQ = `
		SELECT count(*) FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status = 'completed' AND completed_at >= $4`
	if err := r.pool.QueryRow(ctx, convQ, tenantID, workspaceID, funnelID, now.Add(-time.Hour)).Scan(&m.ConversionsLastHour); err != nil {
		return m, err
	}
	if m.EntriesLastHour > 0 {
		m.CurrentRate = float64(m.ConversionsLastHour) / float64(m.EntriesLastHour) * 100
	}

	const distQ = `
		SELECT current_step_index, count(*) FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3 AND status = 'active'
		GROUP BY current_step_index`
	rows, err := r.pool.Query(ctx, distQ, tenantID, workspaceID, funnelID)
	if err != nil {
		return m, err
	}
	m.StepDistribution = make(map[int]int64)
	for rows.Next() {
		var step int
		var n int64
		if err := rows.Scan(&step, &n); err != nil {
			rows.Close()
			return m, err
		}
		m.StepDistribution[step] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return m, err
	}

	const trendQ = `
		SELECT date_trunc('minute', entered_at) AS bucket, count(*),
		       count(*) FILTER (WHERE status = 'completed')
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3 AND entered_at >= $4
		GROUP BY bucket ORDER BY bucket`
	trendRows, err := r.pool.Query(ctx, trendQ, tenantID, workspaceID, funnelID, now.Add(-30*time.Minute))
	if err != nil {
		return m, err
	}
	defer trendRows.Close()
	for trendRows.Next() {
		var p TimeSeriesPoint
		if err := trendRows.Scan(&p.Bucket, &p.Entries, &p.Conversions); err != nil {
			return m, err
		}
		m.PerMinuteTrend = append(m.PerMinuteTrend, p)
	}
	return m, trendRows.Err()
}

// StuckSteps finds active users idle beyond idleMinutes, grouped by step,
// reporting only groups with at least minStuck users (§4.3 anomalies).
func (r *Repository) StuckSteps(ctx context.Context, tenantID, workspaceID, funnelID int64, idleMinutes int, minStuck int64) ([]StuckStep, error) {
	const q = `
		SELECT current_step_index, count(*) FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status = 'active' AND last_activity_at < $4
		GROUP BY current_step_index
		HAVING count(*) >= $5`
	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, timeNow().Add(-time.Duration(idleMinutes)*time.Minute), minStuck)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StuckStep
	for rows.Next() {
		var s StuckStep
		if err := rows.Scan(&s.StepOrder, &s.StuckUsers); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// timeNow is a seam so live-metric windows ("last 30m", "last hour") can
// be deterministic in tests without faking the system clock everywhere.
var timeNow = time.Now
