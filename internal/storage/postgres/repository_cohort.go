package postgres

import (
	"context"
	"fmt"
	"time"
)

// CohortsByPeriod groups users by date_trunc(period, first entry), then
// enriches each cohort with a device/utm/geo breakdown drawn from each
// user's first event within 24h of entering, per §4.3.
func (r *Repository) CohortsByPeriod(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]Cohort, error) {
	unit, err := truncUnit(periodGranularity(period))
	if err != nil {
		return nil, err
	}
	return r.cohortsByPeriodSimple(ctx, tenantID, workspaceID, funnelID, unit, start, end)
}

// cohortsByPeriodSimple computes cohort size and each breakdown dimension
// with separate, ordinary GROUP BY queries rather than one aggregate
// query, so each dimension's NULL-handling and join stay straightforward.
func (r *Repository) cohortsByPeriodSimple(ctx context.Context, tenantID, workspaceID, funnelID int64, unit string, start, end time.Time) ([]Cohort, error) {
	sizeQ := fmt.Sprintf(`
		SELECT date_trunc('%[1]s', entered_at) AS period, count(*)
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND entered_at BETWEEN $4 AND $5
		GROUP BY period ORDER BY period`, unit)

	rows, err := r.pool.Query(ctx, sizeQ, tenantID, workspaceID, funnelID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cohorts := make([]Cohort, 0)
	for rows.Next() {
		var c Cohort
		if err := rows.Scan(&c.Period, &c.Size); err != nil {
			return nil, err
		}
		cohorts = append(cohorts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cohorts {
		devices, err := r.cohortBreakdown(ctx, tenantID, workspaceID, funnelID, unit, "device_type", cohorts[i].Period)
		if err != nil {
			return nil, err
		}
		utm, err := r.cohortBreakdown(ctx, tenantID, workspaceID, funnelID, unit, "utm_source", cohorts[i].Period)
		if err != nil {
			return nil, err
		}
		geo, err := r.cohortBreakdown(ctx, tenantID, workspaceID, funnelID, unit, "geo_country", cohorts[i].Period)
		if err != nil {
			return nil, err
		}
		cohorts[i].DeviceBreakdown = devices
		cohorts[i].UTMBreakdown = utm
		cohorts[i].GeoBreakdown = geo
	}
	return cohorts, nil
}

func (r *Repository) cohortBreakdown(ctx context.Context, tenantID, workspaceID, funnelID int64, unit, column string, period time.Time) (map[string]int64, error) {
	q := fmt.Sprintf(`
		WITH cohorted AS (
			SELECT anonymous_id, entered_at
			FROM funnel_user_state
			WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
			  AND date_trunc('%[1]s', entered_at) = $4
		), first_event AS (
			SELECT DISTINCT ON (c.anonymous_id) c.anonymous_id, e.%[2]s AS dim
			FROM cohorted c
			LEFT JOIN event e ON e.anonymous_id = c.anonymous_id
			  AND e.tenant_id = $1 AND e.workspace_id = $2
			  AND e.timestamp BETWEEN c.entered_at AND c.entered_at + interval '24 hours'
			ORDER BY c.anonymous_id, e.timestamp ASC
		)
		SELECT coalesce(dim, 'unknown'), count(*) FROM first_event GROUP BY dim`, unit, column)

	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func periodGranularity(period string) string {
	switch period {
	case "daily":
		return "daily"
	case "weekly":
		return "weekly"
	case "monthly":
		return "monthly"
	default:
		return "daily"
	}
}

// CohortProgression returns, per cohort period and step, the count of
// users who reached that step — used to derive step_conversion_rate.
func (r *Repository) CohortProgression(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, totalSteps int, start, end time.Time) ([]CohortProgressionRow, error) {
	unit, err := truncUnit(periodGranularity(period))
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT date_trunc('%[1]s', entered_at) AS period, current_step_index, count(*)
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND entered_at BETWEEN $4 AND $5
		GROUP BY period, current_step_index
		ORDER BY period`, unit)

	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPeriod := make(map[time.Time]*CohortProgressionRow)
	var order []time.Time
	for rows.Next() {
		var period time.Time
		var stepIdx int
		var n int64
		if err := rows.Scan(&period, &stepIdx, &n); err != nil {
			return nil, err
		}
		row, ok := byPeriod[period]
		if !ok {
			row = &CohortProgressionRow{Period: period, Reached: make(map[int]int64)}
			byPeriod[period] = row
			order = append(order, period)
		}
		// reached(s) = sum of users whose current_step_index >= s; since
		// rows are grouped by exact step index, accumulate cumulative
		// counts per cohort below after the scan loop.
		row.Reached[stepIdx] += n
		row.Size += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]CohortProgressionRow, 0, len(order))
	for _, p := range order {
		row := byPeriod[p]
		cumulative := make(map[int]int64, totalSteps)
		for s := totalSteps - 1; s >= 0; s-- {
			cumulative[s] = row.Reached[s]
			if s < totalSteps-1 {
				cumulative[s] += cumulative[s+1]
			}
		}
		row.Reached = cumulative
		out = append(out, *row)
	}
	return out, nil
}

// RetentionCurve counts, for periods 0..4 of the cohort period, users
// whose last_activity_at >= cohort_start + k*period (§9 Open Question 3:
// last_activity_at is the liveness signal, so this understates retention
// for users active outside funnel steps).
func (r *Repository) RetentionCurve(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]RetentionPoint, error) {
	unit, err := truncUnit(periodGranularity(period))
	if err != nil {
		return nil, err
	}
	intervalExpr := "1 " + unit

	q := fmt.Sprintf(`
		SELECT date_trunc('%[1]s', entered_at) AS cohort_start, k.idx,
		       count(*) FILTER (WHERE last_activity_at >= date_trunc('%[1]s', entered_at) + (k.idx * interval '%[2]s'))
		FROM funnel_user_state, generate_series(0, 4) AS k(idx)
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND entered_at BETWEEN $4 AND $5
		GROUP BY cohort_start, k.idx
		ORDER BY cohort_start, k.idx`, unit, intervalExpr)

	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RetentionPoint
	for rows.Next() {
		var p RetentionPoint
		if err := rows.Scan(&p.Period, &p.PeriodIdx, &p.Retained); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
