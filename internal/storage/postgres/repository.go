package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements internal/analytics.Repository against the `event`
// and `funnel_user_state` tables, following postgres_event_repository.go's
// dynamic-WHERE / $N-placeholder convention throughout.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) StepCompletions(ctx context.Context, tenantID, workspaceID, funnelID int64, stepOrder int, start, end time.Time) (int64, error) {
	const q = `
		SELECT count(*) FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND current_step_index >= $4
		  AND entered_at BETWEEN $5 AND $6`
	var n int64
	err := r.pool.QueryRow(ctx, q, tenantID, workspaceID, funnelID, stepOrder, start, end).Scan(&n)
	return n, err
}

func (r *Repository) SegmentConversions(ctx context.Context, tenantID, workspaceID, funnelID int64, dimension string, totalSteps int, start, end time.Time) ([]SegmentConversion, error) {
	col, err := segmentColumn(dimension)
	if err != nil {
		return nil, err
	}
	// FULL OUTER JOIN between "first step reached" segments and "converted"
	// segments so a segment appearing on only one side is still reported
	// with 0 on the other, per §4.3.
	q := fmt.Sprintf(`
		WITH entries AS (
			SELECT %[1]s AS segment, anonymous_id
			FROM event
			WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
			  AND timestamp BETWEEN $4 AND $5
			GROUP BY segment, anonymous_id
		), conversions AS (
			SELECT %[1]s AS segment, anonymous_id
			FROM funnel_user_state s
			JOIN event e ON e.anonymous_id = s.anonymous_id AND e.tenant_id = s.tenant_id AND e.workspace_id = s.workspace_id
			WHERE s.tenant_id = $1 AND s.workspace_id = $2 AND s.funnel_id = $3
			  AND s.current_step_index >= $6 AND s.entered_at BETWEEN $4 AND $5
			GROUP BY segment, s.anonymous_id
		), eagg AS (
			SELECT segment, count(*) AS n FROM entries GROUP BY segment
		), cagg AS (
			SELECT segment, count(*) AS n FROM conversions GROUP BY segment
		)
		SELECT coalesce(eagg.segment, cagg.segment), coalesce(eagg.n, 0), coalesce(cagg.n, 0)
		FROM eagg FULL OUTER JOIN cagg ON eagg.segment = cagg.segment`, col)

	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end, totalSteps-1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SegmentConversion
	for rows.Next() {
		var s SegmentConversion
		if err := rows.Scan(&s.Segment, &s.Entries, &s.Conversions); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func segmentColumn(dimension string) (string, error) {
	switch dimension {
	case "device_type":
		return "coalesce(device_type, 'unknown')", nil
	case "utm_source":
		return "coalesce(utm_source, 'direct')", nil
	default:
		return "", fmt.Errorf("postgres: unsupported segment dimension %q", dimension)
	}
}

func truncUnit(granularity string) (string, error) {
	switch granularity {
	case "hourly":
		return "hour", nil
	case "daily":
		return "day", nil
	case "weekly":
		return "week", nil
	case "monthly":
		return "month", nil
	default:
		return "", fmt.Errorf("postgres: unsupported granularity %q", granularity)
	}
}

func (r *Repository) ConversionTimeSeries(ctx context.Context, tenantID, workspaceID, funnelID int64, granularity string, totalSteps int, start, end time.Time) ([]TimeSeriesPoint, error) {
	unit, err := truncUnit(granularity)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		WITH buckets AS (
			SELECT generate_series(date_trunc('%[1]s', $4::timestamptz), date_trunc('%[1]s', $5::timestamptz), ('1 %[1]s')::interval) AS bucket
		), entries AS (
			SELECT date_trunc('%[1]s', entered_at) AS bucket, count(*) AS n
			FROM funnel_user_state
			WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3 AND entered_at BETWEEN $4 AND $5
			GROUP BY bucket
		), conversions AS (
			SELECT date_trunc('%[1]s', completed_at) AS bucket, count(*) AS n
			FROM funnel_user_state
			WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
			  AND current_step_index >= $6 AND completed_at BETWEEN $4 AND $5
			GROUP BY bucket
		)
		SELECT b.bucket, coalesce(e.n, 0), coalesce(c.n, 0)
		FROM buckets b
		LEFT JOIN entries e ON e.bucket = b.bucket
		LEFT JOIN conversions c ON c.bucket = b.bucket
		ORDER BY b.bucket`, unit)

	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end, totalSteps-1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeSeriesPoint
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Bucket, &p.Entries, &p.Conversions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) AvgStepCompletionTime(ctx context.Context, tenantID, workspaceID, funnelID int64, stepOrder int, start, end time.Time) (float64, error) {
	const q = `
		SELECT coalesce(avg(extract(epoch FROM last_activity_at - entered_at)), 0)
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND current_step_index >= $4 AND entered_at BETWEEN $5 AND $6`
	var v float64
	err := r.pool.QueryRow(ctx, q, tenantID, workspaceID, funnelID, stepOrder, start, end).Scan(&v)
	return v, err
}

func (r *Repository) AvgTimeToConvert(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error) {
	const q = `
		SELECT coalesce(avg(extract(epoch FROM completed_at - entered_at)), 0)
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status = 'completed' AND entered_at BETWEEN $4 AND $5`
	var v float64
	err := r.pool.QueryRow(ctx, q, tenantID, workspaceID, funnelID, start, end).Scan(&v)
	return v, err
}

func (r *Repository) ConversionVelocity(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error) {
	const q = `
		SELECT coalesce(count(*) / greatest(extract(epoch FROM $5::timestamptz - $4::timestamptz) / 3600.0, 1), 0)
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status = 'completed' AND completed_at BETWEEN $4 AND $5`
	var v float64
	err := r.pool.QueryRow(ctx, q, tenantID, workspaceID, funnelID, start, end).Scan(&v)
	return v, err
}

func (r *Repository) AvgConversionRate(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (float64, error) {
	const q = `
		SELECT CASE WHEN count(*) = 0 THEN 0
		  ELSE count(*) FILTER (WHERE status = 'completed')::float8 / count(*) * 100 END
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND entered_at BETWEEN $4 AND $5`
	var v float64
	err := r.pool.QueryRow(ctx, q, tenantID, workspaceID, funnelID, start, end).Scan(&v)
	return v, err
}

// PeerFunnelMetrics returns funnels within the workspace, last 30 days,
// with >=100 entries, excluding the funnel under analysis, per §4.3.
func (r *Repository) PeerFunnelMetrics(ctx context.Context, tenantID, workspaceID, excludeFunnelID int64) ([]PeerFunnelMetric, error) {
	const q = `
		SELECT funnel_id, count(*) AS entries,
		       count(*) FILTER (WHERE status = 'completed')::float8 / count(*) * 100 AS rate
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id != $3
		  AND entered_at >= now() - interval '30 days'
		GROUP BY funnel_id
		HAVING count(*) >= 100`
	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, excludeFunnelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PeerFunnelMetric
	for rows.Next() {
		var p PeerFunnelMetric
		if err := rows.Scan(&p.FunnelID, &p.Entries, &p.Rate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StepDropoffRates computes entries/exits/avg-time-before-exit per step
// and classifies exit velocity per the §4.3 thresholds.
func (r *Repository) StepDropoffRates(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]StepDropoff, error) {
	const q = `
		SELECT current_step_index,
		       count(*) AS exits,
		       coalesce(avg(extract(epoch FROM last_activity_at - entered_at)), 0) AS avg_exit_seconds
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status != 'completed' AND entered_at BETWEEN $4 AND $5
		GROUP BY current_step_index`
	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exitsByStep := make(map[int]struct {
		exits   int64
		avgSecs float64
	})
	for rows.Next() {
		var step int
		var exits int64
		var avgSecs float64
		if err := rows.Scan(&step, &exits, &avgSecs); err != nil {
			return nil, err
		}
		exitsByStep[step] = struct {
			exits   int64
			avgSecs float64
		}{exits, avgSecs}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]StepDropoff, 0, totalSteps)
	for step := 0; step < totalSteps; step++ {
		entries, err := r.StepCompletions(ctx, tenantID, workspaceID, funnelID, step, start, end)
		if err != nil {
			return nil, err
		}
		ex := exitsByStep[step]
		out = append(out, StepDropoff{
			StepOrder:                step,
			Entries:                  entries,
			Exits:                    ex.exits,
			AvgTimeBeforeExitSeconds: ex.avgSecs,
			ExitVelocity:             classifyExitVelocity(ex.avgSecs),
		})
	}
	return out, nil
}

func classifyExitVelocity(seconds float64) string {
	switch {
	case seconds < 30:
		return "immediate"
	case seconds < 300:
		return "quick"
	case seconds < 1800:
		return "delayed"
	default:
		return "hesitant"
	}
}

func (r *Repository) ExitPaths(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]ExitPath, error) {
	const q = `
		SELECT current_step_index,
		       count(*) FILTER (WHERE last_activity_at = entered_at) AS immediate_bounces,
		       count(*) FILTER (WHERE last_activity_at != entered_at) AS delayed_exits
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status != 'completed' AND entered_at BETWEEN $4 AND $5
		GROUP BY current_step_index`
	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExitPath
	for rows.Next() {
		var p ExitPath
		if err := rows.Scan(&p.StepOrder, &p.ImmediateBounces, &p.DelayedExits); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
