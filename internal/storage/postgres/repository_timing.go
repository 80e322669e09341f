package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/victoralfred/funnelengine/internal/stats"
)

// TimingDistribution pulls the raw per-user conversion duration sample and
// computes true percentiles via internal/stats.Percentile, honoring §9
// Open Question 1's preference for true percentiles over the mean-ratio
// estimate whenever the underlying sample is available.
func (r *Repository) TimingDistribution(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) (TimingDistribution, error) {
	const q = `
		SELECT extract(epoch FROM completed_at - entered_at)
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status = 'completed' AND entered_at BETWEEN $4 AND $5`
	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end)
	if err != nil {
		return TimingDistribution{}, err
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return TimingDistribution{}, err
		}
		samples = append(samples, v)
	}
	if err := rows.Err(); err != nil {
		return TimingDistribution{}, err
	}

	if len(samples) == 0 {
		return TimingDistribution{Buckets: emptyBuckets()}, nil
	}

	d := TimingDistribution{
		P10: stats.Percentile(samples, 10),
		P25: stats.Percentile(samples, 25),
		P50: stats.Percentile(samples, 50),
		P75: stats.Percentile(samples, 75),
		P90: stats.Percentile(samples, 90),
		P95: stats.Percentile(samples, 95),
		P99: stats.Percentile(samples, 99),
		Buckets: emptyBuckets(),
	}
	var min, max, sum float64
	min = samples[0]
	for _, v := range samples {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		bucketDuration(d.Buckets, v)
	}
	d.Mean = sum / float64(len(samples))
	d.StdDev = stats.StdDev(samples)
	d.Min, d.Max = min, max
	return d, nil
}

func emptyBuckets() map[string]int64 {
	return map[string]int64{
		"0-5m": 0, "5-15m": 0, "15-30m": 0, "30-60m": 0, "1-24h": 0, "1-7d": 0, "7d+": 0,
	}
}

func bucketDuration(buckets map[string]int64, seconds float64) {
	switch {
	case seconds < 5*60:
		buckets["0-5m"]++
	case seconds < 15*60:
		buckets["5-15m"]++
	case seconds < 30*60:
		buckets["15-30m"]++
	case seconds < 60*60:
		buckets["30-60m"]++
	case seconds < 24*60*60:
		buckets["1-24h"]++
	case seconds < 7*24*60*60:
		buckets["1-7d"]++
	default:
		buckets["7d+"]++
	}
}

func (r *Repository) StepTimingAnalysis(ctx context.Context, tenantID, workspaceID, funnelID int64, totalSteps int, start, end time.Time) ([]StepTiming, error) {
	out := make([]StepTiming, 0, totalSteps)
	for step := 0; step < totalSteps-1; step++ {
		const q = `
			SELECT extract(epoch FROM last_activity_at - entered_at)
			FROM funnel_user_state
			WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
			  AND current_step_index >= $4 AND entered_at BETWEEN $5 AND $6`
		rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, step, start, end)
		if err != nil {
			return nil, err
		}
		var samples []float64
		for rows.Next() {
			var v float64
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return nil, err
			}
			samples = append(samples, v)
		}
		rows.Close()

		reached, err := r.StepCompletions(ctx, tenantID, workspaceID, funnelID, step, start, end)
		if err != nil {
			return nil, err
		}
		proceeded, err := r.StepCompletions(ctx, tenantID, workspaceID, funnelID, step+1, start, end)
		if err != nil {
			return nil, err
		}

		st := StepTiming{StepOrder: step, UserCount: reached}
		if len(samples) > 0 {
			var sum float64
			for _, v := range samples {
				sum += v
			}
			st.AvgSeconds = sum / float64(len(samples))
			st.MedianSeconds = stats.Percentile(samples, 50)
			st.P90Seconds = stats.Percentile(samples, 90)
		}
		if reached > 0 {
			st.AbandonmentRate = float64(reached-proceeded) / float64(reached) * 100
		}
		out = append(out, st)
	}
	return out, nil
}

func (r *Repository) VelocityTrends(ctx context.Context, tenantID, workspaceID, funnelID int64, period string, start, end time.Time) ([]VelocityTrend, error) {
	unit, err := truncUnit(periodGranularity(period))
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT date_trunc('%[1]s', entered_at) AS period,
		       array_agg(extract(epoch FROM completed_at - entered_at))
		FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND status = 'completed' AND entered_at BETWEEN $4 AND $5
		GROUP BY period
		ORDER BY period`, unit)

	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VelocityTrend
	for rows.Next() {
		var period time.Time
		var durations []float64
		if err := rows.Scan(&period, &durations); err != nil {
			return nil, err
		}
		var sum float64
		for _, d := range durations {
			sum += d
		}
		v := VelocityTrend{Period: period}
		if len(durations) > 0 {
			v.AvgSeconds = sum / float64(len(durations))
			v.MedianSeconds = stats.Percentile(durations, 50)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) SegmentTimingComparison(ctx context.Context, tenantID, workspaceID, funnelID int64, start, end time.Time) ([]SegmentTiming, error) {
	dims := map[string]string{
		"device_type": "coalesce(e.device_type, 'unknown')",
		"utm_source":  "coalesce(e.utm_source, 'direct')",
		"platform":    "coalesce(e.device_platform, 'unknown')",
	}
	var out []SegmentTiming
	for dim, col := range dims {
		q := fmt.Sprintf(`
			WITH firstevt AS (
				SELECT DISTINCT ON (s.anonymous_id) s.anonymous_id,
				       %[1]s AS segment,
				       extract(epoch FROM s.completed_at - s.entered_at) AS duration
				FROM funnel_user_state s
				LEFT JOIN event e ON e.anonymous_id = s.anonymous_id
				  AND e.tenant_id = s.tenant_id AND e.workspace_id = s.workspace_id
				  AND e.timestamp BETWEEN s.entered_at AND s.entered_at + interval '24 hours'
				WHERE s.tenant_id = $1 AND s.workspace_id = $2 AND s.funnel_id = $3
				  AND s.status = 'completed' AND s.entered_at BETWEEN $4 AND $5
				ORDER BY s.anonymous_id, e.timestamp ASC
			)
			SELECT segment, count(*), coalesce(avg(duration), 0)
			FROM firstevt
			GROUP BY segment
			HAVING count(*) >= 10`, col)

		rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var s SegmentTiming
			s.Dimension = dim
			if err := rows.Scan(&s.Segment, &s.UserCount, &s.AvgSeconds); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, s)
		}
		rows.Close()
	}
	return out, nil
}
