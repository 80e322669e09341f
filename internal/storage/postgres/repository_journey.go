package postgres

import (
	"context"
	"time"
)

// UserJourneys returns, per user, their ordered event stream within the
// window capped at maxPathLength events and limit journeys total, with
// time_spent_seconds computed against the next event's timestamp (§4.3).
func (r *Repository) UserJourneys(ctx context.Context, tenantID, workspaceID, funnelID int64, maxPathLength, limit int, start, end time.Time) ([]UserJourney, error) {
	const usersQ = `
		SELECT anonymous_id, status, completed_at FROM funnel_user_state
		WHERE tenant_id = $1 AND workspace_id = $2 AND funnel_id = $3
		  AND entered_at BETWEEN $4 AND $5
		ORDER BY entered_at
		LIMIT $6`
	userRows, err := r.pool.Query(ctx, usersQ, tenantID, workspaceID, funnelID, start, end, limit)
	if err != nil {
		return nil, err
	}
	type userMeta struct {
		converted   bool
		completedAt *time.Time
	}
	metaByUser := make(map[string]userMeta)
	var order []string
	for userRows.Next() {
		var anon, status string
		var completedAt *time.Time
		if err := userRows.Scan(&anon, &status, &completedAt); err != nil {
			userRows.Close()
			return nil, err
		}
		metaByUser[anon] = userMeta{converted: status == "completed", completedAt: completedAt}
		order = append(order, anon)
	}
	userRows.Close()
	if err := userRows.Err(); err != nil {
		return nil, err
	}

	out := make([]UserJourney, 0, len(order))
	for _, anon := range order {
		const eventsQ = `
			SELECT event_name, timestamp FROM event
			WHERE tenant_id = $1 AND workspace_id = $2 AND anonymous_id = $3
			  AND timestamp BETWEEN $4 AND $5
			ORDER BY timestamp
			LIMIT $6`
		evRows, err := r.pool.Query(ctx, eventsQ, tenantID, workspaceID, anon, start, end, maxPathLength)
		if err != nil {
			return nil, err
		}
		var events []UserJourneyEvent
		for evRows.Next() {
			var ev UserJourneyEvent
			if err := evRows.Scan(&ev.EventName, &ev.Timestamp); err != nil {
				evRows.Close()
				return nil, err
			}
			events = append(events, ev)
		}
		evRows.Close()
		if err := evRows.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < len(events)-1; i++ {
			events[i].TimeSpentSeconds = events[i+1].Timestamp.Sub(events[i].Timestamp).Seconds()
		}

		meta := metaByUser[anon]
		out = append(out, UserJourney{
			AnonymousID: anon,
			Events:      events,
			Converted:   meta.converted,
			CompletedAt: meta.completedAt,
		})
	}
	return out, nil
}

// TouchpointJourneys returns every event within the lookback window for
// users who later converted, labeled with an attribution channel derived
// from its UTM shape, capped at maxTouchpoints per user and limit total
// rows (§4.3).
func (r *Repository) TouchpointJourneys(ctx context.Context, tenantID, workspaceID, funnelID int64, maxTouchpoints, limit int, lookback time.Duration, end time.Time) ([]TouchpointRecord, error) {
	start := end.Add(-lookback)
	const q = `
		SELECT e.anonymous_id, e.utm_source, e.utm_medium, e.timestamp,
		       s.status = 'completed' AS converted, s.completed_at
		FROM event e
		JOIN funnel_user_state s ON s.anonymous_id = e.anonymous_id
		  AND s.tenant_id = e.tenant_id AND s.workspace_id = e.workspace_id AND s.funnel_id = $3
		WHERE e.tenant_id = $1 AND e.workspace_id = $2
		  AND e.timestamp BETWEEN $4 AND $5
		  AND s.status = 'completed'
		ORDER BY e.anonymous_id, e.timestamp
		LIMIT $6`
	rows, err := r.pool.Query(ctx, q, tenantID, workspaceID, funnelID, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	countByUser := make(map[string]int)
	var out []TouchpointRecord
	for rows.Next() {
		var rec TouchpointRecord
		var source, medium *string
		if err := rows.Scan(&rec.AnonymousID, &source, &medium, &rec.Timestamp, &rec.Converted, &rec.ConvertedAt); err != nil {
			return nil, err
		}
		if countByUser[rec.AnonymousID] >= maxTouchpoints {
			continue
		}
		countByUser[rec.AnonymousID]++
		if source != nil {
			rec.Source = *source
		}
		if medium != nil {
			rec.Medium = *medium
		}
		rec.Type = classifyTouchpoint(rec.Source, rec.Medium)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// classifyTouchpoint labels a touchpoint using the same five channels
// §4.3 names: paid_search, organic_search, direct, social, referral.
func classifyTouchpoint(source, medium string) string {
	switch {
	case source == "":
		return "direct"
	case medium == "cpc" || medium == "ppc" || medium == "paid":
		return "paid_search"
	case medium == "organic":
		return "organic_search"
	case medium == "social":
		return "social"
	default:
		return "referral"
	}
}
