package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
)

// FunnelStore implements §4.1 against the funnel/funnel_version/
// funnel_step/funnel_step_match/funnel_publication tables, grounded on
// postgres_event_repository.go's filter-building conventions.
type FunnelStore struct {
	pool *pgxpool.Pool
}

func NewFunnelStore(pool *pgxpool.Pool) *FunnelStore {
	return &FunnelStore{pool: pool}
}

// Create atomically persists a funnel, its version 1 (draft), steps and
// matches. Validation of the definition itself happens in
// funnel.ValidateDefinition before this is ever called.
func (s *FunnelStore) Create(ctx context.Context, tenantID, workspaceID int64, def funnel.Definition) (*funnel.Funnel, error) {
	if err := funnel.ValidateDefinition(def); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	const dupQ = `SELECT EXISTS(SELECT 1 FROM funnel WHERE tenant_id=$1 AND workspace_id=$2 AND name=$3 AND archived_at IS NULL)`
	if err := tx.QueryRow(ctx, dupQ, tenantID, workspaceID, def.Name).Scan(&exists); err != nil {
		return nil, apperr.Internal("check duplicate name", err)
	}
	if exists {
		return nil, apperr.Conflict(fmt.Sprintf("funnel named %q already exists", def.Name))
	}

	var f funnel.Funnel
	f.TenantID, f.WorkspaceID, f.Name, f.Description = tenantID, workspaceID, def.Name, def.Description
	const insFunnel = `INSERT INTO funnel (tenant_id, workspace_id, name, description) VALUES ($1,$2,$3,$4) RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insFunnel, tenantID, workspaceID, def.Name, def.Description).Scan(&f.ID, &f.CreatedAt); err != nil {
		return nil, apperr.Internal("insert funnel", err)
	}

	v, err := insertVersion(ctx, tx, f.ID, 1, funnel.VersionDraft, def.Steps)
	if err != nil {
		return nil, err
	}
	f.Versions = []*funnel.Version{v}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal("commit create", err)
	}
	return &f, nil
}

func insertVersion(ctx context.Context, tx pgx.Tx, funnelID int64, version int, state funnel.VersionState, stepDefs []funnel.StepDefinition) (*funnel.Version, error) {
	v := &funnel.Version{FunnelID: funnelID, Version: version, State: state}
	const insVersion = `INSERT INTO funnel_version (funnel_id, version, state) VALUES ($1,$2,$3) RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insVersion, funnelID, version, state).Scan(&v.ID, &v.CreatedAt); err != nil {
		return nil, apperr.Internal("insert version", err)
	}

	for _, sd := range stepDefs {
		step := &funnel.Step{FunnelVersionID: v.ID, OrderIndex: sd.OrderIndex, Type: sd.Type, Label: sd.Label, Metadata: sd.Metadata}
		metaJSON, err := json.Marshal(sd.Metadata)
		if err != nil {
			return nil, apperr.InvalidSchema("invalid step metadata", err)
		}
		const insStep = `INSERT INTO funnel_step (funnel_version_id, order_index, type, label, metadata) VALUES ($1,$2,$3,$4,$5) RETURNING id`
		if err := tx.QueryRow(ctx, insStep, v.ID, sd.OrderIndex, sd.Type, sd.Label, metaJSON).Scan(&step.ID); err != nil {
			return nil, apperr.Internal("insert step", err)
		}

		for _, md := range sd.Matches {
			rulesJSON, err := json.Marshal(md.Rules)
			if err != nil {
				return nil, apperr.InvalidSchema("invalid match rules", err)
			}
			match := &funnel.Match{FunnelStepID: step.ID, Kind: md.Kind, Rules: md.Rules}
			const insMatch = `INSERT INTO funnel_step_match (funnel_step_id, kind, rules) VALUES ($1,$2,$3) RETURNING id`
			if err := tx.QueryRow(ctx, insMatch, step.ID, md.Kind, rulesJSON).Scan(&match.ID); err != nil {
				return nil, apperr.Internal("insert match", err)
			}
			step.Matches = append(step.Matches, match)
		}
		v.Steps = append(v.Steps, step)
	}
	return v, nil
}

// Get returns a non-archived funnel with all versions (descending),
// steps, matches and publications loaded.
func (s *FunnelStore) Get(ctx context.Context, tenantID, workspaceID, id int64) (*funnel.Funnel, error) {
	var f funnel.Funnel
	const q = `
		SELECT id, tenant_id, workspace_id, name, description, created_at, archived_at
		FROM funnel WHERE tenant_id=$1 AND workspace_id=$2 AND id=$3 AND archived_at IS NULL`
	if err := s.pool.QueryRow(ctx, q, tenantID, workspaceID, id).Scan(
		&f.ID, &f.TenantID, &f.WorkspaceID, &f.Name, &f.Description, &f.CreatedAt, &f.ArchivedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound(fmt.Sprintf("funnel %d not found", id))
		}
		return nil, apperr.Internal("get funnel", err)
	}

	versions, err := s.loadVersions(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	f.Versions = versions
	return &f, nil
}

func (s *FunnelStore) loadVersions(ctx context.Context, funnelID int64) ([]*funnel.Version, error) {
	const q = `SELECT id, funnel_id, version, state, created_at FROM funnel_version WHERE funnel_id=$1 ORDER BY version DESC`
	rows, err := s.pool.Query(ctx, q, funnelID)
	if err != nil {
		return nil, apperr.Internal("list versions", err)
	}
	defer rows.Close()

	var versions []*funnel.Version
	for rows.Next() {
		v := &funnel.Version{}
		if err := rows.Scan(&v.ID, &v.FunnelID, &v.Version, &v.State, &v.CreatedAt); err != nil {
			return nil, apperr.Internal("scan version", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, v := range versions {
		steps, err := s.loadSteps(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		v.Steps = steps
	}
	return versions, nil
}

func (s *FunnelStore) loadSteps(ctx context.Context, versionID int64) ([]*funnel.Step, error) {
	const q = `SELECT id, funnel_version_id, order_index, type, label, metadata FROM funnel_step WHERE funnel_version_id=$1 ORDER BY order_index`
	rows, err := s.pool.Query(ctx, q, versionID)
	if err != nil {
		return nil, apperr.Internal("list steps", err)
	}
	defer rows.Close()

	var steps []*funnel.Step
	for rows.Next() {
		st := &funnel.Step{}
		var metaJSON []byte
		if err := rows.Scan(&st.ID, &st.FunnelVersionID, &st.OrderIndex, &st.Type, &st.Label, &metaJSON); err != nil {
			return nil, apperr.Internal("scan step", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &st.Metadata)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, st := range steps {
		matches, err := s.loadMatches(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		st.Matches = matches
	}
	return steps, nil
}

func (s *FunnelStore) loadMatches(ctx context.Context, stepID int64) ([]*funnel.Match, error) {
	const q = `SELECT id, funnel_step_id, kind, rules FROM funnel_step_match WHERE funnel_step_id=$1`
	rows, err := s.pool.Query(ctx, q, stepID)
	if err != nil {
		return nil, apperr.Internal("list matches", err)
	}
	defer rows.Close()

	var matches []*funnel.Match
	for rows.Next() {
		m := &funnel.Match{}
		var rulesJSON []byte
		if err := rows.Scan(&m.ID, &m.FunnelStepID, &m.Kind, &rulesJSON); err != nil {
			return nil, apperr.Internal("scan match", err)
		}
		_ = json.Unmarshal(rulesJSON, &m.Rules)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// List returns page-based, filtered, non-archived-by-default funnels.
func (s *FunnelStore) List(ctx context.Context, tenantID, workspaceID int64, f funnel.ListFilter) ([]*funnel.Funnel, int64, funnel.Summary, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	where := []string{"tenant_id = $1", "workspace_id = $2"}
	args := []any{tenantID, workspaceID}
	if !f.IncludeArchived {
		where = append(where, "archived_at IS NULL")
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	whereClause := "WHERE " + joinAnd(where)
	countQ := "SELECT count(*) FROM funnel " + whereClause
	var total int64
	if err := s.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, funnel.Summary{}, apperr.Internal("count funnels", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	listQ := fmt.Sprintf(`
		SELECT id, tenant_id, workspace_id, name, description, created_at, archived_at
		FROM funnel %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, funnel.Summary{}, apperr.Internal("list funnels", err)
	}
	defer rows.Close()

	var out []*funnel.Funnel
	for rows.Next() {
		fn := &funnel.Funnel{}
		if err := rows.Scan(&fn.ID, &fn.TenantID, &fn.WorkspaceID, &fn.Name, &fn.Description, &fn.CreatedAt, &fn.ArchivedAt); err != nil {
			return nil, 0, funnel.Summary{}, apperr.Internal("scan funnel", err)
		}
		out = append(out, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, funnel.Summary{}, err
	}

	summary, err := s.Summary(ctx, tenantID, workspaceID)
	if err != nil {
		return nil, 0, funnel.Summary{}, err
	}
	return out, total, summary, nil
}

func joinAnd(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " AND " + p
	}
	return out
}

// Update changes name/description in place and, if steps are supplied,
// creates a new draft version (never mutating a published one).
func (s *FunnelStore) Update(ctx context.Context, tenantID, workspaceID, id int64, name, description *string, steps []funnel.StepDefinition) (*funnel.Funnel, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal("begin update", err)
	}
	defer tx.Rollback(ctx)

	if name != nil || description != nil {
		const q = `UPDATE funnel SET name = coalesce($3, name), description = coalesce($4, description)
			WHERE tenant_id=$1 AND workspace_id=$2 AND id=$5 AND archived_at IS NULL`
		tag, err := tx.Exec(ctx, q, tenantID, workspaceID, name, description, id)
		if err != nil {
			return nil, apperr.Internal("update funnel", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperr.NotFound(fmt.Sprintf("funnel %d not found", id))
		}
	}

	if len(steps) > 0 {
		if err := funnel.ValidateDefinition(funnel.Definition{Name: "_", Steps: steps}); err != nil {
			return nil, err
		}

		var maxVersion int
		const maxQ = `SELECT coalesce(max(version), 0) FROM funnel_version WHERE funnel_id=$1`
		if err := tx.QueryRow(ctx, maxQ, id).Scan(&maxVersion); err != nil {
			return nil, apperr.Internal("get max version", err)
		}

		const draftQ = `SELECT count(*) FROM funnel_version WHERE funnel_id=$1 AND state='draft'`
		var draftCount int
		if err := tx.QueryRow(ctx, draftQ, id).Scan(&draftCount); err != nil {
			return nil, apperr.Internal("check draft", err)
		}
		if draftCount > 0 {
			return nil, apperr.Conflict("a draft version already exists for this funnel")
		}

		if _, err := insertVersion(ctx, tx, id, maxVersion+1, funnel.VersionDraft, steps); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal("commit update", err)
	}
	return s.Get(ctx, tenantID, workspaceID, id)
}

// Archive soft-deletes a funnel; idempotent on an already-archived one.
func (s *FunnelStore) Archive(ctx context.Context, tenantID, workspaceID, id int64) (*funnel.Funnel, error) {
	const q = `UPDATE funnel SET archived_at = now() WHERE tenant_id=$1 AND workspace_id=$2 AND id=$3 AND archived_at IS NULL`
	if _, err := s.pool.Exec(ctx, q, tenantID, workspaceID, id); err != nil {
		return nil, apperr.Internal("archive funnel", err)
	}
	return s.getIncludingArchived(ctx, tenantID, workspaceID, id)
}

func (s *FunnelStore) getIncludingArchived(ctx context.Context, tenantID, workspaceID, id int64) (*funnel.Funnel, error) {
	var f funnel.Funnel
	const q = `SELECT id, tenant_id, workspace_id, name, description, created_at, archived_at
		FROM funnel WHERE tenant_id=$1 AND workspace_id=$2 AND id=$3`
	if err := s.pool.QueryRow(ctx, q, tenantID, workspaceID, id).Scan(
		&f.ID, &f.TenantID, &f.WorkspaceID, &f.Name, &f.Description, &f.CreatedAt, &f.ArchivedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound(fmt.Sprintf("funnel %d not found", id))
		}
		return nil, apperr.Internal("get funnel", err)
	}
	versions, err := s.loadVersions(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	f.Versions = versions
	return &f, nil
}

// Publish transitions a version to published and writes an immutable
// Publication snapshot.
func (s *FunnelStore) Publish(ctx context.Context, tenantID, workspaceID, funnelID int64, version, windowDays int, notes string) (*funnel.Publication, error) {
	if windowDays <= 0 {
		return nil, apperr.InvalidSchema("window_days must be > 0", nil)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal("begin publish", err)
	}
	defer tx.Rollback(ctx)

	var versionID int64
	var state funnel.VersionState
	const vq = `SELECT id, state FROM funnel_version WHERE funnel_id=$1 AND version=$2`
	if err := tx.QueryRow(ctx, vq, funnelID, version).Scan(&versionID, &state); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.Conflict("version not found")
		}
		return nil, apperr.Internal("lookup version", err)
	}
	if state == funnel.VersionArchived {
		return nil, apperr.Conflict("cannot publish an archived version")
	}

	if state != funnel.VersionPublished {
		const upd = `UPDATE funnel_version SET state='published' WHERE id=$1`
		if _, err := tx.Exec(ctx, upd, versionID); err != nil {
			return nil, apperr.Internal("publish version", err)
		}
	}

	steps, err := s.loadSteps(ctx, versionID)
	if err != nil {
		return nil, err
	}
	snapshot := &funnel.Version{ID: versionID, FunnelID: funnelID, Version: version, State: funnel.VersionPublished, Steps: steps}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, apperr.Internal("marshal snapshot", err)
	}

	pub := &funnel.Publication{FunnelID: funnelID, Version: version, WindowDays: windowDays, Notes: notes, Snapshot: snapshot}
	const insPub = `INSERT INTO funnel_publication (funnel_id, version, window_days, notes, snapshot_data)
		VALUES ($1,$2,$3,$4,$5) RETURNING id, published_at`
	if err := tx.QueryRow(ctx, insPub, funnelID, version, windowDays, notes, snapshotJSON).Scan(&pub.ID, &pub.PublishedAt); err != nil {
		return nil, apperr.Internal("insert publication", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal("commit publish", err)
	}
	return pub, nil
}

// Summary returns funnel counts by lifecycle state.
func (s *FunnelStore) Summary(ctx context.Context, tenantID, workspaceID int64) (funnel.Summary, error) {
	var sum funnel.Summary
	const q = `
		SELECT
			count(*) FILTER (WHERE archived_at IS NULL),
			count(*) FILTER (WHERE archived_at IS NOT NULL)
		FROM funnel WHERE tenant_id=$1 AND workspace_id=$2`
	var active, archived int64
	if err := s.pool.QueryRow(ctx, q, tenantID, workspaceID).Scan(&active, &archived); err != nil {
		return sum, apperr.Internal("summary", err)
	}
	sum.Archived = archived

	const vq = `
		SELECT
			count(*) FILTER (WHERE v.state = 'draft'),
			count(*) FILTER (WHERE v.state = 'published')
		FROM funnel_version v JOIN funnel f ON f.id = v.funnel_id
		WHERE f.tenant_id=$1 AND f.workspace_id=$2 AND f.archived_at IS NULL`
	if err := s.pool.QueryRow(ctx, vq, tenantID, workspaceID).Scan(&sum.Draft, &sum.Published); err != nil {
		return sum, apperr.Internal("version summary", err)
	}
	sum.Total = active + archived
	return sum, nil
}

// ListActive returns non-archived funnels with at least one published
// version, fully loaded, for the RealtimeStateTracker's active-funnel
// cache (§4.4 step 1).
func (s *FunnelStore) ListActive(ctx context.Context, tenantID, workspaceID int64) ([]*funnel.Funnel, error) {
	const q = `
		SELECT DISTINCT f.id, f.tenant_id, f.workspace_id, f.name, f.description, f.created_at, f.archived_at
		FROM funnel f
		JOIN funnel_version v ON v.funnel_id = f.id AND v.state = 'published'
		WHERE f.tenant_id=$1 AND f.workspace_id=$2 AND f.archived_at IS NULL`
	rows, err := s.pool.Query(ctx, q, tenantID, workspaceID)
	if err != nil {
		return nil, apperr.Internal("list active funnels", err)
	}
	defer rows.Close()

	var funnels []*funnel.Funnel
	for rows.Next() {
		f := &funnel.Funnel{}
		if err := rows.Scan(&f.ID, &f.TenantID, &f.WorkspaceID, &f.Name, &f.Description, &f.CreatedAt, &f.ArchivedAt); err != nil {
			return nil, apperr.Internal("scan active funnel", err)
		}
		funnels = append(funnels, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, f := range funnels {
		versions, err := s.loadVersions(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		f.Versions = versions
	}
	return funnels, nil
}
