package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/domain/exportjob"
)

// ExportStore persists ExportJob lifecycle records for the ExportManager.
type ExportStore struct {
	pool *pgxpool.Pool
}

func NewExportStore(pool *pgxpool.Pool) *ExportStore {
	return &ExportStore{pool: pool}
}

func (s *ExportStore) Create(ctx context.Context, job *exportjob.Job) error {
	cfgJSON, err := json.Marshal(job.Config)
	if err != nil {
		return apperr.InvalidSchema("invalid export config", err)
	}
	const q = `
		INSERT INTO export_job (export_id, tenant_id, workspace_id, funnel_id, config, status,
			total_records, processed_records, estimated_bytes, estimated_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err = s.pool.Exec(ctx, q, job.ExportID, job.TenantID, job.WorkspaceID, job.FunnelID, cfgJSON, job.Status,
		job.TotalRecords, job.ProcessedRecords, job.EstimatedBytes, job.EstimatedMS, job.CreatedAt)
	if err != nil {
		return apperr.Internal("create export job", err)
	}
	return nil
}

func (s *ExportStore) Get(ctx context.Context, tenantID, workspaceID int64, exportID string) (*exportjob.Job, error) {
	const q = `
		SELECT export_id, tenant_id, workspace_id, funnel_id, config, status,
		       total_records, processed_records, estimated_bytes, estimated_ms,
		       file_ref, created_at, started_at, completed_at, error
		FROM export_job WHERE tenant_id=$1 AND workspace_id=$2 AND export_id=$3`
	var job exportjob.Job
	var cfgJSON []byte
	var fileRef, errMsg *string
	err := s.pool.QueryRow(ctx, q, tenantID, workspaceID, exportID).Scan(
		&job.ExportID, &job.TenantID, &job.WorkspaceID, &job.FunnelID, &cfgJSON, &job.Status,
		&job.TotalRecords, &job.ProcessedRecords, &job.EstimatedBytes, &job.EstimatedMS,
		&fileRef, &job.CreatedAt, &job.StartedAt, &job.CompletedAt, &errMsg,
	)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("export job not found")
	}
	if err != nil {
		return nil, apperr.Internal("get export job", err)
	}
	_ = json.Unmarshal(cfgJSON, &job.Config)
	if fileRef != nil {
		job.FileRef = *fileRef
	}
	if errMsg != nil {
		job.Error = *errMsg
	}
	return &job, nil
}

// UpdateProgress is called by the export worker as it streams rows.
func (s *ExportStore) UpdateProgress(ctx context.Context, exportID string, processed int64) error {
	const q = `UPDATE export_job SET processed_records=$2 WHERE export_id=$1 AND status != 'completed' AND status != 'failed'`
	_, err := s.pool.Exec(ctx, q, exportID, processed)
	if err != nil {
		return apperr.Internal("update export progress", err)
	}
	return nil
}

// Transition moves the job to processing/completed/failed. Terminal
// states are enforced immutable by the WHERE clause, per §3's invariant.
func (s *ExportStore) Transition(ctx context.Context, exportID string, status exportjob.Status, fileRef, errMsg *string) error {
	const q = `
		UPDATE export_job SET status=$2, file_ref=coalesce($3, file_ref), error=coalesce($4, error),
			started_at = COALESCE(started_at, CASE WHEN $2 = 'processing' THEN now() END),
			completed_at = CASE WHEN $2 IN ('completed','failed') THEN now() ELSE completed_at END
		WHERE export_id=$1 AND status NOT IN ('completed', 'failed')`
	_, err := s.pool.Exec(ctx, q, exportID, status, fileRef, errMsg)
	if err != nil {
		return apperr.Internal("transition export job", err)
	}
	return nil
}
