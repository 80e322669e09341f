package export

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/victoralfred/funnelengine/internal/analytics"
	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/domain/exportjob"
)

const (
	maxExportWindowDays = 180
	journeyFetchLimit   = 50_000
	maxPathLength       = 25
)

// Manager owns the ExportJob lifecycle (§4.6): creating a job record,
// rendering the requested format from real query results, and persisting
// the terminal state. Rendering runs synchronously within Submit for
// simplicity — generalized from job_service.go's create-then-process split,
// collapsed because exports have no queue-wide fairness concern the way
// arbitrary background jobs do.
type Manager struct {
	store    Store
	engine   *analytics.Engine
	journeys analytics.Repository
	logger   *zap.Logger
	dir      string
}

func NewManager(store Store, engine *analytics.Engine, journeys analytics.Repository, logger *zap.Logger, dir string) *Manager {
	return &Manager{store: store, engine: engine, journeys: journeys, logger: logger, dir: dir}
}

// Submit creates the job record, renders the export inline, and returns the
// job in its terminal state. The caller (orchestrator) is responsible for
// exposing ExportID immediately and polling Get for longer-running exports;
// Process is also exported so a future worker can move rendering off the
// request path without changing the on-disk job contract.
func (m *Manager) Submit(ctx context.Context, tenantID, workspaceID, funnelID int64, req exportjob.Request) (*exportjob.Job, error) {
	if !req.Start.Before(req.End) {
		return nil, apperr.InvalidSchema("start must be before end", nil)
	}
	if req.End.Sub(req.Start) > maxExportWindowDays*24*time.Hour {
		return nil, apperr.InvalidSchema("export window exceeds 180d cap", nil)
	}

	job := &exportjob.Job{
		ExportID:    uuid.New().String(),
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		FunnelID:    funnelID,
		Config:      req,
		Status:      exportjob.StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := m.Process(ctx, job); err != nil {
		m.logger.Error("export processing failed", zap.String("export_id", job.ExportID), zap.Error(err))
		errMsg := err.Error()
		_ = m.store.Transition(ctx, job.ExportID, exportjob.StatusFailed, nil, &errMsg)
		return m.store.Get(ctx, tenantID, workspaceID, job.ExportID)
	}
	return m.store.Get(ctx, tenantID, workspaceID, job.ExportID)
}

func (m *Manager) Get(ctx context.Context, tenantID, workspaceID int64, exportID string) (*exportjob.Job, error) {
	return m.store.Get(ctx, tenantID, workspaceID, exportID)
}

// Process renders job's requested format and transitions it to a terminal
// state. It is safe to call at most once per job — both state transitions
// are guarded server-side by export_store.Transition's WHERE clause.
func (m *Manager) Process(ctx context.Context, job *exportjob.Job) error {
	if err := m.store.Transition(ctx, job.ExportID, exportjob.StatusProcessing, nil, nil); err != nil {
		return err
	}

	data, recordCount, err := m.render(ctx, job)
	if err != nil {
		return err
	}

	job.EstimatedBytes = int64(len(data))
	job.TotalRecords = recordCount
	job.ProcessedRecords = recordCount
	if err := m.store.UpdateProgress(ctx, job.ExportID, recordCount); err != nil {
		return err
	}

	fileRef, err := persistLocally(m.dir, job.ExportID, job.Config.Format, data)
	if err != nil {
		return err
	}
	return m.store.Transition(ctx, job.ExportID, exportjob.StatusCompleted, &fileRef, nil)
}

func (m *Manager) render(ctx context.Context, job *exportjob.Job) ([]byte, int64, error) {
	cfg := job.Config

	var summary *analytics.ConversionAnalysis
	var rows []row

	switch cfg.Type {
	case exportjob.TypeSummary:
		s, err := m.engine.AnalyzeConversion(ctx, analytics.ConversionRequest{
			TenantID: job.TenantID, WorkspaceID: job.WorkspaceID, FunnelID: job.FunnelID,
			Start: cfg.Start, End: cfg.End,
		})
		if err != nil {
			return nil, 0, err
		}
		summary = s
	default:
		journeys, err := m.journeys.UserJourneys(ctx, job.TenantID, job.WorkspaceID, job.FunnelID, maxPathLength, journeyFetchLimit, cfg.Start, cfg.End)
		if err != nil {
			return nil, 0, err
		}
		rows = rowsFromJourneys(journeys, cfg.Anonymize)
	}

	switch cfg.Format {
	case exportjob.FormatJSON:
		data, err := writeJSONExport(job.FunnelID, rows, summary, time.Now())
		return data, int64(len(rows)), err
	case exportjob.FormatExcel:
		if summary != nil {
			data, err := writeExcelSummary(summary.StepMetrics)
			return data, int64(len(summary.StepMetrics)), err
		}
		data, err := writeExcelDetailed(rows)
		return data, int64(len(rows)), err
	default:
		if summary != nil {
			data, err := writeCSVSummary(summary.StepMetrics)
			return data, int64(len(summary.StepMetrics)), err
		}
		data, err := writeCSVDetailed(rows)
		return data, int64(len(rows)), err
	}
}
