// Package export implements the ExportManager of §4.6: job lifecycle,
// CSV/JSON/Excel rendering and anonymization for funnel data exports.
// Job persistence mirrors backend/internal/services/job_service.go's
// create/enqueue/process shape, narrowed from that generic in-memory job
// queue to the single persisted ExportJob record spec.md names, and backed
// by storage/postgres.ExportStore instead of an in-process map.
package export

import (
	"context"

	"github.com/victoralfred/funnelengine/internal/domain/exportjob"
)

// Store is the persistence surface the Manager depends on, implemented by
// storage/postgres.ExportStore.
type Store interface {
	Create(ctx context.Context, job *exportjob.Job) error
	Get(ctx context.Context, tenantID, workspaceID int64, exportID string) (*exportjob.Job, error)
	UpdateProgress(ctx context.Context, exportID string, processed int64) error
	Transition(ctx context.Context, exportID string, status exportjob.Status, fileRef, errMsg *string) error
}
