// Package exportjob models the asynchronous export request and its
// lifecycle record, narrowed from the teacher's generic job system
// (backend/internal/domain/job/interfaces.go's Job/JobStatus/retry
// concepts) down to the single ExportJob type spec.md §4.6 describes.
package exportjob

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "excel"
)

type Type string

const (
	TypeSummary    Type = "summary"
	TypeDetailed   Type = "detailed"
	TypeRawEvents  Type = "raw_events"
)

type Delivery string

const (
	DeliveryDownload Delivery = "download"
	DeliveryEmail    Delivery = "email"
)

// Request is the inbound configuration for a new export.
type Request struct {
	Type       Type
	Format     Format
	Delivery   Delivery
	Email      string
	Start      time.Time
	End        time.Time
	Anonymize  bool
	IncludeCohort      bool
	IncludeAttribution bool
}

// Job is the persisted lifecycle record.
type Job struct {
	ExportID        string
	TenantID        int64
	WorkspaceID     int64
	FunnelID        int64
	Config          Request
	Status          Status
	TotalRecords    int64
	ProcessedRecords int64
	EstimatedBytes  int64
	EstimatedMS     int64
	FileRef         string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Error           string
}

// ProgressPercent implements the status-query rounding rule in §4.6.
func (j *Job) ProgressPercent() int {
	if j.TotalRecords <= 0 {
		return 0
	}
	return int((float64(j.ProcessedRecords)/float64(j.TotalRecords))*100 + 0.5)
}

// DownloadExpiresAt is valid only once the job is completed; the spec fixes
// the download window at 24h after completion.
func (j *Job) DownloadExpiresAt() *time.Time {
	if j.Status != StatusCompleted || j.CompletedAt == nil {
		return nil
	}
	t := j.CompletedAt.Add(24 * time.Hour)
	return &t
}

func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
