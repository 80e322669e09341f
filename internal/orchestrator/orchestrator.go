// Package orchestrator is the transport-agnostic dispatcher in front of
// the domain: tenant scoping, input-size caps and apperr-to-transport error
// translation, generalized from internal/handlers/analytics_handler.go
// with the gin/JSON binding stripped out so any transport (HTTP, gRPC, a
// CLI) can sit in front of the same request/response shapes.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/victoralfred/funnelengine/internal/analytics"
	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/domain/event"
	"github.com/victoralfred/funnelengine/internal/domain/exportjob"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
	"github.com/victoralfred/funnelengine/internal/domain/state"
	"github.com/victoralfred/funnelengine/internal/export"
	"github.com/victoralfred/funnelengine/internal/realtime"
)

const maxListLimit = 200

// FunnelStore is the subset of storage/postgres.FunnelStore the
// orchestrator depends on for CRUD/publication operations.
type FunnelStore interface {
	Create(ctx context.Context, tenantID, workspaceID int64, def funnel.Definition) (*funnel.Funnel, error)
	Get(ctx context.Context, tenantID, workspaceID, id int64) (*funnel.Funnel, error)
	List(ctx context.Context, tenantID, workspaceID int64, f funnel.ListFilter) ([]*funnel.Funnel, int64, funnel.Summary, error)
	Update(ctx context.Context, tenantID, workspaceID, id int64, name, description *string, steps []funnel.StepDefinition) (*funnel.Funnel, error)
	Archive(ctx context.Context, tenantID, workspaceID, id int64) (*funnel.Funnel, error)
	Publish(ctx context.Context, tenantID, workspaceID, funnelID int64, version, windowDays int, notes string) (*funnel.Publication, error)
	Summary(ctx context.Context, tenantID, workspaceID int64) (funnel.Summary, error)
}

// UserStateStore is the subset of storage/postgres.StateStore the
// orchestrator depends on to answer the `/users/{userId}` progression
// lookup directly, bypassing the analytics cache since it is a single-row
// read rather than an aggregate query.
type UserStateStore interface {
	Get(ctx context.Context, key state.Key) (*state.UserFunnelState, error)
}

type Orchestrator struct {
	funnels    FunnelStore
	engine     *analytics.Engine
	tracker    *realtime.Tracker
	exports    *export.Manager
	userStates UserStateStore
	logger     *zap.Logger
}

func New(funnels FunnelStore, engine *analytics.Engine, tracker *realtime.Tracker, exports *export.Manager, userStates UserStateStore, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{funnels: funnels, engine: engine, tracker: tracker, exports: exports, userStates: userStates, logger: logger}
}

// Scope carries the tenant/workspace pair every request is bound to; the
// orchestrator never trusts IDs embedded in a request body over this.
type Scope struct {
	TenantID    int64
	WorkspaceID int64
}

func (o *Orchestrator) CreateFunnel(ctx context.Context, scope Scope, def funnel.Definition) (*funnel.Funnel, error) {
	if err := funnel.ValidateDefinition(def); err != nil {
		return nil, err
	}
	return o.funnels.Create(ctx, scope.TenantID, scope.WorkspaceID, def)
}

func (o *Orchestrator) GetFunnel(ctx context.Context, scope Scope, id int64) (*funnel.Funnel, error) {
	return o.funnels.Get(ctx, scope.TenantID, scope.WorkspaceID, id)
}

func (o *Orchestrator) ListFunnels(ctx context.Context, scope Scope, filter funnel.ListFilter) ([]*funnel.Funnel, int64, funnel.Summary, error) {
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	return o.funnels.List(ctx, scope.TenantID, scope.WorkspaceID, filter)
}

func (o *Orchestrator) UpdateFunnel(ctx context.Context, scope Scope, id int64, name, description *string, steps []funnel.StepDefinition) (*funnel.Funnel, error) {
	return o.funnels.Update(ctx, scope.TenantID, scope.WorkspaceID, id, name, description, steps)
}

func (o *Orchestrator) ArchiveFunnel(ctx context.Context, scope Scope, id int64) (*funnel.Funnel, error) {
	return o.funnels.Archive(ctx, scope.TenantID, scope.WorkspaceID, id)
}

func (o *Orchestrator) PublishFunnel(ctx context.Context, scope Scope, funnelID int64, version, windowDays int, notes string) (*funnel.Publication, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	pub, err := o.funnels.Publish(ctx, scope.TenantID, scope.WorkspaceID, funnelID, version, windowDays, notes)
	if err != nil {
		return nil, err
	}
	if o.tracker != nil {
		o.tracker.InvalidateActiveFunnels(scope.TenantID, scope.WorkspaceID)
	}
	return pub, nil
}

// IngestEvent hands a raw event to the RealtimeStateTracker. Per §4.4 this
// never surfaces a processing error to the caller — ingestion acknowledges
// receipt regardless of matching outcome.
func (o *Orchestrator) IngestEvent(ctx context.Context, ev *event.Event) {
	o.tracker.Process(ctx, ev)
}

func (o *Orchestrator) Conversion(ctx context.Context, scope Scope, funnelID int64, start, end time.Time, includeSegments, includeSeries bool, granularity string) (*analytics.ConversionAnalysis, error) {
	return o.engine.AnalyzeConversion(ctx, analytics.ConversionRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID,
		Start: start, End: end, IncludeSegments: includeSegments, IncludeTimeSeries: includeSeries, Granularity: granularity,
	})
}

func (o *Orchestrator) DropOff(ctx context.Context, scope Scope, funnelID int64, start, end time.Time, includeExitPaths bool) (*analytics.DropOffAnalysis, error) {
	return o.engine.AnalyzeDropOff(ctx, analytics.DropOffRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID,
		Start: start, End: end, IncludeExitPaths: includeExitPaths,
	})
}

func (o *Orchestrator) Cohorts(ctx context.Context, scope Scope, funnelID int64, start, end time.Time, period string, includeProgression bool) (*analytics.CohortAnalysis, error) {
	return o.engine.AnalyzeCohorts(ctx, analytics.CohortRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID,
		Start: start, End: end, Period: period, IncludeProgression: includeProgression,
	})
}

func (o *Orchestrator) Timing(ctx context.Context, scope Scope, funnelID int64, start, end time.Time, period string) (*analytics.TimingAnalysis, error) {
	return o.engine.AnalyzeTiming(ctx, analytics.TimingRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID,
		Start: start, End: end, Period: period,
	})
}

func (o *Orchestrator) Bottlenecks(ctx context.Context, scope Scope, funnelID int64, start, end time.Time, sensitivity analytics.Sensitivity) (*analytics.BottleneckAnalysis, error) {
	return o.engine.DetectBottlenecks(ctx, analytics.BottleneckRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID,
		Start: start, End: end, Sensitivity: sensitivity,
	})
}

func (o *Orchestrator) Paths(ctx context.Context, scope Scope, funnelID int64, start, end time.Time) (*analytics.PathAnalysis, error) {
	return o.engine.AnalyzePaths(ctx, analytics.PathRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID,
		Start: start, End: end,
	})
}

func (o *Orchestrator) Attribution(ctx context.Context, scope Scope, funnelID int64, start, end time.Time, models []analytics.AttributionModel) (*analytics.AttributionAnalysis, error) {
	return o.engine.AnalyzeAttribution(ctx, analytics.AttributionRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID,
		Start: start, End: end, Models: models,
	})
}

func (o *Orchestrator) Compare(ctx context.Context, scope Scope, funnelIDs []int64, start, end time.Time, abTest *analytics.ABTestConfig) (*analytics.ComparisonAnalysis, error) {
	if len(funnelIDs) < 2 {
		return nil, apperr.InvalidSchema("comparison requires at least two funnel_ids", nil)
	}
	return o.engine.CompareFunnels(ctx, analytics.CompareRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelIDs: funnelIDs,
		Start: start, End: end, ABTest: abTest,
	})
}

// Live answers `GET .../funnels/{id}/live` — the always-fresh dashboard
// tile backed by the 30s `liveMetrics` cache class.
func (o *Orchestrator) Live(ctx context.Context, scope Scope, funnelID int64) (*analytics.LiveMetricsAnalysis, error) {
	return o.engine.LiveMetrics(ctx, analytics.LiveRequest{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID,
	})
}

// UserProgression answers `GET .../funnels/{id}/users/{userId}` — the raw
// UserFunnelState for one anonymous_id, or not_found if the user has never
// matched a step of this funnel.
func (o *Orchestrator) UserProgression(ctx context.Context, scope Scope, funnelID int64, anonymousID string) (*state.UserFunnelState, error) {
	st, err := o.userStates.Get(ctx, state.Key{
		TenantID: scope.TenantID, WorkspaceID: scope.WorkspaceID, FunnelID: funnelID, AnonymousID: anonymousID,
	})
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apperr.NotFound("no progression recorded for this user on this funnel")
	}
	return st, nil
}

func (o *Orchestrator) SubmitExport(ctx context.Context, scope Scope, funnelID int64, req exportjob.Request) (*exportjob.Job, error) {
	return o.exports.Submit(ctx, scope.TenantID, scope.WorkspaceID, funnelID, req)
}

func (o *Orchestrator) GetExport(ctx context.Context, scope Scope, exportID string) (*exportjob.Job, error) {
	return o.exports.Get(ctx, scope.TenantID, scope.WorkspaceID, exportID)
}
