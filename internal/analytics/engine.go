package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/victoralfred/funnelengine/internal/apperr"
	"github.com/victoralfred/funnelengine/internal/cache"
	"github.com/victoralfred/funnelengine/internal/domain/funnel"
	"github.com/victoralfred/funnelengine/internal/storage/postgres"
)

// FunnelLookup is the subset of FunnelStore the engine needs to resolve a
// funnel and its latest published version before running any analysis.
type FunnelLookup interface {
	Get(ctx context.Context, tenantID, workspaceID, id int64) (*funnel.Funnel, error)
	PeerFunnelMetrics(ctx context.Context, tenantID, workspaceID, excludeFunnelID int64) ([]postgres.PeerFunnelMetric, error)
}

// Engine implements the AnalyticsEngine of §4.5, generalized from
// backend/internal/services/funnel_service.go's AnalyzeFunnel/
// GetDropoffPoints/AnalyzePaths/CompareFunnels/AnalyzeTimeToConvert/
// AnalyzeAttribution surface from simulated data to real SQL + stats.
type Engine struct {
	funnels Repository
	store   FunnelLookup
	cacheLyr *cache.Layer
	logger  *zap.Logger
}

func NewEngine(repo Repository, store FunnelLookup, cacheLyr *cache.Layer, logger *zap.Logger) *Engine {
	return &Engine{funnels: repo, store: store, cacheLyr: cacheLyr, logger: logger}
}

// windowCap enforces §4.5 step 3's category-specific window caps.
type windowCap struct {
	days int
}

var (
	capShort = windowCap{90}
	capLong  = windowCap{180}
)

func validateWindow(start, end time.Time, cap windowCap) error {
	if !start.Before(end) {
		return apperr.InvalidSchema("start_date must be before end_date", nil)
	}
	if end.Sub(start) > time.Duration(cap.days)*24*time.Hour {
		return apperr.InvalidSchema(fmt.Sprintf("window exceeds %dd cap", cap.days), nil)
	}
	return nil
}

// resolveFunnel loads a non-archived, tenant-scoped funnel with a latest
// published version, per §4.5 step 4.
func (e *Engine) resolveFunnel(ctx context.Context, tenantID, workspaceID, funnelID int64) (*funnel.Funnel, *funnel.Version, error) {
	f, err := e.store.Get(ctx, tenantID, workspaceID, funnelID)
	if err != nil {
		return nil, nil, err
	}
	version := f.LatestPublished()
	if version == nil {
		return nil, nil, apperr.NotFound("funnel has no published version")
	}
	return f, version, nil
}

// Envelope is embedded in every analysis response to satisfy §4.5's
// "cache_hit, processing_time_ms" contract.
type Envelope struct {
	CacheHit           bool  `json:"cache_hit"`
	CacheDurationSeconds int `json:"cache_duration_seconds"`
	ProcessingTimeMS   int64 `json:"processing_time_ms"`
}

func measure(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
