// Package postgres implements the FunnelStore and EventStore/
// AnalyticsRepository read/write paths against Postgres via pgx, grounded
// on backend/internal/repositories/analytics/postgres_event_repository.go's
// filter-building and $N-placeholder conventions, generalized from a
// single generic event table to the full §4.3 query surface.
package postgres

import "time"

type SegmentConversion struct {
	Segment     string
	Entries     int64
	Conversions int64
}

type TimeSeriesPoint struct {
	Bucket      time.Time
	Entries     int64
	Conversions int64
}

type PeerFunnelMetric struct {
	FunnelID int64
	Rate     float64
	Entries  int64
}

type StepDropoff struct {
	StepOrder      int
	Entries        int64
	Exits          int64
	AvgTimeBeforeExitSeconds float64
	ExitVelocity   string // immediate, quick, delayed, hesitant
}

type ExitPath struct {
	StepOrder         int
	ImmediateBounces  int64
	DelayedExits      int64
}

type Cohort struct {
	Period        time.Time
	Size          int64
	DeviceBreakdown map[string]int64
	UTMBreakdown    map[string]int64
	GeoBreakdown    map[string]int64
}

type CohortProgressionRow struct {
	Period  time.Time
	Size    int64
	Reached map[int]int64 // step order -> users reached
}

type RetentionPoint struct {
	Period    time.Time
	PeriodIdx int // 0..4
	Retained  int64
}

type TimingDistribution struct {
	P10, P25, P50, P75, P90, P95, P99 float64
	Mean, StdDev, Min, Max             float64
	Buckets                            map[string]int64 // "0-5m", "5-15m", ...
}

type StepTiming struct {
	StepOrder        int
	AvgSeconds       float64
	MedianSeconds    float64
	P90Seconds       float64
	UserCount        int64
	AbandonmentRate  float64
}

type VelocityTrend struct {
	Period        time.Time
	AvgSeconds    float64
	MedianSeconds float64
}

type SegmentTiming struct {
	Dimension  string
	Segment    string
	UserCount  int64
	AvgSeconds float64
}

type LiveMetrics struct {
	ActiveSessions   int64
	EntriesLastHour  int64
	ConversionsLastHour int64
	CurrentRate      float64
	StepDistribution map[int]int64
	PerMinuteTrend   []TimeSeriesPoint
}

type StuckStep struct {
	StepOrder  int
	StuckUsers int64
}

type UserJourneyEvent struct {
	EventName        string
	Timestamp        time.Time
	StepType         string
	StepIdentifier   string
	TimeSpentSeconds float64
}

type UserJourney struct {
	AnonymousID string
	Events      []UserJourneyEvent
	Converted   bool
	CompletedAt *time.Time
}

type TouchpointRecord struct {
	AnonymousID string
	Type        string // paid_search, organic_search, direct, social, referral
	Source      string
	Medium      string
	Timestamp   time.Time
	Converted   bool
	ConvertedAt *time.Time
}
