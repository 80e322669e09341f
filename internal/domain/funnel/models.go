// Package funnel holds the versioned funnel configuration model: Funnel,
// its immutable Versions, ordered Steps and their Matches, and the
// immutable Publication snapshot taken at publish time. Field and JSON-tag
// conventions follow backend/internal/domain/analytics/models.go; the
// version/step/match split generalizes backend/internal/services/
// funnel_service.go's flat FunnelDefinition/FunnelStep into the spec's
// versioned shape.
package funnel

import "time"

type VersionState string

const (
	VersionDraft     VersionState = "draft"
	VersionPublished VersionState = "published"
	VersionArchived  VersionState = "archived"
)

type StepType string

const (
	StepStart      StepType = "start"
	StepPage       StepType = "page"
	StepEvent      StepType = "event"
	StepDecision   StepType = "decision"
	StepConversion StepType = "conversion"
)

type MatchKind string

const (
	MatchEventName      MatchKind = "event_name"
	MatchPageURL        MatchKind = "page_url"
	MatchPageTitle      MatchKind = "page_title"
	MatchUTMSource      MatchKind = "utm_source"
	MatchCustomProperty MatchKind = "custom_property"
)

// Funnel is the logical, tenant-scoped funnel container. Its Versions are
// loaded on demand; Get returns them, List does not.
type Funnel struct {
	ID          int64      `json:"id"`
	ExternalID  string     `json:"funnel_id"`
	TenantID    int64      `json:"tenant_id"`
	WorkspaceID int64      `json:"workspace_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	Versions    []*Version `json:"versions,omitempty"`
}

func (f *Funnel) IsArchived() bool { return f.ArchivedAt != nil }

// LatestPublished returns the highest-numbered published version, or nil.
func (f *Funnel) LatestPublished() *Version {
	var best *Version
	for _, v := range f.Versions {
		if v.State != VersionPublished {
			continue
		}
		if best == nil || v.Version > best.Version {
			best = v
		}
	}
	return best
}

// Draft returns the single in-progress draft version, or nil.
func (f *Funnel) Draft() *Version {
	for _, v := range f.Versions {
		if v.State == VersionDraft {
			return v
		}
	}
	return nil
}

type Version struct {
	ID        int64        `json:"id"`
	FunnelID  int64        `json:"funnel_id"`
	Version   int          `json:"version"`
	State     VersionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	Steps     []*Step      `json:"steps"`
}

type Step struct {
	ID              int64     `json:"id"`
	FunnelVersionID int64     `json:"funnel_version_id"`
	OrderIndex      int       `json:"order_index"`
	Type            StepType  `json:"type"`
	Label           string    `json:"label"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Matches         []*Match  `json:"matches"`
}

// Match is a kind-specific matching rule. Rules is a free-form map so each
// kind can carry its own shape (e.g. {"value": "purchase"} for event_name,
// {"pattern": "/checkout*"} for page_url).
type Match struct {
	ID         int64     `json:"id"`
	FunnelStepID int64   `json:"funnel_step_id"`
	Kind       MatchKind `json:"kind"`
	Rules      map[string]any `json:"rules"`
}

// Publication is an immutable snapshot of a version at the moment it was
// published; SnapshotData is a deep copy, never a live reference.
type Publication struct {
	ID          int64     `json:"id"`
	FunnelID    int64     `json:"funnel_id"`
	Version     int       `json:"version"`
	PublishedAt time.Time `json:"published_at"`
	WindowDays  int       `json:"window_days"`
	Notes       string    `json:"notes,omitempty"`
	Snapshot    *Version  `json:"snapshot_data"`
}

// Definition is the create/update request payload: a version's worth of
// steps and matches, not yet persisted.
type Definition struct {
	Name        string
	Description string
	Steps       []StepDefinition
}

type StepDefinition struct {
	OrderIndex int
	Type       StepType
	Label      string
	Metadata   map[string]any
	Matches    []MatchDefinition
}

type MatchDefinition struct {
	Kind  MatchKind
	Rules map[string]any
}

// ListFilter narrows List results.
type ListFilter struct {
	Page            int
	Limit           int
	Search          string
	State           VersionState
	IncludeArchived bool
}

type Summary struct {
	Total     int64 `json:"total"`
	Draft     int64 `json:"draft"`
	Published int64 `json:"published"`
	Archived  int64 `json:"archived"`
}
