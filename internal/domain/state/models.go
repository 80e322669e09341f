// Package state models UserFunnelState, the per-(user,funnel) progress
// record the RealtimeStateTracker maintains. Shaped like the teacher's
// other per-user lifecycle records (session/auth state structs): plain
// timestamps plus a status enum, no behavior beyond simple transitions.
package state

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

type UserFunnelState struct {
	TenantID        int64      `json:"tenant_id"`
	WorkspaceID     int64      `json:"workspace_id"`
	FunnelID        int64      `json:"funnel_id"`
	FunnelVersionID int64      `json:"funnel_version_id"`
	AnonymousID     string     `json:"anonymous_id"`
	LeadID          *string    `json:"lead_id,omitempty"`
	CurrentStepIndex int       `json:"current_step_index"`
	EnteredAt       time.Time  `json:"entered_at"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ExitedAt        *time.Time `json:"exited_at,omitempty"`
	Status          Status     `json:"status"`
}

// Key uniquely identifies the state row per the §3 uniqueness invariant.
type Key struct {
	TenantID    int64
	WorkspaceID int64
	FunnelID    int64
	AnonymousID string
}

func (s *UserFunnelState) Key() Key {
	return Key{TenantID: s.TenantID, WorkspaceID: s.WorkspaceID, FunnelID: s.FunnelID, AnonymousID: s.AnonymousID}
}

// Abandon marks the state abandoned if it is still active and has been
// idle beyond windowDays, relative to "now".
func (s *UserFunnelState) Abandon(now time.Time, windowDays int) bool {
	if s.Status != StatusActive {
		return false
	}
	if now.Sub(s.LastActivityAt) <= time.Duration(windowDays)*24*time.Hour {
		return false
	}
	s.Status = StatusAbandoned
	s.ExitedAt = &now
	return true
}
