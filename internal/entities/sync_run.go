package entities

import (
	"time"
)

type SyncKind string

const (
	SyncKindFull        SyncKind = "full"
	SyncKindIncremental SyncKind = "incremental"
)

// ParseSyncKind accepts "full" or "incremental"; an empty string means incremental.
func ParseSyncKind(s string) (SyncKind, bool) {
	switch SyncKind(s) {
	case "", SyncKindIncremental:
		return SyncKindIncremental, true
	case SyncKindFull:
		return SyncKindFull, true
	default:
		return "", false
	}
}

type SyncStatus string

const (
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusFailed     SyncStatus = "failed"
)

// SyncRun is one execution of the listing sync. It is created in_progress and
// ends either completed or failed; a finished run is never reopened.
type SyncRun struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	RunID     string     `gorm:"uniqueIndex;size:36;not null" json:"run_id"`
	Kind      SyncKind   `gorm:"size:20;not null" json:"kind"`
	Status    SyncStatus `gorm:"index;size:20;not null" json:"status"`
	DryRun    bool       `json:"dry_run"`
	StartedAt time.Time  `gorm:"index" json:"started_at"`
	EndedAt   *time.Time `gorm:"index" json:"ended_at,omitempty"`

	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
	Errors  int `json:"errors"`

	ErrorEntries []SyncRunError `gorm:"foreignKey:SyncRunID;constraint:OnDelete:CASCADE" json:"error_entries,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// IsFinished reports whether the run reached a terminal status.
func (r *SyncRun) IsFinished() bool {
	return r.Status == SyncStatusCompleted || r.Status == SyncStatusFailed
}

// Watermark is the boundary the next incremental run fetches from. Only
// completed runs contribute one.
func (r *SyncRun) Watermark() *time.Time {
	if r.Status != SyncStatusCompleted || r.EndedAt == nil {
		return nil
	}
	t := *r.EndedAt
	return &t
}

// Duration returns how long the run took, or zero while it is still running.
func (r *SyncRun) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// SyncRunError is one error recorded during a run. ExternalID is empty for
// run-level failures.
type SyncRunError struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	SyncRunID  uint      `gorm:"index;not null" json:"-"`
	ExternalID string    `gorm:"size:128" json:"external_id,omitempty"`
	Message    string    `gorm:"type:text" json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (SyncRunError) TableName() string {
	return "sync_run_errors"
}
