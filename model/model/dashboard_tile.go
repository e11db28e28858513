package model

import (
	"time"
)

// DashboardTile Binding of one insight to one dashboard. Carries its
// own refresh state and fingerprint, independent of the insight's,
// because the effective query on a dashboard may differ from the
// insight's standalone query.
type DashboardTile struct {
	// Composite primary key, id + project_id.
	ID          uint64 `gorm:"primary_key:true" json:"id"`
	ProjectID   uint64 `gorm:"primary_key:true" json:"project_id"`
	DashboardID uint64 `gorm:"not null" json:"dashboard_id"`
	InsightID   uint64 `gorm:"not null" json:"insight_id"`

	FiltersHash *string    `json:"filters_hash"`
	LastRefresh *time.Time `json:"last_refresh"`
	// RefreshAttempt Null means never attempted, zero means reset by a
	// success. Kept distinct deliberately.
	RefreshAttempt *int32 `json:"refresh_attempt"`
	Refreshing     bool   `gorm:"not null;default:false" json:"refreshing"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefreshAttemptCount Null-safe read of the failure counter.
func (tile *DashboardTile) RefreshAttemptCount() int32 {
	if tile.RefreshAttempt == nil {
		return 0
	}
	return *tile.RefreshAttempt
}

func IsValidDashboardTile(tile *DashboardTile) (bool, string) {
	if tile.ProjectID == 0 {
		return false, "Invalid project"
	}
	if tile.DashboardID == 0 {
		return false, "Invalid dashboard"
	}
	if tile.InsightID == 0 {
		return false, "Invalid insight"
	}
	return true, ""
}
