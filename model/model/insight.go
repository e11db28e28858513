package model

import (
	"time"

	"github.com/jinzhu/gorm/dialects/postgres"

	U "insightcache/util"
)

// Insight A saved analytical query shown on dashboards or shared
// standalone. Refresh bookkeeping columns are mutated only by the
// refresh pipeline and the user triggered synchronous refresh.
type Insight struct {
	// Composite primary key, id + project_id.
	ID        uint64 `gorm:"primary_key:true" json:"id"`
	ProjectID uint64 `gorm:"primary_key:true" json:"project_id"`
	Name      string `json:"name"`

	Filters postgres.Jsonb `gorm:"not null" json:"filters"`

	// FiltersHash Fingerprint last known correct for this insight in
	// isolation, i.e. outside any dashboard context.
	FiltersHash *string    `json:"filters_hash"`
	LastRefresh *time.Time `json:"last_refresh"`
	// RefreshAttempt Consecutive failure count. Null means never
	// attempted; zero means attempted and reset by a success.
	RefreshAttempt *int32 `json:"refresh_attempt"`
	Refreshing     bool   `gorm:"not null;default:false" json:"refreshing"`

	// Shared Insight is published standalone, independent of dashboards.
	Shared     bool   `gorm:"not null;default:false" json:"shared"`
	ShareToken string `json:"share_token"`

	IsDeleted bool      `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (insight *Insight) HasEmptyFilters() bool {
	return U.IsEmptyPostgresJsonb(&insight.Filters)
}

// RefreshAttemptCount Null-safe read of the failure counter.
func (insight *Insight) RefreshAttemptCount() int32 {
	if insight.RefreshAttempt == nil {
		return 0
	}
	return *insight.RefreshAttempt
}

func IsValidInsight(insight *Insight) (bool, string) {
	if insight.ProjectID == 0 {
		return false, "Invalid project"
	}
	if insight.HasEmptyFilters() {
		return false, "Empty filters"
	}
	return true, ""
}
