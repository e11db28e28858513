package model

import (
	"time"

	"github.com/jinzhu/gorm/dialects/postgres"

	U "insightcache/util"
)

// Dashboard A collection of insights. May carry a filter override that
// applies on top of every insight displayed on it.
type Dashboard struct {
	// Composite primary key, id + project_id.
	ID        uint64 `gorm:"primary_key:true" json:"id"`
	ProjectID uint64 `gorm:"primary_key:true" json:"project_id"`
	Name      string `json:"name"`

	// Filters Optional query definition override ("dashboard filters").
	Filters postgres.Jsonb `json:"filters"`

	LastAccessedAt *time.Time `json:"last_accessed_at"`

	Shared     bool   `gorm:"not null;default:false" json:"shared"`
	ShareToken string `json:"share_token"`

	IsDeleted bool      `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasFilterOverride Whether the dashboard overrides insight filters at all.
func (dashboard *Dashboard) HasFilterOverride() bool {
	return !U.IsEmptyPostgresJsonb(&dashboard.Filters)
}

// OverrideMatchesInsight True when the dashboard has no override, or its
// override is field-equal to the insight's own definition. In both
// cases a tile on this dashboard fingerprints identically to the
// insight standalone.
func (dashboard *Dashboard) OverrideMatchesInsight(insight *Insight) bool {
	if !dashboard.HasFilterOverride() {
		return true
	}
	return U.IsEqualPostgresJsonb(&dashboard.Filters, &insight.Filters)
}
