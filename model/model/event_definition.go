package model

import (
	"time"
)

// EventDefinition Per project registry of ingested event names with the
// last time each was seen. Maintained by the ingestion pipeline; read
// here to decide whether a cached result could have gone stale at all.
type EventDefinition struct {
	ProjectID  uint64    `gorm:"primary_key:true" json:"project_id"`
	Name       string    `gorm:"primary_key:true" json:"name"`
	LastSeenAt time.Time `json:"last_seen_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
