package postgres

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"insightcache/model/model"
)

func (store *Postgres) UpsertEventDefinition(projectID uint64, name string, lastSeenAt time.Time) int {
	result := store.db().Model(&model.EventDefinition{}).
		Where("project_id = ? AND name = ?", projectID, name).
		Update("last_seen_at", lastSeenAt)
	if result.Error != nil {
		log.WithError(result.Error).Error("Failed to update event definition")
		return http.StatusInternalServerError
	}
	if result.RowsAffected > 0 {
		return http.StatusAccepted
	}

	definition := model.EventDefinition{ProjectID: projectID, Name: name, LastSeenAt: lastSeenAt}
	if err := store.db().Create(&definition).Error; err != nil {
		log.WithError(err).Error("Failed to create event definition")
		return http.StatusInternalServerError
	}
	return http.StatusCreated
}

// GetLastEventIngestion Latest last_seen_at across the given event
// names. NotFound when none of the names have ever been ingested.
func (store *Postgres) GetLastEventIngestion(projectID uint64, eventNames []string) (*time.Time, int) {
	if len(eventNames) == 0 {
		return nil, http.StatusNotFound
	}

	var definition model.EventDefinition
	err := store.db().
		Where("project_id = ? AND name IN (?)", projectID, eventNames).
		Order("last_seen_at DESC").
		First(&definition).Error
	if err != nil {
		return nil, http.StatusNotFound
	}
	return &definition.LastSeenAt, http.StatusFound
}

// RecentlyActiveProjects Fallback used when the recency index is cold.
func (store *Postgres) RecentlyActiveProjects(since time.Time) ([]uint64, int) {
	var projectIDs []uint64
	err := store.db().Model(&model.EventDefinition{}).
		Where("last_seen_at > ?", since).
		Pluck("DISTINCT project_id", &projectIDs).Error
	if err != nil {
		log.WithError(err).Error("Failed to get recently active projects")
		return nil, http.StatusInternalServerError
	}
	if len(projectIDs) == 0 {
		return nil, http.StatusNotFound
	}
	return projectIDs, http.StatusFound
}
