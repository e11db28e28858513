package postgres

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	"insightcache/model/model"
)

func (store *Postgres) CreateDashboard(dashboard *model.Dashboard) (*model.Dashboard, int) {
	if dashboard.ProjectID == 0 {
		return nil, http.StatusBadRequest
	}

	if dashboard.Shared && dashboard.ShareToken == "" {
		dashboard.ShareToken = uuid.New().String()
	}

	if err := store.db().Create(dashboard).Error; err != nil {
		log.WithError(err).WithField("ProjectID", dashboard.ProjectID).
			Error("Failed to create dashboard")
		return nil, http.StatusInternalServerError
	}
	return dashboard, http.StatusCreated
}

func (store *Postgres) GetDashboard(projectID, dashboardID uint64) (*model.Dashboard, int) {
	var dashboard model.Dashboard
	err := store.db().Where("project_id = ? AND id = ? AND is_deleted = ?",
		projectID, dashboardID, false).First(&dashboard).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}
		log.WithError(err).Error("Failed to get dashboard")
		return nil, http.StatusInternalServerError
	}
	return &dashboard, http.StatusFound
}
