package postgres

import (
	"net/http"
	"time"

	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	C "insightcache/config"
	"insightcache/model/model"
	U "insightcache/util"
)

func (store *Postgres) CreateDashboardTile(tile *model.DashboardTile) (*model.DashboardTile, int) {
	if valid, errMsg := model.IsValidDashboardTile(tile); !valid {
		log.WithFields(log.Fields{"ProjectID": tile.ProjectID, "ErrMsg": errMsg}).
			Error("CreateDashboardTile validation failed")
		return nil, http.StatusBadRequest
	}

	if err := store.db().Create(tile).Error; err != nil {
		log.WithError(err).Error("Failed to create dashboard tile")
		return nil, http.StatusInternalServerError
	}
	return tile, http.StatusCreated
}

func (store *Postgres) GetDashboardTile(projectID, tileID uint64) (*model.DashboardTile, int) {
	var tile model.DashboardTile
	err := store.db().Where("project_id = ? AND id = ?", projectID, tileID).First(&tile).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}
		log.WithError(err).Error("Failed to get dashboard tile")
		return nil, http.StatusInternalServerError
	}
	return &tile, http.StatusFound
}

func (store *Postgres) GetDashboardTileByBinding(projectID, dashboardID, insightID uint64) (*model.DashboardTile, int) {
	var tile model.DashboardTile
	err := store.db().Where("project_id = ? AND dashboard_id = ? AND insight_id = ?",
		projectID, dashboardID, insightID).First(&tile).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}
		log.WithError(err).Error("Failed to get dashboard tile by binding")
		return nil, http.StatusInternalServerError
	}
	return &tile, http.StatusFound
}

// tileCandidateScope Staleness predicate for the dashboard tile stream:
// active project, live dashboard that is shared or recently accessed,
// live insight with a runnable query, not already refreshing, under the
// attempt ceiling and outside the debounce window.
func (store *Postgres) tileCandidateScope(projectIDs []uint64) *gorm.DB {
	debounceBefore := U.TimeNow().Add(-C.GetRefreshDebounceWindow())
	accessedAfter := U.TimeNow().Add(-C.GetRecentDashboardWindow())

	return store.db().Table("dashboard_tiles").
		Joins("JOIN dashboards ON dashboards.id = dashboard_tiles.dashboard_id AND dashboards.project_id = dashboard_tiles.project_id").
		Joins("JOIN insights ON insights.id = dashboard_tiles.insight_id AND insights.project_id = dashboard_tiles.project_id").
		Where("dashboard_tiles.project_id IN (?)", projectIDs).
		Where("dashboards.is_deleted = ?", false).
		Where("dashboards.shared = ? OR dashboards.last_accessed_at > ?", true, accessedAfter).
		Where("insights.is_deleted = ?", false).
		Where("insights.filters IS NOT NULL AND insights.filters::text != '{}'").
		Where("dashboard_tiles.refreshing = ?", false).
		Where("COALESCE(dashboard_tiles.refresh_attempt, 0) <= ?", C.GetMaxRefreshAttempts()).
		Where("dashboard_tiles.last_refresh IS NULL OR dashboard_tiles.last_refresh < ?", debounceBefore)
}

func (store *Postgres) GetTileRefreshCandidates(projectIDs []uint64, limit int) ([]model.RefreshCandidate, int) {
	if len(projectIDs) == 0 {
		return nil, http.StatusNotFound
	}

	var tiles []model.DashboardTile
	err := store.tileCandidateScope(projectIDs).
		Select("dashboard_tiles.*").
		Order("dashboard_tiles.last_refresh ASC NULLS FIRST").
		Order("COALESCE(dashboard_tiles.refresh_attempt, 0) ASC").
		Limit(limit).
		Find(&tiles).Error
	if err != nil {
		log.WithError(err).Error("Failed to get tile candidates")
		return nil, http.StatusInternalServerError
	}

	candidates := make([]model.RefreshCandidate, 0, len(tiles))
	for i := range tiles {
		insight, errCode := store.GetInsight(tiles[i].ProjectID, tiles[i].InsightID)
		if errCode != http.StatusFound {
			continue
		}
		dashboard, errCode := store.GetDashboard(tiles[i].ProjectID, tiles[i].DashboardID)
		if errCode != http.StatusFound {
			continue
		}
		candidates = append(candidates, model.NewTileCandidate(insight, dashboard, &tiles[i]))
	}
	return candidates, http.StatusFound
}

func (store *Postgres) CountTileRefreshCandidates(projectIDs []uint64) (int64, int) {
	if len(projectIDs) == 0 {
		return 0, http.StatusFound
	}

	var count int64
	if err := store.tileCandidateScope(projectIDs).Count(&count).Error; err != nil {
		log.WithError(err).Error("Failed to count tile candidates")
		return 0, http.StatusInternalServerError
	}
	return count, http.StatusFound
}

func (store *Postgres) CountNeverRefreshedTiles(projectIDs []uint64) (int64, int) {
	if len(projectIDs) == 0 {
		return 0, http.StatusFound
	}

	var count int64
	err := store.tileCandidateScope(projectIDs).
		Where("dashboard_tiles.last_refresh IS NULL").
		Count(&count).Error
	if err != nil {
		log.WithError(err).Error("Failed to count never refreshed tiles")
		return 0, http.StatusInternalServerError
	}
	return count, http.StatusFound
}

func (store *Postgres) GetOldestRefreshedTiles(projectIDs []uint64, limit int) ([]model.DashboardTile, int) {
	if len(projectIDs) == 0 {
		return nil, http.StatusFound
	}

	var tiles []model.DashboardTile
	err := store.tileCandidateScope(projectIDs).
		Select("dashboard_tiles.*").
		Where("dashboard_tiles.last_refresh IS NOT NULL").
		Order("dashboard_tiles.last_refresh ASC").
		Limit(limit).
		Find(&tiles).Error
	if err != nil {
		log.WithError(err).Error("Failed to get oldest refreshed tiles")
		return nil, http.StatusInternalServerError
	}
	return tiles, http.StatusFound
}

// UpdateTileFiltersHash Sets the fingerprint on the tile binding the
// given insight to the given dashboard, only where it differs. Returns
// the number of rows that actually changed.
func (store *Postgres) UpdateTileFiltersHash(projectID, dashboardID, insightID uint64, filtersHash string) (int64, int) {
	result := store.db().Model(&model.DashboardTile{}).
		Where("project_id = ? AND dashboard_id = ? AND insight_id = ?", projectID, dashboardID, insightID).
		Where("filters_hash IS NULL OR filters_hash != ?", filtersHash).
		Update("filters_hash", filtersHash)
	if result.Error != nil {
		log.WithError(result.Error).Error("Failed to update tile filters_hash")
		return 0, http.StatusInternalServerError
	}
	return result.RowsAffected, http.StatusAccepted
}

// IncrementRefreshAttempt Bumps the failure counter on the insight and,
// in a dashboard context, on the bound tile. COALESCE keeps the null
// (never attempted) and zero (reset) states distinct until a failure.
func (store *Postgres) IncrementRefreshAttempt(projectID, insightID uint64, dashboardID *uint64) int {
	err := store.db().Model(&model.Insight{}).
		Where("project_id = ? AND id = ?", projectID, insightID).
		Update("refresh_attempt", gorm.Expr("COALESCE(refresh_attempt, 0) + 1")).Error
	if err != nil {
		log.WithError(err).Error("Failed to increment insight refresh_attempt")
		return http.StatusInternalServerError
	}

	if dashboardID != nil {
		err = store.db().Model(&model.DashboardTile{}).
			Where("project_id = ? AND dashboard_id = ? AND insight_id = ?", projectID, *dashboardID, insightID).
			Update("refresh_attempt", gorm.Expr("COALESCE(refresh_attempt, 0) + 1")).Error
		if err != nil {
			log.WithError(err).Error("Failed to increment tile refresh_attempt")
			return http.StatusInternalServerError
		}
	}
	return http.StatusAccepted
}

// ClearRefreshing Drops the in-flight marker on the triggering entity
// rows after a failed or empty run, so the next cycle can retry them.
func (store *Postgres) ClearRefreshing(projectID, insightID uint64, dashboardID *uint64) int {
	err := store.db().Model(&model.Insight{}).
		Where("project_id = ? AND id = ?", projectID, insightID).
		Update("refreshing", false).Error
	if err != nil {
		log.WithError(err).Error("Failed to clear insight refreshing flag")
		return http.StatusInternalServerError
	}

	if dashboardID != nil {
		err = store.db().Model(&model.DashboardTile{}).
			Where("project_id = ? AND dashboard_id = ? AND insight_id = ?", projectID, *dashboardID, insightID).
			Update("refreshing", false).Error
		if err != nil {
			log.WithError(err).Error("Failed to clear tile refreshing flag")
			return http.StatusInternalServerError
		}
	}
	return http.StatusAccepted
}

// MarkRefreshingByFiltersHash Flags every insight and tile sharing the
// fingerprint, not just the entity that triggered the work unit.
func (store *Postgres) MarkRefreshingByFiltersHash(projectID uint64, filtersHash string, refreshing bool) int {
	err := store.db().Model(&model.Insight{}).
		Where("project_id = ? AND filters_hash = ?", projectID, filtersHash).
		Update("refreshing", refreshing).Error
	if err != nil {
		log.WithError(err).Error("Failed to mark insights refreshing")
		return http.StatusInternalServerError
	}

	err = store.db().Model(&model.DashboardTile{}).
		Where("project_id = ? AND filters_hash = ?", projectID, filtersHash).
		Update("refreshing", refreshing).Error
	if err != nil {
		log.WithError(err).Error("Failed to mark tiles refreshing")
		return http.StatusInternalServerError
	}
	return http.StatusAccepted
}

// CompleteRefreshByFiltersHash Success bookkeeping for every entity
// sharing the fingerprint: stamp last_refresh, reset the failure
// counter and clear the in-flight marker, in one targeted update.
func (store *Postgres) CompleteRefreshByFiltersHash(projectID uint64, filtersHash string, refreshedAt time.Time) int {
	updates := map[string]interface{}{
		"last_refresh":    refreshedAt,
		"refresh_attempt": 0,
		"refreshing":      false,
	}

	err := store.db().Model(&model.Insight{}).
		Where("project_id = ? AND filters_hash = ?", projectID, filtersHash).
		Updates(updates).Error
	if err != nil {
		log.WithError(err).Error("Failed to complete refresh on insights")
		return http.StatusInternalServerError
	}

	err = store.db().Model(&model.DashboardTile{}).
		Where("project_id = ? AND filters_hash = ?", projectID, filtersHash).
		Updates(updates).Error
	if err != nil {
		log.WithError(err).Error("Failed to complete refresh on tiles")
		return http.StatusInternalServerError
	}
	return http.StatusAccepted
}

func (store *Postgres) ExistsWithFiltersHash(projectID uint64, filtersHash string) (bool, int) {
	var count int64
	err := store.db().Model(&model.Insight{}).
		Where("project_id = ? AND filters_hash = ? AND is_deleted = ?", projectID, filtersHash, false).
		Count(&count).Error
	if err != nil {
		log.WithError(err).Error("Failed to check insights for filters_hash")
		return false, http.StatusInternalServerError
	}
	if count > 0 {
		return true, http.StatusFound
	}

	err = store.db().Model(&model.DashboardTile{}).
		Where("project_id = ? AND filters_hash = ?", projectID, filtersHash).
		Count(&count).Error
	if err != nil {
		log.WithError(err).Error("Failed to check tiles for filters_hash")
		return false, http.StatusInternalServerError
	}
	if count > 0 {
		return true, http.StatusFound
	}
	return false, http.StatusNotFound
}
