package postgres

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	C "insightcache/config"
	"insightcache/model/model"
	U "insightcache/util"
)

func (store *Postgres) CreateInsight(insight *model.Insight) (*model.Insight, int) {
	logCtx := log.WithFields(log.Fields{"ProjectID": insight.ProjectID})

	if valid, errMsg := model.IsValidInsight(insight); !valid {
		logCtx.WithField("ErrMsg", errMsg).Error("CreateInsight validation failed")
		return nil, http.StatusBadRequest
	}

	if insight.Shared && insight.ShareToken == "" {
		insight.ShareToken = uuid.New().String()
	}

	if err := store.db().Create(insight).Error; err != nil {
		logCtx.WithError(err).Error("Failed to create insight")
		return nil, http.StatusInternalServerError
	}
	return insight, http.StatusCreated
}

func (store *Postgres) GetInsight(projectID, insightID uint64) (*model.Insight, int) {
	var insight model.Insight
	err := store.db().Where("project_id = ? AND id = ? AND is_deleted = ?",
		projectID, insightID, false).First(&insight).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}
		log.WithError(err).Error("Failed to get insight")
		return nil, http.StatusInternalServerError
	}
	return &insight, http.StatusFound
}

// UpdateInsightFiltersHash Targeted write of the insight's standalone
// fingerprint.
func (store *Postgres) UpdateInsightFiltersHash(projectID, insightID uint64, filtersHash string) int {
	err := store.db().Model(&model.Insight{}).
		Where("project_id = ? AND id = ?", projectID, insightID).
		Update("filters_hash", filtersHash).Error
	if err != nil {
		log.WithError(err).Error("Failed to update insight filters_hash")
		return http.StatusInternalServerError
	}
	return http.StatusAccepted
}

// sharedInsightCandidateScope Staleness predicate for the standalone
// shared insight stream. No dashboard recency clause applies here.
func (store *Postgres) sharedInsightCandidateScope(projectIDs []uint64) *gorm.DB {
	debounceBefore := U.TimeNow().Add(-C.GetRefreshDebounceWindow())

	return store.db().Model(&model.Insight{}).
		Where("project_id IN (?)", projectIDs).
		Where("shared = ? AND is_deleted = ?", true, false).
		Where("filters IS NOT NULL AND filters::text != '{}'").
		Where("refreshing = ?", false).
		Where("COALESCE(refresh_attempt, 0) <= ?", C.GetMaxRefreshAttempts()).
		Where("last_refresh IS NULL OR last_refresh < ?", debounceBefore)
}

func (store *Postgres) GetSharedInsightRefreshCandidates(projectIDs []uint64, limit int) ([]model.RefreshCandidate, int) {
	if len(projectIDs) == 0 {
		return nil, http.StatusNotFound
	}

	var insights []model.Insight
	err := store.sharedInsightCandidateScope(projectIDs).
		Order("last_refresh ASC NULLS FIRST").
		Limit(limit).
		Find(&insights).Error
	if err != nil {
		log.WithError(err).Error("Failed to get shared insight candidates")
		return nil, http.StatusInternalServerError
	}

	candidates := make([]model.RefreshCandidate, 0, len(insights))
	for i := range insights {
		candidates = append(candidates, model.NewStandaloneCandidate(&insights[i]))
	}
	return candidates, http.StatusFound
}

func (store *Postgres) CountSharedInsightRefreshCandidates(projectIDs []uint64) (int64, int) {
	if len(projectIDs) == 0 {
		return 0, http.StatusFound
	}

	var count int64
	if err := store.sharedInsightCandidateScope(projectIDs).Count(&count).Error; err != nil {
		log.WithError(err).Error("Failed to count shared insight candidates")
		return 0, http.StatusInternalServerError
	}
	return count, http.StatusFound
}
