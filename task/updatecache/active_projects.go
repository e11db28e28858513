package updatecache

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"insightcache/cache"
	cacheRedis "insightcache/cache/redis"
	C "insightcache/config"
	"insightcache/model/store"
	U "insightcache/util"
)

const activeProjectsPrefix = "active_projects"

func activeProjectsCacheKey() (*cache.Key, error) {
	return cache.NewKeyWithOnlyPrefix(activeProjectsPrefix)
}

// ActiveProjects Projects with recent event ingestion. Reads the
// externally maintained recency index first; only when the index is
// cold does it fall back to the store and repopulate the index.
func ActiveProjects() []uint64 {
	logCtx := log.WithField("Method", "ActiveProjects")

	cacheKey, err := activeProjectsCacheKey()
	if err != nil {
		logCtx.WithError(err).Error("Failed to build active projects cache key")
		return nil
	}

	projectIDs, err := cacheRedis.SMembersUint64(cacheKey)
	if err != nil {
		logCtx.WithError(err).Error("Failed to read active projects index")
	}
	if len(projectIDs) > 0 {
		return projectIDs
	}

	since := U.TimeNow().Add(-C.GetProjectActivityWindow())
	projectIDs, errCode := store.GetStore().RecentlyActiveProjects(since)
	if errCode != http.StatusFound || len(projectIDs) == 0 {
		return nil
	}

	if err := cacheRedis.SAddWithExpiry(cacheKey, C.GetActiveProjectsTTL(), projectIDs...); err != nil {
		logCtx.WithError(err).Error("Failed to repopulate active projects index")
	}
	return projectIDs
}

// RecordActiveProject Marks a project as recently active in the index.
// Called by the ingestion path.
func RecordActiveProject(projectID uint64) error {
	cacheKey, err := activeProjectsCacheKey()
	if err != nil {
		return err
	}
	return cacheRedis.SAddWithExpiry(cacheKey, C.GetActiveProjectsTTL(), projectID)
}
