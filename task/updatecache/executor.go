package updatecache

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"insightcache/cache"
	cacheRedis "insightcache/cache/redis"
	C "insightcache/config"
	"insightcache/metrics"
	"insightcache/model/model"
	"insightcache/model/store"
	"insightcache/queue"
	U "insightcache/util"
)

const resultCachePrefix = "insight:result"

// QueryEngine Computes insight results from raw event data. External
// collaborator; opaque to this subsystem beyond the routine split.
type QueryEngine interface {
	ComputeTrends(filter *model.Filter, projectID uint64) ([]model.ResultRow, error)
	ComputeStickiness(filter *model.Filter, projectID uint64) ([]model.ResultRow, error)
	ComputeRetention(filter *model.Filter, projectID uint64) ([]model.ResultRow, error)
	ComputePaths(filter *model.Filter, projectID uint64) ([]model.ResultRow, error)
	ComputeFunnel(cacheType model.CacheType, filter *model.Filter, projectID uint64) ([]model.ResultRow, error)
}

func resultCacheKey(projectID uint64, fingerprint string) (*cache.Key, error) {
	return cache.NewKey(projectID, resultCachePrefix, fingerprint)
}

// GetCachedResult Reads the freshness store blob for a fingerprint.
func GetCachedResult(projectID uint64, fingerprint string) (*model.CachedResult, bool, error) {
	cacheKey, err := resultCacheKey(projectID, fingerprint)
	if err != nil {
		return nil, false, err
	}

	value, exists, err := cacheRedis.GetIfExists(cacheKey)
	if err != nil || !exists {
		return nil, false, err
	}

	var cached model.CachedResult
	if err := json.Unmarshal([]byte(value), &cached); err != nil {
		return nil, false, err
	}
	return &cached, true, nil
}

// updateCacheItem Executes one work unit: marks every entity sharing
// the fingerprint as refreshing, short-circuits when event recency
// proves the cached result current, otherwise recomputes and stores the
// result under the fingerprint with the configured TTL.
func (job *Job) updateCacheItem(unit queue.WorkUnit) ([]model.ResultRow, error) {
	startTime := U.TimeNow()
	payload := unit.Payload
	db := store.GetStore()

	reporting := NewCacheUpdateReporting(unit.Key, payload)

	var filter model.Filter
	if err := json.Unmarshal([]byte(payload.FilterJSON), &filter); err != nil {
		reporting.OnQueryError(err)
		return nil, err
	}

	db.MarkRefreshingByFiltersHash(payload.ProjectID, unit.Key, true)

	var result []model.ResultRow
	if cacheIncludesLatestEvents(payload.ProjectID, &filter, unit.CacheType, payload.LastRefresh) {
		touchCachedResult(payload.ProjectID, unit.Key)
		reporting.OnResults(metrics.IncrUpdateCacheItemSkipped)
	} else {
		exists, _ := db.ExistsWithFiltersHash(payload.ProjectID, unit.Key)
		if exists {
			var err error
			result, err = job.computeAndStoreResult(unit.CacheType, &filter, payload.ProjectID, unit.Key)
			if err != nil {
				reporting.OnQueryError(err)
				return nil, err
			}
		}

		if len(result) > 0 {
			reporting.OnResults(metrics.IncrUpdateCacheItemSuccess)
		} else {
			reporting.OnNoResults()
		}
	}

	metrics.RecordLatency(metrics.LatencyUpdateCacheItem, float64(U.TimeNow().Sub(startTime).Milliseconds()))

	log.WithFields(log.Fields{
		"InsightID":   payload.InsightID,
		"DashboardID": payload.DashboardID,
		"CacheKey":    unit.Key,
		"HasResults":  len(result) > 0,
	}).Info("update_insight_cache.processed_item")
	return result, nil
}

// cacheIncludesLatestEvents Whether the cached result provably covers
// every ingested event the query could reference. Only cache types
// registered as skip-safe qualify; queries referencing dynamic actions
// never do, since their matching events cannot be enumerated here.
func cacheIncludesLatestEvents(projectID uint64, filter *model.Filter,
	cacheType model.CacheType, lastRefresh *time.Time) bool {

	if lastRefresh == nil {
		return false
	}
	if !model.GetCacheTypeSpec(cacheType).SkipOnFreshEvents {
		return false
	}
	if len(filter.Actions) > 0 {
		return false
	}

	eventNames := filter.EventNames()
	if len(eventNames) == 0 {
		return false
	}

	lastIngestion, errCode := store.GetStore().GetLastEventIngestion(projectID, eventNames)
	if errCode != http.StatusFound {
		return false
	}
	return !lastIngestion.After(*lastRefresh)
}

func touchCachedResult(projectID uint64, fingerprint string) {
	cacheKey, err := resultCacheKey(projectID, fingerprint)
	if err != nil {
		return
	}
	if _, err := cacheRedis.Touch(cacheKey, C.GetCachedResultsTTL()); err != nil {
		log.WithError(err).WithField("CacheKey", fingerprint).Error("Failed to touch cached result")
	}
}

// computeAndStoreResult Dispatches to the engine routine for the cache
// type and writes the freshness store blob. The blob is written even
// for an empty result so readers see the refresh timestamp.
func (job *Job) computeAndStoreResult(cacheType model.CacheType, filter *model.Filter,
	projectID uint64, fingerprint string) ([]model.ResultRow, error) {

	var result []model.ResultRow
	var err error
	switch cacheType {
	case model.CacheTypeStickiness:
		result, err = job.engine.ComputeStickiness(filter, projectID)
	case model.CacheTypeRetention:
		result, err = job.engine.ComputeRetention(filter, projectID)
	case model.CacheTypePaths:
		result, err = job.engine.ComputePaths(filter, projectID)
	case model.CacheTypeFunnel, model.CacheTypeFunnelStrict, model.CacheTypeFunnelUnordered,
		model.CacheTypeFunnelTrends, model.CacheTypeFunnelTimeToConvert:
		result, err = job.engine.ComputeFunnel(cacheType, filter, projectID)
	default:
		result, err = job.engine.ComputeTrends(filter, projectID)
	}
	if err != nil {
		return nil, err
	}

	windowFrom, windowTo := filter.ResolveDateRange(U.TimeNow())
	cached := model.CachedResult{
		Result:      result,
		Type:        cacheType,
		LastRefresh: U.TimeNow(),
		WindowFrom:  windowFrom,
		WindowTo:    windowTo,
	}
	cachedBytes, err := json.Marshal(cached)
	if err != nil {
		return nil, err
	}

	cacheKey, err := resultCacheKey(projectID, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := cacheRedis.Set(cacheKey, string(cachedBytes), C.GetCachedResultsTTL()); err != nil {
		return nil, err
	}
	return result, nil
}
