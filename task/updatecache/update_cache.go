package updatecache

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	C "insightcache/config"
	"insightcache/metrics"
	"insightcache/model/model"
	"insightcache/model/store"
	"insightcache/queue"
	U "insightcache/util"
)

// Number of previously refreshed tiles sampled for the lag gauge.
const lagSampleSize = 10

// Job Wires the scheduling pass, the work queue and the executor
// together around one query engine.
type Job struct {
	engine QueryEngine
	pool   *queue.WorkerPool
}

func NewJob(engine QueryEngine, numRoutines int) *Job {
	job := &Job{engine: engine}
	job.pool = queue.NewWorkerPool(numRoutines, func(unit queue.WorkUnit) error {
		_, err := job.updateCacheItem(unit)
		return err
	})
	return job
}

// Wait Blocks until all dispatched work units have drained. Used by the
// job binary and tests; the scheduling pass itself never waits.
func (job *Job) Wait() {
	job.pool.Wait()
}

// UpdateCachedItems One scheduling pass: selects eligible candidates
// from both streams under the configured budget, reconciles their
// fingerprints and dispatches recompute work units. Returns the number
// of units dispatched and the total eligible queue depth.
func (job *Job) UpdateCachedItems() (int, int) {
	logCtx := log.WithField("Method", "UpdateCachedItems")

	parallelRefreshCount := C.GetParallelInsightRefreshCount()
	projectIDs := ActiveProjects()
	if len(projectIDs) == 0 {
		logCtx.Info("No recently active projects. Nothing to schedule.")
		return 0, 0
	}

	db := store.GetStore()

	units := make([]queue.WorkUnit, 0, 2*parallelRefreshCount)

	tileCandidates, errCode := db.GetTileRefreshCandidates(projectIDs, parallelRefreshCount)
	if errCode != http.StatusFound && errCode != http.StatusNotFound {
		logCtx.Error("Failed to select tile candidates")
	}
	for i := range tileCandidates {
		if unit := job.workUnitForCandidate(&tileCandidates[i]); unit != nil {
			units = append(units, *unit)
		}
	}

	sharedCandidates, errCode := db.GetSharedInsightRefreshCandidates(projectIDs, parallelRefreshCount)
	if errCode != http.StatusFound && errCode != http.StatusNotFound {
		logCtx.Error("Failed to select shared insight candidates")
	}
	for i := range sharedCandidates {
		if unit := job.workUnitForCandidate(&sharedCandidates[i]); unit != nil {
			units = append(units, *unit)
		}
	}

	tileDepth, _ := db.CountTileRefreshCandidates(projectIDs)
	sharedDepth, _ := db.CountSharedInsightRefreshCandidates(projectIDs)
	gaugeCacheUpdateCandidates(projectIDs, tileDepth, sharedDepth)

	job.pool.SubmitBatch(units)
	logCtx.WithFields(log.Fields{
		"Dispatched": len(units),
		"QueueDepth": tileDepth + sharedDepth,
	}).Info("Completed scheduling pass")
	return len(units), int(tileDepth + sharedDepth)
}

// workUnitForCandidate Fingerprints one candidate and reconciles its
// stored hashes. Any failure here is isolated: the candidate's failure
// counter is bumped and no work unit is emitted, but siblings in the
// same pass proceed.
func (job *Job) workUnitForCandidate(candidate *model.RefreshCandidate) *queue.WorkUnit {
	insight := candidate.Insight
	logCtx := log.WithFields(log.Fields{
		"Method":      "workUnitForCandidate",
		"ProjectID":   insight.ProjectID,
		"InsightID":   insight.ID,
		"DashboardID": candidate.DashboardID(),
	})

	key, cacheType, payload, err := insightUpdateTaskParams(insight, candidate.Dashboard, candidate.LastRefresh())
	if err != nil {
		store.GetStore().IncrementRefreshAttempt(insight.ProjectID, insight.ID, candidate.DashboardID())
		sentry.CaptureException(err)
		logCtx.WithError(err).Error("Failed to build update task params for candidate")
		return nil
	}

	updateFiltersHash(key, candidate.Dashboard, insight)

	return &queue.WorkUnit{
		ID:        xid.New().String(),
		Key:       key,
		CacheType: cacheType,
		Payload:   payload,
	}
}

// insightUpdateTaskParams Computes the effective query for the insight
// in its display context and derives the cache key, cache type and the
// self-contained work unit payload.
func insightUpdateTaskParams(insight *model.Insight, dashboard *model.Dashboard,
	lastRefresh *time.Time) (string, model.CacheType, model.RefreshWorkPayload, error) {

	var payload model.RefreshWorkPayload

	filter, err := model.EffectiveFilter(insight.Filters, dashboard)
	if err != nil {
		return "", "", payload, err
	}

	key, err := model.GenerateFingerprint(filter, insight.ProjectID)
	if err != nil {
		return "", "", payload, err
	}

	filterJSON, err := filter.ToNormalizedJSON()
	if err != nil {
		return "", "", payload, err
	}

	var dashboardID *uint64
	if dashboard != nil {
		dashboardID = &dashboard.ID
	}
	payload = model.RefreshWorkPayload{
		FilterJSON:  filterJSON,
		ProjectID:   insight.ProjectID,
		InsightID:   insight.ID,
		DashboardID: dashboardID,
		LastRefresh: lastRefresh,
	}
	return key, model.GetCacheType(filter), payload, nil
}

// updateFiltersHash Reconciles stored fingerprints with the freshly
// computed cache key. Three cases:
// 1) no dashboard context: set the insight's own hash if it drifted;
// 2) dashboard context with a differing override: set only the tile's hash;
// 3) dashboard context with no or matching override: set the tile's hash
//    and converge the insight's own hash to the same value.
func updateFiltersHash(cacheKey string, dashboard *model.Dashboard, insight *model.Insight) {
	db := store.GetStore()
	shouldUpdateInsightFiltersHash := false

	if dashboard == nil && (insight.FiltersHash == nil || *insight.FiltersHash != cacheKey) {
		if insight.FiltersHash != nil {
			log.WithFields(log.Fields{
				"ProjectID":       insight.ProjectID,
				"InsightID":       insight.ID,
				"CurrentCacheKey": *insight.FiltersHash,
				"CorrectCacheKey": cacheKey,
			}).Info("Shared insight has incorrect filters hash")
		}
		shouldUpdateInsightFiltersHash = true
	}

	if dashboard != nil {
		updatedTiles, _ := db.UpdateTileFiltersHash(insight.ProjectID, dashboard.ID, insight.ID, cacheKey)
		if updatedTiles > 0 {
			log.WithFields(log.Fields{
				"ProjectID":       insight.ProjectID,
				"InsightID":       insight.ID,
				"DashboardID":     dashboard.ID,
				"CorrectCacheKey": cacheKey,
			}).Info("Dashboard tile had incorrect filters hash")
			metrics.CountInt(metrics.IncrSetNewCacheKeyOnTile, updatedTiles)

			if dashboard.OverrideMatchesInsight(insight) {
				shouldUpdateInsightFiltersHash = true
			}
		}
	}

	if shouldUpdateInsightFiltersHash {
		db.UpdateInsightFiltersHash(insight.ProjectID, insight.ID, cacheKey)
		metrics.Increment(metrics.IncrSetNewCacheKeyOnSharedInsight)
	}
}

// gaugeCacheUpdateCandidates Emits the scheduling pass gauges: count of
// never refreshed tiles, cache age of the oldest previously refreshed
// tiles and the per stream queue depths.
func gaugeCacheUpdateCandidates(projectIDs []uint64, tileDepth, sharedDepth int64) {
	db := store.GetStore()

	neverRefreshed, _ := db.CountNeverRefreshedTiles(projectIDs)
	metrics.CountInt(metrics.GaugeUpdateCacheQueueNeverRefreshed, neverRefreshed)

	oldestTiles, _ := db.GetOldestRefreshedTiles(projectIDs, lagSampleSize)
	seenAges := make([]map[string]interface{}, 0, len(oldestTiles))
	for i := range oldestTiles {
		tile := &oldestTiles[i]
		cacheAgeSeconds := U.TimeNow().Sub(*tile.LastRefresh).Seconds()
		metrics.CountFloat(metrics.GaugeUpdateCacheQueueDashboardsLag, cacheAgeSeconds)
		seenAges = append(seenAges, map[string]interface{}{
			"insight_id":   tile.InsightID,
			"dashboard_id": tile.DashboardID,
			"cache_key":    tile.FiltersHash,
			"age":          int64(cacheAgeSeconds),
		})
	}
	log.WithField("Ages", seenAges).Info("update_cache_queue.seen_ages")

	metrics.CountInt(metrics.GaugeUpdateCacheQueueDepthSharedInsights, sharedDepth)
	metrics.CountInt(metrics.GaugeUpdateCacheQueueDepthDashboards, tileDepth)
	metrics.CountInt(metrics.GaugeUpdateCacheQueueDepth, tileDepth+sharedDepth)
}

// RefreshInsightCacheSynchronously Direct call path for a user
// triggered refresh. Applies the same fingerprinting, reconciliation
// and storage logic inline and blocks until the result is stored.
// There is only one candidate, so errors surface to the caller.
func (job *Job) RefreshInsightCacheSynchronously(insight *model.Insight, dashboard *model.Dashboard) ([]model.ResultRow, error) {
	// lastRefresh is left unset so the event-freshness short-circuit
	// never skips an explicit user request.
	key, cacheType, payload, err := insightUpdateTaskParams(insight, dashboard, nil)
	if err != nil {
		return nil, err
	}

	updateFiltersHash(key, dashboard, insight)

	unit := queue.WorkUnit{ID: xid.New().String(), Key: key, CacheType: cacheType, Payload: payload}
	return job.updateCacheItem(unit)
}
