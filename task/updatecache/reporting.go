package updatecache

import (
	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"insightcache/metrics"
	"insightcache/model/model"
	"insightcache/model/store"
	U "insightcache/util"
)

// CacheUpdateReporting Outcome reporting for one work unit. Besides the
// structured signal, each outcome applies the matching bookkeeping:
// success resets counters on every entity sharing the fingerprint,
// failures count an attempt against the triggering entity only.
type CacheUpdateReporting struct {
	Key         string
	ProjectID   uint64
	InsightID   uint64
	DashboardID *uint64

	logCtx *log.Entry
}

func NewCacheUpdateReporting(key string, payload model.RefreshWorkPayload) *CacheUpdateReporting {
	logCtx := log.WithFields(log.Fields{
		"CacheKey":    key,
		"ProjectID":   payload.ProjectID,
		"InsightID":   payload.InsightID,
		"DashboardID": payload.DashboardID,
	})
	return &CacheUpdateReporting{
		Key:         key,
		ProjectID:   payload.ProjectID,
		InsightID:   payload.InsightID,
		DashboardID: payload.DashboardID,
		logCtx:      logCtx,
	}
}

// OnResults A usable outcome is in the freshness store. Stamps
// last_refresh, resets the failure counter and clears the in-flight
// marker on every insight and tile sharing the fingerprint. The signal
// distinguishes a recomputation from an event-freshness skip.
func (reporting *CacheUpdateReporting) OnResults(signal string) {
	metrics.Increment(signal)
	store.GetStore().CompleteRefreshByFiltersHash(reporting.ProjectID, reporting.Key, U.TimeNow())
	reporting.logCtx.WithField("Signal", signal).Info("Cache update item completed")
}

// OnNoResults The fingerprint matched no entity at execution time, or
// the computation produced nothing. Benign, but still counts a refresh
// attempt against the triggering entity's metadata.
func (reporting *CacheUpdateReporting) OnNoResults() {
	metrics.Increment(metrics.IncrUpdateCacheItemNoResults)
	db := store.GetStore()
	db.IncrementRefreshAttempt(reporting.ProjectID, reporting.InsightID, reporting.DashboardID)
	db.ClearRefreshing(reporting.ProjectID, reporting.InsightID, reporting.DashboardID)
	reporting.logCtx.Info("Cache update item produced no results")
}

// OnQueryError Engine failure. Counts an attempt, unblocks the
// triggering entity for the next cycle and forwards the exception.
func (reporting *CacheUpdateReporting) OnQueryError(err error) {
	metrics.Increment(metrics.IncrUpdateCacheItemError)
	db := store.GetStore()
	db.IncrementRefreshAttempt(reporting.ProjectID, reporting.InsightID, reporting.DashboardID)
	db.ClearRefreshing(reporting.ProjectID, reporting.InsightID, reporting.DashboardID)
	sentry.CaptureException(err)
	reporting.logCtx.WithError(err).Error("Cache update item failed")
}
