package store

import (
	"sync"
	"time"

	C "insightcache/config"
	"insightcache/model/model"
	storeMemory "insightcache/model/store/memory"
	storePostgres "insightcache/model/store/postgres"
)

// Store The entity store surface the refresh pipeline depends on.
// Implementations must apply the bookkeeping updates as targeted
// conditional writes, never read-modify-write of whole rows.
type Store interface {
	CreateInsight(insight *model.Insight) (*model.Insight, int)
	GetInsight(projectID, insightID uint64) (*model.Insight, int)
	CreateDashboard(dashboard *model.Dashboard) (*model.Dashboard, int)
	GetDashboard(projectID, dashboardID uint64) (*model.Dashboard, int)
	CreateDashboardTile(tile *model.DashboardTile) (*model.DashboardTile, int)
	GetDashboardTile(projectID, tileID uint64) (*model.DashboardTile, int)
	GetDashboardTileByBinding(projectID, dashboardID, insightID uint64) (*model.DashboardTile, int)

	// Candidate selection. Both streams apply the staleness predicate
	// and return oldest-first with never-refreshed entities leading.
	GetTileRefreshCandidates(projectIDs []uint64, limit int) ([]model.RefreshCandidate, int)
	GetSharedInsightRefreshCandidates(projectIDs []uint64, limit int) ([]model.RefreshCandidate, int)
	CountTileRefreshCandidates(projectIDs []uint64) (int64, int)
	CountSharedInsightRefreshCandidates(projectIDs []uint64) (int64, int)
	CountNeverRefreshedTiles(projectIDs []uint64) (int64, int)
	GetOldestRefreshedTiles(projectIDs []uint64, limit int) ([]model.DashboardTile, int)

	// Fingerprint reconciliation and refresh bookkeeping.
	UpdateTileFiltersHash(projectID, dashboardID, insightID uint64, filtersHash string) (int64, int)
	UpdateInsightFiltersHash(projectID, insightID uint64, filtersHash string) int
	IncrementRefreshAttempt(projectID, insightID uint64, dashboardID *uint64) int
	ClearRefreshing(projectID, insightID uint64, dashboardID *uint64) int
	MarkRefreshingByFiltersHash(projectID uint64, filtersHash string, refreshing bool) int
	CompleteRefreshByFiltersHash(projectID uint64, filtersHash string, refreshedAt time.Time) int
	ExistsWithFiltersHash(projectID uint64, filtersHash string) (bool, int)

	// Event recency.
	UpsertEventDefinition(projectID uint64, name string, lastSeenAt time.Time) int
	GetLastEventIngestion(projectID uint64, eventNames []string) (*time.Time, int)
	RecentlyActiveProjects(since time.Time) ([]uint64, int)
}

var memoryStore *storeMemory.Memory
var memoryStoreOnce sync.Once

// GetStore Decides on which store implementation to use by
// configuration and returns it.
func GetStore() Store {
	if C.GetStoreType() == C.StoreTypeMemory {
		memoryStoreOnce.Do(func() {
			memoryStore = storeMemory.New()
		})
		return memoryStore
	}
	return &storePostgres.Postgres{}
}
