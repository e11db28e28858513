package memory

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	C "insightcache/config"
	"insightcache/model/model"
	U "insightcache/util"
)

// Memory In-memory entity store. Mirrors the postgres implementation's
// predicate and ordering semantics; used in development and tests.
type Memory struct {
	mu sync.Mutex

	insights         map[uint64]*model.Insight
	dashboards       map[uint64]*model.Dashboard
	tiles            map[uint64]*model.DashboardTile
	eventDefinitions map[uint64]map[string]time.Time

	nextID uint64
}

func New() *Memory {
	return &Memory{
		insights:         make(map[uint64]*model.Insight),
		dashboards:       make(map[uint64]*model.Dashboard),
		tiles:            make(map[uint64]*model.DashboardTile),
		eventDefinitions: make(map[uint64]map[string]time.Time),
	}
}

// Reset Drops all entities. Used by tests to isolate state between runs.
func (store *Memory) Reset() {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.insights = make(map[uint64]*model.Insight)
	store.dashboards = make(map[uint64]*model.Dashboard)
	store.tiles = make(map[uint64]*model.DashboardTile)
	store.eventDefinitions = make(map[uint64]map[string]time.Time)
	store.nextID = 0
}

func (store *Memory) allocateID() uint64 {
	store.nextID++
	return store.nextID
}

func (store *Memory) CreateInsight(insight *model.Insight) (*model.Insight, int) {
	if valid, _ := model.IsValidInsight(insight); !valid {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if insight.ID == 0 {
		insight.ID = store.allocateID()
	}
	if insight.Shared && insight.ShareToken == "" {
		insight.ShareToken = uuid.New().String()
	}
	insight.CreatedAt = U.TimeNow()
	insight.UpdatedAt = insight.CreatedAt

	stored := *insight
	store.insights[insight.ID] = &stored
	return insight, http.StatusCreated
}

func (store *Memory) GetInsight(projectID, insightID uint64) (*model.Insight, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	insight, exists := store.insights[insightID]
	if !exists || insight.ProjectID != projectID || insight.IsDeleted {
		return nil, http.StatusNotFound
	}
	copied := *insight
	return &copied, http.StatusFound
}

func (store *Memory) CreateDashboard(dashboard *model.Dashboard) (*model.Dashboard, int) {
	if dashboard.ProjectID == 0 {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if dashboard.ID == 0 {
		dashboard.ID = store.allocateID()
	}
	if dashboard.Shared && dashboard.ShareToken == "" {
		dashboard.ShareToken = uuid.New().String()
	}
	dashboard.CreatedAt = U.TimeNow()
	dashboard.UpdatedAt = dashboard.CreatedAt

	stored := *dashboard
	store.dashboards[dashboard.ID] = &stored
	return dashboard, http.StatusCreated
}

func (store *Memory) GetDashboard(projectID, dashboardID uint64) (*model.Dashboard, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	dashboard, exists := store.dashboards[dashboardID]
	if !exists || dashboard.ProjectID != projectID || dashboard.IsDeleted {
		return nil, http.StatusNotFound
	}
	copied := *dashboard
	return &copied, http.StatusFound
}

func (store *Memory) CreateDashboardTile(tile *model.DashboardTile) (*model.DashboardTile, int) {
	if valid, _ := model.IsValidDashboardTile(tile); !valid {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if tile.ID == 0 {
		tile.ID = store.allocateID()
	}
	tile.CreatedAt = U.TimeNow()
	tile.UpdatedAt = tile.CreatedAt

	stored := *tile
	store.tiles[tile.ID] = &stored
	return tile, http.StatusCreated
}

func (store *Memory) GetDashboardTile(projectID, tileID uint64) (*model.DashboardTile, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	tile, exists := store.tiles[tileID]
	if !exists || tile.ProjectID != projectID {
		return nil, http.StatusNotFound
	}
	copied := *tile
	return &copied, http.StatusFound
}

func (store *Memory) GetDashboardTileByBinding(projectID, dashboardID, insightID uint64) (*model.DashboardTile, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	tile := store.findTileByBinding(projectID, dashboardID, insightID)
	if tile == nil {
		return nil, http.StatusNotFound
	}
	copied := *tile
	return &copied, http.StatusFound
}

func (store *Memory) findTileByBinding(projectID, dashboardID, insightID uint64) *model.DashboardTile {
	for _, tile := range store.tiles {
		if tile.ProjectID == projectID && tile.DashboardID == dashboardID && tile.InsightID == insightID {
			return tile
		}
	}
	return nil
}

func containsProject(projectIDs []uint64, projectID uint64) bool {
	return U.ContainsUint64InArray(projectIDs, projectID)
}

// insightSchedulable Conditions shared by both candidate streams.
func insightSchedulable(insight *model.Insight) bool {
	return insight != nil && !insight.IsDeleted && !insight.HasEmptyFilters()
}

func underAttemptCeiling(refreshAttempt *int32) bool {
	if refreshAttempt == nil {
		return true
	}
	return *refreshAttempt <= C.GetMaxRefreshAttempts()
}

func outsideDebounceWindow(lastRefresh *time.Time) bool {
	if lastRefresh == nil {
		return true
	}
	return lastRefresh.Before(U.TimeNow().Add(-C.GetRefreshDebounceWindow()))
}

func dashboardEligible(dashboard *model.Dashboard) bool {
	if dashboard == nil || dashboard.IsDeleted {
		return false
	}
	if dashboard.Shared {
		return true
	}
	return dashboard.LastAccessedAt != nil &&
		dashboard.LastAccessedAt.After(U.TimeNow().Add(-C.GetRecentDashboardWindow()))
}

func (store *Memory) eligibleTiles(projectIDs []uint64) []*model.DashboardTile {
	eligible := make([]*model.DashboardTile, 0)
	for _, tile := range store.tiles {
		if !containsProject(projectIDs, tile.ProjectID) {
			continue
		}
		if tile.Refreshing || !underAttemptCeiling(tile.RefreshAttempt) || !outsideDebounceWindow(tile.LastRefresh) {
			continue
		}
		if !insightSchedulable(store.insights[tile.InsightID]) {
			continue
		}
		if !dashboardEligible(store.dashboards[tile.DashboardID]) {
			continue
		}
		eligible = append(eligible, tile)
	}

	// last_refresh ASC NULLS FIRST, then fewest failures first.
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if (a.LastRefresh == nil) != (b.LastRefresh == nil) {
			return a.LastRefresh == nil
		}
		if a.LastRefresh != nil && !a.LastRefresh.Equal(*b.LastRefresh) {
			return a.LastRefresh.Before(*b.LastRefresh)
		}
		if a.RefreshAttemptCount() != b.RefreshAttemptCount() {
			return a.RefreshAttemptCount() < b.RefreshAttemptCount()
		}
		return a.ID < b.ID
	})
	return eligible
}

func (store *Memory) GetTileRefreshCandidates(projectIDs []uint64, limit int) ([]model.RefreshCandidate, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	eligible := store.eligibleTiles(projectIDs)
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	candidates := make([]model.RefreshCandidate, 0, len(eligible))
	for _, tile := range eligible {
		insight := *store.insights[tile.InsightID]
		dashboard := *store.dashboards[tile.DashboardID]
		copied := *tile
		candidates = append(candidates, model.NewTileCandidate(&insight, &dashboard, &copied))
	}
	return candidates, http.StatusFound
}

func (store *Memory) CountTileRefreshCandidates(projectIDs []uint64) (int64, int) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return int64(len(store.eligibleTiles(projectIDs))), http.StatusFound
}

func (store *Memory) CountNeverRefreshedTiles(projectIDs []uint64) (int64, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var count int64
	for _, tile := range store.eligibleTiles(projectIDs) {
		if tile.LastRefresh == nil {
			count++
		}
	}
	return count, http.StatusFound
}

func (store *Memory) GetOldestRefreshedTiles(projectIDs []uint64, limit int) ([]model.DashboardTile, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	refreshed := make([]model.DashboardTile, 0)
	for _, tile := range store.eligibleTiles(projectIDs) {
		if tile.LastRefresh != nil {
			refreshed = append(refreshed, *tile)
		}
		if len(refreshed) == limit {
			break
		}
	}
	return refreshed, http.StatusFound
}

func (store *Memory) eligibleSharedInsights(projectIDs []uint64) []*model.Insight {
	eligible := make([]*model.Insight, 0)
	for _, insight := range store.insights {
		if !containsProject(projectIDs, insight.ProjectID) || !insight.Shared {
			continue
		}
		if !insightSchedulable(insight) {
			continue
		}
		if insight.Refreshing || !underAttemptCeiling(insight.RefreshAttempt) || !outsideDebounceWindow(insight.LastRefresh) {
			continue
		}
		eligible = append(eligible, insight)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if (a.LastRefresh == nil) != (b.LastRefresh == nil) {
			return a.LastRefresh == nil
		}
		if a.LastRefresh != nil && !a.LastRefresh.Equal(*b.LastRefresh) {
			return a.LastRefresh.Before(*b.LastRefresh)
		}
		return a.ID < b.ID
	})
	return eligible
}

func (store *Memory) GetSharedInsightRefreshCandidates(projectIDs []uint64, limit int) ([]model.RefreshCandidate, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	eligible := store.eligibleSharedInsights(projectIDs)
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	candidates := make([]model.RefreshCandidate, 0, len(eligible))
	for _, insight := range eligible {
		copied := *insight
		candidates = append(candidates, model.NewStandaloneCandidate(&copied))
	}
	return candidates, http.StatusFound
}

func (store *Memory) CountSharedInsightRefreshCandidates(projectIDs []uint64) (int64, int) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return int64(len(store.eligibleSharedInsights(projectIDs))), http.StatusFound
}

func (store *Memory) UpdateTileFiltersHash(projectID, dashboardID, insightID uint64, filtersHash string) (int64, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	tile := store.findTileByBinding(projectID, dashboardID, insightID)
	if tile == nil {
		return 0, http.StatusAccepted
	}
	if tile.FiltersHash != nil && *tile.FiltersHash == filtersHash {
		return 0, http.StatusAccepted
	}

	hash := filtersHash
	tile.FiltersHash = &hash
	tile.UpdatedAt = U.TimeNow()
	return 1, http.StatusAccepted
}

func (store *Memory) UpdateInsightFiltersHash(projectID, insightID uint64, filtersHash string) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	insight, exists := store.insights[insightID]
	if !exists || insight.ProjectID != projectID {
		return http.StatusNotFound
	}

	hash := filtersHash
	insight.FiltersHash = &hash
	insight.UpdatedAt = U.TimeNow()
	return http.StatusAccepted
}

func incrementAttempt(refreshAttempt *int32) *int32 {
	attempt := int32(1)
	if refreshAttempt != nil {
		attempt = *refreshAttempt + 1
	}
	return &attempt
}

func (store *Memory) IncrementRefreshAttempt(projectID, insightID uint64, dashboardID *uint64) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	if insight, exists := store.insights[insightID]; exists && insight.ProjectID == projectID {
		insight.RefreshAttempt = incrementAttempt(insight.RefreshAttempt)
	}

	if dashboardID != nil {
		if tile := store.findTileByBinding(projectID, *dashboardID, insightID); tile != nil {
			tile.RefreshAttempt = incrementAttempt(tile.RefreshAttempt)
		}
	}
	return http.StatusAccepted
}

func (store *Memory) ClearRefreshing(projectID, insightID uint64, dashboardID *uint64) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	if insight, exists := store.insights[insightID]; exists && insight.ProjectID == projectID {
		insight.Refreshing = false
	}

	if dashboardID != nil {
		if tile := store.findTileByBinding(projectID, *dashboardID, insightID); tile != nil {
			tile.Refreshing = false
		}
	}
	return http.StatusAccepted
}

func (store *Memory) MarkRefreshingByFiltersHash(projectID uint64, filtersHash string, refreshing bool) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, insight := range store.insights {
		if insight.ProjectID == projectID && insight.FiltersHash != nil && *insight.FiltersHash == filtersHash {
			insight.Refreshing = refreshing
		}
	}
	for _, tile := range store.tiles {
		if tile.ProjectID == projectID && tile.FiltersHash != nil && *tile.FiltersHash == filtersHash {
			tile.Refreshing = refreshing
		}
	}
	return http.StatusAccepted
}

func (store *Memory) CompleteRefreshByFiltersHash(projectID uint64, filtersHash string, refreshedAt time.Time) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	zero := int32(0)
	for _, insight := range store.insights {
		if insight.ProjectID == projectID && insight.FiltersHash != nil && *insight.FiltersHash == filtersHash {
			refreshed := refreshedAt
			attempt := zero
			insight.LastRefresh = &refreshed
			insight.RefreshAttempt = &attempt
			insight.Refreshing = false
		}
	}
	for _, tile := range store.tiles {
		if tile.ProjectID == projectID && tile.FiltersHash != nil && *tile.FiltersHash == filtersHash {
			refreshed := refreshedAt
			attempt := zero
			tile.LastRefresh = &refreshed
			tile.RefreshAttempt = &attempt
			tile.Refreshing = false
		}
	}
	return http.StatusAccepted
}

func (store *Memory) ExistsWithFiltersHash(projectID uint64, filtersHash string) (bool, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, insight := range store.insights {
		if insight.ProjectID == projectID && !insight.IsDeleted &&
			insight.FiltersHash != nil && *insight.FiltersHash == filtersHash {
			return true, http.StatusFound
		}
	}
	for _, tile := range store.tiles {
		if tile.ProjectID == projectID && tile.FiltersHash != nil && *tile.FiltersHash == filtersHash {
			return true, http.StatusFound
		}
	}
	return false, http.StatusNotFound
}

func (store *Memory) UpsertEventDefinition(projectID uint64, name string, lastSeenAt time.Time) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.eventDefinitions[projectID]; !exists {
		store.eventDefinitions[projectID] = make(map[string]time.Time)
	}
	store.eventDefinitions[projectID][name] = lastSeenAt
	return http.StatusAccepted
}

func (store *Memory) GetLastEventIngestion(projectID uint64, eventNames []string) (*time.Time, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	definitions, exists := store.eventDefinitions[projectID]
	if !exists {
		return nil, http.StatusNotFound
	}

	var latest *time.Time
	for _, name := range eventNames {
		if lastSeenAt, seen := definitions[name]; seen {
			if latest == nil || lastSeenAt.After(*latest) {
				seenAt := lastSeenAt
				latest = &seenAt
			}
		}
	}
	if latest == nil {
		return nil, http.StatusNotFound
	}
	return latest, http.StatusFound
}

func (store *Memory) RecentlyActiveProjects(since time.Time) ([]uint64, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	projectIDs := make([]uint64, 0)
	for projectID, definitions := range store.eventDefinitions {
		for _, lastSeenAt := range definitions {
			if lastSeenAt.After(since) {
				projectIDs = append(projectIDs, projectID)
				break
			}
		}
	}
	if len(projectIDs) == 0 {
		return nil, http.StatusNotFound
	}
	return projectIDs, http.StatusFound
}
