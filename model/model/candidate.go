package model

import (
	"time"
)

// RefreshCandidate Tagged variant over the two schedulable entity
// shapes: an insight bound to a dashboard through a tile, or a
// standalone shared insight. Accessors below give the pipeline one
// uniform view of both.
type RefreshCandidate struct {
	Insight   *Insight
	Dashboard *Dashboard
	Tile      *DashboardTile
}

func NewTileCandidate(insight *Insight, dashboard *Dashboard, tile *DashboardTile) RefreshCandidate {
	return RefreshCandidate{Insight: insight, Dashboard: dashboard, Tile: tile}
}

func NewStandaloneCandidate(insight *Insight) RefreshCandidate {
	return RefreshCandidate{Insight: insight}
}

func (candidate *RefreshCandidate) IsTile() bool {
	return candidate.Tile != nil
}

// LastRefresh The refresh timestamp the debounce window applies to: the
// tile's for a dashboard candidate, the insight's otherwise.
func (candidate *RefreshCandidate) LastRefresh() *time.Time {
	if candidate.IsTile() {
		return candidate.Tile.LastRefresh
	}
	return candidate.Insight.LastRefresh
}

func (candidate *RefreshCandidate) DashboardID() *uint64 {
	if candidate.Dashboard == nil {
		return nil
	}
	return &candidate.Dashboard.ID
}

// RefreshWorkPayload The self-contained payload of one recompute work
// unit. Everything the executor needs travels with it so units run in
// any order, on any worker.
type RefreshWorkPayload struct {
	FilterJSON  string     `json:"filter"`
	ProjectID   uint64     `json:"project_id"`
	InsightID   uint64     `json:"insight_id"`
	DashboardID *uint64    `json:"dashboard_id"`
	LastRefresh *time.Time `json:"last_refresh"`
}

// CachedResult The freshness store blob format. The window fields
// record the absolute date range the result was computed for, since a
// relative range in the query definition resolves differently at every
// refresh.
type CachedResult struct {
	Result      []ResultRow `json:"result"`
	Type        CacheType   `json:"type"`
	LastRefresh time.Time   `json:"last_refresh"`
	WindowFrom  time.Time   `json:"window_from"`
	WindowTo    time.Time   `json:"window_to"`
}

// ResultRow One row of a computed insight result. Opaque to this
// subsystem.
type ResultRow map[string]interface{}
