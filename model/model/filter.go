package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/jinzhu/gorm/dialects/postgres"
	"github.com/jinzhu/now"
	"github.com/pkg/errors"

	U "insightcache/util"
)

// Insight kinds carried on the query definition.
const (
	InsightKindTrends     = "TRENDS"
	InsightKindFunnels    = "FUNNELS"
	InsightKindRetention  = "RETENTION"
	InsightKindStickiness = "STICKINESS"
	InsightKindPaths      = "PATHS"
)

const (
	FunnelVizTypeSteps         = "steps"
	FunnelVizTypeTrends        = "trends"
	FunnelVizTypeTimeToConvert = "time_to_convert"

	FunnelOrderTypeOrdered   = "ordered"
	FunnelOrderTypeStrict    = "strict"
	FunnelOrderTypeUnordered = "unordered"
)

const (
	EntityTypeEvents  = "events"
	EntityTypeActions = "actions"
)

// FilterEntity One event or action series on a query definition.
type FilterEntity struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Order int    `json:"order,omitempty"`
	Math  string `json:"math,omitempty"`
}

// Filter The query definition owned by an insight, possibly overridden
// by the hosting dashboard. Field order is fixed so the normalized JSON
// serialization is deterministic.
type Filter struct {
	InsightKind string         `json:"insight,omitempty"`
	Events      []FilterEntity `json:"events,omitempty"`
	Actions     []FilterEntity `json:"actions,omitempty"`
	DateFrom    string         `json:"date_from,omitempty"`
	DateTo      string         `json:"date_to,omitempty"`
	Interval    string         `json:"interval,omitempty"`
	Breakdown   string         `json:"breakdown,omitempty"`

	FunnelVizType   string `json:"funnel_viz_type,omitempty"`
	FunnelOrderType string `json:"funnel_order_type,omitempty"`

	// Display-only fields. Excluded from fingerprinting since they never
	// change the computed result. The exclusion list is part of the
	// cache key contract; extend it only together with a cache flush.
	Display               string `json:"display,omitempty"`
	AggregationAxisFormat string `json:"aggregation_axis_format,omitempty"`
	LegendHidden          bool   `json:"legend_hidden,omitempty"`
}

// Normalize Returns a copy with display-only fields cleared, entity
// lists sorted and the insight kind defaulted. Two filters asking the
// same question normalize to the same value.
func (filter *Filter) Normalize() *Filter {
	normalized := *filter

	if normalized.InsightKind == "" {
		normalized.InsightKind = InsightKindTrends
	}

	normalized.Display = ""
	normalized.AggregationAxisFormat = ""
	normalized.LegendHidden = false

	normalized.Events = sortedEntities(filter.Events)
	normalized.Actions = sortedEntities(filter.Actions)
	return &normalized
}

func sortedEntities(entities []FilterEntity) []FilterEntity {
	if len(entities) == 0 {
		return nil
	}

	sorted := make([]FilterEntity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		if sorted[i].ID != sorted[j].ID {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// IsEmpty A filter with no series is not a runnable query and is never
// scheduled for refresh.
func (filter *Filter) IsEmpty() bool {
	return len(filter.Events) == 0 && len(filter.Actions) == 0
}

// EventNames Names of plain event series referenced by the filter.
func (filter *Filter) EventNames() []string {
	names := make([]string, 0, len(filter.Events))
	for _, entity := range filter.Events {
		name := entity.Name
		if name == "" {
			name = entity.ID
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ResolveDateRange Resolves the filter's date range against the given
// anchor time. Relative ranges use the "-<n>d" form; absolute dates are
// expected as 2006-01-02. Defaults to the trailing 7 days.
func (filter *Filter) ResolveDateRange(at time.Time) (time.Time, time.Time) {
	to := now.New(at).EndOfDay()
	if filter.DateTo != "" {
		if parsed, err := time.Parse("2006-01-02", filter.DateTo); err == nil {
			to = now.New(parsed).EndOfDay()
		}
	}

	from := now.New(at.AddDate(0, 0, -7)).BeginningOfDay()
	if filter.DateFrom != "" {
		if strings.HasPrefix(filter.DateFrom, "-") && strings.HasSuffix(filter.DateFrom, "d") {
			if days, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(filter.DateFrom, "-"), "d")); err == nil {
				from = now.New(at.AddDate(0, 0, -days)).BeginningOfDay()
			}
		} else if parsed, err := time.Parse("2006-01-02", filter.DateFrom); err == nil {
			from = now.New(parsed).BeginningOfDay()
		}
	}
	return from, to
}

// ToNormalizedJSON Deterministic serialization of the normalized filter.
func (filter *Filter) ToNormalizedJSON() (string, error) {
	normalizedJsonb, err := U.EncodeStructTypeToPostgresJsonb(filter.Normalize())
	if err != nil {
		return "", err
	}
	return string(normalizedJsonb.RawMessage), nil
}

// GenerateFingerprint Content-derived cache key for a filter bound to a
// project. Equal effective queries on the same project always produce
// the same key, so unrelated entities asking the same question share
// one freshness store entry.
func GenerateFingerprint(filter *Filter, projectID uint64) (string, error) {
	normalizedJSON, err := filter.ToNormalizedJSON()
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize normalized filter")
	}
	return "cache_" + U.GenerateHash([]byte(fmt.Sprintf("%s_%d", normalizedJSON, projectID))), nil
}

// EffectiveFilter Merges the dashboard's filter override onto the
// insight's own definition. Dashboard fields win where both define a
// field. A nil dashboard or an empty override leaves the insight
// definition untouched.
func EffectiveFilter(insightFilters postgres.Jsonb, dashboard *Dashboard) (*Filter, error) {
	insightMap, err := U.DecodePostgresJsonb(&insightFilters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode insight filters")
	}

	if dashboard != nil && !U.IsEmptyPostgresJsonb(&dashboard.Filters) {
		dashboardMap, err := U.DecodePostgresJsonb(&dashboard.Filters)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode dashboard filters")
		}
		if err := mergo.Merge(insightMap, *dashboardMap, mergo.WithOverride); err != nil {
			return nil, errors.Wrap(err, "failed to merge dashboard filters")
		}
	}

	mergedJsonb, err := U.EncodeStructTypeToPostgresJsonb(insightMap)
	if err != nil {
		return nil, err
	}

	var filter Filter
	if err := U.DecodePostgresJsonbToStructType(mergedJsonb, &filter); err != nil {
		return nil, errors.Wrap(err, "failed to decode effective filter")
	}
	return &filter, nil
}
