package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jinzhu/gorm/dialects/postgres"
	"github.com/stretchr/testify/assert"
)

func jsonbFromString(raw string) postgres.Jsonb {
	return postgres.Jsonb{RawMessage: json.RawMessage(raw)}
}

func TestGenerateFingerprintIsDeterministic(t *testing.T) {
	filter := &Filter{
		InsightKind: InsightKindTrends,
		Events: []FilterEntity{
			{ID: "signup", Type: EntityTypeEvents},
			{ID: "pageview", Type: EntityTypeEvents},
		},
		DateFrom: "-7d",
	}

	reordered := &Filter{
		InsightKind: InsightKindTrends,
		Events: []FilterEntity{
			{ID: "pageview", Type: EntityTypeEvents},
			{ID: "signup", Type: EntityTypeEvents},
		},
		DateFrom: "-7d",
	}

	key1, err := GenerateFingerprint(filter, 1)
	assert.Nil(t, err)
	key2, err := GenerateFingerprint(reordered, 1)
	assert.Nil(t, err)
	assert.Equal(t, key1, key2)
	assert.Contains(t, key1, "cache_")
}

func TestGenerateFingerprintIgnoresDisplayOnlyFields(t *testing.T) {
	filter := &Filter{
		Events:   []FilterEntity{{ID: "pageview", Type: EntityTypeEvents}},
		DateFrom: "-7d",
	}
	styled := &Filter{
		Events:                []FilterEntity{{ID: "pageview", Type: EntityTypeEvents}},
		DateFrom:              "-7d",
		Display:               "ActionsLineGraph",
		AggregationAxisFormat: "percentage",
		LegendHidden:          true,
	}

	key1, err := GenerateFingerprint(filter, 1)
	assert.Nil(t, err)
	key2, err := GenerateFingerprint(styled, 1)
	assert.Nil(t, err)
	assert.Equal(t, key1, key2)
}

func TestGenerateFingerprintIsProjectScoped(t *testing.T) {
	filter := &Filter{Events: []FilterEntity{{ID: "pageview", Type: EntityTypeEvents}}}

	key1, err := GenerateFingerprint(filter, 1)
	assert.Nil(t, err)
	key2, err := GenerateFingerprint(filter, 2)
	assert.Nil(t, err)
	assert.NotEqual(t, key1, key2)
}

func TestEffectiveFilterDashboardOverrideWins(t *testing.T) {
	insightFilters := jsonbFromString(`{"insight":"TRENDS","events":[{"id":"pageview","type":"events"}],"date_from":"-7d"}`)
	dashboard := &Dashboard{ID: 1, ProjectID: 1, Filters: jsonbFromString(`{"date_from":"-30d"}`)}

	filter, err := EffectiveFilter(insightFilters, dashboard)
	assert.Nil(t, err)
	assert.Equal(t, "-30d", filter.DateFrom)
	assert.Len(t, filter.Events, 1)
	assert.Equal(t, "pageview", filter.Events[0].ID)
}

func TestEffectiveFilterWithoutOverrideMatchesStandalone(t *testing.T) {
	insightFilters := jsonbFromString(`{"insight":"TRENDS","events":[{"id":"pageview","type":"events"}],"date_from":"-7d"}`)
	dashboard := &Dashboard{ID: 1, ProjectID: 1}

	standalone, err := EffectiveFilter(insightFilters, nil)
	assert.Nil(t, err)
	onDashboard, err := EffectiveFilter(insightFilters, dashboard)
	assert.Nil(t, err)

	key1, err := GenerateFingerprint(standalone, 1)
	assert.Nil(t, err)
	key2, err := GenerateFingerprint(onDashboard, 1)
	assert.Nil(t, err)
	assert.Equal(t, key1, key2)
}

func TestGetCacheTypeForInsightKinds(t *testing.T) {
	assert.Equal(t, CacheTypeTrends, GetCacheType(&Filter{}))
	assert.Equal(t, CacheTypeTrends, GetCacheType(&Filter{InsightKind: InsightKindTrends}))
	assert.Equal(t, CacheTypeStickiness, GetCacheType(&Filter{InsightKind: InsightKindStickiness}))
	assert.Equal(t, CacheTypeRetention, GetCacheType(&Filter{InsightKind: InsightKindRetention}))
	assert.Equal(t, CacheTypePaths, GetCacheType(&Filter{InsightKind: InsightKindPaths}))
	assert.Equal(t, CacheTypeFunnel, GetCacheType(&Filter{InsightKind: InsightKindFunnels}))
	assert.Equal(t, CacheTypeFunnelStrict,
		GetCacheType(&Filter{InsightKind: InsightKindFunnels, FunnelOrderType: FunnelOrderTypeStrict}))
	assert.Equal(t, CacheTypeFunnelUnordered,
		GetCacheType(&Filter{InsightKind: InsightKindFunnels, FunnelOrderType: FunnelOrderTypeUnordered}))
	assert.Equal(t, CacheTypeFunnelTrends,
		GetCacheType(&Filter{InsightKind: InsightKindFunnels, FunnelVizType: FunnelVizTypeTrends}))
	assert.Equal(t, CacheTypeFunnelTimeToConvert,
		GetCacheType(&Filter{InsightKind: InsightKindFunnels, FunnelVizType: FunnelVizTypeTimeToConvert}))
}

func TestSkipOnFreshEventsIsLimitedToRecencySafeTypes(t *testing.T) {
	assert.True(t, GetCacheTypeSpec(CacheTypeTrends).SkipOnFreshEvents)
	assert.True(t, GetCacheTypeSpec(CacheTypeStickiness).SkipOnFreshEvents)
	assert.False(t, GetCacheTypeSpec(CacheTypeRetention).SkipOnFreshEvents)
	assert.False(t, GetCacheTypeSpec(CacheTypePaths).SkipOnFreshEvents)
	assert.False(t, GetCacheTypeSpec(CacheTypeFunnel).SkipOnFreshEvents)
	assert.False(t, GetCacheTypeSpec(CacheType("Unknown")).SkipOnFreshEvents)
}

func TestResolveDateRangeRelative(t *testing.T) {
	at := time.Date(2026, 8, 20, 15, 4, 5, 0, time.UTC)
	filter := &Filter{DateFrom: "-14d"}

	from, to := filter.ResolveDateRange(at)
	assert.Equal(t, time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 20, to.Day())
	assert.Equal(t, 23, to.Hour())
}

func TestResolveDateRangeAbsolute(t *testing.T) {
	at := time.Date(2026, 8, 20, 15, 4, 5, 0, time.UTC)
	filter := &Filter{DateFrom: "2026-08-01", DateTo: "2026-08-10"}

	from, to := filter.ResolveDateRange(at)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 10, to.Day())
}

func TestEventNamesFallsBackToEntityID(t *testing.T) {
	filter := &Filter{
		Events: []FilterEntity{
			{ID: "pageview", Type: EntityTypeEvents},
			{ID: "2", Type: EntityTypeEvents, Name: "signup"},
		},
		Actions: []FilterEntity{{ID: "7", Type: EntityTypeActions, Name: "clicked cta"}},
	}

	names := filter.EventNames()
	assert.Equal(t, []string{"pageview", "signup"}, names)
}

func TestFilterIsEmpty(t *testing.T) {
	assert.True(t, (&Filter{}).IsEmpty())
	assert.False(t, (&Filter{Events: []FilterEntity{{ID: "pageview", Type: EntityTypeEvents}}}).IsEmpty())
	assert.False(t, (&Filter{Actions: []FilterEntity{{ID: "7", Type: EntityTypeActions}}}).IsEmpty())
}

func TestOverrideMatchesInsight(t *testing.T) {
	insight := &Insight{
		ID:        1,
		ProjectID: 1,
		Filters:   jsonbFromString(`{"insight":"TRENDS","events":[{"id":"pageview","type":"events"}]}`),
	}

	noOverride := &Dashboard{ID: 1, ProjectID: 1}
	assert.True(t, noOverride.OverrideMatchesInsight(insight))

	sameOverride := &Dashboard{ID: 2, ProjectID: 1,
		Filters: jsonbFromString(`{"events":[{"type":"events","id":"pageview"}],"insight":"TRENDS"}`)}
	assert.True(t, sameOverride.OverrideMatchesInsight(insight))

	differentOverride := &Dashboard{ID: 3, ProjectID: 1, Filters: jsonbFromString(`{"date_from":"-30d"}`)}
	assert.False(t, differentOverride.OverrideMatchesInsight(insight))
}
