package model

// CacheType Closed enumeration of result computation routines. The type
// stored alongside each cached result decides which engine routine
// recomputes it and whether event recency alone can prove the cached
// result is still current.
type CacheType string

const (
	CacheTypeTrends              CacheType = "Trends"
	CacheTypeStickiness          CacheType = "Stickiness"
	CacheTypeRetention           CacheType = "Retention"
	CacheTypePaths               CacheType = "Path"
	CacheTypeFunnel              CacheType = "Funnel"
	CacheTypeFunnelStrict        CacheType = "FunnelStrict"
	CacheTypeFunnelUnordered     CacheType = "FunnelUnordered"
	CacheTypeFunnelTrends        CacheType = "FunnelTrends"
	CacheTypeFunnelTimeToConvert CacheType = "FunnelTimeToConvert"
)

// CacheTypeSpec Per cache type scheduling behavior.
type CacheTypeSpec struct {
	// SkipOnFreshEvents Whether an event-recency check alone is enough
	// to prove the cached result is still correct. False for retention
	// and path style computations whose windows shift with time, and
	// for the funnel family where step semantics depend on ordering.
	SkipOnFreshEvents bool
}

var cacheTypeRegistry = map[CacheType]CacheTypeSpec{
	CacheTypeTrends:              {SkipOnFreshEvents: true},
	CacheTypeStickiness:          {SkipOnFreshEvents: true},
	CacheTypeRetention:           {SkipOnFreshEvents: false},
	CacheTypePaths:               {SkipOnFreshEvents: false},
	CacheTypeFunnel:              {SkipOnFreshEvents: false},
	CacheTypeFunnelStrict:        {SkipOnFreshEvents: false},
	CacheTypeFunnelUnordered:     {SkipOnFreshEvents: false},
	CacheTypeFunnelTrends:        {SkipOnFreshEvents: false},
	CacheTypeFunnelTimeToConvert: {SkipOnFreshEvents: false},
}

// GetCacheTypeSpec Lookup with a safe default for unknown types.
func GetCacheTypeSpec(cacheType CacheType) CacheTypeSpec {
	if spec, exists := cacheTypeRegistry[cacheType]; exists {
		return spec
	}
	return CacheTypeSpec{SkipOnFreshEvents: false}
}

// GetCacheType Derives the computation routine from the filter.
func GetCacheType(filter *Filter) CacheType {
	normalized := filter.Normalize()

	switch normalized.InsightKind {
	case InsightKindRetention:
		return CacheTypeRetention
	case InsightKindStickiness:
		return CacheTypeStickiness
	case InsightKindPaths:
		return CacheTypePaths
	case InsightKindFunnels:
		switch normalized.FunnelVizType {
		case FunnelVizTypeTrends:
			return CacheTypeFunnelTrends
		case FunnelVizTypeTimeToConvert:
			return CacheTypeFunnelTimeToConvert
		}
		switch normalized.FunnelOrderType {
		case FunnelOrderTypeStrict:
			return CacheTypeFunnelStrict
		case FunnelOrderTypeUnordered:
			return CacheTypeFunnelUnordered
		}
		return CacheTypeFunnel
	}
	return CacheTypeTrends
}
