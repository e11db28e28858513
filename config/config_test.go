package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfAppliesDefaults(t *testing.T) {
	InitConf(&Configuration{Env: DEVELOPMENT})

	config := GetConfig()
	assert.Equal(t, "insightcache", config.AppName)
	assert.Equal(t, StoreTypePostgres, config.StoreType)
	assert.Equal(t, 5, GetParallelInsightRefreshCount())
	assert.Equal(t, float64(7*24*60*60), GetCachedResultsTTL())
	assert.Equal(t, 3*time.Minute, GetRefreshDebounceWindow())
	assert.Equal(t, 7*24*time.Hour, GetRecentDashboardWindow())
	assert.Equal(t, int32(2), GetMaxRefreshAttempts())
	assert.Equal(t, 48*time.Hour, GetProjectActivityWindow())
	assert.True(t, IsDevelopment())
}

func TestInitConfFromEnvOverrides(t *testing.T) {
	os.Setenv("INSIGHTCACHE_ENV", "staging")
	os.Setenv("INSIGHTCACHE_STORE_TYPE", StoreTypeMemory)
	os.Setenv("INSIGHTCACHE_PARALLEL_INSIGHT_REFRESH", "8")
	os.Setenv("INSIGHTCACHE_REFRESH_DEBOUNCE_MINUTES", "10")
	defer func() {
		os.Unsetenv("INSIGHTCACHE_ENV")
		os.Unsetenv("INSIGHTCACHE_STORE_TYPE")
		os.Unsetenv("INSIGHTCACHE_PARALLEL_INSIGHT_REFRESH")
		os.Unsetenv("INSIGHTCACHE_REFRESH_DEBOUNCE_MINUTES")
	}()

	require.NoError(t, InitConfFromEnv())

	assert.Equal(t, "staging", GetConfig().Env)
	assert.Equal(t, StoreTypeMemory, GetStoreType())
	assert.Equal(t, 8, GetParallelInsightRefreshCount())
	assert.Equal(t, 10*time.Minute, GetRefreshDebounceWindow())
	assert.False(t, IsDevelopment())
}

func TestSetParallelInsightRefreshCount(t *testing.T) {
	InitConf(&Configuration{Env: DEVELOPMENT})

	SetParallelInsightRefreshCount(12)
	assert.Equal(t, 12, GetParallelInsightRefreshCount())
}
