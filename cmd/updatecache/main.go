package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	C "insightcache/config"
	"insightcache/metrics"
	"insightcache/model/model"
	"insightcache/task/updatecache"
	U "insightcache/util"
)

// queryEngineStub Stands in until the analytics query service binding
// lands. Every compute reports no results, so scheduling, fingerprint
// reconciliation and bookkeeping can run end to end against real data.
type queryEngineStub struct{}

func (e *queryEngineStub) ComputeTrends(filter *model.Filter, projectID uint64) ([]model.ResultRow, error) {
	return nil, nil
}

func (e *queryEngineStub) ComputeStickiness(filter *model.Filter, projectID uint64) ([]model.ResultRow, error) {
	return nil, nil
}

func (e *queryEngineStub) ComputeRetention(filter *model.Filter, projectID uint64) ([]model.ResultRow, error) {
	return nil, nil
}

func (e *queryEngineStub) ComputePaths(filter *model.Filter, projectID uint64) ([]model.ResultRow, error) {
	return nil, nil
}

func (e *queryEngineStub) ComputeFunnel(cacheType model.CacheType, filter *model.Filter,
	projectID uint64) ([]model.ResultRow, error) {
	return nil, nil
}

func main() {
	envFlag := flag.String("env", C.DEVELOPMENT, "Environment. Could be development|staging|production")
	numRoutinesFlag := flag.Int("num_routines", 5, "Number of insights to refresh in parallel. Also the per stream candidate budget")

	dbHost := flag.String("db_host", "localhost", "")
	dbPort := flag.Int("db_port", 5432, "")
	dbUser := flag.String("db_user", "autometa", "")
	dbName := flag.String("db_name", "autometa", "")
	dbPass := flag.String("db_pass", "", "")
	dbMaxOpenConnections := flag.Int("db_max_open_connections", 20, "Max no.of open connections allowed on connection pool of postgres")
	dbMaxIdleConnections := flag.Int("db_max_idle_connections", 10, "Max no.of idle connections allowed on connection pool of postgres")

	redisHost := flag.String("redis_host", "localhost", "")
	redisPort := flag.Int("redis_port", 6379, "")

	sentryDSN := flag.String("sentry_dsn", "", "Sentry DSN")
	overrideAppName := flag.String("app_name", "", "Override default app_name.")

	gcpProjectID := flag.String("gcp_project_id", "", "Project ID on Google Cloud")
	gcpProjectLocation := flag.String("gcp_project_location", "", "Location of google cloud project cluster")

	refreshDebounceMinutes := flag.Int("refresh_debounce_minutes", 0, "Override the minimum gap between refreshes of one entity")
	recentDashboardDays := flag.Int("recent_dashboard_days", 0, "Override the dashboard recency window")
	maxRefreshAttempts := flag.Int("max_refresh_attempts", 0, "Override the consecutive failure ceiling")

	flag.Parse()

	taskID := "update_insight_cache"
	if *overrideAppName != "" {
		taskID = *overrideAppName
	}
	logCtx := log.WithFields(log.Fields{"Prefix": taskID})

	if *envFlag != C.DEVELOPMENT && *envFlag != "staging" && *envFlag != "production" {
		panic(fmt.Errorf("env [ %s ] not recognised", *envFlag))
	} else if *numRoutinesFlag <= 0 {
		panic(fmt.Errorf("Num routines must at least be 1"))
	}

	config := &C.Configuration{
		AppName: taskID,
		Env:     *envFlag,
		DBInfo: C.DBConf{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Name:     *dbName,
			Password: *dbPass,
		},
		RedisHost:              *redisHost,
		RedisPort:              *redisPort,
		SentryDSN:              *sentryDSN,
		ParallelInsightRefresh: *numRoutinesFlag,
		RefreshDebounceMinutes: *refreshDebounceMinutes,
		RecentDashboardDays:    *recentDashboardDays,
		MaxRefreshAttempts:     *maxRefreshAttempts,
	}

	C.InitConf(config)
	if err := C.InitDB(*dbMaxIdleConnections, *dbMaxOpenConnections); err != nil {
		logCtx.WithError(err).Panic("Failed to initialize DB")
	}
	C.InitRedisConnection(config.RedisHost, config.RedisPort, *numRoutinesFlag*2)
	C.InitSentry(config.SentryDSN, config.AppName)
	metrics.InitMetrics(config.Env, config.AppName, *gcpProjectID, *gcpProjectLocation)
	defer sentry.Flush(5 * time.Second)

	startTime := time.Now()
	job := updatecache.NewJob(&queryEngineStub{}, *numRoutinesFlag)
	dispatched, queueDepth := job.UpdateCachedItems()
	job.Wait()

	logCtx.WithFields(log.Fields{
		"Env":        *envFlag,
		"Dispatched": dispatched,
		"QueueDepth": queueDepth,
		"TimeTaken":  U.SecondsToHMSString(int64(time.Since(startTime).Seconds())),
	}).Info("Completed insight cache update run")
}
