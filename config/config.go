package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gomodule/redigo/redis"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

const DEVELOPMENT = "development"

const (
	StoreTypePostgres = "postgres"
	StoreTypeMemory   = "memory"
)

type DBConf struct {
	Host     string `json:"host" envconfig:"DB_HOST"`
	Port     int    `json:"port" envconfig:"DB_PORT"`
	User     string `json:"user" envconfig:"DB_USER"`
	Name     string `json:"name" envconfig:"DB_NAME"`
	Password string `json:"password" envconfig:"DB_PASSWORD"`
}

type Configuration struct {
	Env       string `json:"env" envconfig:"ENV"`
	AppName   string `json:"app_name" envconfig:"APP_NAME"`
	DBInfo    DBConf `json:"db"`
	RedisHost string `json:"redis_host" envconfig:"REDIS_HOST"`
	RedisPort int    `json:"redis_port" envconfig:"REDIS_PORT"`
	SentryDSN string `json:"sentry_dsn" envconfig:"SENTRY_DSN"`

	// StoreType selects the entity store implementation.
	StoreType string `json:"store_type" envconfig:"STORE_TYPE"`

	// ParallelInsightRefresh Budget per candidate stream on each
	// scheduling pass. Changeable at runtime.
	ParallelInsightRefresh int `json:"parallel_insight_refresh" envconfig:"PARALLEL_INSIGHT_REFRESH"`

	CachedResultsTTLSeconds    int `json:"cached_results_ttl_seconds" envconfig:"CACHED_RESULTS_TTL_SECONDS"`
	RefreshDebounceMinutes     int `json:"refresh_debounce_minutes" envconfig:"REFRESH_DEBOUNCE_MINUTES"`
	RecentDashboardDays        int `json:"recent_dashboard_days" envconfig:"RECENT_DASHBOARD_DAYS"`
	MaxRefreshAttempts         int `json:"max_refresh_attempts" envconfig:"MAX_REFRESH_ATTEMPTS"`
	ProjectActivityWindowHours int `json:"project_activity_window_hours" envconfig:"PROJECT_ACTIVITY_WINDOW_HOURS"`
	ActiveProjectsTTLSeconds   int `json:"active_projects_ttl_seconds" envconfig:"ACTIVE_PROJECTS_TTL_SECONDS"`
}

type Services struct {
	Db    *gorm.DB
	Redis *redis.Pool
}

var configuration *Configuration = nil
var services *Services = &Services{}
var settingsLock sync.RWMutex

func initLogging() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	if IsDevelopment() {
		log.SetLevel(log.DebugLevel)
	}
}

func applyDefaults(config *Configuration) {
	if config.AppName == "" {
		config.AppName = "insightcache"
	}
	if config.ParallelInsightRefresh <= 0 {
		config.ParallelInsightRefresh = 5
	}
	if config.CachedResultsTTLSeconds <= 0 {
		config.CachedResultsTTLSeconds = 7 * 24 * 60 * 60
	}
	if config.RefreshDebounceMinutes <= 0 {
		config.RefreshDebounceMinutes = 3
	}
	if config.RecentDashboardDays <= 0 {
		config.RecentDashboardDays = 7
	}
	if config.MaxRefreshAttempts <= 0 {
		config.MaxRefreshAttempts = 2
	}
	if config.ProjectActivityWindowHours <= 0 {
		config.ProjectActivityWindowHours = 48
	}
	if config.ActiveProjectsTTLSeconds <= 0 {
		config.ActiveProjectsTTLSeconds = 12 * 60 * 60
	}
	if config.StoreType == "" {
		config.StoreType = StoreTypePostgres
	}
}

// InitConf Sets up the configuration singleton and logging.
func InitConf(config *Configuration) {
	applyDefaults(config)
	configuration = config
	initLogging()
}

// InitConfFromEnv Loads configuration from INSIGHTCACHE_* environment
// variables on top of defaults.
func InitConfFromEnv() error {
	config := &Configuration{}
	if err := envconfig.Process("insightcache", config); err != nil {
		return err
	}
	InitConf(config)
	return nil
}

// InitDB Initializes the postgres connection with the given pool limits.
func InitDB(maxIdleConns, maxOpenConns int) error {
	conf := GetConfig()
	db, err := gorm.Open("postgres", fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=disable",
		conf.DBInfo.Host,
		conf.DBInfo.Port,
		conf.DBInfo.User,
		conf.DBInfo.Name,
		conf.DBInfo.Password))
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Failed Db Initialization")
		return err
	}

	db.DB().SetMaxIdleConns(maxIdleConns)
	db.DB().SetMaxOpenConns(maxOpenConns)
	db.LogMode(IsDevelopment())

	services.Db = db
	log.Info("Db Service initialized")
	return nil
}

// InitRedisConnection Initializes the redis connection pool used by the
// freshness store and the active projects index.
func InitRedisConnection(host string, port int, maxActive int) {
	services.Redis = &redis.Pool{
		MaxIdle:     maxActive,
		MaxActive:   maxActive,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
		},
	}
	log.Info("Redis Service initialized")
}

// InitSentry Registers a logrus hook that forwards error entries as
// sentry exceptions. No-op without a DSN.
func InitSentry(dsn, appName string) {
	if dsn == "" {
		return
	}

	err := sentry.Init(sentry.ClientOptions{Dsn: dsn, ServerName: appName, Environment: GetConfig().Env})
	if err != nil {
		log.WithError(err).Error("Failed to initialize sentry")
		return
	}
	log.AddHook(&sentryHook{})
}

type sentryHook struct{}

func (h *sentryHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel}
}

func (h *sentryHook) Fire(entry *log.Entry) error {
	if err, ok := entry.Data[log.ErrorKey].(error); ok {
		sentry.CaptureException(err)
		return nil
	}
	sentry.CaptureMessage(entry.Message)
	return nil
}

func GetConfig() *Configuration {
	return configuration
}

func GetServices() *Services {
	return services
}

// GetCacheRedisConnection Returns a connection from the pool. Caller
// must close it.
func GetCacheRedisConnection() redis.Conn {
	return services.Redis.Get()
}

func IsDevelopment() bool {
	return configuration != nil && strings.Compare(configuration.Env, DEVELOPMENT) == 0
}

func GetStoreType() string {
	return GetConfig().StoreType
}

// GetParallelInsightRefreshCount Per stream candidate budget for a pass.
func GetParallelInsightRefreshCount() int {
	settingsLock.RLock()
	defer settingsLock.RUnlock()
	return configuration.ParallelInsightRefresh
}

// SetParallelInsightRefreshCount Runtime override of the candidate budget.
func SetParallelInsightRefreshCount(count int) {
	settingsLock.Lock()
	defer settingsLock.Unlock()
	configuration.ParallelInsightRefresh = count
}

func GetCachedResultsTTL() float64 {
	return float64(GetConfig().CachedResultsTTLSeconds)
}

func GetRefreshDebounceWindow() time.Duration {
	return time.Duration(GetConfig().RefreshDebounceMinutes) * time.Minute
}

func GetRecentDashboardWindow() time.Duration {
	return time.Duration(GetConfig().RecentDashboardDays) * 24 * time.Hour
}

func GetMaxRefreshAttempts() int32 {
	return int32(GetConfig().MaxRefreshAttempts)
}

func GetProjectActivityWindow() time.Duration {
	return time.Duration(GetConfig().ProjectActivityWindowHours) * time.Hour
}

func GetActiveProjectsTTL() float64 {
	return float64(GetConfig().ActiveProjectsTTLSeconds)
}
