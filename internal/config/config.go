package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig
	MySQL  MySQLConfig
	Redis  RedisConfig
	ES     ElasticsearchConfig
	IDGen  IDGenConfig
	Lock   LockConfig
	Cache  CacheConfig
	Sync   SyncConfig
	Search SearchConfig
}

type AppConfig struct {
	Env            string // development, production
	LogLevel       string
	HTTPAddr       string
	GRPCAddr       string
	HealthInterval time.Duration
}

type MySQLConfig struct {
	DSN          string
	MaxOpenConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

type IDGenConfig struct {
	DatacenterID int64
	WorkerID     int64
}

type LockConfig struct {
	TTL time.Duration
}

type CacheConfig struct {
	VariantNamespace string
	UserNamespace    string
	// TTL of zero keeps entries until invalidated.
	TTL time.Duration
}

type SyncConfig struct {
	BatchSchedule string
	BatchTimeout  time.Duration
	BulkSize      int
	Workers       int
	QueueSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	JobTimeout    time.Duration
}

type SearchConfig struct {
	DefaultPageSize    int
	MaxPageSize        int
	HydrateConcurrency int
}

// Load reads an optional config.env from the working directory, then the
// environment. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:            v.GetString("APP_ENV"),
			LogLevel:       v.GetString("LOG_LEVEL"),
			HTTPAddr:       v.GetString("HTTP_ADDR"),
			GRPCAddr:       v.GetString("GRPC_ADDR"),
			HealthInterval: v.GetDuration("HEALTH_INTERVAL"),
		},
		MySQL: MySQLConfig{
			DSN:          v.GetString("MYSQL_DSN"),
			MaxOpenConns: v.GetInt("MYSQL_MAX_OPEN_CONNS"),
			AutoMigrate:  v.GetBool("MYSQL_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		},
		ES: ElasticsearchConfig{
			Addresses: splitList(v.GetString("ES_ADDRESSES")),
			Username:  v.GetString("ES_USERNAME"),
			Password:  v.GetString("ES_PASSWORD"),
			Index:     v.GetString("ES_INDEX"),
		},
		IDGen: IDGenConfig{
			DatacenterID: v.GetInt64("IDGEN_DATACENTER_ID"),
			WorkerID:     v.GetInt64("IDGEN_WORKER_ID"),
		},
		Lock: LockConfig{
			TTL: v.GetDuration("LOCK_TTL"),
		},
		Cache: CacheConfig{
			VariantNamespace: v.GetString("CACHE_VARIANT_NAMESPACE"),
			UserNamespace:    v.GetString("CACHE_USER_NAMESPACE"),
			TTL:              v.GetDuration("CACHE_TTL"),
		},
		Sync: SyncConfig{
			BatchSchedule: v.GetString("SYNC_BATCH_SCHEDULE"),
			BatchTimeout:  v.GetDuration("SYNC_BATCH_TIMEOUT"),
			BulkSize:      v.GetInt("SYNC_BULK_SIZE"),
			Workers:       v.GetInt("SYNC_WORKERS"),
			QueueSize:     v.GetInt("SYNC_QUEUE_SIZE"),
			MaxAttempts:   v.GetInt("SYNC_MAX_ATTEMPTS"),
			RetryBackoff:  v.GetDuration("SYNC_RETRY_BACKOFF"),
			JobTimeout:    v.GetDuration("SYNC_JOB_TIMEOUT"),
		},
		Search: SearchConfig{
			DefaultPageSize:    v.GetInt("SEARCH_DEFAULT_PAGE_SIZE"),
			MaxPageSize:        v.GetInt("SEARCH_MAX_PAGE_SIZE"),
			HydrateConcurrency: v.GetInt("SEARCH_HYDRATE_CONCURRENCY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":50051")
	v.SetDefault("HEALTH_INTERVAL", "10s")

	v.SetDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/catalog?parseTime=true")
	v.SetDefault("MYSQL_MAX_OPEN_CONNS", 50)
	v.SetDefault("MYSQL_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)

	v.SetDefault("ES_ADDRESSES", "http://localhost:9200")
	v.SetDefault("ES_INDEX", "variants")

	v.SetDefault("IDGEN_DATACENTER_ID", 0)
	v.SetDefault("IDGEN_WORKER_ID", 0)

	v.SetDefault("LOCK_TTL", "30s")

	v.SetDefault("CACHE_VARIANT_NAMESPACE", "variantDetails")
	v.SetDefault("CACHE_USER_NAMESPACE", "userDetails")
	v.SetDefault("CACHE_TTL", "0s")

	v.SetDefault("SYNC_BATCH_SCHEDULE", "0 3 * * *")
	v.SetDefault("SYNC_BATCH_TIMEOUT", "30m")
	v.SetDefault("SYNC_BULK_SIZE", 500)
	v.SetDefault("SYNC_WORKERS", 4)
	v.SetDefault("SYNC_QUEUE_SIZE", 10000)
	v.SetDefault("SYNC_MAX_ATTEMPTS", 3)
	v.SetDefault("SYNC_RETRY_BACKOFF", "200ms")
	v.SetDefault("SYNC_JOB_TIMEOUT", "5s")

	v.SetDefault("SEARCH_DEFAULT_PAGE_SIZE", 20)
	v.SetDefault("SEARCH_MAX_PAGE_SIZE", 100)
	v.SetDefault("SEARCH_HYDRATE_CONCURRENCY", 8)
}

// Validate rejects settings that would fail later in a less obvious place.
func (c *Config) Validate() error {
	var errs []error

	if c.MySQL.DSN == "" {
		errs = append(errs, errors.New("MYSQL_DSN is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	if len(c.ES.Addresses) == 0 {
		errs = append(errs, errors.New("ES_ADDRESSES is required"))
	}
	if c.ES.Index == "" {
		errs = append(errs, errors.New("ES_INDEX is required"))
	}
	if c.IDGen.DatacenterID < 0 || c.IDGen.DatacenterID > 31 {
		errs = append(errs, fmt.Errorf("IDGEN_DATACENTER_ID must be in [0, 31], got %d", c.IDGen.DatacenterID))
	}
	if c.IDGen.WorkerID < 0 || c.IDGen.WorkerID > 31 {
		errs = append(errs, fmt.Errorf("IDGEN_WORKER_ID must be in [0, 31], got %d", c.IDGen.WorkerID))
	}
	if c.App.HealthInterval <= 0 {
		errs = append(errs, fmt.Errorf("HEALTH_INTERVAL must be positive, got %s", c.App.HealthInterval))
	}
	if c.Lock.TTL <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TTL must be positive, got %s", c.Lock.TTL))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must not be negative, got %s", c.Cache.TTL))
	}
	if c.Cache.VariantNamespace == "" || c.Cache.UserNamespace == "" {
		errs = append(errs, errors.New("cache namespaces must not be empty"))
	}
	if _, err := cron.ParseStandard(c.Sync.BatchSchedule); err != nil {
		errs = append(errs, fmt.Errorf("SYNC_BATCH_SCHEDULE %q: %w", c.Sync.BatchSchedule, err))
	}
	if c.Sync.BulkSize <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_BULK_SIZE must be positive, got %d", c.Sync.BulkSize))
	}
	if c.Sync.Workers <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_WORKERS must be positive, got %d", c.Sync.Workers))
	}
	if c.Sync.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_JOB_TIMEOUT must be positive, got %s", c.Sync.JobTimeout))
	}
	if c.Search.DefaultPageSize <= 0 || c.Search.MaxPageSize < c.Search.DefaultPageSize {
		errs = append(errs, fmt.Errorf("search page sizes invalid: default %d, max %d",
			c.Search.DefaultPageSize, c.Search.MaxPageSize))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
