// Package config loads and validates service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultDailyBudget is the shared daily API budget in quota units.
	DefaultDailyBudget = 10000
	// DefaultLowQuotaWarning is the remaining-units level that triggers a warning log.
	DefaultLowQuotaWarning = 1000
	// DefaultWindowSize is the trailing sample count used for channel statistics.
	DefaultWindowSize = 50

	// DefaultSampleRetention bounds how long stat samples are kept.
	DefaultSampleRetention = 90 * 24 * time.Hour

	defaultTickInterval     = 1 * time.Minute
	defaultRunInterval      = 72 * time.Hour
	defaultPublishTimeout   = 10 * time.Minute
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultMaxPerChannel    = 3
	defaultRetryBudget      = 3
	defaultRecentCleanups   = 20
	defaultRetentionDays    = 7
	defaultThresholdFloor   = 1000
	defaultThresholdCeiling = 500000
)

// Config holds all shortsync configuration.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Quota     QuotaConfig     `yaml:"quota"`
	Threshold ThresholdConfig `yaml:"threshold"`
	Stats     StatsConfig     `yaml:"stats"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Ingest    ServiceConfig   `yaml:"ingest"`
	Uploader  ServiceConfig   `yaml:"uploader"`
	Groups    []GroupConfig   `yaml:"groups"`
}

// ServiceConfig points at one collaborator sidecar (ingestion or uploader).
type ServiceConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`   // bearer token, optional
	Timeout time.Duration `yaml:"timeout"` // per-request timeout
}

// ServerConfig configures the reporting/control HTTP API.
type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g. ":8075"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default 30s
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig configures the dedup cache connection.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	DedupTTL time.Duration `yaml:"dedup_ttl"` // zero keeps published-candidate keys forever
}

// QuotaConfig configures the daily API budget ledger.
type QuotaConfig struct {
	DailyBudget    int64            `yaml:"daily_budget"`    // default 10000
	Timezone       string           `yaml:"timezone"`        // day-rollover timezone, default UTC
	LowWaterMark   int64            `yaml:"low_water_mark"`  // warn below this many remaining units
	OperationCosts map[string]int64 `yaml:"operation_costs"` // unit cost per operation name
}

// ThresholdConfig configures size classification and dynamic thresholds.
// Boundaries are on average views over the sample window; floors are the
// per-class minimum threshold values.
type ThresholdConfig struct {
	SmallMaxAverage  int64   `yaml:"small_max_average"`  // avg below this is small (default 20000)
	MediumMaxAverage int64   `yaml:"medium_max_average"` // avg up to this is medium (default 100000)
	SmallRatio       float64 `yaml:"small_ratio"`        // threshold = ratio * average (default 0.70)
	MediumRatio      float64 `yaml:"medium_ratio"`       // threshold = ratio * median (default 0.80)
	LargeRatio       float64 `yaml:"large_ratio"`        // threshold = ratio * p75 (default 0.70)
	SmallFloor       int64   `yaml:"small_floor"`        // default 3000
	MediumFloor      int64   `yaml:"medium_floor"`       // default 8000
	LargeFloor       int64   `yaml:"large_floor"`        // default 15000
	Ceiling          int64   `yaml:"ceiling"`            // clamp so an outlier cannot wall off a channel
	Default          int64   `yaml:"default"`            // fallback when a channel has no samples
}

// StatsConfig configures the channel statistics sample window.
type StatsConfig struct {
	WindowSize int           `yaml:"window_size"` // trailing sample count, default 50
	Retention  time.Duration `yaml:"retention"`   // samples older than this age out, default 90 days
}

// SchedulerConfig configures the orchestrator loop.
type SchedulerConfig struct {
	TickInterval   time.Duration `yaml:"tick_interval"`    // DUE polling cadence
	MaxPerChannel  int           `yaml:"max_per_channel"`  // candidates queued per channel per run
	RetryBudget    int           `yaml:"retry_budget"`     // consecutive channel failures before the group errors
	PublishTimeout time.Duration `yaml:"publish_timeout"`  // per-candidate collaborator timeout
}

// CleanupConfig configures retention accounting.
type CleanupConfig struct {
	RetentionDays int `yaml:"retention_days"` // advisory window the external cleaner enforces
	RecentRecords int `yaml:"recent_records"` // records returned by the summary accessor
}

// GroupConfig defines one channel group and its publish schedule.
type GroupConfig struct {
	ID          string        `yaml:"id"`
	Channels    []string      `yaml:"channels"`
	PublishDays []string      `yaml:"publish_days"` // weekday names, empty means any day
	RunInterval time.Duration `yaml:"run_interval"` // default 72h
}

// Weekdays parses the configured publish-day names.
func (g *GroupConfig) Weekdays() ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(g.PublishDays))
	for _, name := range g.PublishDays {
		day, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", name)
}

// DefaultThresholds returns the stock size-class boundaries, ratios, and floors.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		SmallMaxAverage:  20000,
		MediumMaxAverage: 100000,
		SmallRatio:       0.70,
		MediumRatio:      0.80,
		LargeRatio:       0.70,
		SmallFloor:       3000,
		MediumFloor:      8000,
		LargeFloor:       15000,
		Ceiling:          defaultThresholdCeiling,
		Default:          defaultThresholdFloor,
	}
}

// DefaultOperationCosts returns the per-operation unit costs of the external API.
func DefaultOperationCosts() map[string]int64 {
	return map[string]int64{
		"upload_video":       1600,
		"download_metadata":  3,
		"check_video_exists": 1,
		"list_videos":        1,
	}
}

// Validate checks the configuration and returns an error if it is unusable.
func (c *Config) Validate() error {
	if c.Quota.DailyBudget <= 0 {
		return fmt.Errorf("quota.daily_budget must be positive, got %d", c.Quota.DailyBudget)
	}
	if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
		return fmt.Errorf("quota.timezone: %w", err)
	}
	for name, cost := range c.Quota.OperationCosts {
		if cost < 0 {
			return fmt.Errorf("quota.operation_costs[%s] must be non-negative, got %d", name, cost)
		}
	}
	if c.Threshold.SmallMaxAverage <= 0 || c.Threshold.MediumMaxAverage <= c.Threshold.SmallMaxAverage {
		return errors.New("threshold class boundaries must satisfy 0 < small_max_average < medium_max_average")
	}
	if c.Stats.WindowSize <= 0 {
		return fmt.Errorf("stats.window_size must be positive, got %d", c.Stats.WindowSize)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive, got %v", c.Scheduler.TickInterval)
	}
	if len(c.Groups) == 0 {
		return errors.New("at least one group is required")
	}
	seen := make(map[string]bool, len(c.Groups))
	for i := range c.Groups {
		g := &c.Groups[i]
		if g.ID == "" {
			return fmt.Errorf("groups[%d].id is required", i)
		}
		if seen[g.ID] {
			return fmt.Errorf("duplicate group id %q", g.ID)
		}
		seen[g.ID] = true
		if len(g.Channels) == 0 {
			return fmt.Errorf("group %s has no channels", g.ID)
		}
		if g.RunInterval <= 0 {
			return fmt.Errorf("group %s run_interval must be positive, got %v", g.ID, g.RunInterval)
		}
		if _, err := g.Weekdays(); err != nil {
			return fmt.Errorf("group %s: %w", g.ID, err)
		}
	}
	return nil
}

// setDefaults fills in zero-valued fields.
func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8075"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "shortsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Quota.DailyBudget == 0 {
		cfg.Quota.DailyBudget = DefaultDailyBudget
	}
	if cfg.Quota.Timezone == "" {
		cfg.Quota.Timezone = "UTC"
	}
	if cfg.Quota.LowWaterMark == 0 {
		cfg.Quota.LowWaterMark = DefaultLowQuotaWarning
	}
	if len(cfg.Quota.OperationCosts) == 0 {
		cfg.Quota.OperationCosts = DefaultOperationCosts()
	}
	setThresholdDefaults(&cfg.Threshold)
	if cfg.Stats.WindowSize == 0 {
		cfg.Stats.WindowSize = DefaultWindowSize
	}
	if cfg.Stats.Retention == 0 {
		cfg.Stats.Retention = DefaultSampleRetention
	}
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = defaultTickInterval
	}
	if cfg.Scheduler.MaxPerChannel == 0 {
		cfg.Scheduler.MaxPerChannel = defaultMaxPerChannel
	}
	if cfg.Scheduler.RetryBudget == 0 {
		cfg.Scheduler.RetryBudget = defaultRetryBudget
	}
	if cfg.Scheduler.PublishTimeout == 0 {
		cfg.Scheduler.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Ingest.URL == "" {
		cfg.Ingest.URL = "http://localhost:8091"
	}
	if cfg.Ingest.Timeout == 0 {
		cfg.Ingest.Timeout = 30 * time.Second
	}
	if cfg.Uploader.URL == "" {
		cfg.Uploader.URL = "http://localhost:8092"
	}
	if cfg.Uploader.Timeout == 0 {
		cfg.Uploader.Timeout = 5 * time.Minute
	}
	if cfg.Cleanup.RetentionDays == 0 {
		cfg.Cleanup.RetentionDays = defaultRetentionDays
	}
	if cfg.Cleanup.RecentRecords == 0 {
		cfg.Cleanup.RecentRecords = defaultRecentCleanups
	}
	for i := range cfg.Groups {
		if cfg.Groups[i].RunInterval == 0 {
			cfg.Groups[i].RunInterval = defaultRunInterval
		}
	}
}

func setThresholdDefaults(t *ThresholdConfig) {
	def := DefaultThresholds()
	if t.SmallMaxAverage == 0 {
		t.SmallMaxAverage = def.SmallMaxAverage
	}
	if t.MediumMaxAverage == 0 {
		t.MediumMaxAverage = def.MediumMaxAverage
	}
	if t.SmallRatio == 0 {
		t.SmallRatio = def.SmallRatio
	}
	if t.MediumRatio == 0 {
		t.MediumRatio = def.MediumRatio
	}
	if t.LargeRatio == 0 {
		t.LargeRatio = def.LargeRatio
	}
	if t.SmallFloor == 0 {
		t.SmallFloor = def.SmallFloor
	}
	if t.MediumFloor == 0 {
		t.MediumFloor = def.MediumFloor
	}
	if t.LargeFloor == 0 {
		t.LargeFloor = def.LargeFloor
	}
	if t.Ceiling == 0 {
		t.Ceiling = def.Ceiling
	}
	if t.Default == 0 {
		t.Default = def.Default
	}
}

// overrideWithEnvVars overrides configuration with environment variables.
func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("SHORTSYNC_PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	if v := os.Getenv("POSTGRES_SHORTSYNC_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("POSTGRES_SHORTSYNC_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("POSTGRES_SHORTSYNC_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("POSTGRES_SHORTSYNC_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("POSTGRES_SHORTSYNC_DB"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("INGEST_URL"); v != "" {
		cfg.Ingest.URL = v
	}
	if v := os.Getenv("UPLOADER_URL"); v != "" {
		cfg.Uploader.URL = v
	}
	if v := os.Getenv("QUOTA_DAILY_BUDGET"); v != "" {
		if budget, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.DailyBudget = budget
		}
	}
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
}

// loadEnvFiles loads .env files in priority order: ENV_FILE if set,
// otherwise .env.local then .env. Missing files are not an error.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load loads configuration from a YAML file, applies defaults, overrides
// with environment variables, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses common boolean string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
