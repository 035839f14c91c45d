// Package config loads application configuration from TOML files and
// environment variables. Environment variables use the SHOPOPS_ prefix and
// override file values, e.g. SHOPOPS_DATABASE_PASSWORD overrides
// database.password.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the automator service.
type Config struct {
	App        AppConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Engine     EngineConfig
	Approval   ApprovalConfig
	Providers  ProvidersConfig
	Escalation EscalationConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Archive    ArchiveConfig
	Scheduler  SchedulerConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds service identity and listen settings.
type AppConfig struct {
	Name string
	Env  string // development, staging, production
	Port int
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or a file path
}

// HTTPConfig holds HTTP server tuning knobs.
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64
	TrustedProxies []string
}

// EngineConfig tunes plan execution.
type EngineConfig struct {
	Workers     int
	PlanTTL     time.Duration
	ApprovalTTL time.Duration
}

// ApprovalConfig configures signed approval grants.
type ApprovalConfig struct {
	GrantSecret string
	GrantTTL    time.Duration
	Issuer      string
}

// ProviderConfig describes one upstream provider connection.
type ProviderConfig struct {
	Kind    string        `mapstructure:"kind"` // rest or sandbox; empty defaults to sandbox
	Name    string        `mapstructure:"name"`
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProvidersConfig wires the upstream provider fleet and its pacing/retry
// behaviour. Pace maps provider names to minimum intervals between calls.
type ProvidersConfig struct {
	DefaultPaceInterval time.Duration
	Pace                map[string]time.Duration
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration

	Storefront ProviderConfig
	Suppliers  []ProviderConfig
	Messaging  ProviderConfig
	AdPlatform ProviderConfig
	Payment    ProviderConfig
}

// EscalationConfig names the operator contact for manual-review alerts.
type EscalationConfig struct {
	Contact string
}

// DatabaseConfig holds plan history storage settings. Driver selects
// between sqlite (Path) and postgres (Host/Port/...).
type DatabaseConfig struct {
	Driver          string
	Path            string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds the apply-ledger backend settings.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// ArchiveConfig holds S3-compatible result archive settings.
type ArchiveConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Prefix          string
}

// ScheduledJob describes one recurring plan submission.
type ScheduledJob struct {
	Name       string         `mapstructure:"name"`
	Agent      string         `mapstructure:"agent"`
	Schedule   string         `mapstructure:"schedule"`
	Parameters map[string]any `mapstructure:"parameters"`
	DryRun     bool           `mapstructure:"dry_run"`
}

// SchedulerConfig holds recurring automation jobs.
type SchedulerConfig struct {
	Enabled bool
	Jobs    []ScheduledJob
}

// TelemetryConfig holds OpenTelemetry and profiling settings.
type TelemetryConfig struct {
	Enabled              bool
	ServiceName          string
	CollectorEndpoint    string
	Insecure             bool
	SamplingRatio        float64
	DBTraceEnabled       bool
	DBSlowQueryThreshold time.Duration
	ProfilingEnabled     bool
	ProfilingServerAddr  string
}

// Load reads configuration from the given directory (and the working
// directory) plus SHOPOPS_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHOPOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, everything can come from env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetInt("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodyBytes:   v.GetInt64("http.max_body_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Engine: EngineConfig{
			Workers:     v.GetInt("engine.workers"),
			PlanTTL:     v.GetDuration("engine.plan_ttl"),
			ApprovalTTL: v.GetDuration("engine.approval_ttl"),
		},
		Approval: ApprovalConfig{
			GrantSecret: v.GetString("approval.grant_secret"),
			GrantTTL:    v.GetDuration("approval.grant_ttl"),
			Issuer:      v.GetString("approval.issuer"),
		},
		Providers: ProvidersConfig{
			DefaultPaceInterval: v.GetDuration("providers.default_pace_interval"),
			RetryMaxAttempts:    v.GetInt("providers.retry_max_attempts"),
			RetryInitialBackoff: v.GetDuration("providers.retry_initial_backoff"),
			RetryMaxBackoff:     v.GetDuration("providers.retry_max_backoff"),
		},
		Escalation: EscalationConfig{
			Contact: v.GetString("escalation.contact"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Archive: ArchiveConfig{
			Enabled:         v.GetBool("archive.enabled"),
			Endpoint:        v.GetString("archive.endpoint"),
			Region:          v.GetString("archive.region"),
			Bucket:          v.GetString("archive.bucket"),
			AccessKeyID:     v.GetString("archive.access_key_id"),
			SecretAccessKey: v.GetString("archive.secret_access_key"),
			UsePathStyle:    v.GetBool("archive.use_path_style"),
			Prefix:          v.GetString("archive.prefix"),
		},
		Scheduler: SchedulerConfig{
			Enabled: v.GetBool("scheduler.enabled"),
		},
		Telemetry: TelemetryConfig{
			Enabled:              v.GetBool("telemetry.enabled"),
			ServiceName:          v.GetString("telemetry.service_name"),
			CollectorEndpoint:    v.GetString("telemetry.collector_endpoint"),
			Insecure:             v.GetBool("telemetry.insecure"),
			SamplingRatio:        v.GetFloat64("telemetry.sampling_ratio"),
			DBTraceEnabled:       v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThreshold: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:     v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddr:  v.GetString("telemetry.profiling_server_address"),
		},
	}

	pace, err := paceIntervals(v.GetStringMapString("providers.pace"))
	if err != nil {
		return nil, err
	}
	cfg.Providers.Pace = pace

	if err := v.UnmarshalKey("providers.storefront", &cfg.Providers.Storefront); err != nil {
		return nil, fmt.Errorf("parse providers.storefront: %w", err)
	}
	if err := v.UnmarshalKey("providers.suppliers", &cfg.Providers.Suppliers); err != nil {
		return nil, fmt.Errorf("parse providers.suppliers: %w", err)
	}
	if err := v.UnmarshalKey("providers.messaging", &cfg.Providers.Messaging); err != nil {
		return nil, fmt.Errorf("parse providers.messaging: %w", err)
	}
	if err := v.UnmarshalKey("providers.ad_platform", &cfg.Providers.AdPlatform); err != nil {
		return nil, fmt.Errorf("parse providers.ad_platform: %w", err)
	}
	if err := v.UnmarshalKey("providers.payment", &cfg.Providers.Payment); err != nil {
		return nil, fmt.Errorf("parse providers.payment: %w", err)
	}
	if err := v.UnmarshalKey("scheduler.jobs", &cfg.Scheduler.Jobs); err != nil {
		return nil, fmt.Errorf("parse scheduler.jobs: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func paceIntervals(raw map[string]string) (map[string]time.Duration, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]time.Duration, len(raw))
	for name, s := range raw {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parse providers.pace[%s]: %w", name, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("providers.pace[%s] must not be negative", name)
		}
		out[name] = d
	}
	return out, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "automator"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 4 << 20
	}

	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Engine.PlanTTL == 0 {
		cfg.Engine.PlanTTL = 24 * time.Hour
	}
	if cfg.Engine.ApprovalTTL == 0 {
		cfg.Engine.ApprovalTTL = time.Hour
	}

	if cfg.Approval.GrantTTL == 0 {
		cfg.Approval.GrantTTL = time.Hour
	}
	if cfg.Approval.Issuer == "" {
		cfg.Approval.Issuer = cfg.App.Name
	}

	if cfg.Providers.DefaultPaceInterval == 0 {
		cfg.Providers.DefaultPaceInterval = 200 * time.Millisecond
	}
	if cfg.Providers.RetryMaxAttempts == 0 {
		cfg.Providers.RetryMaxAttempts = 3
	}
	if cfg.Providers.RetryInitialBackoff == 0 {
		cfg.Providers.RetryInitialBackoff = 100 * time.Millisecond
	}
	if cfg.Providers.RetryMaxBackoff == 0 {
		cfg.Providers.RetryMaxBackoff = 2 * time.Second
	}

	if cfg.Escalation.Contact == "" {
		cfg.Escalation.Contact = "ops@localhost"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "automator.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "automator"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "automator"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 5 * time.Minute
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "us-east-1"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "plans"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.DBSlowQueryThreshold == 0 {
		cfg.Telemetry.DBSlowQueryThreshold = 200 * time.Millisecond
	}
}

func validate(cfg *Config) error {
	switch cfg.App.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("app.env must be development, staging or production, got %q", cfg.App.Env)
	}

	if cfg.App.Port < 1 || cfg.App.Port > 65535 {
		return fmt.Errorf("app.port must be between 1 and 65535, got %d", cfg.App.Port)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}

	if cfg.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1, got %d", cfg.Engine.Workers)
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", cfg.Database.Driver)
	}

	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) must not exceed database.max_open_conns (%d)",
			cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	}

	if cfg.Telemetry.SamplingRatio < 0 || cfg.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1, got %v", cfg.Telemetry.SamplingRatio)
	}

	for i, job := range cfg.Scheduler.Jobs {
		if job.Name == "" {
			return fmt.Errorf("scheduler.jobs[%d]: name is required", i)
		}
		if job.Agent == "" {
			return fmt.Errorf("scheduler job %q: agent is required", job.Name)
		}
		if job.Schedule == "" {
			return fmt.Errorf("scheduler job %q: schedule is required", job.Name)
		}
	}

	if cfg.App.Env == "production" {
		if len(cfg.Approval.GrantSecret) < 32 {
			return fmt.Errorf("approval.grant_secret must be at least 32 characters in production")
		}
		if cfg.Database.Driver == "postgres" {
			if cfg.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if cfg.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode must not be disable in production")
			}
		}
	}

	return nil
}

// DSN builds the postgres connection string. Credentials are URL-escaped so
// passwords with special characters survive.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the redis host:port pair.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
