package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Bus       BusConfig
	Workers   WorkersConfig
	Providers ProvidersConfig
	Freshness FreshnessConfig
	Notify    NotifyConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// AutoMigrate applies pending schema migrations at server startup
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the settings used to verify ops API bearer tokens
type JWTConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// Bus transports
const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
)

// BusConfig holds the event bus settings
type BusConfig struct {
	Transport   string        // memory or redis
	Partitions  int           // partitions per topic log
	Namespace   string        // Redis key namespace
	Block       time.Duration // XREAD BLOCK timeout
	LeaseTTL    time.Duration // partition lease lifetime
	BatchSize   int
	StopTimeout time.Duration // graceful drain bound on shutdown
	// StrictGraph makes startup fail when the saga graph has dead ends
	StrictGraph     bool
	DedupEnabled    bool
	DedupTTL        time.Duration
	CompactInterval time.Duration // 0 disables periodic compaction
}

// WorkersConfig holds the worker pool sizing
type WorkersConfig struct {
	MembersPerGroup int
}

// ProviderConfig describes one HTTP enrichment provider
type ProviderConfig struct {
	Name             string
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	RateLimit        float64 // requests per second, 0 = unlimited
	Burst            int
	MaxRetries       int
	BreakerFailures  uint32 // consecutive failures before the breaker opens
	BreakerOpenDelay time.Duration
}

// Enabled reports whether the provider has an endpoint
func (p ProviderConfig) Enabled() bool {
	return p.BaseURL != ""
}

// ProvidersConfig holds the enrichment providers of every saga
type ProvidersConfig struct {
	PersonPrimary   ProviderConfig
	PersonSecondary ProviderConfig
	// Company lists the company providers in priority order
	Company     []ProviderConfig
	CompanyNews ProviderConfig
	Profile     ProviderConfig
	Goals       ProviderConfig
}

// FreshnessConfig holds the staleness gates
type FreshnessConfig struct {
	PersonSecondaryTTL time.Duration
	CompanyNewsTTL     time.Duration
}

// Notification sinks
const (
	NotifyLog  = "log"
	NotifyAMQP = "amqp"
)

// NotifyConfig holds the failure notification sink settings
type NotifyConfig struct {
	Sink       string // log or amqp
	AMQPURL    string
	Exchange   string
	RoutingKey string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	// PublishRate is POST /events per second per tenant; zero disables the limit
	PublishRate  float64
	PublishBurst int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MEETPREP_ prefix (e.g., MEETPREP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("MEETPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:   v.GetString("jwt.secret"),
			Issuer:   v.GetString("jwt.issuer"),
			TokenTTL: v.GetDuration("jwt.token_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Bus: BusConfig{
			Transport:       v.GetString("bus.transport"),
			Partitions:      v.GetInt("bus.partitions"),
			Namespace:       v.GetString("bus.namespace"),
			Block:           v.GetDuration("bus.block"),
			LeaseTTL:        v.GetDuration("bus.lease_ttl"),
			BatchSize:       v.GetInt("bus.batch_size"),
			StopTimeout:     v.GetDuration("bus.stop_timeout"),
			StrictGraph:     v.GetBool("bus.strict_graph"),
			DedupEnabled:    v.GetBool("bus.dedup_enabled"),
			DedupTTL:        v.GetDuration("bus.dedup_ttl"),
			CompactInterval: v.GetDuration("bus.compact_interval"),
		},
		Workers: WorkersConfig{
			MembersPerGroup: v.GetInt("workers.members_per_group"),
		},
		Providers: ProvidersConfig{
			PersonPrimary:   loadProvider(v, "providers.person_primary"),
			PersonSecondary: loadProvider(v, "providers.person_secondary"),
			CompanyNews:     loadProvider(v, "providers.company_news"),
			Profile:         loadProvider(v, "providers.profile"),
			Goals:           loadProvider(v, "providers.goals"),
		},
		Freshness: FreshnessConfig{
			PersonSecondaryTTL: v.GetDuration("freshness.person_secondary_ttl"),
			CompanyNewsTTL:     v.GetDuration("freshness.company_news_ttl"),
		},
		Notify: NotifyConfig{
			Sink:       v.GetString("notify.sink"),
			AMQPURL:    v.GetString("notify.amqp_url"),
			Exchange:   v.GetString("notify.exchange"),
			RoutingKey: v.GetString("notify.routing_key"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			PublishRate:    v.GetFloat64("http.publish_rate"),
			PublishBurst:   v.GetInt("http.publish_burst"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	// Company providers are tried in the order of providers.company_order
	for _, name := range v.GetStringSlice("providers.company_order") {
		p := loadProvider(v, "providers.company."+name)
		p.Name = name
		cfg.Providers.Company = append(cfg.Providers.Company, p)
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadProvider(v *viper.Viper, key string) ProviderConfig {
	return ProviderConfig{
		Name:             v.GetString(key + ".name"),
		BaseURL:          v.GetString(key + ".base_url"),
		APIKey:           v.GetString(key + ".api_key"),
		Timeout:          v.GetDuration(key + ".timeout"),
		RateLimit:        v.GetFloat64(key + ".rate_limit"),
		Burst:            v.GetInt(key + ".burst"),
		MaxRetries:       v.GetInt(key + ".max_retries"),
		BreakerFailures:  v.GetUint32(key + ".breaker_failures"),
		BreakerOpenDelay: v.GetDuration(key + ".breaker_open_delay"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "meetprep"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "meetprep"
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
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "meetprep"
	}
	if cfg.JWT.TokenTTL == 0 {
		cfg.JWT.TokenTTL = 12 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	// Bus defaults
	if cfg.Bus.Transport == "" {
		cfg.Bus.Transport = TransportMemory
	}
	if cfg.Bus.Partitions == 0 {
		cfg.Bus.Partitions = 8
	}
	if cfg.Bus.Namespace == "" {
		cfg.Bus.Namespace = "meetprep"
	}
	if cfg.Bus.Block == 0 {
		cfg.Bus.Block = 2 * time.Second
	}
	if cfg.Bus.LeaseTTL == 0 {
		cfg.Bus.LeaseTTL = 15 * time.Second
	}
	if cfg.Bus.BatchSize == 0 {
		cfg.Bus.BatchSize = 64
	}
	if cfg.Bus.StopTimeout == 0 {
		cfg.Bus.StopTimeout = 30 * time.Second
	}
	if cfg.Bus.DedupTTL == 0 {
		cfg.Bus.DedupTTL = 24 * time.Hour
	}
	if cfg.Workers.MembersPerGroup == 0 {
		cfg.Workers.MembersPerGroup = 1
	}

	// Provider defaults
	for _, p := range []*ProviderConfig{
		&cfg.Providers.PersonPrimary,
		&cfg.Providers.PersonSecondary,
		&cfg.Providers.CompanyNews,
		&cfg.Providers.Profile,
		&cfg.Providers.Goals,
	} {
		applyProviderDefaults(p)
	}
	for i := range cfg.Providers.Company {
		applyProviderDefaults(&cfg.Providers.Company[i])
	}
	if cfg.Providers.PersonPrimary.Name == "" {
		cfg.Providers.PersonPrimary.Name = "person-primary"
	}
	if cfg.Providers.PersonSecondary.Name == "" {
		cfg.Providers.PersonSecondary.Name = "person-secondary"
	}
	if cfg.Providers.CompanyNews.Name == "" {
		cfg.Providers.CompanyNews.Name = "company-news"
	}
	if cfg.Providers.Profile.Name == "" {
		cfg.Providers.Profile.Name = "profile"
	}
	if cfg.Providers.Goals.Name == "" {
		cfg.Providers.Goals.Name = "goals"
	}

	// Freshness defaults
	if cfg.Freshness.PersonSecondaryTTL == 0 {
		cfg.Freshness.PersonSecondaryTTL = 7 * 24 * time.Hour
	}
	if cfg.Freshness.CompanyNewsTTL == 0 {
		cfg.Freshness.CompanyNewsTTL = 30 * 24 * time.Hour
	}

	if cfg.Notify.Sink == "" {
		cfg.Notify.Sink = NotifyLog
	}
	if cfg.Notify.Exchange == "" {
		cfg.Notify.Exchange = "meetprep.notifications"
	}
	if cfg.Notify.RoutingKey == "" {
		cfg.Notify.RoutingKey = "enrichment.failed"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.PublishRate > 0 && cfg.HTTP.PublishBurst <= 0 {
		cfg.HTTP.PublishBurst = int(cfg.HTTP.PublishRate) + 1
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "meetprep"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	if p.Burst == 0 {
		p.Burst = 1
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.BreakerFailures == 0 {
		p.BreakerFailures = 5
	}
	if p.BreakerOpenDelay == 0 {
		p.BreakerOpenDelay = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Bus.Transport {
	case TransportMemory, TransportRedis:
	default:
		return fmt.Errorf("bus.transport must be %q or %q, got %q", TransportMemory, TransportRedis, c.Bus.Transport)
	}
	if c.Bus.Partitions < 1 {
		return fmt.Errorf("bus.partitions must be positive")
	}
	if c.Workers.MembersPerGroup < 1 {
		return fmt.Errorf("workers.members_per_group must be positive")
	}

	switch c.Notify.Sink {
	case NotifyLog:
	case NotifyAMQP:
		if c.Notify.AMQPURL == "" {
			return fmt.Errorf("notify.amqp_url is required when notify.sink is amqp")
		}
	default:
		return fmt.Errorf("notify.sink must be %q or %q, got %q", NotifyLog, NotifyAMQP, c.Notify.Sink)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Bus.Transport == TransportMemory {
			return fmt.Errorf("bus.transport cannot be memory in production (state is lost on restart)")
		}
		// Database tracing: full SQL logging is a security risk in production
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
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

// Addr returns host:port of the Redis server
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
