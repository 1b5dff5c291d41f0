package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Redis         RedisConfig         `yaml:"redis"`
	Search        SearchConfig        `yaml:"search"`
	Fusion        FusionConfig        `yaml:"fusion"`
	Context       ContextConfig       `yaml:"context"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"`
}

type CatalogConfig struct {
	ProductsFile string `yaml:"products_file"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addresses    []string      `yaml:"addresses"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type SearchConfig struct {
	DefaultLimit  int           `yaml:"default_limit"`
	MaxLimit      int           `yaml:"max_limit"`
	MethodTimeout time.Duration `yaml:"method_timeout"`

	AttributeThreshold float64 `yaml:"attribute_threshold"`
	FuzzyThreshold     float64 `yaml:"fuzzy_threshold"`
	KeywordThreshold   float64 `yaml:"keyword_threshold"`
	FeatureThreshold   float64 `yaml:"feature_threshold"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
	SlowQuery      SlowQueryConfig      `yaml:"slow_query"`
}

// FusionConfig carries the score-combination tuning values. The defaults
// reproduce the calibrated production behavior; they are config so operators
// can retune without a redeploy.
type FusionConfig struct {
	Strategy string `yaml:"strategy"`

	AttributeReliability float64 `yaml:"attribute_reliability"`
	FeatureReliability   float64 `yaml:"feature_reliability"`
	FuzzyReliability     float64 `yaml:"fuzzy_reliability"`
	KeywordReliability   float64 `yaml:"keyword_reliability"`

	MultiMethodBoost   float64 `yaml:"multi_method_boost"`
	ConsistencyBoost   float64 `yaml:"consistency_boost"`
	HighConfidenceBoost float64 `yaml:"high_confidence_boost"`
	ScoreCap           float64 `yaml:"score_cap"`

	ValidationWeight    float64 `yaml:"validation_weight"`
	MinResultConfidence float64 `yaml:"min_result_confidence"`
	MinValidationScore  float64 `yaml:"min_validation_score"`
}

type ContextConfig struct {
	SessionTTL      time.Duration `yaml:"session_ttl"`
	MaxHistory      int           `yaml:"max_history"`
	MaxEntities     int           `yaml:"max_entities"`
	MaxProducts     int           `yaml:"max_products"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type CacheConfig struct {
	MaxEntries             int            `yaml:"max_entries"`
	EntityOverlapThreshold float64        `yaml:"entity_overlap_threshold"`
	CleanupInterval        time.Duration  `yaml:"cleanup_interval"`
	TTL                    CacheTTLConfig `yaml:"ttl"`
}

type CacheTTLConfig struct {
	SearchResult      time.Duration `yaml:"search_result"`
	ProductInfo       time.Duration `yaml:"product_info"`
	ContextResolution time.Duration `yaml:"context_resolution"`
	FeatureExtraction time.Duration `yaml:"feature_extraction"`
	SimilarityScore   time.Duration `yaml:"similarity_score"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

type SlowQueryConfig struct {
	WarningThreshold  time.Duration `yaml:"warning_threshold"`
	CriticalThreshold time.Duration `yaml:"critical_threshold"`
}

type ObservabilityConfig struct {
	MetricsPort     int    `yaml:"metrics_port"`
	TracingEndpoint string `yaml:"tracing_endpoint"`
	LogLevel        string `yaml:"log_level"`
	ServiceName     string `yaml:"service_name"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       200,
		},
		Catalog: CatalogConfig{
			ProductsFile: "products.json",
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addresses:    []string{"localhost:6379"},
			PoolSize:     100,
			MinIdleConns: 10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit:  5,
			MaxLimit:      50,
			MethodTimeout: 200 * time.Millisecond,

			AttributeThreshold: 0.2,
			FuzzyThreshold:     0.6,
			KeywordThreshold:   0.5,
			FeatureThreshold:   0.4,

			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      100,
				Interval:         30 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
			Retry: RetryConfig{
				MaxAttempts: 2,
				InitialWait: 50 * time.Millisecond,
				MaxWait:     500 * time.Millisecond,
				Multiplier:  2.0,
			},
			SlowQuery: SlowQueryConfig{
				WarningThreshold:  200 * time.Millisecond,
				CriticalThreshold: 500 * time.Millisecond,
			},
		},
		Fusion: FusionConfig{
			Strategy: "weighted_average",

			AttributeReliability: 0.9,
			FeatureReliability:   0.85,
			FuzzyReliability:     0.8,
			KeywordReliability:   0.6,

			MultiMethodBoost:    0.15,
			ConsistencyBoost:    0.1,
			HighConfidenceBoost: 0.05,
			ScoreCap:            2.0,

			ValidationWeight:    0.2,
			MinResultConfidence: 0.3,
			MinValidationScore:  0.2,
		},
		Context: ContextConfig{
			SessionTTL:      30 * time.Minute,
			MaxHistory:      20,
			MaxEntities:     10,
			MaxProducts:     5,
			CleanupInterval: 5 * time.Minute,
		},
		Cache: CacheConfig{
			MaxEntries:             1000,
			EntityOverlapThreshold: 0.3,
			CleanupInterval:        1 * time.Minute,
			TTL: CacheTTLConfig{
				SearchResult:      30 * time.Minute,
				ProductInfo:       1 * time.Hour,
				ContextResolution: 15 * time.Minute,
				FeatureExtraction: 2 * time.Hour,
				SimilarityScore:   30 * time.Minute,
			},
		},
		Observability: ObservabilityConfig{
			MetricsPort: 9090,
			LogLevel:    "info",
			ServiceName: "context-search",
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Catalog.ProductsFile == "" {
		return fmt.Errorf("catalog products file required")
	}
	if c.Redis.Enabled && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("at least one redis address required when redis is enabled")
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("default result limit must be positive")
	}
	if c.Search.MaxLimit <= 0 || c.Search.MaxLimit > 1000 {
		return fmt.Errorf("max result limit must be between 1 and 1000")
	}
	if c.Search.MethodTimeout <= 0 {
		return fmt.Errorf("method timeout must be positive")
	}
	for name, v := range map[string]float64{
		"attribute_threshold": c.Search.AttributeThreshold,
		"fuzzy_threshold":     c.Search.FuzzyThreshold,
		"keyword_threshold":   c.Search.KeywordThreshold,
		"feature_threshold":   c.Search.FeatureThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
		}
	}
	switch c.Fusion.Strategy {
	case "weighted_average", "max_score", "rank_fusion", "bayesian":
	default:
		return fmt.Errorf("unknown fusion strategy: %q", c.Fusion.Strategy)
	}
	if c.Fusion.ScoreCap <= 0 {
		return fmt.Errorf("fusion score cap must be positive")
	}
	if c.Cache.EntityOverlapThreshold < 0 || c.Cache.EntityOverlapThreshold > 1 {
		return fmt.Errorf("entity overlap threshold must be between 0 and 1")
	}
	if c.Context.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Context.MaxHistory <= 0 || c.Context.MaxEntities <= 0 || c.Context.MaxProducts <= 0 {
		return fmt.Errorf("context bounds must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	return nil
}
