package model

import "time"

// Config is the complete lupa configuration
type Config struct {
	HTTP         HTTPConfig                `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig               `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig         `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig           `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	LLM          LLMConfig                 `yaml:"llm" mapstructure:"llm"`
	Output       OutputConfig              `yaml:"output" mapstructure:"output"`
	Graph        GraphConfig               `yaml:"graph" mapstructure:"graph"`
	Detector     DetectorConfig            `yaml:"detector" mapstructure:"detector"`
	Sink         SinkConfig                `yaml:"sink" mapstructure:"sink"`
	Sources      map[string]SourceOverride `yaml:"sources,omitempty" mapstructure:"sources" validate:"dive"`
	CatalogFile  string                    `yaml:"catalog_file,omitempty" mapstructure:"catalog_file"`
}

// HTTPConfig controls outbound requests to data sources
type HTTPConfig struct {
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	MaxBytes      int64  `yaml:"max_bytes" mapstructure:"max_bytes" validate:"gt=0"`
	InsecureTLS   bool   `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool   `yaml:"respect_robots" mapstructure:"respect_robots"`

	// empty proxies fall back to HTTP_PROXY, HTTPS_PROXY and NO_PROXY
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy" validate:"omitempty,url"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy" validate:"omitempty,url"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls the source payload cache
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir        string        `yaml:"dir" mapstructure:"dir"` // empty disables the disk layer
	DefaultTTL time.Duration `yaml:"default_ttl" mapstructure:"default_ttl" validate:"gte=0"`
}

// ConcurrencyConfig bounds parallel work
type ConcurrencyConfig struct {
	Workers        int `yaml:"workers" mapstructure:"workers" validate:"gte=1"`                 // batch investigations in flight
	CallsPerStage  int `yaml:"calls_per_stage" mapstructure:"calls_per_stage" validate:"gte=1"` // parallel source calls in one stage
	DefaultRetries int `yaml:"default_retries" mapstructure:"default_retries" validate:"gte=1"`
}

// RateLimitConfig sets the default per-source request rate
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" mapstructure:"burst" validate:"gte=1"`
}

// LLMConfig configures the fallback intent classifier
type LLMConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Provider string        `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai anthropic ollama"`
	Model    string        `yaml:"model" mapstructure:"model"`
	BaseURL  string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// OutputConfig controls where investigation results are written
type OutputConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	JSONLogs    bool   `yaml:"json_logs" mapstructure:"json_logs"`
	MetricsFile string `yaml:"metrics_file,omitempty" mapstructure:"metrics_file"`
}

// GraphConfig configures the persistent network graph
type GraphConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"` // sqlite database file; ":memory:" keeps the graph in memory
}

// DetectorConfig holds the suspicious-network heuristics thresholds
type DetectorConfig struct {
	CartelMinSuppliers      int     `yaml:"cartel_min_suppliers" mapstructure:"cartel_min_suppliers" validate:"gte=2"`
	CartelConfidence        float64 `yaml:"cartel_confidence" mapstructure:"cartel_confidence" validate:"gte=0,lte=1"`
	ConcentrationMinSeen    int     `yaml:"concentration_min_seen" mapstructure:"concentration_min_seen" validate:"gte=1"`
	HighValueThreshold      float64 `yaml:"high_value_threshold" mapstructure:"high_value_threshold" validate:"gte=0"`
	ConcentrationConfidence float64 `yaml:"concentration_confidence" mapstructure:"concentration_confidence" validate:"gte=0,lte=1"`
	ShellDegreeAbove        int     `yaml:"shell_degree_above" mapstructure:"shell_degree_above" validate:"gte=1"`
	ShellMaxValue           float64 `yaml:"shell_max_value" mapstructure:"shell_max_value" validate:"gte=0"`
	ShellConfidence         float64 `yaml:"shell_confidence" mapstructure:"shell_confidence" validate:"gte=0,lte=1"`
	AnomalyValueThreshold   float64 `yaml:"anomaly_value_threshold" mapstructure:"anomaly_value_threshold" validate:"gte=0"`
}

// SinkConfig configures where finished investigations are handed off
type SinkConfig struct {
	S3Bucket   string `yaml:"s3_bucket,omitempty" mapstructure:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix,omitempty" mapstructure:"s3_prefix"`
	S3Region   string `yaml:"s3_region,omitempty" mapstructure:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint,omitempty" mapstructure:"s3_endpoint"` // for MinIO and other S3-compatible stores

	// static keys; both empty uses the default AWS credential chain
	S3AccessKey string `yaml:"s3_access_key,omitempty" mapstructure:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key,omitempty" mapstructure:"s3_secret_key"`
}

// SourceOverride adjusts a catalog source. Zero values keep the catalog default.
type SourceOverride struct {
	Disabled                bool          `yaml:"disabled,omitempty" mapstructure:"disabled"`
	BaseURL                 string        `yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`
	APIKey                  string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Timeout                 time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout" validate:"gte=0"`
	RateLimit               float64       `yaml:"rate_limit,omitempty" mapstructure:"rate_limit" validate:"gte=0"`
	Burst                   int           `yaml:"burst,omitempty" mapstructure:"burst" validate:"gte=0"`
	CacheTTL                time.Duration `yaml:"cache_ttl,omitempty" mapstructure:"cache_ttl" validate:"gte=0"`
	Fallbacks               []string      `yaml:"fallbacks,omitempty" mapstructure:"fallbacks"`
	CircuitBreakerThreshold int           `yaml:"circuit_breaker_threshold,omitempty" mapstructure:"circuit_breaker_threshold" validate:"gte=0"`
}

// DefaultDetectorConfig returns the heuristic thresholds the detectors were tuned with
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		CartelMinSuppliers:      3,
		CartelConfidence:        0.7,
		ConcentrationMinSeen:    3,
		HighValueThreshold:      1_000_000,
		ConcentrationConfidence: 0.6,
		ShellDegreeAbove:        5,
		ShellMaxValue:           100_000,
		ShellConfidence:         0.5,
		AnomalyValueThreshold:   5_000_000,
	}
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			UserAgent:     "lupa/0.1 (+https://github.com/ppiankov/lupa)",
			MaxBytes:      5_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Dir:        "",
			DefaultTTL: time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:        4,
			CallsPerStage:  8,
			DefaultRetries: 3,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2.0,
			Burst:             5,
		},
		LLM: LLMConfig{
			Enabled:  false,
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  30 * time.Second,
		},
		Output: OutputConfig{
			Dir: "investigations",
		},
		Graph: GraphConfig{
			Enabled: true,
			Path:    "",
		},
		Detector: DefaultDetectorConfig(),
	}
}
