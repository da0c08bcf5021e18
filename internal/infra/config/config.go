package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Search   SearchConfig   `yaml:"search"`
	Outgoing OutgoingConfig `yaml:"outgoing"`
	Engines  []EngineConfig `yaml:"engines"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Checker  CheckerConfig  `yaml:"checker"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Includes []string       `yaml:"includes,omitempty"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr           string          `yaml:"addr"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	TrustedProxies []string        `yaml:"trusted_proxies,omitempty"`
}

// RateLimitConfig holds per-client request limits. RequestsPerMin 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
}

// SearchConfig holds orchestrator and suspension settings.
type SearchConfig struct {
	// MaxRequestTimeout is the global ceiling on a request's budget; 0 = unset.
	MaxRequestTimeout time.Duration        `yaml:"max_request_timeout"`
	BanTimeOnFail     time.Duration        `yaml:"ban_time_on_fail"`
	MaxBanTimeOnFail  time.Duration        `yaml:"max_ban_time_on_fail"`
	SuspendedTimes    SuspendedTimesConfig `yaml:"suspended_times"`
	DefaultLanguage   string               `yaml:"default_language"`
	SafeSearch        int                  `yaml:"safe_search"`
	BangsFile         string               `yaml:"bangs_file,omitempty"`
}

// SuspendedTimesConfig holds default suspension durations per failure kind.
type SuspendedTimesConfig struct {
	AccessDenied    time.Duration `yaml:"access_denied"`
	Captcha         time.Duration `yaml:"captcha"`
	TooManyRequests time.Duration `yaml:"too_many_requests"`
}

// NetworkConfig describes one outgoing network: pool, addresses, proxies, retries.
type NetworkConfig struct {
	EnableHTTP2      *bool                `yaml:"enable_http2,omitempty"`
	Verify           *bool                `yaml:"verify,omitempty"`
	PoolConnections  int                  `yaml:"pool_connections,omitempty"`
	PoolMaxsize      int                  `yaml:"pool_maxsize,omitempty"`
	KeepaliveExpiry  time.Duration        `yaml:"keepalive_expiry,omitempty"`
	MaxRedirects     int                  `yaml:"max_redirects,omitempty"`
	Retries          int                  `yaml:"retries,omitempty"`
	RetryOnHTTPError RetryOnHTTPError     `yaml:"retry_on_http_error,omitempty"`
	Proxies          ProxiesConfig        `yaml:"proxies,omitempty"`
	SourceIPs        []string             `yaml:"source_ips,omitempty"`
	UsingTorProxy    bool                 `yaml:"using_tor_proxy,omitempty"`
	RateLimit        float64              `yaml:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	CircuitBreaker   CircuitBreakerConfig `yaml:"circuit_breaker,omitempty"`
}

// CircuitBreakerConfig configures the per-network fail-fast breaker.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// OutgoingConfig holds the default network plus named networks.
type OutgoingConfig struct {
	NetworkConfig     `yaml:",inline"`
	RequestTimeout    time.Duration            `yaml:"request_timeout"`
	UserAgent         string                   `yaml:"useragent"`
	ExtraProxyTimeout time.Duration            `yaml:"extra_proxy_timeout"`
	Networks          map[string]NetworkConfig `yaml:"networks,omitempty"`
}

// EngineConfig holds settings for a single engine.
type EngineConfig struct {
	Name      string `yaml:"name"`
	Engine    string `yaml:"engine"`
	Shortcut  string `yaml:"shortcut"`
	Processor string `yaml:"processor,omitempty"` // overrides the adapter's default processor

	Categories               []string      `yaml:"categories,omitempty"`
	Paging                   *bool         `yaml:"paging,omitempty"`
	LanguageSupport          *bool         `yaml:"language_support,omitempty"`
	TimeRangeSupport         *bool         `yaml:"time_range_support,omitempty"`
	SafeSearch               *bool         `yaml:"safesearch,omitempty"`
	Timeout                  time.Duration `yaml:"timeout,omitempty"`
	Weight                   float64       `yaml:"weight,omitempty"`
	Disabled                 bool          `yaml:"disabled,omitempty"`
	Language                 string        `yaml:"language,omitempty"`
	DisplayErrorMessages     *bool         `yaml:"display_error_messages,omitempty"`
	SendAcceptLanguageHeader bool          `yaml:"send_accept_language_header,omitempty"`
	MaxRedirects             int           `yaml:"max_redirects,omitempty"`
	SoftMaxRedirects         int           `yaml:"soft_max_redirects,omitempty"`
	Network                  EngineNetwork `yaml:"network,omitempty"`

	APIKey    string             `yaml:"api_key,omitempty"`
	BaseURL   string             `yaml:"base_url,omitempty"`
	SearchURL string             `yaml:"search_url,omitempty"`
	Options   map[string]string  `yaml:"options,omitempty"`
	// Tests replace the default checker tests; AdditionalTests run after
	// them.
	Tests           []EngineTestConfig `yaml:"tests,omitempty"`
	AdditionalTests []EngineTestConfig `yaml:"additional_tests,omitempty"`
}

// EngineTestConfig defines one checker test for an engine.
type EngineTestConfig struct {
	Name            string   `yaml:"name"`
	Query           string   `yaml:"query"`
	PageNo          int      `yaml:"pageno,omitempty"`
	Lang            string   `yaml:"lang,omitempty"`
	ResultContainer []string `yaml:"result_container"`
}

// PluginsConfig lists enabled plugins by name.
type PluginsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// CheckerConfig holds engine self-test settings.
type CheckerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Schedule    string   `yaml:"schedule"` // cron expression or duration string
	Engines     []string `yaml:"engines,omitempty"`
	Concurrency int      `yaml:"concurrency"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`               // "stdout", "file", "noop"
	Output      string  `yaml:"output,omitempty"`       // span file of the "file" exporter
	SampleRatio float64 `yaml:"sample_ratio,omitempty"` // share of searches traced; 0 traces all
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RetryOnHTTPError selects which HTTP statuses trigger a retry. In YAML it is
// either a bool (all 4xx/5xx), a single status code, or a list of codes.
type RetryOnHTTPError struct {
	All   bool
	Codes []int
}

func (r *RetryOnHTTPError) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := value.Decode(&b); err == nil {
			*r = RetryOnHTTPError{All: b}
			return nil
		}
		var code int
		if err := value.Decode(&code); err != nil {
			return fmt.Errorf("retry_on_http_error: want bool, int or list of ints: %w", err)
		}
		*r = RetryOnHTTPError{Codes: []int{code}}
		return nil
	case yaml.SequenceNode:
		var codes []int
		if err := value.Decode(&codes); err != nil {
			return fmt.Errorf("retry_on_http_error: %w", err)
		}
		*r = RetryOnHTTPError{Codes: codes}
		return nil
	default:
		return fmt.Errorf("retry_on_http_error: unsupported yaml node")
	}
}

// StringList accepts either a scalar or a sequence of strings.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = StringList{value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// ProxiesConfig maps URL patterns ("all://", "https://", "all://host") to
// proxy URLs. A bare string in YAML means {"all://": [value]}.
type ProxiesConfig map[string]StringList

func (p *ProxiesConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*p = ProxiesConfig{"all://": {value.Value}}
		return nil
	}
	var m map[string]StringList
	if err := value.Decode(&m); err != nil {
		return fmt.Errorf("proxies: %w", err)
	}
	*p = m
	return nil
}

// EngineNetwork is either a reference to a shared named network or an
// inline network definition private to the engine.
type EngineNetwork struct {
	Ref    string
	Inline *NetworkConfig
}

func (n *EngineNetwork) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*n = EngineNetwork{Ref: value.Value}
		return nil
	}
	var nc NetworkConfig
	if err := value.Decode(&nc); err != nil {
		return fmt.Errorf("engine network: %w", err)
	}
	*n = EngineNetwork{Inline: &nc}
	return nil
}

// IsZero lets yaml omit unset engine networks when marshaling.
func (n EngineNetwork) IsZero() bool { return n.Ref == "" && n.Inline == nil }

func boolPtr(b bool) *bool { return &b }

// Defaults returns a configuration with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:8888",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    RateLimitConfig{RequestsPerMin: 120, Burst: 20},
		},
		Search: SearchConfig{
			BanTimeOnFail:    5 * time.Second,
			MaxBanTimeOnFail: 120 * time.Second,
			SuspendedTimes: SuspendedTimesConfig{
				AccessDenied:    24 * time.Hour,
				Captcha:         24 * time.Hour,
				TooManyRequests: time.Hour,
			},
		},
		Outgoing: OutgoingConfig{
			NetworkConfig: NetworkConfig{
				EnableHTTP2:     boolPtr(true),
				Verify:          boolPtr(true),
				PoolConnections: 100,
				PoolMaxsize:     10,
				KeepaliveExpiry: 5 * time.Second,
				MaxRedirects:    30,
			},
			RequestTimeout: 3 * time.Second,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
		},
		Plugins: PluginsConfig{
			Enabled: []string{"hash", "tracker_url_remover", "self_info"},
		},
		Checker: CheckerConfig{
			Schedule:    "24h",
			Concurrency: 4,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := applyLayer(cfg, absPath, data, map[string]bool{}, 0); err != nil {
		return nil, err
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("METASEARCH_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps METASEARCH_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("METASEARCH_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("METASEARCH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("METASEARCH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("METASEARCH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("METASEARCH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("METASEARCH_TRACER_OUTPUT"); v != "" {
		cfg.Tracer.Output = v
	}
	if v := os.Getenv("METASEARCH_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	if v := os.Getenv("METASEARCH_CHECKER_ENABLED"); v != "" {
		cfg.Checker.Enabled = v == "true"
	}
	if v := os.Getenv("METASEARCH_SEARCH_MAX_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.MaxRequestTimeout = d
		}
	}
	if v := os.Getenv("METASEARCH_OUTGOING_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Outgoing.RequestTimeout = d
		}
	}
	if v := os.Getenv("METASEARCH_OUTGOING_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Outgoing.Retries = n
		}
	}
	if v := os.Getenv("METASEARCH_OUTGOING_PROXY"); v != "" {
		cfg.Outgoing.Proxies = ProxiesConfig{"all://": splitAndTrim(v, ",")}
	}
	if v := os.Getenv("METASEARCH_OUTGOING_SOURCE_IPS"); v != "" {
		cfg.Outgoing.SourceIPs = splitAndTrim(v, ",")
	}

	// Per-engine API keys: METASEARCH_ENGINE_<NAME>_API_KEY, only when unset in the file.
	for i := range cfg.Engines {
		if cfg.Engines[i].APIKey != "" {
			continue
		}
		if v := os.Getenv("METASEARCH_ENGINE_" + envName(cfg.Engines[i].Name) + "_API_KEY"); v != "" {
			cfg.Engines[i].APIKey = v
		}
	}
}

// envName upper-cases name and replaces anything but letters and digits with '_'.
func envName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
