package config

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"slices"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateSearch(cfg, ve)
	validateOutgoing(cfg, ve)
	validateEngines(cfg, ve)
	validateChecker(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Reserved network names created by the network registry.
var reservedNetworks = map[string]bool{"__DEFAULT__": true, "ipv4": true, "ipv6": true}

var validProcessors = map[string]bool{
	"online": true, "offline": true, "online_dictionary": true, "online_currency": true,
}

var validProxySchemes = map[string]bool{
	"http": true, "https": true, "socks5": true, "socks5h": true,
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr is required")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is not host:port: %v", cfg.Server.Addr, err)
	}
	if cfg.Server.RateLimit.RequestsPerMin < 0 {
		ve.Add("server.rate_limit.requests_per_min must be >= 0")
	}
	if cfg.Server.RateLimit.RequestsPerMin > 0 && cfg.Server.RateLimit.Burst <= 0 {
		ve.Add("server.rate_limit.burst must be > 0 when rate limiting is enabled")
	}
	for _, p := range cfg.Server.TrustedProxies {
		var err error
		if strings.Contains(p, "/") {
			_, err = netip.ParsePrefix(p)
		} else {
			_, err = netip.ParseAddr(p)
		}
		if err != nil {
			ve.Add("server.trusted_proxies: %q is not an address or CIDR prefix", p)
		}
	}
}

func validateSearch(cfg *Config, ve *ValidationError) {
	s := cfg.Search
	if s.MaxRequestTimeout < 0 {
		ve.Add("search.max_request_timeout must be >= 0")
	}
	if s.BanTimeOnFail < 0 {
		ve.Add("search.ban_time_on_fail must be >= 0")
	}
	if s.MaxBanTimeOnFail < s.BanTimeOnFail {
		ve.Add("search.max_ban_time_on_fail must be >= search.ban_time_on_fail")
	}
	if s.SuspendedTimes.AccessDenied < 0 || s.SuspendedTimes.Captcha < 0 || s.SuspendedTimes.TooManyRequests < 0 {
		ve.Add("search.suspended_times values must be >= 0")
	}
	if s.SafeSearch < 0 || s.SafeSearch > 2 {
		ve.Add("search.safe_search must be 0, 1 or 2")
	}
}

func validateOutgoing(cfg *Config, ve *ValidationError) {
	if cfg.Outgoing.RequestTimeout <= 0 {
		ve.Add("outgoing.request_timeout must be > 0")
	}
	if cfg.Outgoing.ExtraProxyTimeout < 0 {
		ve.Add("outgoing.extra_proxy_timeout must be >= 0")
	}
	validateNetwork("outgoing", cfg.Outgoing.NetworkConfig, ve)
	for name, nc := range cfg.Outgoing.Networks {
		if reservedNetworks[name] {
			ve.Add("outgoing.networks: %q is a reserved network name", name)
		}
		validateNetwork("outgoing.networks."+name, nc, ve)
	}
}

func validateNetwork(path string, nc NetworkConfig, ve *ValidationError) {
	if nc.PoolConnections < 0 || nc.PoolMaxsize < 0 {
		ve.Add("%s: pool sizes must be >= 0", path)
	}
	if nc.Retries < 0 {
		ve.Add("%s.retries must be >= 0", path)
	}
	if nc.MaxRedirects < 0 {
		ve.Add("%s.max_redirects must be >= 0", path)
	}
	if nc.RateLimit < 0 {
		ve.Add("%s.rate_limit must be >= 0", path)
	}
	for _, code := range nc.RetryOnHTTPError.Codes {
		if code < 100 || code > 599 {
			ve.Add("%s.retry_on_http_error: invalid status %d", path, code)
		}
	}
	for pattern, proxies := range nc.Proxies {
		if !strings.Contains(pattern, "://") {
			ve.Add("%s.proxies: pattern %q must look like scheme://[host]", path, pattern)
		}
		for _, p := range proxies {
			u, err := url.Parse(p)
			if err != nil || u.Host == "" {
				ve.Add("%s.proxies: invalid proxy url %q", path, p)
				continue
			}
			if !validProxySchemes[u.Scheme] {
				ve.Add("%s.proxies: unsupported proxy scheme %q", path, u.Scheme)
			}
		}
	}
	for _, ip := range nc.SourceIPs {
		if net.ParseIP(ip) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(ip); err != nil {
			ve.Add("%s.source_ips: %q is neither an IP nor a CIDR range", path, ip)
		}
	}
}

func validateEngines(cfg *Config, ve *ValidationError) {
	names := make(map[string]bool, len(cfg.Engines))
	shortcuts := make(map[string]string, len(cfg.Engines))
	for i, e := range cfg.Engines {
		if e.Name == "" {
			ve.Add("engines[%d].name is required", i)
			continue
		}
		if names[e.Name] {
			ve.Add("engines: duplicate engine name %q", e.Name)
		}
		names[e.Name] = true

		if e.Shortcut != "" {
			if other, ok := shortcuts[e.Shortcut]; ok {
				ve.Add("engines: shortcut %q used by both %q and %q", e.Shortcut, other, e.Name)
			}
			shortcuts[e.Shortcut] = e.Name
		}
		if e.Engine == "" {
			ve.Add("engines[%s].engine is required", e.Name)
		}
		if e.Processor != "" && !validProcessors[e.Processor] {
			ve.Add("engines[%s].processor %q is invalid", e.Name, e.Processor)
		}
		if e.Timeout < 0 {
			ve.Add("engines[%s].timeout must be >= 0", e.Name)
		}
		if e.Weight < 0 {
			ve.Add("engines[%s].weight must be >= 0", e.Name)
		}
		if e.SoftMaxRedirects < 0 || e.MaxRedirects < 0 {
			ve.Add("engines[%s]: redirect limits must be >= 0", e.Name)
		}
		if ref := e.Network.Ref; ref != "" && !reservedNetworks[ref] {
			if _, ok := cfg.Outgoing.Networks[ref]; !ok {
				ve.Add("engines[%s].network: unknown network %q", e.Name, ref)
			}
		}
		if e.Network.Inline != nil {
			validateNetwork("engines["+e.Name+"].network", *e.Network.Inline, ve)
		}
		for _, tc := range slices.Concat(e.Tests, e.AdditionalTests) {
			if tc.Query == "" {
				ve.Add("engines[%s].tests[%s].query is required", e.Name, tc.Name)
			}
			for _, check := range tc.ResultContainer {
				switch check {
				case "not_empty", "has_answer", "has_infobox":
				default:
					ve.Add("engines[%s].tests[%s]: unknown check %q", e.Name, tc.Name, check)
				}
			}
		}
	}
}

func validateChecker(cfg *Config, ve *ValidationError) {
	if !cfg.Checker.Enabled {
		return
	}
	if cfg.Checker.Schedule == "" {
		ve.Add("checker.schedule is required when checker is enabled")
	}
	if cfg.Checker.Concurrency <= 0 {
		ve.Add("checker.concurrency must be > 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "json", "text":
	default:
		ve.Add("logger.format %q must be json or text", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	case "file":
		if cfg.Tracer.Output == "" {
			ve.Add("tracer.output is required by the file exporter")
		}
	default:
		ve.Add("tracer.exporter %q is not supported", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio %v must be between 0 and 1", r)
	}
}
