package network

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

// Reserved network names.
const (
	DefaultName = "__DEFAULT__"
	IPv4Name    = "ipv4"
	IPv6Name    = "ipv6"
)

// DefaultTorCheckURL answers {"IsTor": bool} for the caller's exit address.
const DefaultTorCheckURL = "https://check.torproject.org/api/ip"

// Registry holds every named network and the network each engine uses.
type Registry struct {
	networks map[string]*Network
	engines  map[string]string
	logger   *slog.Logger

	// TorCheckURL is queried by CheckTor.
	TorCheckURL string
}

// NewRegistry builds the default, ipv4 and ipv6 networks, one network per
// entry of outgoing.networks, and a private network for every engine with
// an inline network. Engines naming a network share it.
func NewRegistry(out config.OutgoingConfig, engines []config.EngineConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		networks:    make(map[string]*Network),
		engines:     make(map[string]string),
		logger:      logger,
		TorCheckURL: DefaultTorCheckURL,
	}

	add := func(name string, cfg config.NetworkConfig) error {
		n, err := New(name, cfg, logger)
		if err != nil {
			return err
		}
		if cfg.UsingTorProxy {
			n.extraTimeout = out.ExtraProxyTimeout
		}
		r.networks[name] = n
		return nil
	}

	base := out.NetworkConfig
	if err := add(DefaultName, base); err != nil {
		return nil, err
	}
	ipv4 := base
	ipv4.SourceIPs = []string{"0.0.0.0"}
	if err := add(IPv4Name, ipv4); err != nil {
		return nil, err
	}
	ipv6 := base
	ipv6.SourceIPs = []string{"::"}
	if err := add(IPv6Name, ipv6); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(out.Networks))
	for name := range out.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := add(name, Merge(base, out.Networks[name])); err != nil {
			return nil, err
		}
	}

	for _, e := range engines {
		switch {
		case e.Network.Inline != nil:
			if err := add(e.Name, Merge(base, *e.Network.Inline)); err != nil {
				return nil, err
			}
			r.engines[e.Name] = e.Name
		case e.Network.Ref != "":
			if _, ok := r.networks[e.Network.Ref]; !ok {
				return nil, domain.NewSubSystemError("network", "registry", domain.ErrNetworkNotFound,
					fmt.Sprintf("engine %q references %q", e.Name, e.Network.Ref))
			}
			r.engines[e.Name] = e.Network.Ref
		default:
			r.engines[e.Name] = DefaultName
		}
	}
	return r, nil
}

// Merge overlays the fields set in override on base.
func Merge(base, override config.NetworkConfig) config.NetworkConfig {
	out := base
	if override.EnableHTTP2 != nil {
		out.EnableHTTP2 = override.EnableHTTP2
	}
	if override.Verify != nil {
		out.Verify = override.Verify
	}
	if override.PoolConnections > 0 {
		out.PoolConnections = override.PoolConnections
	}
	if override.PoolMaxsize > 0 {
		out.PoolMaxsize = override.PoolMaxsize
	}
	if override.KeepaliveExpiry > 0 {
		out.KeepaliveExpiry = override.KeepaliveExpiry
	}
	if override.MaxRedirects > 0 {
		out.MaxRedirects = override.MaxRedirects
	}
	if override.Retries > 0 {
		out.Retries = override.Retries
	}
	if override.RetryOnHTTPError.All || len(override.RetryOnHTTPError.Codes) > 0 {
		out.RetryOnHTTPError = override.RetryOnHTTPError
	}
	if len(override.Proxies) > 0 {
		out.Proxies = override.Proxies
	}
	if len(override.SourceIPs) > 0 {
		out.SourceIPs = override.SourceIPs
	}
	if override.UsingTorProxy {
		out.UsingTorProxy = true
	}
	if override.RateLimit > 0 {
		out.RateLimit = override.RateLimit
	}
	if override.CircuitBreaker.Enabled {
		out.CircuitBreaker = override.CircuitBreaker
	}
	return out
}

// ForEngine returns the network bound to an engine, or the default network.
func (r *Registry) ForEngine(engine string) *Network {
	if name, ok := r.engines[engine]; ok {
		return r.networks[name]
	}
	return r.networks[DefaultName]
}

// NetworkName returns the name of the network bound to engine.
func (r *Registry) NetworkName(engine string) string {
	if name, ok := r.engines[engine]; ok {
		return name
	}
	return DefaultName
}

// Names lists the registered networks, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckTor verifies every Tor network concurrently. It returns the first
// failure; all failures are logged.
func (r *Registry) CheckTor(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range r.Names() {
		n := r.networks[name]
		if !n.UsingTor() {
			continue
		}
		g.Go(func() error {
			if err := n.CheckTor(ctx, r.TorCheckURL); err != nil {
				r.logger.Error("tor check failed", "network", n.Name(), "error", err)
				return err
			}
			r.logger.Info("tor check passed", "network", n.Name())
			return nil
		})
	}
	return g.Wait()
}

// Close releases every pooled client.
func (r *Registry) Close() {
	for _, n := range r.networks {
		n.Close()
	}
}
