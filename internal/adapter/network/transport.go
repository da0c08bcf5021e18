package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"

	"metasearch/internal/infra/config"
)

// Default pool settings, used when a network leaves them unset.
const (
	defaultPoolConnections = 100
	defaultPoolMaxsize     = 10
	defaultKeepalive       = 5 * time.Second
	defaultMaxRedirects    = 30
	defaultConnectTimeout  = 10 * time.Second

	// maxExpandedAddresses bounds CIDR expansion of source_ips.
	maxExpandedAddresses = 1 << 16
)

// proxyEntry is one pattern → proxy URL pair selected for a call.
type proxyEntry struct {
	pattern string
	url     *url.URL
}

func (p proxyEntry) socks() bool {
	return strings.HasPrefix(p.url.Scheme, "socks")
}

// proxyCycle advances every pattern's proxy list together, one step per call.
type proxyCycle struct {
	patterns []string
	urls     map[string][]*url.URL
	next     atomic.Uint64
}

func newProxyCycle(proxies config.ProxiesConfig) (*proxyCycle, error) {
	pc := &proxyCycle{urls: make(map[string][]*url.URL, len(proxies))}
	for pattern, list := range proxies {
		if len(list) == 0 {
			continue
		}
		urls := make([]*url.URL, 0, len(list))
		for _, raw := range list {
			u, err := url.Parse(raw)
			if err != nil || u.Host == "" {
				return nil, fmt.Errorf("invalid proxy %q for %q", raw, pattern)
			}
			urls = append(urls, u)
		}
		pc.patterns = append(pc.patterns, pattern)
		pc.urls[pattern] = urls
	}
	sort.Strings(pc.patterns)
	return pc, nil
}

func (pc *proxyCycle) empty() bool { return len(pc.patterns) == 0 }

// take returns the proxies for the next call, ordered by pattern.
func (pc *proxyCycle) take() []proxyEntry {
	if pc.empty() {
		return nil
	}
	i := pc.next.Add(1) - 1
	out := make([]proxyEntry, 0, len(pc.patterns))
	for _, p := range pc.patterns {
		urls := pc.urls[p]
		out = append(out, proxyEntry{pattern: p, url: urls[i%uint64(len(urls))]})
	}
	return out
}

// all lists every configured proxy URL.
func (pc *proxyCycle) all() []*url.URL {
	var out []*url.URL
	for _, p := range pc.patterns {
		out = append(out, pc.urls[p]...)
	}
	return out
}

func proxiesKey(entries []proxyEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.pattern + "=" + e.url.String()
	}
	return strings.Join(parts, ",")
}

// matchProxy picks the most specific proxy for scheme://host:
// "scheme://host", then "all://host", then "scheme://", then "all://".
func matchProxy(entries []proxyEntry, scheme, host string, socks bool) *url.URL {
	candidates := []string{scheme + "://" + host, "all://" + host, scheme + "://", "all://"}
	for _, c := range candidates {
		for _, e := range entries {
			if e.pattern == c && e.socks() == socks {
				return e.url
			}
		}
	}
	return nil
}

// expandAddresses turns source_ips into a flat list, expanding CIDR ranges
// to their usable hosts.
func expandAddresses(sources []string) ([]string, error) {
	var out []string
	for _, src := range sources {
		if !strings.Contains(src, "/") {
			addr, err := netip.ParseAddr(src)
			if err != nil {
				return nil, fmt.Errorf("invalid source ip %q: %w", src, err)
			}
			out = append(out, addr.String())
			continue
		}
		prefix, err := netip.ParsePrefix(src)
		if err != nil {
			return nil, fmt.Errorf("invalid source range %q: %w", src, err)
		}
		hosts, err := prefixHosts(prefix.Masked())
		if err != nil {
			return nil, err
		}
		out = append(out, hosts...)
	}
	return out, nil
}

// prefixHosts lists the hosts of prefix. IPv4 ranges wider than /31 skip the
// network and broadcast addresses; IPv6 ranges wider than /127 skip the
// subnet-router anycast address.
func prefixHosts(prefix netip.Prefix) ([]string, error) {
	bits := prefix.Addr().BitLen() - prefix.Bits()
	if bits > 16 {
		return nil, fmt.Errorf("source range %s expands to more than %d addresses", prefix, maxExpandedAddresses)
	}
	total := 1 << bits
	out := make([]string, 0, total)
	addr := prefix.Addr()
	for i := 0; i < total; i++ {
		out = append(out, addr.String())
		addr = addr.Next()
	}
	switch {
	case prefix.Addr().Is4() && bits >= 2:
		out = out[1 : len(out)-1]
	case prefix.Addr().Is6() && bits >= 2:
		out = out[1:]
	}
	return out, nil
}

// transportOptions selects one pooled transport.
type transportOptions struct {
	verify      bool
	enableHTTP2 bool
	poolConns   int
	poolPerHost int
	keepalive   time.Duration
	localAddr   string
	proxies     []proxyEntry
}

// newTransport creates a pooled http.Transport bound to a local address and
// routed through the selected proxies. SOCKS proxies are dialed with
// golang.org/x/net/proxy; HTTP proxies go through Transport.Proxy.
func newTransport(opts transportOptions) *http.Transport {
	poolConns := opts.poolConns
	if poolConns <= 0 {
		poolConns = defaultPoolConnections
	}
	perHost := opts.poolPerHost
	if perHost <= 0 {
		perHost = defaultPoolMaxsize
	}
	keepalive := opts.keepalive
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}

	dialer := &net.Dialer{
		Timeout:   defaultConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	dialNetwork := ""
	if opts.localAddr != "" {
		ip := net.ParseIP(opts.localAddr)
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
		if ip.To4() != nil {
			dialNetwork = "tcp4"
		} else {
			dialNetwork = "tcp6"
		}
	}
	baseDial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if dialNetwork != "" && network == "tcp" {
			network = dialNetwork
		}
		return dialer.DialContext(ctx, network, addr)
	}

	proxies := opts.proxies
	dial := baseDial
	if len(proxies) > 0 {
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			scheme := "http"
			if port == "443" {
				scheme = "https"
			}
			socksURL := matchProxy(proxies, scheme, host, true)
			if socksURL == nil {
				return baseDial(ctx, network, addr)
			}
			d, err := proxy.FromURL(socksURL, contextDialer(baseDial))
			if err != nil {
				return nil, fmt.Errorf("socks proxy %s: %w", socksURL.Redacted(), err)
			}
			if cd, ok := d.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return d.Dial(network, addr)
		}
	}

	tr := &http.Transport{
		DialContext:           dial,
		TLSHandshakeTimeout:   10 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: !opts.verify}, //nolint:gosec
		MaxIdleConns:          poolConns,
		MaxIdleConnsPerHost:   perHost,
		MaxConnsPerHost:       poolConns,
		IdleConnTimeout:       keepalive,
		ForceAttemptHTTP2:     opts.enableHTTP2,
		ExpectContinueTimeout: time.Second,
	}
	if !opts.enableHTTP2 {
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	if len(proxies) > 0 {
		tr.Proxy = func(req *http.Request) (*url.URL, error) {
			return matchProxy(proxies, req.URL.Scheme, req.URL.Hostname(), false), nil
		}
	}
	return tr
}

// contextDialer adapts a dial function to proxy.Dialer and proxy.ContextDialer.
type contextDialer func(ctx context.Context, network, addr string) (net.Conn, error)

func (d contextDialer) Dial(network, addr string) (net.Conn, error) {
	return d(context.Background(), network, addr)
}

func (d contextDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d(ctx, network, addr)
}
