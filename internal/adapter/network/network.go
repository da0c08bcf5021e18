package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
	"metasearch/internal/infra/tracer"
)

// maxResponseBodySize caps how much of an upstream reply is buffered.
const maxResponseBodySize = 5 << 20

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

var (
	errTooManyRedirects = errors.New("too many redirects")
	// errServerStatus marks a 5xx reply as a breaker failure without
	// discarding the response.
	errServerStatus = errors.New("server error status")
)

type clientKey struct {
	verify       bool
	maxRedirects int
	localAddr    string
	proxies      string
}

type callOptions struct {
	allowRedirects bool
	redirects      *int
}

type callOptionsKey struct{}

// Network is a named outgoing configuration: a pool of HTTP clients keyed by
// (verify, max redirects, local address, proxies), cycling source addresses
// and proxies per call, with retries, an optional rate limit and an optional
// circuit breaker.
type Network struct {
	name         string
	verify       bool
	enableHTTP2  bool
	poolConns    int
	poolPerHost  int
	keepalive    time.Duration
	maxRedirects int
	retries      int
	retryOn      config.RetryOnHTTPError
	usingTor     bool
	extraTimeout time.Duration

	addrs   []string
	addrIdx atomic.Uint64
	proxies *proxyCycle

	mu      sync.Mutex
	clients map[clientKey]*http.Client

	breaker *gobreaker.CircuitBreaker[*http.Response]
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a network from fully resolved settings.
func New(name string, cfg config.NetworkConfig, logger *slog.Logger) (*Network, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addrs, err := expandAddresses(cfg.SourceIPs)
	if err != nil {
		return nil, fmt.Errorf("network %q: %w", name, err)
	}
	proxies, err := newProxyCycle(cfg.Proxies)
	if err != nil {
		return nil, fmt.Errorf("network %q: %w", name, err)
	}

	n := &Network{
		name:         name,
		verify:       cfg.Verify == nil || *cfg.Verify,
		enableHTTP2:  cfg.EnableHTTP2 == nil || *cfg.EnableHTTP2,
		poolConns:    cfg.PoolConnections,
		poolPerHost:  cfg.PoolMaxsize,
		keepalive:    cfg.KeepaliveExpiry,
		maxRedirects: cfg.MaxRedirects,
		retries:      cfg.Retries,
		retryOn:      cfg.RetryOnHTTPError,
		usingTor:     cfg.UsingTorProxy,
		addrs:        addrs,
		proxies:      proxies,
		clients:      make(map[clientKey]*http.Client),
		logger:       logger.With("network", name),
		now:          time.Now,
	}
	if n.maxRedirects <= 0 {
		n.maxRedirects = defaultMaxRedirects
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.CircuitBreaker.Enabled {
		n.breaker = newBreaker(name, cfg.CircuitBreaker, n.logger)
	}
	return n, nil
}

func newBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "network:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
}

// Name returns the network name.
func (n *Network) Name() string { return n.name }

// UsingTor reports whether the network is expected to route through Tor.
func (n *Network) UsingTor() bool { return n.usingTor }

// ExtraTimeout is added to the timeout of engines bound to this network.
func (n *Network) ExtraTimeout() time.Duration { return n.extraTimeout }

func (n *Network) nextLocalAddr() string {
	if len(n.addrs) == 0 {
		return ""
	}
	i := n.addrIdx.Add(1) - 1
	return n.addrs[i%uint64(len(n.addrs))]
}

// client returns the pooled client for the next address/proxy selection,
// creating it on first use.
func (n *Network) client(verify bool, maxRedirects int) *http.Client {
	localAddr := n.nextLocalAddr()
	proxies := n.proxies.take()
	key := clientKey{
		verify:       verify,
		maxRedirects: maxRedirects,
		localAddr:    localAddr,
		proxies:      proxiesKey(proxies),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.clients[key]; ok {
		return c
	}
	c := &http.Client{
		Transport: newTransport(transportOptions{
			verify:      verify,
			enableHTTP2: n.enableHTTP2,
			poolConns:   n.poolConns,
			poolPerHost: n.poolPerHost,
			keepalive:   n.keepalive,
			localAddr:   localAddr,
			proxies:     proxies,
		}),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			opts, _ := req.Context().Value(callOptionsKey{}).(*callOptions)
			if opts != nil && !opts.allowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects: %w", maxRedirects, errTooManyRedirects)
			}
			if opts != nil && opts.redirects != nil {
				*opts.redirects = len(via)
			}
			return nil
		},
	}
	n.clients[key] = c
	return c
}

func (n *Network) retryResponse(status int) bool {
	if n.retryOn.All && status >= 400 && status <= 599 {
		return true
	}
	for _, c := range n.retryOn.Codes {
		if c == status {
			return true
		}
	}
	return false
}

// Request performs req and buffers the reply body. Failures come back as
// *domain.EngineError with kind Timeout or HTTP. HTTP error statuses are
// returned as responses; see domain.RaiseForHTTPError.
func (n *Network) Request(ctx context.Context, req *domain.HTTPRequest) (*domain.Response, error) {
	ctx, span := tracer.StartSpan(ctx, "network.request",
		tracer.StringAttr("network.name", n.name),
		tracer.StringAttr("http.method", methodOf(req)),
	)
	defer span.End()

	started := n.now()
	if d, ok := domain.DeadlineFromContext(ctx); ok {
		defer func() { d.AddHTTPTime(n.now().Sub(started)) }()
	}

	timeout := effectiveTimeout(ctx, req.Timeout, started)
	if timeout <= 0 {
		err := domain.NewTimeoutError(context.DeadlineExceeded)
		tracer.RecordError(span, err)
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, redirects, err := n.do(callCtx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		err = n.classify(callCtx, fmt.Errorf("read body: %w", err))
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("http.status_code", resp.StatusCode))
	tracer.SetOK(span)

	return &domain.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		URL:        resp.Request.URL,
		Body:       body,
		Redirects:  redirects,
	}, nil
}

// Stream performs req and returns the live response. The caller reads and
// closes the body; closing it releases the connection and the call timeout.
func (n *Network) Stream(ctx context.Context, req *domain.HTTPRequest) (*http.Response, error) {
	started := n.now()
	timeout := effectiveTimeout(ctx, req.Timeout, started)
	if timeout <= 0 {
		return nil, domain.NewTimeoutError(context.DeadlineExceeded)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	resp, _, err := n.do(callCtx, req)
	if d, ok := domain.DeadlineFromContext(ctx); ok {
		d.AddHTTPTime(n.now().Sub(started))
	}
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// do runs the retry loop. A response is retried when it matches
// retry_on_http_error, an error is retried while retries remain; the last
// outcome is returned once they are exhausted.
func (n *Network) do(ctx context.Context, req *domain.HTTPRequest) (*http.Response, int, error) {
	verify := n.verify
	if req.Verify != nil {
		verify = *req.Verify
	}
	maxRedirects := n.maxRedirects
	if req.MaxRedirects != nil {
		maxRedirects = *req.MaxRedirects
	}

	retries := n.retries
	for {
		redirects := 0
		callCtx := context.WithValue(ctx, callOptionsKey{}, &callOptions{
			allowRedirects: req.AllowRedirects,
			redirects:      &redirects,
		})
		resp, err := n.send(callCtx, n.client(verify, maxRedirects), req)
		switch {
		case err == nil && (!n.retryResponse(resp.StatusCode) || retries <= 0):
			return resp, redirects, nil
		case err != nil && (retries <= 0 || ctx.Err() != nil):
			return nil, 0, n.classify(ctx, err)
		case err == nil:
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
			resp.Body.Close()
		}
		n.logger.Debug("retrying request", "url", req.URL, "retries_left", retries, "error", err)
		retries--
	}
}

func (n *Network) send(ctx context.Context, client *http.Client, req *domain.HTTPRequest) (*http.Response, error) {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrRateLimit, err)
		}
	}
	httpReq, err := buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if n.breaker == nil {
		return client.Do(httpReq)
	}

	resp, err := n.breaker.Execute(func() (*http.Response, error) {
		resp, err := client.Do(httpReq)
		if err == nil && resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, err
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("network %q: %w: %w", n.name, domain.ErrCircuitOpen, err)
	}
	return resp, err
}

func methodOf(req *domain.HTTPRequest) string {
	if req.Method != "" {
		return strings.ToUpper(req.Method)
	}
	if req.Body != nil || len(req.Form) > 0 {
		return http.MethodPost
	}
	return http.MethodGet
}

func buildRequest(ctx context.Context, req *domain.HTTPRequest) (*http.Request, error) {
	body := req.Body
	contentType := ""
	if body == nil && len(req.Form) > 0 {
		body = []byte(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, methodOf(req), req.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return httpReq, nil
}

// classify reduces a transport failure to the engine error taxonomy.
func (n *Network) classify(ctx context.Context, err error) error {
	var engineErr *domain.EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, domain.ErrCircuitOpen):
		return domain.NewHTTPError("circuit open", 0, err)
	case errors.Is(err, domain.ErrRateLimit):
		return domain.NewTimeoutError(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return domain.NewTimeoutError(err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewTimeoutError(err)
	case errors.Is(err, errTooManyRedirects):
		return domain.NewHTTPError("too many redirects", 0, err)
	}
	return domain.NewHTTPError("HTTP error", 0, err)
}

// CheckTor verifies that every proxy of the network resolves names remotely
// and that checkURL reports the exit as a Tor node.
func (n *Network) CheckTor(ctx context.Context, checkURL string) error {
	for _, u := range n.proxies.all() {
		if u.Scheme == "socks5" {
			return fmt.Errorf("network %q: %w: proxy %s resolves names locally", n.name, domain.ErrTorCheck, u.Redacted())
		}
	}
	resp, err := n.Request(ctx, &domain.HTTPRequest{URL: checkURL, Timeout: 10 * time.Second, AllowRedirects: true})
	if err != nil {
		return fmt.Errorf("network %q: %w: %w", n.name, domain.ErrTorCheck, err)
	}
	if resp.StatusCode != http.StatusOK || !gjson.GetBytes(resp.Body, "IsTor").Bool() {
		return fmt.Errorf("network %q: %w: not using Tor", n.name, domain.ErrTorCheck)
	}
	return nil
}

// Close drops every pooled client. Later calls recreate them.
func (n *Network) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, c := range n.clients {
		c.CloseIdleConnections()
		delete(n.clients, k)
	}
}
