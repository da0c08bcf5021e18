package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/internal/domain"
	"metasearch/internal/infra/config"
)

func TestNewRegistryBindsEngines(t *testing.T) {
	out := config.Defaults().Outgoing
	out.Networks = map[string]config.NetworkConfig{
		"slow": {Retries: 2},
	}
	engines := []config.EngineConfig{
		{Name: "plain", Engine: "html"},
		{Name: "shared-a", Engine: "html", Network: config.EngineNetwork{Ref: "slow"}},
		{Name: "shared-b", Engine: "html", Network: config.EngineNetwork{Ref: "slow"}},
		{Name: "v6", Engine: "html", Network: config.EngineNetwork{Ref: IPv6Name}},
		{Name: "private", Engine: "html", Network: config.EngineNetwork{Inline: &config.NetworkConfig{MaxRedirects: 3}}},
	}

	r, err := NewRegistry(out, engines, discardLogger())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{DefaultName, IPv4Name, IPv6Name, "private", "slow"}, r.Names())
	assert.Equal(t, DefaultName, r.NetworkName("plain"))
	assert.Equal(t, DefaultName, r.NetworkName("unknown"))
	assert.Same(t, r.ForEngine("shared-a"), r.ForEngine("shared-b"))
	assert.Equal(t, "slow", r.ForEngine("shared-a").Name())
	assert.Equal(t, 2, r.ForEngine("shared-a").retries)
	assert.Equal(t, 30, r.ForEngine("shared-a").maxRedirects, "named networks inherit outgoing defaults")
	assert.Equal(t, 3, r.ForEngine("private").maxRedirects)
	assert.Equal(t, []string{"::"}, r.ForEngine("v6").addrs)

	require.Contains(t, r.networks, IPv4Name)
	assert.Equal(t, []string{"0.0.0.0"}, r.networks[IPv4Name].addrs)
}

func TestNewRegistryUnknownReference(t *testing.T) {
	engines := []config.EngineConfig{{Name: "a", Engine: "html", Network: config.EngineNetwork{Ref: "nowhere"}}}
	_, err := NewRegistry(config.Defaults().Outgoing, engines, discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetworkNotFound)
	assert.Equal(t, domain.ErrorCodeOf(err), domain.ErrorCodeOf(domain.NewSubSystemError("network", "x", domain.ErrNetworkNotFound, "")))
}

func TestMerge(t *testing.T) {
	no := false
	base := config.Defaults().Outgoing.NetworkConfig
	base.Proxies = config.ProxiesConfig{"all://": {"http://base:1"}}

	merged := Merge(base, config.NetworkConfig{
		Verify:           &no,
		Retries:          4,
		RetryOnHTTPError: config.RetryOnHTTPError{Codes: []int{503}},
		SourceIPs:        []string{"10.0.0.1"},
	})
	assert.False(t, *merged.Verify)
	assert.True(t, *merged.EnableHTTP2)
	assert.Equal(t, 4, merged.Retries)
	assert.Equal(t, []int{503}, merged.RetryOnHTTPError.Codes)
	assert.Equal(t, []string{"10.0.0.1"}, merged.SourceIPs)
	assert.Equal(t, base.Proxies, merged.Proxies)
	assert.Equal(t, base.PoolConnections, merged.PoolConnections)
}

// fakeTorProxy answers every proxied request with the given IsTor value.
func fakeTorProxy(t *testing.T, isTor bool, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if isTor {
			w.Write([]byte(`{"IsTor":true,"IP":"185.220.101.1"}`))
			return
		}
		w.Write([]byte(`{"IsTor":false,"IP":"203.0.113.9"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRegistryCheckTor(t *testing.T) {
	var hits atomic.Int32
	good := fakeTorProxy(t, true, &hits)
	bad := fakeTorProxy(t, false, &hits)

	tests := []struct {
		name    string
		proxy   string
		wantErr bool
	}{
		{"exit is tor", good.URL, false},
		{"exit is not tor", bad.URL, true},
		{"socks5 resolves locally", "socks5://127.0.0.1:9050", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := config.Defaults().Outgoing
			out.ExtraProxyTimeout = 2 * time.Second
			out.Networks = map[string]config.NetworkConfig{
				"tor": {UsingTorProxy: true, Proxies: config.ProxiesConfig{"all://": {tt.proxy}}},
			}
			r, err := NewRegistry(out, nil, discardLogger())
			require.NoError(t, err)
			defer r.Close()
			r.TorCheckURL = "http://check.torproject.test/api/ip"

			require.Contains(t, r.networks, "tor")
			assert.Equal(t, 2*time.Second, r.networks["tor"].ExtraTimeout())

			err = r.CheckTor(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrTorCheck)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.Equal(t, int32(2), hits.Load(), "socks5 networks fail before any request")
}

func TestRegistryCheckTorSkipsPlainNetworks(t *testing.T) {
	r, err := NewRegistry(config.Defaults().Outgoing, nil, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, r.CheckTor(context.Background()))
}
