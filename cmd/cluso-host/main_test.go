package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-host/pkg/config"
	"github.com/dd0wney/cluso-host/pkg/host"
	"github.com/dd0wney/cluso-host/pkg/logging"
	"github.com/dd0wney/cluso-host/pkg/metrics"
)

type nopAPI struct{}

func (nopAPI) EnforceAllConstraints(context.Context) error { return nil }
func (nopAPI) EnforceNodeLiveliness(context.Context) error { return nil }

func TestLoadConfig_Layering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host_id: from-file
mode: follower
store:
  key: custom_key
coordination:
  retry_initial: 1s
`), 0o600))

	t.Setenv("CLUSO_MODE", "leader")
	t.Setenv("CLUSO_RECONCILE_INTERVAL", "15s")

	v := viper.New()
	v.Set("config", path)

	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.HostID)
	assert.Equal(t, "leader", cfg.Mode, "env overrides file")
	assert.Equal(t, "custom_key", cfg.Store.Key)
	assert.Equal(t, time.Second, cfg.Coordination.RetryInitial)
	assert.Equal(t, 15*time.Second, cfg.Reconcile.Interval, "env reaches keys absent from the file")
	assert.Equal(t, 8, cfg.Coordination.RetryAttempts, "defaults fill the rest")
}

func TestLoadConfig_Flags(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"config", "--host-id", "flag-host", "--mode", "leader", "--cluster-id", "abc"})
	var out bytes.Buffer
	root.SetOut(&out)

	require.NoError(t, root.Execute())

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, "flag-host", cfg.HostID)
	assert.Equal(t, "leader", cfg.Mode)
	assert.Equal(t, "abc", cfg.ClusterID)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("CLUSO_HOST_ID", "h1")
	t.Setenv("CLUSO_STORE_BACKEND", "redis")

	_, err := loadConfig(viper.New())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "Store.RedisAddr")
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"a": 1,
		"b": map[string]any{"c": "x", "d": map[string]any{"e": true}},
	})
	assert.Equal(t, map[string]any{"a": 1, "b.c": "x", "b.d.e": true}, got)
}

func TestHostConfig(t *testing.T) {
	cfg := config.Default()
	cfg.HostID = "h1"
	cfg.Mode = "leader"
	cfg.PublicAddress = "203.0.113.1"

	hc := hostConfig(cfg)
	assert.Equal(t, "h1", hc.HostID)
	assert.Equal(t, "leader", hc.Mode)
	assert.Equal(t, "cluster_id", hc.Key)
	assert.Equal(t, 250*time.Millisecond, hc.Retry.Initial)
	assert.Equal(t, 8, hc.Retry.MaxAttempts)
	assert.Equal(t, "203.0.113.1", hc.PublicAddress)
}

func TestMux(t *testing.T) {
	b, err := openStore(context.Background(), config.StoreConfig{Backend: "memory"}, logging.NewNopLogger())
	require.NoError(t, err)
	defer b.close()

	registry := metrics.NewRegistry()
	h, err := host.New(host.Config{HostID: "h1", ClusterID: "abc", Mode: "leader"}, host.Dependencies{
		Store:   b.store,
		API:     nopAPI{},
		Metrics: registry,
	})
	require.NoError(t, err)
	defer h.Close()

	srv := httptest.NewServer(newMux(h, b, registry))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return resp.StatusCode, buf.String()
	}

	code, _ := get("/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready before the id is published")
	code, _ = get("/health/live")
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, h.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))

	code, _ = get("/health/ready")
	assert.Equal(t, http.StatusOK, code)

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"cluster_id"`)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "cluso_host_ready 1")

	code, body = get("/attributes")
	assert.Equal(t, http.StatusOK, code)
	var d description
	require.NoError(t, yaml.Unmarshal([]byte(body), &d))
	assert.Equal(t, "abc", d.ClusterID)
	assert.True(t, d.Ready)
	assert.Equal(t, "localhost:8080", d.API)
	assert.True(t, strings.HasPrefix(d.Mode, "leader"))
}
