package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/deploy"
	"github.com/rileyhilliard/agentdeploy/internal/lock"
	"github.com/rileyhilliard/agentdeploy/internal/metrics"
	"github.com/rileyhilliard/agentdeploy/internal/server"
	storetesting "github.com/rileyhilliard/agentdeploy/internal/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	st := storetesting.OpenStore(t)
	srv := buildServer(cfg, st, lock.NewLocal(lock.Config{}), metrics.New(nil))
	ts := httptest.NewServer(server.NewHandler(srv))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServe_DeployThenHistory(t *testing.T) {
	ws := newWorkspace(t, nil)
	ws.useClient(runningHost())
	ts := newTestServer(t, ws.cfg)

	resp := post(t, ts.URL+"/machines/deploy", `{"ip":"10.0.0.5","username":"deploy","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out deploy.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	assert.Equal(t, deploy.StateAlreadyRunning, out.State)

	require.Len(t, ws.dials, 1)
	assert.Equal(t, "pw", ws.dials[0].Secret)

	resp, err := http.Get(ts.URL + "/machines/10.0.0.5/deployments")
	require.NoError(t, err)
	defer resp.Body.Close()
	var history server.HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history.Deployments, 1)
	assert.Equal(t, out.AttemptID, history.Deployments[0].AttemptID)
}

func TestServe_ValidateAndMetrics(t *testing.T) {
	ws := newWorkspace(t, nil)
	ws.useClient(runningHost())
	ts := newTestServer(t, ws.cfg)

	resp := post(t, ts.URL+"/machines/validate", `{"ip":"10.0.0.5","username":"deploy","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var validate server.ValidateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&validate))
	assert.True(t, validate.Success)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agentdeploy_connection_checks_total{bucket="ok"} 1`)
}

func TestServe_MetricsDisabled(t *testing.T) {
	ws := newWorkspace(t, func(cfg *config.Config) {
		cfg.Server.Metrics = false
	})
	ts := newTestServer(t, ws.cfg)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
