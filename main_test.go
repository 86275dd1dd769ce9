package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jondoveston/monitop/internal/client"
)

func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case client.DefaultPrefix + "/" + client.EndpointServiceInfo:
			w.Write([]byte(`{"service_name": "orders", "go_version": "go1.25", "service_start_time": "2026-03-01T09:00:00Z", "process_id": 4242}`))
		case client.DefaultPrefix + "/" + client.EndpointMetrics:
			assert.Equal(t, "KB", r.URL.Query().Get("unit"))
			w.Write([]byte(`{
				"core_statistics": {"goroutines": 42, "uptime": "3.50 h"},
				"load_statistics": {"overall_load_of_service": "12.5%"},
				"overall_health": {"overall_health_percent": "85.2%", "health": {"healthy": true, "message": "all good"}}
			}`))
		case client.DefaultPrefix + "/" + client.EndpointFunctionDetails:
			w.Write([]byte(`{"function_code_trace": "trace of ` + r.URL.Query().Get("name") + `"}`))
		case client.DefaultPrefix + "/" + client.EndpointFunctions:
			w.Write([]byte(`{"main.handler": {"function_last_ran_at": "2026-03-01T09:59:00Z"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setURL sets --url until the test ends
func setURL(t *testing.T, u string) {
	t.Helper()
	require.NoError(t, rootCmd.PersistentFlags().Set("url", u))
	t.Cleanup(func() { rootCmd.PersistentFlags().Set("url", "") })
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestSnapshotProm(t *testing.T) {
	srv := fakeService(t)
	out := execute(t, "snapshot", "--format", "prom", "--api-prefix", client.DefaultPrefix, srv.URL)

	assert.Contains(t, out, `monigo_core_statistics_goroutines{service="orders"} 42`)
	assert.Contains(t, out, `monigo_overall_health_overall_health_percent{service="orders"} 85.2`)
}

func TestSnapshotText(t *testing.T) {
	srv := fakeService(t)
	out := execute(t, "snapshot", "--format", "text", "--api-prefix", client.DefaultPrefix, srv.URL)

	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "Go Routines")
	assert.Contains(t, out, "Smooth Sailing")
	assert.Contains(t, out, "N/A")
}

func TestFunctionsWithURLFlag(t *testing.T) {
	srv := fakeService(t)
	setURL(t, "")
	out := execute(t, "functions", "--url", srv.URL, "--api-prefix", client.DefaultPrefix, "main.handler")

	assert.Contains(t, out, "trace of main.handler")
}

func TestFunctionArgs(t *testing.T) {
	setURL(t, "")
	args, name := functionArgs([]string{"http://orders:8080", "main.handler"})
	assert.Equal(t, []string{"http://orders:8080"}, args)
	assert.Equal(t, "main.handler", name)

	args, name = functionArgs([]string{"http://orders:8080"})
	assert.Equal(t, []string{"http://orders:8080"}, args)
	assert.Empty(t, name)

	setURL(t, "http://orders:8080")
	args, name = functionArgs([]string{"main.handler"})
	assert.Empty(t, args)
	assert.Equal(t, "main.handler", name)
}

func TestServiceURLPrefersFlag(t *testing.T) {
	setURL(t, "http://from-flag:8080")

	u, err := serviceURL([]string{"http://positional:8080"})
	require.NoError(t, err)
	assert.Equal(t, "http://from-flag:8080", u)
}

func TestServiceURLMissing(t *testing.T) {
	setURL(t, "")
	_, err := serviceURL(nil)
	assert.Error(t, err)
}
