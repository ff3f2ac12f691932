package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fieldmemo/internal/config"
	"github.com/scrypster/fieldmemo/internal/server"
	"github.com/scrypster/fieldmemo/internal/storage/sqlite"
	"github.com/scrypster/fieldmemo/pkg/types"
)

func testConfig(mode, token string) *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Storage:   config.StorageConfig{StorageEngine: config.EngineSQLite},
		Security:  config.SecurityConfig{SecurityMode: mode, APIToken: token},
		RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000},
		Ingest:    config.IngestConfig{BreakerMaxFailures: 5, BreakerTimeout: time.Second},
	}
}

// startTestServer starts a server on a random port over an in-memory store
// and returns its base URL.
func startTestServer(t *testing.T, cfg *config.Config) string {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err, "failed to create in-memory SQLite store")

	ctx, cancel := context.WithCancel(context.Background())
	addr, _, err := server.Start(ctx, cfg, store)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		time.Sleep(50 * time.Millisecond) // Give server time to shut down
		_ = store.Close()
	})

	return "http://" + addr
}

func doJSON(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_StartsOnRandomPort(t *testing.T) {
	baseURL := startTestServer(t, testConfig(config.ModeDevelopment, ""))

	addr := strings.TrimPrefix(baseURL, "http://")
	_, port, err := net.SplitHostPort(addr)
	assert.NoError(t, err, "address should be valid host:port format")
	assert.NotEqual(t, "0", port, "port should not be 0 in actual address")
}

func TestServer_HealthEndpoint(t *testing.T) {
	baseURL := startTestServer(t, testConfig(config.ModeProduction, "secret"))

	resp := doJSON(t, http.MethodGet, baseURL+"/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health needs no token")
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "closed", health["breaker"])
}

func TestServer_ProductionRequiresToken(t *testing.T) {
	baseURL := startTestServer(t, testConfig(config.ModeProduction, "secret"))

	resp := doJSON(t, http.MethodGet, baseURL+"/api/memos", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, baseURL+"/api/memos", "secret", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestServer_IngestWorkflow exercises the registry, ingestion and read
// endpoints end to end.
func TestServer_IngestWorkflow(t *testing.T) {
	baseURL := startTestServer(t, testConfig(config.ModeDevelopment, ""))

	resp := doJSON(t, http.MethodPost, baseURL+"/api/components", "", map[string]interface{}{
		"canonical_name": "High Pressure Pump 3",
		"aliases":        []string{"hp pump"},
		"active":         true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, baseURL+"/api/memos", "", map[string]interface{}{
		"engineer":       "alice",
		"source_label":   "field.m4a",
		"transcript":     "changed the seal on the hp pump",
		"effective_date": "2024-03-14",
		"payload": map[string]interface{}{
			"maintenance_performed": []interface{}{
				map[string]interface{}{"component_raw": "the hp pump", "activity_performed": "changed seal", "severity": "high"},
			},
			"action_items": []interface{}{
				map[string]interface{}{"action_text": "order spare seals", "component_raw": "flux valve"},
			},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result types.IngestResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, types.Counts{Maintenance: 1, ActionItems: 1}, result.Counts)
	assert.Equal(t, []string{"flux valve"}, result.Unmatched)

	resp = doJSON(t, http.MethodGet, baseURL+"/api/memos/"+strconv.FormatInt(result.MemoID, 10), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail types.MemoDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, types.SeverityHigh, detail.TopSeverity)
	require.Len(t, detail.Maintenance, 1)
	assert.Equal(t, "High Pressure Pump 3", detail.Maintenance[0].Canonical)

	resp = doJSON(t, http.MethodGet, baseURL+"/api/memos?engineer=alice", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Memos []types.Memo `json:"memos"`
		Total int          `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 1, list.Total)

	resp = doJSON(t, http.MethodGet, baseURL+"/api/action-items", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, baseURL+"/api/memos/"+strconv.FormatInt(result.MemoID, 10), "", map[string]interface{}{
		"additional_notes": "spares ordered",
		"duration_hours":   "0.75",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var edited types.Memo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&edited))
	assert.Equal(t, "spares ordered", edited.AdditionalNotes)
	require.NotNil(t, edited.DurationHours)
	assert.Equal(t, 0.75, *edited.DurationHours)
	assert.Equal(t, "alice", edited.Engineer)

	resp = doJSON(t, http.MethodDelete, baseURL+"/api/memos/"+strconv.FormatInt(result.MemoID, 10), "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, baseURL+"/api/memos", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServices_RegistryChangedRefreshesResolver(t *testing.T) {
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	c := &types.Component{CanonicalName: "Gearbox", Aliases: []string{"gb"}, Active: true}
	require.NoError(t, store.CreateComponent(ctx, c))

	svc := server.NewServices(testConfig(config.ModeDevelopment, ""), store)
	_, ok := svc.Resolver.Resolve(ctx, "gb")
	require.True(t, ok)

	c.Active = false
	require.NoError(t, store.UpdateComponent(ctx, c))
	_, ok = svc.Resolver.Resolve(ctx, "gb")
	require.True(t, ok, "snapshot is kept until refreshed")

	svc.RegistryChanged(ctx, "imported")
	_, ok = svc.Resolver.Resolve(ctx, "gb")
	assert.False(t, ok)
}
