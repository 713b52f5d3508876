package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sportarr/internal/config"
	"sportarr/internal/core"
	"sportarr/internal/database"
	"sportarr/internal/database/models"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	manager := core.NewManager(cfg, db)
	srv := NewServer(cfg, manager, NewHub())
	ts := httptest.NewServer(srv.router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIndexerSettingsCRUD(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/indexers", map[string]any{
		"name":     "primary",
		"kind":     "torznab",
		"base_url": "http://indexer:9117",
		"api_key":  "k",
		"enabled":  true,
		"priority": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.IndexerConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotZero(t, created.ID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/indexers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.IndexerConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)

	created.Priority = 7
	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/v1/indexers/%d", ts.URL, created.ID), created)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/indexers/%d", ts.URL, created.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/indexers", nil)
	list = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Empty(t, list)
}

func TestDownloadClientValidationSurfaces(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/downloadclients", map[string]any{
		"name":     "sab",
		"kind":     "sabnzbd",
		"host":     "localhost",
		"port":     8080,
		"priority": 1,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "sabnzbd without api key is invalid")
}

func TestSearchWithoutIndexersConflicts(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/search", map[string]any{"query": "ufc 300"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSearchRequiresQuery(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/search", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGrabWithoutClientsConflicts(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/grab", map[string]any{
		"candidate": map[string]any{
			"title":        "UFC 300 1080p",
			"size":         4000000000,
			"protocol":     "torrent",
			"download_url": "http://indexer/dl/1.torrent",
		},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestQueueEndpoints(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/queue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/queue/99", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	ts := testServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		GoVersion string `json:"go_version"`
		Queue     struct {
			Total int `json:"total"`
		} `json:"queue"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.NotEmpty(t, status.GoVersion)
	require.Zero(t, status.Queue.Total)
}
