package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

func TestSabnzbdSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "/api", r.URL.Path)
		require.Equal(t, "testkey", q.Get("apikey"))
		require.Equal(t, "addurl", q.Get("mode"))
		require.Equal(t, "http://indexer/getnzb/abc", q.Get("name"))
		require.Equal(t, "UFC 300", q.Get("nzbname"))
		require.Equal(t, "sports", q.Get("cat"))
		fmt.Fprint(w, `{"status": true, "nzo_ids": ["SABnzbd_nzo_x1"]}`)
	}))
	defer srv.Close()

	client := NewSabnzbdClient(clientConfigFor(t, srv, models.ClientKindSabnzbd), 5*time.Second)

	id, err := client.Submit(context.Background(), SubmitRequest{
		Title:       "UFC 300",
		DownloadURL: "http://indexer/getnzb/abc",
		Category:    "sports",
	})
	require.NoError(t, err)
	require.Equal(t, "SABnzbd_nzo_x1", id)
}

func TestSabnzbdBadAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": false, "error": "API Key Incorrect"}`)
	}))
	defer srv.Close()

	client := NewSabnzbdClient(clientConfigFor(t, srv, models.ClientKindSabnzbd), 5*time.Second)

	err := client.Test(context.Background())
	require.Error(t, err)
	require.Equal(t, protocol.KindAuth, protocol.KindOf(err))
}

func TestSabnzbdStatusFromQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "queue", r.URL.Query().Get("mode"))
		fmt.Fprint(w, `{"queue": {"slots": [
			{"nzo_id": "nzo1", "filename": "UFC 300", "status": "Downloading", "percentage": "42"}
		]}}`)
	}))
	defer srv.Close()

	client := NewSabnzbdClient(clientConfigFor(t, srv, models.ClientKindSabnzbd), 5*time.Second)

	status, err := client.Status(context.Background(), "nzo1")
	require.NoError(t, err)
	require.Equal(t, RemoteDownloading, status.State)
	require.InDelta(t, 0.42, status.Progress, 0.001)
	require.Equal(t, "UFC 300", status.Name)
}

func TestSabnzbdStatusFromHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "queue":
			fmt.Fprint(w, `{"queue": {"slots": []}}`)
		case "history":
			fmt.Fprint(w, `{"history": {"slots": [
				{"nzo_id": "nzo1", "name": "UFC 300", "status": "Completed", "storage": "/complete/ufc300"},
				{"nzo_id": "nzo2", "name": "UFC 299", "status": "Failed", "fail_message": "unpack failed"}
			]}}`)
		}
	}))
	defer srv.Close()

	client := NewSabnzbdClient(clientConfigFor(t, srv, models.ClientKindSabnzbd), 5*time.Second)

	status, err := client.Status(context.Background(), "nzo1")
	require.NoError(t, err)
	require.Equal(t, RemoteCompleted, status.State)
	require.Equal(t, 1.0, status.Progress)
	require.Equal(t, "/complete/ufc300", status.OutputPath)

	status, err = client.Status(context.Background(), "nzo2")
	require.NoError(t, err)
	require.Equal(t, RemoteFailed, status.State)
	require.Equal(t, "unpack failed", status.Message)
}

func TestSabnzbdStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "queue":
			fmt.Fprint(w, `{"queue": {"slots": []}}`)
		case "history":
			fmt.Fprint(w, `{"history": {"slots": []}}`)
		}
	}))
	defer srv.Close()

	client := NewSabnzbdClient(clientConfigFor(t, srv, models.ClientKindSabnzbd), 5*time.Second)

	_, err := client.Status(context.Background(), "gone")
	require.ErrorIs(t, err, ErrNotFound)
}
