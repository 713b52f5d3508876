package indexers

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

const torznabFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed">
  <channel>
    <title>test indexer</title>
    <item>
      <title>UFC 300 Pereira vs Hill 1080p WEB-DL</title>
      <link>http://indexer/dl/1.torrent</link>
      <guid>http://indexer/details/1</guid>
      <pubDate>Fri, 28 Aug 2026 20:15:00 +0000</pubDate>
      <size>4200000000</size>
      <torznab:attr name="seeders" value="80"/>
      <torznab:attr name="peers" value="95"/>
      <torznab:attr name="category" value="5060"/>
      <torznab:attr name="magneturl" value="magnet:?xt=urn:btih:aabbccddeeff00112233445566778899aabbccdd"/>
    </item>
    <item>
      <title>UFC 300 720p HDTV</title>
      <link>http://indexer/dl/2.torrent</link>
      <guid>http://indexer/details/2</guid>
      <pubDate>Fri, 28 Aug 2026 18:00:00 +0000</pubDate>
      <size>2100000000</size>
      <torznab:attr name="seeders" value="12"/>
      <torznab:attr name="peers" value="12"/>
    </item>
  </channel>
</rss>`

const newznabFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>test indexer</title>
    <item>
      <title>UFC 300 Pereira vs Hill 1080p WEB-DL</title>
      <link>http://indexer/getnzb/abc.nzb</link>
      <guid>http://indexer/details/abc</guid>
      <pubDate>Fri, 28 Aug 2026 20:15:00 +0000</pubDate>
      <enclosure url="http://indexer/getnzb/abc.nzb" length="3900000000" type="application/x-nzb"/>
    </item>
  </channel>
</rss>`

func TestTorznabSearch(t *testing.T) {
	var gotQuery, gotKey, gotCat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("apikey")
		gotCat = r.URL.Query().Get("cat")
		require.Equal(t, "/api", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, torznabFeed)
	}))
	defer srv.Close()

	client := NewTorznabClient(models.IndexerConfig{
		ID: 3, Name: "test", Kind: models.IndexerKindTorznab,
		BaseURL: srv.URL, APIKey: "secret", Categories: []int{5060},
	}, 5*time.Second)

	releases, err := client.Search(context.Background(), SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Equal(t, "ufc 300", gotQuery)
	require.Equal(t, "secret", gotKey)
	require.Equal(t, "5060", gotCat)
	require.Len(t, releases, 2)

	first := releases[0]
	require.Equal(t, "UFC 300 Pereira vs Hill 1080p WEB-DL", first.Title)
	require.Equal(t, int64(4200000000), first.Size)
	require.Equal(t, 80, first.Seeders)
	require.Equal(t, 15, first.Leechers, "leechers derive from peers minus seeders")
	require.Equal(t, "magnet:?xt=urn:btih:aabbccddeeff00112233445566778899aabbccdd", first.MagnetURL)
	require.Equal(t, []int{5060}, first.Categories)
	require.Equal(t, protocol.Torrent, first.Protocol)
	require.Equal(t, "test", first.Indexer)
	require.Equal(t, 3, first.IndexerID)
	require.Equal(t, time.Date(2026, 8, 28, 20, 15, 0, 0, time.UTC).Unix(), first.PublishDate.Unix())

	second := releases[1]
	require.Equal(t, 0, second.Leechers)
	require.Empty(t, second.MagnetURL)
}

func TestNewznabSearchEnclosureSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, newznabFeed)
	}))
	defer srv.Close()

	client := NewNewznabClient(models.IndexerConfig{
		ID: 1, Name: "usenet", Kind: models.IndexerKindNewznab, BaseURL: srv.URL,
	}, 5*time.Second)

	releases, err := client.Search(context.Background(), SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Len(t, releases, 1)
	require.Equal(t, int64(3900000000), releases[0].Size, "enclosure length backs up a missing size element")
	require.Equal(t, protocol.Usenet, releases[0].Protocol)
}

func TestFeedErrorDocument(t *testing.T) {
	tests := []struct {
		name string
		code int
		kind protocol.Kind
	}{
		{name: "bad credentials", code: 100, kind: protocol.KindAuth},
		{name: "suspended account", code: 101, kind: protocol.KindAuth},
		{name: "missing parameter", code: 200, kind: protocol.KindProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/xml")
				fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><error code="%d" description="%s"/>`, tt.code, tt.name)
			}))
			defer srv.Close()

			client := NewNewznabClient(models.IndexerConfig{
				Name: "erroring", Kind: models.IndexerKindNewznab, BaseURL: srv.URL,
			}, 5*time.Second)

			_, err := client.Search(context.Background(), SearchRequest{Query: "ufc 300"})
			require.Error(t, err)
			require.Equal(t, tt.kind, protocol.KindOf(err))
		})
	}
}

func TestFeedHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		kind   protocol.Kind
	}{
		{status: http.StatusUnauthorized, kind: protocol.KindAuth},
		{status: http.StatusForbidden, kind: protocol.KindAuth},
		{status: http.StatusInternalServerError, kind: protocol.KindProtocol},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewTorznabClient(models.IndexerConfig{
				Name: "erroring", Kind: models.IndexerKindTorznab, BaseURL: srv.URL,
			}, 5*time.Second)

			_, err := client.Search(context.Background(), SearchRequest{Query: "ufc 300"})
			require.Error(t, err)
			require.Equal(t, tt.kind, protocol.KindOf(err))
		})
	}
}

func TestFeedConnectionRefused(t *testing.T) {
	client := NewTorznabClient(models.IndexerConfig{
		Name: "down", Kind: models.IndexerKindTorznab, BaseURL: "http://127.0.0.1:1",
	}, time.Second)

	_, err := client.Search(context.Background(), SearchRequest{Query: "ufc 300"})
	require.Error(t, err)
	require.True(t, protocol.IsRetryable(err))
}

func TestAPIURLNormalization(t *testing.T) {
	c := &feedClient{baseURL: "http://indexer:9117/jackett/", apiKey: "k"}
	got := c.apiURL(map[string][]string{"t": {"caps"}})
	require.Equal(t, "http://indexer:9117/jackett/api?apikey=k&t=caps", got)

	c = &feedClient{baseURL: "http://indexer/api"}
	got = c.apiURL(map[string][]string{"t": {"caps"}})
	require.Equal(t, "http://indexer/api?t=caps", got)
}
