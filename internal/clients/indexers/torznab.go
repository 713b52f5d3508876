package indexers

import (
	"context"
	"net/url"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// TorznabClient talks to a Torznab-compatible torrent indexer. The wire
// format is Newznab's feed plus torrent metrics in attr elements.
type TorznabClient struct {
	feedClient
	cfg models.IndexerConfig
}

func NewTorznabClient(cfg models.IndexerConfig, timeout time.Duration) *TorznabClient {
	return &TorznabClient{
		feedClient: feedClient{
			name:       cfg.Name,
			baseURL:    cfg.BaseURL,
			apiKey:     cfg.APIKey,
			httpClient: protocol.NewHTTPClient(timeout),
		},
		cfg: cfg,
	}
}

func (c *TorznabClient) Config() models.IndexerConfig { return c.cfg }

// Search runs a t=search query and normalizes the feed items, pulling
// seeders, peers and magnet links out of the torznab attributes.
func (c *TorznabClient) Search(ctx context.Context, req SearchRequest) ([]Release, error) {
	params := url.Values{}
	params.Set("t", "search")
	params.Set("q", req.Query)
	if cats := categoriesParam(req.Categories, c.cfg.Categories); cats != "" {
		params.Set("cat", cats)
	}

	parsed, err := c.fetchFeed(ctx, params)
	if err != nil {
		return nil, err
	}

	results := make([]Release, 0, len(parsed.Channel.Items))
	for _, item := range parsed.Channel.Items {
		seeders := item.intAttr("seeders")
		// Torznab reports peers as seeders+leechers combined.
		leechers := item.intAttr("peers") - seeders
		if leechers < 0 {
			leechers = 0
		}

		results = append(results, Release{
			Title:       item.Title,
			Size:        item.sizeBytes(),
			Seeders:     seeders,
			Leechers:    leechers,
			DownloadURL: item.Link,
			MagnetURL:   item.strAttr("magneturl"),
			GUID:        item.GUID,
			PublishDate: item.publishDate(),
			Categories:  item.categories(),
			Indexer:     c.cfg.Name,
			IndexerID:   c.cfg.ID,
			Protocol:    protocol.Torrent,
		})
	}
	return results, nil
}

// Test verifies connectivity and credentials via the caps endpoint.
func (c *TorznabClient) Test(ctx context.Context) error {
	return c.fetchCaps(ctx)
}
