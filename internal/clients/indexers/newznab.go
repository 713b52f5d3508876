package indexers

import (
	"context"
	"net/url"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// NewznabClient talks to a Newznab-compatible usenet indexer.
type NewznabClient struct {
	feedClient
	cfg models.IndexerConfig
}

func NewNewznabClient(cfg models.IndexerConfig, timeout time.Duration) *NewznabClient {
	return &NewznabClient{
		feedClient: feedClient{
			name:       cfg.Name,
			baseURL:    cfg.BaseURL,
			apiKey:     cfg.APIKey,
			httpClient: protocol.NewHTTPClient(timeout),
		},
		cfg: cfg,
	}
}

func (c *NewznabClient) Config() models.IndexerConfig { return c.cfg }

// Search runs a t=search query and normalizes the feed items.
func (c *NewznabClient) Search(ctx context.Context, req SearchRequest) ([]Release, error) {
	params := url.Values{}
	params.Set("t", "search")
	params.Set("q", req.Query)
	params.Set("extended", "1")
	if cats := categoriesParam(req.Categories, c.cfg.Categories); cats != "" {
		params.Set("cat", cats)
	}

	parsed, err := c.fetchFeed(ctx, params)
	if err != nil {
		return nil, err
	}

	results := make([]Release, 0, len(parsed.Channel.Items))
	for _, item := range parsed.Channel.Items {
		results = append(results, Release{
			Title:       item.Title,
			Size:        item.sizeBytes(),
			DownloadURL: item.Link,
			GUID:        item.GUID,
			PublishDate: item.publishDate(),
			Categories:  item.categories(),
			Indexer:     c.cfg.Name,
			IndexerID:   c.cfg.ID,
			Protocol:    protocol.Usenet,
		})
	}
	return results, nil
}

// Test verifies connectivity and credentials via the caps endpoint.
func (c *NewznabClient) Test(ctx context.Context) error {
	return c.fetchCaps(ctx)
}
