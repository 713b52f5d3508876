package indexers

import (
	"context"
	"fmt"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// Searcher is the interface for all indexer protocol adapters. Indexers
// only search; submission and status belong to download clients.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]Release, error)
	Test(ctx context.Context) error
	Config() models.IndexerConfig
}

// SearchRequest is the uniform query fanned out to every enabled indexer.
type SearchRequest struct {
	Query string
	// EventDate is when the represented event takes place. Used together
	// with the per-indexer early-release limit to reject releases published
	// suspiciously far ahead of the event.
	EventDate time.Time
	// Categories narrows the search beyond the indexer's own category
	// filter. Empty means the indexer config decides.
	Categories []int
}

// Release is a standardized search result from any indexer.
type Release struct {
	Title       string            `json:"title"`
	Size        int64             `json:"size"`
	Seeders     int               `json:"seeders"`
	Leechers    int               `json:"leechers"`
	DownloadURL string            `json:"download_url"`
	MagnetURL   string            `json:"magnet_url,omitempty"`
	GUID        string            `json:"guid"`
	PublishDate time.Time         `json:"publish_date"`
	Categories  []int             `json:"categories,omitempty"`
	Indexer     string            `json:"indexer"`
	IndexerID   int               `json:"indexer_id"`
	Protocol    protocol.Protocol `json:"protocol"`
}

// New builds the adapter matching the configured dialect.
func New(cfg models.IndexerConfig, timeout time.Duration) (Searcher, error) {
	switch cfg.Kind {
	case models.IndexerKindNewznab:
		return NewNewznabClient(cfg, timeout), nil
	case models.IndexerKindTorznab:
		return NewTorznabClient(cfg, timeout), nil
	}
	return nil, fmt.Errorf("unsupported indexer kind %q", cfg.Kind)
}
