package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"sportarr/internal/clients/download"
	"sportarr/internal/clients/indexers"
	"sportarr/internal/config"
	"sportarr/internal/database/models"
)

// Manager owns the moving parts and is the single entry point the HTTP
// layer talks to.
type Manager struct {
	config *config.Config

	IndexerRepo *models.IndexerRepository
	ClientRepo  *models.DownloadClientRepository
	MappingRepo *models.RemotePathMappingRepository
	TrackedRepo *models.TrackedDownloadRepository

	aggregator *Aggregator
	registry   *Registry
	dispatcher *Dispatcher
	tracker    *Tracker
	scheduler  *cron.Cron
}

func NewManager(cfg *config.Config, db *sql.DB) *Manager {
	m := &Manager{
		config:      cfg,
		IndexerRepo: models.NewIndexerRepository(db),
		ClientRepo:  models.NewDownloadClientRepository(db),
		MappingRepo: models.NewRemotePathMappingRepository(db),
		TrackedRepo: models.NewTrackedDownloadRepository(db),
		scheduler:   cron.New(),
	}

	m.aggregator = NewAggregator(m.IndexerRepo, nil, cfg.SearchTimeout(), cfg.Search.MaxConcurrency)
	m.registry = NewRegistry(m.ClientRepo, nil, cfg.DownloadTimeout())
	m.dispatcher = NewDispatcher(m.registry, m.TrackedRepo, cfg.DownloadTimeout(), cfg.Download.PreferTorrentFiles, cfg.App.DataPath)

	pathMapper := NewPathMapper(m.MappingRepo)
	m.tracker = NewTracker(m.TrackedRepo, m.registry, pathMapper, TrackerPolicy{
		StallThreshold:   cfg.StallThreshold(),
		StatusRetries:    uint(cfg.DownloadHandling.StatusRetries),
		RemoveCompleted:  cfg.DownloadHandling.RemoveCompleted,
		RemoveFailed:     cfg.DownloadHandling.RemoveFailed,
		RedownloadFailed: cfg.DownloadHandling.RedownloadFailed,
	})
	m.tracker.SetRedownloadHook(m.redownload)

	return m
}

// SetNotifier wires terminal-state notifications through to the tracker.
func (m *Manager) SetNotifier(n Notifier) { m.tracker.SetNotifier(n) }

// SetPublisher wires lifecycle events through to the tracker.
func (m *Manager) SetPublisher(fn func(event string, td models.TrackedDownload)) {
	m.tracker.SetPublisher(fn)
}

// StartScheduler begins periodic download polling. No-op when download
// handling is disabled in config.
func (m *Manager) StartScheduler(ctx context.Context) error {
	if !m.config.DownloadHandling.Enabled {
		log.Info().Msg("download handling disabled, poller not started")
		return nil
	}

	spec := fmt.Sprintf("@every %dm", m.config.DownloadHandling.PollIntervalMinutes)
	if _, err := m.scheduler.AddFunc(spec, func() { m.tracker.Poll(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule download poller: %w", err)
	}
	m.scheduler.Start()
	log.Info().Str("interval", spec).Msg("download poller scheduled")
	return nil
}

// Stop shuts the scheduler down and waits for a running poll to finish.
func (m *Manager) Stop() {
	stopCtx := m.scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("timed out waiting for poller to finish")
	}
}

// Search fans the query out across all enabled indexers.
func (m *Manager) Search(ctx context.Context, req indexers.SearchRequest) (*SearchResult, error) {
	return m.aggregator.Search(ctx, req)
}

// Grab dispatches one candidate to a matching download client.
func (m *Manager) Grab(ctx context.Context, c SearchCandidate, category string) (*models.TrackedDownload, error) {
	return m.dispatcher.Grab(ctx, c, category)
}

// PollNow runs one polling pass outside the schedule.
func (m *Manager) PollNow(ctx context.Context) {
	m.tracker.Poll(ctx)
}

// RemoveTracked deletes a tracked download and optionally removes it from
// its client as well.
func (m *Manager) RemoveTracked(ctx context.Context, id int, fromClient, deleteData bool) error {
	td, err := m.TrackedRepo.GetByID(id)
	if err != nil {
		return err
	}
	if td == nil {
		return fmt.Errorf("tracked download %d not found", id)
	}

	if fromClient {
		client, err := m.registry.ClientByID(td.ClientID)
		if err != nil {
			return err
		}
		if err := client.Remove(ctx, td.ClientNativeID, deleteData); err != nil {
			return err
		}
	}
	return m.TrackedRepo.Delete(id)
}

// TestIndexer checks connectivity and credentials for an indexer config
// without saving it.
func (m *Manager) TestIndexer(ctx context.Context, cfg models.IndexerConfig) error {
	searcher, err := indexers.New(cfg, m.config.SearchTimeout())
	if err != nil {
		return err
	}
	return searcher.Test(ctx)
}

// TestClient checks connectivity and credentials for a download client
// config without saving it.
func (m *Manager) TestClient(ctx context.Context, cfg models.DownloadClientConfig) error {
	client, err := download.New(cfg, m.config.DownloadTimeout())
	if err != nil {
		return err
	}
	return client.Test(ctx)
}

// redownload searches for a replacement when a download fails, skipping
// the release that just failed.
func (m *Manager) redownload(ctx context.Context, failed models.TrackedDownload) {
	log.Info().Str("title", failed.Title).Msg("searching for replacement release")

	result, err := m.Search(ctx, indexers.SearchRequest{Query: failed.Title})
	if err != nil {
		log.Warn().Err(err).Str("title", failed.Title).Msg("replacement search failed")
		return
	}

	failedTitle := normalizeTitle(failed.Title)
	for _, c := range result.Candidates {
		if c.NormalizedTitle == failedTitle {
			continue
		}
		if c.Protocol != failed.Protocol {
			continue
		}
		if _, err := m.Grab(ctx, c, failed.Category); err != nil {
			log.Warn().Err(err).Str("title", c.Title).Msg("replacement grab failed, trying next")
			continue
		}
		return
	}
	log.Warn().Str("title", failed.Title).Msg("no replacement release found")
}
