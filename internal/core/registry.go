package core

import (
	"time"

	"sportarr/internal/clients/download"
	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// ClientStore is the configuration slice the registry reads. The repository
// returns enabled clients ordered by priority then id.
type ClientStore interface {
	GetEnabled() ([]models.DownloadClientConfig, error)
	GetByID(id int) (*models.DownloadClientConfig, error)
}

// ClientFactory builds a protocol adapter for one client config.
type ClientFactory func(cfg models.DownloadClientConfig, timeout time.Duration) (download.Client, error)

// Registry resolves which download client a release goes to. It rebuilds
// adapters from configuration on every call so settings changes take effect
// without a restart.
type Registry struct {
	store     ClientStore
	newClient ClientFactory
	timeout   time.Duration
}

func NewRegistry(store ClientStore, factory ClientFactory, timeout time.Duration) *Registry {
	if factory == nil {
		factory = download.New
	}
	if timeout <= 0 {
		timeout = protocol.DefaultTimeout
	}
	return &Registry{store: store, newClient: factory, timeout: timeout}
}

// Resolve picks the client for a protocol, optionally preferring clients
// whose configured category matches. Enabled clients matching the protocol
// are considered in priority order (lowest value first, id breaks ties);
// a category match outranks priority, but when no client matches the
// category the best protocol match still serves.
func (r *Registry) Resolve(proto protocol.Protocol, category string) (download.Client, error) {
	configs, err := r.store.GetEnabled()
	if err != nil {
		return nil, err
	}

	var fallback *models.DownloadClientConfig
	for i := range configs {
		cfg := configs[i]
		if cfg.Protocol() != proto {
			continue
		}
		if category != "" && cfg.Category == category {
			return r.newClient(cfg, r.timeout)
		}
		if fallback == nil {
			fallback = &configs[i]
		}
	}
	if fallback == nil {
		return nil, ErrNoClientAvailable
	}
	return r.newClient(*fallback, r.timeout)
}

// ClientByID builds the adapter for one stored config, for status polling
// and connection tests.
func (r *Registry) ClientByID(id int) (download.Client, error) {
	cfg, err := r.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNoClientAvailable
	}
	return r.newClient(*cfg, r.timeout)
}
