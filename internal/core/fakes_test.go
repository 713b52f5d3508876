package core

import (
	"context"
	"sync"
	"time"

	"sportarr/internal/clients/download"
	"sportarr/internal/clients/indexers"
	"sportarr/internal/database/models"
)

type fakeIndexerStore struct {
	configs []models.IndexerConfig
}

func (f *fakeIndexerStore) GetEnabled() ([]models.IndexerConfig, error) {
	return f.configs, nil
}

// fakeSearcher serves canned releases, optionally failing or blocking until
// the context is cancelled.
type fakeSearcher struct {
	cfg      models.IndexerConfig
	releases []indexers.Release
	err      error
	block    bool
}

func (f *fakeSearcher) Search(ctx context.Context, req indexers.SearchRequest) ([]indexers.Release, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.releases, nil
}

func (f *fakeSearcher) Test(ctx context.Context) error { return f.err }
func (f *fakeSearcher) Config() models.IndexerConfig   { return f.cfg }

type fakeClientStore struct {
	configs []models.DownloadClientConfig
}

func (f *fakeClientStore) GetEnabled() ([]models.DownloadClientConfig, error) {
	return f.configs, nil
}

func (f *fakeClientStore) GetByID(id int) (*models.DownloadClientConfig, error) {
	for i := range f.configs {
		if f.configs[i].ID == id {
			return &f.configs[i], nil
		}
	}
	return nil, nil
}

// fakeDownloadClient records submissions and serves scripted statuses.
type fakeDownloadClient struct {
	cfg models.DownloadClientConfig

	mu          sync.Mutex
	submitted   []download.SubmitRequest
	submitID    string
	submitErr   error
	status      download.Status
	statusErr   error
	statusCalls int
	removed     []string
	removedData []bool
}

func (f *fakeDownloadClient) Submit(ctx context.Context, req download.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

func (f *fakeDownloadClient) Status(ctx context.Context, nativeID string) (download.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return download.Status{}, f.statusErr
	}
	return f.status, nil
}

func (f *fakeDownloadClient) Remove(ctx context.Context, nativeID string, deleteData bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, nativeID)
	f.removedData = append(f.removedData, deleteData)
	return nil
}

func (f *fakeDownloadClient) Test(ctx context.Context) error      { return nil }
func (f *fakeDownloadClient) Config() models.DownloadClientConfig { return f.cfg }

// fakeTrackedStore is an in-memory TrackedStore.
type fakeTrackedStore struct {
	mu     sync.Mutex
	nextID int
	items  map[int]*models.TrackedDownload
}

func newFakeTrackedStore() *fakeTrackedStore {
	return &fakeTrackedStore{items: make(map[int]*models.TrackedDownload)}
}

func (f *fakeTrackedStore) Create(t *models.TrackedDownload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	t.AddedAt = time.Now()
	clone := *t
	f.items[t.ID] = &clone
	return nil
}

func (f *fakeTrackedStore) GetByID(id int) (*models.TrackedDownload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (f *fakeTrackedStore) GetActive() ([]models.TrackedDownload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TrackedDownload
	for _, t := range f.items {
		if !t.State.Terminal() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTrackedStore) UpdatePoll(t *models.TrackedDownload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *t
	f.items[t.ID] = &clone
	return nil
}

func (f *fakeTrackedStore) Delete(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, body)
	return nil
}
