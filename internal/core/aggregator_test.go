package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sportarr/internal/clients/indexers"
	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// searcherFactoryFor maps indexer ids to prepared fake searchers.
func searcherFactoryFor(searchers map[int]*fakeSearcher) SearcherFactory {
	return func(cfg models.IndexerConfig, timeout time.Duration) (indexers.Searcher, error) {
		s, ok := searchers[cfg.ID]
		if !ok {
			return nil, errors.New("no searcher prepared")
		}
		s.cfg = cfg
		return s, nil
	}
}

func torrentRelease(title string, size int64, seeders int, published time.Time) indexers.Release {
	return indexers.Release{
		Title:       title,
		Size:        size,
		Seeders:     seeders,
		DownloadURL: "http://indexer/dl/" + title,
		GUID:        title,
		PublishDate: published,
		Protocol:    protocol.Torrent,
	}
}

func TestAggregatorNoIndexers(t *testing.T) {
	agg := NewAggregator(&fakeIndexerStore{}, searcherFactoryFor(nil), time.Second, 2)
	_, err := agg.Search(context.Background(), indexers.SearchRequest{Query: "ufc 300"})
	require.ErrorIs(t, err, ErrNoIndexerAvailable)
}

func TestAggregatorPartialFailure(t *testing.T) {
	now := time.Now()
	store := &fakeIndexerStore{configs: []models.IndexerConfig{
		{ID: 1, Name: "good", Priority: 1},
		{ID: 2, Name: "broken", Priority: 2},
	}}
	factory := searcherFactoryFor(map[int]*fakeSearcher{
		1: {releases: []indexers.Release{torrentRelease("UFC 300 1080p", 4_000_000_000, 50, now)}},
		2: {err: protocol.NewError(protocol.KindConnectivity, "broken search", errors.New("refused"))},
	})

	agg := NewAggregator(store, factory, time.Second, 2)
	result, err := agg.Search(context.Background(), indexers.SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	require.Contains(t, result.Errors, "broken")
	require.NotContains(t, result.Errors, "good")
}

func TestAggregatorSlowIndexerBoundedByDeadline(t *testing.T) {
	now := time.Now()
	store := &fakeIndexerStore{configs: []models.IndexerConfig{
		{ID: 1, Name: "fast", Priority: 1},
		{ID: 2, Name: "slow", Priority: 2},
	}}
	factory := searcherFactoryFor(map[int]*fakeSearcher{
		1: {releases: []indexers.Release{torrentRelease("UFC 300 1080p", 4_000_000_000, 50, now)}},
		2: {block: true},
	})

	agg := NewAggregator(store, factory, 50*time.Millisecond, 2)
	start := time.Now()
	result, err := agg.Search(context.Background(), indexers.SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, result.Candidates, 1)
	require.Contains(t, result.Errors, "slow")
}

func TestAggregatorAllIndexersTimeOut(t *testing.T) {
	store := &fakeIndexerStore{configs: []models.IndexerConfig{
		{ID: 1, Name: "first", Priority: 1},
		{ID: 2, Name: "second", Priority: 2},
	}}
	factory := searcherFactoryFor(map[int]*fakeSearcher{
		1: {block: true},
		2: {block: true},
	})

	agg := NewAggregator(store, factory, 50*time.Millisecond, 2)
	result, err := agg.Search(context.Background(), indexers.SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Empty(t, result.Candidates)
	require.Len(t, result.Errors, 2)
	require.Contains(t, result.Errors, "first")
	require.Contains(t, result.Errors, "second")
}

func TestAggregatorDedup(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-2 * time.Hour)
	store := &fakeIndexerStore{configs: []models.IndexerConfig{
		{ID: 1, Name: "primary", Priority: 1},
		{ID: 2, Name: "secondary", Priority: 5},
	}}
	factory := searcherFactoryFor(map[int]*fakeSearcher{
		// Same release on both indexers, different title formatting.
		1: {releases: []indexers.Release{
			torrentRelease("UFC.300.Pereira.vs.Hill.1080p", 4_000_000_000, 20, now),
		}},
		2: {releases: []indexers.Release{
			torrentRelease("ufc 300 pereira vs hill 1080p", 4_000_000_000, 90, earlier),
			torrentRelease("UFC 300 720p", 2_000_000_000, 10, now),
		}},
	})

	agg := NewAggregator(store, factory, time.Second, 2)
	result, err := agg.Search(context.Background(), indexers.SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)

	var dupe *SearchCandidate
	for i := range result.Candidates {
		if result.Candidates[i].NormalizedTitle == "ufc 300 pereira vs hill 1080p" {
			dupe = &result.Candidates[i]
		}
	}
	require.NotNil(t, dupe)
	require.Equal(t, "primary", dupe.Indexer, "lowest priority indexer should win the duplicate")
}

func TestAggregatorDedupTieBreaksOnPublishDate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-3 * time.Hour)
	store := &fakeIndexerStore{configs: []models.IndexerConfig{
		{ID: 1, Name: "a", Priority: 1},
		{ID: 2, Name: "b", Priority: 1},
	}}
	factory := searcherFactoryFor(map[int]*fakeSearcher{
		1: {releases: []indexers.Release{torrentRelease("UFC 300 1080p", 4_000_000_000, 20, now)}},
		2: {releases: []indexers.Release{torrentRelease("UFC 300 1080p", 4_000_000_000, 20, earlier)}},
	})

	agg := NewAggregator(store, factory, time.Second, 2)
	result, err := agg.Search(context.Background(), indexers.SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	require.True(t, result.Candidates[0].PublishDate.Equal(earlier))
}

func TestAggregatorOrdering(t *testing.T) {
	now := time.Now()
	store := &fakeIndexerStore{configs: []models.IndexerConfig{
		{ID: 1, Name: "primary", Priority: 1},
		{ID: 2, Name: "secondary", Priority: 5},
	}}
	factory := searcherFactoryFor(map[int]*fakeSearcher{
		1: {releases: []indexers.Release{
			torrentRelease("UFC 300 720p", 2_000_000_000, 10, now),
			torrentRelease("UFC 300 1080p", 4_000_000_000, 80, now),
		}},
		2: {releases: []indexers.Release{
			torrentRelease("UFC 300 2160p", 9_000_000_000, 200, now),
		}},
	})

	agg := NewAggregator(store, factory, time.Second, 2)
	result, err := agg.Search(context.Background(), indexers.SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)

	// Priority groups come first; seeders order within the group.
	require.Equal(t, "UFC 300 1080p", result.Candidates[0].Title)
	require.Equal(t, "UFC 300 720p", result.Candidates[1].Title)
	require.Equal(t, "UFC 300 2160p", result.Candidates[2].Title)
}

func TestAggregatorMinSeedersFilter(t *testing.T) {
	now := time.Now()
	store := &fakeIndexerStore{configs: []models.IndexerConfig{
		{ID: 1, Name: "primary", Priority: 1, MinSeeders: 5},
	}}
	factory := searcherFactoryFor(map[int]*fakeSearcher{
		1: {releases: []indexers.Release{
			torrentRelease("UFC 300 1080p", 4_000_000_000, 50, now),
			torrentRelease("UFC 300 720p", 2_000_000_000, 2, now),
		}},
	})

	agg := NewAggregator(store, factory, time.Second, 2)
	result, err := agg.Search(context.Background(), indexers.SearchRequest{Query: "ufc 300"})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	require.Equal(t, "UFC 300 1080p", result.Candidates[0].Title)
}

func TestAggregatorEarlyReleaseLimit(t *testing.T) {
	eventDate := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	store := &fakeIndexerStore{configs: []models.IndexerConfig{
		{ID: 1, Name: "primary", Priority: 1, EarlyReleaseLimitDays: 2},
	}}
	factory := searcherFactoryFor(map[int]*fakeSearcher{
		1: {releases: []indexers.Release{
			// Published months before the event: cannot be the real broadcast.
			torrentRelease("UFC 300 1080p FAKE", 4_000_000_000, 50, eventDate.AddDate(0, -3, 0)),
			// Published the day before the event: inside the limit.
			torrentRelease("UFC 300 1080p EARLY", 4_000_000_000, 50, eventDate.AddDate(0, 0, -1)),
			// Published after the event.
			torrentRelease("UFC 300 1080p", 4_200_000_000, 50, eventDate.AddDate(0, 0, 1)),
		}},
	})

	agg := NewAggregator(store, factory, time.Second, 2)
	result, err := agg.Search(context.Background(), indexers.SearchRequest{
		Query:     "ufc 300",
		EventDate: eventDate,
	})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	for _, c := range result.Candidates {
		require.NotContains(t, c.Title, "FAKE")
	}
}
