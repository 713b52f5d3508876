package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"sportarr/internal/clients/indexers"
	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// IndexerStore is the slice of the configuration store the aggregator
// reads. Entries may change between calls; nothing is cached.
type IndexerStore interface {
	GetEnabled() ([]models.IndexerConfig, error)
}

// SearcherFactory builds a protocol adapter for one indexer config.
type SearcherFactory func(cfg models.IndexerConfig, timeout time.Duration) (indexers.Searcher, error)

// SearchResult is the outcome of one aggregation: the ranked candidate
// list plus a per-indexer error summary for the indexers that failed.
type SearchResult struct {
	Candidates []SearchCandidate `json:"candidates"`
	// Errors maps indexer name to failure detail. A non-empty map with a
	// non-empty candidate list means partial results.
	Errors map[string]string `json:"errors,omitempty"`
}

// Aggregator fans a search out to every enabled indexer concurrently and
// merges the responses into one ranked, deduplicated candidate list.
type Aggregator struct {
	store         IndexerStore
	newSearcher   SearcherFactory
	timeout       time.Duration
	maxConcurrent int
}

func NewAggregator(store IndexerStore, factory SearcherFactory, timeout time.Duration, maxConcurrent int) *Aggregator {
	if factory == nil {
		factory = indexers.New
	}
	if timeout <= 0 {
		timeout = protocol.DefaultTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Aggregator{
		store:         store,
		newSearcher:   factory,
		timeout:       timeout,
		maxConcurrent: maxConcurrent,
	}
}

// Search runs the fan-out. A failing or slow indexer never fails the
// aggregation; its error lands in the result's error summary instead.
func (a *Aggregator) Search(ctx context.Context, req indexers.SearchRequest) (*SearchResult, error) {
	configs, err := a.store.GetEnabled()
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, ErrNoIndexerAvailable
	}

	searchID := uuid.NewString()
	logger := log.With().Str("search_id", searchID).Str("query", req.Query).Logger()
	logger.Info().Int("indexers", len(configs)).Msg("starting search fan-out")

	// One deadline bounds the whole aggregation. Cancelling the parent
	// context abandons outstanding indexer calls.
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		mu         sync.Mutex
		candidates []SearchCandidate
		failures   = make(map[string]string)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrent)

	for _, cfg := range configs {
		cfg := cfg
		g.Go(func() error {
			searcher, err := a.newSearcher(cfg, a.timeout)
			if err == nil {
				var releases []indexers.Release
				releases, err = searcher.Search(gctx, req)
				if err == nil {
					kept := filterReleases(releases, cfg, req)
					mu.Lock()
					candidates = append(candidates, kept...)
					mu.Unlock()
					return nil
				}
			}

			logger.Warn().Err(err).Str("indexer", cfg.Name).Msg("indexer search failed")
			mu.Lock()
			failures[cfg.Name] = err.Error()
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	merged := dedupe(candidates)
	rank(merged)

	logger.Info().
		Int("raw", len(candidates)).
		Int("ranked", len(merged)).
		Int("failed_indexers", len(failures)).
		Msg("search fan-out finished")

	return &SearchResult{Candidates: merged, Errors: failures}, nil
}

// filterReleases applies the per-indexer filters before merging: category
// restrictions, torrent seeder thresholds and the early-release limit.
func filterReleases(releases []indexers.Release, cfg models.IndexerConfig, req indexers.SearchRequest) []SearchCandidate {
	var kept []SearchCandidate
	for _, rel := range releases {
		if len(cfg.Categories) > 0 && len(rel.Categories) > 0 && !categoriesOverlap(rel.Categories, cfg.Categories) {
			continue
		}
		if rel.Protocol == protocol.Torrent && cfg.MinSeeders > 0 && rel.Seeders < cfg.MinSeeders {
			continue
		}
		if rejectedByEarlyReleaseLimit(rel, cfg.EarlyReleaseLimitDays, req.EventDate) {
			continue
		}
		kept = append(kept, newCandidate(rel, cfg.Priority))
	}
	return kept
}

// rejectedByEarlyReleaseLimit drops releases published more than the
// allowed number of days before the event they claim to cover; anything
// that far ahead of a live event cannot be real. Zero disables the check.
func rejectedByEarlyReleaseLimit(rel indexers.Release, limitDays int, eventDate time.Time) bool {
	if limitDays <= 0 || eventDate.IsZero() || rel.PublishDate.IsZero() {
		return false
	}
	return rel.PublishDate.Before(eventDate.AddDate(0, 0, -limitDays))
}

func categoriesOverlap(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// dedupe collapses candidates sharing a fingerprint. The survivor is the
// copy from the indexer with the lowest priority value; ties go to the
// larger size, then the earliest publish date.
func dedupe(candidates []SearchCandidate) []SearchCandidate {
	best := make(map[uint64]SearchCandidate, len(candidates))
	for _, c := range candidates {
		existing, ok := best[c.Fingerprint]
		if !ok || betterDuplicate(c, existing) {
			best[c.Fingerprint] = c
		}
	}

	out := make([]SearchCandidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}

func betterDuplicate(a, b SearchCandidate) bool {
	if a.IndexerPriority != b.IndexerPriority {
		return a.IndexerPriority < b.IndexerPriority
	}
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	return a.PublishDate.Before(b.PublishDate)
}

// rank orders candidates by ascending indexer priority, then the
// protocol quality heuristic (seeders for torrents), then recency.
func rank(candidates []SearchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.IndexerPriority != b.IndexerPriority {
			return a.IndexerPriority < b.IndexerPriority
		}
		if a.Protocol == protocol.Torrent && b.Protocol == protocol.Torrent && a.Seeders != b.Seeders {
			return a.Seeders > b.Seeders
		}
		return a.PublishDate.After(b.PublishDate)
	})
}
