package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"sportarr/internal/clients/indexers"
)

// SearchCandidate is an aggregated, deduplicated search result. It lives
// only for the duration of one search call and is never persisted.
type SearchCandidate struct {
	indexers.Release
	// NormalizedTitle is the release name with formatting noise stripped,
	// used for fingerprinting.
	NormalizedTitle string `json:"normalized_title"`
	// Fingerprint identifies the same release across indexers regardless
	// of title formatting differences.
	Fingerprint uint64 `json:"fingerprint,string"`
	// IndexerPriority is carried from the originating indexer config so
	// dedup and ordering don't have to re-resolve it.
	IndexerPriority int `json:"indexer_priority"`
}

var titleNoiseRe = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeTitle collapses case, punctuation and whitespace so the same
// release posted with different separators normalizes identically.
func normalizeTitle(title string) string {
	lower := strings.ToLower(title)
	return strings.TrimSpace(titleNoiseRe.ReplaceAllString(lower, " "))
}

// fingerprint hashes the normalized title together with the size. Two
// indexers reporting the same release agree on both even when the raw
// titles differ in formatting.
func fingerprint(normalizedTitle string, size int64) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s:%d", normalizedTitle, size))
}

func newCandidate(rel indexers.Release, indexerPriority int) SearchCandidate {
	normalized := normalizeTitle(rel.Title)
	return SearchCandidate{
		Release:         rel,
		NormalizedTitle: normalized,
		Fingerprint:     fingerprint(normalized, rel.Size),
		IndexerPriority: indexerPriority,
	}
}
