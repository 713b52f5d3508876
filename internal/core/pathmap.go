package core

import (
	"strings"

	"sportarr/internal/database/models"
)

// PathMappingStore is the configuration slice the mapper reads.
type PathMappingStore interface {
	GetByHost(host string) ([]models.RemotePathMapping, error)
}

// PathMapper rewrites client-reported download paths into paths this
// process can reach, for clients running on other machines.
type PathMapper struct {
	store PathMappingStore
}

func NewPathMapper(store PathMappingStore) *PathMapper {
	return &PathMapper{store: store}
}

// Map rewrites remotePath using the longest matching prefix configured for
// the client's host. Paths with no matching mapping pass through unchanged,
// so applying Map twice is safe.
func (p *PathMapper) Map(host, remotePath string) (string, error) {
	if remotePath == "" {
		return "", nil
	}
	mappings, err := p.store.GetByHost(host)
	if err != nil {
		return "", err
	}

	var best *models.RemotePathMapping
	for i := range mappings {
		m := mappings[i]
		if !pathHasPrefix(remotePath, m.RemotePath) {
			continue
		}
		if best == nil || len(m.RemotePath) > len(best.RemotePath) {
			best = &mappings[i]
		}
	}
	if best == nil {
		return remotePath, nil
	}
	return best.LocalPath + remotePath[len(best.RemotePath):], nil
}

// pathHasPrefix matches on path segment boundaries so /data/downloads-old
// does not match a /data/downloads mapping.
func pathHasPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	sep := prefix[len(prefix)-1] == '/' || prefix[len(prefix)-1] == '\\'
	next := path[len(prefix)]
	return sep || next == '/' || next == '\\'
}
