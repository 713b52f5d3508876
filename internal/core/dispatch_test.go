package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sportarr/internal/clients/download"
	"sportarr/internal/clients/indexers"
	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

const testInfoHash = "aabbccddeeff00112233445566778899aabbccdd"

func dispatcherWith(client *fakeDownloadClient, tracked TrackedStore) *Dispatcher {
	store := &fakeClientStore{configs: []models.DownloadClientConfig{client.cfg}}
	factory := func(cfg models.DownloadClientConfig, timeout time.Duration) (download.Client, error) {
		return client, nil
	}
	reg := NewRegistry(store, factory, time.Second)
	return NewDispatcher(reg, tracked, time.Second, false, "")
}

func usenetCandidate(title string) SearchCandidate {
	return newCandidate(indexers.Release{
		Title:       title,
		Size:        3_000_000_000,
		DownloadURL: "http://indexer/getnzb/abc",
		Protocol:    protocol.Usenet,
	}, 1)
}

func magnetCandidate(title string) SearchCandidate {
	return newCandidate(indexers.Release{
		Title:     title,
		Size:      4_000_000_000,
		MagnetURL: "magnet:?xt=urn:btih:" + testInfoHash + "&dn=x",
		Protocol:  protocol.Torrent,
	}, 1)
}

func TestDispatcherGrabUsenet(t *testing.T) {
	client := &fakeDownloadClient{
		cfg:      models.DownloadClientConfig{ID: 2, Name: "sab", Kind: models.ClientKindSabnzbd, Priority: 1, APIKey: "k", Category: "sports"},
		submitID: "SABnzbd_nzo_1",
	}
	tracked := newFakeTrackedStore()
	d := dispatcherWith(client, tracked)

	td, err := d.Grab(context.Background(), usenetCandidate("UFC 300 1080p"), "")
	require.NoError(t, err)
	require.Equal(t, "SABnzbd_nzo_1", td.ClientNativeID)
	require.Equal(t, 2, td.ClientID)
	require.Equal(t, models.StateQueued, td.State)
	require.Equal(t, "sports", td.Category)

	require.Len(t, client.submitted, 1)
	require.Equal(t, "http://indexer/getnzb/abc", client.submitted[0].DownloadURL)
	require.Equal(t, "sports", client.submitted[0].Category)
}

func TestDispatcherGrabMagnetFallsBackToInfoHash(t *testing.T) {
	// rTorrent-style clients return nothing from their add call; the info
	// hash parsed out of the magnet becomes the native id.
	client := &fakeDownloadClient{
		cfg: models.DownloadClientConfig{ID: 1, Name: "rt", Kind: models.ClientKindRTorrent, Priority: 1},
	}
	tracked := newFakeTrackedStore()
	d := dispatcherWith(client, tracked)

	td, err := d.Grab(context.Background(), magnetCandidate("UFC 300 1080p"), "")
	require.NoError(t, err)
	require.Equal(t, testInfoHash, td.ClientNativeID)

	require.Len(t, client.submitted, 1)
	require.Equal(t, testInfoHash, client.submitted[0].InfoHash)
	require.NotEmpty(t, client.submitted[0].MagnetURL)
}

func TestDispatcherSubmitFailureCreatesNoRecord(t *testing.T) {
	client := &fakeDownloadClient{
		cfg:       models.DownloadClientConfig{ID: 1, Name: "qbit", Kind: models.ClientKindQBittorrent, Priority: 1},
		submitErr: protocol.NewError(protocol.KindAuth, "qbittorrent login", errors.New("bad credentials")),
	}
	tracked := newFakeTrackedStore()
	d := dispatcherWith(client, tracked)

	_, err := d.Grab(context.Background(), magnetCandidate("UFC 300 1080p"), "")
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, string(protocol.KindAuth), dispatchErr.Reason)

	active, err := tracked.GetActive()
	require.NoError(t, err)
	require.Empty(t, active, "failed submission must not create a tracked download")
}

func TestDispatcherNoClientForProtocol(t *testing.T) {
	client := &fakeDownloadClient{
		cfg: models.DownloadClientConfig{ID: 1, Name: "sab", Kind: models.ClientKindSabnzbd, Priority: 1, APIKey: "k"},
	}
	tracked := newFakeTrackedStore()
	d := dispatcherWith(client, tracked)

	_, err := d.Grab(context.Background(), magnetCandidate("UFC 300 1080p"), "")
	require.ErrorIs(t, err, ErrNoClientAvailable)
}

func TestDispatcherCoalescesDuplicateGrabs(t *testing.T) {
	client := &fakeDownloadClient{
		cfg:      models.DownloadClientConfig{ID: 1, Name: "qbit", Kind: models.ClientKindQBittorrent, Priority: 1},
		submitID: testInfoHash,
	}
	tracked := newFakeTrackedStore()
	d := dispatcherWith(client, tracked)

	c := magnetCandidate("UFC 300 1080p")
	require.NoError(t, d.claim(c.Fingerprint))

	_, err := d.Grab(context.Background(), c, "")
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, "duplicate", dispatchErr.Reason)

	d.release(c.Fingerprint)
	_, err = d.Grab(context.Background(), c, "")
	require.NoError(t, err)
}

func TestDispatcherConvertsMagnetWhenTorrentFilesPreferred(t *testing.T) {
	client := &fakeDownloadClient{
		cfg: models.DownloadClientConfig{ID: 1, Name: "qbit", Kind: models.ClientKindQBittorrent, Priority: 1},
	}
	tracked := newFakeTrackedStore()
	d := dispatcherWith(client, tracked)
	d.preferTorrentFiles = true

	metainfo := []byte("d4:infod6:lengthi1e4:name1:a12:piece lengthi16384e6:pieces0:ee")
	converted := 0
	d.magnetToTorrent = func(ctx context.Context, magnetURI string) ([]byte, error) {
		converted++
		return metainfo, nil
	}

	td, err := d.Grab(context.Background(), magnetCandidate("UFC 300 1080p"), "")
	require.NoError(t, err)
	require.Equal(t, 1, converted)

	require.Len(t, client.submitted, 1)
	require.Equal(t, metainfo, client.submitted[0].FileContent)
	require.Empty(t, client.submitted[0].MagnetURL, "converted submissions carry the file, not the magnet")
	require.Regexp(t, "^[0-9a-f]{40}$", client.submitted[0].InfoHash)
	require.Equal(t, client.submitted[0].InfoHash, td.ClientNativeID)
}

func TestDispatcherMagnetConversionFailureFallsBackToMagnet(t *testing.T) {
	client := &fakeDownloadClient{
		cfg: models.DownloadClientConfig{ID: 1, Name: "qbit", Kind: models.ClientKindQBittorrent, Priority: 1},
	}
	tracked := newFakeTrackedStore()
	d := dispatcherWith(client, tracked)
	d.preferTorrentFiles = true
	d.magnetToTorrent = func(ctx context.Context, magnetURI string) ([]byte, error) {
		return nil, errors.New("metadata fetch timed out")
	}

	td, err := d.Grab(context.Background(), magnetCandidate("UFC 300 1080p"), "")
	require.NoError(t, err)
	require.Equal(t, testInfoHash, td.ClientNativeID)

	require.Len(t, client.submitted, 1)
	require.Empty(t, client.submitted[0].FileContent)
	require.NotEmpty(t, client.submitted[0].MagnetURL)
	require.Equal(t, testInfoHash, client.submitted[0].InfoHash)
}

func TestDispatcherRecomputesFingerprint(t *testing.T) {
	client := &fakeDownloadClient{
		cfg:      models.DownloadClientConfig{ID: 1, Name: "qbit", Kind: models.ClientKindQBittorrent, Priority: 1},
		submitID: testInfoHash,
	}
	d := dispatcherWith(client, newFakeTrackedStore())

	c := magnetCandidate("UFC 300 1080p")
	require.NoError(t, d.claim(c.Fingerprint))

	// A caller stripping the identity fields must still collide with the
	// in-flight grab of the same release.
	tampered := c
	tampered.Fingerprint = 0
	tampered.NormalizedTitle = ""

	_, err := d.Grab(context.Background(), tampered, "")
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Equal(t, "duplicate", dispatchErr.Reason)
}

func TestDispatcherRejectsCandidateWithoutSource(t *testing.T) {
	client := &fakeDownloadClient{
		cfg: models.DownloadClientConfig{ID: 1, Name: "qbit", Kind: models.ClientKindQBittorrent, Priority: 1},
	}
	d := dispatcherWith(client, newFakeTrackedStore())

	bare := newCandidate(indexers.Release{Title: "UFC 300", Protocol: protocol.Torrent}, 1)
	_, err := d.Grab(context.Background(), bare, "")
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.Empty(t, client.submitted)
}
