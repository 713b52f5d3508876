package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sportarr/internal/database/models"
)

// ErrNotFound is returned by Status when the client no longer recognizes
// the native id, typically because the item was removed externally.
var ErrNotFound = errors.New("download not found in client")

// Client is the interface for all download client protocol adapters.
type Client interface {
	// Submit hands a release to the client and returns the client's native
	// id for it (info hash for torrents, queue id for usenet).
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, nativeID string) (Status, error)
	Remove(ctx context.Context, nativeID string, deleteData bool) error
	Test(ctx context.Context) error
	Config() models.DownloadClientConfig
}

// SubmitRequest is the uniform submission shape. Exactly one of
// DownloadURL, MagnetURL or FileContent is set by the dispatcher.
type SubmitRequest struct {
	Title       string
	DownloadURL string
	MagnetURL   string
	// FileContent is raw .torrent metainfo when the dispatcher fetched the
	// file up front, which also pins the info hash before submission.
	FileContent []byte
	// InfoHash accompanies MagnetURL or FileContent for torrent clients
	// whose add API does not echo an id back.
	InfoHash string
	Category string
}

// RemoteState is the client-reported lifecycle bucket.
type RemoteState string

const (
	RemoteQueued      RemoteState = "queued"
	RemoteDownloading RemoteState = "downloading"
	RemoteCompleted   RemoteState = "completed"
	RemoteFailed      RemoteState = "failed"
)

// Status is a normalized status snapshot for one tracked item.
type Status struct {
	NativeID string
	Name     string
	// Progress runs 0..1 regardless of how the client reports it.
	Progress float64
	State    RemoteState
	// OutputPath is the download location as the client sees it; remote
	// path mapping is the caller's concern.
	OutputPath string
	// Message carries the client's failure detail when State is failed.
	Message string
}

// New builds the adapter matching the configured implementation kind.
func New(cfg models.DownloadClientConfig, timeout time.Duration) (Client, error) {
	switch cfg.Kind {
	case models.ClientKindQBittorrent:
		return NewQBittorrentClient(cfg, timeout), nil
	case models.ClientKindTransmission:
		return NewTransmissionClient(cfg, timeout), nil
	case models.ClientKindDeluge:
		return NewDelugeClient(cfg, timeout), nil
	case models.ClientKindRTorrent:
		return NewRTorrentClient(cfg, timeout), nil
	case models.ClientKindUTorrent:
		return NewUTorrentClient(cfg, timeout), nil
	case models.ClientKindSabnzbd:
		return NewSabnzbdClient(cfg, timeout), nil
	case models.ClientKindNzbGet:
		return NewNzbGetClient(cfg, timeout), nil
	}
	return nil, fmt.Errorf("unsupported download client kind %q", cfg.Kind)
}
