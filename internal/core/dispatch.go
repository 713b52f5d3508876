package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sportarr/internal/clients/download"
	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
	"sportarr/internal/utils"
)

const maxTorrentFileBytes = 8 << 20

// TrackedStore is the persistence slice the dispatcher and poller share.
type TrackedStore interface {
	Create(t *models.TrackedDownload) error
	GetByID(id int) (*models.TrackedDownload, error)
	GetActive() ([]models.TrackedDownload, error)
	UpdatePoll(t *models.TrackedDownload) error
	Delete(id int) error
}

// Dispatcher hands grabbed releases to download clients and records a
// tracked download for each successful submission.
type Dispatcher struct {
	registry   *Registry
	tracked    TrackedStore
	httpClient *http.Client
	timeout    time.Duration
	// preferTorrentFiles makes the dispatcher fetch the .torrent file even
	// when a magnet link is available, pinning the info hash up front.
	preferTorrentFiles bool
	magnetToTorrent    func(ctx context.Context, magnetURI string) ([]byte, error)

	mu       sync.Mutex
	inFlight map[uint64]struct{}
}

func NewDispatcher(registry *Registry, tracked TrackedStore, timeout time.Duration, preferTorrentFiles bool, dataPath string) *Dispatcher {
	if timeout <= 0 {
		timeout = protocol.DefaultTimeout
	}
	d := &Dispatcher{
		registry:           registry,
		tracked:            tracked,
		httpClient:         protocol.NewHTTPClient(timeout),
		timeout:            timeout,
		preferTorrentFiles: preferTorrentFiles,
		inFlight:           make(map[uint64]struct{}),
	}
	d.magnetToTorrent = func(ctx context.Context, magnetURI string) ([]byte, error) {
		return utils.MagnetToTorrent(ctx, magnetURI, d.timeout, dataPath)
	}
	return d
}

// Grab submits one candidate and returns the tracked download recording it.
// A failed submission creates no tracked record; the error says why so the
// caller can fall through to the next candidate. A non-empty category
// prefers clients configured for it during resolution.
func (d *Dispatcher) Grab(ctx context.Context, c SearchCandidate, category string) (*models.TrackedDownload, error) {
	// Identity comes from the release itself, never from the caller.
	c = newCandidate(c.Release, c.IndexerPriority)

	if err := d.claim(c.Fingerprint); err != nil {
		return nil, err
	}
	defer d.release(c.Fingerprint)

	client, err := d.registry.Resolve(c.Protocol, category)
	if err != nil {
		return nil, err
	}
	cfg := client.Config()

	sub, err := d.buildSubmission(ctx, c, cfg)
	if err != nil {
		return nil, &DispatchError{Reason: string(protocol.KindOf(err)), Err: err}
	}

	nativeID, err := client.Submit(ctx, sub)
	if err != nil {
		log.Warn().Err(err).Str("client", cfg.Name).Str("title", c.Title).Msg("submission failed")
		return nil, &DispatchError{Reason: string(protocol.KindOf(err)), Err: err}
	}
	if nativeID == "" {
		nativeID = sub.InfoHash
	}
	if nativeID == "" {
		return nil, &DispatchError{
			Reason: string(protocol.KindProtocol),
			Err:    fmt.Errorf("client %s returned no id for %q", cfg.Name, c.Title),
		}
	}

	tracked := &models.TrackedDownload{
		ClientID:       cfg.ID,
		ClientNativeID: nativeID,
		Title:          c.Title,
		Protocol:       c.Protocol,
		Category:       sub.Category,
		State:          models.StateQueued,
	}
	if err := d.tracked.Create(tracked); err != nil {
		return nil, err
	}

	log.Info().
		Str("client", cfg.Name).
		Str("native_id", nativeID).
		Str("title", c.Title).
		Msg("release dispatched")
	return tracked, nil
}

// claim marks a fingerprint in flight so two concurrent grabs of the same
// release collapse into one submission.
func (d *Dispatcher) claim(fp uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[fp]; busy {
		return &DispatchError{
			Reason: "duplicate",
			Err:    fmt.Errorf("release already being dispatched"),
		}
	}
	d.inFlight[fp] = struct{}{}
	return nil
}

func (d *Dispatcher) release(fp uint64) {
	d.mu.Lock()
	delete(d.inFlight, fp)
	d.mu.Unlock()
}

// buildSubmission shapes the request for the client. Torrent submissions
// carry an info hash so the tracked record has a native id even when the
// client's add API returns nothing.
func (d *Dispatcher) buildSubmission(ctx context.Context, c SearchCandidate, cfg models.DownloadClientConfig) (download.SubmitRequest, error) {
	sub := download.SubmitRequest{
		Title:    c.Title,
		Category: cfg.Category,
	}

	if c.Protocol == protocol.Usenet {
		sub.DownloadURL = c.DownloadURL
		return sub, nil
	}

	if c.DownloadURL != "" && (d.preferTorrentFiles || c.MagnetURL == "") {
		content, err := d.fetchTorrent(ctx, c.DownloadURL)
		if err == nil {
			hash, err := utils.TorrentInfoHash(content)
			if err != nil {
				return sub, protocol.NewError(protocol.KindProtocol, "parse torrent", err)
			}
			sub.FileContent = content
			sub.InfoHash = hash
			return sub, nil
		}
		if c.MagnetURL == "" {
			return sub, err
		}
		log.Debug().Err(err).Str("title", c.Title).Msg("torrent fetch failed, falling back to magnet")
	}

	if c.MagnetURL != "" {
		if d.preferTorrentFiles {
			content, err := d.magnetToTorrent(ctx, c.MagnetURL)
			if err == nil {
				hash, hashErr := utils.TorrentInfoHash(content)
				if hashErr == nil {
					sub.FileContent = content
					sub.InfoHash = hash
					return sub, nil
				}
				err = hashErr
			}
			log.Debug().Err(err).Str("title", c.Title).Msg("magnet metadata fetch failed, submitting magnet directly")
		}
		hash, err := utils.MagnetInfoHash(c.MagnetURL)
		if err != nil {
			return sub, protocol.NewError(protocol.KindProtocol, "parse magnet", err)
		}
		sub.MagnetURL = c.MagnetURL
		sub.InfoHash = hash
		return sub, nil
	}

	return sub, protocol.NewError(protocol.KindProtocol, "build submission",
		fmt.Errorf("release %q has no download url or magnet", c.Title))
}

func (d *Dispatcher) fetchTorrent(ctx context.Context, url string) ([]byte, error) {
	op := "fetch torrent"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, op, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, protocol.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, protocol.ClassifyStatus(op, resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentFileBytes))
	if err != nil {
		return nil, protocol.ClassifyTransport(op, err)
	}
	return content, nil
}
