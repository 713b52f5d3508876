package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"sportarr/internal/clients/download"
	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// Notifier receives terminal-state events. Implementations must tolerate
// being called from the poller goroutine.
type Notifier interface {
	Notify(title, body string) error
}

// TrackerPolicy is the download-handling behavior knobs, read from config.
type TrackerPolicy struct {
	// StallThreshold marks a download failed when its progress has not
	// moved for this long. Zero disables stall detection.
	StallThreshold time.Duration
	// StatusRetries is how many times a status poll is retried before the
	// failure is recorded. Retries only fire for retryable error kinds.
	StatusRetries uint
	// RemoveCompleted removes the item from the client once it completes,
	// keeping the downloaded data.
	RemoveCompleted bool
	// RemoveFailed removes the failed item and its data from the client.
	RemoveFailed bool
	// RedownloadFailed triggers a replacement search when a download fails.
	RedownloadFailed bool
}

// RedownloadFunc is the hook the tracker calls for a failed download when
// the policy asks for a replacement.
type RedownloadFunc func(ctx context.Context, t models.TrackedDownload)

// Tracker polls download clients for the downloads this system submitted
// and advances each tracked record through its lifecycle.
type Tracker struct {
	tracked    TrackedStore
	registry   *Registry
	pathMapper *PathMapper
	policy     TrackerPolicy
	notifier   Notifier
	publish    func(event string, t models.TrackedDownload)
	redownload RedownloadFunc

	// progressSeen remembers when each download last made progress, for
	// stall detection. Keyed by tracked id; pruned on terminal states.
	progressMu   sync.Mutex
	progressSeen map[int]progressMark

	running sync.Mutex
}

type progressMark struct {
	progress float64
	since    time.Time
}

func NewTracker(tracked TrackedStore, registry *Registry, pathMapper *PathMapper, policy TrackerPolicy) *Tracker {
	return &Tracker{
		tracked:      tracked,
		registry:     registry,
		pathMapper:   pathMapper,
		policy:       policy,
		progressSeen: make(map[int]progressMark),
	}
}

// SetNotifier wires the terminal-state notifier. Optional.
func (t *Tracker) SetNotifier(n Notifier) { t.notifier = n }

// SetPublisher wires the event broadcast callback. Optional.
func (t *Tracker) SetPublisher(fn func(event string, td models.TrackedDownload)) { t.publish = fn }

// SetRedownloadHook wires the failed-download replacement hook. Optional.
func (t *Tracker) SetRedownloadHook(fn RedownloadFunc) { t.redownload = fn }

// Poll runs one polling pass over all active downloads, one goroutine per
// client so a slow client never delays the others. Overlapping passes are
// skipped rather than queued.
func (t *Tracker) Poll(ctx context.Context) {
	if !t.running.TryLock() {
		log.Debug().Msg("poll already in progress, skipping")
		return
	}
	defer t.running.Unlock()

	active, err := t.tracked.GetActive()
	if err != nil {
		log.Error().Err(err).Msg("failed to load active downloads")
		return
	}
	if len(active) == 0 {
		return
	}

	byClient := make(map[int][]models.TrackedDownload)
	for _, td := range active {
		byClient[td.ClientID] = append(byClient[td.ClientID], td)
	}

	var wg sync.WaitGroup
	for clientID, items := range byClient {
		wg.Add(1)
		go func(clientID int, items []models.TrackedDownload) {
			defer wg.Done()
			t.pollClient(ctx, clientID, items)
		}(clientID, items)
	}
	wg.Wait()
}

// pollClient polls one client's items sequentially so each client sees at
// most one status request from us at a time.
func (t *Tracker) pollClient(ctx context.Context, clientID int, items []models.TrackedDownload) {
	client, err := t.registry.ClientByID(clientID)
	if err != nil {
		log.Warn().Err(err).Int("client_id", clientID).Msg("cannot build client for polling")
		t.recordPollErrors(items, err)
		return
	}

	for _, td := range items {
		if ctx.Err() != nil {
			return
		}
		t.pollOne(ctx, client, td)
	}
}

func (t *Tracker) pollOne(ctx context.Context, client download.Client, td models.TrackedDownload) {
	status, err := t.fetchStatus(ctx, client, td.ClientNativeID)
	now := time.Now()
	td.LastPolledAt = &now

	switch {
	case errors.Is(err, download.ErrNotFound):
		t.finish(ctx, client, &td, models.StateMissing, "removed from client externally")
		return
	case err != nil:
		// Transient failure: keep the current state and remember the error.
		msg := err.Error()
		td.LastError = &msg
		td.AttemptCount++
		if updateErr := t.tracked.UpdatePoll(&td); updateErr != nil {
			log.Error().Err(updateErr).Int("id", td.ID).Msg("failed to record poll error")
		}
		log.Warn().Err(err).Int("id", td.ID).Str("title", td.Title).Msg("status poll failed")
		return
	}

	td.Progress = status.Progress
	td.LastError = nil
	td.AttemptCount = 0

	switch status.State {
	case download.RemoteCompleted:
		if status.OutputPath != "" {
			mapped, mapErr := t.pathMapper.Map(client.Config().Host, status.OutputPath)
			if mapErr != nil {
				log.Error().Err(mapErr).Int("id", td.ID).Msg("path mapping failed")
				mapped = status.OutputPath
			}
			td.OutputPath = &mapped
		}
		td.Progress = 1.0
		t.finish(ctx, client, &td, models.StateCompleted, "")
	case download.RemoteFailed:
		t.finish(ctx, client, &td, models.StateFailed, status.Message)
	case download.RemoteQueued:
		t.advance(&td, models.StateQueued)
	default:
		if t.stalled(td.ID, status.Progress, time.Now()) {
			t.finish(ctx, client, &td, models.StateFailed,
				fmt.Sprintf("no progress for %s", t.policy.StallThreshold))
			return
		}
		t.advance(&td, models.StateDownloading)
	}
}

// fetchStatus wraps the client call with bounded retries for retryable
// error kinds. Not-found and auth errors surface immediately.
func (t *Tracker) fetchStatus(ctx context.Context, client download.Client, nativeID string) (download.Status, error) {
	var status download.Status
	attempts := t.policy.StatusRetries + 1
	err := retry.Do(
		func() error {
			var err error
			status, err = client.Status(ctx, nativeID)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, download.ErrNotFound) && protocol.IsRetryable(err)
		}),
	)
	return status, err
}

func (t *Tracker) advance(td *models.TrackedDownload, state models.DownloadState) {
	prev := td.State
	td.State = state
	if err := t.tracked.UpdatePoll(td); err != nil {
		log.Error().Err(err).Int("id", td.ID).Msg("failed to update tracked download")
		return
	}
	if prev != state {
		log.Info().Int("id", td.ID).Str("title", td.Title).
			Str("from", string(prev)).Str("to", string(state)).Msg("download state changed")
		t.emit("download_"+string(state), *td)
	}
}

// finish moves a download into a terminal state and applies the removal
// and notification policies.
func (t *Tracker) finish(ctx context.Context, client download.Client, td *models.TrackedDownload, state models.DownloadState, message string) {
	now := time.Now()
	td.State = state
	td.CompletedAt = &now
	if message != "" {
		td.LastError = &message
	}
	if err := t.tracked.UpdatePoll(td); err != nil {
		log.Error().Err(err).Int("id", td.ID).Msg("failed to finalize tracked download")
		return
	}

	t.progressMu.Lock()
	delete(t.progressSeen, td.ID)
	t.progressMu.Unlock()

	log.Info().Int("id", td.ID).Str("title", td.Title).Str("state", string(state)).
		Str("detail", message).Msg("download finished")
	t.emit("download_"+string(state), *td)

	switch state {
	case models.StateCompleted:
		t.notify("Download complete", td.Title)
		if t.policy.RemoveCompleted {
			t.removeFromClient(ctx, client, td, false)
		}
	case models.StateFailed:
		t.notify("Download failed", fmt.Sprintf("%s: %s", td.Title, message))
		if t.policy.RemoveFailed {
			t.removeFromClient(ctx, client, td, true)
		}
		if t.policy.RedownloadFailed && t.redownload != nil {
			t.redownload(ctx, *td)
		}
	case models.StateMissing:
		t.notify("Download missing", td.Title)
	}
}

func (t *Tracker) removeFromClient(ctx context.Context, client download.Client, td *models.TrackedDownload, deleteData bool) {
	if err := client.Remove(ctx, td.ClientNativeID, deleteData); err != nil {
		log.Warn().Err(err).Int("id", td.ID).Msg("failed to remove download from client")
	}
}

// stalled reports whether progress has sat unchanged past the threshold.
func (t *Tracker) stalled(id int, progress float64, now time.Time) bool {
	if t.policy.StallThreshold <= 0 {
		return false
	}
	t.progressMu.Lock()
	defer t.progressMu.Unlock()

	mark, ok := t.progressSeen[id]
	if !ok || progress > mark.progress {
		t.progressSeen[id] = progressMark{progress: progress, since: now}
		return false
	}
	return now.Sub(mark.since) >= t.policy.StallThreshold
}

func (t *Tracker) recordPollErrors(items []models.TrackedDownload, err error) {
	msg := err.Error()
	now := time.Now()
	for _, td := range items {
		td.LastPolledAt = &now
		td.LastError = &msg
		td.AttemptCount++
		if updateErr := t.tracked.UpdatePoll(&td); updateErr != nil {
			log.Error().Err(updateErr).Int("id", td.ID).Msg("failed to record poll error")
		}
	}
}

func (t *Tracker) notify(title, body string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(title, body); err != nil {
		log.Warn().Err(err).Msg("notification failed")
	}
}

func (t *Tracker) emit(event string, td models.TrackedDownload) {
	if t.publish != nil {
		t.publish(event, td)
	}
}
