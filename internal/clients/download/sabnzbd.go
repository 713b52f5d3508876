package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// SabnzbdClient talks to the SABnzbd JSON API. SABnzbd authenticates with
// an API key rather than credentials.
type SabnzbdClient struct {
	cfg        models.DownloadClientConfig
	apiURL     string
	httpClient *http.Client
}

func NewSabnzbdClient(cfg models.DownloadClientConfig, timeout time.Duration) *SabnzbdClient {
	base := protocol.BuildBaseURL(cfg.UseSsl, cfg.Host, cfg.Port, cfg.URLBase)
	return &SabnzbdClient{
		cfg:        cfg,
		apiURL:     base + "/api",
		httpClient: protocol.NewHTTPClient(timeout),
	}
}

func (s *SabnzbdClient) Config() models.DownloadClientConfig { return s.cfg }

func (s *SabnzbdClient) call(ctx context.Context, mode string, params url.Values, out any) error {
	op := "sabnzbd " + mode

	params.Set("mode", mode)
	params.Set("output", "json")
	params.Set("apikey", s.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return protocol.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.ClassifyStatus(op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.ClassifyTransport(op, err)
	}

	// Failures come back as 200 with {"status": false, "error": "..."}.
	var failure struct {
		Status *bool  `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &failure); err == nil &&
		failure.Status != nil && !*failure.Status {
		kind := protocol.KindProtocol
		if strings.Contains(strings.ToLower(failure.Error), "api key") {
			kind = protocol.KindAuth
		}
		return protocol.NewError(kind, op, fmt.Errorf("%s", failure.Error))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return protocol.NewError(protocol.KindProtocol, op, err)
		}
	}
	return nil
}

type sabAddResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
}

// Submit queues the NZB by URL and returns the assigned nzo id.
func (s *SabnzbdClient) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	params := url.Values{}
	params.Set("name", sub.DownloadURL)
	params.Set("nzbname", sub.Title)
	if sub.Category != "" {
		params.Set("cat", sub.Category)
	}

	var result sabAddResponse
	if err := s.call(ctx, "addurl", params, &result); err != nil {
		return "", err
	}
	if !result.Status || len(result.NzoIDs) == 0 {
		return "", protocol.NewError(protocol.KindSubmit, "sabnzbd addurl",
			fmt.Errorf("nzb rejected"))
	}
	return result.NzoIDs[0], nil
}

type sabQueueSlot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
}

type sabQueue struct {
	Queue struct {
		Slots []sabQueueSlot `json:"slots"`
	} `json:"queue"`
}

type sabHistorySlot struct {
	NzoID      string `json:"nzo_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Storage    string `json:"storage"`
	FailMsg    string `json:"fail_message"`
	Percentage string `json:"percentage"`
}

type sabHistory struct {
	History struct {
		Slots []sabHistorySlot `json:"slots"`
	} `json:"history"`
}

// Status looks for the item in the queue first, then in history.
func (s *SabnzbdClient) Status(ctx context.Context, nativeID string) (Status, error) {
	var queue sabQueue
	if err := s.call(ctx, "queue", url.Values{}, &queue); err != nil {
		return Status{}, err
	}
	for _, slot := range queue.Queue.Slots {
		if slot.NzoID != nativeID {
			continue
		}
		pct, _ := strconv.ParseFloat(slot.Percentage, 64)
		status := Status{
			NativeID: slot.NzoID,
			Name:     slot.Filename,
			Progress: pct / 100.0,
		}
		switch strings.ToLower(slot.Status) {
		case "queued", "paused", "grabbing":
			status.State = RemoteQueued
		default:
			status.State = RemoteDownloading
		}
		return status, nil
	}

	var history sabHistory
	if err := s.call(ctx, "history", url.Values{}, &history); err != nil {
		return Status{}, err
	}
	for _, slot := range history.History.Slots {
		if slot.NzoID != nativeID {
			continue
		}
		status := Status{
			NativeID:   slot.NzoID,
			Name:       slot.Name,
			OutputPath: slot.Storage,
		}
		switch strings.ToLower(slot.Status) {
		case "completed":
			status.State = RemoteCompleted
			status.Progress = 1.0
		case "failed":
			status.State = RemoteFailed
			status.Message = slot.FailMsg
		default:
			// Post-processing states still count as downloading.
			status.State = RemoteDownloading
		}
		return status, nil
	}

	return Status{}, ErrNotFound
}

// Remove deletes the item from the queue and from history.
func (s *SabnzbdClient) Remove(ctx context.Context, nativeID string, deleteData bool) error {
	params := url.Values{}
	params.Set("name", "delete")
	params.Set("value", nativeID)
	if deleteData {
		params.Set("del_files", "1")
	}
	if err := s.call(ctx, "queue", cloneValues(params), nil); err != nil {
		return err
	}
	return s.call(ctx, "history", params, nil)
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vals := range v {
		for _, val := range vals {
			out.Add(k, val)
		}
	}
	return out
}

// Test verifies connectivity and the API key.
func (s *SabnzbdClient) Test(ctx context.Context) error {
	return s.call(ctx, "version", url.Values{}, nil)
}
