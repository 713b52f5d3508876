package download

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// TransmissionClient talks to the Transmission RPC API.
type TransmissionClient struct {
	cfg        models.DownloadClientConfig
	rpcURL     string
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
}

func NewTransmissionClient(cfg models.DownloadClientConfig, timeout time.Duration) *TransmissionClient {
	base := protocol.BuildBaseURL(cfg.UseSsl, cfg.Host, cfg.Port, cfg.URLBase)
	return &TransmissionClient{
		cfg:        cfg,
		rpcURL:     base + "/transmission/rpc",
		httpClient: protocol.NewHTTPClient(timeout),
	}
}

func (t *TransmissionClient) Config() models.DownloadClientConfig { return t.cfg }

type transmissionResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

// rpc sends one request, handling the 409 session-id handshake once.
func (t *TransmissionClient) rpc(ctx context.Context, method string, args any, out any) error {
	op := "transmission " + method

	payload, err := json.Marshal(map[string]any{"method": method, "arguments": args})
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.rpcURL, bytes.NewReader(payload))
		if err != nil {
			return protocol.NewError(protocol.KindProtocol, op, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if t.cfg.Username != "" {
			req.SetBasicAuth(t.cfg.Username, t.cfg.Password)
		}
		t.mu.Lock()
		if t.sessionID != "" {
			req.Header.Set("X-Transmission-Session-Id", t.sessionID)
		}
		t.mu.Unlock()

		resp, err := t.httpClient.Do(req)
		if err != nil {
			return protocol.ClassifyTransport(op, err)
		}

		if resp.StatusCode == http.StatusConflict {
			// Session id handshake: retry once with the id the daemon handed us.
			t.mu.Lock()
			t.sessionID = resp.Header.Get("X-Transmission-Session-Id")
			t.mu.Unlock()
			resp.Body.Close()
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return protocol.ClassifyStatus(op, resp.StatusCode)
		}

		var envelope transmissionResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return protocol.NewError(protocol.KindProtocol, op, err)
		}
		if envelope.Result != "success" {
			return protocol.NewError(protocol.KindProtocol, op,
				fmt.Errorf("rpc failed: %s", envelope.Result))
		}
		if out != nil {
			if err := json.Unmarshal(envelope.Arguments, out); err != nil {
				return protocol.NewError(protocol.KindProtocol, op, err)
			}
		}
		return nil
	}
	return protocol.NewError(protocol.KindProtocol, op, fmt.Errorf("session id negotiation failed"))
}

type transmissionAddedTorrent struct {
	HashString string `json:"hashString"`
	Name       string `json:"name"`
}

type transmissionAddResult struct {
	TorrentAdded     *transmissionAddedTorrent `json:"torrent-added"`
	TorrentDuplicate *transmissionAddedTorrent `json:"torrent-duplicate"`
}

func (t *TransmissionClient) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	args := map[string]any{}
	if len(sub.FileContent) > 0 {
		args["metainfo"] = base64.StdEncoding.EncodeToString(sub.FileContent)
	} else if sub.MagnetURL != "" {
		args["filename"] = sub.MagnetURL
	} else {
		args["filename"] = sub.DownloadURL
	}

	var result transmissionAddResult
	if err := t.rpc(ctx, "torrent-add", args, &result); err != nil {
		return "", err
	}

	if result.TorrentDuplicate != nil {
		return "", protocol.NewError(protocol.KindSubmit, "transmission torrent-add",
			fmt.Errorf("duplicate torrent %s", result.TorrentDuplicate.HashString))
	}
	if result.TorrentAdded == nil {
		return "", protocol.NewError(protocol.KindProtocol, "transmission torrent-add",
			fmt.Errorf("no torrent in response"))
	}
	return strings.ToLower(result.TorrentAdded.HashString), nil
}

type transmissionTorrent struct {
	HashString  string  `json:"hashString"`
	Name        string  `json:"name"`
	PercentDone float64 `json:"percentDone"`
	// Status codes: 0 stopped, 1-2 verifying, 3 queued, 4 downloading,
	// 5 queued to seed, 6 seeding.
	Status      int    `json:"status"`
	ErrorCode   int    `json:"error"`
	ErrorString string `json:"errorString"`
	DownloadDir string `json:"downloadDir"`
	IsFinished  bool   `json:"isFinished"`
}

type transmissionGetResult struct {
	Torrents []transmissionTorrent `json:"torrents"`
}

func (t *TransmissionClient) Status(ctx context.Context, nativeID string) (Status, error) {
	args := map[string]any{
		"ids": []string{nativeID},
		"fields": []string{"hashString", "name", "percentDone", "status",
			"error", "errorString", "downloadDir", "isFinished"},
	}

	var result transmissionGetResult
	if err := t.rpc(ctx, "torrent-get", args, &result); err != nil {
		return Status{}, err
	}
	if len(result.Torrents) == 0 {
		return Status{}, ErrNotFound
	}

	tor := result.Torrents[0]
	status := Status{
		NativeID:   strings.ToLower(tor.HashString),
		Name:       tor.Name,
		Progress:   tor.PercentDone,
		OutputPath: tor.DownloadDir,
	}

	switch {
	case tor.ErrorCode != 0:
		status.State = RemoteFailed
		status.Message = tor.ErrorString
	case tor.PercentDone >= 1.0 || tor.Status >= 5 || tor.IsFinished:
		status.State = RemoteCompleted
	case tor.Status == 3:
		status.State = RemoteQueued
	default:
		status.State = RemoteDownloading
	}
	return status, nil
}

func (t *TransmissionClient) Remove(ctx context.Context, nativeID string, deleteData bool) error {
	args := map[string]any{
		"ids":               []string{nativeID},
		"delete-local-data": deleteData,
	}
	return t.rpc(ctx, "torrent-remove", args, nil)
}

// Test verifies connectivity and credentials via session-get.
func (t *TransmissionClient) Test(ctx context.Context) error {
	return t.rpc(ctx, "session-get", map[string]any{}, nil)
}
