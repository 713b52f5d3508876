package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// NzbGetClient talks to the NZBGet JSON-RPC API with basic auth.
type NzbGetClient struct {
	cfg        models.DownloadClientConfig
	rpcURL     string
	httpClient *http.Client
}

func NewNzbGetClient(cfg models.DownloadClientConfig, timeout time.Duration) *NzbGetClient {
	base := protocol.BuildBaseURL(cfg.UseSsl, cfg.Host, cfg.Port, cfg.URLBase)
	return &NzbGetClient{
		cfg:        cfg,
		rpcURL:     base + "/jsonrpc",
		httpClient: protocol.NewHTTPClient(timeout),
	}
}

func (n *NzbGetClient) Config() models.DownloadClientConfig { return n.cfg }

type nzbgetResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (n *NzbGetClient) call(ctx context.Context, method string, params []any, out any) error {
	op := "nzbget " + method

	payload, err := json.Marshal(map[string]any{
		"method": method,
		"params": params,
	})
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.Username != "" {
		req.SetBasicAuth(n.cfg.Username, n.cfg.Password)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return protocol.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.ClassifyStatus(op, resp.StatusCode)
	}

	var envelope nzbgetResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}
	if envelope.Error != nil {
		return protocol.NewError(protocol.KindProtocol, op,
			fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message))
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return protocol.NewError(protocol.KindProtocol, op, err)
		}
	}
	return nil
}

// Submit appends the NZB by URL and returns the assigned queue id.
// NZBGet accepts a URL in the content parameter and fetches it itself.
func (n *NzbGetClient) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	params := []any{
		sub.Title + ".nzb", // NZBFilename
		sub.DownloadURL,    // Content (URL)
		sub.Category,       // Category
		0,                  // Priority
		false,              // AddToTop
		false,              // AddPaused
		"",                 // DupeKey
		0,                  // DupeScore
		"SCORE",            // DupeMode
	}

	var id int64
	if err := n.call(ctx, "append", params, &id); err != nil {
		return "", err
	}
	if id <= 0 {
		return "", protocol.NewError(protocol.KindSubmit, "nzbget append",
			fmt.Errorf("nzb rejected"))
	}
	return strconv.FormatInt(id, 10), nil
}

type nzbgetGroup struct {
	NZBID            int64  `json:"NZBID"`
	NZBName          string `json:"NZBName"`
	Status           string `json:"Status"`
	FileSizeMB       int64  `json:"FileSizeMB"`
	RemainingSizeMB  int64  `json:"RemainingSizeMB"`
	DownloadedSizeMB int64  `json:"DownloadedSizeMB"`
}

type nzbgetHistoryItem struct {
	NZBID   int64  `json:"NZBID"`
	Name    string `json:"Name"`
	Status  string `json:"Status"`
	DestDir string `json:"DestDir"`
}

// Status looks for the item in the active queue first, then in history.
func (n *NzbGetClient) Status(ctx context.Context, nativeID string) (Status, error) {
	id, err := strconv.ParseInt(nativeID, 10, 64)
	if err != nil {
		return Status{}, protocol.NewError(protocol.KindProtocol, "nzbget status",
			fmt.Errorf("bad native id %q", nativeID))
	}

	var groups []nzbgetGroup
	if err := n.call(ctx, "listgroups", []any{0}, &groups); err != nil {
		return Status{}, err
	}
	for _, g := range groups {
		if g.NZBID != id {
			continue
		}
		status := Status{
			NativeID: nativeID,
			Name:     g.NZBName,
		}
		if g.FileSizeMB > 0 {
			status.Progress = float64(g.FileSizeMB-g.RemainingSizeMB) / float64(g.FileSizeMB)
		}
		switch {
		case strings.HasPrefix(g.Status, "QUEUED"), strings.HasPrefix(g.Status, "PAUSED"):
			status.State = RemoteQueued
		default:
			status.State = RemoteDownloading
		}
		return status, nil
	}

	var history []nzbgetHistoryItem
	if err := n.call(ctx, "history", []any{false}, &history); err != nil {
		return Status{}, err
	}
	for _, h := range history {
		if h.NZBID != id {
			continue
		}
		status := Status{
			NativeID:   nativeID,
			Name:       h.Name,
			OutputPath: h.DestDir,
		}
		switch {
		case strings.HasPrefix(h.Status, "SUCCESS"):
			status.State = RemoteCompleted
			status.Progress = 1.0
		case strings.HasPrefix(h.Status, "FAILURE"), strings.HasPrefix(h.Status, "DELETED"):
			status.State = RemoteFailed
			status.Message = h.Status
		default:
			// WARNING states finished with problems but produced output.
			status.State = RemoteCompleted
			status.Progress = 1.0
		}
		return status, nil
	}

	return Status{}, ErrNotFound
}

// Remove drops the item from the queue or from history.
func (n *NzbGetClient) Remove(ctx context.Context, nativeID string, deleteData bool) error {
	id, err := strconv.ParseInt(nativeID, 10, 64)
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, "nzbget remove",
			fmt.Errorf("bad native id %q", nativeID))
	}

	command := "HistoryDelete"
	if deleteData {
		command = "HistoryFinalDelete"
	}

	var ok bool
	// GroupDelete covers queued items; history commands cover finished ones.
	if err := n.call(ctx, "editqueue", []any{"GroupDelete", "", []int64{id}}, &ok); err != nil {
		return err
	}
	if ok {
		return nil
	}
	return n.call(ctx, "editqueue", []any{command, "", []int64{id}}, nil)
}

// Test verifies connectivity and credentials.
func (n *NzbGetClient) Test(ctx context.Context) error {
	var version string
	return n.call(ctx, "version", []any{}, &version)
}
