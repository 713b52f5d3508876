package download

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// DelugeClient talks to the Deluge web JSON-RPC API.
type DelugeClient struct {
	cfg        models.DownloadClientConfig
	jsonURL    string
	httpClient *http.Client

	mu    sync.Mutex
	reqID int
}

type delugeRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int    `json:"id"`
}

type delugeResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
	ID int `json:"id"`
}

func NewDelugeClient(cfg models.DownloadClientConfig, timeout time.Duration) *DelugeClient {
	jar, _ := cookiejar.New(nil)
	httpClient := protocol.NewHTTPClient(timeout)
	httpClient.Jar = jar

	base := protocol.BuildBaseURL(cfg.UseSsl, cfg.Host, cfg.Port, cfg.URLBase)
	return &DelugeClient{
		cfg:        cfg,
		jsonURL:    base + "/json",
		httpClient: httpClient,
		reqID:      1,
	}
}

func (d *DelugeClient) Config() models.DownloadClientConfig { return d.cfg }

func (d *DelugeClient) login(ctx context.Context) error {
	var ok bool
	if err := d.call(ctx, "auth.login", []any{d.cfg.Password}, &ok); err != nil {
		return err
	}
	if !ok {
		return protocol.NewError(protocol.KindAuth, "deluge auth.login",
			fmt.Errorf("password rejected"))
	}
	return nil
}

func (d *DelugeClient) call(ctx context.Context, method string, params []any, out any) error {
	op := "deluge " + method

	d.mu.Lock()
	reqID := d.reqID
	d.reqID++
	d.mu.Unlock()

	payload, err := json.Marshal(delugeRequest{Method: method, Params: params, ID: reqID})
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.jsonURL, bytes.NewReader(payload))
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return protocol.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.ClassifyStatus(op, resp.StatusCode)
	}

	var res delugeResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}
	if res.Error != nil {
		if strings.Contains(res.Error.Message, "Not authenticated") {
			return protocol.NewError(protocol.KindAuth, op, fmt.Errorf("%s", res.Error.Message))
		}
		return protocol.NewError(protocol.KindProtocol, op, fmt.Errorf("%s", res.Error.Message))
	}
	if out != nil {
		if err := json.Unmarshal(res.Result, out); err != nil {
			return protocol.NewError(protocol.KindProtocol, op, err)
		}
	}
	return nil
}

// authed runs fn, retrying once after a login when the session expired.
func (d *DelugeClient) authed(ctx context.Context, fn func() error) error {
	err := fn()
	if err != nil && protocol.KindOf(err) == protocol.KindAuth {
		if lerr := d.login(ctx); lerr != nil {
			return lerr
		}
		return fn()
	}
	return err
}

func (d *DelugeClient) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	if err := d.login(ctx); err != nil {
		return "", err
	}

	options := map[string]any{}
	var nativeID string
	err := d.authed(ctx, func() error {
		var result *string
		var err error
		if len(sub.FileContent) > 0 {
			encoded := base64.StdEncoding.EncodeToString(sub.FileContent)
			err = d.call(ctx, "core.add_torrent_file", []any{"release.torrent", encoded, options}, &result)
		} else {
			link := sub.MagnetURL
			if link == "" {
				link = sub.DownloadURL
			}
			err = d.call(ctx, "core.add_torrent_magnet", []any{link, options}, &result)
		}
		if err != nil {
			return err
		}
		// Deluge answers null for a torrent it already has.
		if result == nil {
			return protocol.NewError(protocol.KindSubmit, "deluge add",
				fmt.Errorf("duplicate torrent"))
		}
		nativeID = strings.ToLower(*result)
		return nil
	})
	return nativeID, err
}

type delugeTorrentStatus struct {
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	State    string  `json:"state"`
	SavePath string  `json:"save_path"`
	Message  string  `json:"message"`
}

func (d *DelugeClient) Status(ctx context.Context, nativeID string) (Status, error) {
	if err := d.login(ctx); err != nil {
		return Status{}, err
	}

	keys := []string{"name", "progress", "state", "save_path", "message"}
	filter := map[string][]string{"hash": {nativeID}}

	var torrents map[string]delugeTorrentStatus
	err := d.authed(ctx, func() error {
		return d.call(ctx, "core.get_torrents_status", []any{filter, keys}, &torrents)
	})
	if err != nil {
		return Status{}, err
	}

	data, ok := torrents[nativeID]
	if !ok {
		return Status{}, ErrNotFound
	}

	status := Status{
		NativeID: nativeID,
		Name:     data.Name,
		// Deluge progress runs 0-100.
		Progress:   data.Progress / 100.0,
		OutputPath: data.SavePath,
	}

	switch data.State {
	case "Error":
		status.State = RemoteFailed
		status.Message = data.Message
	case "Seeding":
		status.State = RemoteCompleted
	case "Queued", "Checking", "Allocating":
		status.State = RemoteQueued
	default:
		if data.Progress >= 100.0 {
			status.State = RemoteCompleted
		} else {
			status.State = RemoteDownloading
		}
	}
	return status, nil
}

func (d *DelugeClient) Remove(ctx context.Context, nativeID string, deleteData bool) error {
	if err := d.login(ctx); err != nil {
		return err
	}
	return d.authed(ctx, func() error {
		return d.call(ctx, "core.remove_torrent", []any{nativeID, deleteData}, nil)
	})
}

// Test verifies connectivity and credentials.
func (d *DelugeClient) Test(ctx context.Context) error {
	if err := d.login(ctx); err != nil {
		return err
	}
	return d.call(ctx, "web.connected", []any{}, nil)
}
