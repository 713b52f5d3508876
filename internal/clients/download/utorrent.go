package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// UTorrentClient talks to the uTorrent WebUI API. Every call is guarded by
// a CSRF token fetched from token.html.
type UTorrentClient struct {
	cfg        models.DownloadClientConfig
	guiURL     string
	httpClient *http.Client
}

var utTokenRe = regexp.MustCompile(`<div[^>]*id=.token.[^>]*>([^<]+)</div>`)

func NewUTorrentClient(cfg models.DownloadClientConfig, timeout time.Duration) *UTorrentClient {
	base := protocol.BuildBaseURL(cfg.UseSsl, cfg.Host, cfg.Port, cfg.URLBase)
	return &UTorrentClient{
		cfg:        cfg,
		guiURL:     base + "/gui",
		httpClient: protocol.NewHTTPClient(timeout),
	}
}

func (u *UTorrentClient) Config() models.DownloadClientConfig { return u.cfg }

func (u *UTorrentClient) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, op, err)
	}
	req.SetBasicAuth(u.cfg.Username, u.cfg.Password)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, protocol.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, protocol.ClassifyStatus(op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.ClassifyTransport(op, err)
	}
	return body, nil
}

func (u *UTorrentClient) token(ctx context.Context) (string, error) {
	body, err := u.get(ctx, "utorrent token", u.guiURL+"/token.html")
	if err != nil {
		return "", err
	}
	match := utTokenRe.FindSubmatch(body)
	if match == nil {
		return "", protocol.NewError(protocol.KindProtocol, "utorrent token",
			fmt.Errorf("token not found in response"))
	}
	return string(match[1]), nil
}

func (u *UTorrentClient) action(ctx context.Context, params url.Values) ([]byte, error) {
	token, err := u.token(ctx)
	if err != nil {
		return nil, err
	}
	params.Set("token", token)
	return u.get(ctx, "utorrent action", u.guiURL+"/?"+params.Encode())
}

// Submit adds by URL or magnet. The WebUI cannot upload raw files over
// this endpoint reliably across versions, so links are preferred; the
// dispatcher-provided info hash becomes the native id.
func (u *UTorrentClient) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	link := sub.MagnetURL
	if link == "" {
		link = sub.DownloadURL
	}
	params := url.Values{}
	params.Set("action", "add-url")
	params.Set("s", link)

	if _, err := u.action(ctx, params); err != nil {
		return "", err
	}
	return strings.ToLower(sub.InfoHash), nil
}

type utList struct {
	Torrents [][]any `json:"torrents"`
}

// uTorrent status bit flags.
const (
	utStatusStarted = 1
	utStatusError   = 16
	utStatusPaused  = 32
	utStatusQueued  = 64
)

func (u *UTorrentClient) Status(ctx context.Context, nativeID string) (Status, error) {
	params := url.Values{}
	params.Set("list", "1")

	body, err := u.action(ctx, params)
	if err != nil {
		return Status{}, err
	}

	var list utList
	if err := json.Unmarshal(body, &list); err != nil {
		return Status{}, protocol.NewError(protocol.KindProtocol, "utorrent list", err)
	}

	for _, row := range list.Torrents {
		if len(row) < 5 {
			continue
		}
		hash, _ := row[0].(string)
		if !strings.EqualFold(hash, nativeID) {
			continue
		}

		statusBits := int(asFloat(row[1]))
		name, _ := row[2].(string)
		// Column 4 is progress in permille.
		progress := asFloat(row[4]) / 1000.0

		status := Status{
			NativeID: strings.ToLower(hash),
			Name:     name,
			Progress: progress,
		}
		// Column 26 carries the download path on builds that report it.
		if len(row) > 26 {
			status.OutputPath, _ = row[26].(string)
		}

		switch {
		case statusBits&utStatusError != 0:
			status.State = RemoteFailed
		case progress >= 1.0:
			status.State = RemoteCompleted
		case statusBits&utStatusQueued != 0 && statusBits&utStatusStarted == 0:
			status.State = RemoteQueued
		default:
			status.State = RemoteDownloading
		}
		return status, nil
	}
	return Status{}, ErrNotFound
}

func asFloat(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}

func (u *UTorrentClient) Remove(ctx context.Context, nativeID string, deleteData bool) error {
	action := "remove"
	if deleteData {
		action = "removedata"
	}
	params := url.Values{}
	params.Set("action", action)
	params.Set("hash", nativeID)

	_, err := u.action(ctx, params)
	return err
}

// Test verifies connectivity and credentials via the token endpoint.
func (u *UTorrentClient) Test(ctx context.Context) error {
	_, err := u.token(ctx)
	return err
}
