package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// qBittorrentClient talks to the qBittorrent Web API (v2).
type qBittorrentClient struct {
	cfg        models.DownloadClientConfig
	baseURL    string
	httpClient *http.Client
}

type qbTorrentInfo struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Progress    float64 `json:"progress"`
	State       string  `json:"state"`
	SavePath    string  `json:"save_path"`
	ContentPath string  `json:"content_path"`
}

func NewQBittorrentClient(cfg models.DownloadClientConfig, timeout time.Duration) *qBittorrentClient {
	return &qBittorrentClient{
		cfg:        cfg,
		baseURL:    protocol.BuildBaseURL(cfg.UseSsl, cfg.Host, cfg.Port, cfg.URLBase),
		httpClient: protocol.NewHTTPClient(timeout),
	}
}

func (q *qBittorrentClient) Config() models.DownloadClientConfig { return q.cfg }

// login authenticates with the Web API and returns the session cookie.
func (q *qBittorrentClient) login(ctx context.Context) (*http.Cookie, error) {
	data := url.Values{}
	data.Set("username", q.cfg.Username)
	data.Set("password", q.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		q.baseURL+"/api/v2/auth/login", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, "qbittorrent login", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, protocol.ClassifyTransport("qbittorrent login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, protocol.ClassifyStatus("qbittorrent login", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "Fails") {
		return nil, protocol.NewError(protocol.KindAuth, "qbittorrent login",
			fmt.Errorf("credentials rejected"))
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "SID" {
			return cookie, nil
		}
	}
	return nil, protocol.NewError(protocol.KindAuth, "qbittorrent login",
		fmt.Errorf("no session cookie returned"))
}

// Submit adds the torrent. The Web API does not echo back an id, so the
// dispatcher-provided info hash becomes the native id.
func (q *qBittorrentClient) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	cookie, err := q.login(ctx)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if sub.Category != "" {
		writer.WriteField("category", sub.Category)
	}
	if len(sub.FileContent) > 0 {
		part, err := writer.CreateFormFile("torrents", "release.torrent")
		if err == nil {
			_, err = part.Write(sub.FileContent)
		}
		if err != nil {
			return "", protocol.NewError(protocol.KindProtocol, "qbittorrent add", err)
		}
	} else {
		link := sub.MagnetURL
		if link == "" {
			link = sub.DownloadURL
		}
		writer.WriteField("urls", link)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		q.baseURL+"/api/v2/torrents/add", &body)
	if err != nil {
		return "", protocol.NewError(protocol.KindProtocol, "qbittorrent add", err)
	}
	req.AddCookie(cookie)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return "", protocol.ClassifyTransport("qbittorrent add", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", protocol.ClassifyStatus("qbittorrent add", resp.StatusCode)
	}

	// The API answers "Fails." in a 200 when the torrent is rejected,
	// most commonly a duplicate.
	respBody, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(respBody), "Fails") {
		return "", protocol.NewError(protocol.KindSubmit, "qbittorrent add",
			fmt.Errorf("torrent rejected, likely duplicate"))
	}

	return strings.ToLower(sub.InfoHash), nil
}

func (q *qBittorrentClient) Status(ctx context.Context, nativeID string) (Status, error) {
	cookie, err := q.login(ctx)
	if err != nil {
		return Status{}, err
	}

	infoURL := fmt.Sprintf("%s/api/v2/torrents/info?hashes=%s", q.baseURL, url.QueryEscape(nativeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return Status{}, protocol.NewError(protocol.KindProtocol, "qbittorrent status", err)
	}
	req.AddCookie(cookie)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return Status{}, protocol.ClassifyTransport("qbittorrent status", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, protocol.ClassifyStatus("qbittorrent status", resp.StatusCode)
	}

	var infos []qbTorrentInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return Status{}, protocol.NewError(protocol.KindProtocol, "qbittorrent status", err)
	}
	if len(infos) == 0 {
		return Status{}, ErrNotFound
	}

	info := infos[0]
	outputPath := info.ContentPath
	if outputPath == "" {
		outputPath = info.SavePath
	}

	return Status{
		NativeID:   info.Hash,
		Name:       info.Name,
		Progress:   info.Progress,
		State:      qbState(info.State, info.Progress),
		OutputPath: outputPath,
	}, nil
}

func qbState(state string, progress float64) RemoteState {
	switch state {
	case "error", "missingFiles":
		return RemoteFailed
	case "uploading", "stalledUP", "pausedUP", "stoppedUP", "queuedUP", "checkingUP", "forcedUP":
		return RemoteCompleted
	case "queuedDL", "allocating", "metaDL", "checkingResumeData":
		return RemoteQueued
	}
	if progress >= 1.0 {
		return RemoteCompleted
	}
	return RemoteDownloading
}

func (q *qBittorrentClient) Remove(ctx context.Context, nativeID string, deleteData bool) error {
	cookie, err := q.login(ctx)
	if err != nil {
		return err
	}

	data := url.Values{}
	data.Set("hashes", nativeID)
	data.Set("deleteFiles", fmt.Sprintf("%t", deleteData))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		q.baseURL+"/api/v2/torrents/delete", strings.NewReader(data.Encode()))
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, "qbittorrent remove", err)
	}
	req.AddCookie(cookie)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return protocol.ClassifyTransport("qbittorrent remove", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.ClassifyStatus("qbittorrent remove", resp.StatusCode)
	}
	return nil
}

// Test verifies connectivity and credentials by logging in.
func (q *qBittorrentClient) Test(ctx context.Context) error {
	_, err := q.login(ctx)
	return err
}
