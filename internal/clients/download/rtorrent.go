package download

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sportarr/internal/clients/protocol"
	"sportarr/internal/database/models"
)

// RTorrentClient talks to rTorrent's XML-RPC endpoint, typically exposed
// as /RPC2 by the fronting web server.
type RTorrentClient struct {
	cfg        models.DownloadClientConfig
	rpcURL     string
	httpClient *http.Client
}

func NewRTorrentClient(cfg models.DownloadClientConfig, timeout time.Duration) *RTorrentClient {
	urlBase := cfg.URLBase
	if urlBase == "" {
		urlBase = "RPC2"
	}
	return &RTorrentClient{
		cfg:        cfg,
		rpcURL:     protocol.BuildBaseURL(cfg.UseSsl, cfg.Host, cfg.Port, urlBase),
		httpClient: protocol.NewHTTPClient(timeout),
	}
}

func (r *RTorrentClient) Config() models.DownloadClientConfig { return r.cfg }

type xmlrpcValue struct {
	String *string  `xml:"string"`
	I4     *int64   `xml:"i4"`
	I8     *int64   `xml:"i8"`
	Int    *int64   `xml:"int"`
	Double *float64 `xml:"double"`
	Raw    string   `xml:",chardata"`
}

func (v xmlrpcValue) text() string {
	if v.String != nil {
		return *v.String
	}
	return strings.TrimSpace(v.Raw)
}

func (v xmlrpcValue) number() int64 {
	for _, p := range []*int64{v.I8, v.I4, v.Int} {
		if p != nil {
			return *p
		}
	}
	return 0
}

type xmlrpcResponse struct {
	XMLName xml.Name      `xml:"methodResponse"`
	Values  []xmlrpcValue `xml:"params>param>value"`
	Fault   *struct {
		Body string `xml:",innerxml"`
	} `xml:"fault"`
}

func encodeParam(buf *bytes.Buffer, arg any) {
	buf.WriteString("<param><value>")
	switch v := arg.(type) {
	case string:
		buf.WriteString("<string>")
		xml.EscapeText(buf, []byte(v))
		buf.WriteString("</string>")
	case int:
		fmt.Fprintf(buf, "<i8>%d</i8>", v)
	case []byte:
		buf.WriteString("<base64>")
		buf.WriteString(base64.StdEncoding.EncodeToString(v))
		buf.WriteString("</base64>")
	}
	buf.WriteString("</value></param>")
}

func (r *RTorrentClient) call(ctx context.Context, method string, args ...any) (*xmlrpcResponse, error) {
	op := "rtorrent " + method

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?><methodCall><methodName>`)
	buf.WriteString(method)
	buf.WriteString(`</methodName><params>`)
	for _, arg := range args {
		encodeParam(&buf, arg)
	}
	buf.WriteString(`</params></methodCall>`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.rpcURL, &buf)
	if err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, op, err)
	}
	req.Header.Set("Content-Type", "text/xml")
	if r.cfg.Username != "" {
		req.SetBasicAuth(r.cfg.Username, r.cfg.Password)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, protocol.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, protocol.ClassifyStatus(op, resp.StatusCode)
	}

	var parsed xmlrpcResponse
	if err := xml.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, op, err)
	}
	if parsed.Fault != nil {
		if strings.Contains(parsed.Fault.Body, "info-hash") {
			return nil, ErrNotFound
		}
		return nil, protocol.NewError(protocol.KindProtocol, op,
			fmt.Errorf("xmlrpc fault: %s", parsed.Fault.Body))
	}
	return &parsed, nil
}

func (r *RTorrentClient) callString(ctx context.Context, method string, args ...any) (string, error) {
	resp, err := r.call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	if len(resp.Values) == 0 {
		return "", nil
	}
	return resp.Values[0].text(), nil
}

func (r *RTorrentClient) callInt(ctx context.Context, method string, args ...any) (int64, error) {
	resp, err := r.call(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	if len(resp.Values) == 0 {
		return 0, nil
	}
	return resp.Values[0].number(), nil
}

// Submit loads the torrent started. rTorrent returns no id, so the
// dispatcher-provided info hash becomes the native id.
func (r *RTorrentClient) Submit(ctx context.Context, sub SubmitRequest) (string, error) {
	var err error
	if len(sub.FileContent) > 0 {
		_, err = r.call(ctx, "load.raw_start", "", sub.FileContent)
	} else {
		link := sub.MagnetURL
		if link == "" {
			link = sub.DownloadURL
		}
		_, err = r.call(ctx, "load.start", "", link)
	}
	if err != nil {
		return "", err
	}
	return strings.ToLower(sub.InfoHash), nil
}

func (r *RTorrentClient) Status(ctx context.Context, nativeID string) (Status, error) {
	hash := strings.ToUpper(nativeID)

	name, err := r.callString(ctx, "d.name", hash)
	if err != nil {
		return Status{}, err
	}
	complete, err := r.callInt(ctx, "d.complete", hash)
	if err != nil {
		return Status{}, err
	}
	directory, err := r.callString(ctx, "d.directory", hash)
	if err != nil {
		return Status{}, err
	}
	done, err := r.callInt(ctx, "d.bytes_done", hash)
	if err != nil {
		return Status{}, err
	}
	size, err := r.callInt(ctx, "d.size_bytes", hash)
	if err != nil {
		return Status{}, err
	}
	message, err := r.callString(ctx, "d.message", hash)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		NativeID:   nativeID,
		Name:       name,
		OutputPath: directory,
	}
	if size > 0 {
		status.Progress = float64(done) / float64(size)
	}

	switch {
	case complete == 1:
		status.State = RemoteCompleted
		status.Progress = 1.0
	case message != "" && strings.Contains(strings.ToLower(message), "failed"):
		status.State = RemoteFailed
		status.Message = message
	default:
		status.State = RemoteDownloading
	}
	return status, nil
}

func (r *RTorrentClient) Remove(ctx context.Context, nativeID string, deleteData bool) error {
	hash := strings.ToUpper(nativeID)
	// d.erase drops the item; rTorrent never deletes payload data itself.
	_ = deleteData
	_, err := r.call(ctx, "d.erase", hash)
	return err
}

// Test verifies connectivity by asking for the client version.
func (r *RTorrentClient) Test(ctx context.Context) error {
	_, err := r.callString(ctx, "system.client_version")
	return err
}
