package indexers

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"sportarr/internal/clients/protocol"
)

// Newznab and Torznab both serve RSS feeds; Torznab adds torrent metrics as
// <torznab:attr> elements. The shapes below cover both dialects.

type feedChannel struct {
	Title string     `xml:"title"`
	Items []feedItem `xml:"item"`
}

type feed struct {
	XMLName xml.Name    `xml:"rss"`
	Channel feedChannel `xml:"channel"`
}

type feedAttribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type feedEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type feedItem struct {
	Title      string          `xml:"title"`
	Link       string          `xml:"link"`
	GUID       string          `xml:"guid"`
	PubDate    string          `xml:"pubDate"`
	Size       int64           `xml:"size"`
	Enclosure  feedEnclosure   `xml:"enclosure"`
	Attributes []feedAttribute `xml:"attr"`
}

func (item *feedItem) intAttr(name string) int {
	for _, attr := range item.Attributes {
		if attr.Name == name {
			val, _ := strconv.Atoi(attr.Value)
			return val
		}
	}
	return 0
}

func (item *feedItem) strAttr(name string) string {
	for _, attr := range item.Attributes {
		if attr.Name == name {
			return attr.Value
		}
	}
	return ""
}

func (item *feedItem) publishDate() time.Time {
	t, err := time.Parse(time.RFC1123Z, item.PubDate)
	if err != nil {
		t, _ = time.Parse(time.RFC1123, item.PubDate)
	}
	return t
}

// sizeBytes prefers the explicit size element, falling back to the
// enclosure length some indexers report instead.
func (item *feedItem) sizeBytes() int64 {
	if item.Size > 0 {
		return item.Size
	}
	return item.Enclosure.Length
}

func (item *feedItem) categories() []int {
	var cats []int
	for _, attr := range item.Attributes {
		if attr.Name == "category" {
			if v, err := strconv.Atoi(attr.Value); err == nil {
				cats = append(cats, v)
			}
		}
	}
	return cats
}

// apiError is the <error code="..." description="..."/> document Newznab
// servers answer with instead of a feed.
type apiError struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

// feedClient carries the query plumbing shared by the Newznab and Torznab
// adapters.
type feedClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func (c *feedClient) apiURL(params url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	return fmt.Sprintf("%s?%s", base, params.Encode())
}

// fetchFeed runs one API call and decodes the RSS response. Indexer feeds
// are not reliably UTF-8, so the decoder goes through a charset reader.
func (c *feedClient) fetchFeed(ctx context.Context, params url.Values) (*feed, error) {
	op := c.name + " search"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(params), nil)
	if err != nil {
		return nil, protocol.NewError(protocol.KindProtocol, op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, protocol.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, protocol.ClassifyStatus(op, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, protocol.ClassifyTransport(op, err)
	}

	var parsed feed
	if err := decodeXML(body, &parsed); err == nil {
		return &parsed, nil
	}

	// Newznab servers answer errors with an <error> document in place of
	// the feed. Code 100/101/102 are credential problems.
	var apiErr apiError
	if err := decodeXML(body, &apiErr); err == nil && apiErr.Code > 0 {
		kind := protocol.KindProtocol
		if apiErr.Code >= 100 && apiErr.Code <= 102 {
			kind = protocol.KindAuth
		}
		return nil, protocol.NewError(kind, op,
			fmt.Errorf("indexer error %d: %s", apiErr.Code, apiErr.Description))
	}

	return nil, protocol.NewError(protocol.KindProtocol, op, fmt.Errorf("malformed feed"))
}

const maxFeedBytes = 16 << 20

func decodeXML(body []byte, v any) error {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = charset.NewReaderLabel
	return decoder.Decode(v)
}

// fetchCaps implements the t=caps connectivity test both dialects share.
func (c *feedClient) fetchCaps(ctx context.Context) error {
	op := c.name + " caps"

	params := url.Values{}
	params.Set("t", "caps")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(params), nil)
	if err != nil {
		return protocol.NewError(protocol.KindProtocol, op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return protocol.ClassifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.ClassifyStatus(op, resp.StatusCode)
	}
	return nil
}

func categoriesParam(requested, configured []int) string {
	cats := requested
	if len(cats) == 0 {
		cats = configured
	}
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}
