package protocol

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Protocol identifies the download transport family. It decides which
// indexer wire format applies and which download clients are compatible.
type Protocol string

const (
	Usenet  Protocol = "usenet"
	Torrent Protocol = "torrent"
)

func (p Protocol) Valid() bool {
	return p == Usenet || p == Torrent
}

// DefaultTimeout bounds every outbound call to an indexer or download client.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns the http client adapters should use for API calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// BuildBaseURL assembles the root URL for a client API from its connection
// settings. urlBase covers installs behind a reverse proxy sub-path.
func BuildBaseURL(useSsl bool, host string, port int, urlBase string) string {
	scheme := "http"
	if useSsl {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, host, port)
	if urlBase != "" {
		base += "/" + strings.Trim(urlBase, "/")
	}
	return base
}
