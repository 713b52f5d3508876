package utils

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog/log"
)

// MagnetInfoHash extracts the info hash from a magnet link.
func MagnetInfoHash(magnetURI string) (string, error) {
	m, err := metainfo.ParseMagnetUri(magnetURI)
	if err != nil {
		return "", fmt.Errorf("invalid magnet link: %w", err)
	}
	return strings.ToLower(m.InfoHash.HexString()), nil
}

// TorrentInfoHash computes the info hash of raw .torrent metainfo.
func TorrentInfoHash(content []byte) (string, error) {
	mi, err := metainfo.Load(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("invalid torrent file: %w", err)
	}
	return strings.ToLower(mi.HashInfoBytes().HexString()), nil
}

// MagnetToTorrent fetches torrent metadata for a magnet link and returns
// it as a bencoded .torrent file, bounded by the given timeout.
func MagnetToTorrent(ctx context.Context, magnetURI string, timeout time.Duration, dataPath string) ([]byte, error) {
	cfg := torrent.NewDefaultClientConfig()
	cfg.NoUpload = true // only metadata is wanted
	cfg.DisablePEX = true
	cfg.DataDir = dataPath

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating torrent client: %w", err)
	}
	defer client.Close()

	t, err := client.AddMagnet(magnetURI)
	if err != nil {
		return nil, fmt.Errorf("error adding magnet: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug().Msg("fetching metadata for magnet link")

	select {
	case <-t.GotInfo():
		mi := t.Metainfo()
		var buf bytes.Buffer
		if err := mi.Write(&buf); err != nil {
			return nil, fmt.Errorf("failed to write bencoded metainfo: %w", err)
		}
		return buf.Bytes(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout reached while fetching metadata for magnet")
	}
}
