package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port     int    `yaml:"port"`
		DataPath string `yaml:"data_path"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Search struct {
		// TimeoutSeconds bounds the whole indexer fan-out, not each call.
		TimeoutSeconds int `yaml:"timeout_seconds"`
		MaxConcurrency int `yaml:"max_concurrency"`
	} `yaml:"search"`

	Download struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
		// PreferTorrentFiles fetches the .torrent file even when a magnet
		// link is available, so the info hash is known before submission.
		PreferTorrentFiles bool `yaml:"prefer_torrent_files"`
	} `yaml:"download"`

	DownloadHandling struct {
		Enabled               bool `yaml:"enabled"`
		PollIntervalMinutes   int  `yaml:"poll_interval_minutes"`
		StallThresholdMinutes int  `yaml:"stall_threshold_minutes"`
		StatusRetries         int  `yaml:"status_retries"`
		RemoveCompleted       bool `yaml:"remove_completed"`
		RemoveFailed          bool `yaml:"remove_failed"`
		RedownloadFailed      bool `yaml:"redownload_failed"`
	} `yaml:"download_handling"`

	Notifications struct {
		PushbulletAPIKey string `yaml:"pushbullet_api_key"`
	} `yaml:"notifications"`
}

func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.DownloadHandling.PollIntervalMinutes) * time.Minute
}

func (c *Config) StallThreshold() time.Duration {
	return time.Duration(c.DownloadHandling.StallThresholdMinutes) * time.Minute
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.App.Port = 8686
	cfg.App.DataPath = "./data"
	cfg.App.LogLevel = "info"

	cfg.Database.Path = "./data/sportarr.db"

	cfg.Search.TimeoutSeconds = 30
	cfg.Search.MaxConcurrency = 5

	cfg.Download.TimeoutSeconds = 30
	cfg.Download.PreferTorrentFiles = false

	cfg.DownloadHandling.Enabled = true
	cfg.DownloadHandling.PollIntervalMinutes = 1
	cfg.DownloadHandling.StallThresholdMinutes = 60
	cfg.DownloadHandling.StatusRetries = 2
	cfg.DownloadHandling.RemoveCompleted = false
	cfg.DownloadHandling.RemoveFailed = true
	cfg.DownloadHandling.RedownloadFailed = false
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("SPORTARR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	if v := os.Getenv("SPORTARR_DATA_PATH"); v != "" {
		cfg.App.DataPath = v
	}
	if v := os.Getenv("SPORTARR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SPORTARR_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
}

// Watcher reloads the config file when it changes on disk and hands the
// fresh copy to subscribers. Editors replace files instead of writing in
// place, so the directory is watched rather than the file itself.
type Watcher struct {
	path string

	mu      sync.RWMutex
	current *Config
	onLoad  []func(*Config)

	fsw  *fsnotify.Watcher
	done chan struct{}
}

func NewWatcher(path string, initial *Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		current: initial,
		fsw:     fsw,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnReload registers a callback run after each successful reload.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	w.onLoad = append(w.onLoad, fn)
	w.mu.Unlock()
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous config")
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(*Config), len(w.onLoad))
	copy(callbacks, w.onLoad)
	w.mu.Unlock()

	log.Info().Str("path", w.path).Msg("config reloaded")
	for _, fn := range callbacks {
		fn(cfg)
	}
}
