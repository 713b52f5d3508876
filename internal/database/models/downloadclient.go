package models

import (
	"database/sql"
	"fmt"

	"sportarr/internal/clients/protocol"
)

// DownloadClientKind is the closed set of supported client implementations.
type DownloadClientKind string

const (
	ClientKindQBittorrent  DownloadClientKind = "qbittorrent"
	ClientKindTransmission DownloadClientKind = "transmission"
	ClientKindDeluge       DownloadClientKind = "deluge"
	ClientKindRTorrent     DownloadClientKind = "rtorrent"
	ClientKindUTorrent     DownloadClientKind = "utorrent"
	ClientKindSabnzbd      DownloadClientKind = "sabnzbd"
	ClientKindNzbGet       DownloadClientKind = "nzbget"
)

// Protocol derives the transport family from the implementation kind.
func (k DownloadClientKind) Protocol() protocol.Protocol {
	switch k {
	case ClientKindSabnzbd, ClientKindNzbGet:
		return protocol.Usenet
	}
	return protocol.Torrent
}

func (k DownloadClientKind) Valid() bool {
	switch k {
	case ClientKindQBittorrent, ClientKindTransmission, ClientKindDeluge,
		ClientKindRTorrent, ClientKindUTorrent, ClientKindSabnzbd, ClientKindNzbGet:
		return true
	}
	return false
}

// UsesAPIKey reports whether the implementation authenticates with an API
// key rather than a username/password pair.
func (k DownloadClientKind) UsesAPIKey() bool {
	return k == ClientKindSabnzbd
}

// DownloadClientConfig is a configured download client. Entries are edited
// through the settings UI and only read by the core.
type DownloadClientConfig struct {
	ID       int                `json:"id" db:"id"`
	Name     string             `json:"name" db:"name"`
	Kind     DownloadClientKind `json:"kind" db:"kind"`
	Host     string             `json:"host" db:"host"`
	Port     int                `json:"port" db:"port"`
	UseSsl   bool               `json:"use_ssl" db:"use_ssl"`
	URLBase  string             `json:"url_base,omitempty" db:"url_base"`
	Username string             `json:"username,omitempty" db:"username"`
	Password string             `json:"password,omitempty" db:"password"`
	APIKey   string             `json:"api_key,omitempty" db:"api_key"`
	Category string             `json:"category,omitempty" db:"category"`
	// Priority orders clients of the same protocol, lower value wins.
	Priority int  `json:"priority" db:"priority"`
	Enabled  bool `json:"enabled" db:"enabled"`
}

func (c DownloadClientConfig) Protocol() protocol.Protocol {
	return c.Kind.Protocol()
}

// Validate checks the invariants the settings forms rely on.
func (c DownloadClientConfig) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("unknown download client kind %q", c.Kind)
	}
	if c.Priority <= 0 {
		return fmt.Errorf("priority must be a positive integer")
	}
	if c.Kind.UsesAPIKey() && c.APIKey == "" {
		return fmt.Errorf("%s requires an api key", c.Kind)
	}
	return nil
}

type DownloadClientRepository struct {
	db *sql.DB
}

func NewDownloadClientRepository(db *sql.DB) *DownloadClientRepository {
	return &DownloadClientRepository{db: db}
}

const clientColumns = `id, name, kind, host, port, use_ssl, url_base, username, password,
       api_key, category, priority, enabled`

func scanClient(row interface{ Scan(...any) error }) (*DownloadClientConfig, error) {
	var c DownloadClientConfig
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.Host, &c.Port, &c.UseSsl, &c.URLBase,
		&c.Username, &c.Password, &c.APIKey, &c.Category, &c.Priority, &c.Enabled)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *DownloadClientRepository) Create(c *DownloadClientConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `
        INSERT INTO download_clients (name, kind, host, port, use_ssl, url_base, username,
                                      password, api_key, category, priority, enabled)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := r.db.Exec(query, c.Name, c.Kind, c.Host, c.Port, c.UseSsl, c.URLBase,
		c.Username, c.Password, c.APIKey, c.Category, c.Priority, c.Enabled)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	c.ID = int(id)
	return nil
}

func (r *DownloadClientRepository) GetByID(id int) (*DownloadClientConfig, error) {
	row := r.db.QueryRow(`SELECT `+clientColumns+` FROM download_clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *DownloadClientRepository) GetAll() ([]DownloadClientConfig, error) {
	rows, err := r.db.Query(`SELECT ` + clientColumns + ` FROM download_clients ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []DownloadClientConfig
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// GetEnabled returns enabled clients ordered by priority then id, which is
// the resolution order the registry relies on.
func (r *DownloadClientRepository) GetEnabled() ([]DownloadClientConfig, error) {
	rows, err := r.db.Query(`SELECT ` + clientColumns + ` FROM download_clients WHERE enabled = 1 ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []DownloadClientConfig
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func (r *DownloadClientRepository) Update(c *DownloadClientConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `
        UPDATE download_clients SET name = ?, kind = ?, host = ?, port = ?, use_ssl = ?,
               url_base = ?, username = ?, password = ?, api_key = ?, category = ?,
               priority = ?, enabled = ?
        WHERE id = ?
    `
	_, err := r.db.Exec(query, c.Name, c.Kind, c.Host, c.Port, c.UseSsl, c.URLBase,
		c.Username, c.Password, c.APIKey, c.Category, c.Priority, c.Enabled, c.ID)
	return err
}

func (r *DownloadClientRepository) Delete(id int) error {
	_, err := r.db.Exec(`DELETE FROM download_clients WHERE id = ?`, id)
	return err
}
