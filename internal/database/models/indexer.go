package models

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"sportarr/internal/clients/protocol"
)

// IndexerKind selects the wire dialect an indexer speaks.
type IndexerKind string

const (
	IndexerKindNewznab IndexerKind = "newznab"
	IndexerKindTorznab IndexerKind = "torznab"
)

// Protocol derives the transport family from the dialect: Newznab serves
// usenet, Torznab serves torrents.
func (k IndexerKind) Protocol() protocol.Protocol {
	if k == IndexerKindNewznab {
		return protocol.Usenet
	}
	return protocol.Torrent
}

func (k IndexerKind) Valid() bool {
	return k == IndexerKindNewznab || k == IndexerKindTorznab
}

// IndexerConfig is a configured search endpoint. Entries are edited through
// the settings UI and only read by the core.
type IndexerConfig struct {
	ID         int         `json:"id" db:"id"`
	Name       string      `json:"name" db:"name"`
	Kind       IndexerKind `json:"kind" db:"kind"`
	BaseURL    string      `json:"base_url" db:"base_url"`
	APIKey     string      `json:"api_key,omitempty" db:"api_key"`
	Categories []int       `json:"categories" db:"categories"`
	Enabled    bool        `json:"enabled" db:"enabled"`
	// Priority orders indexers, lower value wins.
	Priority int `json:"priority" db:"priority"`
	// Torrent-only thresholds. Zero means disabled.
	MinSeeders int     `json:"min_seeders,omitempty" db:"min_seeders"`
	SeedRatio  float64 `json:"seed_ratio,omitempty" db:"seed_ratio"`
	SeedTime   int     `json:"seed_time,omitempty" db:"seed_time"`
	// EarlyReleaseLimitDays rejects releases published more than this many
	// days ahead of the event date. Zero disables the check.
	EarlyReleaseLimitDays int `json:"early_release_limit_days" db:"early_release_limit_days"`
}

func (c IndexerConfig) Protocol() protocol.Protocol {
	return c.Kind.Protocol()
}

// Validate checks the invariants the settings forms rely on.
func (c IndexerConfig) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("unknown indexer kind %q", c.Kind)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if c.Priority <= 0 {
		return fmt.Errorf("priority must be a positive integer")
	}
	if c.Protocol() == protocol.Usenet && (c.MinSeeders != 0 || c.SeedRatio != 0 || c.SeedTime != 0) {
		return fmt.Errorf("seed thresholds do not apply to usenet indexers")
	}
	return nil
}

func categoriesToCSV(cats []int) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

func categoriesFromCSV(csv string) []int {
	if csv == "" {
		return nil
	}
	var cats []int
	for _, part := range strings.Split(csv, ",") {
		if v, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			cats = append(cats, v)
		}
	}
	return cats
}

type IndexerRepository struct {
	db *sql.DB
}

func NewIndexerRepository(db *sql.DB) *IndexerRepository {
	return &IndexerRepository{db: db}
}

const indexerColumns = `id, name, kind, base_url, api_key, categories, enabled, priority,
       min_seeders, seed_ratio, seed_time, early_release_limit_days`

func scanIndexer(row interface{ Scan(...any) error }) (*IndexerConfig, error) {
	var c IndexerConfig
	var cats string
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.BaseURL, &c.APIKey, &cats, &c.Enabled,
		&c.Priority, &c.MinSeeders, &c.SeedRatio, &c.SeedTime, &c.EarlyReleaseLimitDays)
	if err != nil {
		return nil, err
	}
	c.Categories = categoriesFromCSV(cats)
	return &c, nil
}

func (r *IndexerRepository) Create(c *IndexerConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `
        INSERT INTO indexers (name, kind, base_url, api_key, categories, enabled, priority,
                              min_seeders, seed_ratio, seed_time, early_release_limit_days)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := r.db.Exec(query, c.Name, c.Kind, c.BaseURL, c.APIKey,
		categoriesToCSV(c.Categories), c.Enabled, c.Priority,
		c.MinSeeders, c.SeedRatio, c.SeedTime, c.EarlyReleaseLimitDays)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	c.ID = int(id)
	return nil
}

func (r *IndexerRepository) GetByID(id int) (*IndexerConfig, error) {
	row := r.db.QueryRow(`SELECT `+indexerColumns+` FROM indexers WHERE id = ?`, id)
	c, err := scanIndexer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *IndexerRepository) GetAll() ([]IndexerConfig, error) {
	rows, err := r.db.Query(`SELECT ` + indexerColumns + ` FROM indexers ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []IndexerConfig
	for rows.Next() {
		c, err := scanIndexer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// GetEnabled returns the indexers eligible for aggregation, highest
// priority (lowest value) first.
func (r *IndexerRepository) GetEnabled() ([]IndexerConfig, error) {
	rows, err := r.db.Query(`SELECT ` + indexerColumns + ` FROM indexers WHERE enabled = 1 ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []IndexerConfig
	for rows.Next() {
		c, err := scanIndexer(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func (r *IndexerRepository) Update(c *IndexerConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	query := `
        UPDATE indexers SET name = ?, kind = ?, base_url = ?, api_key = ?, categories = ?,
               enabled = ?, priority = ?, min_seeders = ?, seed_ratio = ?, seed_time = ?,
               early_release_limit_days = ?
        WHERE id = ?
    `
	_, err := r.db.Exec(query, c.Name, c.Kind, c.BaseURL, c.APIKey,
		categoriesToCSV(c.Categories), c.Enabled, c.Priority,
		c.MinSeeders, c.SeedRatio, c.SeedTime, c.EarlyReleaseLimitDays, c.ID)
	return err
}

func (r *IndexerRepository) Delete(id int) error {
	_, err := r.db.Exec(`DELETE FROM indexers WHERE id = ?`, id)
	return err
}
