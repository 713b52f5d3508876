package models

import (
	"database/sql"
	"time"

	"sportarr/internal/clients/protocol"
)

// DownloadState is the lifecycle state of a tracked download.
type DownloadState string

const (
	StateQueued      DownloadState = "queued"
	StateDownloading DownloadState = "downloading"
	StateCompleted   DownloadState = "completed"
	StateFailed      DownloadState = "failed"
	// StateMissing means the client no longer recognizes the native id,
	// usually because the item was removed externally.
	StateMissing DownloadState = "missing"
)

// Terminal reports whether the poller stops tracking an item in this state.
func (s DownloadState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateMissing:
		return true
	}
	return false
}

// TrackedDownload is this system's own record of a submitted download,
// distinct from the external client's bookkeeping. The dispatch coordinator
// creates it; only the poller mutates it afterwards.
type TrackedDownload struct {
	ID             int               `json:"id" db:"id"`
	ClientID       int               `json:"client_id" db:"client_id"`
	ClientNativeID string            `json:"client_native_id" db:"client_native_id"`
	Title          string            `json:"title" db:"title"`
	Protocol       protocol.Protocol `json:"protocol" db:"protocol"`
	Category       string            `json:"category,omitempty" db:"category"`
	State          DownloadState     `json:"state" db:"state"`
	Progress       float64           `json:"progress" db:"progress"`
	// OutputPath is the completed download's path after remote path mapping.
	OutputPath   *string    `json:"output_path,omitempty" db:"output_path"`
	AddedAt      time.Time  `json:"added_at" db:"added_at"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty" db:"last_polled_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	LastError    *string    `json:"last_error,omitempty" db:"last_error"`
	AttemptCount int        `json:"attempt_count" db:"attempt_count"`
}

type TrackedDownloadRepository struct {
	db *sql.DB
}

func NewTrackedDownloadRepository(db *sql.DB) *TrackedDownloadRepository {
	return &TrackedDownloadRepository{db: db}
}

const trackedColumns = `id, client_id, client_native_id, title, protocol, category, state,
       progress, output_path, added_at, last_polled_at, completed_at, last_error, attempt_count`

func scanTracked(row interface{ Scan(...any) error }) (*TrackedDownload, error) {
	var t TrackedDownload
	err := row.Scan(&t.ID, &t.ClientID, &t.ClientNativeID, &t.Title, &t.Protocol, &t.Category,
		&t.State, &t.Progress, &t.OutputPath, &t.AddedAt, &t.LastPolledAt, &t.CompletedAt,
		&t.LastError, &t.AttemptCount)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TrackedDownloadRepository) Create(t *TrackedDownload) error {
	query := `
        INSERT INTO tracked_downloads (client_id, client_native_id, title, protocol, category,
                                       state, progress, attempt_count)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := r.db.Exec(query, t.ClientID, t.ClientNativeID, t.Title, t.Protocol,
		t.Category, t.State, t.Progress, t.AttemptCount)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	t.ID = int(id)
	t.AddedAt = time.Now()
	return nil
}

func (r *TrackedDownloadRepository) GetByID(id int) (*TrackedDownload, error) {
	row := r.db.QueryRow(`SELECT `+trackedColumns+` FROM tracked_downloads WHERE id = ?`, id)
	t, err := scanTracked(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *TrackedDownloadRepository) GetAll() ([]TrackedDownload, error) {
	return r.query(`SELECT ` + trackedColumns + ` FROM tracked_downloads ORDER BY added_at DESC`)
}

// GetActive returns the downloads the poller still has to watch.
func (r *TrackedDownloadRepository) GetActive() ([]TrackedDownload, error) {
	return r.query(`SELECT `+trackedColumns+` FROM tracked_downloads WHERE state IN (?, ?) ORDER BY added_at`,
		StateQueued, StateDownloading)
}

func (r *TrackedDownloadRepository) query(q string, args ...any) ([]TrackedDownload, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []TrackedDownload
	for rows.Next() {
		t, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// UpdatePoll records the outcome of one status poll.
func (r *TrackedDownloadRepository) UpdatePoll(t *TrackedDownload) error {
	query := `
        UPDATE tracked_downloads SET state = ?, progress = ?, output_path = ?, last_polled_at = ?,
               completed_at = ?, last_error = ?, attempt_count = ?
        WHERE id = ?
    `
	_, err := r.db.Exec(query, t.State, t.Progress, t.OutputPath, t.LastPolledAt,
		t.CompletedAt, t.LastError, t.AttemptCount, t.ID)
	return err
}

func (r *TrackedDownloadRepository) Delete(id int) error {
	_, err := r.db.Exec(`DELETE FROM tracked_downloads WHERE id = ?`, id)
	return err
}
