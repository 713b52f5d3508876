package models

import "database/sql"

// RemotePathMapping translates a path reported by a download client running
// on another host or in a container into a path this process can read.
// Host must match the configured client host verbatim; RemotePath is a
// case-sensitive prefix of the reported path.
type RemotePathMapping struct {
	ID         int    `json:"id" db:"id"`
	Host       string `json:"host" db:"host"`
	RemotePath string `json:"remote_path" db:"remote_path"`
	LocalPath  string `json:"local_path" db:"local_path"`
}

type RemotePathMappingRepository struct {
	db *sql.DB
}

func NewRemotePathMappingRepository(db *sql.DB) *RemotePathMappingRepository {
	return &RemotePathMappingRepository{db: db}
}

func (r *RemotePathMappingRepository) Create(m *RemotePathMapping) error {
	result, err := r.db.Exec(
		`INSERT INTO remote_path_mappings (host, remote_path, local_path) VALUES (?, ?, ?)`,
		m.Host, m.RemotePath, m.LocalPath)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	m.ID = int(id)
	return nil
}

func (r *RemotePathMappingRepository) GetAll() ([]RemotePathMapping, error) {
	rows, err := r.db.Query(`SELECT id, host, remote_path, local_path FROM remote_path_mappings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []RemotePathMapping
	for rows.Next() {
		var m RemotePathMapping
		if err := rows.Scan(&m.ID, &m.Host, &m.RemotePath, &m.LocalPath); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// GetByHost returns the mappings for one client host.
func (r *RemotePathMappingRepository) GetByHost(host string) ([]RemotePathMapping, error) {
	rows, err := r.db.Query(
		`SELECT id, host, remote_path, local_path FROM remote_path_mappings WHERE host = ? ORDER BY id`, host)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []RemotePathMapping
	for rows.Next() {
		var m RemotePathMapping
		if err := rows.Scan(&m.ID, &m.Host, &m.RemotePath, &m.LocalPath); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *RemotePathMappingRepository) Update(m *RemotePathMapping) error {
	_, err := r.db.Exec(
		`UPDATE remote_path_mappings SET host = ?, remote_path = ?, local_path = ? WHERE id = ?`,
		m.Host, m.RemotePath, m.LocalPath, m.ID)
	return err
}

func (r *RemotePathMappingRepository) Delete(id int) error {
	_, err := r.db.Exec(`DELETE FROM remote_path_mappings WHERE id = ?`, id)
	return err
}
