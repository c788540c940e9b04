package store

import (
	"database/sql"
	"errors"
	"time"
)

// Camera is a registered video source.
type Camera struct {
	ID       string
	Name     string
	Location string
	// Source is a device index ("0") or a file path / stream URL.
	Source    string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CameraRepository provides CRUD operations for cameras.
type CameraRepository struct {
	db *sql.DB
}

// Cameras returns the camera repository for this store.
func (s *Store) Cameras() *CameraRepository {
	return &CameraRepository{db: s.db}
}

const cameraColumns = `id, name, location, source, latitude, longitude, created_at, updated_at`

// Create inserts a new camera.
func (r *CameraRepository) Create(c *Camera) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO cameras (`+cameraColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Location, c.Source, c.Latitude, c.Longitude, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetByID retrieves a camera by its ID.
func (r *CameraRepository) GetByID(id string) (*Camera, error) {
	c := &Camera{}
	err := r.db.QueryRow(
		`SELECT `+cameraColumns+` FROM cameras WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &c.Location, &c.Source, &c.Latitude, &c.Longitude, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List retrieves all cameras ordered by name.
func (r *CameraRepository) List() ([]*Camera, error) {
	rows, err := r.db.Query(`SELECT ` + cameraColumns + ` FROM cameras ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cameras []*Camera
	for rows.Next() {
		c := &Camera{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.Source, &c.Latitude, &c.Longitude, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cameras = append(cameras, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cameras, nil
}

// Update updates an existing camera.
func (r *CameraRepository) Update(c *Camera) error {
	c.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE cameras SET name = ?, location = ?, source = ?, latitude = ?, longitude = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Location, c.Source, c.Latitude, c.Longitude, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

// Delete removes a camera together with its detection settings and ROI.
func (r *CameraRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM cameras WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := affectedOne(result); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM detection_configs WHERE camera_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM roi_polygons WHERE camera_id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}
