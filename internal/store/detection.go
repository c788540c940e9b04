package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/dockwatch/internal/pipeline"
	"github.com/ayusman/dockwatch/internal/vision"
)

// DetectionRepository persists per-camera detection settings and ROI
// polygons. It implements pipeline.ConfigStore.
type DetectionRepository struct {
	db *sql.DB
}

var _ pipeline.ConfigStore = (*DetectionRepository)(nil)

// Detection returns the detection settings repository for this store.
func (s *Store) Detection() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

// Load returns the settings and ROI for cameraID. Missing rows yield the
// defaults and an unrestricted ROI. A row that fails to decode is replaced by
// its default and reported through an error wrapping pipeline.ErrConfigParse.
func (r *DetectionRepository) Load(cameraID string) (pipeline.DetectionConfig, vision.Polygon, error) {
	cfg, cfgErr := r.loadConfig(cameraID)
	roi, roiErr := r.loadROI(cameraID)
	return cfg, roi, errors.Join(cfgErr, roiErr)
}

func (r *DetectionRepository) loadConfig(cameraID string) (pipeline.DetectionConfig, error) {
	cfg := pipeline.DefaultDetectionConfig()

	var data string
	err := r.db.QueryRow(`SELECT data FROM detection_configs WHERE camera_id = ?`, cameraID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	// unmarshal over the defaults so absent fields keep them
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return pipeline.DefaultDetectionConfig(), fmt.Errorf("detection config for %s: %w: %v", cameraID, pipeline.ErrConfigParse, err)
	}
	return cfg.Normalize(), nil
}

func (r *DetectionRepository) loadROI(cameraID string) (vision.Polygon, error) {
	var points string
	err := r.db.QueryRow(`SELECT points FROM roi_polygons WHERE camera_id = ?`, cameraID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var roi vision.Polygon
	if err := json.Unmarshal([]byte(points), &roi); err != nil {
		return nil, fmt.Errorf("roi for %s: %w: %v", cameraID, pipeline.ErrConfigParse, err)
	}
	return roi, nil
}

// SaveConfig stores the settings for cameraID, replacing any previous value.
func (r *DetectionRepository) SaveConfig(cameraID string, cfg pipeline.DetectionConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO detection_configs (camera_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(camera_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		cameraID, string(data), time.Now(),
	)
	return err
}

// SaveROI stores the polygon for cameraID. A polygon with fewer than three
// points clears the stored ROI.
func (r *DetectionRepository) SaveROI(cameraID string, roi vision.Polygon) error {
	if !roi.Restricts() {
		_, err := r.db.Exec(`DELETE FROM roi_polygons WHERE camera_id = ?`, cameraID)
		return err
	}

	data, err := json.Marshal(roi)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO roi_polygons (camera_id, points, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(camera_id) DO UPDATE SET points = excluded.points, updated_at = excluded.updated_at`,
		cameraID, string(data), time.Now(),
	)
	return err
}
