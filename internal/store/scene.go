package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/biotwin/internal/geometry"
	"github.com/ayusman/biotwin/internal/mask"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Scene is a persisted segmentation result.
type Scene struct {
	ID            string             `json:"id"`
	ImageName     string             `json:"imageName"`
	Version       uint64             `json:"version"`
	PointX        float64            `json:"pointX"`
	PointY        float64            `json:"pointY"`
	Stats         mask.Stats         `json:"stats"`
	Shapes        []geometry.Contour `json:"shapes"`
	ParticleCount int                `json:"particleCount"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// SceneRepository provides CRUD operations for scenes.
type SceneRepository struct {
	db *sql.DB
}

// Scenes returns the scene repository for this store.
func (s *Store) Scenes() *SceneRepository {
	return &SceneRepository{db: s.db}
}

const sceneColumns = `id, image_name, version, point_x, point_y, mask_min, mask_max,
	positive_count, total, shapes, particle_count, created_at`

// Create inserts a new scene. An empty ID is filled with a new UUID.
func (r *SceneRepository) Create(sc *Scene) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.Shapes == nil {
		sc.Shapes = []geometry.Contour{}
	}
	sc.CreatedAt = time.Now().UTC()

	shapes, err := json.Marshal(sc.Shapes)
	if err != nil {
		return fmt.Errorf("encode shapes: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO scenes (`+sceneColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.ImageName, int64(sc.Version), sc.PointX, sc.PointY,
		sc.Stats.Min, sc.Stats.Max, sc.Stats.PositiveCount, sc.Stats.Total,
		string(shapes), sc.ParticleCount, sc.CreatedAt,
	)
	return err
}

// GetByID retrieves a scene by its ID.
func (r *SceneRepository) GetByID(id string) (*Scene, error) {
	sc, err := scanScene(r.db.QueryRow(`SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sc, nil
}

// List retrieves scenes newest first. A limit of zero or less returns all.
func (r *SceneRepository) List(limit int) ([]*Scene, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(`SELECT `+sceneColumns+` FROM scenes ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		sc, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return scenes, nil
}

// Delete removes a scene by its ID.
func (r *SceneRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM scenes WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScene(row scanner) (*Scene, error) {
	sc := &Scene{}
	var version int64
	var shapes string

	err := row.Scan(
		&sc.ID, &sc.ImageName, &version, &sc.PointX, &sc.PointY,
		&sc.Stats.Min, &sc.Stats.Max, &sc.Stats.PositiveCount, &sc.Stats.Total,
		&shapes, &sc.ParticleCount, &sc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sc.Version = uint64(version)
	if err := json.Unmarshal([]byte(shapes), &sc.Shapes); err != nil {
		return nil, fmt.Errorf("decode shapes of scene %s: %w", sc.ID, err)
	}
	return sc, nil
}
