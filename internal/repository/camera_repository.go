// internal/repository/camera_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shutter-service/internal/database"
	"shutter-service/internal/model"
)

// cameraRepository implements CameraRepository on PostgreSQL
type cameraRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewCameraRepository creates a new camera repository
func NewCameraRepository(db *database.DB, logger *zap.Logger) CameraRepository {
	return &cameraRepository{
		db:     db,
		logger: logger.With(zap.String("repository", "camera")),
	}
}

// Create inserts a camera and fills its ID and creation time
func (r *cameraRepository) Create(ctx context.Context, camera *model.Camera) error {
	query := `
		INSERT INTO cameras (manufacturer, model, serial_number)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		camera.Manufacturer, camera.Model, camera.SerialNumber,
	).Scan(&camera.ID, &camera.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("camera %s: %w", camera.UniqueIdentifier(), ErrDuplicate)
		}
		r.logger.Error("Failed to create camera", zap.Error(err), zap.String("camera", camera.UniqueIdentifier()))
		return fmt.Errorf("failed to create camera: %w", err)
	}

	r.logger.Info("Camera created", zap.Int64("id", camera.ID), zap.String("camera", camera.UniqueIdentifier()))
	return nil
}

// GetByID retrieves a camera
func (r *cameraRepository) GetByID(ctx context.Context, id int64) (*model.Camera, error) {
	query := `
		SELECT id, manufacturer, model, serial_number, created_at
		FROM cameras WHERE id = $1
	`

	camera := &model.Camera{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&camera.ID, &camera.Manufacturer, &camera.Model, &camera.SerialNumber, &camera.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("camera %d: %w", id, ErrNotFound)
		}
		r.logger.Error("Failed to get camera", zap.Error(err), zap.Int64("id", id))
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}

	return camera, nil
}

// List returns all cameras newest first
func (r *cameraRepository) List(ctx context.Context) ([]*model.Camera, error) {
	query := `
		SELECT id, manufacturer, model, serial_number, created_at
		FROM cameras ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	cameras := []*model.Camera{}
	for rows.Next() {
		camera := &model.Camera{}
		if err := rows.Scan(&camera.ID, &camera.Manufacturer, &camera.Model, &camera.SerialNumber, &camera.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, camera)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cameras: %w", err)
	}

	return cameras, nil
}

// Update replaces a camera's descriptive fields
func (r *cameraRepository) Update(ctx context.Context, camera *model.Camera) error {
	query := `
		UPDATE cameras SET manufacturer = $2, model = $3, serial_number = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		camera.ID, camera.Manufacturer, camera.Model, camera.SerialNumber,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("camera %s: %w", camera.UniqueIdentifier(), ErrDuplicate)
		}
		r.logger.Error("Failed to update camera", zap.Error(err), zap.Int64("id", camera.ID))
		return fmt.Errorf("failed to update camera: %w", err)
	}

	return expectOneRow(result, "camera", camera.ID)
}

// Delete removes a camera; measurements cascade
func (r *cameraRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cameras WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete camera", zap.Error(err), zap.Int64("id", id))
		return fmt.Errorf("failed to delete camera: %w", err)
	}

	if err := expectOneRow(result, "camera", id); err != nil {
		return err
	}

	r.logger.Info("Camera deleted", zap.Int64("id", id))
	return nil
}

func expectOneRow(result sql.Result, kind string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
