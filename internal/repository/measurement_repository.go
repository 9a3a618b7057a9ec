// internal/repository/measurement_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"shutter-service/internal/database"
	"shutter-service/internal/model"
)

const measurementColumns = `
	id, camera_id, measured_at, measurement_unit,
	reference_shutter_speed, reference_speed_micros, selected_shutter_speed, firmware_version,
	bottom_left_open, bottom_left_close, center_open, center_close, top_right_open, top_right_close,
	bottom_left_open_offset, bottom_left_close_offset, top_right_open_offset, top_right_close_offset,
	bottom_left_duration, bottom_left_deviation, bottom_left_deviation_percent,
	center_duration, center_deviation, center_deviation_percent,
	top_right_duration, top_right_deviation, top_right_deviation_percent
`

// measurementRepository implements MeasurementRepository on PostgreSQL
type measurementRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewMeasurementRepository creates a new measurement repository
func NewMeasurementRepository(db *database.DB, logger *zap.Logger) MeasurementRepository {
	return &measurementRepository{
		db:     db,
		logger: logger.With(zap.String("repository", "measurement")),
	}
}

// Create inserts a measurement and fills its ID
func (r *measurementRepository) Create(ctx context.Context, m *model.Measurement) error {
	query := `
		INSERT INTO measurements (
			camera_id, measured_at, measurement_unit,
			reference_shutter_speed, reference_speed_micros, selected_shutter_speed, firmware_version,
			bottom_left_open, bottom_left_close, center_open, center_close, top_right_open, top_right_close,
			bottom_left_open_offset, bottom_left_close_offset, top_right_open_offset, top_right_close_offset,
			bottom_left_duration, bottom_left_deviation, bottom_left_deviation_percent,
			center_duration, center_deviation, center_deviation_percent,
			top_right_duration, top_right_deviation, top_right_deviation_percent
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
		RETURNING id
	`

	f := m.Frame
	err := r.db.QueryRowContext(ctx, query,
		m.CameraID, m.MeasuredAt, m.MeasurementUnit,
		m.ReferenceShutterSpeed, m.ReferenceSpeedMicros, m.SelectedShutterSpeed, f.FirmwareVersion,
		tick(f.BottomLeftOpen), tick(f.BottomLeftClose), tick(f.CenterOpen),
		tick(f.CenterClose), tick(f.TopRightOpen), tick(f.TopRightClose),
		f.BottomLeftOpenOffset, f.BottomLeftCloseOffset, f.TopRightOpenOffset, f.TopRightCloseOffset,
		m.BottomLeft.Duration, m.BottomLeft.Deviation, m.BottomLeft.DeviationPercent,
		m.Center.Duration, m.Center.Deviation, m.Center.DeviationPercent,
		m.TopRight.Duration, m.TopRight.Deviation, m.TopRight.DeviationPercent,
	).Scan(&m.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("camera %d: %w", m.CameraID, ErrNotFound)
		}
		r.logger.Error("Failed to create measurement", zap.Error(err), zap.Int64("camera_id", m.CameraID))
		return fmt.Errorf("failed to create measurement: %w", err)
	}

	r.logger.Info("Measurement stored",
		zap.Int64("id", m.ID),
		zap.Int64("camera_id", m.CameraID),
		zap.String("reference", m.ReferenceShutterSpeed),
	)
	return nil
}

// GetByID retrieves a measurement
func (r *measurementRepository) GetByID(ctx context.Context, id int64) (*model.Measurement, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements WHERE id = $1`

	m, err := scanMeasurement(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("measurement %d: %w", id, ErrNotFound)
		}
		r.logger.Error("Failed to get measurement", zap.Error(err), zap.Int64("id", id))
		return nil, fmt.Errorf("failed to get measurement: %w", err)
	}
	return m, nil
}

// ListByCamera returns the camera's measurements newest first
func (r *measurementRepository) ListByCamera(ctx context.Context, cameraID int64, filter MeasurementFilter) ([]*model.Measurement, error) {
	filter = filter.Normalize()

	query := `SELECT ` + measurementColumns + `
		FROM measurements WHERE camera_id = $1
		ORDER BY measured_at DESC, id DESC
		OFFSET $2`
	args := []interface{}{cameraID, filter.Offset}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	measurements := []*model.Measurement{}
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		measurements = append(measurements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate measurements: %w", err)
	}

	return measurements, nil
}

// CountByCamera returns the number of stored measurements for a camera
func (r *measurementRepository) CountByCamera(ctx context.Context, cameraID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements WHERE camera_id = $1`, cameraID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return count, nil
}

// Delete removes a measurement
func (r *measurementRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM measurements WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete measurement", zap.Error(err), zap.Int64("id", id))
		return fmt.Errorf("failed to delete measurement: %w", err)
	}
	return expectOneRow(result, "measurement", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMeasurement(row rowScanner) (*model.Measurement, error) {
	m := &model.Measurement{}
	f := &m.Frame

	err := row.Scan(
		&m.ID, &m.CameraID, &m.MeasuredAt, &m.MeasurementUnit,
		&m.ReferenceShutterSpeed, &m.ReferenceSpeedMicros, &m.SelectedShutterSpeed, &f.FirmwareVersion,
		&f.BottomLeftOpen, &f.BottomLeftClose, &f.CenterOpen, &f.CenterClose, &f.TopRightOpen, &f.TopRightClose,
		&f.BottomLeftOpenOffset, &f.BottomLeftCloseOffset, &f.TopRightOpenOffset, &f.TopRightCloseOffset,
		&m.BottomLeft.Duration, &m.BottomLeft.Deviation, &m.BottomLeft.DeviationPercent,
		&m.Center.Duration, &m.Center.Deviation, &m.Center.DeviationPercent,
		&m.TopRight.Duration, &m.TopRight.Deviation, &m.TopRight.DeviationPercent,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// tick formats an unsigned counter for a NUMERIC column
func tick(v uint64) string {
	return strconv.FormatUint(v, 10)
}
