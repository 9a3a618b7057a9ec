// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"

	"shutter-service/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a camera with the same manufacturer, model
	// and serial number already exists
	ErrDuplicate = errors.New("duplicate record")
)

// CameraRepository defines camera data access operations
type CameraRepository interface {
	Create(ctx context.Context, camera *model.Camera) error
	GetByID(ctx context.Context, id int64) (*model.Camera, error)
	List(ctx context.Context) ([]*model.Camera, error)
	Update(ctx context.Context, camera *model.Camera) error

	// Delete removes the camera and its measurements
	Delete(ctx context.Context, id int64) error
}

// MeasurementRepository defines measurement data access operations
type MeasurementRepository interface {
	Create(ctx context.Context, measurement *model.Measurement) error
	GetByID(ctx context.Context, id int64) (*model.Measurement, error)

	// ListByCamera returns the camera's measurements newest first
	ListByCamera(ctx context.Context, cameraID int64, filter MeasurementFilter) ([]*model.Measurement, error)
	CountByCamera(ctx context.Context, cameraID int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// MeasurementFilter pages measurement listings. Zero Limit means no limit.
type MeasurementFilter struct {
	Limit  int `json:"limit" form:"limit"`
	Offset int `json:"offset" form:"offset"`
}

// Normalize clamps negative values
func (f MeasurementFilter) Normalize() MeasurementFilter {
	if f.Limit < 0 {
		f.Limit = 0
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
