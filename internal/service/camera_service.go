// internal/service/camera_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shutter-service/internal/model"
	"shutter-service/internal/repository"
	"shutter-service/internal/utils"
)

// CameraRequest creates or updates a camera
type CameraRequest struct {
	Manufacturer string `json:"manufacturer" binding:"required"`
	Model        string `json:"model" binding:"required"`
	SerialNumber string `json:"serial_number" binding:"required"`
}

// CameraService handles camera records
type CameraService struct {
	cameras repository.CameraRepository
	logger  *utils.ServiceLogger
}

// NewCameraService creates a new camera service instance
func NewCameraService(cameras repository.CameraRepository, logger *zap.Logger) *CameraService {
	return &CameraService{
		cameras: cameras,
		logger:  utils.NewServiceLogger(logger, "camera-service"),
	}
}

// Create stores a new camera. A camera with the same manufacturer, model and
// serial number is rejected with repository.ErrDuplicate.
func (cs *CameraService) Create(ctx context.Context, req CameraRequest) (*model.Camera, error) {
	camera := req.toCamera()
	if err := camera.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := cs.cameras.Create(ctx, camera); err != nil {
		return nil, fmt.Errorf("failed to create camera: %w", err)
	}

	cs.logger.Info("Camera created",
		zap.Int64("camera_id", camera.ID),
		zap.String("camera", camera.UniqueIdentifier()),
	)
	return camera, nil
}

// Get returns one camera
func (cs *CameraService) Get(ctx context.Context, id int64) (*model.Camera, error) {
	camera, err := cs.cameras.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return camera, nil
}

// List returns every camera newest first
func (cs *CameraService) List(ctx context.Context) ([]*model.Camera, error) {
	cameras, err := cs.cameras.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	return cameras, nil
}

// Update replaces the camera's descriptive fields
func (cs *CameraService) Update(ctx context.Context, id int64, req CameraRequest) (*model.Camera, error) {
	camera := req.toCamera()
	camera.ID = id
	if err := camera.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := cs.cameras.Update(ctx, camera); err != nil {
		return nil, fmt.Errorf("failed to update camera: %w", err)
	}

	cs.logger.Info("Camera updated", zap.Int64("camera_id", id))
	return camera, nil
}

// Delete removes the camera together with its measurements
func (cs *CameraService) Delete(ctx context.Context, id int64) error {
	if err := cs.cameras.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete camera: %w", err)
	}

	cs.logger.Info("Camera deleted", zap.Int64("camera_id", id))
	return nil
}

func (r CameraRequest) toCamera() *model.Camera {
	return &model.Camera{
		Manufacturer: strings.TrimSpace(r.Manufacturer),
		Model:        strings.TrimSpace(r.Model),
		SerialNumber: strings.TrimSpace(r.SerialNumber),
	}
}
