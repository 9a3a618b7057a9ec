// internal/service/measurement_service.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shutter-service/internal/model"
	"shutter-service/internal/repository"
	"shutter-service/internal/utils"
)

// MeasurementPage is one page of a camera's measurements
type MeasurementPage struct {
	Items  []*model.Measurement `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// MeasurementService handles stored measurements
type MeasurementService struct {
	cameras      repository.CameraRepository
	measurements repository.MeasurementRepository
	logger       *utils.ServiceLogger
}

// NewMeasurementService creates a new measurement service instance
func NewMeasurementService(cameras repository.CameraRepository, measurements repository.MeasurementRepository, logger *zap.Logger) *MeasurementService {
	return &MeasurementService{
		cameras:      cameras,
		measurements: measurements,
		logger:       utils.NewServiceLogger(logger, "measurement-service"),
	}
}

// ListByCamera returns the camera's measurements newest first
func (ms *MeasurementService) ListByCamera(ctx context.Context, cameraID int64, filter repository.MeasurementFilter) (*MeasurementPage, error) {
	if _, err := ms.cameras.GetByID(ctx, cameraID); err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}

	filter = filter.Normalize()
	items, err := ms.measurements.ListByCamera(ctx, cameraID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}

	total, err := ms.measurements.CountByCamera(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("failed to count measurements: %w", err)
	}

	return &MeasurementPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Get returns one measurement
func (ms *MeasurementService) Get(ctx context.Context, id int64) (*model.Measurement, error) {
	m, err := ms.measurements.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get measurement: %w", err)
	}
	return m, nil
}

// Delete removes one measurement
func (ms *MeasurementService) Delete(ctx context.Context, id int64) error {
	if err := ms.measurements.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete measurement: %w", err)
	}

	ms.logger.Info("Measurement deleted", zap.Int64("measurement_id", id))
	return nil
}

// Classify grades each sensor of a result against the thresholds
func Classify(result *model.MeasurementResult, thresholds model.DeviationThresholds) map[model.Sensor]model.DeviationLevel {
	levels := make(map[model.Sensor]model.DeviationLevel, len(model.Sensors))
	for _, sensor := range model.Sensors {
		levels[sensor] = thresholds.Classify(result.Reading(sensor).DeviationPercent)
	}
	return levels
}
