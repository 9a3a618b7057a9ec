package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shutter-service/internal/measurement"
	"shutter-service/internal/model"
	"shutter-service/internal/repository"
)

func TestCameraServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	store := repository.NewMemoryStore(logger)
	cameras := NewCameraService(store.Cameras(), logger)

	camera, err := cameras.Create(ctx, CameraRequest{Manufacturer: " Leica ", Model: "M6", SerialNumber: "1650000"})
	require.NoError(t, err)
	assert.Equal(t, "Leica", camera.Manufacturer)
	assert.False(t, camera.CreatedAt.IsZero())

	_, err = cameras.Create(ctx, CameraRequest{Manufacturer: "Leica", Model: "M6", SerialNumber: "1650000"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = cameras.Create(ctx, CameraRequest{Manufacturer: "Leica", Model: " "})
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := cameras.Update(ctx, camera.ID, CameraRequest{Manufacturer: "Leica", Model: "M6 TTL", SerialNumber: "1650000"})
	require.NoError(t, err)
	assert.Equal(t, "M6 TTL", updated.Model)

	_, err = cameras.Update(ctx, 404, CameraRequest{Manufacturer: "a", Model: "b", SerialNumber: "c"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := cameras.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, cameras.Delete(ctx, camera.ID))
	_, err = cameras.Get(ctx, camera.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMeasurementServicePaging(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	store := repository.NewMemoryStore(logger)
	measurements := NewMeasurementService(store.Cameras(), store.Measurements(), logger)

	camera := &model.Camera{Manufacturer: "Canon", Model: "AE-1", SerialNumber: "42"}
	require.NoError(t, store.Cameras().Create(ctx, camera))

	reference, err := model.LookupReferenceSpeed("1/125")
	require.NoError(t, err)
	frame := model.RawSensorFrame{BottomLeftOpen: 0, BottomLeftClose: 8000, CenterOpen: 0, CenterClose: 8600, TopRightOpen: 0, TopRightClose: 9000}
	for i := 0; i < 3; i++ {
		m := model.NewMeasurement(camera.ID, measurement.Calculate(frame, reference, "1/125"))
		require.NoError(t, store.Measurements().Create(ctx, m))
	}

	page, err := measurements.ListByCamera(ctx, camera.ID, repository.MeasurementFilter{Limit: 2, Offset: -1})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 0, page.Offset)

	_, err = measurements.ListByCamera(ctx, 999, repository.MeasurementFilter{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	levels := Classify(&page.Items[0].MeasurementResult, model.DefaultDeviationThresholds())
	assert.Equal(t, model.DeviationOK, levels[model.SensorBottomLeft])
	assert.Equal(t, model.DeviationWarning, levels[model.SensorCenter])
	assert.Equal(t, model.DeviationError, levels[model.SensorTopRight])

	require.NoError(t, measurements.Delete(ctx, page.Items[0].ID))
	_, err = measurements.Get(ctx, page.Items[0].ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
