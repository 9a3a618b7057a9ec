package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shutter-service/internal/config"
	"shutter-service/internal/database"
	"shutter-service/internal/model"
)

// openTestDatabase connects to SHUTTER_SERVICE_TEST_DSN and applies the
// migrations, or skips the test when the variable is unset.
func openTestDatabase(t *testing.T) *database.DB {
	t.Helper()

	dsn := os.Getenv("SHUTTER_SERVICE_TEST_DSN")
	if dsn == "" {
		t.Skip("SHUTTER_SERVICE_TEST_DSN not set")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := zaptest.NewLogger(t)
	db := database.Wrap(sqlDB, logger)
	require.NoError(t, db.HealthCheck(context.Background()))

	migrator := database.NewMigrator(db, logger, &config.DatabaseConfig{MigrationsPath: "../../migrations"})
	require.NoError(t, migrator.Up())

	_, err = db.Exec(`TRUNCATE measurements, cameras RESTART IDENTITY`)
	require.NoError(t, err)
	return db
}

func TestPostgresCameraAndMeasurement(t *testing.T) {
	db := openTestDatabase(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	cameras := NewCameraRepository(db, logger)
	measurements := NewMeasurementRepository(db, logger)

	camera := &model.Camera{Manufacturer: "Olympus", Model: "OM-1", SerialNumber: "A1"}
	require.NoError(t, cameras.Create(ctx, camera))
	assert.ErrorIs(t, cameras.Create(ctx, &model.Camera{Manufacturer: "Olympus", Model: "OM-1", SerialNumber: "A1"}), ErrDuplicate)

	frame := model.RawSensorFrame{
		BottomLeftOpen: 18446744073709550000, BottomLeftClose: 18446744073709551000,
		CenterOpen: 1000, CenterClose: 1480, TopRightOpen: 1000, TopRightClose: 1520,
		BottomLeftOpenOffset: -3, FirmwareVersion: "2.1",
	}
	m := model.NewMeasurement(camera.ID, model.MeasurementResult{
		Frame:                 frame,
		ReferenceShutterSpeed: "1/500",
		ReferenceSpeedMicros:  2000,
		SelectedShutterSpeed:  "1/500",
		Center:                model.SensorReading{Duration: 480, Deviation: -1520, DeviationPercent: -76},
		MeasuredAt:            time.Now().UTC().Truncate(time.Microsecond),
	})
	require.NoError(t, measurements.Create(ctx, m))

	got, err := measurements.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, frame, got.Frame)
	assert.Equal(t, m.Center, got.Center)
	assert.True(t, m.MeasuredAt.Equal(got.MeasuredAt))

	assert.ErrorIs(t, measurements.Create(ctx, model.NewMeasurement(camera.ID+100, m.MeasurementResult)), ErrNotFound)

	require.NoError(t, cameras.Delete(ctx, camera.ID))
	_, err = measurements.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
