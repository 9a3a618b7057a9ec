// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"shutter-service/internal/model"
)

// MemoryStore keeps cameras and measurements in process memory. It backs the
// service when database.enabled is false and enforces the same constraints as
// the PostgreSQL schema: unique camera identity and cascading deletes.
type MemoryStore struct {
	mutex        sync.RWMutex
	logger       *zap.Logger
	cameras      map[int64]*model.Camera
	measurements map[int64]*model.Measurement
	nextCamera   int64
	nextMeasure  int64
	now          func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger:       logger.With(zap.String("repository", "memory")),
		cameras:      make(map[int64]*model.Camera),
		measurements: make(map[int64]*model.Measurement),
		now:          time.Now,
	}
}

// Cameras returns the camera view of the store
func (s *MemoryStore) Cameras() CameraRepository {
	return memoryCameras{s}
}

// Measurements returns the measurement view of the store
func (s *MemoryStore) Measurements() MeasurementRepository {
	return memoryMeasurements{s}
}

type memoryCameras struct{ s *MemoryStore }

func (r memoryCameras) Create(ctx context.Context, camera *model.Camera) error {
	s := r.s
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.duplicateLocked(camera, 0) {
		return fmt.Errorf("camera %s: %w", camera.UniqueIdentifier(), ErrDuplicate)
	}

	s.nextCamera++
	camera.ID = s.nextCamera
	camera.CreatedAt = s.now().UTC()

	stored := *camera
	s.cameras[camera.ID] = &stored
	s.logger.Debug("Camera created", zap.Int64("id", camera.ID))
	return nil
}

func (r memoryCameras) GetByID(ctx context.Context, id int64) (*model.Camera, error) {
	s := r.s
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	camera, ok := s.cameras[id]
	if !ok {
		return nil, fmt.Errorf("camera %d: %w", id, ErrNotFound)
	}
	out := *camera
	return &out, nil
}

func (r memoryCameras) List(ctx context.Context) ([]*model.Camera, error) {
	s := r.s
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cameras := make([]*model.Camera, 0, len(s.cameras))
	for _, camera := range s.cameras {
		out := *camera
		cameras = append(cameras, &out)
	}
	sort.Slice(cameras, func(i, j int) bool {
		if !cameras[i].CreatedAt.Equal(cameras[j].CreatedAt) {
			return cameras[i].CreatedAt.After(cameras[j].CreatedAt)
		}
		return cameras[i].ID > cameras[j].ID
	})
	return cameras, nil
}

func (r memoryCameras) Update(ctx context.Context, camera *model.Camera) error {
	s := r.s
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.cameras[camera.ID]
	if !ok {
		return fmt.Errorf("camera %d: %w", camera.ID, ErrNotFound)
	}
	if s.duplicateLocked(camera, camera.ID) {
		return fmt.Errorf("camera %s: %w", camera.UniqueIdentifier(), ErrDuplicate)
	}

	existing.Manufacturer = camera.Manufacturer
	existing.Model = camera.Model
	existing.SerialNumber = camera.SerialNumber
	camera.CreatedAt = existing.CreatedAt
	return nil
}

func (r memoryCameras) Delete(ctx context.Context, id int64) error {
	s := r.s
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.cameras[id]; !ok {
		return fmt.Errorf("camera %d: %w", id, ErrNotFound)
	}
	delete(s.cameras, id)

	removed := 0
	for mid, m := range s.measurements {
		if m.CameraID == id {
			delete(s.measurements, mid)
			removed++
		}
	}
	s.logger.Debug("Camera deleted", zap.Int64("id", id), zap.Int("measurements_removed", removed))
	return nil
}

func (s *MemoryStore) duplicateLocked(camera *model.Camera, ignoreID int64) bool {
	for id, existing := range s.cameras {
		if id != ignoreID && existing.UniqueIdentifier() == camera.UniqueIdentifier() {
			return true
		}
	}
	return false
}

type memoryMeasurements struct{ s *MemoryStore }

func (r memoryMeasurements) Create(ctx context.Context, m *model.Measurement) error {
	s := r.s
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.cameras[m.CameraID]; !ok {
		return fmt.Errorf("camera %d: %w", m.CameraID, ErrNotFound)
	}

	s.nextMeasure++
	m.ID = s.nextMeasure
	stored := *m
	s.measurements[m.ID] = &stored
	return nil
}

func (r memoryMeasurements) GetByID(ctx context.Context, id int64) (*model.Measurement, error) {
	s := r.s
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	m, ok := s.measurements[id]
	if !ok {
		return nil, fmt.Errorf("measurement %d: %w", id, ErrNotFound)
	}
	out := *m
	return &out, nil
}

func (r memoryMeasurements) ListByCamera(ctx context.Context, cameraID int64, filter MeasurementFilter) ([]*model.Measurement, error) {
	filter = filter.Normalize()

	s := r.s
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := []*model.Measurement{}
	for _, m := range s.measurements {
		if m.CameraID == cameraID {
			copied := *m
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MeasuredAt.Equal(out[j].MeasuredAt) {
			return out[i].MeasuredAt.After(out[j].MeasuredAt)
		}
		return out[i].ID > out[j].ID
	})

	if filter.Offset >= len(out) {
		return []*model.Measurement{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r memoryMeasurements) CountByCamera(ctx context.Context, cameraID int64) (int, error) {
	s := r.s
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	count := 0
	for _, m := range s.measurements {
		if m.CameraID == cameraID {
			count++
		}
	}
	return count, nil
}

func (r memoryMeasurements) Delete(ctx context.Context, id int64) error {
	s := r.s
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.measurements[id]; !ok {
		return fmt.Errorf("measurement %d: %w", id, ErrNotFound)
	}
	delete(s.measurements, id)
	return nil
}
