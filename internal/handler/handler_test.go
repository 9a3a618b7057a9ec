package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shutter-service/internal/config"
	"shutter-service/internal/discovery"
	"shutter-service/internal/measurement"
	"shutter-service/internal/model"
	"shutter-service/internal/monitor"
	"shutter-service/internal/protocol"
	"shutter-service/internal/protocol/protocoltest"
	"shutter-service/internal/repository"
	"shutter-service/internal/service"
	"shutter-service/internal/state"
	"shutter-service/pkg/devicetypes"
)

const frameLine = `{"eventType":"MultiSensorMeasure","bottomLeftOpen":1000,"bottomLeftClose":1500,"centerOpen":1000,"centerClose":1480,"topRightOpen":1000,"topRightClose":1520,"bottomLeftOpenOffset":0,"bottomLeftCloseOffset":0,"topRightOpenOffset":0,"topRightCloseOffset":0,"firmware_version":"1.0"}` + "\n"

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryPreferences struct {
	mu         sync.Mutex
	identity   devicetypes.Identity
	thresholds *state.Published[model.DeviationThresholds]
}

func newMemoryPreferences() *memoryPreferences {
	return &memoryPreferences{
		identity:   devicetypes.STM32,
		thresholds: state.NewPublished(model.DefaultDeviationThresholds()),
	}
}

func (p *memoryPreferences) DeviceIdentity() devicetypes.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

func (p *memoryPreferences) Thresholds() model.DeviationThresholds {
	return p.thresholds.Load()
}

func (p *memoryPreferences) SubscribeThresholds() (<-chan model.DeviationThresholds, func()) {
	return p.thresholds.Subscribe()
}

func (p *memoryPreferences) SetDeviceType(name string) (devicetypes.Identity, error) {
	identity, ok := devicetypes.ByName(name)
	if !ok {
		return devicetypes.Identity{}, fmt.Errorf("unsupported device type %q", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = identity
	return identity, nil
}

func (p *memoryPreferences) SetThresholds(thresholds model.DeviationThresholds) error {
	if err := thresholds.Validate(); err != nil {
		return err
	}
	p.thresholds.Store(thresholds)
	return nil
}

type apiFixture struct {
	router  *gin.Engine
	fake    *protocoltest.FakeTransport
	session *service.SessionController
	prefs   *memoryPreferences
	store   *repository.MemoryStore
}

func newAPIFixture(t *testing.T, steps ...protocoltest.Step) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &apiFixture{
		fake:  protocoltest.NewFakeTransport(steps...),
		prefs: newMemoryPreferences(),
		store: repository.NewMemoryStore(logger),
	}

	f.session = service.NewSessionController(
		f.fake,
		f.prefs,
		f.store.Cameras(),
		f.store.Measurements(),
		nil,
		monitor.NewMetrics(),
		service.SessionOptions{
			Timing: protocol.Timing{
				ReadyReadTimeout:     5 * time.Millisecond,
				DataReadTimeout:      time.Millisecond,
				ListenBackoff:        time.Millisecond,
				MaxConsecutiveErrors: 20,
			},
			ResetDelay: time.Millisecond,
		},
		logger,
	)
	t.Cleanup(f.session.Close)

	cfg := &config.Config{App: config.AppConfig{Name: "shutter-service", Version: "test"}}

	f.router = gin.New()
	NewHealthHandler(nil, f.session, cfg, logger).RegisterRoutes(f.router)
	api := f.router.Group("/api/v1")
	NewDeviceHandler(f.session, logger).RegisterRoutes(api)
	NewSettingsHandler(f.prefs, logger).RegisterRoutes(api)
	NewCameraHandler(
		service.NewCameraService(f.store.Cameras(), logger),
		service.NewMeasurementService(f.store.Cameras(), f.store.Measurements(), logger),
		f.prefs,
		logger,
	).RegisterRoutes(api)
	NewDiscoveryHandler(
		service.NewDiscoveryService(discovery.NewScannerManager(logger), f.prefs, logger),
		logger,
	).RegisterRoutes(api)

	return f
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Details string `json:"details"`
	} `json:"error"`
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

func TestSessionLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeData[SessionView](t, env)
	assert.Equal(t, model.ConnectionDisconnected, view.Connection.Status)
	assert.Equal(t, model.ProtocolIdle, view.Protocol.Status)

	w, env = f.do(t, http.MethodPost, "/api/v1/session/connect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeData[SessionView](t, env)
	assert.Equal(t, model.ConnectionConnected, view.Connection.Status)
	assert.Equal(t, devicetypes.STM32.String(), view.Device)

	w, _ = f.do(t, http.MethodPost, "/api/v1/session/commands", CommandRequest{Command: "GET_FIRMWARE_VERSION"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []protocol.Command{protocol.CommandGetFirmwareVersion}, f.fake.Commands())

	w, env = f.do(t, http.MethodPost, "/api/v1/session/disconnect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ConnectionDisconnected, decodeData[SessionView](t, env).Connection.Status)

	// disconnecting twice is harmless
	w, _ = f.do(t, http.MethodPost, "/api/v1/session/disconnect", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConnectFailureIsServiceUnavailable(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.ConnectErr = &protocol.ConnectError{Kind: protocol.DeviceNotFound, Device: devicetypes.STM32.String()}

	w, env := f.do(t, http.MethodPost, "/api/v1/session/connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, model.ConnectionError, f.session.ConnectionState().Status)
}

func TestSendCommandErrors(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodPost, "/api/v1/session/commands", CommandRequest{Command: "SELF_DESTRUCT"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/session/commands", CommandRequest{Command: "STOP_MEASUREMENT"})
	assert.Equal(t, http.StatusConflict, w.Code, "not connected")

	w, _ = f.do(t, http.MethodPost, "/api/v1/session/commands", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSynchronousMeasurement(t *testing.T) {
	f := newAPIFixture(t, protocoltest.Chunk("Display Ready\n"), protocoltest.Chunk(frameLine))

	w, env := f.do(t, http.MethodPost, "/api/v1/cameras", service.CameraRequest{
		Manufacturer: "Nikon", Model: "F3", SerialNumber: "1234567",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	camera := decodeData[model.Camera](t, env)

	w, _ = f.do(t, http.MethodPost, "/api/v1/session/connect", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = f.do(t, http.MethodPost, "/api/v1/session/measurements?wait=true", service.MeasurementRequest{
		CameraID:       camera.ID,
		ReferenceSpeed: "1/500",
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	report := decodeData[MeasurementReportView](t, env)
	assert.NotEmpty(t, report.AttemptID)
	assert.Equal(t, camera.ID, report.Measurement.CameraID)
	assert.Equal(t, int64(2000), report.Measurement.ReferenceSpeedMicros)
	assert.Equal(t, SensorView{Duration: 480, Deviation: -1520, DeviationPercent: -76, Level: model.DeviationError}, report.Measurement.Center)
	assert.Equal(t, -75.0, report.Measurement.BottomLeft.DeviationPercent)
	assert.Equal(t, -74.0, report.Measurement.TopRight.DeviationPercent)

	w, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/cameras/%d/measurements", camera.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeData[MeasurementPageView](t, env)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, report.Measurement.ID, page.Items[0].ID)

	w, env = f.do(t, http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeData[SessionView](t, env)
	assert.Equal(t, model.ProtocolSuccess, view.Protocol.Status)
	require.NotNil(t, view.Protocol.Result)
	assert.Equal(t, int64(480), view.Protocol.Result.Center.Duration)

	w, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/measurements/%d", report.Measurement.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/measurements/%d", report.Measurement.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartMeasurementValidation(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/v1/session/connect", nil)

	w, _ := f.do(t, http.MethodPost, "/api/v1/session/measurements", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "reference speed is required")

	w, _ = f.do(t, http.MethodPost, "/api/v1/session/measurements", service.MeasurementRequest{ReferenceSpeed: "1/3"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown reference speed")

	w, _ = f.do(t, http.MethodPost, "/api/v1/session/measurements", service.MeasurementRequest{CameraID: 42, ReferenceSpeed: "1/500"})
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown camera")

	w, env := f.do(t, http.MethodPost, "/api/v1/session/measurements", service.MeasurementRequest{ReferenceSpeed: "1/500"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, decodeData[AttemptResponse](t, env).AttemptID)

	w, _ = f.do(t, http.MethodPost, "/api/v1/session/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ProtocolIdle, f.session.ProtocolState().Status)
}

func TestCameraEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	req := service.CameraRequest{Manufacturer: "Canon", Model: "AE-1", SerialNumber: "42"}

	w, env := f.do(t, http.MethodPost, "/api/v1/cameras", req)
	require.Equal(t, http.StatusCreated, w.Code)
	camera := decodeData[model.Camera](t, env)

	w, _ = f.do(t, http.MethodPost, "/api/v1/cameras", req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/cameras", service.CameraRequest{Manufacturer: "Canon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(t, http.MethodGet, "/api/v1/cameras", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []model.Camera `json:"items"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Count)

	req.Model = "A-1"
	w, env = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/cameras/%d", camera.ID), req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A-1", decodeData[model.Camera](t, env).Model)

	w, _ = f.do(t, http.MethodGet, "/api/v1/cameras/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/cameras/%d", camera.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/cameras/%d", camera.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/cameras/%d/measurements", camera.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, devicetypes.STM32, decodeData[SettingsView](t, env).Device)

	w, _ = f.do(t, http.MethodPut, "/api/v1/settings/device", DeviceTypeRequest{DeviceType: "esp32"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(t, http.MethodPut, "/api/v1/settings/device", DeviceTypeRequest{DeviceType: "Arduino"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, devicetypes.Arduino, decodeData[SettingsView](t, env).Device)

	w, _ = f.do(t, http.MethodPut, "/api/v1/settings/thresholds", model.DeviationThresholds{Warning: 10, Error: 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(t, http.MethodPut, "/api/v1/settings/thresholds", model.DeviationThresholds{Warning: 2, Error: 6})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.DeviationThresholds{Warning: 2, Error: 6}, decodeData[SettingsView](t, env).Thresholds)
	assert.Equal(t, model.DeviationThresholds{Warning: 2, Error: 6}, f.session.Status().Thresholds)

	w, env = f.do(t, http.MethodGet, "/api/v1/speeds", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var speeds struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &speeds))
	assert.Equal(t, len(model.ReferenceSpeeds()), speeds.Count)

	w, env = f.do(t, http.MethodGet, "/api/v1/devices/supported", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &speeds))
	assert.Equal(t, len(devicetypes.All()), speeds.Count)
}

func TestUpdateSingleThreshold(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodPut, "/api/v1/settings/thresholds", map[string]float64{"warning": 7})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.Equal(t, model.DeviationThresholds{Warning: 7, Error: 10}, decodeData[SettingsView](t, env).Thresholds)

	w, env = f.do(t, http.MethodPut, "/api/v1/settings/thresholds", map[string]float64{"error": 20})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.Equal(t, model.DeviationThresholds{Warning: 7, Error: 20}, f.prefs.Thresholds())

	// merged value must still keep error above warning
	w, _ = f.do(t, http.MethodPut, "/api/v1/settings/thresholds", map[string]float64{"warning": 25})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.DeviationThresholds{Warning: 7, Error: 20}, f.prefs.Thresholds())

	w, _ = f.do(t, http.MethodPut, "/api/v1/settings/thresholds", map[string]float64{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtocolStateViewVariants(t *testing.T) {
	thresholds := model.DefaultDeviationThresholds()

	idle := newProtocolStateView(model.IdleState(), thresholds)
	assert.Equal(t, model.ProtocolIdle, idle.Status)
	assert.Nil(t, idle.Result)

	measuring := newProtocolStateView(model.MeasuringState("m1"), thresholds)
	assert.Equal(t, model.ProtocolMeasuring, measuring.Status)
	assert.Equal(t, "m1", measuring.AttemptID)

	failed := newProtocolStateView(model.ErrorState("m1", "device unplugged"), thresholds)
	assert.Equal(t, model.ProtocolError, failed.Status)
	assert.Equal(t, "device unplugged", failed.Message)
	assert.Nil(t, failed.Result)

	speed, err := model.LookupReferenceSpeed("1/500")
	require.NoError(t, err)
	result := measurement.Calculate(model.RawSensorFrame{
		BottomLeftOpen: 1000, BottomLeftClose: 3000,
		CenterOpen: 1000, CenterClose: 3000,
		TopRightOpen: 1000, TopRightClose: 3000,
	}, speed, "1/500")
	success := newProtocolStateView(model.SuccessState("m1", &result), thresholds)
	assert.Equal(t, model.ProtocolSuccess, success.Status)
	require.NotNil(t, success.Result)
	assert.Equal(t, model.DeviationOK, success.Result.Center.Level)
}

func TestDiscoveryScanEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodGet, "/api/v1/discovery/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeData[service.ScanResult](t, env)
	assert.Zero(t, result.DevicesFound)
	assert.Equal(t, devicetypes.STM32, result.Selected)

	w, _ = f.do(t, http.MethodGet, "/api/v1/discovery/scan?type=bluetooth", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthWithoutDatabase(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disabled", health.Checks["database"].Status)
	assert.Equal(t, string(model.ConnectionDisconnected), health.Checks["device"].Status)

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	for _, path := range []string{"/ready", "/live"} {
		w = httptest.NewRecorder()
		f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", service.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("camera 1: %w", repository.ErrNotFound), http.StatusNotFound},
		{repository.ErrDuplicate, http.StatusConflict},
		{protocol.ErrBusy, http.StatusConflict},
		{protocol.ErrNotConnected, http.StatusConflict},
		{&protocol.TransferError{Kind: protocol.NoOutEndpoint}, http.StatusConflict},
		{fmt.Errorf("failed to connect: %w", &protocol.ConnectError{Kind: protocol.PermissionDenied}), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRoundPercent(t *testing.T) {
	assert.Equal(t, 12.35, RoundPercent(12.345))
	assert.Equal(t, -3.33, RoundPercent(-10.0/3.0))
	assert.Equal(t, -76.0, RoundPercent(-76))
}
