package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shutter-service/internal/model"
	"shutter-service/internal/monitor"
	"shutter-service/internal/protocol"
	"shutter-service/internal/protocol/protocoltest"
	"shutter-service/internal/repository"
	"shutter-service/pkg/devicetypes"
)

const frameLine = `{"eventType":"MultiSensorMeasure","bottomLeftOpen":1000,"bottomLeftClose":1500,"centerOpen":1000,"centerClose":1480,"topRightOpen":1000,"topRightClose":1520,"bottomLeftOpenOffset":0,"bottomLeftCloseOffset":0,"topRightOpenOffset":0,"topRightCloseOffset":0,"firmware_version":"1.0"}` + "\n"

type staticSettings struct {
	mu         sync.Mutex
	identity   devicetypes.Identity
	thresholds model.DeviationThresholds
}

func (s *staticSettings) DeviceIdentity() devicetypes.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *staticSettings) Thresholds() model.DeviationThresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thresholds
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.DeviceEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event *model.DeviceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	controller *SessionController
	fake       *protocoltest.FakeTransport
	store      *repository.MemoryStore
	settings   *staticSettings
	published  *recordingPublisher
	camera     *model.Camera
}

func newFixture(t *testing.T, steps ...protocoltest.Step) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &fixture{
		fake:      protocoltest.NewFakeTransport(steps...),
		store:     repository.NewMemoryStore(logger),
		settings:  &staticSettings{identity: devicetypes.STM32, thresholds: model.DefaultDeviationThresholds()},
		published: &recordingPublisher{},
	}

	f.controller = NewSessionController(
		f.fake,
		f.settings,
		f.store.Cameras(),
		f.store.Measurements(),
		f.published,
		monitor.NewMetrics(),
		SessionOptions{
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
	t.Cleanup(f.controller.Close)

	f.camera = &model.Camera{Manufacturer: "Nikon", Model: "F3", SerialNumber: "1234567"}
	require.NoError(t, f.store.Cameras().Create(context.Background(), f.camera))
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.controller.Connect(context.Background()))
}

func waitForStatus(t *testing.T, c *SessionController, status model.ProtocolStatus) model.ProtocolState {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.ProtocolState().Status == status
	}, 2*time.Second, time.Millisecond, "protocol state never became %s", status)
	return c.ProtocolState()
}

func TestConnectPublishesState(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	state := f.controller.ConnectionState()
	assert.Equal(t, model.ConnectionConnected, state.Status)
	assert.Equal(t, "STM32 (0483:5740)", state.Device)
	assert.Equal(t, devicetypes.STM32, f.fake.Identity())

	// already connected to the same board
	f.connect(t)
	assert.Equal(t, 1, f.fake.Connects())
	assert.Equal(t, []model.EventType{model.EventDeviceConnected}, f.published.types())
}

func TestConnectFailureIsObservable(t *testing.T) {
	f := newFixture(t)
	f.fake.ConnectErr = &protocol.ConnectError{Kind: protocol.DeviceNotFound, Device: devicetypes.STM32.String()}

	err := f.controller.Connect(context.Background())
	require.Error(t, err)
	var connectErr *protocol.ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, protocol.DeviceNotFound, connectErr.Kind)

	state := f.controller.ConnectionState()
	assert.Equal(t, model.ConnectionError, state.Status)
	assert.False(t, state.IsConnected())
	assert.Contains(t, state.Message, "Device not found")
}

func TestDisconnectWithoutConnectIsNoop(t *testing.T) {
	f := newFixture(t)

	f.controller.Disconnect()
	f.controller.Disconnect()

	assert.Equal(t, model.ConnectionDisconnected, f.controller.ConnectionState().Status)
	assert.Equal(t, model.ProtocolIdle, f.controller.ProtocolState().Status)
	assert.Empty(t, f.published.types())
}

func TestMeasureStoresResult(t *testing.T) {
	f := newFixture(t, protocoltest.Chunk("Display Ready\n"), protocoltest.Chunk(frameLine))
	f.connect(t)

	report, err := f.controller.Measure(context.Background(), MeasurementRequest{
		CameraID:       f.camera.ID,
		ReferenceSpeed: "1/500",
	})
	require.NoError(t, err)

	m := report.Measurement
	assert.NotZero(t, m.ID)
	assert.Equal(t, "1/500", m.SelectedShutterSpeed)
	assert.Equal(t, int64(2000), m.ReferenceSpeedMicros)
	assert.Equal(t, model.SensorReading{Duration: 500, Deviation: -1500, DeviationPercent: -75}, m.BottomLeft)
	assert.Equal(t, model.SensorReading{Duration: 480, Deviation: -1520, DeviationPercent: -76}, m.Center)
	assert.Equal(t, model.SensorReading{Duration: 520, Deviation: -1480, DeviationPercent: -74}, m.TopRight)
	assert.Equal(t, model.DeviationError, report.Levels[model.SensorCenter])

	stored, err := f.store.Measurements().GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MeasurementUnit, stored.MeasurementUnit)

	state := f.controller.ProtocolState()
	assert.Equal(t, model.ProtocolSuccess, state.Status)
	assert.Equal(t, report.AttemptID, state.AttemptID)
	assert.Equal(t, int64(480), state.Result.Center.Duration)

	assert.Contains(t, f.published.types(), model.EventMeasurementCompleted)
}

func TestMeasureWithoutCameraIsNotStored(t *testing.T) {
	f := newFixture(t, protocoltest.Chunk("Display Ready\n"+frameLine))
	f.connect(t)

	report, err := f.controller.Measure(context.Background(), MeasurementRequest{ReferenceSpeed: "1/125", SelectedSpeed: "1/120"})
	require.NoError(t, err)
	assert.Zero(t, report.Measurement.ID)
	assert.Equal(t, "1/120", report.Measurement.SelectedShutterSpeed)

	count, err := f.store.Measurements().CountByCamera(context.Background(), f.camera.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMeasureRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	_, err := f.controller.Measure(context.Background(), MeasurementRequest{ReferenceSpeed: "1/3"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.controller.StartMeasurement(context.Background(), MeasurementRequest{CameraID: 999, ReferenceSpeed: "1/500"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Equal(t, model.ProtocolIdle, f.controller.ProtocolState().Status)
}

func TestStartMeasurementFatalErrorPublishesError(t *testing.T) {
	f := newFixture(t, protocoltest.Chunk("Display Ready\n"), protocoltest.Fatal(errors.New("pipe stalled")))
	f.connect(t)

	id, err := f.controller.StartMeasurement(context.Background(), MeasurementRequest{CameraID: f.camera.ID, ReferenceSpeed: "1/60"})
	require.NoError(t, err)

	state := waitForStatus(t, f.controller, model.ProtocolError)
	assert.Equal(t, id, state.AttemptID)
	assert.Equal(t, "failed to read from device: pipe stalled", state.Message)
	assert.True(t, f.controller.ConnectionState().IsConnected(), "a failed attempt keeps the connection")
	assert.Contains(t, f.published.types(), model.EventMeasurementFailed)
}

func TestMeasureWhileDisconnectedFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.Measure(context.Background(), MeasurementRequest{ReferenceSpeed: "1/500"})
	assert.ErrorIs(t, err, protocol.ErrNotConnected)
	assert.Equal(t, model.ProtocolError, f.controller.ProtocolState().Status)
}

func TestResetDuringMeasuringThenMeasureAgain(t *testing.T) {
	f := newFixture(t, protocoltest.Chunk("Display Ready\n"))
	f.connect(t)

	_, err := f.controller.StartMeasurement(context.Background(), MeasurementRequest{ReferenceSpeed: "1/500"})
	require.NoError(t, err)
	waitForStatus(t, f.controller, model.ProtocolMeasuring)

	f.controller.Reset()
	assert.Equal(t, model.ProtocolIdle, f.controller.ProtocolState().Status)
	assert.True(t, f.controller.ConnectionState().IsConnected())
	assert.Empty(t, f.controller.Status().ActiveTask)

	f.fake.Queue(protocoltest.Chunk("Display Ready\n"), protocoltest.Chunk(frameLine))
	report, err := f.controller.Measure(context.Background(), MeasurementRequest{ReferenceSpeed: "1/500"})
	require.NoError(t, err)
	assert.Equal(t, int64(-1500), report.Measurement.BottomLeft.Deviation)
}

func TestNewMeasurementReplacesRunningOne(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	first, err := f.controller.StartMeasurement(context.Background(), MeasurementRequest{ReferenceSpeed: "1/500"})
	require.NoError(t, err)
	waitForStatus(t, f.controller, model.ProtocolMeasuring)

	second, err := f.controller.StartMeasurement(context.Background(), MeasurementRequest{ReferenceSpeed: "1/250"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	f.fake.Queue(protocoltest.Chunk("Display Ready\n" + frameLine))
	state := waitForStatus(t, f.controller, model.ProtocolSuccess)
	assert.Equal(t, second, state.AttemptID)
	assert.Equal(t, "1/250", state.Result.ReferenceShutterSpeed)
}

func TestMeasureCallerCancellation(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.controller.Measure(ctx, MeasurementRequest{ReferenceSpeed: "1/500"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.ProtocolIdle, f.controller.ProtocolState().Status)
}

func TestDisconnectStopsMeasurement(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	_, err := f.controller.StartMeasurement(context.Background(), MeasurementRequest{ReferenceSpeed: "1/500"})
	require.NoError(t, err)
	waitForStatus(t, f.controller, model.ProtocolMeasuring)

	f.controller.Disconnect()
	assert.Equal(t, model.ConnectionDisconnected, f.controller.ConnectionState().Status)
	assert.Equal(t, model.ProtocolIdle, f.controller.ProtocolState().Status)
	assert.False(t, f.fake.IsConnected())
	assert.Contains(t, f.published.types(), model.EventDeviceDisconnected)
}

func TestListeningPublishesFramesAndBlocksCommands(t *testing.T) {
	f := newFixture(t, protocoltest.Chunk(frameLine))
	f.connect(t)

	require.NoError(t, f.controller.SendCommand(context.Background(), protocol.CommandGetFirmwareVersion))

	_, err := f.controller.StartListening(ListenRequest{ReferenceSpeed: "1/500"})
	require.NoError(t, err)

	state := waitForStatus(t, f.controller, model.ProtocolSuccess)
	assert.Equal(t, int64(520), state.Result.TopRight.Duration)
	assert.Equal(t, taskListen, f.controller.Status().ActiveTask)

	err = f.controller.SendCommand(context.Background(), protocol.CommandStopMeasurement)
	assert.ErrorIs(t, err, protocol.ErrBusy)

	f.fake.Queue(protocoltest.Chunk("garbage\n"))
	waitForStatus(t, f.controller, model.ProtocolError)

	f.controller.Reset()
	assert.Equal(t, model.ProtocolIdle, f.controller.ProtocolState().Status)
	require.NoError(t, f.controller.SendCommand(context.Background(), protocol.CommandStopMeasurement))

	assert.Equal(t, []protocol.Command{protocol.CommandGetFirmwareVersion, protocol.CommandStopMeasurement}, f.fake.Commands())
	assert.Contains(t, f.published.types(), model.EventTelemetryFrame)

	count, err := f.store.Measurements().CountByCamera(context.Background(), f.camera.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "telemetry is not stored")
}

func TestSendCommandWhileDisconnected(t *testing.T) {
	f := newFixture(t)

	err := f.controller.SendCommand(context.Background(), protocol.CommandStartMeasurement)
	var te *protocol.TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, protocol.NoOutEndpoint, te.Kind)
}

func TestWatchDeviceDisconnectsOnChange(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan devicetypes.Identity, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.controller.WatchDevice(ctx, updates)
	}()

	updates <- devicetypes.STM32
	updates <- devicetypes.Arduino
	close(updates)
	<-done

	assert.Equal(t, model.ConnectionDisconnected, f.controller.ConnectionState().Status)
}

func TestSubscribersSeeCurrentStateOnAttach(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	states, cancel := f.controller.SubscribeConnection()
	defer cancel()

	first := <-states
	assert.Equal(t, model.ConnectionConnected, first.Status)

	f.controller.Disconnect()
	next := <-states
	assert.Equal(t, model.ConnectionDisconnected, next.Status)
}

func TestResultLatched(t *testing.T) {
	result := &model.MeasurementResult{}

	assert.True(t, resultLatched(model.SuccessState("a", result)))
	assert.False(t, resultLatched(model.IdleState()))
	assert.False(t, resultLatched(model.MeasuringState("a")))
	assert.False(t, resultLatched(model.ErrorState("a", "boom")))
}
