// internal/service/session_controller.go
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shutter-service/internal/measurement"
	"shutter-service/internal/model"
	"shutter-service/internal/monitor"
	"shutter-service/internal/protocol"
	"shutter-service/internal/publisher"
	"shutter-service/internal/repository"
	"shutter-service/internal/state"
	"shutter-service/internal/utils"
	"shutter-service/pkg/devicetypes"
)

const (
	// DefaultResetDelay lets observers see Idle before Measuring
	DefaultResetDelay = 100 * time.Millisecond

	publishTimeout = 5 * time.Second

	taskMeasure = "measurement"
	taskListen  = "listen"
)

// ErrValidation marks a request rejected before touching the device
var ErrValidation = errors.New("validation failed")

// Settings supplies the selected board and the deviation thresholds
type Settings interface {
	DeviceIdentity() devicetypes.Identity
	Thresholds() model.DeviationThresholds
}

// SessionOptions tunes the controller
type SessionOptions struct {
	Timing     protocol.Timing
	ResetDelay time.Duration
}

// MeasurementRequest starts one attempt. CameraID 0 measures without storing.
type MeasurementRequest struct {
	CameraID       int64  `json:"camera_id"`
	ReferenceSpeed string `json:"reference_speed" binding:"required"`
	SelectedSpeed  string `json:"selected_speed"`
}

// ListenRequest starts background telemetry against a reference speed
type ListenRequest struct {
	ReferenceSpeed string `json:"reference_speed" binding:"required"`
	SelectedSpeed  string `json:"selected_speed"`
}

// MeasurementReport is the outcome of a completed attempt
type MeasurementReport struct {
	AttemptID   string                                `json:"attempt_id"`
	Measurement *model.Measurement                    `json:"measurement"`
	Levels      map[model.Sensor]model.DeviationLevel `json:"levels"`
	Stats       protocol.AttemptStats                 `json:"stats"`
}

// SessionStatus is a combined snapshot for callers
type SessionStatus struct {
	Connection model.ConnectionState     `json:"connection"`
	Protocol   model.ProtocolState       `json:"protocol"`
	Device     string                    `json:"device"`
	Backend    string                    `json:"backend"`
	ActiveTask string                    `json:"active_task,omitempty"`
	Transport  protocol.TransportStats   `json:"transport"`
	Thresholds model.DeviationThresholds `json:"thresholds"`
}

// task is a running measurement or listener owning the transport
type task struct {
	id     string
	kind   string
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// SessionController owns the transport and the two observable state slots.
// At most one task uses the transport at a time; starting a task, resetting
// or disconnecting cancels the running one and waits for it to release the
// transport.
type SessionController struct {
	transport    protocol.Transport
	measurer     *protocol.MeasurementProtocol
	settings     Settings
	cameras      repository.CameraRepository
	measurements repository.MeasurementRepository
	publisher    publisher.Publisher
	metrics      *monitor.Metrics
	resetDelay   time.Duration
	logger       *utils.ServiceLogger

	connection    *state.Published[model.ConnectionState]
	protocolState *state.Published[model.ProtocolState]

	mutex   sync.Mutex
	current *task

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewSessionController creates a disconnected, idle controller
func NewSessionController(
	transport protocol.Transport,
	settings Settings,
	cameras repository.CameraRepository,
	measurements repository.MeasurementRepository,
	pub publisher.Publisher,
	metrics *monitor.Metrics,
	opts SessionOptions,
	logger *zap.Logger,
) *SessionController {
	if opts.ResetDelay < 0 {
		opts.ResetDelay = 0
	}
	if pub == nil {
		pub = publisher.NewNoopPublisher(logger)
	}
	if metrics == nil {
		metrics = monitor.NewMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SessionController{
		transport:     transport,
		measurer:      protocol.NewMeasurementProtocol(transport, opts.Timing, logger),
		settings:      settings,
		cameras:       cameras,
		measurements:  measurements,
		publisher:     pub,
		metrics:       metrics,
		resetDelay:    opts.ResetDelay,
		logger:        utils.NewServiceLogger(logger, "session-controller"),
		connection:    state.NewPublished(model.DisconnectedState()),
		protocolState: state.NewPublished(model.IdleState()),
		baseCtx:       ctx,
		baseCancel:    cancel,
	}
}

// ConnectionState returns the current connection snapshot
func (s *SessionController) ConnectionState() model.ConnectionState {
	return s.connection.Load()
}

// ProtocolState returns the current measurement snapshot
func (s *SessionController) ProtocolState() model.ProtocolState {
	return s.protocolState.Load()
}

// SubscribeConnection follows the connection state
func (s *SessionController) SubscribeConnection() (<-chan model.ConnectionState, func()) {
	return s.connection.Subscribe()
}

// SubscribeProtocol follows the measurement state
func (s *SessionController) SubscribeProtocol() (<-chan model.ProtocolState, func()) {
	return s.protocolState.Subscribe()
}

// Status returns a combined snapshot
func (s *SessionController) Status() SessionStatus {
	s.mutex.Lock()
	active := ""
	if s.current != nil && s.current.running() {
		active = s.current.kind
	}
	s.mutex.Unlock()

	return SessionStatus{
		Connection: s.connection.Load(),
		Protocol:   s.protocolState.Load(),
		Device:     s.settings.DeviceIdentity().String(),
		Backend:    s.transport.Backend(),
		ActiveTask: active,
		Transport:  s.transport.Stats(),
		Thresholds: s.settings.Thresholds(),
	}
}

// Connect opens the transport to the selected board. A failure is published
// as the connection error variant and returned.
func (s *SessionController) Connect(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	identity := s.settings.DeviceIdentity()
	sessionLogger := utils.NewSessionLogger(s.logger.Logger, identity, s.transport.Backend())

	if s.transport.IsConnected() {
		if current := s.connection.Load(); current.IsConnected() && current.Device == identity.String() {
			sessionLogger.Debug("Already connected")
			return nil
		}
	}

	s.stopTaskLocked()
	if s.transport.IsConnected() {
		s.transport.Disconnect()
		sessionLogger.LogConnection("reconnect", nil)
	}

	err := s.transport.Connect(ctx, identity)
	sessionLogger.LogConnection("connect", err)
	s.metrics.ObserveConnect(identity.Name, err)

	if err != nil {
		s.connection.Store(model.ConnectionErrorState(identity.String(), err.Error()))
		return fmt.Errorf("failed to connect to %s: %w", identity, err)
	}

	s.connection.Store(model.ConnectedState(identity.String()))
	s.protocolState.Store(model.IdleState())
	s.publish(model.NewDeviceEvent(model.EventDeviceConnected, identity.String(), s.transport.Stats()))

	return nil
}

// Disconnect stops any task, closes the transport and resets both states.
// It never fails.
func (s *SessionController) Disconnect() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.disconnectLocked("requested")
}

func (s *SessionController) disconnectLocked(reason string) {
	s.stopTaskLocked()

	wasConnected := s.transport.IsConnected()
	s.transport.Disconnect()
	s.metrics.ObserveDisconnect()

	s.connection.Store(model.DisconnectedState())
	s.protocolState.Store(model.IdleState())

	if wasConnected {
		device := s.settings.DeviceIdentity().String()
		s.logger.Info("Device disconnected", zap.String("device", device), zap.String("reason", reason))
		s.publish(model.NewDeviceEvent(model.EventDeviceDisconnected, device, map[string]string{"reason": reason}))
	}
}

// Reset cancels any running task and publishes Idle. The connection is kept.
func (s *SessionController) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stopTaskLocked()
	s.protocolState.Store(model.IdleState())
	s.logger.Info("Measurement state reset")
}

// SendCommand writes a single command byte. It fails with protocol.ErrBusy
// while a task owns the transport.
func (s *SessionController) SendCommand(ctx context.Context, command protocol.Command) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.current != nil && s.current.running() {
		return protocol.ErrBusy
	}

	if err := s.transport.SendCommand(ctx, command); err != nil {
		s.logger.Error("Failed to send command", zap.Stringer("command", command), zap.Error(err))
		return fmt.Errorf("failed to send %s: %w", command, err)
	}

	s.logger.Info("Command sent", zap.Stringer("command", command))
	return nil
}

// StartMeasurement replaces any running task with a new measurement attempt
// and returns its ID. Progress is observable through the protocol state.
func (s *SessionController) StartMeasurement(ctx context.Context, req MeasurementRequest) (string, error) {
	plan, err := s.planMeasurement(ctx, req)
	if err != nil {
		return "", err
	}

	t := s.startTask(taskMeasure, func(taskCtx context.Context, attemptID string) {
		_, _ = s.runMeasurement(taskCtx, attemptID, plan)
	})
	return t.id, nil
}

// Measure runs one attempt and waits for it. Cancelling ctx abandons the attempt.
func (s *SessionController) Measure(ctx context.Context, req MeasurementRequest) (*MeasurementReport, error) {
	plan, err := s.planMeasurement(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		report *MeasurementReport
		runErr error
	)
	t := s.startTask(taskMeasure, func(taskCtx context.Context, attemptID string) {
		report, runErr = s.runMeasurement(taskCtx, attemptID, plan)
	})

	select {
	case <-t.done:
		return report, runErr
	case <-ctx.Done():
		t.cancel()
		<-t.done
		return nil, ctx.Err()
	}
}

// StartListening replaces any running task with the passive telemetry reader.
// Every decoded frame is evaluated against the reference and published as
// Success without being stored; read and decode failures publish Error.
func (s *SessionController) StartListening(req ListenRequest) (string, error) {
	reference, selected, err := resolveSpeeds(req.ReferenceSpeed, req.SelectedSpeed)
	if err != nil {
		return "", err
	}

	t := s.startTask(taskListen, func(taskCtx context.Context, listenID string) {
		s.runListener(taskCtx, listenID, reference, selected)
	})
	return t.id, nil
}

// Close stops every task and disconnects
func (s *SessionController) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.disconnectLocked("shutdown")
	s.baseCancel()
}

// WatchDevice disconnects when the selected board changes while connected.
// It returns when ctx ends or updates is closed.
func (s *SessionController) WatchDevice(ctx context.Context, updates <-chan devicetypes.Identity) {
	for {
		select {
		case <-ctx.Done():
			return
		case identity, ok := <-updates:
			if !ok {
				return
			}
			current := s.connection.Load()
			if current.IsConnected() && current.Device != identity.String() {
				s.logger.Info("Selected device changed, closing session",
					zap.String("connected", current.Device),
					zap.Stringer("selected", identity),
				)
				s.mutex.Lock()
				s.disconnectLocked("device type changed")
				s.mutex.Unlock()
			}
		}
	}
}

// measurementPlan is a validated request
type measurementPlan struct {
	cameraID  int64
	reference model.ReferenceSpeed
	selected  string
}

func (s *SessionController) planMeasurement(ctx context.Context, req MeasurementRequest) (measurementPlan, error) {
	reference, selected, err := resolveSpeeds(req.ReferenceSpeed, req.SelectedSpeed)
	if err != nil {
		return measurementPlan{}, err
	}

	if req.CameraID < 0 {
		return measurementPlan{}, fmt.Errorf("%w: invalid camera id %d", ErrValidation, req.CameraID)
	}
	if req.CameraID > 0 {
		if _, err := s.cameras.GetByID(ctx, req.CameraID); err != nil {
			return measurementPlan{}, fmt.Errorf("failed to get camera %d: %w", req.CameraID, err)
		}
	}

	return measurementPlan{cameraID: req.CameraID, reference: reference, selected: selected}, nil
}

func resolveSpeeds(referenceLabel, selectedLabel string) (model.ReferenceSpeed, string, error) {
	reference, err := model.LookupReferenceSpeed(referenceLabel)
	if err != nil {
		return model.ReferenceSpeed{}, "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if reference.Microseconds <= 0 {
		return model.ReferenceSpeed{}, "", fmt.Errorf("%w: reference speed %s has no duration", ErrValidation, reference.Label)
	}
	if selectedLabel == "" {
		selectedLabel = reference.Label
	}
	return reference, selectedLabel, nil
}

// startTask cancels and waits for the running task, then starts run on its own goroutine
func (s *SessionController) startTask(kind string, run func(ctx context.Context, id string)) *task {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stopTaskLocked()

	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &task{
		id:     uuid.New().String(),
		kind:   kind,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.current = t

	go func() {
		defer close(t.done)
		defer cancel()
		run(ctx, t.id)
	}()

	return t
}

func (s *SessionController) stopTaskLocked() {
	if s.current == nil {
		return
	}
	s.current.cancel()
	<-s.current.done
	s.current = nil
}

func (s *SessionController) runMeasurement(ctx context.Context, attemptID string, plan measurementPlan) (*MeasurementReport, error) {
	opLogger := utils.NewOperationLogger(s.logger.Logger, taskMeasure, attemptID)
	opLogger.Start(
		zap.Int64("camera_id", plan.cameraID),
		zap.String("reference_speed", plan.reference.Label),
		zap.String("selected_speed", plan.selected),
	)

	s.protocolState.Store(model.IdleState())
	if err := sleepContext(ctx, s.resetDelay); err != nil {
		return nil, s.abandon(attemptID, opLogger, err)
	}
	s.protocolState.Store(model.MeasuringState(attemptID))

	reading, err := s.measurer.Measure(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.abandon(attemptID, opLogger, ctx.Err())
		}
		return nil, s.fail(attemptID, opLogger, err)
	}

	s.metrics.RejectedFrames.Add(float64(reading.Stats.RejectedFrames))
	s.metrics.ReadAttempts.Observe(float64(reading.Stats.ReadAttempts))
	opLogger.Progress("Measurement frame received",
		zap.Int("read_attempts", reading.Stats.ReadAttempts),
		zap.Int("rejected_frames", reading.Stats.RejectedFrames),
		zap.String("firmware_version", reading.Frame.FirmwareVersion),
	)

	result := measurement.Calculate(reading.Frame, plan.reference, plan.selected)
	record := model.NewMeasurement(plan.cameraID, result)

	if plan.cameraID > 0 {
		if err := s.measurements.Create(ctx, record); err != nil {
			if ctx.Err() != nil {
				return nil, s.abandon(attemptID, opLogger, ctx.Err())
			}
			return nil, s.fail(attemptID, opLogger, fmt.Errorf("failed to save measurement: %w", err))
		}
	}

	levels := Classify(&result, s.settings.Thresholds())
	for _, sensor := range model.Sensors {
		s.metrics.DeviationPercent.WithLabelValues(string(sensor)).Observe(math.Abs(result.Reading(sensor).DeviationPercent))
	}

	report := &MeasurementReport{
		AttemptID:   attemptID,
		Measurement: record,
		Levels:      levels,
		Stats:       reading.Stats,
	}

	s.protocolState.Store(model.SuccessState(attemptID, &record.MeasurementResult))
	s.metrics.ObserveMeasurement("success", opLogger.Elapsed())
	opLogger.Success(
		zap.Int64("measurement_id", record.ID),
		zap.Int64("center_duration", result.Center.Duration),
		zap.Float64("center_deviation_percent", result.Center.DeviationPercent),
	)
	s.publish(model.NewDeviceEvent(model.EventMeasurementCompleted, s.settings.DeviceIdentity().String(), report))

	return report, nil
}

// abandon handles a cancelled attempt: Idle unless Success was already latched
func (s *SessionController) abandon(attemptID string, opLogger *utils.OperationLogger, err error) error {
	if !resultLatched(s.protocolState.Load()) {
		s.protocolState.Store(model.IdleState())
	}
	s.metrics.ObserveMeasurement("cancelled", opLogger.Elapsed())
	opLogger.Cancelled(zap.String("attempt_id", attemptID))
	return err
}

func (s *SessionController) fail(attemptID string, opLogger *utils.OperationLogger, err error) error {
	s.protocolState.Store(model.ErrorState(attemptID, err.Error()))
	s.metrics.ObserveMeasurement("error", opLogger.Elapsed())
	opLogger.Error(err)
	s.publish(model.NewDeviceEvent(model.EventMeasurementFailed, s.settings.DeviceIdentity().String(), map[string]string{
		"attempt_id": attemptID,
		"error":      err.Error(),
	}))
	return err
}

func (s *SessionController) runListener(ctx context.Context, listenID string, reference model.ReferenceSpeed, selected string) {
	opLogger := utils.NewOperationLogger(s.logger.Logger, taskListen, listenID)
	opLogger.Start(zap.String("reference_speed", reference.Label))

	s.protocolState.Store(model.IdleState())

	err := s.measurer.Listen(ctx, func(frame *model.RawSensorFrame, err error) {
		if err != nil {
			s.protocolState.Store(model.ErrorState(listenID, err.Error()))
			return
		}

		result := measurement.Calculate(*frame, reference, selected)
		s.metrics.TelemetryFrames.Inc()
		s.protocolState.Store(model.SuccessState(listenID, &result))
		s.publish(model.NewDeviceEvent(model.EventTelemetryFrame, s.settings.DeviceIdentity().String(), result))
	})

	if !resultLatched(s.protocolState.Load()) {
		s.protocolState.Store(model.IdleState())
	}
	opLogger.Cancelled(zap.NamedError("reason", err))
}

func (s *SessionController) publish(event *model.DeviceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, event)
	s.metrics.ObservePublish(string(event.EventType), err)
	if err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", string(event.EventType)),
			zap.String("publisher", s.publisher.Name()),
			zap.Error(err),
		)
	}
}

// successLatch records whether a snapshot already carries a result
type successLatch struct {
	latched bool
}

func (l *successLatch) VisitIdle()                                    {}
func (l *successLatch) VisitMeasuring(string)                         {}
func (l *successLatch) VisitError(string, string)                     {}
func (l *successLatch) VisitSuccess(string, *model.MeasurementResult) { l.latched = true }

func resultLatched(state model.ProtocolState) bool {
	var latch successLatch
	state.Accept(&latch)
	return latch.latched
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
