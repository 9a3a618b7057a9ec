// internal/handler/views.go
package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"shutter-service/internal/model"
	"shutter-service/internal/protocol"
	"shutter-service/internal/service"
)

// percentPlaces is the precision of deviation percentages in responses
const percentPlaces = 2

// SensorView is one sensor of a measurement as returned by the API
type SensorView struct {
	Duration         int64                `json:"duration"`
	Deviation        int64                `json:"deviation"`
	DeviationPercent float64              `json:"deviation_percent"`
	Level            model.DeviationLevel `json:"level"`
}

// MeasurementView is a measurement result with rounded percentages and levels
type MeasurementView struct {
	ID                    int64                `json:"id,omitempty"`
	CameraID              int64                `json:"camera_id,omitempty"`
	ReferenceShutterSpeed string               `json:"reference_shutter_speed"`
	ReferenceSpeedMicros  int64                `json:"reference_speed_micros"`
	SelectedShutterSpeed  string               `json:"selected_shutter_speed"`
	MeasurementUnit       string               `json:"measurement_unit"`
	FirmwareVersion       string               `json:"firmware_version"`
	MeasuredAt            time.Time            `json:"measured_at"`
	BottomLeft            SensorView           `json:"bottom_left"`
	Center                SensorView           `json:"center"`
	TopRight              SensorView           `json:"top_right"`
	Frame                 model.RawSensorFrame `json:"frame"`
}

// MeasurementReportView is the response of a synchronous measurement
type MeasurementReportView struct {
	AttemptID   string                `json:"attempt_id"`
	Measurement MeasurementView       `json:"measurement"`
	Stats       protocol.AttemptStats `json:"stats"`
}

// ProtocolStateView is a protocol snapshot with the result rendered as a view
type ProtocolStateView struct {
	Status    model.ProtocolStatus `json:"status"`
	AttemptID string               `json:"attempt_id,omitempty"`
	Result    *MeasurementView     `json:"result,omitempty"`
	Message   string               `json:"message,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// SessionView is the response of GET /session
type SessionView struct {
	Connection model.ConnectionState     `json:"connection"`
	Protocol   ProtocolStateView         `json:"protocol"`
	Device     string                    `json:"device"`
	Backend    string                    `json:"backend"`
	ActiveTask string                    `json:"active_task,omitempty"`
	Transport  protocol.TransportStats   `json:"transport"`
	Thresholds model.DeviationThresholds `json:"thresholds"`
}

// RoundPercent rounds a deviation percentage half away from zero
func RoundPercent(v float64) float64 {
	return decimal.NewFromFloat(v).Round(percentPlaces).InexactFloat64()
}

func newSensorView(r model.SensorReading, level model.DeviationLevel) SensorView {
	return SensorView{
		Duration:         r.Duration,
		Deviation:        r.Deviation,
		DeviationPercent: RoundPercent(r.DeviationPercent),
		Level:            level,
	}
}

func newResultView(result *model.MeasurementResult, thresholds model.DeviationThresholds) MeasurementView {
	levels := service.Classify(result, thresholds)
	return MeasurementView{
		ReferenceShutterSpeed: result.ReferenceShutterSpeed,
		ReferenceSpeedMicros:  result.ReferenceSpeedMicros,
		SelectedShutterSpeed:  result.SelectedShutterSpeed,
		MeasurementUnit:       model.MeasurementUnit,
		FirmwareVersion:       result.Frame.FirmwareVersion,
		MeasuredAt:            result.MeasuredAt,
		BottomLeft:            newSensorView(result.BottomLeft, levels[model.SensorBottomLeft]),
		Center:                newSensorView(result.Center, levels[model.SensorCenter]),
		TopRight:              newSensorView(result.TopRight, levels[model.SensorTopRight]),
		Frame:                 result.Frame,
	}
}

func newMeasurementView(m *model.Measurement, thresholds model.DeviationThresholds) MeasurementView {
	view := newResultView(&m.MeasurementResult, thresholds)
	view.ID = m.ID
	view.CameraID = m.CameraID
	if m.MeasurementUnit != "" {
		view.MeasurementUnit = m.MeasurementUnit
	}
	return view
}

func newMeasurementViews(items []*model.Measurement, thresholds model.DeviationThresholds) []MeasurementView {
	views := make([]MeasurementView, 0, len(items))
	for _, m := range items {
		views = append(views, newMeasurementView(m, thresholds))
	}
	return views
}

// protocolViewBuilder renders each ProtocolState variant
type protocolViewBuilder struct {
	thresholds model.DeviationThresholds
	view       ProtocolStateView
}

func (b *protocolViewBuilder) VisitIdle() {
	b.view.Status = model.ProtocolIdle
}

func (b *protocolViewBuilder) VisitMeasuring(attemptID string) {
	b.view.Status = model.ProtocolMeasuring
	b.view.AttemptID = attemptID
}

func (b *protocolViewBuilder) VisitSuccess(attemptID string, result *model.MeasurementResult) {
	b.view.Status = model.ProtocolSuccess
	b.view.AttemptID = attemptID
	if result != nil {
		rendered := newResultView(result, b.thresholds)
		b.view.Result = &rendered
	}
}

func (b *protocolViewBuilder) VisitError(attemptID, message string) {
	b.view.Status = model.ProtocolError
	b.view.AttemptID = attemptID
	b.view.Message = message
}

func newProtocolStateView(s model.ProtocolState, thresholds model.DeviationThresholds) ProtocolStateView {
	builder := &protocolViewBuilder{
		thresholds: thresholds,
		view:       ProtocolStateView{UpdatedAt: s.UpdatedAt},
	}
	s.Accept(builder)
	return builder.view
}

func newSessionView(status service.SessionStatus) SessionView {
	return SessionView{
		Connection: status.Connection,
		Protocol:   newProtocolStateView(status.Protocol, status.Thresholds),
		Device:     status.Device,
		Backend:    status.Backend,
		ActiveTask: status.ActiveTask,
		Transport:  status.Transport,
		Thresholds: status.Thresholds,
	}
}
