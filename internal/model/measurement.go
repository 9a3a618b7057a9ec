// internal/model/measurement.go
package model

import (
	"time"
)

// MeasurementUnit is the unit of every duration and deviation stored
const MeasurementUnit = "microsecond"

// Sensor names a position on the sensor rig
type Sensor string

const (
	SensorBottomLeft Sensor = "bottom_left"
	SensorCenter     Sensor = "center"
	SensorTopRight   Sensor = "top_right"
)

// Sensors lists the rig positions in reporting order
var Sensors = []Sensor{SensorBottomLeft, SensorCenter, SensorTopRight}

// SensorReading holds the derived values for one sensor
type SensorReading struct {
	Duration         int64   `json:"duration"`
	Deviation        int64   `json:"deviation"`
	DeviationPercent float64 `json:"deviation_percent"`
}

// MeasurementResult is a raw frame evaluated against a reference speed.
// It is never modified after construction.
type MeasurementResult struct {
	Frame                 RawSensorFrame `json:"frame"`
	ReferenceShutterSpeed string         `json:"reference_shutter_speed"`
	ReferenceSpeedMicros  int64          `json:"reference_speed_micros"`
	SelectedShutterSpeed  string         `json:"selected_shutter_speed"`
	BottomLeft            SensorReading  `json:"bottom_left"`
	Center                SensorReading  `json:"center"`
	TopRight              SensorReading  `json:"top_right"`
	MeasuredAt            time.Time      `json:"measured_at"`
}

// Reading returns the derived values of one sensor
func (r *MeasurementResult) Reading(sensor Sensor) SensorReading {
	switch sensor {
	case SensorBottomLeft:
		return r.BottomLeft
	case SensorCenter:
		return r.Center
	default:
		return r.TopRight
	}
}

// Measurement is a stored MeasurementResult belonging to a camera
type Measurement struct {
	ID       int64 `json:"id" db:"id"`
	CameraID int64 `json:"camera_id" db:"camera_id"`
	MeasurementResult
	MeasurementUnit string `json:"measurement_unit" db:"measurement_unit"`
}

// NewMeasurement wraps a result for persistence
func NewMeasurement(cameraID int64, result MeasurementResult) *Measurement {
	return &Measurement{
		CameraID:          cameraID,
		MeasurementResult: result,
		MeasurementUnit:   MeasurementUnit,
	}
}
