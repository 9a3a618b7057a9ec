// internal/measurement/calculator.go
package measurement

import (
	"time"

	"shutter-service/internal/model"
)

// Duration returns close-open as a signed value. Out-of-order edges give a
// negative duration and are not clamped.
func Duration(opened, closed uint64) int64 {
	return int64(closed) - int64(opened)
}

// Deviation returns duration-reference
func Deviation(duration, referenceMicros int64) int64 {
	return duration - referenceMicros
}

// DeviationPercent returns deviation/reference*100. referenceMicros must be > 0.
func DeviationPercent(deviation, referenceMicros int64) float64 {
	return float64(deviation) / float64(referenceMicros) * 100
}

// Evaluate derives the reading of a single sensor
func Evaluate(opened, closed uint64, referenceMicros int64) model.SensorReading {
	duration := Duration(opened, closed)
	deviation := Deviation(duration, referenceMicros)
	return model.SensorReading{
		Duration:         duration,
		Deviation:        deviation,
		DeviationPercent: DeviationPercent(deviation, referenceMicros),
	}
}

// Calculate evaluates all three sensors of a frame against a reference speed.
// The caller guarantees reference.Microseconds > 0.
func Calculate(frame model.RawSensorFrame, reference model.ReferenceSpeed, selectedLabel string) model.MeasurementResult {
	return CalculateAt(frame, reference, selectedLabel, time.Now())
}

// CalculateAt is Calculate with an explicit measurement time
func CalculateAt(frame model.RawSensorFrame, reference model.ReferenceSpeed, selectedLabel string, at time.Time) model.MeasurementResult {
	ref := reference.Microseconds
	return model.MeasurementResult{
		Frame:                 frame,
		ReferenceShutterSpeed: reference.Label,
		ReferenceSpeedMicros:  ref,
		SelectedShutterSpeed:  selectedLabel,
		BottomLeft:            Evaluate(frame.BottomLeftOpen, frame.BottomLeftClose, ref),
		Center:                Evaluate(frame.CenterOpen, frame.CenterClose, ref),
		TopRight:              Evaluate(frame.TopRightOpen, frame.TopRightClose, ref),
		MeasuredAt:            at,
	}
}
