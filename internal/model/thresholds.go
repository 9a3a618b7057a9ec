// internal/model/thresholds.go
package model

import (
	"fmt"
	"math"
)

// Default deviation thresholds in percent
const (
	DefaultWarningThreshold = 5.0
	DefaultErrorThreshold   = 10.0
)

// DeviationLevel grades a deviation against the thresholds
type DeviationLevel string

const (
	DeviationOK      DeviationLevel = "ok"
	DeviationWarning DeviationLevel = "warning"
	DeviationError   DeviationLevel = "error"
)

// DeviationThresholds are the warning/error limits of |deviation %|
type DeviationThresholds struct {
	Warning float64 `json:"warning" mapstructure:"warning_threshold"`
	Error   float64 `json:"error" mapstructure:"error_threshold"`
}

// DefaultDeviationThresholds returns 5% / 10%
func DefaultDeviationThresholds() DeviationThresholds {
	return DeviationThresholds{Warning: DefaultWarningThreshold, Error: DefaultErrorThreshold}
}

// Validate requires non-negative limits with error above warning
func (t DeviationThresholds) Validate() error {
	if math.IsNaN(t.Warning) || math.IsNaN(t.Error) {
		return fmt.Errorf("thresholds must be numbers")
	}
	if t.Warning < 0 || t.Error < 0 {
		return fmt.Errorf("thresholds must not be negative")
	}
	if t.Error <= t.Warning {
		return fmt.Errorf("error threshold must be greater than warning threshold")
	}
	return nil
}

// Classify grades a deviation percentage
func (t DeviationThresholds) Classify(deviationPercent float64) DeviationLevel {
	abs := math.Abs(deviationPercent)
	switch {
	case abs <= t.Warning:
		return DeviationOK
	case abs <= t.Error:
		return DeviationWarning
	default:
		return DeviationError
	}
}
