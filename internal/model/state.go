// internal/model/state.go
package model

import (
	"time"
)

// ProtocolStatus is the variant tag of ProtocolState
type ProtocolStatus string

const (
	ProtocolIdle      ProtocolStatus = "idle"
	ProtocolMeasuring ProtocolStatus = "measuring"
	ProtocolSuccess   ProtocolStatus = "success"
	ProtocolError     ProtocolStatus = "error"
)

// ProtocolState is a point-in-time snapshot of the measurement state machine.
// Result is set only for success, Message only for error.
type ProtocolState struct {
	Status    ProtocolStatus     `json:"status"`
	AttemptID string             `json:"attempt_id,omitempty"`
	Result    *MeasurementResult `json:"result,omitempty"`
	Message   string             `json:"message,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ProtocolStateVisitor must handle every ProtocolState variant
type ProtocolStateVisitor interface {
	VisitIdle()
	VisitMeasuring(attemptID string)
	VisitSuccess(attemptID string, result *MeasurementResult)
	VisitError(attemptID string, message string)
}

// Accept dispatches the snapshot to the matching visitor method
func (s ProtocolState) Accept(v ProtocolStateVisitor) {
	switch s.Status {
	case ProtocolMeasuring:
		v.VisitMeasuring(s.AttemptID)
	case ProtocolSuccess:
		v.VisitSuccess(s.AttemptID, s.Result)
	case ProtocolError:
		v.VisitError(s.AttemptID, s.Message)
	default:
		v.VisitIdle()
	}
}

// IdleState returns the Idle variant
func IdleState() ProtocolState {
	return ProtocolState{Status: ProtocolIdle, UpdatedAt: time.Now()}
}

// MeasuringState returns the Measuring variant for an attempt
func MeasuringState(attemptID string) ProtocolState {
	return ProtocolState{Status: ProtocolMeasuring, AttemptID: attemptID, UpdatedAt: time.Now()}
}

// SuccessState returns the Success variant carrying the result
func SuccessState(attemptID string, result *MeasurementResult) ProtocolState {
	return ProtocolState{Status: ProtocolSuccess, AttemptID: attemptID, Result: result, UpdatedAt: time.Now()}
}

// ErrorState returns the Error variant carrying a displayable message
func ErrorState(attemptID, message string) ProtocolState {
	return ProtocolState{Status: ProtocolError, AttemptID: attemptID, Message: message, UpdatedAt: time.Now()}
}

// ConnectionStatus is the variant tag of ConnectionState
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
)

// ConnectionState is a point-in-time snapshot of the transport connection.
// The error variant is logically disconnected.
type ConnectionState struct {
	Status    ConnectionStatus `json:"status"`
	Device    string           `json:"device,omitempty"`
	Message   string           `json:"message,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IsConnected reports whether the snapshot is the connected variant
func (s ConnectionState) IsConnected() bool {
	return s.Status == ConnectionConnected
}

// DisconnectedState returns the Disconnected variant
func DisconnectedState() ConnectionState {
	return ConnectionState{Status: ConnectionDisconnected, UpdatedAt: time.Now()}
}

// ConnectedState returns the Connected variant for a device
func ConnectedState(device string) ConnectionState {
	return ConnectionState{Status: ConnectionConnected, Device: device, UpdatedAt: time.Now()}
}

// ConnectionErrorState returns the Error variant for a failed connect
func ConnectionErrorState(device, message string) ConnectionState {
	return ConnectionState{Status: ConnectionError, Device: device, Message: message, UpdatedAt: time.Now()}
}
