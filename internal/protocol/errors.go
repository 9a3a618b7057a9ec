// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by transfers on a closed session
	ErrNotConnected = errors.New("device not connected")

	// ErrReadFailed marks a failed bulk read. Callers treat it as "no data this round".
	ErrReadFailed = errors.New("bulk read failed")

	// ErrBusy is returned when the transport is owned by another operation
	ErrBusy = errors.New("transport busy")
)

// ConnectErrorKind classifies connect failures
type ConnectErrorKind string

const (
	DeviceNotFound   ConnectErrorKind = "DEVICE_NOT_FOUND"
	PermissionDenied ConnectErrorKind = "PERMISSION_DENIED"
	OpenFailed       ConnectErrorKind = "OPEN_FAILED"
	NoDataInterface  ConnectErrorKind = "NO_DATA_INTERFACE"
	NoBulkEndpoints  ConnectErrorKind = "NO_BULK_ENDPOINTS"
	ClaimFailed      ConnectErrorKind = "CLAIM_FAILED"
)

// ConnectError is returned by Transport.Connect
type ConnectError struct {
	Kind   ConnectErrorKind
	Device string
	Err    error
}

func (e *ConnectError) Error() string {
	msg := connectMessages[e.Kind]
	if msg == "" {
		msg = "connect failed"
	}
	if e.Device != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Device)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

var connectMessages = map[ConnectErrorKind]string{
	DeviceNotFound:   "Device not found",
	PermissionDenied: "No permission to access USB device. Please grant permission and try again",
	OpenFailed:       "Could not open connection. Please check USB permissions",
	NoDataInterface:  "Could not get data interface",
	NoBulkEndpoints:  "Could not find required bulk endpoints",
	ClaimFailed:      "Failed to claim data interface",
}

func newConnectError(kind ConnectErrorKind, device string, err error) *ConnectError {
	return &ConnectError{Kind: kind, Device: device, Err: err}
}

// TransferErrorKind classifies host-to-device transfer failures
type TransferErrorKind string

const (
	WriteFailed   TransferErrorKind = "WRITE_FAILED"
	NoOutEndpoint TransferErrorKind = "NO_OUT_ENDPOINT"
)

// TransferError is returned by Transport.SendCommand
type TransferError struct {
	Kind    TransferErrorKind
	Command Command
	Err     error
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case NoOutEndpoint:
		return fmt.Sprintf("cannot send command %s: no OUT endpoint available", e.Command)
	default:
		if e.Err != nil {
			return fmt.Sprintf("failed to send command %s: %v", e.Command, e.Err)
		}
		return fmt.Sprintf("failed to send command %s", e.Command)
	}
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ProtocolErrorKind classifies rejected frames
type ProtocolErrorKind string

const (
	InvalidEventType ProtocolErrorKind = "INVALID_EVENT_TYPE"
	MalformedJSON    ProtocolErrorKind = "MALFORMED_JSON"
	MissingField     ProtocolErrorKind = "MISSING_FIELD"
)

// ProtocolError is returned when a frame cannot be decoded into a measurement
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case InvalidEventType:
		return fmt.Sprintf("Invalid event type: %s", e.Detail)
	case MissingField:
		return fmt.Sprintf("missing or invalid field: %s", e.Detail)
	default:
		if e.Err != nil {
			return fmt.Sprintf("malformed JSON frame: %v", e.Err)
		}
		return "malformed JSON frame"
	}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
