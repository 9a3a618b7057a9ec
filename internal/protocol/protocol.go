// internal/protocol/protocol.go
package protocol

import (
	"context"
	"fmt"
	"time"

	"shutter-service/pkg/devicetypes"
)

// Transport is one USB CDC-style session to a measuring board.
// Only one operation may use a Transport at a time.
type Transport interface {
	// Connection lifecycle
	Connect(ctx context.Context, identity devicetypes.Identity) error
	Disconnect()
	IsConnected() bool

	// Data communication. ReadChunk returns up to ReadBufferSize bytes; an empty
	// slice means nothing arrived before timeout. A failed transfer is reported as
	// ErrReadFailed, any other error is fatal for the caller.
	ReadChunk(ctx context.Context, timeout time.Duration) ([]byte, error)
	SendCommand(ctx context.Context, command Command) error

	// Protocol information
	Backend() string
	Stats() TransportStats
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	ReadCount    int64     `json:"read_count"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
	Device       string    `json:"device,omitempty"`
}

// Command is a single-byte host-to-device command
type Command byte

const (
	CommandStartMeasurement   Command = 0x01
	CommandStopMeasurement    Command = 0x02
	CommandGetFirmwareVersion Command = 0x03
)

func (c Command) String() string {
	switch c {
	case CommandStartMeasurement:
		return "START_MEASUREMENT"
	case CommandStopMeasurement:
		return "STOP_MEASUREMENT"
	case CommandGetFirmwareVersion:
		return "GET_FIRMWARE_VERSION"
	default:
		return fmt.Sprintf("COMMAND_0x%02X", byte(c))
	}
}

// ParseCommand maps a command name to its byte value
func ParseCommand(name string) (Command, error) {
	for _, c := range []Command{CommandStartMeasurement, CommandStopMeasurement, CommandGetFirmwareVersion} {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command: %s", name)
}
