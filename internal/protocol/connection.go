// internal/protocol/connection.go
package protocol

import (
	"strings"
	"time"
)

const (
	// ReadBufferSize is the largest chunk a single bulk read returns
	ReadBufferSize = 1024

	// DefaultBaudRate is the line coding sent during connect
	DefaultBaudRate = 9600

	// DefaultTransferTimeout bounds every control and bulk transfer
	DefaultTransferTimeout = 100 * time.Millisecond
)

// Backend names
const (
	BackendUSB    = "usb"
	BackendSerial = "serial"
)

// Config represents transport configuration
type Config struct {
	Backend         string        `json:"backend"`
	BaudRate        int           `json:"baud_rate"`
	TransferTimeout time.Duration `json:"transfer_timeout"`

	// SerialPort pins the serial backend to a port instead of looking it up by VID/PID
	SerialPort string `json:"serial_port,omitempty"`
}

// DefaultConfig returns the USB backend at 9600 baud
func DefaultConfig() Config {
	return Config{
		Backend:         BackendUSB,
		BaudRate:        DefaultBaudRate,
		TransferTimeout: DefaultTransferTimeout,
	}
}

func (c Config) withDefaults() Config {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendUSB
	}
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = DefaultTransferTimeout
	}
	return c
}
