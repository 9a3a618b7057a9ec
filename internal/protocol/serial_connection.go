// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"shutter-service/pkg/devicetypes"
)

// SerialTransport implements Transport over the operating system's CDC-ACM tty.
// It is used where the kernel driver owns the device.
type SerialTransport struct {
	config   Config
	logger   *zap.Logger
	mutex    sync.RWMutex
	port     serial.Port
	portName string
	identity devicetypes.Identity
	isOpen   bool

	// listPorts is replaced in tests
	listPorts func() ([]*enumerator.PortDetails, error)

	statsMu sync.Mutex
	stats   TransportStats
}

// NewSerialTransport creates a new serial transport
func NewSerialTransport(config Config, logger *zap.Logger) *SerialTransport {
	config = config.withDefaults()
	return &SerialTransport{
		config:    config,
		logger:    logger.With(zap.String("protocol", BackendSerial)),
		listPorts: enumerator.GetDetailedPortsList,
	}
}

// Connect locates the tty of identity and opens it at 9600 8N1 with DTR asserted
func (st *SerialTransport) Connect(ctx context.Context, identity devicetypes.Identity) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.isOpen {
		if st.identity == identity {
			return nil
		}
		st.closeLocked()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	portName := st.config.SerialPort
	if portName == "" {
		name, err := st.findPort(identity)
		if err != nil {
			return err
		}
		portName = name
	}

	logger := st.logger.With(zap.Stringer("device", identity), zap.String("port", portName))
	logger.Info("Opening serial port", zap.Int("baud_rate", st.config.BaudRate))

	mode := &serial.Mode{
		BaudRate: st.config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		logger.Error("Failed to open serial port", zap.Error(err))
		return newConnectError(classifyPortError(err), identity.String(), err)
	}

	if err := port.SetDTR(true); err != nil {
		logger.Warn("Failed to set control line state", zap.Error(err))
	}

	st.port = port
	st.portName = portName
	st.identity = identity
	st.isOpen = true

	st.statsMu.Lock()
	st.stats.IsConnected = true
	st.stats.Device = identity.String()
	st.stats.LastActivity = time.Now()
	st.statsMu.Unlock()

	logger.Info("Serial port opened successfully")
	return nil
}

// Disconnect closes the port. It is safe to call repeatedly.
func (st *SerialTransport) Disconnect() {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	st.closeLocked()
}

func (st *SerialTransport) closeLocked() {
	if !st.isOpen {
		return
	}

	if st.port != nil {
		if err := st.port.Close(); err != nil {
			st.logger.Warn("Failed to close serial port", zap.Error(err))
		}
	}

	st.port = nil
	st.portName = ""
	st.identity = devicetypes.Identity{}
	st.isOpen = false

	st.statsMu.Lock()
	st.stats.IsConnected = false
	st.stats.Device = ""
	st.statsMu.Unlock()

	st.logger.Info("Serial port closed")
}

// IsConnected returns whether the port is open
func (st *SerialTransport) IsConnected() bool {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return st.isOpen && st.port != nil
}

// ReadChunk reads whatever arrives within timeout
func (st *SerialTransport) ReadChunk(ctx context.Context, timeout time.Duration) ([]byte, error) {
	st.mutex.RLock()
	defer st.mutex.RUnlock()

	if !st.isOpen || st.port == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := st.port.SetReadTimeout(timeout); err != nil {
		st.recordError()
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	buffer := make([]byte, ReadBufferSize)
	n, err := st.port.Read(buffer)
	if err != nil {
		st.recordError()
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
			return nil, fmt.Errorf("serial port closed: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	st.statsMu.Lock()
	st.stats.ReadCount++
	if n > 0 {
		st.stats.BytesRead += int64(n)
		st.stats.LastActivity = time.Now()
	}
	st.statsMu.Unlock()

	return buffer[:n:n], nil
}

// SendCommand writes a single command byte
func (st *SerialTransport) SendCommand(ctx context.Context, command Command) error {
	st.mutex.RLock()
	defer st.mutex.RUnlock()

	if !st.isOpen || st.port == nil {
		return &TransferError{Kind: NoOutEndpoint, Command: command}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := st.port.Write([]byte{byte(command)})
	if err != nil || n != 1 {
		st.recordError()
		if err == nil {
			err = fmt.Errorf("wrote %d bytes", n)
		}
		return &TransferError{Kind: WriteFailed, Command: command, Err: err}
	}

	st.statsMu.Lock()
	st.stats.BytesWritten++
	st.stats.LastActivity = time.Now()
	st.statsMu.Unlock()

	st.logger.Info("Command sent", zap.Stringer("command", command), zap.String("port", st.portName))
	return nil
}

// Backend returns the backend name
func (st *SerialTransport) Backend() string {
	return BackendSerial
}

// Stats returns a snapshot of the transport counters
func (st *SerialTransport) Stats() TransportStats {
	st.statsMu.Lock()
	defer st.statsMu.Unlock()
	return st.stats
}

func (st *SerialTransport) recordError() {
	st.statsMu.Lock()
	st.stats.ErrorCount++
	st.statsMu.Unlock()
}

// findPort returns the first USB tty whose VID/PID matches identity
func (st *SerialTransport) findPort(identity devicetypes.Identity) (string, error) {
	ports, err := st.listPorts()
	if err != nil {
		return "", newConnectError(OpenFailed, identity.String(), fmt.Errorf("failed to enumerate serial ports: %w", err))
	}

	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		if matchesUSBID(port.VID, identity.VendorID) && matchesUSBID(port.PID, identity.ProductID) {
			st.logger.Debug("Matched serial port",
				zap.String("port", port.Name),
				zap.String("product", port.Product),
				zap.String("serial_number", port.SerialNumber),
			)
			return port.Name, nil
		}
	}

	return "", newConnectError(DeviceNotFound, identity.String(), nil)
}

// matchesUSBID compares an enumerator hex id ("0483", "0x0483") to a numeric id
func matchesUSBID(hexID string, id uint16) bool {
	hexID = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hexID)), "0x")
	if hexID == "" {
		return false
	}
	value, err := strconv.ParseUint(hexID, 16, 16)
	return err == nil && uint16(value) == id
}

func classifyPortError(err error) ConnectErrorKind {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return OpenFailed
	}
	switch portErr.Code() {
	case serial.PortNotFound:
		return DeviceNotFound
	case serial.PermissionDenied:
		return PermissionDenied
	default:
		return OpenFailed
	}
}
