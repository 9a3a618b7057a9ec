// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"shutter-service/pkg/devicetypes"
)

// CDC-ACM class requests
const (
	requestTypeClassOut     = 0x21
	requestSetLineCoding    = 0x20
	requestSetControlLine   = 0x22
	controlLineDTR          = 0x01
	controlInterfaceNumber  = 0
	dataInterfaceNumber     = 1
	defaultUSBConfiguration = 1
)

// USBTransport implements Transport over libusb bulk endpoints
type USBTransport struct {
	config Config
	logger *zap.Logger
	mutex  sync.RWMutex

	usbCtx   *gousb.Context
	device   *gousb.Device
	usbCfg   *gousb.Config
	ctrlIntf *gousb.Interface
	dataIntf *gousb.Interface
	inEndpt  *gousb.InEndpoint
	outEndpt *gousb.OutEndpoint
	identity devicetypes.Identity
	isOpen   bool

	statsMu sync.Mutex
	stats   TransportStats
}

// NewUSBTransport creates a new USB transport
func NewUSBTransport(config Config, logger *zap.Logger) *USBTransport {
	return &USBTransport{
		config: config.withDefaults(),
		logger: logger.With(zap.String("protocol", BackendUSB)),
	}
}

// Connect opens the device matching identity and prepares its data interface
func (ut *USBTransport) Connect(ctx context.Context, identity devicetypes.Identity) error {
	ut.mutex.Lock()
	defer ut.mutex.Unlock()

	if ut.isOpen {
		if ut.identity == identity {
			return nil
		}
		ut.closeLocked()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	logger := ut.logger.With(zap.Stringer("device", identity))
	logger.Info("Opening USB connection")

	usbCtx := gousb.NewContext()
	vendorID, productID := gousb.ID(identity.VendorID), gousb.ID(identity.ProductID)

	matches := 0
	if _, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == vendorID && desc.Product == productID {
			matches++
		}
		return false
	}); err != nil {
		logger.Warn("USB enumeration reported an error", zap.Error(err))
	}
	if matches == 0 {
		usbCtx.Close()
		return newConnectError(DeviceNotFound, identity.String(), nil)
	}

	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorID && desc.Product == productID
	})
	if len(devices) == 0 {
		usbCtx.Close()
		return newConnectError(classifyOpenError(err), identity.String(), err)
	}
	for _, extra := range devices[1:] {
		extra.Close()
	}
	if len(devices) > 1 {
		logger.Warn("Multiple matching USB devices found, using first one", zap.Int("count", len(devices)))
	}

	device := devices[0]
	device.ControlTimeout = ut.config.TransferTimeout
	if err := device.SetAutoDetach(true); err != nil {
		logger.Warn("Failed to enable kernel driver auto-detach", zap.Error(err))
	}

	logger.Info("Successfully opened USB connection",
		zap.Int("bus", device.Desc.Bus),
		zap.Int("address", device.Desc.Address),
	)
	logDescriptors(logger, device.Desc)

	usbCfg, err := device.Config(defaultUSBConfiguration)
	if err != nil {
		device.Close()
		usbCtx.Close()
		return newConnectError(OpenFailed, identity.String(), err)
	}

	fail := func(kind ConnectErrorKind, err error, intfs ...*gousb.Interface) error {
		for _, intf := range intfs {
			intf.Close()
		}
		usbCfg.Close()
		device.Close()
		usbCtx.Close()
		return newConnectError(kind, identity.String(), err)
	}

	ctrlIntf, err := usbCfg.Interface(controlInterfaceNumber, 0)
	if err != nil {
		logger.Warn("Failed to claim control interface", zap.Error(err))
	} else {
		logger.Info("Claimed control interface")
	}

	if _, err := device.Control(requestTypeClassOut, requestSetControlLine, controlLineDTR, controlInterfaceNumber, nil); err != nil {
		logger.Warn("Failed to set control line state", zap.Error(err))
	}

	claimed := []*gousb.Interface{}
	if ctrlIntf != nil {
		claimed = append(claimed, ctrlIntf)
	}

	if len(usbCfg.Desc.Interfaces) <= dataInterfaceNumber || len(usbCfg.Desc.Interfaces[dataInterfaceNumber].AltSettings) == 0 {
		return fail(NoDataInterface, nil, claimed...)
	}

	inDesc, outDesc, ok := selectBulkEndpoints(usbCfg.Desc.Interfaces[dataInterfaceNumber].AltSettings[0])
	if !ok {
		return fail(NoBulkEndpoints, nil, claimed...)
	}
	logger.Info("Found bulk endpoints",
		zap.String("in", inDesc.Address.String()),
		zap.String("out", outDesc.Address.String()),
	)

	dataIntf, err := usbCfg.Interface(dataInterfaceNumber, 0)
	if err != nil {
		return fail(ClaimFailed, err, claimed...)
	}
	claimed = append(claimed, dataIntf)
	logger.Info("Claimed data interface")

	inEndpt, err := dataIntf.InEndpoint(inDesc.Number)
	if err != nil {
		return fail(NoBulkEndpoints, err, claimed...)
	}
	outEndpt, err := dataIntf.OutEndpoint(outDesc.Number)
	if err != nil {
		return fail(NoBulkEndpoints, err, claimed...)
	}

	written, err := device.Control(requestTypeClassOut, requestSetLineCoding, 0, controlInterfaceNumber, lineCodingPayload(ut.config.BaudRate))
	if err != nil {
		logger.Warn("Set line coding failed", zap.Error(err))
	} else {
		logger.Info("Set baud rate", zap.Int("baud_rate", ut.config.BaudRate), zap.Int("result", written))
	}

	ut.usbCtx = usbCtx
	ut.device = device
	ut.usbCfg = usbCfg
	ut.ctrlIntf = ctrlIntf
	ut.dataIntf = dataIntf
	ut.inEndpt = inEndpt
	ut.outEndpt = outEndpt
	ut.identity = identity
	ut.isOpen = true

	ut.statsMu.Lock()
	ut.stats.IsConnected = true
	ut.stats.Device = identity.String()
	ut.stats.LastActivity = time.Now()
	ut.statsMu.Unlock()

	logger.Info("USB connection opened successfully")
	return nil
}

// Disconnect releases every handle. It is safe to call repeatedly.
func (ut *USBTransport) Disconnect() {
	ut.mutex.Lock()
	defer ut.mutex.Unlock()
	ut.closeLocked()
}

func (ut *USBTransport) closeLocked() {
	if !ut.isOpen {
		return
	}

	if ut.dataIntf != nil {
		ut.dataIntf.Close()
	}
	if ut.ctrlIntf != nil {
		ut.ctrlIntf.Close()
	}
	if ut.usbCfg != nil {
		if err := ut.usbCfg.Close(); err != nil {
			ut.logger.Warn("Failed to release USB configuration", zap.Error(err))
		}
	}
	if ut.device != nil {
		if err := ut.device.Close(); err != nil {
			ut.logger.Warn("Failed to close USB device", zap.Error(err))
		}
	}
	if ut.usbCtx != nil {
		if err := ut.usbCtx.Close(); err != nil {
			ut.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}

	ut.usbCtx = nil
	ut.device = nil
	ut.usbCfg = nil
	ut.ctrlIntf = nil
	ut.dataIntf = nil
	ut.inEndpt = nil
	ut.outEndpt = nil
	ut.identity = devicetypes.Identity{}
	ut.isOpen = false

	ut.statsMu.Lock()
	ut.stats.IsConnected = false
	ut.stats.Device = ""
	ut.statsMu.Unlock()

	ut.logger.Info("USB connection closed")
}

// IsConnected returns whether the session is open
func (ut *USBTransport) IsConnected() bool {
	ut.mutex.RLock()
	defer ut.mutex.RUnlock()
	return ut.isOpen && ut.inEndpt != nil && ut.outEndpt != nil
}

// ReadChunk performs one bulk IN transfer bounded by timeout
func (ut *USBTransport) ReadChunk(ctx context.Context, timeout time.Duration) ([]byte, error) {
	ut.mutex.RLock()
	defer ut.mutex.RUnlock()

	if !ut.isOpen || ut.inEndpt == nil {
		return nil, ErrNotConnected
	}

	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	buffer := make([]byte, ReadBufferSize)
	n, err := ut.inEndpt.ReadContext(readCtx, buffer)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isNoDevice(err) {
			ut.recordError()
			return nil, fmt.Errorf("device disconnected: %w", err)
		}
		if !isTimeout(readCtx, err) {
			ut.recordError()
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
	}

	ut.recordRead(n)
	return buffer[:n:n], nil
}

// SendCommand writes a single command byte to the bulk OUT endpoint
func (ut *USBTransport) SendCommand(ctx context.Context, command Command) error {
	ut.mutex.RLock()
	defer ut.mutex.RUnlock()

	if !ut.isOpen || ut.outEndpt == nil {
		return &TransferError{Kind: NoOutEndpoint, Command: command}
	}

	writeCtx, cancel := context.WithTimeout(ctx, ut.config.TransferTimeout)
	defer cancel()

	n, err := ut.outEndpt.WriteContext(writeCtx, []byte{byte(command)})
	if err != nil {
		ut.recordError()
		return &TransferError{Kind: WriteFailed, Command: command, Err: err}
	}
	if n != 1 {
		ut.recordError()
		return &TransferError{Kind: WriteFailed, Command: command, Err: fmt.Errorf("wrote %d bytes", n)}
	}

	ut.statsMu.Lock()
	ut.stats.BytesWritten++
	ut.stats.LastActivity = time.Now()
	ut.statsMu.Unlock()

	ut.logger.Info("Command sent", zap.Stringer("command", command), zap.Int("bytes_sent", n))
	return nil
}

// Backend returns the backend name
func (ut *USBTransport) Backend() string {
	return BackendUSB
}

// Stats returns a snapshot of the transport counters
func (ut *USBTransport) Stats() TransportStats {
	ut.statsMu.Lock()
	defer ut.statsMu.Unlock()
	return ut.stats
}

func (ut *USBTransport) recordRead(n int) {
	ut.statsMu.Lock()
	defer ut.statsMu.Unlock()
	ut.stats.ReadCount++
	if n > 0 {
		ut.stats.BytesRead += int64(n)
		ut.stats.LastActivity = time.Now()
	}
}

func (ut *USBTransport) recordError() {
	ut.statsMu.Lock()
	ut.stats.ErrorCount++
	ut.statsMu.Unlock()
}

// lineCodingPayload builds the 7-byte SET_LINE_CODING body: baud rate
// little-endian, 1 stop bit, no parity, 8 data bits
func lineCodingPayload(baudRate int) []byte {
	payload := make([]byte, 7)
	binary.LittleEndian.PutUint32(payload[:4], uint32(baudRate))
	payload[4] = 0
	payload[5] = 0
	payload[6] = 8
	return payload
}

// selectBulkEndpoints picks the lowest-addressed bulk endpoint in each direction
func selectBulkEndpoints(setting gousb.InterfaceSetting) (in, out gousb.EndpointDesc, ok bool) {
	addresses := make([]int, 0, len(setting.Endpoints))
	for addr := range setting.Endpoints {
		addresses = append(addresses, int(addr))
	}
	sort.Ints(addresses)

	var haveIn, haveOut bool
	for _, addr := range addresses {
		ep := setting.Endpoints[gousb.EndpointAddress(addr)]
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && !haveIn {
			in, haveIn = ep, true
		} else if ep.Direction == gousb.EndpointDirectionOut && !haveOut {
			out, haveOut = ep, true
		}
	}
	return in, out, haveIn && haveOut
}

func classifyOpenError(err error) ConnectErrorKind {
	if errors.Is(err, gousb.ErrorAccess) {
		return PermissionDenied
	}
	return OpenFailed
}

func isNoDevice(err error) bool {
	return errors.Is(err, gousb.ErrorNoDevice) || errors.Is(err, gousb.TransferNoDevice)
}

func isTimeout(readCtx context.Context, err error) bool {
	if errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.ErrorTimeout) {
		return true
	}
	return errors.Is(readCtx.Err(), context.DeadlineExceeded)
}

func logDescriptors(logger *zap.Logger, desc *gousb.DeviceDesc) {
	configs := make([]int, 0, len(desc.Configs))
	for num := range desc.Configs {
		configs = append(configs, num)
	}
	sort.Ints(configs)

	for _, num := range configs {
		for _, intf := range desc.Configs[num].Interfaces {
			for _, alt := range intf.AltSettings {
				logger.Debug("Interface",
					zap.Int("config", num),
					zap.Int("interface", intf.Number),
					zap.Int("alternate", alt.Alternate),
					zap.String("class", alt.Class.String()),
					zap.String("subclass", alt.SubClass.String()),
					zap.String("protocol", alt.Protocol.String()),
					zap.Int("endpoints", len(alt.Endpoints)),
				)
				for _, ep := range alt.Endpoints {
					logger.Debug("Endpoint",
						zap.Int("interface", intf.Number),
						zap.String("address", ep.Address.String()),
						zap.String("type", ep.TransferType.String()),
						zap.Int("max_packet_size", ep.MaxPacketSize),
					)
				}
			}
		}
	}
}
