// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"shutter-service/internal/discovery"
	"shutter-service/internal/protocol"
	"shutter-service/pkg/devicetypes"
)

// Scanner lists supported boards on the USB bus without opening them
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger.With(zap.String("scanner", protocol.BackendUSB))}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return protocol.BackendUSB
}

// Scan enumerates USB device descriptors
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.AttachedDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	var found []*discovery.AttachedDevice
	_, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if device := match(desc); device != nil {
			found = append(found, device)
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	return found, nil
}

// match converts a descriptor of a supported board
func match(desc *gousb.DeviceDesc) *discovery.AttachedDevice {
	identity, ok := devicetypes.ByUSBID(uint16(desc.Vendor), uint16(desc.Product))
	if !ok {
		return nil
	}
	return &discovery.AttachedDevice{
		Device:   identity,
		Backend:  protocol.BackendUSB,
		Location: fmt.Sprintf("bus %d address %d", desc.Bus, desc.Address),
	}
}
