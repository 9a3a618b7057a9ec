// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"shutter-service/internal/discovery"
	"shutter-service/internal/protocol"
	"shutter-service/pkg/devicetypes"
)

// Scanner lists serial ports that belong to supported boards
type Scanner struct {
	logger    *zap.Logger
	listPorts func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger:    logger.With(zap.String("scanner", protocol.BackendSerial)),
		listPorts: enumerator.GetDetailedPortsList,
	}
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return protocol.BackendSerial
}

// Scan lists the USB serial ports and keeps the supported ones
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.AttachedDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	var found []*discovery.AttachedDevice
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}

		vendorID, vok := parseUSBID(port.VID)
		productID, pok := parseUSBID(port.PID)
		if !vok || !pok {
			s.logger.Debug("Skipping port with unreadable USB id", zap.String("port", port.Name))
			continue
		}

		identity, ok := devicetypes.ByUSBID(vendorID, productID)
		if !ok {
			continue
		}

		found = append(found, &discovery.AttachedDevice{
			Device:       identity,
			Backend:      protocol.BackendSerial,
			Location:     port.Name,
			SerialNumber: port.SerialNumber,
			Product:      port.Product,
		})
	}

	return found, nil
}

// parseUSBID reads an enumerator hex id such as "0483" or "0x0483"
func parseUSBID(value string) (uint16, bool) {
	value = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	id, err := strconv.ParseUint(value, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(id), true
}
