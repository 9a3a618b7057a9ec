// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"shutter-service/pkg/devicetypes"
)

// DeviceScanner finds supported boards on one kind of bus
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*AttachedDevice, error)
	GetScannerType() string
}

// AttachedDevice is a supported board found on the host
type AttachedDevice struct {
	Device       devicetypes.Identity `json:"device"`
	Backend      string               `json:"backend"`
	Location     string               `json:"location"`
	SerialNumber string               `json:"serial_number,omitempty"`
	Product      string               `json:"product,omitempty"`
}

// ScannerManager runs the registered scanners
type ScannerManager struct {
	scanners map[string]DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger.With(zap.String("component", "scanner-manager")),
	}
}

// RegisterScanner registers a device scanner
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every scanner. A failing scanner is logged and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) []*AttachedDevice {
	var all []*AttachedDevice

	for _, scannerType := range sm.ScannerTypes() {
		devices, err := sm.scanners[scannerType].Scan(ctx)
		if err != nil {
			sm.logger.Warn("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		all = append(all, devices...)
		sm.logger.Debug("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("devices_found", len(devices)),
		)
	}

	return all
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*AttachedDevice, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}
	return scanner.Scan(ctx)
}

// ScannerTypes returns the registered scanner types in order
func (sm *ScannerManager) ScannerTypes() []string {
	types := make([]string, 0, len(sm.scanners))
	for scannerType := range sm.scanners {
		types = append(types, scannerType)
	}
	sort.Strings(types)
	return types
}
