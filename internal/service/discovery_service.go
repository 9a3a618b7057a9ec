// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shutter-service/internal/discovery"
	"shutter-service/internal/utils"
	"shutter-service/pkg/devicetypes"
)

// ScanResult lists the supported boards attached to the host
type ScanResult struct {
	Devices          []*discovery.AttachedDevice `json:"devices"`
	DevicesFound     int                         `json:"devices_found"`
	Selected         devicetypes.Identity        `json:"selected"`
	SelectedAttached bool                        `json:"selected_attached"`
	ScanDuration     string                      `json:"scan_duration"`
}

// DiscoveryService finds attached measuring boards
type DiscoveryService struct {
	scannerManager *discovery.ScannerManager
	settings       Settings
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(scannerManager *discovery.ScannerManager, settings Settings, logger *zap.Logger) *DiscoveryService {
	return &DiscoveryService{
		scannerManager: scannerManager,
		settings:       settings,
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}
}

// ScanDevices runs the scanner named by scanType, or all of them for "" and "all"
func (ds *DiscoveryService) ScanDevices(ctx context.Context, scanType string) (*ScanResult, error) {
	startTime := time.Now()
	scanType = strings.ToLower(strings.TrimSpace(scanType))

	var devices []*discovery.AttachedDevice
	switch scanType {
	case "", "all":
		devices = ds.scannerManager.ScanAll(ctx)
	default:
		if !ds.hasScanner(scanType) {
			return nil, fmt.Errorf("%w: scan type must be one of all, %s", ErrValidation, strings.Join(ds.scannerManager.ScannerTypes(), ", "))
		}
		var err error
		if devices, err = ds.scannerManager.ScanByType(ctx, scanType); err != nil {
			return nil, fmt.Errorf("failed to scan %s devices: %w", scanType, err)
		}
	}

	if devices == nil {
		devices = []*discovery.AttachedDevice{}
	}

	selected := ds.settings.DeviceIdentity()
	result := &ScanResult{
		Devices:      devices,
		DevicesFound: len(devices),
		Selected:     selected,
		ScanDuration: time.Since(startTime).String(),
	}
	for _, device := range devices {
		if device.Device == selected {
			result.SelectedAttached = true
			break
		}
	}

	ds.logger.Info("Device scan completed",
		zap.String("scan_type", scanType),
		zap.Int("devices_found", result.DevicesFound),
		zap.Bool("selected_attached", result.SelectedAttached),
	)
	return result, nil
}

func (ds *DiscoveryService) hasScanner(scanType string) bool {
	for _, t := range ds.scannerManager.ScannerTypes() {
		if t == scanType {
			return true
		}
	}
	return false
}
