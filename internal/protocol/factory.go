// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// CreateTransport creates a transport for the configured backend
func CreateTransport(config Config, logger *zap.Logger) (Transport, error) {
	config = config.withDefaults()
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Backend {
	case BackendUSB:
		logger.Info("Creating USB transport",
			zap.Int("baud_rate", config.BaudRate),
			zap.Duration("transfer_timeout", config.TransferTimeout),
		)
		return NewUSBTransport(config, logger), nil
	case BackendSerial:
		logger.Info("Creating serial transport",
			zap.Int("baud_rate", config.BaudRate),
			zap.String("port", config.SerialPort),
		)
		return NewSerialTransport(config, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport backend: %s", config.Backend)
	}
}

// ValidateConfig validates transport configuration
func ValidateConfig(config Config) error {
	switch strings.ToLower(config.Backend) {
	case BackendUSB, BackendSerial, "":
	default:
		return fmt.Errorf("unsupported transport backend: %s", config.Backend)
	}

	if config.BaudRate != 0 {
		valid := false
		for _, rate := range validBaudRates {
			if config.BaudRate == rate {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid baud rate: %d", config.BaudRate)
		}
	}

	if config.TransferTimeout < 0 || config.TransferTimeout > 10*time.Second {
		return fmt.Errorf("invalid transfer timeout: %s", config.TransferTimeout)
	}

	return nil
}
