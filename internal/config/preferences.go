// internal/config/preferences.go
package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"shutter-service/internal/model"
	"shutter-service/internal/state"
	"shutter-service/pkg/devicetypes"
)

// Preferences holds the user-selectable settings: the measuring board and the
// deviation thresholds. Both are observable and persisted to the config file
// when one is in use.
type Preferences struct {
	v      *viper.Viper
	logger *zap.Logger
	mutex  sync.Mutex

	device     *state.Published[devicetypes.Identity]
	thresholds *state.Published[model.DeviationThresholds]
}

// NewPreferences creates preferences seeded from cfg
func NewPreferences(cfg *Config, logger *zap.Logger) *Preferences {
	v := cfg.source
	if v == nil {
		v = viper.New()
	}

	return &Preferences{
		v:          v,
		logger:     logger.With(zap.String("component", "preferences")),
		device:     state.NewPublished(cfg.DeviceIdentity()),
		thresholds: state.NewPublished(cfg.DefaultThresholds()),
	}
}

// DeviceIdentity returns the selected board
func (p *Preferences) DeviceIdentity() devicetypes.Identity {
	return p.device.Load()
}

// SetDeviceType selects a supported board by name
func (p *Preferences) SetDeviceType(name string) (devicetypes.Identity, error) {
	identity, ok := devicetypes.ByName(name)
	if !ok {
		return devicetypes.Identity{}, fmt.Errorf("unsupported device type %q, expected one of %v", name, devicetypes.Names())
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.device.Store(identity)
	p.v.Set("device.type", identity.Name)
	p.logger.Info("Device type updated", zap.Stringer("device", identity))

	return identity, p.persistLocked()
}

// SubscribeDevice follows the selected board
func (p *Preferences) SubscribeDevice() (<-chan devicetypes.Identity, func()) {
	return p.device.Subscribe()
}

// Thresholds returns the deviation thresholds
func (p *Preferences) Thresholds() model.DeviationThresholds {
	return p.thresholds.Load()
}

// SetThresholds validates and stores new thresholds
func (p *Preferences) SetThresholds(thresholds model.DeviationThresholds) error {
	if err := thresholds.Validate(); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.thresholds.Store(thresholds)
	p.v.Set("measurement.warning_threshold", thresholds.Warning)
	p.v.Set("measurement.error_threshold", thresholds.Error)
	p.logger.Info("Deviation thresholds updated",
		zap.Float64("warning", thresholds.Warning),
		zap.Float64("error", thresholds.Error),
	)

	return p.persistLocked()
}

// SubscribeThresholds follows the deviation thresholds
func (p *Preferences) SubscribeThresholds() (<-chan model.DeviationThresholds, func()) {
	return p.thresholds.Subscribe()
}

// Watch reloads the preferences whenever the config file changes
func (p *Preferences) Watch() {
	if p.v.ConfigFileUsed() == "" {
		p.logger.Debug("No config file in use, preferences are not watched")
		return
	}

	p.v.OnConfigChange(func(e fsnotify.Event) {
		p.logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		p.Reload()
	})
	p.v.WatchConfig()
}

// Reload re-reads the preferences from the underlying configuration. Invalid
// values are logged and ignored.
func (p *Preferences) Reload() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	name := p.v.GetString("device.type")
	if identity, ok := devicetypes.ByName(name); !ok {
		p.logger.Warn("Ignoring unsupported device type", zap.String("device_type", name))
	} else if identity != p.device.Load() {
		p.device.Store(identity)
		p.logger.Info("Device type reloaded", zap.Stringer("device", identity))
	}

	thresholds := model.DeviationThresholds{
		Warning: p.v.GetFloat64("measurement.warning_threshold"),
		Error:   p.v.GetFloat64("measurement.error_threshold"),
	}
	if err := thresholds.Validate(); err != nil {
		p.logger.Warn("Ignoring invalid deviation thresholds", zap.Error(err))
	} else if thresholds != p.thresholds.Load() {
		p.thresholds.Store(thresholds)
		p.logger.Info("Deviation thresholds reloaded",
			zap.Float64("warning", thresholds.Warning),
			zap.Float64("error", thresholds.Error),
		)
	}
}

func (p *Preferences) persistLocked() error {
	if p.v.ConfigFileUsed() == "" {
		return nil
	}
	if err := p.v.WriteConfig(); err != nil {
		p.logger.Error("Failed to persist preferences", zap.Error(err))
		return fmt.Errorf("failed to persist preferences: %w", err)
	}
	return nil
}
