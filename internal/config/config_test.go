package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shutter-service/internal/model"
	"shutter-service/internal/protocol"
	"shutter-service/pkg/devicetypes"
)

const sampleConfig = `
server:
  port: "9090"
device:
  type: arduino
  transport: serial
  serial_port: /dev/ttyACM3
  timing:
    ready_read_timeout: 2s
measurement:
  warning_threshold: 3
  error_threshold: 8
publisher:
  type: mqtt
  mqtt:
    broker: tcp://broker:1883
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8084", cfg.GetServerAddr())
	assert.Equal(t, devicetypes.STM32, cfg.DeviceIdentity())
	assert.Equal(t, protocol.DefaultTiming(), cfg.ProtocolTiming())
	assert.Equal(t, model.DefaultDeviationThresholds(), cfg.DefaultThresholds())
	assert.Equal(t, 100*time.Millisecond, cfg.Measurement.ResetDelay)
	assert.Equal(t, PublisherNone, cfg.Publisher.Type)
	assert.Empty(t, cfg.ConfigFileUsed())

	transport := cfg.TransportConfig()
	assert.Equal(t, protocol.BackendUSB, transport.Backend)
	assert.Equal(t, 9600, transport.BaudRate)
	assert.Equal(t, protocol.DefaultTransferTimeout, transport.TransferTimeout)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFileUsed())
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, devicetypes.Arduino, cfg.DeviceIdentity())
	assert.Equal(t, "/dev/ttyACM3", cfg.TransportConfig().SerialPort)
	assert.Equal(t, 2*time.Second, cfg.ProtocolTiming().ReadyReadTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.ProtocolTiming().DataReadTimeout)
	assert.Equal(t, model.DeviationThresholds{Warning: 3, Error: 8}, cfg.DefaultThresholds())
	assert.Equal(t, "tcp://broker:1883", cfg.Publisher.MQTT.Broker)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHUTTER_SERVICE_DEVICE_TYPE", "Raspberry Pico")
	t.Setenv("SHUTTER_SERVICE_SERVER_PORT", "7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, devicetypes.RaspberryPico, cfg.DeviceIdentity())
	assert.Equal(t, "7000", cfg.Server.Port)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"unknown device":      "device:\n  type: esp32\n",
		"inverted thresholds": "measurement:\n  warning_threshold: 10\n  error_threshold: 5\n",
		"bad transport":       "device:\n  transport: bluetooth\n",
		"bad log level":       "logging:\n  level: verbose\n",
		"bad publisher":       "publisher:\n  type: amqp\n",
		"kafka without topic": "publisher:\n  type: kafka\n  kafka:\n    topic: \"\"\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestPreferencesUpdateAndPersist(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	prefs := NewPreferences(cfg, zaptest.NewLogger(t))
	assert.Equal(t, devicetypes.Arduino, prefs.DeviceIdentity())

	devices, cancel := prefs.SubscribeDevice()
	defer cancel()
	assert.Equal(t, devicetypes.Arduino, <-devices)

	identity, err := prefs.SetDeviceType("stm32")
	require.NoError(t, err)
	assert.Equal(t, devicetypes.STM32, identity)
	assert.Equal(t, devicetypes.STM32, <-devices)

	require.NoError(t, prefs.SetThresholds(model.DeviationThresholds{Warning: 2, Error: 4}))

	reread := viper.New()
	reread.SetConfigFile(path)
	require.NoError(t, reread.ReadInConfig())
	assert.Equal(t, "STM32", reread.GetString("device.type"))
	assert.Equal(t, 2.0, reread.GetFloat64("measurement.warning_threshold"))
	assert.Equal(t, 4.0, reread.GetFloat64("measurement.error_threshold"))
}

func TestPreferencesRejectInvalidUpdates(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	prefs := NewPreferences(cfg, zaptest.NewLogger(t))

	_, err = prefs.SetDeviceType("esp32")
	assert.Error(t, err)
	assert.Equal(t, devicetypes.STM32, prefs.DeviceIdentity())

	err = prefs.SetThresholds(model.DeviationThresholds{Warning: 10, Error: 10})
	assert.Error(t, err)
	err = prefs.SetThresholds(model.DeviationThresholds{Warning: -1, Error: 10})
	assert.Error(t, err)
	assert.Equal(t, model.DefaultDeviationThresholds(), prefs.Thresholds())

	// no file in use: updates stay in memory
	require.NoError(t, prefs.SetThresholds(model.DeviationThresholds{Warning: 1, Error: 2}))
	assert.Equal(t, model.DeviationThresholds{Warning: 1, Error: 2}, prefs.Thresholds())
}

func TestPreferencesReload(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	prefs := NewPreferences(cfg, zaptest.NewLogger(t))

	cfg.source.Set("device.type", "Raspberry Pico")
	cfg.source.Set("measurement.warning_threshold", 20.0)
	prefs.Reload()

	assert.Equal(t, devicetypes.RaspberryPico, prefs.DeviceIdentity())
	assert.Equal(t, model.DeviationThresholds{Warning: 3, Error: 8}, prefs.Thresholds(), "invalid thresholds are ignored")
}
