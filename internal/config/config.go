// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"shutter-service/internal/model"
	"shutter-service/internal/protocol"
	"shutter-service/pkg/devicetypes"
)

// EnvPrefix is the prefix of environment overrides, e.g. SHUTTER_SERVICE_DEVICE_TYPE
const EnvPrefix = "SHUTTER_SERVICE"

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Security    SecurityConfig    `mapstructure:"security"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Device      DeviceConfig      `mapstructure:"device"`
	Measurement MeasurementConfig `mapstructure:"measurement"`
	Publisher   PublisherConfig   `mapstructure:"publisher"`
	App         AppConfig         `mapstructure:"app"`

	source *viper.Viper
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig represents the measuring board and its transport
type DeviceConfig struct {
	Type                 string        `mapstructure:"type"`
	Transport            string        `mapstructure:"transport"`
	SerialPort           string        `mapstructure:"serial_port"`
	BaudRate             int           `mapstructure:"baud_rate"`
	TransferTimeout      time.Duration `mapstructure:"transfer_timeout"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
	Timing               TimingConfig  `mapstructure:"timing"`
}

// TimingConfig holds the read timeouts and pacing of the measurement loop
type TimingConfig struct {
	ReadyReadTimeout  time.Duration `mapstructure:"ready_read_timeout"`
	DataReadTimeout   time.Duration `mapstructure:"data_read_timeout"`
	ReadyPollInterval time.Duration `mapstructure:"ready_poll_interval"`
	DataPollInterval  time.Duration `mapstructure:"data_poll_interval"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	ListenBackoff     time.Duration `mapstructure:"listen_backoff"`
}

// MeasurementConfig represents measurement defaults
type MeasurementConfig struct {
	WarningThreshold float64       `mapstructure:"warning_threshold"`
	ErrorThreshold   float64       `mapstructure:"error_threshold"`
	ResetDelay       time.Duration `mapstructure:"reset_delay"`
	AutoConnect      bool          `mapstructure:"auto_connect"`
}

// PublisherConfig selects where measurement events are sent
type PublisherConfig struct {
	Type        string      `mapstructure:"type"`
	TopicPrefix string      `mapstructure:"topic_prefix"`
	MQTT        MQTTConfig  `mapstructure:"mqtt"`
	Kafka       KafkaConfig `mapstructure:"kafka"`
}

// MQTTConfig represents MQTT broker configuration
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	Retained       bool          `mapstructure:"retained"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// KafkaConfig represents Kafka configuration
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	ClientID     string        `mapstructure:"client_id"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Publisher types
const (
	PublisherNone  = "none"
	PublisherMQTT  = "mqtt"
	PublisherKafka = "kafka"
)

// Load loads configuration from file and environment variables. configFile
// may be empty, in which case config.yaml is searched in the usual places;
// a missing file leaves the defaults in effect.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/shutter-service")
		v.AddConfigPath(".")
	}

	// Environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.source = v

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "shutter_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "file://migrations")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Device defaults
	timing := protocol.DefaultTiming()
	v.SetDefault("device.type", devicetypes.Default.Name)
	v.SetDefault("device.transport", protocol.BackendUSB)
	v.SetDefault("device.serial_port", "")
	v.SetDefault("device.baud_rate", protocol.DefaultBaudRate)
	v.SetDefault("device.transfer_timeout", protocol.DefaultTransferTimeout)
	v.SetDefault("device.max_consecutive_errors", timing.MaxConsecutiveErrors)
	v.SetDefault("device.timing.ready_read_timeout", timing.ReadyReadTimeout)
	v.SetDefault("device.timing.data_read_timeout", timing.DataReadTimeout)
	v.SetDefault("device.timing.ready_poll_interval", timing.ReadyPollInterval)
	v.SetDefault("device.timing.data_poll_interval", timing.DataPollInterval)
	v.SetDefault("device.timing.retry_delay", timing.RetryDelay)
	v.SetDefault("device.timing.listen_backoff", timing.ListenBackoff)

	// Measurement defaults
	thresholds := model.DefaultDeviationThresholds()
	v.SetDefault("measurement.warning_threshold", thresholds.Warning)
	v.SetDefault("measurement.error_threshold", thresholds.Error)
	v.SetDefault("measurement.reset_delay", "100ms")
	v.SetDefault("measurement.auto_connect", false)

	// Publisher defaults
	v.SetDefault("publisher.type", PublisherNone)
	v.SetDefault("publisher.topic_prefix", "shutter")
	v.SetDefault("publisher.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("publisher.mqtt.client_id", "shutter-service")
	v.SetDefault("publisher.mqtt.qos", 1)
	v.SetDefault("publisher.mqtt.retained", false)
	v.SetDefault("publisher.mqtt.connect_timeout", "10s")
	v.SetDefault("publisher.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("publisher.kafka.topic", "shutter.measurements")
	v.SetDefault("publisher.kafka.client_id", "shutter-service")
	v.SetDefault("publisher.kafka.batch_timeout", "10ms")
	v.SetDefault("publisher.kafka.write_timeout", "10s")

	// App defaults
	v.SetDefault("app.name", "shutter-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if _, ok := devicetypes.ByName(config.Device.Type); !ok {
		return fmt.Errorf("device.type must be one of: %v", devicetypes.Names())
	}
	if err := protocol.ValidateConfig(config.TransportConfig()); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if config.Device.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("device.max_consecutive_errors must be positive")
	}

	if err := config.DefaultThresholds().Validate(); err != nil {
		return fmt.Errorf("measurement: %w", err)
	}
	if config.Measurement.ResetDelay < 0 {
		return fmt.Errorf("measurement.reset_delay must not be negative")
	}

	switch config.Publisher.Type {
	case PublisherNone, "":
	case PublisherMQTT:
		if config.Publisher.MQTT.Broker == "" {
			return fmt.Errorf("publisher.mqtt.broker is required")
		}
		if config.Publisher.MQTT.QoS > 2 {
			return fmt.Errorf("publisher.mqtt.qos must be 0, 1 or 2")
		}
	case PublisherKafka:
		if len(config.Publisher.Kafka.Brokers) == 0 {
			return fmt.Errorf("publisher.kafka.brokers is required")
		}
		if config.Publisher.Kafka.Topic == "" {
			return fmt.Errorf("publisher.kafka.topic is required")
		}
	default:
		return fmt.Errorf("publisher.type must be one of: %v", []string{PublisherNone, PublisherMQTT, PublisherKafka})
	}

	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}

// ConfigFileUsed returns the file the configuration was read from, if any
func (c *Config) ConfigFileUsed() string {
	if c.source == nil {
		return ""
	}
	return c.source.ConfigFileUsed()
}

// TransportConfig returns the transport settings
func (c *Config) TransportConfig() protocol.Config {
	return protocol.Config{
		Backend:         c.Device.Transport,
		BaudRate:        c.Device.BaudRate,
		TransferTimeout: c.Device.TransferTimeout,
		SerialPort:      c.Device.SerialPort,
	}
}

// ProtocolTiming returns the measurement loop timing
func (c *Config) ProtocolTiming() protocol.Timing {
	return protocol.Timing{
		ReadyReadTimeout:     c.Device.Timing.ReadyReadTimeout,
		DataReadTimeout:      c.Device.Timing.DataReadTimeout,
		ReadyPollInterval:    c.Device.Timing.ReadyPollInterval,
		DataPollInterval:     c.Device.Timing.DataPollInterval,
		RetryDelay:           c.Device.Timing.RetryDelay,
		ListenBackoff:        c.Device.Timing.ListenBackoff,
		MaxConsecutiveErrors: c.Device.MaxConsecutiveErrors,
	}
}

// DefaultThresholds returns the configured deviation thresholds
func (c *Config) DefaultThresholds() model.DeviationThresholds {
	return model.DeviationThresholds{
		Warning: c.Measurement.WarningThreshold,
		Error:   c.Measurement.ErrorThreshold,
	}
}

// DeviceIdentity returns the configured board, falling back to the default
func (c *Config) DeviceIdentity() devicetypes.Identity {
	if id, ok := devicetypes.ByName(c.Device.Type); ok {
		return id
	}
	return devicetypes.Default
}
