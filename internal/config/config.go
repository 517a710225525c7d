package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "OFM"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Modbus       ModbusConfig       `mapstructure:"modbus"`
	Poller       PollerConfig       `mapstructure:"poller"`
	MachineTypes MachineTypesConfig `mapstructure:"machine_types"`
	Machines     []MachineConfig    `mapstructure:"machines"`
	Relay        RelayConfig        `mapstructure:"relay"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	SQLitePath     string `mapstructure:"sqlite_path"`
}

type ModbusConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	BackupReadDelay time.Duration `mapstructure:"backup_read_delay"`
}

type PollerConfig struct {
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	MachineDelay time.Duration `mapstructure:"machine_delay"`
	WarmupDelay  time.Duration `mapstructure:"warmup_delay"`
}

type MachineTypesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

// MachineConfig provisions a machine at startup. Runtime state of an
// existing machine is kept; only these fields are refreshed.
type MachineConfig struct {
	MachineID string `mapstructure:"machine_id"`
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	UserID    string `mapstructure:"user_id"`
	IPAddress string `mapstructure:"ip_address"`
	Port      int    `mapstructure:"port"`
	SlaveID   uint8  `mapstructure:"slave_id"`
}

type RelayConfig struct {
	BufferSize int           `mapstructure:"buffer_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MQTT       MQTTConfig    `mapstructure:"mqtt"`
	Kafka      KafkaConfig   `mapstructure:"kafka"`
	Influx     InfluxConfig  `mapstructure:"influx"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads the YAML file at path, if it exists, on top of the defaults.
// Every key can be overridden from the environment, e.g.
// OFM_POLLER_SCAN_INTERVAL=10s.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "openfillmonitor")
	v.SetDefault("database.user", "openfillmonitor")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.sqlite_path", "openfillmonitor.db")

	v.SetDefault("modbus.port", 502)
	v.SetDefault("modbus.read_timeout", "8s")
	v.SetDefault("modbus.backup_read_delay", "200ms")

	v.SetDefault("poller.scan_interval", "30s")
	v.SetDefault("poller.machine_delay", "500ms")
	v.SetDefault("poller.warmup_delay", "5s")

	v.SetDefault("machine_types.search_paths", []string{})

	v.SetDefault("relay.buffer_size", 256)
	v.SetDefault("relay.timeout", "5s")
	v.SetDefault("relay.mqtt.enabled", false)
	v.SetDefault("relay.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("relay.mqtt.client_id", "openfillmonitor")
	v.SetDefault("relay.mqtt.username", "")
	v.SetDefault("relay.mqtt.password", "")
	v.SetDefault("relay.mqtt.topic_prefix", "openfillmonitor")
	v.SetDefault("relay.mqtt.qos", 0)
	v.SetDefault("relay.kafka.enabled", false)
	v.SetDefault("relay.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("relay.kafka.topic", "openfillmonitor.events")
	v.SetDefault("relay.influx.enabled", false)
	v.SetDefault("relay.influx.url", "http://localhost:8086")
	v.SetDefault("relay.influx.token", "")
	v.SetDefault("relay.influx.org", "")
	v.SetDefault("relay.influx.bucket", "openfillmonitor")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Poller.ScanInterval <= 0 {
		return fmt.Errorf("poller.scan_interval must be positive")
	}
	if c.Modbus.ReadTimeout <= 0 {
		return fmt.Errorf("modbus.read_timeout must be positive")
	}
	if c.Relay.BufferSize <= 0 {
		return fmt.Errorf("relay.buffer_size must be positive")
	}
	seen := make(map[string]bool, len(c.Machines))
	for _, m := range c.Machines {
		if m.MachineID == "" || m.IPAddress == "" {
			return fmt.Errorf("machines: machine_id and ip_address are required")
		}
		if seen[m.MachineID] {
			return fmt.Errorf("machines: duplicate machine_id %s", m.MachineID)
		}
		seen[m.MachineID] = true
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
