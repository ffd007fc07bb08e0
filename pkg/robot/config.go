package robot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when no --config is given.
const DefaultConfigFile = "waferbot.yaml"

// Config holds the cell configuration.
type Config struct {
	Motion    MotionConfig    `yaml:"motion"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Driver    DriverConfig    `yaml:"driver"`
	Store     StoreConfig     `yaml:"store"`
	Station   StationConfig   `yaml:"station"`
	Messaging MessagingConfig `yaml:"messaging"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
}

// MotionConfig controls joint animation timing.
type MotionConfig struct {
	Duration time.Duration `yaml:"duration"` // per composite move
	Step     time.Duration `yaml:"step"`     // simulator tick
}

// TransferConfig bounds the station signal wait of Pick and Place.
type TransferConfig struct {
	SignalTimeout time.Duration `yaml:"signal_timeout"`
	SignalPoll    time.Duration `yaml:"signal_poll"`
}

// DriverConfig selects the joint backend.
type DriverConfig struct {
	Kind        string      `yaml:"kind"` // sim or feetech
	Port        string      `yaml:"port"`
	BaudRate    int         `yaml:"baudrate"`
	Tolerance   int         `yaml:"tolerance"` // raw counts
	Calibration Calibration `yaml:"calibration,omitempty"`
}

// IsCalibrated returns true if the driver has calibration data
func (d *DriverConfig) IsCalibrated() bool {
	return len(d.Calibration) > 0
}

// StoreConfig selects the pose store.
type StoreConfig struct {
	Kind   string       `yaml:"kind"` // sqlite, redis or memory
	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

// SQLiteConfig locates the pose database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig addresses the redis pose store.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StationConfig selects the station presence signal.
type StationConfig struct {
	Kind   string              `yaml:"kind"` // sim, mqtt or modbus
	MQTT   StationMQTTConfig   `yaml:"mqtt"`
	Modbus StationModbusConfig `yaml:"modbus"`
}

// StationMQTTConfig names the topics of an MQTT station signal.
type StationMQTTConfig struct {
	CommandTopic string `yaml:"command_topic"`
	StateTopic   string `yaml:"state_topic"`
}

// StationModbusConfig addresses the station PLC. An Address containing a
// colon selects Modbus TCP, anything else is a serial device for RTU.
type StationModbusConfig struct {
	Address  string        `yaml:"address"`
	BaudRate int           `yaml:"baudrate"`
	SlaveID  byte          `yaml:"slave_id"`
	Coil     uint16        `yaml:"coil"`
	Input    uint16        `yaml:"input"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MessagingConfig configures event publishing and the MQTT station signal.
type MessagingConfig struct {
	Backend    string      `yaml:"backend"` // empty, mqtt or kafka
	MQTT       MQTTConfig  `yaml:"mqtt"`
	Kafka      KafkaConfig `yaml:"kafka"`
	EventTopic string      `yaml:"event_topic"`
}

// MQTTConfig connects the MQTT client.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig connects the Kafka event publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// WebConfig configures the HTTP and websocket server.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// LogConfig selects the log level and the development encoder.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Defaults returns a configuration that runs entirely in simulation.
func Defaults() *Config {
	return &Config{
		Motion: MotionConfig{
			Duration: 800 * time.Millisecond,
			Step:     10 * time.Millisecond,
		},
		Transfer: TransferConfig{
			SignalTimeout: 5 * time.Second,
			SignalPoll:    50 * time.Millisecond,
		},
		Driver: DriverConfig{
			Kind:      "sim",
			BaudRate:  1_000_000,
			Tolerance: 20,
		},
		Store: StoreConfig{
			Kind:   "sqlite",
			SQLite: SQLiteConfig{Path: "waferbot.db"},
			Redis:  RedisConfig{Address: "localhost:6379"},
		},
		Station: StationConfig{
			Kind: "sim",
			MQTT: StationMQTTConfig{
				CommandTopic: "waferbot/station/command",
				StateTopic:   "waferbot/station/state",
			},
			Modbus: StationModbusConfig{
				Address:  "/dev/ttyUSB1",
				BaudRate: 19200,
				SlaveID:  1,
				Timeout:  time.Second,
			},
		},
		Messaging: MessagingConfig{
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "waferbot",
			},
			Kafka:      KafkaConfig{Brokers: []string{"localhost:9092"}},
			EventTopic: "waferbot.events",
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. A missing file
// yields the defaults.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
