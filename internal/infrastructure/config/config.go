package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied before the YAML file is read.
const (
	DefaultTopic       = "lightify"
	DefaultClientID    = "mqtt-lightify"
	DefaultBrokerPort  = 1883
	DefaultGatewayPort = 4000
)

// Config is the root configuration structure shared by mqtt-lightify and mqtt-archive.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Lightify LightifyConfig `yaml:"lightify"`
	History  HistoryConfig  `yaml:"history"`
	API      APIConfig      `yaml:"api"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// LightifyConfig contains the lighting gateway and topic settings.
type LightifyConfig struct {
	Host        string            `yaml:"host"`
	Port        int               `yaml:"port"`
	Topic       string            `yaml:"topic"`
	Transitions TransitionsConfig `yaml:"transitions"`
}

// TransitionsConfig holds per-datapoint transition times in tenths of a second.
type TransitionsConfig struct {
	Lum  int `yaml:"lum"`
	Temp int `yaml:"temp"`
	RGB  int `yaml:"rgb"`
}

// HistoryConfig contains the SQLite command history settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the optional HTTP health/metrics server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ArchiveConfig contains the sensor archive settings used by mqtt-archive.
type ArchiveConfig struct {
	Subscribe     string              `yaml:"subscribe"`
	SourceKey     string              `yaml:"source_key"`
	Topics        map[string]string   `yaml:"topics"`
	Backend       string              `yaml:"backend"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
}

// ElasticsearchConfig contains Elasticsearch connection settings.
type ElasticsearchConfig struct {
	Addresses   []string `yaml:"addresses"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	IndexPrefix string   `yaml:"index_prefix"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Archive backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendInfluxDB      = "influxdb"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// When optional is true a missing file is not an error and the defaults
// plus environment are used, so the bridge can run without any file.
func Load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
		// defaults + environment only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "127.0.0.1",
				Port:     DefaultBrokerPort,
				ClientID: DefaultClientID,
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Lightify: LightifyConfig{
			Host:  "127.0.0.1",
			Port:  DefaultGatewayPort,
			Topic: DefaultTopic,
		},
		History: HistoryConfig{
			Path:        "./data/history.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 9108,
		},
		Archive: ArchiveConfig{
			Subscribe: "hm/status/#",
			SourceKey: "hm",
			Backend:   BackendElasticsearch,
			Elasticsearch: ElasticsearchConfig{
				Addresses:   []string{"http://127.0.0.1:9200"},
				IndexPrefix: "hm",
			},
			InfluxDB: InfluxDBConfig{
				BatchSize:     100,
				FlushInterval: 10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// BROKER_ADDRESS and BRIDGE_ADDRESS keep their historical names; everything
// else follows LIGHTIFY_SECTION_KEY.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BROKER_ADDRESS"); v != "" {
		if err := cfg.SetBrokerAddress(v); err != nil {
			return fmt.Errorf("BROKER_ADDRESS: %w", err)
		}
	}
	if v := os.Getenv("BRIDGE_ADDRESS"); v != "" {
		if err := cfg.SetBridgeAddress(v); err != nil {
			return fmt.Errorf("BRIDGE_ADDRESS: %w", err)
		}
	}

	if v := os.Getenv("LIGHTIFY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIGHTIFY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("LIGHTIFY_TOPIC"); v != "" {
		cfg.Lightify.Topic = v
	}
	if v := os.Getenv("LIGHTIFY_INFLUXDB_TOKEN"); v != "" {
		cfg.Archive.InfluxDB.Token = v
	}
	if v := os.Getenv("LIGHTIFY_ELASTICSEARCH_PASSWORD"); v != "" {
		cfg.Archive.Elasticsearch.Password = v
	}
	return nil
}

// SetBrokerAddress sets the broker host (and port, if given) from "host" or "host:port".
func (c *Config) SetBrokerAddress(addr string) error {
	host, port, err := splitAddress(addr, c.MQTT.Broker.Port)
	if err != nil {
		return err
	}
	c.MQTT.Broker.Host = host
	c.MQTT.Broker.Port = port
	return nil
}

// SetBridgeAddress sets the gateway host (and port, if given) from "host" or "host:port".
func (c *Config) SetBridgeAddress(addr string) error {
	host, port, err := splitAddress(addr, c.Lightify.Port)
	if err != nil {
		return err
	}
	c.Lightify.Host = host
	c.Lightify.Port = port
	return nil
}

func splitAddress(addr string, defaultPort int) (string, int, error) {
	if !strings.Contains(addr, ":") {
		return addr, defaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Lightify.Topic == "" {
		errs = append(errs, "lightify.topic is required")
	} else if strings.ContainsAny(c.Lightify.Topic, "+#") {
		errs = append(errs, "lightify.topic must not contain MQTT wildcards")
	}
	if c.Lightify.Port < 1 || c.Lightify.Port > 65535 {
		errs = append(errs, "lightify.port must be between 1 and 65535")
	}
	t := c.Lightify.Transitions
	if t.Lum < 0 || t.Temp < 0 || t.RGB < 0 {
		errs = append(errs, "lightify.transitions must not be negative")
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.Archive.Backend {
	case BackendElasticsearch, BackendInfluxDB:
	default:
		errs = append(errs, fmt.Sprintf("archive.backend %q is not supported", c.Archive.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerURL returns the paho broker URL (tcp:// or ssl://).
func (c MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(c.Broker.Host, strconv.Itoa(c.Broker.Port)))
}

// GatewayAddress returns the host:port of the lighting gateway.
func (c LightifyConfig) GatewayAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetAPIAddress returns the listen address for the HTTP server.
func (c APIConfig) GetAPIAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetFlushInterval returns the InfluxDB flush interval as a Duration.
func (c InfluxDBConfig) GetFlushInterval() time.Duration {
	return time.Duration(c.FlushInterval) * time.Second
}
