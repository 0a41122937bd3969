// Package config loads scoring-run configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/densityguard/pkg/detectors"
	"github.com/hed1ad/densityguard/pkg/report"
)

// Input formats.
const (
	FormatFlow = "flow"
	FormatCSV  = "csv"
	FormatPcap = "pcap"
)

// Algorithm selects one score to compute and its optional threshold.
type Algorithm struct {
	Name      string   `yaml:"name"`
	Threshold *float64 `yaml:"threshold,omitempty"`
}

// Log configures structured logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the metrics dump.
type Metrics struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// CSV configures the CSV reader.
type CSV struct {
	Categorical []string `yaml:"categorical,omitempty"`
	Key         string   `yaml:"key,omitempty"`
	Timestamp   string   `yaml:"timestamp,omitempty"`
}

// Pcap configures flow aggregation from packet captures.
type Pcap struct {
	Window time.Duration `yaml:"window"`
}

// MQTT configures the optional MQTT report sink.
type MQTT struct {
	Broker   string        `yaml:"broker,omitempty"`
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Config is the in-memory representation of a run configuration file.
type Config struct {
	Input      string      `yaml:"input,omitempty"`
	Format     string      `yaml:"format"`
	Limit      int         `yaml:"limit,omitempty"`
	Mode       string      `yaml:"mode"`
	Workers    int         `yaml:"workers,omitempty"`
	OutputDir  string      `yaml:"output_dir"`
	Algorithms []Algorithm `yaml:"algorithms,omitempty"`
	Log        Log         `yaml:"log"`
	Metrics    Metrics     `yaml:"metrics,omitempty"`
	CSV        CSV         `yaml:"csv,omitempty"`
	Pcap       Pcap        `yaml:"pcap"`
	MQTT       MQTT        `yaml:"mqtt"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Format:    FormatFlow,
		Mode:      report.All.String(),
		OutputDir: ".",
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Pcap: Pcap{
			Window: time.Minute,
		},
		MQTT: MQTT{
			Topic:    "densityguard",
			ClientID: "densityguard",
			Timeout:  10 * time.Second,
		},
	}
}

// Load reads path on top of the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides MQTT credentials from MQTT_BROKER, MQTT_USERNAME and
// MQTT_PASSWORD when they are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
}

// SetAlgorithm enables name, replacing any previous entry and its threshold.
func (c *Config) SetAlgorithm(name string, threshold *float64) {
	for i, a := range c.Algorithms {
		if a.Name == name {
			c.Algorithms[i].Threshold = threshold
			return
		}
	}
	c.Algorithms = append(c.Algorithms, Algorithm{Name: name, Threshold: threshold})
}

// Validate checks the configuration for values no run could use.
func (c *Config) Validate() error {
	var errs []error

	switch c.Format {
	case FormatFlow, FormatCSV, FormatPcap:
	default:
		errs = append(errs, fmt.Errorf("unknown input format %q", c.Format))
	}
	if c.Limit < 0 {
		errs = append(errs, errors.New("limit must not be negative"))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.New("workers must not be negative"))
	}
	if _, err := report.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if len(c.Algorithms) == 0 {
		errs = append(errs, errors.New("no algorithm selected"))
	}
	for _, a := range c.Algorithms {
		if _, err := detectors.ParseAlgorithm(a.Name); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Format == FormatPcap && c.Pcap.Window <= 0 {
		errs = append(errs, errors.New("pcap window must be positive"))
	}
	if c.MQTT.Broker != "" && c.MQTT.Timeout <= 0 {
		errs = append(errs, errors.New("mqtt timeout must be positive"))
	}

	return errors.Join(errs...)
}
