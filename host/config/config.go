// Package config loads the host tool's YAML configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"f4periph/host/serial"
)

const (
	ConfigDir  = ".f4ctl"
	ConfigFile = "config.yaml"

	DefaultDevice     = "/dev/ttyUSB0"
	DefaultAckTimeout = 500 * time.Millisecond
	DefaultLogLevel   = "info"
)

// ErrConfigFileExists is returned by Persist when it would overwrite a file.
type ErrConfigFileExists struct {
	Path string
}

func (e ErrConfigFileExists) Error() string {
	return "config file " + e.Path + " already exists"
}

// Duration is a time.Duration written as a string such as "500ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Serial is the link section.
type Serial struct {
	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`
	// ReadTimeout of the port in milliseconds.
	ReadTimeout int `json:"readTimeout,omitempty"`
	// AckTimeout bounds the wait for the firmware's acknowledgement.
	AckTimeout Duration `json:"ackTimeout,omitempty"`
}

// Config is the host tool configuration.
type Config struct {
	Serial   Serial `json:"serial"`
	LogLevel string `json:"logLevel,omitempty"`

	path string
}

// NewDefaultConfig returns a configuration bound to the default path.
func NewDefaultConfig() *Config {
	c := &Config{path: DefaultConfigPath()}
	c.applyDefaults()
	return c
}

// DefaultConfigPath is ~/.f4ctl/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

// Path returns the file the configuration is bound to.
func (c *Config) Path() string {
	return c.path
}

// SetPath binds the configuration to another file.
func (c *Config) SetPath(path string) {
	c.path = path
}

// Load reads the bound file if it exists. A missing file leaves the defaults.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading %s", c.path)
	}
	if err := Parse(data, c); err != nil {
		return errors.Wrapf(err, "parsing %s", c.path)
	}
	return nil
}

// Parse decodes YAML into c and fills unset fields with defaults.
func Parse(data []byte, c *Config) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	c.applyDefaults()
	return nil
}

// Persist writes the configuration to its bound file.
func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.path); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.path}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// SerialConfig converts the link section for the serial package.
func (c *Config) SerialConfig() *serial.Config {
	return &serial.Config{
		Device:      c.Serial.Device,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.Serial.Device == "" {
		c.Serial.Device = DefaultDevice
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = serial.DefaultBaud
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = serial.DefaultReadTimeout
	}
	if c.Serial.AckTimeout.Duration == 0 {
		c.Serial.AckTimeout.Duration = DefaultAckTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}
