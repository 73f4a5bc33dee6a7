package config

import (
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"f4periph/host/serial"
)

func TestParseDefaults(t *testing.T) {
	var c Config
	err := Parse([]byte("serial:\n  device: /dev/ttyACM1\n"), &c)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Serial.Device, test.ShouldEqual, "/dev/ttyACM1")
	test.That(t, c.Serial.Baud, test.ShouldEqual, serial.DefaultBaud)
	test.That(t, c.Serial.AckTimeout.Duration, test.ShouldEqual, DefaultAckTimeout)
	test.That(t, c.LogLevel, test.ShouldEqual, DefaultLogLevel)
}

func TestParseDuration(t *testing.T) {
	var c Config
	err := Parse([]byte("serial:\n  ackTimeout: 2s\nlogLevel: debug\n"), &c)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Serial.AckTimeout.Duration, test.ShouldEqual, 2*time.Second)
	test.That(t, c.LogLevel, test.ShouldEqual, "debug")

	err = Parse([]byte("serial:\n  ackTimeout: soon\n"), &c)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigDir, ConfigFile)

	c := NewDefaultConfig()
	c.SetPath(path)
	c.Serial.Device = "/dev/ttyUSB3"
	c.Serial.AckTimeout.Duration = time.Second
	test.That(t, c.Persist(false), test.ShouldBeNil)

	err := c.Persist(false)
	test.That(t, err, test.ShouldBeError, ErrConfigFileExists{Path: path})
	test.That(t, c.Persist(true), test.ShouldBeNil)

	loaded := NewDefaultConfig()
	loaded.SetPath(path)
	test.That(t, loaded.Load(), test.ShouldBeNil)
	test.That(t, loaded.Serial.Device, test.ShouldEqual, "/dev/ttyUSB3")
	test.That(t, loaded.Serial.AckTimeout.Duration, test.ShouldEqual, time.Second)
	test.That(t, loaded.SerialConfig().Device, test.ShouldEqual, "/dev/ttyUSB3")
}

func TestLoadMissingFile(t *testing.T) {
	c := NewDefaultConfig()
	c.SetPath(filepath.Join(t.TempDir(), "absent.yaml"))
	test.That(t, c.Load(), test.ShouldBeNil)
	test.That(t, c.Serial.Device, test.ShouldEqual, DefaultDevice)
}
