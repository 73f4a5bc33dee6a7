package logging

import (
	"bytes"
	"testing"

	"go.viam.com/test"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "f4ctl")
	test.That(t, err, test.ShouldBeNil)

	logger.Infow("hidden")
	logger.Warnw("link stalled", "device", "/dev/ttyUSB0")
	test.That(t, buf.String(), test.ShouldNotContainSubstring, "hidden")
	test.That(t, buf.String(), test.ShouldContainSubstring, "link stalled")
	test.That(t, buf.String(), test.ShouldContainSubstring, "f4ctl")
	test.That(t, buf.String(), test.ShouldContainSubstring, "/dev/ttyUSB0")
}

func TestNewLoggerBadLevel(t *testing.T) {
	_, err := NewLogger(&bytes.Buffer{}, "loud", "f4ctl")
	test.That(t, err, test.ShouldNotBeNil)
}
