// Package serial opens the link to the board.
package serial

import "io"

// Port is an open serial link. Read returns (0, nil) when the read timeout
// expires without data, so callers can poll.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string
	Baud   int
	// ReadTimeout in milliseconds; 0 blocks.
	ReadTimeout int
}

const (
	DefaultBaud        = 250000
	DefaultReadTimeout = 100
)

// DefaultConfig returns the configuration the firmware's UART expects.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}
