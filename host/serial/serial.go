// Package serial opens the firmware console port.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud matches the UART console of the firmware
const DefaultBaud = 115200

var (
	ErrNoDevice = errors.New("no serial device given")
	ErrBaud     = errors.New("baud rate must be positive")
)

// Port is an open console port. Tests substitute in-process pipes.
type Port interface {
	io.ReadWriteCloser

	// Flush discards anything buffered but not yet transferred
	Flush() error
}

// Config describes the port. USB CDC ignores Baud.
type Config struct {
	Device      string // "/dev/ttyACM0", "COM3"
	Baud        int
	ReadTimeout time.Duration // zero blocks
}

// DefaultConfig returns the console configuration for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 50 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	switch {
	case c == nil || c.Device == "":
		return ErrNoDevice
	case c.Baud <= 0:
		return ErrBaud
	}
	return nil
}

type tarmPort struct {
	*serial.Port
	device string
}

func (p *tarmPort) String() string { return p.device }

// Open opens cfg.Device and drops whatever the device sent before we were
// listening.
func Open(cfg *Config) (Port, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", cfg.Device, err)
	}
	return &tarmPort{Port: port, device: cfg.Device}, nil
}
