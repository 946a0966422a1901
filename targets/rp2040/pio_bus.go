//go:build rp2040

package main

import (
	"errors"
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"

	"spimhal/core"
)

var (
	errPIOMode       = errors.New("PIO SPI supports modes 0 and 1 only")
	errPIOModeLocked = errors.New("PIO SPI mode is fixed once configured")
)

// pioBus bit-bangs SPI from a PIO state machine, for boards whose slave is
// wired to pins no PL022 routing reaches.
type pioBus struct {
	sm   pio.StateMachine
	pins spiPins
	spi  *piolib.SPI
	cfg  core.BusConfig
}

func newPIOBus(route string) (*pioBus, error) {
	r, ok := spiRoutes[route]
	if !ok {
		return nil, errUnknownRoute
	}
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	return &pioBus{sm: sm, pins: r.pins}, nil
}

// Configure loads the SPI program for the first mode it is given. Later
// calls only retune the clock divider; the loaded program cannot be freed,
// so a different mode is refused rather than filling instruction memory.
func (b *pioBus) Configure(cfg core.BusConfig) error {
	if cfg.Mode > 1 {
		return errPIOMode
	}
	if b.spi != nil {
		if cfg.Mode != b.cfg.Mode {
			return errPIOModeLocked
		}
		whole, frac, err := pio.ClkDivFromFrequency(cfg.Frequency, machine.CPUFrequency())
		if err != nil {
			return err
		}
		b.sm.SetClkDiv(whole, frac)
		b.cfg = cfg
		return nil
	}
	spi, err := piolib.NewSPI(b.sm, machine.SPIConfig{
		Frequency: cfg.Frequency,
		SCK:       b.pins.sck,
		SDO:       b.pins.sdo,
		SDI:       b.pins.sdi,
		Mode:      uint8(cfg.Mode),
	})
	if err != nil {
		return err
	}
	b.spi = spi
	b.cfg = cfg
	return nil
}

// Tx pads the missing side, piolib wants equal lengths.
func (b *pioBus) Tx(w, r []byte) error {
	if b.spi == nil {
		return errNotConfigured
	}
	switch {
	case w == nil:
		w = make([]byte, len(r))
	case r == nil:
		r = make([]byte, len(w))
	}
	return b.spi.Tx(w, r)
}

func (b *pioBus) Transfer(c byte) (byte, error) {
	if b.spi == nil {
		return 0, errNotConfigured
	}
	return b.spi.Transfer(c)
}

var errNotConfigured = errors.New("bus not configured")
