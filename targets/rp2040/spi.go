//go:build rp2040

package main

import (
	"errors"
	"machine"

	"spimhal/core"
)

// spiPins is one pin routing of a SPI controller
type spiPins struct {
	sck machine.Pin
	sdo machine.Pin // MOSI
	sdi machine.Pin // MISO
}

type spiRoute struct {
	spi  *machine.SPI
	pins spiPins
}

// Pin routings by name, as printed on most RP2040 board pinouts
var spiRoutes = map[string]spiRoute{
	"spi0a": {machine.SPI0, spiPins{sck: machine.GPIO2, sdo: machine.GPIO3, sdi: machine.GPIO0}},
	"spi0b": {machine.SPI0, spiPins{sck: machine.GPIO6, sdo: machine.GPIO7, sdi: machine.GPIO4}},
	"spi0c": {machine.SPI0, spiPins{sck: machine.GPIO18, sdo: machine.GPIO19, sdi: machine.GPIO16}},
	"spi0d": {machine.SPI0, spiPins{sck: machine.GPIO22, sdo: machine.GPIO23, sdi: machine.GPIO20}},
	"spi1a": {machine.SPI1, spiPins{sck: machine.GPIO10, sdo: machine.GPIO11, sdi: machine.GPIO8}},
	"spi1b": {machine.SPI1, spiPins{sck: machine.GPIO14, sdo: machine.GPIO15, sdi: machine.GPIO12}},
	"spi1c": {machine.SPI1, spiPins{sck: machine.GPIO26, sdo: machine.GPIO27, sdi: machine.GPIO24}},
}

var errUnknownRoute = errors.New("unknown SPI pin routing")

// hwBus drives one of the two PL022 SPI controllers. It implements
// core.SPIMBus; machine.SPI already accepts a nil w or r in Tx.
type hwBus struct {
	spi  *machine.SPI
	pins spiPins
}

func newHWBus(route string) (*hwBus, error) {
	r, ok := spiRoutes[route]
	if !ok {
		return nil, errUnknownRoute
	}
	return &hwBus{spi: r.spi, pins: r.pins}, nil
}

func (b *hwBus) Configure(cfg core.BusConfig) error {
	return b.spi.Configure(machine.SPIConfig{
		Frequency: cfg.Frequency,
		SCK:       b.pins.sck,
		SDO:       b.pins.sdo,
		SDI:       b.pins.sdi,
		Mode:      uint8(cfg.Mode),
	})
}

func (b *hwBus) Tx(w, r []byte) error { return b.spi.Tx(w, r) }

func (b *hwBus) Transfer(c byte) (byte, error) { return b.spi.Transfer(c) }

// newSoftBus bit-bangs the pins of a routing without claiming its controller
func newSoftBus(route string) (*core.SoftSPI, error) {
	r, ok := spiRoutes[route]
	if !ok {
		return nil, errUnknownRoute
	}
	return core.NewSoftSPI(rpGPIO{}, core.SoftSPIPins{
		SCK:  core.GPIOPin(r.pins.sck),
		MOSI: core.GPIOPin(r.pins.sdo),
		MISO: core.GPIOPin(r.pins.sdi),
	})
}
