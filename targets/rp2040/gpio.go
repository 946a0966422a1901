//go:build rp2040

package main

import (
	"errors"
	"machine"

	"spimhal/core"
)

const gpioCount = 30

var errInvalidPin = errors.New("invalid GPIO pin")

// rpGPIO drives slave select lines and the bit-banged bus
type rpGPIO struct{}

func (rpGPIO) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= gpioCount {
		return errInvalidPin
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

func (rpGPIO) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= gpioCount {
		return errInvalidPin
	}
	machine.Pin(pin).Set(value)
	return nil
}

func (rpGPIO) ConfigureInput(pin core.GPIOPin) error {
	if pin >= gpioCount {
		return errInvalidPin
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

func (rpGPIO) GetPin(pin core.GPIOPin) (bool, error) {
	if pin >= gpioCount {
		return false, errInvalidPin
	}
	return machine.Pin(pin).Get(), nil
}
