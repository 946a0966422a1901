//go:build rp2040

package main

import "machine"

// machine.Serial is the USB CDC-ACM port on RP2040 boards; TinyGo's runtime
// provides the descriptors.

func initUSB() error {
	return machine.Serial.Configure(machine.UARTConfig{})
}

func usbBuffered() int {
	return machine.Serial.Buffered()
}

func usbReadByte() (byte, error) {
	return machine.Serial.ReadByte()
}

func usbWrite(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
