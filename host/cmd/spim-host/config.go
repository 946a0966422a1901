package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"spimhal/host/serial"
)

// profile holds connection settings. It comes from flags, optionally
// seeded from a YAML file given with --config:
//
//	device: /dev/ttyACM0
//	baud: 115200
//	spidev: SPI0.0          # local mode instead of device
//	cs: [GPIO8, GPIO7]
//	setup:
//	  - init msb|cpol0|cpha0 8
type profile struct {
	Device string   `yaml:"device"`
	Baud   int      `yaml:"baud"`
	SPIDev string   `yaml:"spidev"`
	CS     []string `yaml:"cs"`
	Setup  []string `yaml:"setup"` // shell lines run right after connecting
}

func defaultProfile() profile {
	return profile{Device: "/dev/ttyACM0", Baud: serial.DefaultBaud}
}

// loadProfile decodes path over p. Unknown keys are an error so typos do not
// go unnoticed.
func loadProfile(path string, p *profile) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if len(p.CS) > 2 {
		return fmt.Errorf("profile %s: at most two chip select pins", path)
	}
	return nil
}

// applyProfile copies every field of file whose flag was not given on the
// command line.
func applyProfile(dst *profile, file profile, changed func(flag string) bool) {
	if !changed("device") {
		dst.Device = file.Device
	}
	if !changed("baud") {
		dst.Baud = file.Baud
	}
	if !changed("spidev") {
		dst.SPIDev = file.SPIDev
	}
	if !changed("cs") {
		dst.CS = file.CS
	}
	dst.Setup = file.Setup
}
