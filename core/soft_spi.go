package core

import (
	"errors"
	"time"
)

// SoftSPIPins are the three data lines of a bit-banged bus
type SoftSPIPins struct {
	SCK  GPIOPin
	MOSI GPIOPin
	MISO GPIOPin
}

var errSoftSPIMode = errors.New("invalid SPI mode")

// SoftSPI is an SPIMBus that bit-bangs GPIOs, MSB first. It serves pins no
// hardware controller can reach.
type SoftSPI struct {
	gpio GPIOReader
	pins SoftSPIPins

	cpol, cpha bool
	halfPeriod time.Duration
	sleep      func(time.Duration)
}

// NewSoftSPI configures the pins and leaves the clock idle low until
// Configure.
func NewSoftSPI(gpio GPIOReader, pins SoftSPIPins) (*SoftSPI, error) {
	for _, p := range []GPIOPin{pins.SCK, pins.MOSI} {
		if err := gpio.ConfigureOutput(p); err != nil {
			return nil, err
		}
		if err := gpio.SetPin(p, false); err != nil {
			return nil, err
		}
	}
	if err := gpio.ConfigureInput(pins.MISO); err != nil {
		return nil, err
	}
	return &SoftSPI{gpio: gpio, pins: pins, sleep: time.Sleep}, nil
}

// Configure sets mode and half clock period. Below a microsecond the bus
// runs as fast as the GPIOs toggle.
func (s *SoftSPI) Configure(cfg BusConfig) error {
	if cfg.Mode > 3 {
		return errSoftSPIMode
	}
	s.cpol = cfg.Mode&2 != 0
	s.cpha = cfg.Mode&1 != 0
	s.halfPeriod = 0
	if cfg.Frequency > 0 {
		s.halfPeriod = time.Second / time.Duration(2*cfg.Frequency)
	}
	return s.gpio.SetPin(s.pins.SCK, s.cpol)
}

// Tx implements drivers.SPI. A nil w clocks out zeros; a nil r discards.
func (s *SoftSPI) Tx(w, r []byte) error {
	n := len(w)
	if w == nil {
		n = len(r)
	} else if r != nil && len(r) != len(w) {
		return errors.New("soft spi: buffer lengths differ")
	}
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		in, err := s.Transfer(out)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

// Transfer implements drivers.SPI.
func (s *SoftSPI) Transfer(b byte) (byte, error) {
	var in byte
	for bit := 7; bit >= 0; bit-- {
		v, err := s.clockBit(b&(1<<uint(bit)) != 0)
		if err != nil {
			return 0, err
		}
		if v {
			in |= 1 << uint(bit)
		}
	}
	return in, nil
}

// clockBit drives one bit out and samples one bit in. CPHA=0 samples on the
// leading edge, CPHA=1 on the trailing edge.
func (s *SoftSPI) clockBit(out bool) (bool, error) {
	g, p := s.gpio, s.pins
	active, idle := !s.cpol, s.cpol
	var in bool
	var err error

	if !s.cpha {
		if err = g.SetPin(p.MOSI, out); err != nil {
			return false, err
		}
		s.wait()
		if err = g.SetPin(p.SCK, active); err != nil {
			return false, err
		}
		if in, err = g.GetPin(p.MISO); err != nil {
			return false, err
		}
		s.wait()
		return in, g.SetPin(p.SCK, idle)
	}

	if err = g.SetPin(p.SCK, active); err != nil {
		return false, err
	}
	if err = g.SetPin(p.MOSI, out); err != nil {
		return false, err
	}
	s.wait()
	if err = g.SetPin(p.SCK, idle); err != nil {
		return false, err
	}
	if in, err = g.GetPin(p.MISO); err != nil {
		return false, err
	}
	s.wait()
	return in, nil
}

func (s *SoftSPI) wait() {
	if s.halfPeriod >= time.Microsecond {
		s.sleep(s.halfPeriod)
	}
}
