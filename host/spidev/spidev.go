// Package spidev runs the controller core on a Linux host: a periph.io SPI
// port serves as the byte-level bus behind core.BusEngine.
package spidev

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"spimhal/core"
)

// defaultMaxTx is the spidev buffer size when the port does not report one
const defaultMaxTx = 4096

type opener func(name string) (spi.PortCloser, error)

// Bus is a core.SPIMBus over a periph.io SPI port.
//
// With chip select pins given, the kernel's own CS is disabled and the pins
// frame a whole transaction, so the header and the data phase reach the
// slave in one selection. Without them every Tx is its own selection.
type Bus struct {
	mu   sync.Mutex
	name string
	open opener

	port spi.PortCloser
	conn spi.Conn
	cfg  core.BusConfig

	cs    [2]gpio.PinOut
	maxTx int

	log zerolog.Logger
}

// Open initializes the periph host drivers and opens the named port ("" for
// the first one). csPins names up to two GPIOs used as slave select 0 and 1.
func Open(name string, csPins ...string) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("spidev: %w", err)
	}
	if len(csPins) > 2 {
		return nil, fmt.Errorf("spidev: at most two chip select pins")
	}
	var pins []gpio.PinOut
	for _, n := range csPins {
		p := gpioreg.ByName(n)
		if p == nil {
			return nil, fmt.Errorf("spidev: no GPIO named %q", n)
		}
		pins = append(pins, p)
	}
	return newBus(name, spireg.Open, pins...)
}

func newBus(name string, open opener, pins ...gpio.PinOut) (*Bus, error) {
	b := &Bus{name: name, open: open, maxTx: defaultMaxTx, log: zerolog.Nop()}
	for i, p := range pins {
		if err := p.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("spidev: cs%d: %w", i, err)
		}
		b.cs[i] = p
	}
	port, err := open(name)
	if err != nil {
		return nil, fmt.Errorf("spidev: %w", err)
	}
	b.port = port
	return b, nil
}

// SetLogger replaces the default no-op logger
func (b *Bus) SetLogger(l zerolog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = l
}

func (b *Bus) manualCS() bool {
	return b.cs[0] != nil
}

// Configure implements core.SPIMBus. A port connects once, so a change of
// clock or mode reopens it.
func (b *Bus) Configure(cfg core.BusConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		if cfg == b.cfg {
			return nil
		}
		b.log.Debug().Str("port", b.name).Msg("reopening for new clock or mode")
		b.conn = nil
		if err := b.port.Close(); err != nil {
			return fmt.Errorf("spidev: %w", err)
		}
		port, err := b.open(b.name)
		if err != nil {
			b.port = nil
			return fmt.Errorf("spidev: %w", err)
		}
		b.port = port
	}
	if b.port == nil {
		return fmt.Errorf("spidev: port closed")
	}

	mode := spi.Mode(cfg.Mode)
	if b.manualCS() {
		mode |= spi.NoCS
	}
	c, err := b.port.Connect(physic.Frequency(cfg.Frequency)*physic.Hertz, mode, 8)
	if err != nil {
		return fmt.Errorf("spidev: %w", err)
	}
	b.conn = c
	b.cfg = cfg
	b.maxTx = defaultMaxTx
	if lim, ok := c.(conn.Limits); ok && lim.MaxTxSize() > 0 {
		b.maxTx = lim.MaxTxSize()
	}
	b.log.Debug().
		Uint32("hz", cfg.Frequency).
		Uint8("mode", uint8(cfg.Mode)).
		Bool("manual_cs", b.manualCS()).
		Int("max_tx", b.maxTx).
		Msg("connected")
	return nil
}

// Tx implements drivers.SPI. Either buffer may be nil; transfers longer
// than the port limit are split.
func (b *Bus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("spidev: not configured")
	}

	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	if w == nil {
		w = make([]byte, n)
	}
	for off := 0; off < n; off += b.maxTx {
		end := off + b.maxTx
		if end > n {
			end = n
		}
		var rc []byte
		if r != nil {
			rc = r[off:end]
		}
		if err := b.conn.Tx(w[off:end], rc); err != nil {
			return fmt.Errorf("spidev: %w", err)
		}
	}
	return nil
}

// Transfer implements drivers.SPI
func (b *Bus) Transfer(w byte) (byte, error) {
	r := []byte{0}
	err := b.Tx([]byte{w}, r)
	return r[0], err
}

// ChipSelect returns the select function for core.NewBusEngine, or nil
// when the kernel drives chip select.
func (b *Bus) ChipSelect() core.ChipSelect {
	if !b.manualCS() {
		return nil
	}
	return func(line uint8, asserted bool) {
		if int(line) >= len(b.cs) || b.cs[line] == nil {
			return
		}
		level := gpio.High
		if asserted {
			level = gpio.Low
		}
		if err := b.cs[line].Out(level); err != nil {
			b.log.Warn().Err(err).Uint8("line", line).Msg("chip select")
		}
	}
}

// Close releases the port
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = nil
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}
