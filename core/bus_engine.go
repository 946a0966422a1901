package core

import (
	"errors"
	"math/bits"
	"sync"

	"tinygo.org/x/drivers"
)

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

// BusConfig is what the engine needs from the byte-level bus.
type BusConfig struct {
	Frequency uint32 // Hz
	Mode      SPIMode
}

// SPIMBus is a byte-level SPI bus: machine.SPI, a PIO program, a Linux spidev
// port. Tx follows the drivers.SPI contract, including nil w or r.
type SPIMBus interface {
	drivers.SPI

	// Configure applies clock and mode. Bit order is handled by the engine.
	Configure(cfg BusConfig) error
}

// ChipSelect drives slave select line (0 or 1).
type ChipSelect func(line uint8, asserted bool)

var errFrameTooLong = errors.New("frame exceeds data buffer")

// BusEngine implements the SPI master register block on top of an SPIMBus.
// Writing TransStart runs the programmed transaction synchronously; TRANS
// reads idle again when Set returns.
//
// Lock order is busMu then mu. A DMA stream holds only busMu while it moves
// data, so registers stay accessible during a long or stuck transfer.
type BusEngine struct {
	busMu sync.Mutex
	mu    sync.Mutex
	bus   SPIMBus
	cs   ChipSelect
	regs [registerSpan / 4]uint32

	applied   bool
	appliedTo BusConfig
	lastErr   error
}

// NewBusEngine creates an engine with every register at its power-on value.
// cs may be nil when the slave select is hard-wired.
func NewBusEngine(bus SPIMBus, cs ChipSelect) *BusEngine {
	e := &BusEngine{bus: bus, cs: cs}
	for _, info := range registerLayout {
		e.regs[info.reg/4] = info.reset
	}
	return e
}

// Get implements Registers.
func (e *BusEngine) Get(r Register) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(r/4) >= len(e.regs) {
		return 0
	}
	return e.regs[r/4]
}

// Set implements Registers.
func (e *BusEngine) Set(r Register, v uint32) {
	if r == RegTrans && v&TransStart != 0 {
		e.busMu.Lock()
		defer e.busMu.Unlock()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(r/4) >= len(e.regs) {
		return
	}
	if r != RegTrans {
		e.regs[r/4] = v
		return
	}
	// TRANS status bits are read-only; only START has an effect.
	if v&TransStart == 0 {
		return
	}
	e.regs[RegTrans/4] = TransBusy
	status := uint32(0)
	if err := e.run(); err != nil {
		e.lastErr = err
		status = TransError
		DebugPrintln("[SPIM] bus: " + err.Error())
	}
	e.regs[RegTrans/4] = status
}

// LastError returns the bus error behind the most recent TransError.
func (e *BusEngine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// run executes the transaction described by MOREBUF. Called with busMu and
// mu held.
func (e *BusEngine) run() error {
	master := e.regs[RegMaster/4]
	if err := e.apply(master); err != nil {
		return err
	}

	more := e.regs[RegMoreBuf/4]
	mosi := int((more&MoreBufMOSIMask)>>MoreBufMOSIPos) / 8
	miso := int((more&MoreBufMISOMask)>>MoreBufMISOPos) / 8
	full := master&MasterFullDuplex != 0

	limit := HalfDuplexMax
	if full {
		limit = FullDuplexMax
	}
	if mosi > limit || miso > limit {
		return errFrameTooLong
	}

	header := e.header(more)
	tx := e.unpack(0, mosi)

	line := slaveLine(master)
	e.selectSlave(line, true)
	defer e.selectSlave(line, false)

	lsb := master&MasterLSBFirst != 0
	if len(header) > 0 {
		if err := e.tx(header, nil, lsb); err != nil {
			return err
		}
	}

	if full {
		if mosi == 0 {
			return nil
		}
		rx := make([]byte, miso)
		if err := e.tx(tx, rx, lsb); err != nil {
			return err
		}
		e.pack(fullDuplexRxBase, rx)
		return nil
	}

	if mosi > 0 {
		if err := e.tx(tx, nil, lsb); err != nil {
			return err
		}
	}
	if miso > 0 {
		rx := make([]byte, miso)
		if err := e.tx(nil, rx, lsb); err != nil {
			return err
		}
		e.pack(0, rx)
	}
	return nil
}

// header assembles [ADDR_EXT][OPCODE bytes, MSB first].
func (e *BusEngine) header(more uint32) []byte {
	n := int((more&MoreBufCmdMask)>>MoreBufCmdPos) / 8
	if n > MaxCommandBytes {
		n = MaxCommandBytes
	}
	h := make([]byte, 0, n+1)
	if more&MoreBufAddrExtEn != 0 {
		h = append(h, byte(e.regs[RegAddrExt/4]))
	}
	op := e.regs[RegOpcode/4]
	for i := n - 1; i >= 0; i-- {
		h = append(h, byte(op>>(8*uint(i))))
	}
	return h
}

func (e *BusEngine) unpack(first, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(e.regs[RegData(first+i/4)/4] >> (8 * uint(i%4)))
	}
	return out
}

func (e *BusEngine) pack(first int, src []byte) {
	for i := 0; i < len(src); i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < len(src); j++ {
			w |= uint32(src[i+j]) << (8 * uint(j))
		}
		e.regs[RegData(first+i/4)/4] = w
	}
}

// apply reconfigures the bus when clock or mode changed since the last
// transaction.
func (e *BusEngine) apply(master uint32) error {
	s, divisor := masterSettings(master)
	cfg := BusConfig{Frequency: SourceClock / (divisor + 2), Mode: SPIMode(s.Mode())}
	if e.applied && cfg == e.appliedTo {
		return nil
	}
	if err := e.bus.Configure(cfg); err != nil {
		return err
	}
	e.applied = true
	e.appliedTo = cfg
	return nil
}

// tx runs one bus exchange.
func (e *BusEngine) tx(w, r []byte, lsb bool) error {
	return mirrored(e.bus.Tx, w, r, lsb)
}

// mirrored runs move, reversing the bits of every byte when the controller
// is set LSB first.
func mirrored(move DataMover, w, r []byte, lsb bool) error {
	if lsb && w != nil {
		m := make([]byte, len(w))
		for i, b := range w {
			m[i] = bits.Reverse8(b)
		}
		w = m
	}
	if err := move(w, r); err != nil {
		return err
	}
	if lsb {
		for i, b := range r {
			r[i] = bits.Reverse8(b)
		}
	}
	return nil
}

func (e *BusEngine) selectSlave(line uint8, asserted bool) {
	if e.cs != nil {
		e.cs(line, asserted)
	}
}

func slaveLine(master uint32) uint8 {
	if master&MasterSlaveSel != 0 {
		return 1
	}
	return 0
}

// DataMover moves the data phase of a DMA request. w or r may be nil as with
// drivers.SPI Tx.
type DataMover func(w, r []byte) error

// SoftwareDMA returns a DMAChannel that streams through the same bus from a
// goroutine. It serves buses without a hardware DMA path.
func (e *BusEngine) SoftwareDMA(maxTransfer int) DMAChannel {
	return &busDMA{e: e, max: maxTransfer}
}

// HardwareDMA returns a DMAChannel whose header still goes through the bus
// while the data phase is handed to move.
func (e *BusEngine) HardwareDMA(maxTransfer int, move DataMover) DMAChannel {
	return &busDMA{e: e, max: maxTransfer, move: move}
}

type busDMA struct {
	e    *BusEngine
	max  int
	move DataMover
}

func (d *busDMA) MaxTransfer() int { return d.max }

func (d *busDMA) Start(req DMARequest, done func(error)) error {
	if len(req.Data) > d.max {
		return errFrameTooLong
	}
	move := d.move
	if move == nil {
		move = d.e.bus.Tx
	}
	go func() {
		done(d.e.stream(req, move))
	}()
	return nil
}

// stream clocks a DMA request straight from and into the caller's buffer.
func (e *BusEngine) stream(req DMARequest, move DataMover) error {
	e.busMu.Lock()
	defer e.busMu.Unlock()

	e.mu.Lock()
	master := e.regs[RegMaster/4]
	err := e.apply(master)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	line := slaveLine(master)
	e.selectSlave(line, true)
	defer e.selectSlave(line, false)

	lsb := master&MasterLSBFirst != 0
	if len(req.Header) > 0 {
		if err := e.tx(req.Header, nil, lsb); err != nil {
			return err
		}
	}
	switch {
	case len(req.Data) == 0 || req.Dir == CommandOnly:
		return nil
	case req.FullDuplex:
		out := make([]byte, len(req.Data))
		copy(out, req.Data)
		if req.Dir == Read {
			return mirrored(move, out, req.Data, lsb)
		}
		return mirrored(move, out, make([]byte, len(out)), lsb)
	case req.Dir == Write:
		return mirrored(move, req.Data, nil, lsb)
	default:
		return mirrored(move, nil, req.Data, lsb)
	}
}
