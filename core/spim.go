// SPI master (SPIM) controller
// Command/address/data transfers over a single hardware transaction engine,
// with a CPU polling backend and a DMA backend sharing one busy gate.
package core

import (
	"io"
	"sync"
	"time"
)

// Session owns one SPI master controller. It is created by the platform and
// passed to whoever needs the bus; there is no package-level instance.
//
// Init, Reset and Deinit must not run concurrently with a transfer. Transfers
// may be attempted from any goroutine or interrupt context; all but one of a
// set of overlapping attempts fail with ErrBusy.
type Session struct {
	regs Registers
	gate *BusyGate
	dma  DMAChannel

	settings    Settings
	divisor     uint32
	frequency   uint32
	callback    func()
	initialized bool

	spinLimit  int
	dmaTimeout time.Duration

	mu         sync.Mutex // guards lastDMAErr
	lastDMAErr error
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithCriticalSection replaces the default interrupt-mask critical section
// used by the busy gate.
func WithCriticalSection(cs CriticalSection) SessionOption {
	return func(s *Session) { s.gate = NewBusyGate(cs) }
}

// WithDMA attaches a DMA channel, enabling Session.DMA.
func WithDMA(ch DMAChannel) SessionOption {
	return func(s *Session) { s.dma = ch }
}

// WithSpinLimit bounds the number of TRANS polls before a polling transfer
// fails with ErrTransfer.
func WithSpinLimit(n int) SessionOption {
	return func(s *Session) { s.spinLimit = n }
}

// WithDMATimeout bounds a synchronous DMA wait.
func WithDMATimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.dmaTimeout = d }
}

const (
	defaultSpinLimit  = 100000
	defaultDMATimeout = time.Second
)

// NewSession wraps the controller behind regs. The session is unusable until
// Init.
func NewSession(regs Registers, opts ...SessionOption) *Session {
	s := &Session{
		regs:       regs,
		spinLimit:  defaultSpinLimit,
		dmaTimeout: defaultDMATimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gate == nil {
		s.gate = NewBusyGate(InterruptMask())
	}
	return s
}

// Init applies settings (an OR of the LSBFirst/CPOL/CPHA/IntEnable/FullDuplex/
// SlaveSel flags) and the clock divisor, and registers callback, which may be
// nil. The output clock is 120 MHz / (clockDivisor + 2) and may not exceed
// 12 MHz.
func (s *Session) Init(settings uint32, clockDivisor uint32, callback func()) error {
	cfg, err := DecodeSettings(settings)
	if err != nil {
		return err
	}
	freq, err := ClockFrequency(clockDivisor)
	if err != nil {
		return err
	}

	s.regs.Set(RegMaster, settings|MasterMoreBufMode|clockDivisor<<MasterClockPos)

	s.settings = cfg
	s.divisor = clockDivisor
	s.frequency = freq
	s.callback = callback
	s.initialized = true
	s.gate.ForceIdle()

	if debugEnabled {
		DebugPrintln("[SPIM] init mode=" + itoa(int(cfg.Mode())) +
			" freq=" + utoa(freq) + " master=" + hex32(s.regs.Get(RegMaster)))
	}
	return nil
}

// Settings returns the decoded Init settings.
func (s *Session) Settings() Settings { return s.settings }

// Frequency returns the output clock in Hz, or 0 before Init.
func (s *Session) Frequency() uint32 { return s.frequency }

// Initialized reports whether Init has run since the last Reset.
func (s *Session) Initialized() bool { return s.initialized }

// Busy reports whether a transfer holds the controller.
func (s *Session) Busy() bool { return s.gate.Busy() }

// Transfer runs one polling transaction: cmdLen command/address bytes taken
// from op (plus ext, unless it is NoExtension), then a data phase over buf as
// selected by flag. buf is written out for Write and filled for Read.
//
// The payload limit is 32 bytes in half duplex and 16 bytes in full duplex,
// where buf is both sent and, for Read, overwritten with the received bytes.
func (s *Session) Transfer(op uint32, ext uint8, cmdLen int, buf []byte, flag Direction) error {
	err := s.transfer(FrameRequest{Op: op, Ext: ext, CmdLen: cmdLen, Payload: buf, Dir: flag})
	RecordEvent(EvtPoll, op, len(buf), err)
	if err != nil {
		return err
	}
	if s.settings.InterruptEnabled && s.callback != nil {
		s.callback()
	}
	return nil
}

// Write sends buf with no command phase.
func (s *Session) Write(buf []byte) error {
	return s.Transfer(0, NoExtension, 0, buf, Write)
}

// Read sends the cmdLen low-order bytes of cmd and fills buf from the bus.
func (s *Session) Read(cmd uint32, cmdLen int, buf []byte) error {
	return s.Transfer(cmd, NoExtension, cmdLen, buf, Read)
}

func (s *Session) transfer(req FrameRequest) error {
	tok, err := s.gate.TryAcquire()
	if err != nil {
		return err
	}
	defer s.gate.Release(tok)

	if !s.initialized {
		return ErrNotInitialized
	}
	f, err := EncodeFrame(req, s.settings.PayloadLimit())
	if err != nil {
		return err
	}
	return s.runPolling(f)
}

// Reset restores every controller register to its power-on value and forces
// the gate idle. The session must be initialized again before use. Calling
// Reset while a transfer is in flight is not allowed.
func (s *Session) Reset() error {
	for _, info := range registerLayout {
		s.regs.Set(info.reg, info.reset)
	}
	s.settings = Settings{}
	s.divisor = 0
	s.frequency = 0
	s.callback = nil
	s.initialized = false
	s.gate.ForceIdle()
	RecordEvent(EvtReset, 0, 0, nil)
	return nil
}

// Deinit resets the controller and releases the register block if it holds
// resources.
func (s *Session) Deinit() error {
	if err := s.Reset(); err != nil {
		return err
	}
	if c, ok := s.regs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Dump reads back every register without side effects and writes the values
// to the debug output.
func (s *Session) Dump() []RegisterValue {
	out := make([]RegisterValue, 0, len(registerLayout))
	for _, info := range registerLayout {
		out = append(out, RegisterValue{Name: info.name, Offset: info.reg, Value: s.regs.Get(info.reg)})
	}
	for _, rv := range out {
		DebugPrintln("[SPIM] " + rv.Name + "@" + hex8(uint8(rv.Offset)) + " = " + hex32(rv.Value))
	}
	return out
}
