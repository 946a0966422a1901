package main

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"spimhal/core"
	"spimhal/host/mcu"
)

// controller is what the shell drives: a device over the serial console or
// a Session running in this process on a spidev port.
type controller interface {
	Init(settings, divisor uint32) error
	Transfer(op uint32, ext, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error)
	DMA(op uint32, ext, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error)
	Reset() error
	Deinit() error
	Dump() ([]core.RegisterValue, error)
	Query() (mcu.State, error)
	Trace() ([]core.TraceEvent, error)
	ADCInit() error
	ADCDeinit() error
	ADCRead(ch core.ADCChannel) (uint16, error)
	Close() error
}

// remote forwards every call to the device console
type remote struct {
	m *mcu.MCU
}

func (r remote) Init(settings, divisor uint32) error { return r.m.SPIMInit(settings, divisor) }

func (r remote) Transfer(op uint32, ext, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error) {
	return r.m.SPIMTransfer(op, ext, cmdLen, flag, buf)
}

func (r remote) DMA(op uint32, ext, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error) {
	return r.m.SPIMDMA(op, ext, cmdLen, flag, buf)
}

func (r remote) Reset() error                               { return r.m.SPIMReset() }
func (r remote) Deinit() error                              { return r.m.SPIMDeinit() }
func (r remote) Dump() ([]core.RegisterValue, error)        { return r.m.SPIMDump() }
func (r remote) Query() (mcu.State, error)                  { return r.m.SPIMQuery() }
func (r remote) Trace() ([]core.TraceEvent, error)          { return r.m.SPIMTrace() }
func (r remote) ADCInit() error                             { return r.m.ADCInit() }
func (r remote) ADCDeinit() error                           { return r.m.ADCDeinit() }
func (r remote) ADCRead(ch core.ADCChannel) (uint16, error) { return r.m.ADCRead(ch) }
func (r remote) Close() error                               { return r.m.Close() }

var errNoADC = errors.New("no ADC in local mode")

// softwareDMAMax bounds local DMA transfers; spidev splits them as needed.
const softwareDMAMax = 4096

// local runs the controller core in-process
type local struct {
	session *core.Session
	events  uint32 // atomic
	done    chan struct{}
	bus     io.Closer
}

func newLocal(bus core.SPIMBus, cs core.ChipSelect, closer io.Closer) *local {
	engine := core.NewBusEngine(bus, cs)
	return &local{
		session: core.NewSession(engine, core.WithDMA(engine.SoftwareDMA(softwareDMAMax))),
		done:    make(chan struct{}, 1),
		bus:     closer,
	}
}

func (l *local) Init(settings, divisor uint32) error {
	atomic.StoreUint32(&l.events, 0)
	return l.session.Init(settings, divisor, l.complete)
}

func (l *local) complete() {
	atomic.AddUint32(&l.events, 1)
	select {
	case l.done <- struct{}{}:
	default:
	}
}

func (l *local) Transfer(op uint32, ext, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error) {
	if err := l.session.Transfer(op, ext, int(cmdLen), buf, flag); err != nil {
		return nil, err
	}
	if flag != core.Read {
		return nil, nil
	}
	return buf, nil
}

// DMA waits for completion even in interrupt mode so the shell can print
// the data.
func (l *local) DMA(op uint32, ext, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error) {
	select {
	case <-l.done: // left by a polling transfer
	default:
	}
	if err := l.session.DMA(op, ext, int(cmdLen), buf, flag); err != nil {
		return nil, err
	}
	if l.session.Settings().InterruptEnabled {
		select {
		case <-l.done:
		case <-time.After(time.Second):
			return nil, core.ErrTransfer
		}
	}
	if err := l.session.LastDMAError(); err != nil {
		return nil, err
	}
	if flag != core.Read {
		return nil, nil
	}
	return buf, nil
}

func (l *local) Reset() error                        { return l.session.Reset() }
func (l *local) Deinit() error                       { return l.session.Deinit() }
func (l *local) Dump() ([]core.RegisterValue, error) { return l.session.Dump(), nil }

func (l *local) Query() (mcu.State, error) {
	return mcu.State{
		Busy:        l.session.Busy(),
		Initialized: l.session.Initialized(),
		Frequency:   l.session.Frequency(),
		Events:      atomic.LoadUint32(&l.events),
		DMAErr:      l.session.LastDMAError(),
	}, nil
}

func (l *local) Trace() ([]core.TraceEvent, error)       { return core.TraceEvents(), nil }
func (l *local) ADCInit() error                          { return errNoADC }
func (l *local) ADCDeinit() error                        { return errNoADC }
func (l *local) ADCRead(core.ADCChannel) (uint16, error) { return 0, errNoADC }

func (l *local) Close() error {
	if l.bus == nil {
		return nil
	}
	return l.bus.Close()
}
