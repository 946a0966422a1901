package core

import (
	"errors"
	"sync"
)

// busRecord is one Tx on the fake bus
type busRecord struct {
	w    []byte // nil for a receive-only exchange
	rLen int
}

// fakeSlave is an SPIMBus that logs what the master clocks out and answers
// reads from a queue.
type fakeSlave struct {
	mu       sync.Mutex
	log      []busRecord
	miso     []byte // queued response bytes, 0x00 once exhausted
	configs  []BusConfig
	txErr    error
	cfgErr   error
	selected []string

	block   chan struct{} // when set, Tx waits on it
	entered chan struct{} // signalled when Tx starts
}

func (f *fakeSlave) Configure(cfg BusConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfgErr != nil {
		return f.cfgErr
	}
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeSlave) Tx(w, r []byte) error {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txErr != nil {
		return f.txErr
	}
	rec := busRecord{rLen: len(r)}
	if w != nil {
		rec.w = append([]byte(nil), w...)
	}
	f.log = append(f.log, rec)
	for i := range r {
		if len(f.miso) > 0 {
			r[i] = f.miso[0]
			f.miso = f.miso[1:]
		} else {
			r[i] = 0
		}
	}
	return nil
}

func (f *fakeSlave) Transfer(b byte) (byte, error) {
	r := []byte{0}
	err := f.Tx([]byte{b}, r)
	return r[0], err
}

func (f *fakeSlave) respond(b ...byte) {
	f.mu.Lock()
	f.miso = append(f.miso, b...)
	f.mu.Unlock()
}

func (f *fakeSlave) records() []busRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]busRecord(nil), f.log...)
}

// written concatenates every byte the master sent
func (f *fakeSlave) written() []byte {
	var out []byte
	for _, rec := range f.records() {
		out = append(out, rec.w...)
	}
	return out
}

func (f *fakeSlave) chipSelect(line uint8, asserted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := "release"
	if asserted {
		state = "assert"
	}
	f.selected = append(f.selected, state+itoa(int(line)))
}

// newTestSession builds a Session over a BusEngine and a fake slave
func newTestSession(opts ...SessionOption) (*Session, *BusEngine, *fakeSlave) {
	slave := &fakeSlave{}
	engine := NewBusEngine(slave, slave.chipSelect)
	return NewSession(engine, opts...), engine, slave
}

// memRegs is a plain register file. TRANS reads back transValue.
type memRegs struct {
	mu         sync.Mutex
	regs       map[Register]uint32
	transValue uint32
	closed     bool
}

func newMemRegs(trans uint32) *memRegs {
	return &memRegs{regs: make(map[Register]uint32), transValue: trans}
}

func (m *memRegs) Get(r Register) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == RegTrans {
		return m.transValue
	}
	return m.regs[r]
}

func (m *memRegs) Set(r Register, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[r] = v
}

func (m *memRegs) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// fakeDMA is a DMAChannel whose completion the test triggers
type fakeDMA struct {
	mu       sync.Mutex
	max      int
	startErr error
	started  []DMARequest
	done     func(error)
	auto     bool  // complete from Start's goroutine
	result   error // passed to done when auto
}

func (d *fakeDMA) MaxTransfer() int { return d.max }

func (d *fakeDMA) Start(req DMARequest, done func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = append(d.started, req)
	d.done = done
	if d.auto {
		go done(d.result)
	}
	return nil
}

func (d *fakeDMA) complete(err error) {
	d.mu.Lock()
	done := d.done
	d.done = nil
	d.mu.Unlock()
	if done != nil {
		done(err)
	}
}

var errBusFault = errors.New("bus fault")
