package mcu

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"spimhal/core"
	"spimhal/protocol"
	"spimhal/tinycompress"
)

// devicePort runs a device transport in-process: host writes are fed to it
// and whatever it answers is handed back to the host reader.
type devicePort struct {
	mu      sync.Mutex
	dev     *protocol.Transport
	out     *protocol.ScratchOutput
	rx      chan []byte
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newDevicePort(handler protocol.CommandHandler) *devicePort {
	p := &devicePort{
		out:    protocol.NewScratchOutput(),
		rx:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	p.dev = protocol.NewTransport(p.out, handler)
	p.dev.SetFlushCallback(p.flush)
	return p
}

// flush moves pending device output to the host side. Called with mu held.
func (p *devicePort) flush() {
	data := p.out.Result()
	if len(data) == 0 {
		return
	}
	p.rx <- append([]byte(nil), data...)
	p.out.Reset()
}

func (p *devicePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dev.Receive(protocol.NewSliceInputBuffer(append([]byte(nil), b...)))
	p.flush()
	return len(b), nil
}

func (p *devicePort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case d := <-p.rx:
			p.pending = d
		case <-p.closed:
			return 0, io.EOF
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *devicePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// countingBus answers every read with 1, 2, 3, ...
type countingBus struct {
	mu      sync.Mutex
	written []byte
}

func (b *countingBus) Configure(cfg core.BusConfig) error { return nil }

func (b *countingBus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written = append(b.written, w...)
	for i := range r {
		r[i] = byte(i + 1)
	}
	return nil
}

func (b *countingBus) Transfer(w byte) (byte, error) {
	r := []byte{0}
	err := b.Tx([]byte{w}, r)
	return r[0], err
}

type stubADC struct{}

func (stubADC) Init() error                          { return nil }
func (stubADC) Deinit() error                        { return nil }
func (stubADC) ValidChannel(ch core.ADCChannel) bool { return ch < 4 }

func (stubADC) ReadRaw(ch core.ADCChannel) (uint16, error) {
	return 100*uint16(ch) + 7, nil
}

func newTestMCU(t *testing.T) (*MCU, *countingBus) {
	t.Helper()
	bus := &countingBus{}
	engine := core.NewBusEngine(bus, nil)
	spim := core.NewSession(engine, core.WithDMA(engine.SoftwareDMA(128)))

	var console *core.Console
	port := newDevicePort(func(cmdID uint16, data *[]byte) error {
		return console.Dispatch(cmdID, data)
	})
	console = core.NewConsole(spim, core.NewADC(stubADC{}), port.dev)

	m := NewMCU()
	m.SetTimeout(2 * time.Second)
	m.ConnectPort(port)
	t.Cleanup(func() { m.Close() })

	if err := m.RetrieveDictionary(); err != nil {
		t.Fatalf("RetrieveDictionary: %v", err)
	}
	return m, bus
}

func TestRetrieveDictionary(t *testing.T) {
	m, _ := newTestMCU(t)
	dict := m.GetDictionary()
	if dict.Version != core.Version {
		t.Errorf("version = %q", dict.Version)
	}
	if v, err := m.Constant("SPIM_POLL_MAX"); err != nil || v != core.HalfDuplexMax {
		t.Errorf("SPIM_POLL_MAX = %d, %v", v, err)
	}
	if _, err := m.Constant("NO_SUCH"); err == nil {
		t.Error("unknown constant found")
	}
	if _, ok := m.commandIDs["spim_transfer"]; !ok {
		t.Errorf("command index = %v", m.commandIDs)
	}

	var out bytes.Buffer
	m.PrintDictionary(&out)
	if !strings.Contains(out.String(), "[1] identify offset=%u count=%c") {
		t.Errorf("summary:\n%s", out.String())
	}
}

func TestInflate(t *testing.T) {
	plain := []byte(`{"version":"v"}`)
	got, err := inflate(plain)
	if err != nil || !bytes.Equal(got, plain) {
		t.Errorf("plain JSON: %q, %v", got, err)
	}
	got, err = inflate(tinycompress.Store(nil, plain))
	if err != nil || !bytes.Equal(got, plain) {
		t.Errorf("stored zlib: %q, %v", got, err)
	}
	if _, err := inflate([]byte{0x78, 0x01, 0xff}); err == nil {
		t.Error("truncated stream accepted")
	}
}

func TestSPIMOverConsole(t *testing.T) {
	m, bus := newTestMCU(t)

	if err := m.SPIMInit(core.HalfDuplex, 7); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("SPIMInit divisor 7 = %v", err)
	}
	if _, err := m.SPIMTransfer(0x9F, 0, 1, core.Read, make([]byte, 3)); !errors.Is(err, core.ErrTransfer) {
		t.Errorf("transfer before init = %v", err)
	}

	if err := m.SPIMInit(core.HalfDuplex|core.IntEnable, 8); err != nil {
		t.Fatalf("SPIMInit: %v", err)
	}
	data, err := m.SPIMTransfer(0x9F, 0, 1, core.Read, make([]byte, 3))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("read = % x", data)
	}

	if _, err := m.SPIMTransfer(0x02, 0, 1, core.Write, []byte{0xAA, 0xBB}); err != nil {
		t.Fatal(err)
	}
	bus.mu.Lock()
	written := append([]byte(nil), bus.written...)
	bus.mu.Unlock()
	if !bytes.HasSuffix(written, []byte{0x02, 0xAA, 0xBB}) {
		t.Errorf("bus saw % x", written)
	}

	st, err := m.SPIMQuery()
	if err != nil {
		t.Fatal(err)
	}
	if st.Busy || !st.Initialized || st.Frequency != 12000000 || st.Events != 2 || st.DMAErr != nil {
		t.Errorf("state = %+v", st)
	}

	regs, err := m.SPIMDump()
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 13 || regs[10].Name != "MASTER" {
		t.Errorf("dump = %+v", regs)
	}

	if err := m.SPIMReset(); err != nil {
		t.Fatal(err)
	}
	if st, _ := m.SPIMQuery(); st.Initialized {
		t.Error("initialized after reset")
	}
}

func TestSPIMDMAOverConsole(t *testing.T) {
	m, _ := newTestMCU(t)
	if err := m.SPIMInit(core.HalfDuplex, 8); err != nil {
		t.Fatal(err)
	}
	data, err := m.SPIMDMA(0x03, 0, 1, core.Read, make([]byte, 64))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 64 || data[0] != 1 || data[63] != 64 {
		t.Errorf("dma read = % x", data)
	}
}

func TestTraceOverConsole(t *testing.T) {
	m, _ := newTestMCU(t)
	core.ClearTrace()
	if err := m.SPIMReset(); err != nil {
		t.Fatal(err)
	}
	events, err := m.SPIMTrace()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Kind != core.EvtReset {
		t.Errorf("trace = %+v", events)
	}
}

func TestADCOverConsole(t *testing.T) {
	m, _ := newTestMCU(t)
	if _, err := m.ADCRead(2); !errors.Is(err, core.ErrTransfer) {
		t.Errorf("read before init = %v", err)
	}
	if err := m.ADCInit(); err != nil {
		t.Fatal(err)
	}
	if v, err := m.ADCRead(2); err != nil || v != 207 {
		t.Errorf("ADCRead(2) = %d, %v", v, err)
	}
	if _, err := m.ADCRead(9); !errors.Is(err, core.ErrChannel) {
		t.Errorf("ADCRead(9) = %v", err)
	}
	if err := m.ADCDeinit(); err != nil {
		t.Fatal(err)
	}
}

func TestNotConnected(t *testing.T) {
	m := NewMCU()
	if err := m.SPIMReset(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SPIMReset = %v", err)
	}
	if err := m.RetrieveDictionary(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RetrieveDictionary = %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	m, _ := newTestMCU(t)
	if err := m.SendCommand("get_uptime", nil); err == nil {
		t.Error("unknown command accepted")
	}
}

func TestRetrieveDictionaryLogs(t *testing.T) {
	m, _ := newTestMCU(t)
	var buf bytes.Buffer
	m.SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	if err := m.RetrieveDictionary(); err != nil {
		t.Fatalf("RetrieveDictionary: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, `"message":"dictionary retrieved"`) ||
		!strings.Contains(got, `"version":"`+core.Version+`"`) {
		t.Errorf("log output = %s", got)
	}
	if strings.Contains(got, "dictionary chunk") {
		t.Error("chunk trace logged at debug level")
	}
}
