// Diagnostic console
// Exposes a Session and an ADC as commands over the framed serial link, so a
// host can exercise the controller without custom firmware.
package core

import (
	"sync/atomic"

	"spimhal/protocol"
)

// Responder sends a message to the host. *protocol.Transport implements it.
type Responder interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

// Console owns the command registry and dictionary for one Session and
// one ADC. Either peripheral may be nil; its commands then report
// ErrNotInitialized.
type Console struct {
	registry *CommandRegistry
	dict     *Dictionary
	spim     *Session
	adc      *ADC
	out      Responder

	events uint32 // atomic; completion callbacks seen since spim_init

	respIdentify uint16
	respStatus   uint16
	respData     uint16
	respRegister uint16
	respState    uint16
	respTrace    uint16
	respADCStat  uint16
	respADCState uint16
}

// NewConsole registers every console command. IDs follow registration
// order; identify_response and identify are always 0 and 1.
func NewConsole(spim *Session, adc *ADC, out Responder) *Console {
	c := &Console{
		registry: NewCommandRegistry(),
		spim:     spim,
		adc:      adc,
		out:      out,
	}
	c.dict = NewDictionary(c.registry)
	r := c.registry

	c.respIdentify = r.RegisterResponse("identify_response", "offset=%u data=%*s")
	r.Register("identify", "offset=%u count=%c", c.handleIdentify)

	c.respStatus = r.RegisterResponse("spim_status", "status=%i")
	c.respData = r.RegisterResponse("spim_data", "status=%i data=%*s")
	c.respRegister = r.RegisterResponse("spim_register", "offset=%c value=%u")
	c.respState = r.RegisterResponse("spim_state", "busy=%c initialized=%c frequency=%u events=%u dma_status=%i")
	c.respTrace = r.RegisterResponse("trace_event", "kind=%c op=%u length=%hu status=%i")
	c.respADCStat = r.RegisterResponse("adc_status", "status=%i")
	c.respADCState = r.RegisterResponse("adc_state", "status=%i channel=%c value=%hu")

	r.Register("spim_init", "settings=%u clock=%u", c.handleSPIMInit)
	r.Register("spim_transfer", "op=%u ext=%c cmd_len=%c flag=%c count=%c data=%*s", c.handleSPIMTransfer)
	r.Register("spim_dma", "op=%u ext=%c cmd_len=%c flag=%c count=%u data=%*s", c.handleSPIMDMA)
	r.Register("spim_reset", "", c.handleSPIMReset)
	r.Register("spim_deinit", "", c.handleSPIMDeinit)
	r.Register("spim_dump", "", c.handleSPIMDump)
	r.Register("spim_query", "", c.handleSPIMQuery)
	r.Register("spim_trace", "", c.handleSPIMTrace)
	r.Register("adc_init", "", c.handleADCInit)
	r.Register("adc_deinit", "", c.handleADCDeinit)
	r.Register("adc_read", "channel=%c", c.handleADCRead)

	c.dict.AddConstant("SPIM_SOURCE_CLOCK", SourceClock)
	c.dict.AddConstant("SPIM_MAX_FREQUENCY", MaxOutputFrequency)
	c.dict.AddConstant("SPIM_POLL_MAX", HalfDuplexMax)
	c.dict.AddConstant("SPIM_POLL_MAX_FULL_DUPLEX", FullDuplexMax)
	c.dict.AddConstant("ADC_MAX", ADCMax)
	return c
}

// Registry returns the console's commands
func (c *Console) Registry() *CommandRegistry { return c.registry }

// Dictionary returns the dictionary served through identify
func (c *Console) Dictionary() *Dictionary { return c.dict }

// Dispatch runs one decoded command. It matches protocol.CommandHandler.
func (c *Console) Dispatch(cmdID uint16, data *[]byte) error {
	return c.registry.Dispatch(cmdID, data)
}

// Events returns the number of completion callbacks since the last spim_init
func (c *Console) Events() uint32 {
	return atomic.LoadUint32(&c.events)
}

func (c *Console) onComplete() {
	atomic.AddUint32(&c.events, 1)
}

func (c *Console) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	chunk := c.dict.Chunk(offset, uint8(count))
	c.out.SendCommand(c.respIdentify, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func (c *Console) sendStatus(err error) {
	c.out.SendCommand(c.respStatus, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, int32(StatusOf(err)))
	})
}

func (c *Console) sendData(err error, buf []byte) {
	c.out.SendCommand(c.respData, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, int32(StatusOf(err)))
		protocol.EncodeVLQBytes(output, buf)
	})
}

func (c *Console) handleSPIMInit(data *[]byte) error {
	settings, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if c.spim == nil {
		c.sendStatus(ErrNotInitialized)
		return nil
	}
	atomic.StoreUint32(&c.events, 0)
	c.sendStatus(c.spim.Init(settings, clock, c.onComplete))
	return nil
}

// transferArgs is the common argument layout of spim_transfer and spim_dma
type transferArgs struct {
	op      uint32
	ext     uint8
	cmdLen  int
	flag    Direction
	count   uint32
	payload []byte
}

func decodeTransferArgs(data *[]byte) (transferArgs, error) {
	var a transferArgs
	vals := [5]uint32{}
	for i := range vals {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return a, err
		}
		vals[i] = v
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return a, err
	}
	a.op = vals[0]
	a.ext = uint8(vals[1])
	a.cmdLen = int(vals[2])
	a.flag = Direction(vals[3])
	a.count = vals[4]
	a.payload = payload
	return a, nil
}

// buffer sizes the transfer buffer from count and fills it from the front
// with the payload. count is checked against limit before anything is
// allocated.
func (a transferArgs) buffer(limit int) ([]byte, error) {
	if limit < 0 || a.count > uint32(limit) {
		return nil, ErrInvalidParameter
	}
	buf := make([]byte, a.count)
	copy(buf, a.payload)
	return buf, nil
}

func (c *Console) handleSPIMTransfer(data *[]byte) error {
	a, err := decodeTransferArgs(data)
	if err != nil {
		return err
	}
	if c.spim == nil {
		c.sendData(ErrNotInitialized, nil)
		return nil
	}
	buf, err := a.buffer(HalfDuplexMax)
	if err != nil {
		c.sendData(err, nil)
		return nil
	}
	err = c.spim.Transfer(a.op, a.ext, a.cmdLen, buf, a.flag)
	if err != nil || a.flag != Read {
		c.sendData(err, nil)
		return nil
	}
	c.sendData(nil, buf)
	return nil
}

// handleSPIMDMA answers with spim_data. In interrupt mode the transfer is
// still running when the answer goes out, so no read data is returned;
// spim_query reports the outcome once the event count moves.
func (c *Console) handleSPIMDMA(data *[]byte) error {
	a, err := decodeTransferArgs(data)
	if err != nil {
		return err
	}
	if c.spim == nil {
		c.sendData(ErrNotInitialized, nil)
		return nil
	}
	buf, err := a.buffer(c.spim.MaxDMATransfer())
	if err != nil {
		c.sendData(err, nil)
		return nil
	}
	async := c.spim.Settings().InterruptEnabled
	err = c.spim.DMA(a.op, a.ext, a.cmdLen, buf, a.flag)
	if err != nil || a.flag != Read || async {
		c.sendData(err, nil)
		return nil
	}
	c.sendData(nil, buf)
	return nil
}

func (c *Console) handleSPIMReset(data *[]byte) error {
	if c.spim == nil {
		c.sendStatus(ErrNotInitialized)
		return nil
	}
	c.sendStatus(c.spim.Reset())
	return nil
}

func (c *Console) handleSPIMDeinit(data *[]byte) error {
	if c.spim == nil {
		c.sendStatus(ErrNotInitialized)
		return nil
	}
	c.sendStatus(c.spim.Deinit())
	return nil
}

// handleSPIMDump sends one spim_register per register, then spim_status.
func (c *Console) handleSPIMDump(data *[]byte) error {
	if c.spim == nil {
		c.sendStatus(ErrNotInitialized)
		return nil
	}
	for _, rv := range c.spim.Dump() {
		rv := rv
		c.out.SendCommand(c.respRegister, func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(rv.Offset))
			protocol.EncodeVLQUint(output, rv.Value)
		})
	}
	c.sendStatus(nil)
	return nil
}

func (c *Console) handleSPIMQuery(data *[]byte) error {
	if c.spim == nil {
		c.sendStatus(ErrNotInitialized)
		return nil
	}
	busy := boolToVLQ(c.spim.Busy())
	initialized := boolToVLQ(c.spim.Initialized())
	freq := c.spim.Frequency()
	events := c.Events()
	dmaStatus := StatusOf(c.spim.LastDMAError())
	c.out.SendCommand(c.respState, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, busy)
		protocol.EncodeVLQUint(output, initialized)
		protocol.EncodeVLQUint(output, freq)
		protocol.EncodeVLQUint(output, events)
		protocol.EncodeVLQInt(output, int32(dmaStatus))
	})
	return nil
}

// handleSPIMTrace sends the trace ring oldest first, then spim_status.
func (c *Console) handleSPIMTrace(data *[]byte) error {
	for _, evt := range TraceEvents() {
		evt := evt
		c.out.SendCommand(c.respTrace, func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(evt.Kind))
			protocol.EncodeVLQUint(output, evt.Op)
			protocol.EncodeVLQUint(output, uint32(evt.Length))
			protocol.EncodeVLQInt(output, int32(evt.Status))
		})
	}
	c.sendStatus(nil)
	return nil
}

func (c *Console) sendADCStatus(err error) {
	c.out.SendCommand(c.respADCStat, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, int32(StatusOf(err)))
	})
}

func (c *Console) handleADCInit(data *[]byte) error {
	if c.adc == nil {
		c.sendADCStatus(ErrNotInitialized)
		return nil
	}
	c.sendADCStatus(c.adc.Init())
	return nil
}

func (c *Console) handleADCDeinit(data *[]byte) error {
	if c.adc == nil {
		c.sendADCStatus(ErrNotInitialized)
		return nil
	}
	c.sendADCStatus(c.adc.Deinit())
	return nil
}

func (c *Console) handleADCRead(data *[]byte) error {
	ch, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	var raw uint16
	err = ErrNotInitialized
	if c.adc != nil {
		raw, err = c.adc.GetDataPolling(ADCChannel(ch))
	}
	c.out.SendCommand(c.respADCState, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, int32(StatusOf(err)))
		protocol.EncodeVLQUint(output, ch)
		protocol.EncodeVLQUint(output, uint32(raw))
	})
	return nil
}

func boolToVLQ(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
