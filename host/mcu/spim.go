package mcu

import (
	"fmt"

	"spimhal/core"
	"spimhal/protocol"
)

// State is the spim_state report of the device
type State struct {
	Busy        bool
	Initialized bool
	Frequency   uint32
	Events      uint32 // completion callbacks since spim_init
	DMAErr      error  // outcome of the last DMA transfer
}

// statusError decodes a leading status field into a core error
func statusError(payload *[]byte) error {
	st, err := protocol.DecodeVLQInt(payload)
	if err != nil {
		return fmt.Errorf("malformed status: %w", err)
	}
	return core.Status(st).Err()
}

func (m *MCU) statusCall(cmd string, args func(output protocol.OutputBuffer), resp string) error {
	payload, err := m.call(cmd, args, resp)
	if err != nil {
		return err
	}
	if err := statusError(&payload); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// SPIMInit configures the controller. settings is an OR of the core
// settings flags.
func (m *MCU) SPIMInit(settings, clockDivisor uint32) error {
	return m.statusCall("spim_init", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, settings)
		protocol.EncodeVLQUint(output, clockDivisor)
	}, "spim_status")
}

// SPIMTransfer runs a polling transfer. buf is sent for Write and full
// duplex; for Read the received bytes are returned.
func (m *MCU) SPIMTransfer(op uint32, ext uint8, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error) {
	return m.transfer("spim_transfer", op, ext, cmdLen, flag, buf)
}

// SPIMDMA runs a transfer through the device's DMA channel. In interrupt
// mode the device answers before the data phase ends and no data is
// returned; poll SPIMQuery for the outcome.
func (m *MCU) SPIMDMA(op uint32, ext uint8, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error) {
	return m.transfer("spim_dma", op, ext, cmdLen, flag, buf)
}

func (m *MCU) transfer(cmd string, op uint32, ext uint8, cmdLen uint8, flag core.Direction, buf []byte) ([]byte, error) {
	payload, err := m.call(cmd, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, op)
		protocol.EncodeVLQUint(output, uint32(ext))
		protocol.EncodeVLQUint(output, uint32(cmdLen))
		protocol.EncodeVLQUint(output, uint32(flag))
		protocol.EncodeVLQUint(output, uint32(len(buf)))
		protocol.EncodeVLQBytes(output, buf)
	}, "spim_data")
	if err != nil {
		return nil, err
	}
	if err := statusError(&payload); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed data: %w", cmd, err)
	}
	return append([]byte(nil), data...), nil
}

// SPIMReset restores the controller registers to their power-on values
func (m *MCU) SPIMReset() error {
	return m.statusCall("spim_reset", nil, "spim_status")
}

// SPIMDeinit resets the controller and releases it
func (m *MCU) SPIMDeinit() error {
	return m.statusCall("spim_deinit", nil, "spim_status")
}

// SPIMDump reads back every controller register
func (m *MCU) SPIMDump() ([]core.RegisterValue, error) {
	m.drain()
	if err := m.SendCommand("spim_dump", nil); err != nil {
		return nil, fmt.Errorf("spim_dump: %w", err)
	}
	regID := m.responseIDs["spim_register"]
	statusID := m.responseIDs["spim_status"]

	var out []core.RegisterValue
	for {
		id, payload, err := m.next()
		if err != nil {
			return nil, fmt.Errorf("spim_dump: %w", err)
		}
		switch id {
		case regID:
			off, _ := protocol.DecodeVLQUint(&payload)
			val, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				return nil, fmt.Errorf("spim_dump: malformed register: %w", err)
			}
			reg := core.Register(off)
			out = append(out, core.RegisterValue{Name: core.RegisterName(reg), Offset: reg, Value: val})
		case statusID:
			return out, statusError(&payload)
		}
	}
}

// SPIMQuery reports the controller state
func (m *MCU) SPIMQuery() (State, error) {
	payload, err := m.call("spim_query", nil, "spim_state")
	if err != nil {
		return State{}, err
	}
	var f [5]int32
	for i := range f {
		if f[i], err = protocol.DecodeVLQInt(&payload); err != nil {
			return State{}, fmt.Errorf("spim_query: malformed state: %w", err)
		}
	}
	return State{
		Busy:        f[0] != 0,
		Initialized: f[1] != 0,
		Frequency:   uint32(f[2]),
		Events:      uint32(f[3]),
		DMAErr:      core.Status(f[4]).Err(),
	}, nil
}

// SPIMTrace returns the device's event trace, oldest first
func (m *MCU) SPIMTrace() ([]core.TraceEvent, error) {
	m.drain()
	if err := m.SendCommand("spim_trace", nil); err != nil {
		return nil, fmt.Errorf("spim_trace: %w", err)
	}
	traceID := m.responseIDs["trace_event"]
	statusID := m.responseIDs["spim_status"]

	var out []core.TraceEvent
	for {
		id, payload, err := m.next()
		if err != nil {
			return nil, fmt.Errorf("spim_trace: %w", err)
		}
		switch id {
		case traceID:
			var f [4]int32
			for i := range f {
				if f[i], err = protocol.DecodeVLQInt(&payload); err != nil {
					return nil, fmt.Errorf("spim_trace: malformed event: %w", err)
				}
			}
			out = append(out, core.TraceEvent{
				Kind:   uint8(f[0]),
				Op:     uint32(f[1]),
				Length: uint16(f[2]),
				Status: int8(f[3]),
			})
		case statusID:
			return out, statusError(&payload)
		}
	}
}

// next returns the next response of any kind
func (m *MCU) next() (uint16, []byte, error) {
	msg, err := m.transport.ReceiveResponse(m.timeout)
	if err != nil {
		return 0, nil, err
	}
	payload := msg.Payload
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), payload, nil
}
