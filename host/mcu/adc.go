package mcu

import (
	"fmt"

	"spimhal/core"
	"spimhal/protocol"
)

// ADCInit powers up the device's converter
func (m *MCU) ADCInit() error {
	return m.statusCall("adc_init", nil, "adc_status")
}

// ADCDeinit powers the converter down
func (m *MCU) ADCDeinit() error {
	return m.statusCall("adc_deinit", nil, "adc_status")
}

// ADCRead runs one conversion on ch
func (m *MCU) ADCRead(ch core.ADCChannel) (uint16, error) {
	payload, err := m.call("adc_read", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(ch))
	}, "adc_state")
	if err != nil {
		return 0, err
	}
	if err := statusError(&payload); err != nil {
		return 0, fmt.Errorf("adc_read %d: %w", ch, err)
	}
	if _, err := protocol.DecodeVLQUint(&payload); err != nil {
		return 0, fmt.Errorf("adc_read: malformed channel: %w", err)
	}
	value, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, fmt.Errorf("adc_read: malformed value: %w", err)
	}
	return uint16(value), nil
}
