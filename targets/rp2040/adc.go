//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"
	"sync"

	"spimhal/core"
)

// Channels 0-3 are GPIO26-29; channel 4 is the internal temperature sensor.
const (
	adcExternalChannels = 4
	adcTempChannel      = 4
)

var adcPins = [adcExternalChannels]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}

var errADCTimeout = errors.New("adc: conversion timed out")

// rpADC implements core.ADCDriver directly on the ADC block, so every
// channel returns the raw 12-bit result.
type rpADC struct {
	mu         sync.Mutex
	configured [adcExternalChannels]bool
}

func newRPADC() *rpADC {
	return &rpADC{}
}

func (d *rpADC) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	machine.InitADC()
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
	return nil
}

func (d *rpADC) Deinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rp.ADC.CS.ClearBits(rp.ADC_CS_EN | rp.ADC_CS_TS_EN)
	d.configured = [adcExternalChannels]bool{}
	return nil
}

func (d *rpADC) ValidChannel(ch core.ADCChannel) bool {
	return ch <= adcTempChannel
}

// ReadRaw runs one conversion. External pins are switched to analog on
// first use.
func (d *rpADC) ReadRaw(ch core.ADCChannel) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch < adcExternalChannels && !d.configured[ch] {
		adc := machine.ADC{Pin: adcPins[ch]}
		if err := adc.Configure(machine.ADCConfig{}); err != nil {
			return 0, err
		}
		d.configured[ch] = true
	}

	rp.ADC.CS.ReplaceBits(uint32(ch)<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for i := 0; !rp.ADC.CS.HasBits(rp.ADC_CS_READY); i++ {
		if i == 100000 {
			return 0, errADCTimeout
		}
	}
	return uint16(rp.ADC.RESULT.Get()), nil
}
