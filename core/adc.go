// ADC (Analog to Digital Converter) support
// Blocking single-shot sampling on top of a platform ADCDriver.
package core

import "sync"

// ADCSample is one conversion result.
type ADCSample struct {
	Channel ADCChannel
	Raw     uint16 // 0..ADCMax
}

// ADC serializes conversions on one converter. A call to GetDataPolling
// completes before the next one starts.
type ADC struct {
	mu          sync.Mutex
	drv         ADCDriver
	initialized bool
}

// NewADC wraps drv. The converter is unusable until Init.
func NewADC(drv ADCDriver) *ADC {
	return &ADC{drv: drv}
}

// Init powers up the converter. Calling Init again re-runs the driver setup.
func (a *ADC) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.drv.Init(); err != nil {
		a.initialized = false
		return &TransferError{Err: err}
	}
	a.initialized = true
	return nil
}

// Deinit powers the converter down. It is a no-op when not initialized.
func (a *ADC) Deinit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil
	}
	a.initialized = false
	if err := a.drv.Deinit(); err != nil {
		return &TransferError{Err: err}
	}
	return nil
}

// Initialized reports whether Init has succeeded since the last Deinit.
func (a *ADC) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// GetDataPolling runs one conversion on ch and returns the 12-bit result.
// It fails with ErrNotInitialized before Init and ErrChannel for a channel
// the platform does not provide; no sample is produced in either case.
func (a *ADC) GetDataPolling(ch ADCChannel) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := a.read(ch)
	RecordEvent(EvtADCRead, uint32(ch), 2, err)
	return raw, err
}

func (a *ADC) read(ch ADCChannel) (uint16, error) {
	if !a.initialized {
		return 0, ErrNotInitialized
	}
	if !a.drv.ValidChannel(ch) {
		return 0, ErrChannel
	}
	raw, err := a.drv.ReadRaw(ch)
	if err != nil {
		DebugPrintln("[ADC] read ch=" + itoa(int(ch)) + " failed: " + err.Error())
		return 0, &TransferError{Err: err}
	}
	return raw & ADCMax, nil
}

// Sample is GetDataPolling returning an ADCSample.
func (a *ADC) Sample(ch ADCChannel) (ADCSample, error) {
	raw, err := a.GetDataPolling(ch)
	if err != nil {
		return ADCSample{}, err
	}
	return ADCSample{Channel: ch, Raw: raw}, nil
}
