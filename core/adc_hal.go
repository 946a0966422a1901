package core

// ADCChannel identifies an ADC input. Its meaning belongs to the platform
// driver, which decides which values are valid.
type ADCChannel uint8

// ADCMax is the largest 12-bit conversion result.
const ADCMax = 4095

// ADCDriver is the abstract ADC interface that core code uses.
type ADCDriver interface {
	// Init powers up and configures the ADC peripheral.
	Init() error

	// Deinit powers the peripheral down.
	Deinit() error

	// ValidChannel reports whether ch exists on this platform.
	ValidChannel(ch ADCChannel) bool

	// ReadRaw performs a one-shot blocking conversion on ch.
	ReadRaw(ch ADCChannel) (uint16, error)
}
