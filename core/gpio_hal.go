package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface used to drive slave select
// lines. Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error
}

// ChipSelectPins maps the two slave select lines onto GPIO pins.
type ChipSelectPins struct {
	Lines      [2]GPIOPin
	ActiveHigh bool // default is active low
}

// NewChipSelect configures both lines as deasserted outputs and returns a
// ChipSelect that drives them.
func NewChipSelect(drv GPIODriver, pins ChipSelectPins) (ChipSelect, error) {
	for _, pin := range pins.Lines {
		if err := drv.ConfigureOutput(pin); err != nil {
			return nil, err
		}
		if err := drv.SetPin(pin, !pins.ActiveHigh); err != nil {
			return nil, err
		}
	}
	return func(line uint8, asserted bool) {
		if int(line) >= len(pins.Lines) {
			return
		}
		level := asserted == pins.ActiveHigh
		if err := drv.SetPin(pins.Lines[line], level); err != nil {
			DebugPrintln("[SPIM] cs" + itoa(int(line)) + ": " + err.Error())
		}
	}, nil
}

// GPIOReader adds inputs, needed by the bit-banged bus.
type GPIOReader interface {
	GPIODriver

	// ConfigureInput configures a pin as a floating digital input
	ConfigureInput(pin GPIOPin) error

	// GetPin reads the current level of a pin
	GetPin(pin GPIOPin) (bool, error)
}
