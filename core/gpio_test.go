package core

import (
	"errors"
	"testing"
)

type fakeGPIO struct {
	outputs map[GPIOPin]bool
	levels  map[GPIOPin]bool
	writes  int
	bad     GPIOPin
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{outputs: map[GPIOPin]bool{}, levels: map[GPIOPin]bool{}, bad: 99}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	if pin == g.bad {
		return errors.New("pin in use")
	}
	g.outputs[pin] = true
	return nil
}

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	g.levels[pin] = value
	g.writes++
	return nil
}

func TestChipSelectActiveLow(t *testing.T) {
	gpio := newFakeGPIO()
	cs, err := NewChipSelect(gpio, ChipSelectPins{Lines: [2]GPIOPin{17, 13}})
	if err != nil {
		t.Fatal(err)
	}
	if !gpio.outputs[17] || !gpio.outputs[13] || !gpio.levels[17] || !gpio.levels[13] {
		t.Fatalf("lines not idle high: %+v", gpio)
	}

	cs(1, true)
	if gpio.levels[13] || !gpio.levels[17] {
		t.Errorf("line 1 asserted: levels = %v", gpio.levels)
	}
	cs(1, false)
	if !gpio.levels[13] {
		t.Error("line 1 not released")
	}

	before := gpio.writes
	cs(2, true)
	if gpio.writes != before {
		t.Error("unknown line touched a pin")
	}
}

func TestChipSelectActiveHigh(t *testing.T) {
	gpio := newFakeGPIO()
	cs, err := NewChipSelect(gpio, ChipSelectPins{Lines: [2]GPIOPin{5, 6}, ActiveHigh: true})
	if err != nil {
		t.Fatal(err)
	}
	if gpio.levels[5] {
		t.Error("active high line idles high")
	}
	cs(0, true)
	if !gpio.levels[5] {
		t.Error("line 0 not asserted")
	}
}

func TestChipSelectBadPin(t *testing.T) {
	gpio := newFakeGPIO()
	if _, err := NewChipSelect(gpio, ChipSelectPins{Lines: [2]GPIOPin{1, 99}}); err == nil {
		t.Error("configuration error not reported")
	}
}
