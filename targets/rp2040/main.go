//go:build rp2040

package main

import (
	"machine"
	"time"

	"spimhal/core"
	"spimhal/protocol"
)

// Build-time selection, e.g.
//
//	tinygo flash -target pico -ldflags "-X main.busRoute=spi1a -X main.busBackend=pio"
var (
	busRoute   = "spi0a"
	busBackend = "hw" // "hw" (PL022 + DMA), "pio" or "soft" (GPIO bit-bang)
)

// Slave select lines 0 and 1, driven as GPIOs around each transaction.
var chipSelectPins = core.ChipSelectPins{Lines: [2]core.GPIOPin{1, 5}}

// dmaMax is the largest DMA data phase the console accepts.
const dmaMax = 4096

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	rxErrors        uint32
	writeFailures   uint32
	usbDisconnected bool
)

func main() {
	// Clear watchdog state left over from a previous run.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	initDebugUART()
	if err := initUSB(); err != nil {
		halt()
	}

	session, err := newSession()
	if err != nil {
		halt()
	}
	adc := core.NewADC(newRPADC())

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	var console *core.Console
	transport = protocol.NewTransport(outputBuffer, func(cmdID uint16, data *[]byte) error {
		return console.Dispatch(cmdID, data)
	})
	console = core.NewConsole(session, adc, transport)
	console.Dictionary().AddConstant("DMA_MAX", dmaMax)
	console.Dictionary().AddConstant("CLOCK_FREQ", machine.CPUFrequency())

	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	// The host waits for the ACK before it reads the response.
	transport.SetFlushCallback(writeUSB)

	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					rxErrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				in := protocol.NewSliceInputBuffer(data)
				transport.Receive(in)
				if consumed := len(data) - in.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}
			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// newSession builds the controller on the selected backend. The PL022
// backend moves DMA data phases through the DMA block; the others stream
// them from a goroutine.
func newSession() (*core.Session, error) {
	cs, err := core.NewChipSelect(rpGPIO{}, chipSelectPins)
	if err != nil {
		return nil, err
	}
	var bus core.SPIMBus
	switch busBackend {
	case "pio":
		bus, err = newPIOBus(busRoute)
	case "soft":
		bus, err = newSoftBus(busRoute)
	}
	if err != nil {
		return nil, err
	}
	if bus != nil {
		engine := core.NewBusEngine(bus, cs)
		return core.NewSession(engine, core.WithDMA(engine.SoftwareDMA(dmaMax))), nil
	}
	hw, err := newHWBus(busRoute)
	if err != nil {
		return nil, err
	}
	engine := core.NewBusEngine(hw, cs)
	dma := engine.HardwareDMA(dmaMax, newSPIDMA(hw.spi).move)
	return core.NewSession(engine, core.WithDMA(dma)), nil
}

// usbReaderLoop moves bytes from USB into inputBuffer.
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			rxErrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if usbBuffered() > 0 {
			b, err := usbReadByte()
			if err != nil {
				rxErrors++
				time.Sleep(time.Millisecond)
				continue
			}
			if usbDisconnected {
				// The host came back; start from a clean link.
				usbDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				writeFailures = 0
			}
			if inputBuffer.Write([]byte{b}) == 0 {
				rxErrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB sends everything queued in outputBuffer. After repeated failed
// writes the link is treated as disconnected and queued output is dropped.
func writeUSB() {
	result := outputBuffer.Result()
	for written := 0; written < len(result); {
		n, err := usbWrite(result[written:])
		if err != nil || n == 0 {
			writeFailures++
			if writeFailures > 10 {
				usbDisconnected = true
				writeFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	writeFailures = 0
	outputBuffer.Reset()
}

// halt blinks the LED forever; the board cannot serve the console.
func halt() {
	core.DumpTrace()
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
