//go:build rp2040

package main

import (
	"machine"

	"spimhal/core"
)

// debugLog enables core debug output on UART1 (TX GPIO20, RX GPIO21):
//
//	-ldflags "-X main.debugLog=uart"
//
// The pins overlap route spi0d, which keeps debug output off.
var debugLog = "off"

var debugUART *machine.UART

func initDebugUART() {
	if debugLog != "uart" || busRoute == "spi0d" {
		return
	}
	uart := machine.UART1
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO20,
		RX:       machine.GPIO21,
	})
	if err != nil {
		return
	}
	debugUART = uart
	core.SetDebugWriter(func(s string) {
		debugUART.Write([]byte(s))
		debugUART.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()
	core.DebugPrintln("[SPIM] debug uart up, route " + busRoute + ", backend " + busBackend)
}
