//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"
	"runtime"
	"runtime/volatile"
	"unsafe"
)

// dmaChannelHW is one channel of the DMA block, see rp.DMA_Type.
type dmaChannelHW struct {
	READ_ADDR   volatile.Register32
	WRITE_ADDR  volatile.Register32
	TRANS_COUNT volatile.Register32
	CTRL_TRIG   volatile.Register32
	_           [12]volatile.Register32 // aliases
}

var dmaChannels = (*[12]dmaChannelHW)(unsafe.Pointer(rp.DMA))

// Channels 0 and 1 are left to piolib.
const (
	spiTxDMAChannel = 10
	spiRxDMAChannel = 11
)

const (
	dreqSPI0TX = 0x10
	dreqSPI0RX = 0x11
	dreqSPI1TX = 0x12
	dreqSPI1RX = 0x13
)

// dmaPollLimit bounds the completion wait; each poll yields.
const dmaPollLimit = 1 << 20

var errDMATimeout = errors.New("dma: transfer timed out")

// spiDMA streams a data phase between memory and a PL022 data register with
// a TX channel and an RX channel, each paced by the controller's DREQ. The
// RX channel always runs so the receive FIFO never overflows.
type spiDMA struct {
	bus            *rp.SPI0_Type
	txDREQ, rxDREQ uint32
}

func newSPIDMA(spi *machine.SPI) *spiDMA {
	d := &spiDMA{bus: spi.Bus, txDREQ: dreqSPI0TX, rxDREQ: dreqSPI0RX}
	if spi.Bus == rp.SPI1 {
		d.txDREQ, d.rxDREQ = dreqSPI1TX, dreqSPI1RX
	}
	return d
}

// move has the core.DataMover signature.
func (d *spiDMA) move(w, r []byte) error {
	n := len(w)
	if w == nil {
		n = len(r)
	}
	if n == 0 {
		return nil
	}

	var zero, sink byte
	src, srcIncr := &zero, false
	if w != nil {
		src, srcIncr = &w[0], true
	}
	dst, dstIncr := &sink, false
	if r != nil {
		dst, dstIncr = &r[0], true
	}
	data := uint32(uintptr(unsafe.Pointer(&d.bus.SSPDR)))

	d.bus.SSPDMACR.Set(rp.SPI0_SSPDMACR_TXDMAE | rp.SPI0_SSPDMACR_RXDMAE)
	defer d.bus.SSPDMACR.Set(0)

	start(spiRxDMAChannel, data, uint32(uintptr(unsafe.Pointer(dst))), n, false, dstIncr, d.rxDREQ)
	start(spiTxDMAChannel, uint32(uintptr(unsafe.Pointer(src))), data, n, srcIncr, false, d.txDREQ)

	for i := 0; busy(spiTxDMAChannel) || busy(spiRxDMAChannel); i++ {
		if i == dmaPollLimit {
			abort(spiTxDMAChannel)
			abort(spiRxDMAChannel)
			return errDMATimeout
		}
		runtime.Gosched()
	}
	return nil
}

// start programs a byte-wide transfer and triggers it.
func start(ch uint8, from, to uint32, count int, readIncr, writeIncr bool, dreq uint32) {
	hw := &dmaChannels[ch]
	hw.READ_ADDR.Set(from)
	hw.WRITE_ADDR.Set(to)
	hw.TRANS_COUNT.Set(uint32(count))

	ctrl := uint32(rp.DMA_CH0_CTRL_TRIG_EN)
	ctrl |= dreq << rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_Pos
	ctrl |= uint32(ch) << rp.DMA_CH0_CTRL_TRIG_CHAIN_TO_Pos // chaining to itself disables chaining
	if readIncr {
		ctrl |= rp.DMA_CH0_CTRL_TRIG_INCR_READ
	}
	if writeIncr {
		ctrl |= rp.DMA_CH0_CTRL_TRIG_INCR_WRITE
	}
	hw.CTRL_TRIG.Set(ctrl)
}

func busy(ch uint8) bool {
	return dmaChannels[ch].CTRL_TRIG.Get()&rp.DMA_CH0_CTRL_TRIG_BUSY != 0
}

// abort stops the channel and waits for in-flight transfers to drain.
func abort(ch uint8) {
	mask := uint32(1) << ch
	rp.DMA.CHAN_ABORT.Set(mask)
	for i := 0; rp.DMA.CHAN_ABORT.Get()&mask != 0 && i < dmaPollLimit; i++ {
		runtime.Gosched()
	}
}
