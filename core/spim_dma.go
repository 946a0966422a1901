package core

import "time"

// DMARequest describes the data phase handed to a DMA channel. Header is
// clocked by the channel ahead of Data with the slave selected throughout.
type DMARequest struct {
	Header     []byte
	Data       []byte
	Dir        Direction
	FullDuplex bool
}

// DMAChannel is a DMA-capable path to the SPI master data port.
type DMAChannel interface {
	// MaxTransfer is the largest Data length the channel accepts.
	MaxTransfer() int

	// Start programs and starts the transfer and returns without waiting.
	// done is called exactly once when the transfer finishes, possibly from
	// another goroutine or an interrupt handler. If Start returns an error,
	// done is never called.
	Start(req DMARequest, done func(error)) error
}

// DMA runs a transfer whose data phase goes through the attached DMA channel.
// It takes the same gate and frame validation as Transfer; data may be as
// long as the channel's MaxTransfer.
//
// With interrupts enabled and a callback registered the call returns as soon
// as the channel is started; the gate is released and the callback invoked
// when the channel completes, and the result is available from LastDMAError.
// Otherwise DMA blocks until completion, then invokes the callback if one is
// registered. A wait longer than the DMA timeout returns ErrTransfer with the
// gate still held; it is released when the channel finally completes.
func (s *Session) DMA(opcode uint32, ext uint8, opcodeLen int, data []byte, flag Direction) error {
	tok, err := s.gate.TryAcquire()
	if err != nil {
		return err
	}

	req, err := s.prepareDMA(FrameRequest{Op: opcode, Ext: ext, CmdLen: opcodeLen, Payload: data, Dir: flag})
	if err != nil {
		s.gate.Release(tok)
		return err
	}

	s.regs.Set(RegMaster, s.regs.Get(RegMaster)|MasterDMA)
	RecordEvent(EvtDMAStart, opcode, len(data), nil)

	if s.settings.InterruptEnabled && s.callback != nil {
		callback := s.callback
		err = s.dma.Start(req, func(err error) {
			err = s.finishDMA(tok, err)
			RecordEvent(EvtDMADone, opcode, len(data), err)
			if err != nil {
				// completion context; never block on the writer here
				DebugAsync("[SPIM] dma " + hex32(opcode) + ": " + err.Error())
			}
			callback()
		})
		if err != nil {
			err = &TransferError{Err: err}
			s.finishDMA(tok, err)
			return err
		}
		return nil
	}

	done := make(chan error, 1)
	if err := s.dma.Start(req, func(err error) { done <- err }); err != nil {
		err = &TransferError{Err: err}
		s.finishDMA(tok, err)
		return err
	}

	timer := time.NewTimer(s.dmaTimeout)
	select {
	case err = <-done:
		timer.Stop()
		err = s.finishDMA(tok, err)
	case <-timer.C:
		DebugPrintln("[SPIM] dma timeout " + hex32(opcode))
		err = ErrTransfer
		s.settleDMA(err)
		// The mover still owns the bus; the gate stays held until it is done.
		go func() {
			<-done
			s.gate.releaseHeld(tok)
		}()
	}
	RecordEvent(EvtDMADone, opcode, len(data), err)
	if s.callback != nil {
		s.callback()
	}
	return err
}

// MaxDMATransfer is the longest DMA data phase, zero without a channel.
func (s *Session) MaxDMATransfer() int {
	if s.dma == nil {
		return 0
	}
	return s.dma.MaxTransfer()
}

// LastDMAError returns the result of the most recent DMA completion.
func (s *Session) LastDMAError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDMAErr
}

func (s *Session) prepareDMA(req FrameRequest) (DMARequest, error) {
	if !s.initialized {
		return DMARequest{}, ErrNotInitialized
	}
	if s.dma == nil {
		return DMARequest{}, ErrInvalidParameter
	}
	f, err := EncodeFrame(req, s.dma.MaxTransfer())
	if err != nil {
		return DMARequest{}, err
	}
	return DMARequest{
		Header:     f.Header(),
		Data:       f.Payload,
		Dir:        f.Dir,
		FullDuplex: s.settings.Duplex == FullDuplexMode,
	}, nil
}

// finishDMA records the result, leaves DMA mode and releases the gate.
func (s *Session) finishDMA(tok Token, err error) error {
	err = s.settleDMA(err)
	s.gate.Release(tok)
	return err
}

// settleDMA records the result and leaves DMA mode.
func (s *Session) settleDMA(err error) error {
	if err != nil && err != ErrTransfer {
		if _, ok := err.(*TransferError); !ok {
			err = &TransferError{Err: err}
		}
	}
	s.regs.Set(RegMaster, s.regs.Get(RegMaster)&^MasterDMA)

	s.mu.Lock()
	s.lastDMAErr = err
	s.mu.Unlock()
	return err
}
