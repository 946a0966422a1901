package core

// runPolling programs one transaction into the controller and spins until
// the hardware reports completion. The caller holds the gate.
//
// Byte order differs between the two buffers: OPCODE is shifted out most
// significant byte first, DATA registers are shifted out from bits 7:0 up.
func (s *Session) runPolling(f Frame) error {
	full := s.settings.Duplex == FullDuplexMode
	n := len(f.Payload)

	var mosi, miso int
	switch {
	case f.Dir == CommandOnly:
	case full:
		mosi, miso = n, n
	case f.Dir == Write:
		mosi = n
	case f.Dir == Read:
		miso = n
	}

	more := uint32(f.OpBytes*8)<<MoreBufCmdPos |
		uint32(miso*8)<<MoreBufMISOPos |
		uint32(mosi*8)<<MoreBufMOSIPos
	if f.HasExt {
		more |= MoreBufAddrExtEn
		s.regs.Set(RegAddrExt, uint32(f.Ext))
	}
	s.regs.Set(RegOpcode, f.Op)
	if mosi > 0 {
		storeData(s.regs, 0, f.Payload[:mosi])
	}
	s.regs.Set(RegMoreBuf, more)
	s.regs.Set(RegTrans, TransStart)

	if err := s.waitIdle(); err != nil {
		return err
	}

	if f.Dir == Read && miso > 0 {
		first := 0
		if full {
			first = fullDuplexRxBase
		}
		loadData(s.regs, first, f.Payload[:miso])
	}
	return nil
}

// waitIdle spins on TRANS until busy clears or the spin budget runs out.
func (s *Session) waitIdle() error {
	for i := 0; i < s.spinLimit; i++ {
		v := s.regs.Get(RegTrans)
		if v&TransBusy != 0 {
			continue
		}
		if v&TransError != 0 {
			DebugPrintln("[SPIM] transfer fault trans=" + hex32(v))
			return ErrTransfer
		}
		return nil
	}
	DebugPrintln("[SPIM] transfer timeout")
	return ErrTransfer
}
