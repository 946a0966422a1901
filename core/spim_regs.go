package core

// Register is the byte offset of a 32-bit register in the SPI master block.
type Register uint8

// SPI master register map
const (
	RegTrans   Register = 0x00 // transaction start / busy
	RegOpcode  Register = 0x04 // command and address bytes
	RegData0   Register = 0x08 // DATA0..DATA7 occupy 0x08-0x24
	RegMaster  Register = 0x28 // mode, bit order, clock divider, slave select
	RegMoreBuf Register = 0x2C // bit counts for each phase
	RegAddrExt Register = 0x30 // address extension byte

	registerSpan = 0x34
)

// DataRegisters is the number of 32-bit data buffer registers.
const DataRegisters = 8

// RegData returns the offset of data buffer register i (0-7).
func RegData(i int) Register {
	return RegData0 + Register(4*i)
}

// TRANS bits
const (
	TransStart uint32 = 1 << 8
	TransBusy  uint32 = 1 << 16
	TransError uint32 = 1 << 17
)

// MASTER bits. Bits 3, 4, 5, 9, 10 and 29 take the Init settings mask
// unchanged.
const (
	MasterMoreBufMode uint32 = 1 << 2
	MasterLSBFirst    uint32 = 1 << 3
	MasterCPOL        uint32 = 1 << 4
	MasterCPHA        uint32 = 1 << 5
	MasterIntEnable   uint32 = 1 << 9
	MasterFullDuplex  uint32 = 1 << 10
	MasterDMA         uint32 = 1 << 11
	MasterClockPos           = 16
	MasterClockMask   uint32 = 0xFFF << MasterClockPos
	MasterSlaveSel    uint32 = 1 << 29
)

// MOREBUF fields, all counted in bits
const (
	MoreBufMOSIPos          = 0
	MoreBufMOSIMask  uint32 = 0x1FF << MoreBufMOSIPos
	MoreBufMISOPos          = 12
	MoreBufMISOMask  uint32 = 0x1FF << MoreBufMISOPos
	MoreBufCmdPos           = 24
	MoreBufCmdMask   uint32 = 0x3F << MoreBufCmdPos
	MoreBufAddrExtEn uint32 = 1 << 31
)

// In full duplex the data phase shifts DATA0-3 out while DATA4-7 capture
// the incoming bytes.
const fullDuplexRxBase = 4

// Registers is register-level access to one SPI master controller.
// Writing TransStart to RegTrans launches the transaction described by the
// other registers; RegTrans reads TransBusy until the hardware is done.
type Registers interface {
	Get(r Register) uint32
	Set(r Register, v uint32)
}

// RegisterValue is one line of a register dump.
type RegisterValue struct {
	Name   string
	Offset Register
	Value  uint32
}

type registerInfo struct {
	name  string
	reg   Register
	reset uint32
}

const defaultClockDivisor = 10

// registerLayout lists every register in offset order with its power-on value.
var registerLayout = []registerInfo{
	{"TRANS", RegTrans, 0},
	{"OPCODE", RegOpcode, 0},
	{"DATA0", RegData(0), 0},
	{"DATA1", RegData(1), 0},
	{"DATA2", RegData(2), 0},
	{"DATA3", RegData(3), 0},
	{"DATA4", RegData(4), 0},
	{"DATA5", RegData(5), 0},
	{"DATA6", RegData(6), 0},
	{"DATA7", RegData(7), 0},
	{"MASTER", RegMaster, MasterMoreBufMode | defaultClockDivisor<<MasterClockPos},
	{"MOREBUF", RegMoreBuf, 0},
	{"ADDR_EXT", RegAddrExt, 0},
}

// RegisterName returns the mnemonic of r, or "" for an unmapped offset.
func RegisterName(r Register) string {
	for _, info := range registerLayout {
		if info.reg == r {
			return info.name
		}
	}
	return ""
}

// ResetValue returns the power-on value of r.
func ResetValue(r Register) uint32 {
	for _, info := range registerLayout {
		if info.reg == r {
			return info.reset
		}
	}
	return 0
}

// storeData packs src into consecutive data registers starting at DATA[first].
// Byte 0 lands in bits 7:0.
func storeData(regs Registers, first int, src []byte) {
	for i := 0; i < len(src); i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < len(src); j++ {
			w |= uint32(src[i+j]) << (8 * uint(j))
		}
		regs.Set(RegData(first+i/4), w)
	}
}

// loadData unpacks len(dst) bytes from the data registers starting at
// DATA[first].
func loadData(regs Registers, first int, dst []byte) {
	var w uint32
	for i := range dst {
		if i%4 == 0 {
			w = regs.Get(RegData(first + i/4))
		}
		dst[i] = byte(w)
		w >>= 8
	}
}
