package core

// Init settings. Values combine with bitwise OR.
const (
	MSBFirst uint32 = 0x0 << 3
	LSBFirst uint32 = 0x1 << 3

	CPOL0 uint32 = 0x0 << 4
	CPOL1 uint32 = 0x1 << 4

	CPHA0 uint32 = 0x0 << 5
	CPHA1 uint32 = 0x1 << 5

	IntDisable uint32 = 0x0 << 9
	IntEnable  uint32 = 0x1 << 9

	HalfDuplex uint32 = 0x0 << 10
	FullDuplex uint32 = 0x1 << 10

	SlaveSel0 uint32 = 0x0 << 29
	SlaveSel1 uint32 = 0x1 << 29

	settingsMask = LSBFirst | CPOL1 | CPHA1 | IntEnable | FullDuplex | SlaveSel1
)

// Clock limits. The output clock is SourceClock / (divisor + 2).
const (
	SourceClock        uint32 = 120000000
	MaxOutputFrequency uint32 = 12000000
	MaxBusFrequency    uint32 = 40000000
	MaxClockDivisor    uint32 = MasterClockMask >> MasterClockPos
)

// BitOrder selects which bit of each byte is shifted first.
type BitOrder uint8

const (
	MSBFirstOrder BitOrder = iota
	LSBFirstOrder
)

// Duplex selects how the data phase uses the bus.
type Duplex uint8

const (
	HalfDuplexMode Duplex = iota // write phase, then read phase
	FullDuplexMode               // one exchange, shared buffer
)

// Settings is the decoded form of the Init bitmask.
type Settings struct {
	BitOrder         BitOrder
	ClockPolarity    uint8
	ClockPhase       uint8
	InterruptEnabled bool
	Duplex           Duplex
	SlaveSelect      uint8
}

// DecodeSettings splits an Init bitmask into its fields. Bits outside the
// documented flags are rejected.
func DecodeSettings(mask uint32) (Settings, error) {
	if mask&^settingsMask != 0 {
		return Settings{}, ErrInvalidParameter
	}
	var s Settings
	if mask&LSBFirst != 0 {
		s.BitOrder = LSBFirstOrder
	}
	if mask&CPOL1 != 0 {
		s.ClockPolarity = 1
	}
	if mask&CPHA1 != 0 {
		s.ClockPhase = 1
	}
	s.InterruptEnabled = mask&IntEnable != 0
	if mask&FullDuplex != 0 {
		s.Duplex = FullDuplexMode
	}
	if mask&SlaveSel1 != 0 {
		s.SlaveSelect = 1
	}
	return s, nil
}

// Mask is the inverse of DecodeSettings.
func (s Settings) Mask() uint32 {
	var m uint32
	if s.BitOrder == LSBFirstOrder {
		m |= LSBFirst
	}
	if s.ClockPolarity != 0 {
		m |= CPOL1
	}
	if s.ClockPhase != 0 {
		m |= CPHA1
	}
	if s.InterruptEnabled {
		m |= IntEnable
	}
	if s.Duplex == FullDuplexMode {
		m |= FullDuplex
	}
	if s.SlaveSelect != 0 {
		m |= SlaveSel1
	}
	return m
}

// Mode returns the SPI mode number (0-3): CPOL in bit 1, CPHA in bit 0.
func (s Settings) Mode() uint8 {
	return s.ClockPolarity<<1 | s.ClockPhase
}

// PayloadLimit is the largest polling payload the duplex mode allows.
func (s Settings) PayloadLimit() int {
	if s.Duplex == FullDuplexMode {
		return FullDuplexMax
	}
	return HalfDuplexMax
}

// ClockFrequency returns the output clock for divisor, or ErrInvalidParameter
// when the divisor does not fit the MASTER field or the result is faster than
// the controller allows.
func ClockFrequency(divisor uint32) (uint32, error) {
	if divisor > MaxClockDivisor {
		return 0, ErrInvalidParameter
	}
	freq := SourceClock / (divisor + 2)
	if freq > MaxBusFrequency || freq > MaxOutputFrequency {
		return 0, ErrInvalidParameter
	}
	return freq, nil
}

// masterSettings extracts Settings and the divisor from a MASTER value.
func masterSettings(master uint32) (Settings, uint32) {
	s, _ := DecodeSettings(master & settingsMask)
	return s, (master & MasterClockMask) >> MasterClockPos
}
