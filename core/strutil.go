package core

// Number formatting for debug lines and the dictionary. fmt stays out of
// firmware images.

const hexDigits = "0123456789abcdef"

// appendUint appends the decimal form of v
func appendUint(dst []byte, v uint64) []byte {
	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return append(dst, buf[i:]...)
}

func itoa(n int) string {
	if n < 0 {
		return string(appendUint([]byte{'-'}, uint64(-int64(n))))
	}
	return string(appendUint(nil, uint64(n)))
}

func utoa(n uint32) string {
	return string(appendUint(nil, uint64(n)))
}

// appendHex appends v as 0x followed by exactly digits hex digits
func appendHex(dst []byte, v uint32, digits int) []byte {
	dst = append(dst, '0', 'x')
	for shift := 4 * (digits - 1); shift >= 0; shift -= 4 {
		dst = append(dst, hexDigits[(v>>uint(shift))&0xF])
	}
	return dst
}

func hex32(v uint32) string { return string(appendHex(nil, v, 8)) }

func hex8(v uint8) string { return string(appendHex(nil, uint32(v), 2)) }
