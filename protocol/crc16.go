package protocol

// CRC16 is the CCITT checksum carried in every frame trailer
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// trailer returns the CRC and sync bytes that close a frame whose header and
// payload are frame.
func trailer(frame []byte) [MessageTrailerSize]byte {
	crc := CRC16(frame)
	return [MessageTrailerSize]byte{byte(crc >> 8), byte(crc), MessageValueSync}
}
