// Package protocol implements the framed serial link between the console
// firmware and a host: VLQ-encoded commands inside length-prefixed,
// CRC-checked, sequence-numbered frames.
//
// Frame layout:
//
//	[len][seq][payload ...][crc hi][crc lo][0x7E]
//
// len counts the whole frame. seq carries MessageDest in its high nibble and
// a 4-bit sequence number in its low nibble. A frame without payload is an
// ACK (or NAK) carrying the next expected sequence number.
package protocol

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 255 // length field is a single byte
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F
)

// MessageMax is the size of one output scratch buffer
const MessageMax = 512

// Message is one received frame
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
	CRC      uint16
}

// IsAck reports whether the frame carries no payload
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}

// nextSeq advances a sequence byte, wrapping inside the MessageDest range
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
