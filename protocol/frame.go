package protocol

import (
	"bytes"
	"errors"
	"sync/atomic"
)

// ErrFrameTooLong reports a message that does not fit one frame
var ErrFrameTooLong = errors.New("message exceeds frame length")

// frameScanner splits a byte stream into frames. After a framing or CRC
// error it drops bytes up to the next sync byte.
type frameScanner struct {
	desynced  uint32 // atomic bool
	checkDest bool   // require MessageDest in the sequence byte
}

func (s *frameScanner) synchronized() bool {
	return atomic.LoadUint32(&s.desynced) == 0
}

func (s *frameScanner) setSynchronized(v bool) {
	if v {
		atomic.StoreUint32(&s.desynced, 0)
	} else {
		atomic.StoreUint32(&s.desynced, 1)
	}
}

// scan calls fn for each valid frame in data and returns the number of bytes
// consumed. A trailing partial frame is left unconsumed. resynced runs each
// time sync is regained. The Message payload aliases data.
func (s *frameScanner) scan(data []byte, resynced func(), fn func(msg *Message)) int {
	total := len(data)
	for len(data) > 0 {
		if !s.synchronized() {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			s.setSynchronized(true)
			if resynced != nil {
				resynced()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		n := int(data[MessagePositionLen])
		seq := data[MessagePositionSeq]
		if n < MessageLengthMin || (s.checkDest && seq&^MessageSeqMask != MessageDest) {
			s.setSynchronized(false)
			continue
		}
		if len(data) < n {
			break
		}
		if data[n-MessageTrailerSync] != MessageValueSync {
			s.setSynchronized(false)
			continue
		}
		crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
		if crc != CRC16(data[:n-MessageTrailerSize]) {
			s.setSynchronized(false)
			continue
		}

		msg := &Message{
			Length:   uint8(n),
			Sequence: seq,
			Payload:  data[MessageHeaderSize : n-MessageTrailerSize],
			CRC:      crc,
		}
		data = data[n:]
		fn(msg)
	}
	return total - len(data)
}

// buildFrame assembles a frame around the bytes body writes. The result
// aliases scratch.
func buildFrame(scratch *ScratchOutput, seq uint8, body func(output OutputBuffer)) ([]byte, error) {
	scratch.Reset()
	scratch.Output([]byte{0, seq})
	if body != nil {
		body(scratch)
	}
	n := scratch.CurPosition() + MessageTrailerSize
	if n > MessageLengthMax {
		return nil, ErrFrameTooLong
	}
	scratch.Update(MessagePositionLen, byte(n))
	t := trailer(scratch.Result())
	scratch.Output(t[:])
	return scratch.Result(), nil
}

// ackFrame is the payload-free frame acknowledging everything before seq
func ackFrame(seq uint8) []byte {
	head := []byte{MessageLengthMin, seq}
	t := trailer(head)
	return append(head, t[:]...)
}
