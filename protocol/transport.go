package protocol

import "sync/atomic"

// CommandHandler is a function type for handling decoded commands
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device end of the link: it parses host frames, dispatches
// the commands they carry, and acknowledges every frame.
type Transport struct {
	scanner frameScanner

	// Next expected host sequence (0x10-0x1F). ACKs and responses carry it.
	nextSequence uint32 // atomic

	output        OutputBuffer
	scratch       ScratchOutput
	handler       CommandHandler
	resetCallback func() // host restarted its sequence
	flushCallback func() // push output to the wire now

	dropped  uint32 // atomic; responses too long for a frame
	failures uint32 // atomic; handler errors
}

// NewTransport creates a device transport writing frames to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		scanner:      frameScanner{checkDest: true},
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
}

// Receive consumes every complete frame in input. An incomplete trailing
// frame stays in input for the next call.
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.scanner.scan(input.Data(), t.sendAck, t.receiveFrame)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) receiveFrame(msg *Message) {
	expected := uint8(atomic.LoadUint32(&t.nextSequence))
	if msg.Sequence == MessageDest && expected != MessageDest {
		// host restarted
		atomic.StoreUint32(&t.nextSequence, MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}
	// A frame out of sequence is not processed; the ACK below then tells the
	// host which sequence is expected.
	if msg.Sequence == expected {
		atomic.StoreUint32(&t.nextSequence, uint32(nextSeq(expected)))
		t.sendAck()
		t.dispatch(msg.Payload)
		return
	}
	t.sendAck()
}

// dispatch decodes and runs each command in a frame. A panic in a handler
// drops the rest of the frame and forces a resync.
func (t *Transport) dispatch(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint32(&t.failures, 1)
			t.scanner.setSynchronized(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.setSynchronized(false)
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			atomic.AddUint32(&t.failures, 1)
			return
		}
	}
}

// sendAck writes the ACK/NAK for the current sequence and flushes it ahead
// of any response.
func (t *Transport) sendAck() {
	t.output.Output(ackFrame(uint8(atomic.LoadUint32(&t.nextSequence))))
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one frame holding whatever frameData writes. A frame
// that would exceed MessageLengthMax is dropped and counted.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	frame, err := buildFrame(&t.scratch, seq, frameData)
	if err != nil {
		atomic.AddUint32(&t.dropped, 1)
		return
	}
	if t.flushCallback != nil && t.output.CurPosition()+len(frame) > MessageMax {
		t.flushCallback()
	}
	t.output.Output(frame)
}

// SendCommand sends a response: cmdID followed by its arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state, e.g. after a USB reconnect
func (t *Transport) Reset() {
	t.scanner.setSynchronized(true)
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// Dropped returns the number of responses discarded for length
func (t *Transport) Dropped() uint32 { return atomic.LoadUint32(&t.dropped) }

// Failures returns the number of command handler errors and panics
func (t *Transport) Failures() uint32 { return atomic.LoadUint32(&t.failures) }

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets the callback that writes pending output to the wire
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
