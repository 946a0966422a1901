package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTransportClosed is returned once Close has been called
var ErrTransportClosed = errors.New("transport closed")

// ResponseHandler is a function type for handling received responses from MCU
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host end of the link: it frames commands, waits for
// their ACK, and queues device responses.
type HostTransport struct {
	port    io.ReadWriteCloser
	scanner frameScanner

	currentSeq uint32 // atomic; 0x10-0x1F

	input   *FifoBuffer
	scratch ScratchOutput

	ackChan      chan *Message
	responseChan chan *Message

	handlerMu       sync.Mutex
	responseHandler ResponseHandler

	writeMutex sync.Mutex
	readMutex  sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts reading from port in the background
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		input:        NewFifoBuffer(4 * MessageMax),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 64),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends a command to the MCU and waits for ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends a command with a custom timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	frame, err := buildFrame(&t.scratch, seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to build command %d: %w", cmdID, err)
	}

	// drop an ACK left over from an earlier timed out command
	select {
	case <-t.ackChan:
	default:
	}

	n, err := t.port.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}

	if err := t.waitForAck(seq, timeout); err != nil {
		return fmt.Errorf("ACK timeout or error: %w", err)
	}
	return nil
}

// waitForAck waits for the ACK of the frame sent with seq
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	want := nextSeq(seq)
	for {
		select {
		case ack := <-t.ackChan:
			if ack.Sequence != want {
				// NAK: the device expects another sequence
				return fmt.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", want, ack.Sequence)
			}
			atomic.StoreUint32(&t.currentSeq, uint32(want))
			return nil
		case <-timer.C:
			return fmt.Errorf("ACK timeout after %v", timeout)
		case <-t.stopChan:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse receives a response message with timeout
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// DrainResponses discards queued responses and returns how many there were
func (t *HostTransport) DrainResponses() int {
	n := 0
	for {
		select {
		case <-t.responseChan:
			n++
		default:
			return n
		}
	}
}

// SetResponseHandler sets a callback run for every response as it arrives
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.input.Write(buffer[:n])
			t.processMessages()
		}
		if err != nil {
			// Serial ports report io.EOF on a read timeout; only a
			// stop ends the loop.
			select {
			case <-t.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

func (t *HostTransport) processMessages() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	consumed := t.scanner.scan(t.input.Data(), nil, func(msg *Message) {
		payload := make([]byte, len(msg.Payload))
		copy(payload, msg.Payload)
		msg.Payload = payload
		t.dispatchMessage(msg)
	})
	t.input.Pop(consumed)
}

// dispatchMessage routes a message to the appropriate channel
func (t *HostTransport) dispatchMessage(msg *Message) {
	if msg.IsAck() {
		select {
		case t.ackChan <- msg:
		default:
			// keep the newest
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return
	}

	t.handlerMu.Lock()
	handler := t.responseHandler
	t.handlerMu.Unlock()
	if handler != nil {
		data := msg.Payload
		if cmdID, err := DecodeVLQUint(&data); err == nil {
			_ = handler(uint16(cmdID), &data)
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		// full: drop the oldest
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset forgets sequence state and any buffered input
func (t *HostTransport) Reset() {
	t.scanner.setSynchronized(true)
	atomic.StoreUint32(&t.currentSeq, MessageDest)

	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	t.DrainResponses()

	t.readMutex.Lock()
	t.input.Reset()
	t.readMutex.Unlock()
}

// GetCurrentSequence returns the sequence of the next command
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
