package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})

	if buf.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", buf.Available())
	}
	buf.Pop(2)
	if got := buf.Data(); !bytes.Equal(got, []byte{3, 4, 5}) {
		t.Errorf("After popping 2, got %v", got)
	}
	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Pop past end left %d bytes", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output([]byte{1, 2, 3})
	scratch.Output([]byte{4, 5})

	if scratch.CurPosition() != 5 {
		t.Errorf("Expected position 5, got %d", scratch.CurPosition())
	}

	scratch.Update(0, 99)
	if scratch.Result()[0] != 99 {
		t.Errorf("Expected first byte to be 99, got %d", scratch.Result()[0])
	}
	scratch.Update(7, 1) // past the write position: ignored
	if scratch.CurPosition() != 5 {
		t.Errorf("Update moved position to %d", scratch.CurPosition())
	}

	if since := scratch.DataSince(2); !bytes.Equal(since, []byte{3, 4, 5}) {
		t.Errorf("DataSince(2) = %v, want [3 4 5]", since)
	}
	if since := scratch.DataSince(6); since != nil {
		t.Errorf("DataSince past end = %v, want nil", since)
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("After reset, expected position 0, got %d", scratch.CurPosition())
	}
}

func TestScratchOutputOverflow(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output(make([]byte, MessageMax+10))
	if scratch.CurPosition() != MessageMax {
		t.Errorf("position = %d, want %d", scratch.CurPosition(), MessageMax)
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(8)

	if !fifo.IsEmpty() || fifo.Available() != 0 || fifo.Free() != 8 {
		t.Fatalf("new FIFO: empty=%v available=%d free=%d", fifo.IsEmpty(), fifo.Available(), fifo.Free())
	}

	if n := fifo.Write([]byte{1, 2, 3, 4, 5}); n != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", n)
	}

	readBuf := make([]byte, 3)
	if n := fifo.Read(readBuf); n != 3 || !bytes.Equal(readBuf, []byte{1, 2, 3}) {
		t.Errorf("Read = %d %v", n, readBuf)
	}

	fifo.Pop(1)
	if fifo.Available() != 1 {
		t.Errorf("After popping 1, expected 1 available, got %d", fifo.Available())
	}

	fifo.Reset()
	if n := fifo.Write(make([]byte, 12)); n != 8 {
		t.Errorf("Expected to write 8 bytes to size-8 FIFO, wrote %d", n)
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)

	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Read(make([]byte, 2))

	if n := fifo.Write([]byte{5, 6, 7}); n != 3 {
		t.Errorf("Expected to write 3 bytes, wrote %d", n)
	}

	// Data must present the wrapped contents contiguously
	if got := fifo.Data(); !bytes.Equal(got, []byte{3, 4, 5, 6, 7}) {
		t.Errorf("Data() = %v, want [3 4 5 6 7]", got)
	}

	fifo.Pop(3)
	if got := fifo.Data(); !bytes.Equal(got, []byte{6, 7}) {
		t.Errorf("after Pop(3) Data() = %v, want [6 7]", got)
	}
}
