package protocol

import (
	"bytes"
	"testing"
)

func TestVLQEncodeDecodeInt(t *testing.T) {
	testCases := []int32{
		0, 1, -1, 31, -32, 95, 96, -33,
		127, -127, 128, -128, 1000, -1000,
		65535, -65535, 1000000, -1000000,
		1<<31 - 1, -1 << 31,
	}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQInt(output, expected)
		encoded := output.Result()

		data := encoded
		decoded, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Failed to decode VLQ for value %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d (encoded as %v)", expected, decoded, encoded)
		}
		if len(data) != 0 {
			t.Errorf("VLQ decode left %d bytes for value %d", len(data), expected)
		}
	}
}

func TestVLQEncodedLength(t *testing.T) {
	tests := []struct {
		value int32
		want  []byte
	}{
		{0, []byte{0x00}},
		{95, []byte{0x5F}},
		{-32, []byte{0x60}},
		{-1, []byte{0x7F}},
		{96, []byte{0x80, 0x60}},
		{300, []byte{0x82, 0x2C}},
	}

	for _, tt := range tests {
		output := NewScratchOutput()
		EncodeVLQInt(output, tt.value)
		if got := output.Result(); !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeVLQInt(%d) = % x, want % x", tt.value, got, tt.want)
		}
	}
}

func TestVLQEncodeDecodeUint(t *testing.T) {
	testCases := []uint32{0, 1, 127, 128, 255, 1000, 65535, 12000000, 0xFFFFFFFF}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQUint(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQUint(&data)
		if err != nil {
			t.Errorf("Failed to decode VLQ for value %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d", expected, decoded)
		}
	}
}

func TestVLQSequence(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQUint(output, 7)
	EncodeVLQBytes(output, []byte{0x9F, 0x00, 0x7E})
	EncodeVLQInt(output, -3)

	data := output.Result()
	v, err := DecodeVLQUint(&data)
	if err != nil || v != 7 {
		t.Fatalf("first value = %d, %v", v, err)
	}
	b, err := DecodeVLQBytes(&data)
	if err != nil || !bytes.Equal(b, []byte{0x9F, 0x00, 0x7E}) {
		t.Fatalf("bytes = % x, %v", b, err)
	}
	s, err := DecodeVLQInt(&data)
	if err != nil || s != -3 {
		t.Fatalf("status = %d, %v", s, err)
	}
	if len(data) != 0 {
		t.Errorf("%d bytes left over", len(data))
	}
}

func TestVLQString(t *testing.T) {
	testCases := []string{"", "hello", "spim_init settings=%u clock=%u"}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQString(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQString(&data)
		if err != nil {
			t.Errorf("Failed to decode string '%s': %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("String mismatch: expected '%s', got '%s'", expected, decoded)
		}
	}
}

func TestVLQBufferTooSmall(t *testing.T) {
	data := []byte{0x80} // continuation with nothing after it
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall, got %v", err)
	}
	if len(data) != 1 {
		t.Errorf("failed decode consumed input")
	}

	data = []byte{0x05, 0x01}
	if _, err := DecodeVLQBytes(&data); err != ErrBufferTooSmall {
		t.Errorf("short byte array: expected ErrBufferTooSmall, got %v", err)
	}

	data = []byte{}
	if _, err := DecodeVLQUint(&data); err != ErrBufferTooSmall {
		t.Errorf("empty input: expected ErrBufferTooSmall, got %v", err)
	}
}

func TestVLQTooLong(t *testing.T) {
	data := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); err != ErrInvalidVLQ {
		t.Errorf("Expected ErrInvalidVLQ, got %v", err)
	}
}
